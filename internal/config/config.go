package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"

	defaultJWTSecret = "your-secret-key"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	Auth      AuthConfig      `json:"auth"`
	CORS      CORSConfig      `json:"cors"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Log       LogConfig       `json:"log"`
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            string        `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	Environment     string        `json:"environment"`
}

type DatabaseConfig struct {
	Driver          string        `json:"driver"`
	URL             string        `json:"url"`
	Host            string        `json:"host"`
	Port            string        `json:"port"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	Name            string        `json:"name"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SQLitePath      string        `json:"sqlite_path"`
	MongoURI        string        `json:"mongo_uri"`
	MongoDatabase   string        `json:"mongo_database"`
	MongoCollection string        `json:"mongo_collection"`
	// StoreTimeout bounds every repository call.
	StoreTimeout time.Duration `json:"store_timeout"`
}

type RedisConfig struct {
	Enabled      bool          `json:"enabled"`
	Host         string        `json:"host"`
	Port         string        `json:"port"`
	Password     string        `json:"password"`
	DB           int           `json:"db"`
	PoolSize     int           `json:"pool_size"`
	MinIdleConns int           `json:"min_idle_conns"`
	MaxRetries   int           `json:"max_retries"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	TaskTTL      time.Duration `json:"task_ttl"`
	ListTTL      time.Duration `json:"list_ttl"`
}

type AuthConfig struct {
	Enabled      bool          `json:"enabled"`
	Domain       string        `json:"domain"`
	Issuer       string        `json:"issuer"`
	Audience     string        `json:"audience"`
	Algorithm    string        `json:"algorithm"`
	JWKSURL      string        `json:"jwks_url"`
	JWKSCacheTTL time.Duration `json:"jwks_cache_ttl"`
	JWTSecret    string        `json:"-"`
}

type CORSConfig struct {
	AllowedOrigins []string `json:"allowed_origins"`
}

type RateLimitConfig struct {
	Enabled         bool          `json:"enabled"`
	RequestsPerMin  int           `json:"requests_per_minute"`
	BurstSize       int           `json:"burst_size"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// LoadConfig reads configuration from the environment and, when CONFIG_FILE
// is set, from that file. Environment variables take precedence.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	src := &source{v: v}

	config := &Config{
		Server: ServerConfig{
			Host:            src.getEnv("HOST", "localhost"),
			Port:            src.getEnv("PORT", "5000"),
			ReadTimeout:     src.getEnvAsDuration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    src.getEnvAsDuration("WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     src.getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: src.getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
			Environment:     src.getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(src.getEnv("DB_DRIVER", DriverPostgres)),
			URL:             src.getEnv("DATABASE_URL", ""),
			Host:            src.getEnv("DB_HOST", "localhost"),
			Port:            src.getEnv("DB_PORT", "5432"),
			User:            src.getEnv("DB_USER", "postgres"),
			Password:        src.getEnv("DB_PASSWORD", ""),
			Name:            src.getEnv("DB_NAME", "task_manager"),
			SSLMode:         src.getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    src.getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    src.getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: src.getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: src.getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
			SQLitePath:      src.getEnv("SQLITE_PATH", "tasks.db"),
			MongoURI:        src.getEnv("MONGO_URI", "mongodb://localhost:27017"),
			MongoDatabase:   src.getEnv("MONGO_DATABASE", "task_manager"),
			MongoCollection: src.getEnv("MONGO_COLLECTION", "tasks"),
			StoreTimeout:    src.getEnvAsDuration("STORE_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Enabled:      src.getEnvAsBool("CACHE_ENABLED", false),
			Host:         src.getEnv("REDIS_HOST", "localhost"),
			Port:         src.getEnv("REDIS_PORT", "6379"),
			Password:     src.getEnv("REDIS_PASSWORD", ""),
			DB:           src.getEnvAsInt("REDIS_DB", 0),
			PoolSize:     src.getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: src.getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
			MaxRetries:   src.getEnvAsInt("REDIS_MAX_RETRIES", 3),
			DialTimeout:  src.getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  src.getEnvAsDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: src.getEnvAsDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			TaskTTL:      src.getEnvAsDuration("CACHE_TTL", 30*time.Minute),
			ListTTL:      src.getEnvAsDuration("CACHE_LIST_TTL", 5*time.Minute),
		},
		Auth: AuthConfig{
			Enabled:      src.getEnvAsBool("AUTH_ENABLED", false),
			Domain:       src.getEnv("AUTH_DOMAIN", ""),
			Issuer:       src.getEnv("AUTH_ISSUER", ""),
			Audience:     src.getEnv("AUTH_AUDIENCE", ""),
			Algorithm:    strings.ToUpper(src.getEnv("AUTH_ALGORITHM", "RS256")),
			JWKSURL:      src.getEnv("AUTH_JWKS_URL", ""),
			JWKSCacheTTL: src.getEnvAsDuration("AUTH_JWKS_CACHE_TTL", 10*time.Minute),
			JWTSecret:    src.getEnv("JWT_SECRET", defaultJWTSecret),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(src.getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		},
		RateLimit: RateLimitConfig{
			Enabled:         src.getEnvAsBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMin:  src.getEnvAsInt("RATE_LIMIT_RPM", 100),
			BurstSize:       src.getEnvAsInt("RATE_LIMIT_BURST", 10),
			CleanupInterval: src.getEnvAsDuration("RATE_LIMIT_CLEANUP", 10*time.Minute),
		},
		Log: LogConfig{
			Level:  src.getEnv("LOG_LEVEL", "info"),
			Format: src.getEnv("LOG_FORMAT", "json"),
		},
	}

	config.Auth.applyDerivedDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks cross-field constraints that defaults alone cannot satisfy.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite, DriverMongo:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Database.Driver == DriverPostgres && c.Database.URL == "" &&
		c.Database.Password == "" && c.IsProduction() {
		return fmt.Errorf("database password is required in production")
	}

	if !c.Auth.Enabled {
		return nil
	}

	if c.Auth.Audience == "" {
		return fmt.Errorf("AUTH_AUDIENCE is required when auth is enabled")
	}

	switch c.Auth.Algorithm {
	case "RS256", "RS384", "RS512":
		if c.Auth.JWKSURL == "" {
			return fmt.Errorf("AUTH_DOMAIN or AUTH_JWKS_URL is required for %s tokens", c.Auth.Algorithm)
		}
	case "HS256":
		if c.Auth.JWTSecret == defaultJWTSecret && c.IsProduction() {
			return fmt.Errorf("JWT secret must be set in production")
		}
	default:
		return fmt.Errorf("unsupported token algorithm %q", c.Auth.Algorithm)
	}

	return nil
}

func (a *AuthConfig) applyDerivedDefaults() {
	if a.Issuer == "" && a.Domain != "" {
		a.Issuer = "https://" + strings.TrimSuffix(strings.TrimPrefix(a.Domain, "https://"), "/") + "/"
	}
	if a.JWKSURL == "" && a.Issuer != "" && strings.HasPrefix(a.Algorithm, "RS") {
		a.JWKSURL = strings.TrimSuffix(a.Issuer, "/") + "/.well-known/jwks.json"
	}
}

func (c *Config) GetDatabaseDSN() string {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.URL != "" {
			return c.Database.URL
		}
		return c.Database.SQLitePath
	case DriverMongo:
		if c.Database.URL != "" {
			return c.Database.URL
		}
		return c.Database.MongoURI
	}

	if c.Database.URL != "" {
		return c.Database.URL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// RedactedDSN hides the password of URL-style DSNs for logging.
func (c *Config) RedactedDSN() string {
	dsn := c.GetDatabaseDSN()
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		return u.Redacted()
	}
	if c.Database.Password != "" {
		return strings.ReplaceAll(dsn, "password="+c.Database.Password, "password=xxxxx")
	}
	return dsn
}

type source struct {
	v *viper.Viper
}

func (s *source) getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(s.v.GetString(key)); value != "" {
		return value
	}
	return defaultValue
}

func (s *source) getEnvAsInt(key string, defaultValue int) int {
	if value := s.getEnv(key, ""); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func (s *source) getEnvAsBool(key string, defaultValue bool) bool {
	if value := s.getEnv(key, ""); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func (s *source) getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := s.getEnv(key, ""); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
