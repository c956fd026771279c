package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Antonioedwardsd/devlab/internal/config"
	"github.com/Antonioedwardsd/devlab/internal/handlers"
	"github.com/Antonioedwardsd/devlab/internal/middleware"
	"github.com/Antonioedwardsd/devlab/internal/monitoring"
	"github.com/Antonioedwardsd/devlab/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// TaskCollections are the /api sub-paths the task endpoints are bound under.
var TaskCollections = []string{"/tasks", "/todos"}

type Options struct {
	Config      *config.Config
	Logger      *slog.Logger
	TaskService services.TaskService
	// Verifier guards /api when set.
	Verifier middleware.TokenVerifier
	Monitor  *monitoring.Monitor
}

// New builds the HTTP engine. Middleware runs in the order recovery,
// request logging, metrics, CORS, rate limiting, then authentication on /api.
func New(opts Options) *gin.Engine {
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	monitor := opts.Monitor
	if monitor == nil {
		monitor = monitoring.NewMonitor(logger)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		middleware.RecoveryWithLog(logger),
		middleware.RequestLogger(logger),
		monitor.Middleware(),
		cors.New(corsConfig(cfg.CORS)),
	)
	if cfg.RateLimit.Enabled {
		engine.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMin,
			Burst:             cfg.RateLimit.BurstSize,
			IdleTTL:           cfg.RateLimit.CleanupInterval,
		}))
	}

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	engine.GET("/", handlers.Welcome)
	monitor.RegisterRoutes(engine)

	api := engine.Group("/api")
	if opts.Verifier != nil {
		api.Use(middleware.Authenticate(opts.Verifier, logger))
		api.GET("/protected", handlers.Protected)
	}

	taskHandler := handlers.NewTaskHandler(opts.TaskService, logger)
	for _, path := range TaskCollections {
		taskHandler.RegisterRoutes(api.Group(path))
	}

	return engine
}

func corsConfig(cfg config.CORSConfig) cors.Config {
	corsCfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			corsCfg.AllowAllOrigins = true
			corsCfg.AllowCredentials = false
			return corsCfg
		}
	}
	if len(cfg.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
		return corsCfg
	}

	corsCfg.AllowOrigins = cfg.AllowedOrigins
	return corsCfg
}
