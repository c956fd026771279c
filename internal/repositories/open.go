package repositories

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Antonioedwardsd/devlab/internal/config"
	"github.com/Antonioedwardsd/devlab/internal/database"

	"gorm.io/gorm/logger"
)

// Open connects to the store selected by cfg.Database.Driver and brings its
// schema up to date.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (TaskRepository, error) {
	if log == nil {
		log = slog.Default()
	}

	switch cfg.Database.Driver {
	case config.DriverMongo:
		repo, err := NewMongoTaskRepository(ctx, cfg.GetDatabaseDSN(), cfg.Database.MongoDatabase, cfg.Database.MongoCollection)
		if err != nil {
			return nil, err
		}
		log.Info("connected to task store", "driver", cfg.Database.Driver, "database", cfg.Database.MongoDatabase)
		return repo, nil

	case config.DriverPostgres, config.DriverSQLite:
		pool, err := database.NewDatabasePool(&database.PoolConfig{
			Driver:          cfg.Database.Driver,
			DSN:             cfg.GetDatabaseDSN(),
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
			LogLevel:        gormLogLevel(cfg.Log.Level),
			Logger:          log,
		})
		if err != nil {
			return nil, err
		}
		if err := pool.Migrate(); err != nil {
			_ = pool.Close()
			return nil, err
		}
		log.Info("connected to task store", "driver", cfg.Database.Driver, "dsn", cfg.RedactedDSN())
		return NewGormTaskRepository(pool), nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		return logger.Info
	case "error":
		return logger.Error
	default:
		return logger.Warn
	}
}
