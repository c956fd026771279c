package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/Antonioedwardsd/devlab/internal/auth"
	"github.com/Antonioedwardsd/devlab/internal/cache"
	"github.com/Antonioedwardsd/devlab/internal/config"
	"github.com/Antonioedwardsd/devlab/internal/logger"
	"github.com/Antonioedwardsd/devlab/internal/middleware"
	"github.com/Antonioedwardsd/devlab/internal/monitoring"
	"github.com/Antonioedwardsd/devlab/internal/repositories"
	"github.com/Antonioedwardsd/devlab/internal/router"
	"github.com/Antonioedwardsd/devlab/internal/services"

	gfshutdown "github.com/gelmium/graceful-shutdown"
)

type application struct {
	cfg      *config.Config
	logger   *slog.Logger
	server   *http.Server
	repo     repositories.TaskRepository
	cache    *cache.RedisCache
	verifier *auth.Verifier
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log, err := logger.Setup(cfg.Log)
	if err != nil {
		slog.Error("failed to set up logger", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.StoreTimeout+5*time.Second)
	app, err := newApplication(ctx, cfg, log)
	cancel()
	if err != nil {
		log.Error("failed to start", "error", err)
		os.Exit(1)
	}

	go func() {
		log.Info("server listening", "addr", app.server.Addr, "environment", cfg.Server.Environment)
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.Server.ShutdownTimeout, app.shutdownOperations())

	exitCode := <-wait
	log.Info("server stopped", "exit_code", exitCode)
	os.Exit(exitCode)
}

// newApplication opens the store and the optional cache and builds the HTTP
// server. Nothing is listening yet when it returns.
func newApplication(ctx context.Context, cfg *config.Config, log *slog.Logger) (*application, error) {
	repo, err := repositories.Open(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open task store: %w", err)
	}

	app := &application{cfg: cfg, logger: log, repo: repo}

	monitor := monitoring.NewMonitor(log)
	monitor.RegisterHealthCheck("store", repo.Ping)

	var taskService services.TaskService = services.NewTaskService(repo, cfg.Database.StoreTimeout, log)

	if cfg.Redis.Enabled {
		app.cache = cache.NewRedisCache(&cache.CacheConfig{
			Addr:         cfg.GetRedisAddr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			Prefix:       cache.DefaultCacheConfig().Prefix,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err := app.cache.Health(ctx); err != nil {
			log.Warn("cache unreachable at startup, serving from the store", "addr", cfg.GetRedisAddr(), "error", err)
		}
		taskService = services.NewCachedTaskService(taskService, app.cache, cfg.Redis.TaskTTL, cfg.Redis.ListTTL, log)
		monitor.RegisterHealthCheck("cache", app.cache.Health)
		monitor.RegisterStats("cache", func() interface{} { return app.cache.Stats() })
	}

	var verifier middleware.TokenVerifier
	if cfg.Auth.Enabled {
		v, err := auth.NewFromConfig(cfg.Auth, nil)
		if err != nil {
			_ = app.close(ctx)
			return nil, fmt.Errorf("failed to configure token verification: %w", err)
		}
		app.verifier = v
		verifier = v
		log.Info("authentication enabled", "issuer", cfg.Auth.Issuer, "audience", cfg.Auth.Audience, "algorithm", cfg.Auth.Algorithm)
	}

	app.server = &http.Server{
		Addr: cfg.GetServerAddr(),
		Handler: router.New(router.Options{
			Config:      cfg,
			Logger:      log,
			TaskService: taskService,
			Verifier:    verifier,
			Monitor:     monitor,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return app, nil
}

// shutdownOperations stops accepting requests first, then releases the cache
// and the store.
func (a *application) shutdownOperations() map[string]gfshutdown.Operation {
	return map[string]gfshutdown.Operation{
		"http-server": func(ctx context.Context) error {
			a.logger.Info("shutting down server")
			if err := a.server.Shutdown(ctx); err != nil {
				return err
			}
			return a.close(ctx)
		},
	}
}

func (a *application) close(ctx context.Context) error {
	var errs []error
	if a.verifier != nil {
		a.verifier.Close()
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	if err := a.repo.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}
