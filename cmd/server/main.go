// Package main is the entry point for the Versant Hub progress server.
//
// The service owns student level-unlock state for the six Versant modules:
// score-based auto-unlocks fired by the grading pipeline, admin
// authorize/lock overrides, per-student insight reports, and the progress
// event log with its monitoring views.
//
// Architecture follows Clean Architecture / DDD:
//   - Domain: registry, student, attempt, exam, event
//   - Application: progress manager, monitoring, roster import
//   - Infrastructure: MongoDB repositories, Redis cache, gocron jobs
//   - Interface: HTTP REST API
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/versant-edu/versant-hub/config"
	"github.com/versant-edu/versant-hub/internal/application/monitoring"
	"github.com/versant-edu/versant-hub/internal/application/progress"
	"github.com/versant-edu/versant-hub/internal/application/roster"
	"github.com/versant-edu/versant-hub/internal/domain/registry"
	mongostore "github.com/versant-edu/versant-hub/internal/infrastructure/persistence/mongo"
	redisstore "github.com/versant-edu/versant-hub/internal/infrastructure/persistence/redis"
	"github.com/versant-edu/versant-hub/internal/infrastructure/scheduler"
	httpserver "github.com/versant-edu/versant-hub/internal/interface/http"
	"github.com/versant-edu/versant-hub/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.App.Debug,
		Pretty:    !cfg.Observability.LogJSON,
	}).With(
		logger.String("app", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
	)

	log.Info("starting versant hub")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─────────────────────────────────────────────────────────────────────────
	// Level registry
	// ─────────────────────────────────────────────────────────────────────────
	var reg *registry.Registry
	if cfg.Registry.Path != "" {
		reg, err = registry.LoadFromFile(cfg.Registry.Path)
		if err != nil {
			return fmt.Errorf("load level registry: %w", err)
		}
		log.Info("level registry loaded", logger.String("path", cfg.Registry.Path))
	} else {
		reg = registry.Default()
		log.Info("using built-in level registry")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// MongoDB
	// ─────────────────────────────────────────────────────────────────────────
	conn, err := mongostore.Connect(ctx, mongostore.Config{
		URI:            cfg.Mongo.URI,
		Database:       cfg.Mongo.Database,
		ConnectTimeout: cfg.Mongo.ConnectTimeout,
		QueryTimeout:   cfg.Mongo.QueryTimeout,
	})
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	defer func() {
		if err := conn.Close(context.Background()); err != nil {
			log.Warn("mongo disconnect failed", logger.Err(err))
		}
	}()
	log.Info("mongo connected", logger.String("database", cfg.Mongo.Database))

	studentRepo := mongostore.NewStudentRepository(conn)
	attemptRepo := mongostore.NewAttemptRepository(conn)
	eventRepo := mongostore.NewEventRepository(conn)
	examRepo := mongostore.NewExamRepository(conn)

	// ─────────────────────────────────────────────────────────────────────────
	// Redis (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var insightsCache *redisstore.InsightsCache
	var healthCache *redisstore.HealthCache
	if !cfg.Redis.Disabled {
		cache, err := redisstore.NewCache(redisstore.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			// The cache is an optimization; running without it is degraded
			// but correct.
			log.Warn("redis unavailable, insight caching disabled", logger.Err(err))
		} else {
			defer cache.Close()
			insightsCache = redisstore.NewInsightsCache(cache)
			healthCache = redisstore.NewHealthCache(cache)
			log.Info("redis connected", logger.String("addr", cfg.Redis.Host))
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Application services
	// ─────────────────────────────────────────────────────────────────────────
	monitor := monitoring.NewMonitor(eventRepo, studentRepo, log)

	manager := progress.NewManager(studentRepo, attemptRepo, examRepo, reg, monitor, log)
	if insightsCache != nil {
		manager = manager.WithInsightsCache(insightsCache)
	}

	importer := roster.NewImporter(studentRepo, log)

	// ─────────────────────────────────────────────────────────────────────────
	// Maintenance jobs
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Scheduler.Enabled {
		jobs := scheduler.New(monitor, scheduler.Config{
			RetentionDays: cfg.Scheduler.RetentionDays,
			CleanupAt:     cfg.Scheduler.CleanupAt,
			IntegrityAt:   cfg.Scheduler.IntegrityAt,
		}, log)
		if err := jobs.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer jobs.Stop()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// HTTP server
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpserver.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	httpCfg.APIKeys = cfg.HTTP.APIKeys
	httpCfg.MaxUploadBytes = cfg.HTTP.MaxUploadBytes

	deps := httpserver.Dependencies{
		Progress:      manager,
		Monitor:       monitor,
		Importer:      importer,
		Logger:        log,
		HealthChecker: conn,
	}
	if insightsCache != nil {
		deps.InsightsCache = insightsCache
	}
	if healthCache != nil {
		deps.HealthCache = healthCache
	}

	server := httpserver.NewServer(httpCfg, deps)
	errCh := server.StartAsync()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	log.Info("versant hub stopped")
	return nil
}
