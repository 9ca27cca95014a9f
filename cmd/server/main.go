package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"script_console/internal/api"
	"script_console/internal/app/execution"
	"script_console/internal/app/service"
	"script_console/internal/app/worker"
	"script_console/internal/common/security"
	"script_console/internal/domain/repository"
	"script_console/internal/platform/config"
	"script_console/internal/platform/database"
	"script_console/internal/platform/logging"
	"script_console/internal/platform/metrics"
	"script_console/internal/platform/pubsub"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// 1. Load Configuration
	config.Load()
	cfg := config.AppConfig

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: cfg.LogOutput})
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	logger.Info("configuration loaded", zap.String("store", cfg.StoreDriver), zap.String("port", cfg.APIPort))

	// 2. Initialize JWT
	security.InitJWT()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Initialize Repositories
	var (
		userRepo     repository.UserRepository
		scriptRepo   repository.ScriptRepository
		activityRepo repository.ActivityRepository
	)
	switch cfg.StoreDriver {
	case "memory":
		userRepo = repository.NewMemoryUserRepository()
		scriptRepo = repository.NewMemoryScriptRepository()
		activityRepo = repository.NewMemoryActivityRepository()
		logger.Warn("using in-memory store, data is lost on restart")
	default:
		db, err := database.Connect(ctx, cfg.DBConnStr, logger)
		if err != nil {
			logger.Fatal("database connection failed", zap.Error(err))
		}
		defer database.Close(logger)
		if err := database.EnsureSchema(ctx, db); err != nil {
			logger.Fatal("schema setup failed", zap.Error(err))
		}
		userRepo = repository.NewPgUserRepository(db)
		scriptRepo = repository.NewPgScriptRepository(db)
		activityRepo = repository.NewPgActivityRepository(db)
	}

	// 4. Execution core
	registry := metrics.NewRegistry()
	hub := execution.NewHub()
	activityService := service.NewActivityService(activityRepo, logger)

	launcher := execution.NewLauncher(execution.LauncherConfig{
		ScriptDir:      cfg.ScriptDir,
		BashPath:       cfg.BashPath,
		PowerShellPath: cfg.PowerShellPath,
		BatchPath:      cfg.BatchPath,
	}, logger)

	opts := execution.Options{
		StopTimeout:   cfg.StopTimeout,
		StopKillGrace: cfg.StopKillGrace,
		NewEstimator:  execution.NewEstimatorFunc(cfg.ProgressEstimator),
	}
	if cfg.ProgressEstimator == "heartbeat" {
		opts.Heartbeat = cfg.ProgressHeartbeat
	}
	controller := execution.NewController(launcher, scriptRepo, hub, activityService, metrics.NewExecution(registry), logger, opts)

	// 5. Initialize Services
	authService := service.NewAuthService(userRepo, activityService)
	scriptService := service.NewScriptService(scriptRepo, activityService, controller)

	// 6. Initialize Router & HTTP Server
	router := api.NewRouter(logger, authService, scriptService, activityService, controller, hub, registry, cfg.WSFrameInterval)

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 7. Optional cross-instance status relay
	if cfg.RedisEnabled {
		rdb, err := pubsub.ConnectRedis(ctx, pubsub.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			logger.Fatal("redis connection failed", zap.Error(err))
		}
		defer pubsub.CloseRedis(logger)

		relay := worker.NewStatusRelay(rdb, hub, cfg.StatusChannel, uuid.NewString(), logger)
		g.Go(func() error { return relay.Start(gctx) })
	}

	// 8. Graceful Shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := controller.Shutdown(shutdownCtx); err != nil {
			logger.Error("stopping running scripts failed", zap.Error(err))
		}
		err := server.Shutdown(shutdownCtx)
		hub.Close()
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return
	}
	logger.Info("server stopped gracefully")
}
