package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/territory-studio/engine/internal/events"
	"github.com/territory-studio/engine/internal/persistence"
	"github.com/territory-studio/engine/internal/queue/tasks"
	"github.com/territory-studio/engine/internal/services"
	"github.com/territory-studio/engine/pkg/config"
	"github.com/territory-studio/engine/pkg/logger"
)

func main() {
	cfg := config.MustLoad()
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.RedisAddr == "" {
		log.Fatal("REDIS_ADDR is required for the worker")
	}

	ctx := context.Background()
	backend, err := persistence.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open document store", zap.Error(err))
	}
	defer backend.Close()

	if err := backend.Redis.Ping(ctx).Err(); err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}

	// Changes made by tasks reach API processes through the mirror.
	bus := events.NewBus(log)
	mirror, err := events.NewRedisMirror(backend.Redis, cfg.RedisChannel, log)
	if err != nil {
		log.Fatal("failed to create event mirror", zap.Error(err))
	}
	mirror.Attach(bus)

	ws := services.NewWorkspace(backend.Store, bus, services.Options{})

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		},
		asynq.Config{
			Concurrency: cfg.AsynqConcurrency,
		},
	)

	mux := asynq.NewServeMux()
	tasks.NewRegionTaskHandler(ws).Register(mux)

	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("asynq worker starting", zap.Int("concurrency", cfg.AsynqConcurrency))
		if err := srv.Run(mux); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.L().Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.L().Error("worker stopped with error", zap.Error(err))
	}

	// Allow in-flight tasks to finish gracefully
	srv.Shutdown()
}
