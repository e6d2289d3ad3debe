package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/territory-studio/engine/internal/api"
	"github.com/territory-studio/engine/internal/api/handlers"
	"github.com/territory-studio/engine/internal/events"
	"github.com/territory-studio/engine/internal/persistence"
	"github.com/territory-studio/engine/internal/queue/tasks"
	"github.com/territory-studio/engine/internal/services"
	"github.com/territory-studio/engine/pkg/config"
	"github.com/territory-studio/engine/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.MustLoad()

	// Initialize logger
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	log.Info("Starting territory engine",
		zap.String("env", cfg.AppEnv),
		zap.String("addr", cfg.HTTPAddr),
		zap.String("storage", cfg.StorageDriver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := persistence.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to open document store", zap.Error(err))
	}
	defer backend.Close()

	bus := events.NewBus(log)
	ws := services.NewWorkspace(backend.Store, bus, services.Options{})
	if err := ws.Load(ctx); err != nil {
		log.Fatal("Failed to load document", zap.Error(err))
	}

	var (
		queue  tasks.Enqueuer
		mirror *events.RedisMirror
	)
	if backend.Redis != nil {
		mirror, err = events.NewRedisMirror(backend.Redis, cfg.RedisChannel, log)
		if err != nil {
			log.Fatal("Failed to create event mirror", zap.Error(err))
		}
		mirror.Attach(bus)

		client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer client.Close()
		queue = client
	} else {
		log.Warn("REDIS_ADDR not set: events stay in-process and simplification runs inline")
	}

	router := api.NewRouter(api.Dependencies{
		CORSOrigins:        cfg.CORSOrigins,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
		HealthHandler:      handlers.NewHealthHandler(handlers.Check{Name: "store", Fn: backend.Ping}),
		RegionsHandler:     handlers.NewRegionsHandler(ws, queue, cfg.SimplifyEpsilon),
		TerritoriesHandler: handlers.NewTerritoriesHandler(ws),
		GroupsHandler:      handlers.NewGroupsHandler(ws),
		DocumentHandler:    handlers.NewDocumentHandler(ws, backend.Revisions),
		EventsHandler:      handlers.NewEventsHandler(bus),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if mirror != nil {
		reload := make(chan struct{}, 1)
		err := events.Listen(gctx, backend.Redis, cfg.RedisChannel, log, func(ev events.Event) {
			if ev.Origin == mirror.Origin() {
				return
			}
			select {
			case reload <- struct{}{}:
			default:
			}
		})
		if err != nil {
			log.Error("event listener unavailable, remote changes need a restart", zap.Error(err))
		} else {
			g.Go(func() error {
				for {
					select {
					case <-gctx.Done():
						return nil
					case <-reload:
						if err := ws.Load(events.WithoutMirror(gctx)); err != nil {
							log.Error("reload after remote change failed", zap.Error(err))
						}
					}
				}
			})
		}
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := ws.Save(shutdownCtx); err != nil {
			log.Error("final save failed", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("server exited gracefully")
}
