package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/AlibekovAA/user-directory/backend/internal/cache"
	"github.com/AlibekovAA/user-directory/backend/internal/common/bootstrap"
	"github.com/AlibekovAA/user-directory/backend/internal/common/clock"
	commonhttp "github.com/AlibekovAA/user-directory/backend/internal/common/http"
	"github.com/AlibekovAA/user-directory/backend/internal/common/idgen"
	srv "github.com/AlibekovAA/user-directory/backend/internal/common/server"
	"github.com/AlibekovAA/user-directory/backend/internal/common/tasks"
	"github.com/AlibekovAA/user-directory/backend/internal/events"
	"github.com/AlibekovAA/user-directory/backend/internal/outbox"
	"github.com/AlibekovAA/user-directory/backend/internal/outbox/reprocess"
	userhttp "github.com/AlibekovAA/user-directory/backend/internal/user/http"
	"github.com/AlibekovAA/user-directory/backend/internal/user/service"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.NewUserDirApp(ctx)
	if err != nil {
		os.Stderr.WriteString(fmt.Sprintf("failed to start userdir: %v\n", err))
		os.Exit(1)
	}
	defer app.Pool.Close()

	log := app.Log
	cfg := app.Config
	clk := clock.NewRealClock()

	healthChecks := map[string]commonhttp.HealthCheck{
		"database": func(ctx context.Context) error { return app.Pool.Ping(ctx) },
	}

	var userCache cache.Cache = cache.Disabled{}
	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		userCache = cache.NewRedisCache(redisClient, cache.RedisConfig{
			Enabled:       true,
			Retention:     cfg.Cache.Retention,
			Timeout:       cfg.Cache.Timeout,
			RetryAttempts: cfg.Cache.RetryAttempts,
		}, log)
		healthChecks["cache"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		log.Infof("user cache enabled: addr=%s retention=%v", cfg.Cache.Addr, cfg.Cache.Retention)
	} else {
		log.Infof("user cache disabled")
	}

	publisher, err := events.NewPublisher(ctx, cfg.Events, log)
	if err != nil {
		log.Fatalf("failed to initialize %s publisher: %v", cfg.Events.Broker, err)
	}

	outboxService := outbox.NewService(app.OutboxStore, cfg.Outbox.Enabled, clk, log)
	emitter := events.NewEmitter(publisher, outboxService, events.EmitterConfig{
		Timeout:                 cfg.Events.Timeout,
		RetryAttempts:           cfg.Events.RetryAttempts,
		RetryDelay:              cfg.Events.RetryDelay,
		CircuitBreakerThreshold: uint32(cfg.CircuitBreakerThreshold),
		CircuitBreakerReset:     cfg.CircuitBreakerReset,
	}, log)

	queue := tasks.NewQueue(cfg.Tasks.Workers, cfg.Tasks.QueueSize, cfg.Tasks.Timeout, log)

	userService := service.NewUserService(
		service.UserServiceDeps{
			Repo:        app.UserRepo,
			Cache:       userCache,
			Emitter:     emitter,
			Recorder:    outboxService,
			Tasks:       queue,
			IDGenerator: idgen.NewUUIDGenerator(),
			Clock:       clk,
			Log:         log,
		},
		service.UserServiceConfig{
			StorageTimeout:          cfg.RequestTimeout,
			CircuitBreakerThreshold: uint32(cfg.CircuitBreakerThreshold),
			CircuitBreakerReset:     cfg.CircuitBreakerReset,
		},
	)

	scheduler := reprocess.NewScheduler(outboxService, app.UserRepo, emitter, outboxService, reprocess.Config{
		Schedule:    cfg.Outbox.Schedule,
		ItemsPerRun: cfg.Outbox.ItemsPerRun,
	}, log)
	if cfg.Outbox.Enabled {
		if err := scheduler.Start(ctx); err != nil {
			log.Fatalf("failed to start outbox reprocessing: %v", err)
		}
	}

	handler := userhttp.NewHandler(userService, outboxService, scheduler, userhttp.HandlerConfig{
		RequestTimeout: cfg.RequestTimeout,
		HealthChecks:   healthChecks,
	}, log)

	mux := http.NewServeMux()
	mux.Handle("/", handler)
	mux.Handle("/metrics", promhttp.Handler())

	rateLimiter := commonhttp.NewMethodRateLimiter()
	limited := rateLimiter.Middleware(mux)
	rateLimitMiddleware := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/health" || path == "/metrics" {
			mux.ServeHTTP(w, r)
			return
		}
		limited.ServeHTTP(w, r)
	})

	finalHandler := commonhttp.BuildBaseHandler(log, rateLimitMiddleware)

	serverConfig := srv.DefaultServerConfig(cfg.HTTPPort)
	server := srv.NewServer(serverConfig, finalHandler)

	shutdownHooks := []srv.ShutdownHook{
		func(ctx context.Context) error {
			log.Infof("userdir service: stopping outbox reprocessing")
			return scheduler.Stop(ctx)
		},
		func(ctx context.Context) error {
			log.Infof("userdir service: draining background tasks")
			return queue.Shutdown(ctx)
		},
		func(ctx context.Context) error {
			rateLimiter.Stop()
			return publisher.Close()
		},
		func(ctx context.Context) error {
			cancel()
			if redisClient != nil {
				return redisClient.Close()
			}
			return nil
		},
	}

	srv.StartWithGracefulShutdownAndHooks(server, serverConfig, log, "userdir", shutdownHooks)
}
