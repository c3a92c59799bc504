package main

// @title           Stream Gateway API
// @version         1.0
// @description     Authenticated real-time event streaming over WebSocket
// @host            localhost:8080
// @BasePath        /api/v1
// @schemes         http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stream-gateway/internal/adapters/kafka"
	"stream-gateway/internal/api/handlers"
	"stream-gateway/internal/api/routes"
	"stream-gateway/internal/auth"
	"stream-gateway/internal/config"
	"stream-gateway/internal/database"
	"stream-gateway/internal/ingest"
	"stream-gateway/internal/repository"
	"stream-gateway/internal/services"
	"stream-gateway/internal/websocket"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	flags := config.Flags("server")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.LoadConfig(flags)
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(cfg.Log))
	slog.Info("Starting stream gateway", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Identity store
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		return err
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			return err
		}
	}
	identityRepo := repository.NewIdentityRepository(db)

	table := auth.DefaultPermissionTable()
	if len(cfg.Authz.RoleStreams) > 0 {
		table = auth.NewPermissionTable(cfg.Authz.RoleStreams)
		slog.Info("Using configured role permissions", "roles", table.Roles())
	}
	authorizer := auth.NewAuthorizer(identityRepo, table)
	validator := auth.NewTokenValidator(cfg.JWT.Secret, clock.New())

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	healthChecks := map[string]handlers.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}

	var hooks []websocket.LifecycleHook
	var redisService *services.RedisService
	var redisClient *database.RedisClient
	if cfg.Redis.Enabled {
		redisClient, err = database.NewRedisConnection(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		redisService = services.NewRedisService(redisClient, cfg.Redis.PresenceTTL, clock.New())
		hooks = append(hooks, redisService)
		healthChecks["redis"] = redisClient.Ping
	}

	if cfg.Kafka.AuditEnable {
		producer, err := kafka.InitKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.ClientID)
		if err != nil {
			return err
		}
		audit := kafka.NewAuditPublisher(producer, cfg.Kafka.AuditTopic)
		defer audit.Close()
		hooks = append(hooks, audit)
	}

	hub := websocket.NewHub(hubSettings(cfg), validator, authorizer,
		websocket.WithMetrics(websocket.NewMetrics(registry)),
		websocket.WithHooks(hooks...),
	)

	routerOpts := routes.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		Topics:           auth.AllStreams(),
		Authorizer:       authorizer,
		AuthzTimeout:     cfg.Authz.LookupTimeout,
		TriggerRateLimit: cfg.Server.TriggerRateLimit,
		Gatherer:         registry,
		HealthChecks:     healthChecks,
	}
	if redisService != nil {
		routerOpts.RateLimiter = redisService
		routerOpts.Presence = redisService
	}
	router := routes.NewRouter(hub, validator, routerOpts)
	router.SetupRoutes()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(gctx)
	})

	g.Go(func() error {
		slog.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed to start: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server forced to shutdown", "error", err)
		}
		return nil
	})

	if cfg.Kafka.IngestEnable {
		reader := ingest.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.IngestTopic, cfg.Kafka.GroupID)
		consumer := ingest.NewKafkaConsumer(reader, hub)
		g.Go(func() error {
			return consumer.Run(gctx)
		})
	}

	if redisService != nil && cfg.Redis.IngestChannel != "" {
		subscriber := ingest.NewRedisSubscriber(redisService, cfg.Redis.IngestChannel, hub)
		g.Go(func() error {
			return subscriber.Run(gctx)
		})
	}

	err = g.Wait()
	slog.Info("Server stopped")
	return err
}

func hubSettings(cfg *config.Config) websocket.Settings {
	return websocket.Settings{
		SweepInterval:     cfg.Liveness.SweepInterval,
		PingInterval:      cfg.Liveness.PingInterval,
		Timeout:           cfg.Liveness.Timeout,
		WriteWait:         cfg.Liveness.WriteWait,
		MaxMessageSize:    cfg.Liveness.MaxMessageSize,
		SendBuffer:        cfg.Liveness.SendBuffer,
		AuthzTimeout:      cfg.Authz.LookupTimeout,
		HeartbeatInterval: cfg.Liveness.HeartbeatInterval,
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
