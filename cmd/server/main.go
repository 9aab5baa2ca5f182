package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"

	"github.com/bimasaputra/lendtrack/internal/config"
	"github.com/bimasaputra/lendtrack/internal/database"
	"github.com/bimasaputra/lendtrack/internal/engine"
	"github.com/bimasaputra/lendtrack/internal/events"
	"github.com/bimasaputra/lendtrack/internal/handlers"
	"github.com/bimasaputra/lendtrack/internal/logging"
	"github.com/bimasaputra/lendtrack/internal/middleware"
	"github.com/bimasaputra/lendtrack/internal/routes"
	"github.com/bimasaputra/lendtrack/internal/services"
)

func main() {
	// Structured logging (JSON to stdout)
	logging.Setup()

	cfg := config.Load()

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}

	// Database
	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	pgLogHandler := logging.NewPGHandler(database.DB)
	slog.SetDefault(slog.New(logging.NewMultiHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		pgLogHandler,
	)))

	// Log cleanup (30-day retention)
	cleanupDone := make(chan struct{})
	logging.StartCleanup(database.DB, cleanupDone)

	// Redis: scan streams + realtime channel
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 3*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancelPing()
		slog.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	cancelPing()
	slog.Info("redis connected", "addr", cfg.RedisAddr)

	// Core wiring: publisher -> engine -> ingress paths
	publisher := events.NewPublisher(rdb)

	policy := services.NewPolicyService(database.DB, engine.Policy{
		LateThresholdMinutes: cfg.LateThresholdMinutes,
		BlockDurationMinutes: cfg.BlockDurationMinutes,
	})
	if err := policy.Load(); err != nil {
		slog.Error("failed to load lending policy", "error", err)
		os.Exit(1)
	}

	eng := engine.New(database.DB, publisher, policy, engine.Options{
		AutoRegister: cfg.ScanAutoRegister,
		LockTimeout:  cfg.ScanLockTimeout,
	})

	authService := services.NewAuthService(database.DB, cfg)
	if err := authService.SeedAdmin(); err != nil {
		slog.Error("failed to seed admin account", "error", err)
		os.Exit(1)
	}

	// Handlers
	scanHandler := handlers.NewScanHandler(eng)
	userHandler := handlers.NewUserHandler(database.DB, eng)
	transactionHandler := handlers.NewTransactionHandler(database.DB)
	statsHandler := handlers.NewStatsHandler(database.DB)
	authHandler := handlers.NewAuthHandler(authService)
	policyHandler := handlers.NewPolicyHandler(policy)
	healthHandler := handlers.NewHealthHandler(database.DB, rdb)

	// Sentry error tracking
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      os.Getenv("APP_ENV"),
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: customErrorHandler,
	})

	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		return c.Next()
	})

	routes.Setup(app, cfg, database.DB,
		scanHandler, userHandler, transactionHandler, statsHandler,
		authHandler, policyHandler, healthHandler)

	// Broker ingress: scans arriving over the Redis stream feed the same
	// engine as HTTP scans.
	subCtx, stopSubscriber := context.WithCancel(context.Background())
	subscriber := events.NewSubscriber(rdb, events.SubscriberConfig{
		Group:    cfg.ScanConsumerGroup,
		Consumer: cfg.ScanConsumerName,
		Stream:   events.ScanEventsStream,
		Handler: func(ctx context.Context, msg events.ScanMessage) error {
			_, err := eng.ProcessScan(ctx, engine.ScanEvent{
				UID:        msg.UID,
				ReceivedAt: msg.ReceivedAt,
			})
			switch {
			case errors.Is(err, engine.ErrInvalidUID), errors.Is(err, engine.ErrNoOpenLoan):
				// Redelivery cannot fix a bad payload or a corrupted
				// ledger; the outcome was already published.
				return nil
			default:
				return err
			}
		},
	})
	go func() {
		if err := subscriber.Start(subCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("scan subscriber stopped", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	stopSubscriber()
	close(cleanupDone)
	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if err := app.Shutdown(); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	if err := rdb.Close(); err != nil {
		slog.Error("redis close error", "error", err)
	}
	if sqlDB, err := database.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", "error", err)
		}
	}

	slog.Info("server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
