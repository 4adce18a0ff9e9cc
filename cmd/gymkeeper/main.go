package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tendant/gymkeeper/gymkeeper"
	"github.com/tendant/gymkeeper/internal/config"
	"github.com/tendant/gymkeeper/internal/scheduler"
	"github.com/tendant/gymkeeper/pkg/repository"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("failed to load gym timezone", "error", err)
		os.Exit(1)
	}

	var database *repository.Config
	if cfg.StoreDriver == config.StoreDriverPostgres {
		database = &repository.Config{
			Host:         cfg.DBHost,
			Port:         cfg.DBPort,
			User:         cfg.DBUser,
			Password:     cfg.DBPassword,
			DBName:       cfg.DBName,
			SSLMode:      cfg.DBSSLMode,
			MaxOpenConns: cfg.DBMaxOpenConns,
			MaxIdleConns: cfg.DBMaxIdleConns,
		}
	}

	gk, err := gymkeeper.New(gymkeeper.Config{
		CredentialSecret:    cfg.CredentialSecret,
		JWTSecret:           cfg.JWTSecret,
		JWTIssuer:           cfg.JWTIssuer,
		RotationInterval:    cfg.RotationInterval,
		CredentialTolerance: cfg.CredentialTolerance,
		ReplayGuard:         cfg.ReplayGuard,
		ManualCodeAttempts:  cfg.ManualCodeAttempts,
		ManualCodeWindow:    cfg.ManualCodeWindow,
		Location:            loc,
		Locations:           cfg.Locations,
		DefaultCurrency:     cfg.DefaultCurrency,
		StoreTimeout:        cfg.StoreTimeout,
		Database:            database,
		OccupancyNotify:     cfg.OccupancyNotify,
		AMQPURL:             cfg.AMQPURL,
		AMQPExchange:        cfg.AMQPExchange,
		Schedules: scheduler.Schedules{
			Reconcile: cfg.ReconcileSchedule,
			Expire:    cfg.ExpirySchedule,
			Prune:     cfg.PruneSchedule,
		},
		CORSOrigins:     cfg.CORSOrigins,
		MaxBodyBytes:    cfg.MaxBodyBytes,
		RateLimit:       cfg.RateLimit,
		SecurityHeaders: cfg.SecurityHeaders,
		MetricsUser:     cfg.MetricsUser,
		MetricsPassword: cfg.MetricsPassword,
		Logger:          logger,
	})
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer gk.Close()

	if !cfg.HasMetricsAuth() {
		logger.Warn("metrics endpoint is not protected, set METRICS_USER and METRICS_PASSWORD")
	}

	if err := gk.Start(context.Background()); err != nil {
		logger.Error("failed to start background jobs", "error", err)
		os.Exit(1)
	}

	// Create HTTP server. Websocket streams manage their own deadlines.
	addr := fmt.Sprintf("%s:%d", cfg.ServerAddr, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      gk.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", "addr", addr, "store", cfg.StoreDriver, "locations", cfg.Locations)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
