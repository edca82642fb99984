// Command api is the Jariyo turnover detection API server.
//
// Usage:
//
//	jariyo-api
//	API_PORT=8080 jariyo-api

// @title Jariyo Data API
// @version 1.0.0
// @description Turnover detection service for childcare facilities: ingests normalized facility observations, diffs them against history, and alerts subscribers when capacity opens up.
// @host localhost:8000
// @BasePath /api/v1
// @schemes http https
// @contact.name Jariyo
// @license.name MIT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/jariyo/jariyo-data/internal/api"
	"github.com/jariyo/jariyo-data/internal/api/handler"
	"github.com/jariyo/jariyo-data/internal/cache"
	"github.com/jariyo/jariyo-data/internal/config"
	"github.com/jariyo/jariyo-data/internal/db"
	"github.com/jariyo/jariyo-data/internal/detect"
	"github.com/jariyo/jariyo-data/internal/dispatch"
	"github.com/jariyo/jariyo-data/internal/listener"
	"github.com/jariyo/jariyo-data/internal/maintenance"
	"github.com/jariyo/jariyo-data/internal/snapshot"

	_ "github.com/jariyo/jariyo-data/docs" // swagger docs
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Connect to database
	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)

	// Stores
	snapshots := snapshot.NewPGStore(pool.Pool)
	alerts := detect.NewPGStore(pool.Pool)

	// Email dispatcher (if SMTP is configured)
	var dispatcher detect.Dispatcher
	if sender := dispatch.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.SMTPUsername, cfg.SMTPPassword); sender != nil {
		d := dispatch.New(sender, alerts, cfg.DispatchBuffer, logger)
		go d.Run(ctx)
		dispatcher = d
		logger.Info("Alert email dispatcher started", "smtp_host", cfg.SMTPHost)
	} else {
		logger.Info("Alert email dispatcher disabled (no SMTP_HOST)")
	}

	// Core pipeline
	differ := snapshot.NewDiffer(snapshots, snapshots, logger)
	detector := detect.New(snapshots, alerts, alerts, dispatcher,
		cfg.DetectionLookback, cfg.DedupWindow, logger)

	// Initialize cache
	appCache := cache.New(cfg.CacheEnabled)
	logger.Info("Cache initialized", "enabled", cfg.CacheEnabled)

	// Start LISTEN/NOTIFY consumer for snapshot-triggered detection
	go listener.Start(ctx, cfg.DatabaseURL, detector, logger)

	// Start maintenance tickers (scheduled sweep, retention cleanup)
	go maintenance.Start(ctx, detector, snapshots, alerts, maintenance.Config{
		SweepInterval:   cfg.SweepInterval,
		CleanupInterval: cfg.CleanupInterval,
		AlertRetention:  cfg.AlertRetention,
		ChangeRetention: cfg.ChangeRetention,
	}, logger)

	// Create router
	h := handler.New(handler.Deps{
		Pool:      pool,
		Cache:     appCache,
		Config:    cfg,
		Differ:    differ,
		Detector:  detector,
		Snapshots: snapshots,
		Alerts:    alerts,
	})
	router := api.NewRouter(h, cfg)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting Jariyo Data API",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
