package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storebridge/internal/api"
	"storebridge/internal/config"
	"storebridge/internal/database"
	"storebridge/internal/logger"
	"storebridge/internal/services/erp"
	"storebridge/internal/store"
	"storebridge/internal/sync"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)

	// Initialize database
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}

	// Wire the sync engine behind the API
	client := erp.NewClient(cfg.ERPAPIURL, cfg.ERPAPIKey, time.Duration(cfg.ERPTimeoutMs)*time.Millisecond, cfg.ERPRateLimit, logger)
	transformer := erp.NewTransformer(cfg.CDNBaseURL)
	st := store.New(db.DB, logger)
	engine := sync.NewEngine(client, st, transformer, logger, cfg.ERPPageSize)
	dispatcher := sync.NewDispatcher(engine, logger)

	// Initialize API server
	server := api.New(cfg, logger, db, engine, dispatcher)

	go func() {
		logger.Info("Starting API server on port " + cfg.APIPort)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Error("Server shutdown failed: %v", err)
	}
	if err := db.Close(); err != nil {
		logger.Error("Database close failed: %v", err)
	}
}
