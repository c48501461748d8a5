package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storebridge/internal/config"
	"storebridge/internal/database"
	"storebridge/internal/logger"
	"storebridge/internal/services/erp"
	"storebridge/internal/store"
	"storebridge/internal/sync"
	"storebridge/internal/worker"
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

	client := erp.NewClient(cfg.ERPAPIURL, cfg.ERPAPIKey, time.Duration(cfg.ERPTimeoutMs)*time.Millisecond, cfg.ERPRateLimit, logger)
	transformer := erp.NewTransformer(cfg.CDNBaseURL)
	st := store.New(db.DB, logger)
	engine := sync.NewEngine(client, st, transformer, logger, cfg.ERPPageSize)
	dispatcher := sync.NewDispatcher(engine, logger)

	// Initialize worker and scheduler
	w := worker.New(cfg, logger, dispatcher)
	scheduler, err := worker.NewScheduler(cfg, engine, st, logger)
	if err != nil {
		logger.Fatal("Failed to set up scheduler: %v", err)
	}

	logger.Info("Starting worker...")
	go w.Start()
	scheduler.Start()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	scheduler.Stop()
	w.Stop()
}
