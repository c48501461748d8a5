package main

import (
	"context"
	"log"
	"os"
	"time"

	"storebridge/internal/config"
	"storebridge/internal/database"
	"storebridge/internal/logger"
	"storebridge/internal/services/erp"
	"storebridge/internal/store"
	"storebridge/internal/sync"
)

// One-shot full synchronization, for cron jobs and first-time seeding.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger := logger.New(cfg.LogLevel)

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	client := erp.NewClient(cfg.ERPAPIURL, cfg.ERPAPIKey, time.Duration(cfg.ERPTimeoutMs)*time.Millisecond, cfg.ERPRateLimit, logger)
	transformer := erp.NewTransformer(cfg.CDNBaseURL)
	st := store.New(db.DB, logger)
	engine := sync.NewEngine(client, st, transformer, logger, cfg.ERPPageSize)

	run, err := engine.RunFullSync(context.Background(), "cli")
	if err != nil {
		logger.Fatal("Full sync failed to start: %v", err)
	}
	if run.Errors > 0 {
		logger.Warn("full sync finished with %d item errors", run.Errors)
		os.Exit(1)
	}
}
