package worker

import (
	"context"

	"github.com/robfig/cron/v3"

	"storebridge/internal/config"
	"storebridge/internal/logger"
	"storebridge/internal/store"
	"storebridge/internal/sync"
)

// Scheduler runs the periodic syncs: a full pass on the configured
// schedule and a cheaper stock-only pass, typically hourly. Quantities
// drift faster than catalog data, so stock gets its own cadence.
type Scheduler struct {
	cron   *cron.Cron
	engine *sync.Engine
	store  *store.Store
	logger *logger.Logger
}

func NewScheduler(cfg *config.Config, engine *sync.Engine, st *store.Store, log *logger.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(),
		engine: engine,
		store:  st,
		logger: log,
	}

	if cfg.FullSyncSchedule != "" {
		_, err := s.cron.AddFunc(cfg.FullSyncSchedule, s.runFullSync)
		if err != nil {
			return nil, err
		}
		log.Info("scheduled full sync: %s", cfg.FullSyncSchedule)
	}

	if cfg.StockSyncSchedule != "" {
		_, err := s.cron.AddFunc(cfg.StockSyncSchedule, s.runStockSync)
		if err != nil {
			return nil, err
		}
		log.Info("scheduled stock sync: %s", cfg.StockSyncSchedule)
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) runFullSync() {
	if _, err := s.engine.RunFullSync(context.Background(), "scheduled"); err != nil {
		s.logger.Error("scheduled full sync failed to start: %v", err)
	}
}

// runStockSync re-derives stock for every cached product without
// touching the rest of the catalog.
func (s *Scheduler) runStockSync() {
	s.logger.Info("scheduled stock sync started")
	products, err := s.store.Products()
	if err != nil {
		s.logger.Error("scheduled stock sync failed to list products: %v", err)
		return
	}
	for _, p := range products {
		if err := s.engine.SyncStockForProduct(context.Background(), p.ExternalID); err != nil {
			s.logger.Error("scheduled stock sync failed for product %d: %v", p.ExternalID, err)
		}
	}
	s.logger.Info("scheduled stock sync finished: %d products", len(products))
}
