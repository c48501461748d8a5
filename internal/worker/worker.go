package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"storebridge/internal/config"
	"storebridge/internal/logger"
	"storebridge/internal/sync"
)

// Worker consumes ERP change events from Kafka and feeds them through
// the same dispatcher as the HTTP webhook, so both delivery paths
// converge on identical reconciliation behavior.
type Worker struct {
	config     *config.Config
	logger     *logger.Logger
	reader     *kafka.Reader
	dispatcher *sync.Dispatcher
}

func New(cfg *config.Config, log *logger.Logger, dispatcher *sync.Dispatcher) *Worker {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        []string{cfg.KafkaBrokers},
		GroupID:        "storebridge-worker",
		Topic:          cfg.KafkaTopic,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
	})

	return &Worker{
		config:     cfg,
		logger:     log,
		reader:     reader,
		dispatcher: dispatcher,
	}
}

func (w *Worker) Start() {
	w.logger.Info("Worker started, listening for ERP events...")

	for {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		message, err := w.reader.ReadMessage(ctx)
		cancel()

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			w.logger.Error("Failed to read message: %v", err)
			continue
		}

		w.logger.Debug("Received message: %s", string(message.Value))

		var event sync.Event
		if err := json.Unmarshal(message.Value, &event); err != nil {
			w.logger.Error("Failed to parse event: %v", err)
			continue
		}

		if err := w.dispatcher.Handle(context.Background(), event); err != nil {
			w.logger.Error("Failed to process event %s: %v", event.TriggerCode, err)
			continue
		}

		w.logger.Debug("Event processed successfully")
	}
}

func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.reader.Close()
}
