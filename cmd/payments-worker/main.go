// cmd/payments-worker/main.go
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/unison-payments/internal/app"
	"github.com/example/unison-payments/internal/config"
	"github.com/example/unison-payments/internal/logging"
	"github.com/example/unison-payments/internal/queue"
)

// payments-worker relays payment events from Kafka to the context service.
func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Fatalf("[payments-worker] load config: %v", err)
	}
	logger := logging.New(cfg.Logging)

	if err := run(cfg, logger); err != nil {
		log.Fatalf("[payments-worker] %v", err)
	}
	logger.Info("payments-worker stopped")
}

func run(cfg config.Config, logger *slog.Logger) error {
	r := queue.NewReader(cfg.Events.Brokers, cfg.Events.Topic, cfg.Events.GroupID)
	defer r.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("payments-worker started", "topic", cfg.Events.Topic, "group", cfg.Events.GroupID)
	return queue.Relay(ctx, r, app.ContextEventSink(cfg), logger)
}
