package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lavraseats/lavraseats/config"
	"github.com/lavraseats/lavraseats/events"
	"github.com/lavraseats/lavraseats/llm"
	"github.com/lavraseats/lavraseats/logging"
	"github.com/lavraseats/lavraseats/store"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.LoadConfig()
	logging.Setup("embedder", cfg.Log)

	if !cfg.Nats.Enabled() {
		log.Fatal("embedder needs nats.host to be configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	nc, err := events.Connect(cfg.Nats)
	if err != nil {
		log.Fatal(err)
	}
	defer nc.Close()

	embedder, err := llm.NewEmbedder(ctx, cfg.LLM)
	if err != nil {
		log.Fatal(err)
	}

	pg, err := store.Open(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer pg.Close()

	handler := NewHandler(embedder, pg)

	subjectHandlers := map[string]func(ctx context.Context, msg []byte) error{
		cfg.Nats.RestaurantsSubject: handler.HandleRestaurantCDCMessage,
		cfg.Nats.ReviewsSubject:     handler.HandleReviewCDCMessage,
	}

	slog.Info("Starting embedder", "workers", cfg.Embedder.Workers, "queueSize", cfg.Embedder.QueueSize)

	g, gctx := errgroup.WithContext(ctx)
	pools := make([]*WorkerPool, 0, len(subjectHandlers))
	for subject, h := range subjectHandlers {
		subject := subject
		pool := NewWorkerPool(gctx, subject, cfg.Embedder.Workers, cfg.Embedder.QueueSize, h)
		pools = append(pools, pool)

		g.Go(func() error {
			return nc.Subscribe(gctx, subject, func(d events.Delivery) {
				pool.Submit(gctx, d)
			})
		})
	}

	err = g.Wait()

	for _, pool := range pools {
		pool.Stop()
		pool.Wait()
	}

	if err != nil {
		slog.Error("Shutting down due to error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutting down")
}
