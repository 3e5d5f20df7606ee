package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lavraseats/lavraseats/config"
	"github.com/lavraseats/lavraseats/events"
	"github.com/lavraseats/lavraseats/logging"
)

func main() {
	cfg := config.LoadConfig()
	logging.Setup("cdc", cfg.Log)

	if !cfg.Nats.Enabled() {
		log.Fatal("cdc needs nats.host to be configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	nc, err := events.Connect(cfg.Nats)
	if err != nil {
		log.Fatal(err)
	}
	defer nc.Close()

	listener := NewListener(cfg, NewRouter(nc, cfg.Nats))
	defer listener.Close(context.Background())

	if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("listener stopped", "error", err)
		os.Exit(1)
	}

	slog.Info("shutting down")
}
