package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lavraseats/lavraseats/analysis"
	"github.com/lavraseats/lavraseats/config"
	"github.com/lavraseats/lavraseats/events"
	"github.com/lavraseats/lavraseats/llm"
	"github.com/lavraseats/lavraseats/logging"
	"github.com/lavraseats/lavraseats/store"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.LoadConfig()
	logging.Setup("api", cfg.Log)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := store.Open(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer pg.Close()

	if err := pg.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	client, err := llm.NewFromConfig(ctx, cfg.LLM)
	if err != nil {
		log.Fatal(err)
	}

	var embedder llm.Embedder
	if pg.Dialect() == "postgres" {
		embedder, err = llm.NewEmbedder(ctx, cfg.LLM)
		if err != nil {
			log.Fatal(err)
		}
	}

	gen := llm.DefaultsFromConfig(cfg.LLM)
	handler := NewHandler(
		pg,
		analysis.NewScorer(client, gen),
		analysis.NewMatcher(pg, client, gen),
		embedder,
		cfg.Uploads,
	)

	g, gctx := errgroup.WithContext(ctx)

	var feed *Feed
	if cfg.Nats.Enabled() {
		nc, err := events.Connect(cfg.Nats)
		if err != nil {
			log.Fatal(err)
		}
		defer nc.Close()

		feed = NewFeed()
		g.Go(func() error {
			return nc.Listen(gctx, cfg.Nats.ReviewsSubject, func(data []byte) {
				relayReview(gctx, pg, feed, data)
			})
		})
	}

	server := NewServer(cfg, handler, pg, NewTokens(cfg.Auth), feed)
	server.health = func() error {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return pg.Ping(pingCtx)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		slog.Info("api listening", "addr", srv.Addr, "database", pg.Dialect(), "llm", client.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("api stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutting down")
}
