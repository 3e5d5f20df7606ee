package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lavraseats/lavraseats/config"
	"github.com/lavraseats/lavraseats/events"
	"github.com/lavraseats/lavraseats/logging"
	"github.com/lavraseats/lavraseats/store"
)

type Store interface {
	RestaurantIDsWithoutEmbedding(ctx context.Context) ([]uint64, error)
	ReviewIDsWithoutEmbedding(ctx context.Context) ([]uint64, error)
	AllRestaurantIDs(ctx context.Context) ([]uint64, error)
	RecomputeAggregate(ctx context.Context, restaurantID uint64) error
}

type Publisher interface {
	Publish(subject string, data []byte) error
}

func main() {
	cfg := config.LoadConfig()
	logging.Setup("backfill", cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := store.Open(cfg)
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}
	defer pg.Close()

	repaired, err := recomputeAggregates(ctx, pg)
	if err != nil {
		log.Fatal("failed to recompute aggregates:", err)
	}

	if !cfg.Nats.Enabled() {
		slog.Info("nats not configured, skipping embedding backfill", "aggregates", repaired)
		return
	}

	nc, err := events.Connect(cfg.Nats)
	if err != nil {
		log.Fatal("failed to connect to nats:", err)
	}
	defer nc.Close()

	restaurants, reviews, err := publishMissing(ctx, pg, nc, cfg.Nats)
	if err != nil {
		log.Fatal(err)
	}

	flushCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := nc.Flush(flushCtx); err != nil {
		slog.Error("not every publish was acknowledged", "err", err)
	}

	slog.Info("backfill complete", "aggregates", repaired, "restaurants", restaurants, "reviews", reviews)
}

// recomputeAggregates rebuilds every restaurant's average and count from its
// reviews, repairing drift left by manual edits.
func recomputeAggregates(ctx context.Context, st Store) (int, error) {
	ids, err := st.AllRestaurantIDs(ctx)
	if err != nil {
		return 0, err
	}

	for _, id := range ids {
		if err := st.RecomputeAggregate(ctx, id); err != nil {
			return 0, err
		}
	}

	return len(ids), nil
}

// publishMissing announces every row without an embedding so the embedder
// picks it up.
func publishMissing(ctx context.Context, st Store, pub Publisher, cfg config.Nats) (int, int, error) {
	restaurantIDs, err := st.RestaurantIDsWithoutEmbedding(ctx)
	if err != nil {
		return 0, 0, err
	}
	slog.Info("found unembedded restaurants", "count", len(restaurantIDs))
	restaurants := publishAll(pub, cfg.RestaurantsSubject, events.TableRestaurants, restaurantIDs)

	reviewIDs, err := st.ReviewIDsWithoutEmbedding(ctx)
	if err != nil {
		return 0, 0, err
	}
	slog.Info("found unembedded reviews", "count", len(reviewIDs))
	reviews := publishAll(pub, cfg.ReviewsSubject, events.TableReviews, reviewIDs)

	return restaurants, reviews, nil
}

func publishAll(pub Publisher, subject, table string, ids []uint64) int {
	published := 0
	for _, id := range ids {
		data, err := events.Encode(events.ChangeEvent{Table: table, Kind: events.KindBackfill, ID: id})
		if err != nil {
			slog.Error("failed to marshal message", "err", err)
			continue
		}
		if err := pub.Publish(subject, data); err != nil {
			slog.Error("failed to publish", "table", table, "id", id, "err", err)
			continue
		}
		published++
	}

	return published
}
