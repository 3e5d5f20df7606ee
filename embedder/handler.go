package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lavraseats/lavraseats/events"
	"github.com/lavraseats/lavraseats/llm"
	"github.com/lavraseats/lavraseats/metrics"
	"github.com/lavraseats/lavraseats/models"
	"github.com/lavraseats/lavraseats/store"
	"github.com/pgvector/pgvector-go"
)

type Store interface {
	GetRestaurant(ctx context.Context, id uint64) (*models.Restaurant, error)
	GetReview(ctx context.Context, id uint64) (*models.Review, error)
	UpdateRestaurantEmbedding(ctx context.Context, id uint64, vector pgvector.Vector) error
	UpdateReviewEmbedding(ctx context.Context, id uint64, vector pgvector.Vector) error
}

type Handler struct {
	embedder llm.Embedder
	store    Store
}

func NewHandler(embedder llm.Embedder, store Store) *Handler {
	return &Handler{
		embedder: embedder,
		store:    store,
	}
}

// HandleRestaurantCDCMessage updates the restaurant vector on receiving a cdc message from nats.
func (h *Handler) HandleRestaurantCDCMessage(ctx context.Context, msg []byte) error {
	ev, err := events.Decode(msg)
	if err != nil {
		return err
	}

	restaurant, err := h.store.GetRestaurant(ctx, ev.ID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Info("restaurant gone before embedding", "id", ev.ID)
		return nil
	}
	if err != nil {
		return err
	}

	return h.embed(ctx, events.TableRestaurants, ev.ID, restaurant.Stringify(), h.store.UpdateRestaurantEmbedding)
}

// HandleReviewCDCMessage updates the review vector on receiving a cdc message from nats.
func (h *Handler) HandleReviewCDCMessage(ctx context.Context, msg []byte) error {
	ev, err := events.Decode(msg)
	if err != nil {
		return err
	}

	review, err := h.store.GetReview(ctx, ev.ID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Info("review gone before embedding", "id", ev.ID)
		return nil
	}
	if err != nil {
		return err
	}

	return h.embed(ctx, events.TableReviews, ev.ID, review.Stringify(), h.store.UpdateReviewEmbedding)
}

func (h *Handler) embed(ctx context.Context, table string, id uint64, text string, save func(context.Context, uint64, pgvector.Vector) error) error {
	vector, err := llm.Embed(ctx, h.embedder, text)
	if err != nil {
		metrics.Embeddings.WithLabelValues(table, "error").Inc()
		return fmt.Errorf("embed %s %d: %w", table, id, err)
	}

	if err := save(ctx, id, pgvector.NewVector(vector)); err != nil {
		metrics.Embeddings.WithLabelValues(table, "error").Inc()
		return fmt.Errorf("store %s %d vector: %w", table, id, err)
	}

	metrics.Embeddings.WithLabelValues(table, "ok").Inc()
	slog.Debug("stored embedding", "table", table, "id", id, "dims", len(vector))

	return nil
}
