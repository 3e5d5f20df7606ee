package store

import (
	"context"
	"fmt"

	"github.com/lavraseats/lavraseats/models"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm/clause"
)

const (
	SearchLimit         = 10
	ReviewsPerSearchHit = 3
)

func (p *Pg) UpdateRestaurantEmbedding(ctx context.Context, id uint64, vector pgvector.Vector) error {
	return p.db.WithContext(ctx).Model(&models.Restaurant{}).Where("id = ?", id).UpdateColumn("embedding", vector).Error
}

func (p *Pg) UpdateReviewEmbedding(ctx context.Context, id uint64, vector pgvector.Vector) error {
	return p.db.WithContext(ctx).Model(&models.Review{}).Where("id = ?", id).UpdateColumn("embedding", vector).Error
}

func (p *Pg) RestaurantIDsWithoutEmbedding(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	if err := p.db.WithContext(ctx).Model(&models.Restaurant{}).Where("embedding IS NULL").Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("restaurants without embedding: %w", err)
	}
	return ids, nil
}

func (p *Pg) ReviewIDsWithoutEmbedding(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	if err := p.db.WithContext(ctx).Model(&models.Review{}).Where("embedding IS NULL").Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("reviews without embedding: %w", err)
	}
	return ids, nil
}

func (p *Pg) AllRestaurantIDs(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	if err := p.db.WithContext(ctx).Model(&models.Restaurant{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("restaurant ids: %w", err)
	}
	return ids, nil
}

// Search ranks embedded restaurants by cosine similarity to query and attaches
// the closest reviews of each hit.
func (p *Pg) Search(ctx context.Context, query pgvector.Vector, minSimilarity float64) ([]models.SearchHit, error) {
	if p.Dialect() != "postgres" {
		return nil, ErrSearchUnavailable
	}

	var matches []struct {
		models.Restaurant
		Similarity float64
	}
	err := p.db.WithContext(ctx).
		Model(&models.Restaurant{}).
		Select("*, 1 - (embedding <=> ?) AS similarity", query).
		Where("embedding IS NOT NULL").
		Where("1 - (embedding <=> ?) >= ?", query, minSimilarity).
		Order("similarity DESC").
		Limit(SearchLimit).
		Scan(&matches).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query matching restaurants: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	ids := make([]uint64, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}

	var reviews []models.Review
	err = p.db.WithContext(ctx).
		Omit("embedding").
		Where("restaurant_id IN ?", ids).
		Where("embedding IS NOT NULL").
		Order(clause.OrderBy{Expression: clause.Expr{SQL: "embedding <=> ?", Vars: []any{query}}}).
		Limit(SearchLimit * ReviewsPerSearchHit).
		Find(&reviews).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query matching reviews: %w", err)
	}

	byRestaurant := make(map[uint64][]models.Review)
	for _, r := range reviews {
		if len(byRestaurant[r.RestaurantID]) < ReviewsPerSearchHit {
			byRestaurant[r.RestaurantID] = append(byRestaurant[r.RestaurantID], r)
		}
	}

	hits := make([]models.SearchHit, len(matches))
	for i, m := range matches {
		m.Restaurant.Embedding = nil
		hits[i] = models.SearchHit{
			Restaurant: m.Restaurant,
			Similarity: m.Similarity,
			Reviews:    byRestaurant[m.ID],
		}
	}

	return hits, nil
}
