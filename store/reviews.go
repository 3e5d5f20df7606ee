package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/lavraseats/lavraseats/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (p *Pg) ReviewExists(ctx context.Context, userID, restaurantID uint64) (bool, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Model(&models.Review{}).
		Where("user_id = ? AND restaurant_id = ?", userID, restaurantID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check review: %w", err)
	}

	return count > 0, nil
}

// InsertReview stores review and folds its score into the restaurant
// aggregate in one transaction. The restaurant row is locked first so
// concurrent inserts for the same restaurant recompute one after another.
func (p *Pg) InsertReview(ctx context.Context, review *models.Review) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockRestaurant(tx, review.RestaurantID); err != nil {
			return err
		}

		if err := tx.Omit("embedding", "Restaurant").Create(review).Error; err != nil {
			if isDuplicate(err) {
				return ErrDuplicateReview
			}
			return fmt.Errorf("insert review: %w", err)
		}

		return recompute(tx, review.RestaurantID)
	})
}

// RecomputeAggregate rebuilds the average and count of one restaurant from
// its stored reviews.
func (p *Pg) RecomputeAggregate(ctx context.Context, restaurantID uint64) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockRestaurant(tx, restaurantID); err != nil {
			return err
		}
		return recompute(tx, restaurantID)
	})
}

func (p *Pg) UpdateAggregate(ctx context.Context, restaurantID uint64, average float64, count int64) error {
	return updateAggregate(p.db.WithContext(ctx), restaurantID, average, count)
}

func lockRestaurant(tx *gorm.DB, id uint64) error {
	var locked models.Restaurant
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		First(&locked, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: restaurant %d", ErrConsistency, id)
	}
	if err != nil {
		return fmt.Errorf("lock restaurant %d: %w", id, err)
	}

	return nil
}

func recompute(tx *gorm.DB, restaurantID uint64) error {
	var agg struct {
		Average float64
		Total   int64
	}
	err := tx.Model(&models.Review{}).
		Select("COALESCE(AVG(score), 0) AS average, COUNT(*) AS total").
		Where("restaurant_id = ?", restaurantID).
		Scan(&agg).Error
	if err != nil {
		return fmt.Errorf("aggregate reviews of restaurant %d: %w", restaurantID, err)
	}

	return updateAggregate(tx, restaurantID, agg.Average, agg.Total)
}

func updateAggregate(db *gorm.DB, restaurantID uint64, average float64, count int64) error {
	res := db.Model(&models.Restaurant{}).
		Where("id = ?", restaurantID).
		Updates(map[string]any{"average_score": average, "review_count": count})
	if res.Error != nil {
		return fmt.Errorf("update aggregate of restaurant %d: %w", restaurantID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: restaurant %d", ErrConsistency, restaurantID)
	}

	return nil
}

func (p *Pg) GetReview(ctx context.Context, id uint64) (*models.Review, error) {
	var review models.Review
	if err := p.db.WithContext(ctx).Omit("embedding").First(&review, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &review, nil
}

func (p *Pg) ListReviews(ctx context.Context, restaurantID uint64) ([]models.Review, error) {
	var reviews []models.Review
	err := p.db.WithContext(ctx).
		Omit("embedding").
		Where("restaurant_id = ?", restaurantID).
		Order("id").
		Find(&reviews).Error
	if err != nil {
		return nil, fmt.Errorf("list reviews of restaurant %d: %w", restaurantID, err)
	}
	return reviews, nil
}

func (p *Pg) ListAllReviews(ctx context.Context) ([]models.Review, error) {
	var reviews []models.Review
	if err := p.db.WithContext(ctx).Omit("embedding").Preload("Restaurant").Order("id DESC").Find(&reviews).Error; err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}

func (p *Pg) ListReviewsByAuthor(ctx context.Context, userID uint64) ([]models.Review, error) {
	var reviews []models.Review
	err := p.db.WithContext(ctx).
		Omit("embedding").
		Preload("Restaurant").
		Where("user_id = ?", userID).
		Order("id DESC").
		Find(&reviews).Error
	if err != nil {
		return nil, fmt.Errorf("list reviews of user %d: %w", userID, err)
	}
	return reviews, nil
}

func (p *Pg) ReviewByAuthorAndRestaurant(ctx context.Context, userID, restaurantID uint64) (*models.Review, error) {
	var review models.Review
	err := p.db.WithContext(ctx).
		Omit("embedding").
		Preload("Restaurant").
		Where("user_id = ? AND restaurant_id = ?", userID, restaurantID).
		First(&review).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &review, nil
}

// ListReviewsForRestaurants returns at most limit reviews of the given
// restaurants, lowest id first.
func (p *Pg) ListReviewsForRestaurants(ctx context.Context, restaurantIDs []uint64, limit int) ([]models.Review, error) {
	if len(restaurantIDs) == 0 || limit <= 0 {
		return nil, nil
	}

	var reviews []models.Review
	err := p.db.WithContext(ctx).
		Omit("embedding").
		Where("restaurant_id IN ?", restaurantIDs).
		Order("id").
		Limit(limit).
		Find(&reviews).Error
	if err != nil {
		return nil, fmt.Errorf("list candidate reviews: %w", err)
	}
	return reviews, nil
}
