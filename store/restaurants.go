package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/lavraseats/lavraseats/models"
	"golang.org/x/text/cases"
	"gorm.io/gorm"
)

const RankingSize = 10

// RestaurantPatch holds the editable restaurant columns. Nil fields are left
// untouched; the derived aggregate columns are not part of it.
type RestaurantPatch struct {
	Name        *string
	Description *string
	Category    *string
	Address     *string
	Phone       *string
	Poster      *string
}

func (p RestaurantPatch) columns() map[string]any {
	cols := map[string]any{}
	set := func(name string, v *string) {
		if v != nil {
			cols[name] = *v
		}
	}
	set("name", p.Name)
	set("description", p.Description)
	set("category", p.Category)
	set("address", p.Address)
	set("phone", p.Phone)
	set("poster", p.Poster)

	return cols
}

func (p *Pg) CreateRestaurant(ctx context.Context, r *models.Restaurant) error {
	r.AverageScore = 0
	r.ReviewCount = 0
	if err := p.db.WithContext(ctx).Omit("embedding").Create(r).Error; err != nil {
		return fmt.Errorf("create restaurant: %w", err)
	}
	return nil
}

func (p *Pg) GetRestaurant(ctx context.Context, id uint64) (*models.Restaurant, error) {
	var restaurant models.Restaurant
	if err := p.db.WithContext(ctx).Omit("embedding").First(&restaurant, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}

	return &restaurant, nil
}

// UpdateRestaurant applies patch and returns the stored row.
func (p *Pg) UpdateRestaurant(ctx context.Context, id uint64, patch RestaurantPatch) (*models.Restaurant, error) {
	cols := patch.columns()
	if len(cols) > 0 {
		// Clearing the embedding lets the CDC pipeline pick the row up again.
		cols["embedding"] = gorm.Expr("NULL")
		res := p.db.WithContext(ctx).Model(&models.Restaurant{}).Where("id = ?", id).Updates(cols)
		if res.Error != nil {
			return nil, fmt.Errorf("update restaurant %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}

	return p.GetRestaurant(ctx, id)
}

// DeleteRestaurant removes the restaurant and its reviews and returns the
// deleted row so callers can clean up its poster.
func (p *Pg) DeleteRestaurant(ctx context.Context, id uint64) (*models.Restaurant, error) {
	var deleted models.Restaurant
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("embedding").First(&deleted, "id = ?", id).Error; err != nil {
			return notFound(err)
		}
		if err := tx.Where("restaurant_id = ?", id).Delete(&models.Review{}).Error; err != nil {
			return fmt.Errorf("delete reviews of restaurant %d: %w", id, err)
		}
		if err := tx.Delete(&models.Restaurant{}, id).Error; err != nil {
			return fmt.Errorf("delete restaurant %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &deleted, nil
}

func (p *Pg) ListRestaurants(ctx context.Context) ([]models.Restaurant, error) {
	var restaurants []models.Restaurant
	if err := p.db.WithContext(ctx).Omit("embedding").Order("id").Find(&restaurants).Error; err != nil {
		return nil, fmt.Errorf("list restaurants: %w", err)
	}
	return restaurants, nil
}

// ListByCategory returns restaurants whose category contains category,
// ignoring case. An empty category matches every restaurant.
func (p *Pg) ListByCategory(ctx context.Context, category string) ([]models.Restaurant, error) {
	restaurants, err := p.findInCategory(p.db.WithContext(ctx).Omit("embedding").Order("id"), category)
	if err != nil {
		return nil, fmt.Errorf("list restaurants by category: %w", err)
	}
	return restaurants, nil
}

// findInCategory runs q narrowed to categories containing category. Postgres
// matches with ILIKE; SQLite's LOWER only folds ASCII, so there the rows are
// folded and matched here, keeping q's order.
func (p *Pg) findInCategory(q *gorm.DB, category string) ([]models.Restaurant, error) {
	filterHere := category != "" && p.Dialect() != "postgres"
	if category != "" && !filterHere {
		q = q.Where(`category ILIKE ? ESCAPE '\'`, containsPattern(category))
	}

	var restaurants []models.Restaurant
	if err := q.Find(&restaurants).Error; err != nil {
		return nil, err
	}
	if !filterHere {
		return restaurants, nil
	}

	fold := cases.Fold()
	needle := fold.String(category)
	matched := restaurants[:0]
	for _, r := range restaurants {
		if strings.Contains(fold.String(r.Category), needle) {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

// Ranking returns the RankingSize best (or worst) rated restaurants among
// those with at least one review. Ties go to the one with more reviews.
func (p *Pg) Ranking(ctx context.Context, worst bool) ([]models.Restaurant, error) {
	order := "average_score DESC"
	if worst {
		order = "average_score ASC"
	}

	var restaurants []models.Restaurant
	err := p.db.WithContext(ctx).
		Omit("embedding").
		Where("review_count > 0").
		Order(order).
		Order("review_count DESC").
		Order("id").
		Limit(RankingSize).
		Find(&restaurants).Error
	if err != nil {
		return nil, fmt.Errorf("ranking: %w", err)
	}

	return restaurants, nil
}

// Filter narrows by category (contains, case-insensitive) and sorts by the
// average score. ascending=false puts the best rated first.
func (p *Pg) Filter(ctx context.Context, category string, ascending bool) ([]models.Restaurant, error) {
	order := "average_score DESC"
	if ascending {
		order = "average_score ASC"
	}

	restaurants, err := p.findInCategory(p.db.WithContext(ctx).Omit("embedding").Order(order).Order("id"), category)
	if err != nil {
		return nil, fmt.Errorf("filter restaurants: %w", err)
	}

	return restaurants, nil
}
