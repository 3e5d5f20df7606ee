package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/lavraseats/lavraseats/models"
	"github.com/stretchr/testify/require"
)

func names(restaurants []models.Restaurant) []string {
	out := make([]string, len(restaurants))
	for i, r := range restaurants {
		out[i] = r.Name
	}
	return out
}

func TestCreateRestaurantIgnoresAggregate(t *testing.T) {
	ctx := context.Background()
	pg := newTestStore(t)

	r := &models.Restaurant{Name: "Forged", Category: "Pizzaria", AverageScore: 10, ReviewCount: 99}
	require.NoError(t, pg.CreateRestaurant(ctx, r))

	got, err := pg.GetRestaurant(ctx, r.ID)
	require.NoError(t, err)
	require.Zero(t, got.AverageScore)
	require.Zero(t, got.ReviewCount)

	_, err = pg.GetRestaurant(ctx, r.ID+1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateRestaurant(t *testing.T) {
	ctx := context.Background()
	pg := newTestStore(t)
	r := seedRestaurant(t, pg, "Old", "Pizzaria")
	seedReview(t, pg, 1, r.ID, 7)

	name, phone := "New", "(35) 3333-0000"
	got, err := pg.UpdateRestaurant(ctx, r.ID, RestaurantPatch{Name: &name, Phone: &phone})
	require.NoError(t, err)
	require.Equal(t, "New", got.Name)
	require.Equal(t, phone, got.Phone)
	require.Equal(t, "Pizzaria", got.Category)
	require.Equal(t, 7.0, got.AverageScore)
	require.EqualValues(t, 1, got.ReviewCount)

	unchanged, err := pg.UpdateRestaurant(ctx, r.ID, RestaurantPatch{})
	require.NoError(t, err)
	require.Equal(t, "New", unchanged.Name)

	_, err = pg.UpdateRestaurant(ctx, 999, RestaurantPatch{Name: &name})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRestaurantRemovesReviews(t *testing.T) {
	ctx := context.Background()
	pg := newTestStore(t)
	r := seedRestaurant(t, pg, "Gone", "Pizzaria")
	seedReview(t, pg, 1, r.ID, 4)
	seedReview(t, pg, 2, r.ID, 6)

	deleted, err := pg.DeleteRestaurant(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, "Gone", deleted.Name)

	_, err = pg.GetRestaurant(ctx, r.ID)
	require.ErrorIs(t, err, ErrNotFound)

	reviews, err := pg.ListReviews(ctx, r.ID)
	require.NoError(t, err)
	require.Empty(t, reviews)

	_, err = pg.DeleteRestaurant(ctx, r.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListByCategory(t *testing.T) {
	ctx := context.Background()
	pg := newTestStore(t)
	seedRestaurant(t, pg, "Smash", "Hamburgueria")
	seedRestaurant(t, pg, "Sushi", "Japonesa")
	seedRestaurant(t, pg, "Gourmet", "hamburgueria artesanal")
	seedRestaurant(t, pg, "Odd", "100%_vegan")
	seedRestaurant(t, pg, "Beirute", "ÁRABE")
	seedRestaurant(t, pg, "Tigela", "Açaí e Sorvetes")

	tests := []struct {
		category string
		want     []string
	}{
		{category: "hamburgueria", want: []string{"Smash", "Gourmet"}},
		{category: "BURGUER", want: []string{"Smash", "Gourmet"}},
		{category: "japonesa", want: []string{"Sushi"}},
		{category: "", want: []string{"Smash", "Sushi", "Gourmet", "Odd", "Beirute", "Tigela"}},
		{category: "árabe", want: []string{"Beirute"}},
		{category: "Árabe", want: []string{"Beirute"}},
		{category: "AÇAÍ", want: []string{"Tigela"}},
		{category: "açaí", want: []string{"Tigela"}},
		{category: "%", want: []string{"Odd"}},
		{category: "_", want: []string{"Odd"}},
		{category: "vegana", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("category %q", tt.category), func(t *testing.T) {
			got, err := pg.ListByCategory(ctx, tt.category)
			require.NoError(t, err)
			require.Equal(t, tt.want, names(got))
		})
	}
}

func TestRanking(t *testing.T) {
	ctx := context.Background()
	pg := newTestStore(t)

	fewer := seedRestaurant(t, pg, "Fewer", "Pizzaria")
	more := seedRestaurant(t, pg, "More", "Pizzaria")
	low := seedRestaurant(t, pg, "Low", "Pizzaria")
	seedRestaurant(t, pg, "Unreviewed", "Pizzaria")

	seedReview(t, pg, 1, fewer.ID, 9)
	seedReview(t, pg, 1, more.ID, 9)
	seedReview(t, pg, 2, more.ID, 9)
	seedReview(t, pg, 1, low.ID, 2)

	best, err := pg.Ranking(ctx, false)
	require.NoError(t, err)
	require.Equal(t, []string{"More", "Fewer", "Low"}, names(best))

	worst, err := pg.Ranking(ctx, true)
	require.NoError(t, err)
	require.Equal(t, []string{"Low", "More", "Fewer"}, names(worst))
}

func TestRankingLimit(t *testing.T) {
	ctx := context.Background()
	pg := newTestStore(t)

	for i := 0; i < RankingSize+3; i++ {
		r := seedRestaurant(t, pg, fmt.Sprintf("R%02d", i), "Pizzaria")
		seedReview(t, pg, 1, r.ID, float64(i%10))
	}

	best, err := pg.Ranking(ctx, false)
	require.NoError(t, err)
	require.Len(t, best, RankingSize)
	for i := 1; i < len(best); i++ {
		require.GreaterOrEqual(t, best[i-1].AverageScore, best[i].AverageScore)
	}
}

func TestFilter(t *testing.T) {
	ctx := context.Background()
	pg := newTestStore(t)

	a := seedRestaurant(t, pg, "A", "Pizzaria")
	b := seedRestaurant(t, pg, "B", "Pizzaria")
	c := seedRestaurant(t, pg, "C", "Japonesa")
	seedReview(t, pg, 1, a.ID, 3)
	seedReview(t, pg, 1, b.ID, 8)
	seedReview(t, pg, 1, c.ID, 9)

	desc, err := pg.Filter(ctx, "pizza", false)
	require.NoError(t, err)
	require.Equal(t, []string{"B", "A"}, names(desc))

	d := seedRestaurant(t, pg, "D", "ÁRABE")
	seedReview(t, pg, 1, d.ID, 6)
	arabe, err := pg.Filter(ctx, "árabe", false)
	require.NoError(t, err)
	require.Equal(t, []string{"D"}, names(arabe))

	asc, err := pg.Filter(ctx, "PIZZA", true)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, names(asc))

	all, err := pg.Filter(ctx, "", false)
	require.NoError(t, err)
	require.Equal(t, []string{"C", "B", "D", "A"}, names(all))
}
