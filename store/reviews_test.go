package store

import (
	"context"
	"sync"
	"testing"

	"github.com/lavraseats/lavraseats/models"
	"github.com/stretchr/testify/require"
)

func TestInsertReviewMaintainsMean(t *testing.T) {
	ctx := context.Background()
	pg := newTestStore(t)
	r := seedRestaurant(t, pg, "Cantina", "Italiana")

	scores := []float64{9.5, 2, 6.5, 0, 10}
	var sum float64
	for i, s := range scores {
		seedReview(t, pg, uint64(i+1), r.ID, s)
		sum += s

		got, err := pg.GetRestaurant(ctx, r.ID)
		require.NoError(t, err)
		require.EqualValues(t, i+1, got.ReviewCount)
		require.InDelta(t, sum/float64(i+1), got.AverageScore, 1e-9)
	}
}

func TestInsertReviewDuplicate(t *testing.T) {
	ctx := context.Background()
	pg := newTestStore(t)
	r := seedRestaurant(t, pg, "Cantina", "Italiana")
	seedReview(t, pg, 7, r.ID, 8)

	err := pg.InsertReview(ctx, &models.Review{
		UserID:       7,
		RestaurantID: r.ID,
		Text:         "again",
		Sentiment:    models.Negative,
		Score:        1,
	})
	require.ErrorIs(t, err, ErrDuplicateReview)

	got, err := pg.GetRestaurant(ctx, r.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, got.ReviewCount)
	require.Equal(t, 8.0, got.AverageScore)

	exists, err := pg.ReviewExists(ctx, 7, r.ID)
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = pg.ReviewExists(ctx, 8, r.ID)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestInsertReviewUnknownRestaurant(t *testing.T) {
	ctx := context.Background()
	pg := newTestStore(t)

	err := pg.InsertReview(ctx, &models.Review{UserID: 1, RestaurantID: 404, Text: "x", Sentiment: models.Neutral, Score: 5})
	require.ErrorIs(t, err, ErrConsistency)

	exists, err := pg.ReviewExists(ctx, 1, 404)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestInsertReviewConcurrent(t *testing.T) {
	ctx := context.Background()
	pg := newTestStore(t)
	r := seedRestaurant(t, pg, "Cantina", "Italiana")

	errs := make([]error, 8)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := uint64(i + 1)
			errs[i] = pg.InsertReview(ctx, &models.Review{UserID: user, RestaurantID: r.ID, Text: "t", Sentiment: models.Positive, Score: float64(user)})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	got, err := pg.GetRestaurant(ctx, r.ID)
	require.NoError(t, err)
	require.EqualValues(t, 8, got.ReviewCount)
	require.InDelta(t, 4.5, got.AverageScore, 1e-9)
}

func TestRecomputeAggregateRepairsDrift(t *testing.T) {
	ctx := context.Background()
	pg := newTestStore(t)
	r := seedRestaurant(t, pg, "Cantina", "Italiana")
	seedReview(t, pg, 1, r.ID, 4)
	seedReview(t, pg, 2, r.ID, 6)

	require.NoError(t, pg.UpdateAggregate(ctx, r.ID, 9.9, 42))
	require.NoError(t, pg.RecomputeAggregate(ctx, r.ID))

	got, err := pg.GetRestaurant(ctx, r.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, got.ReviewCount)
	require.Equal(t, 5.0, got.AverageScore)

	require.ErrorIs(t, pg.RecomputeAggregate(ctx, 999), ErrConsistency)
	require.ErrorIs(t, pg.UpdateAggregate(ctx, 999, 1, 1), ErrConsistency)
}

func TestReviewQueries(t *testing.T) {
	ctx := context.Background()
	pg := newTestStore(t)
	a := seedRestaurant(t, pg, "A", "Pizzaria")
	b := seedRestaurant(t, pg, "B", "Japonesa")

	first := seedReview(t, pg, 1, a.ID, 8)
	seedReview(t, pg, 2, a.ID, 6)
	seedReview(t, pg, 1, b.ID, 3)

	t.Run("by restaurant", func(t *testing.T) {
		reviews, err := pg.ListReviews(ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, reviews, 2)
	})

	t.Run("by author with restaurant", func(t *testing.T) {
		reviews, err := pg.ListReviewsByAuthor(ctx, 1)
		require.NoError(t, err)
		require.Len(t, reviews, 2)
		for _, r := range reviews {
			require.NotNil(t, r.Restaurant)
			require.Equal(t, r.RestaurantID, r.Restaurant.ID)
		}
	})

	t.Run("by author and restaurant", func(t *testing.T) {
		review, err := pg.ReviewByAuthorAndRestaurant(ctx, 1, a.ID)
		require.NoError(t, err)
		require.Equal(t, first.ID, review.ID)
		require.Equal(t, "A", review.Restaurant.Name)

		_, err = pg.ReviewByAuthorAndRestaurant(ctx, 3, a.ID)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("all", func(t *testing.T) {
		reviews, err := pg.ListAllReviews(ctx)
		require.NoError(t, err)
		require.Len(t, reviews, 3)
	})

	t.Run("get", func(t *testing.T) {
		review, err := pg.GetReview(ctx, first.ID)
		require.NoError(t, err)
		require.Equal(t, 8.0, review.Score)

		_, err = pg.GetReview(ctx, 12345)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestListReviewsForRestaurants(t *testing.T) {
	ctx := context.Background()
	pg := newTestStore(t)
	a := seedRestaurant(t, pg, "A", "Pizzaria")
	b := seedRestaurant(t, pg, "B", "Pizzaria")
	c := seedRestaurant(t, pg, "C", "Japonesa")

	for user := uint64(1); user <= 5; user++ {
		seedReview(t, pg, user, a.ID, 5)
		seedReview(t, pg, user, b.ID, 5)
		seedReview(t, pg, user, c.ID, 5)
	}

	reviews, err := pg.ListReviewsForRestaurants(ctx, []uint64{a.ID, b.ID}, 4)
	require.NoError(t, err)
	require.Len(t, reviews, 4)
	for i, r := range reviews {
		require.NotEqual(t, c.ID, r.RestaurantID)
		if i > 0 {
			require.Greater(t, r.ID, reviews[i-1].ID)
		}
	}

	reviews, err = pg.ListReviewsForRestaurants(ctx, nil, 100)
	require.NoError(t, err)
	require.Empty(t, reviews)
}
