package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"unicode/utf8"

	"github.com/lavraseats/lavraseats/llm"
	"github.com/lavraseats/lavraseats/metrics"
	"github.com/lavraseats/lavraseats/models"
)

const (
	MaxIntentLength  = 500
	MaxPromptReviews = 100
	MaxExcerptLength = 300

	MessageBeConcise   = "please be more concise in your request"
	MessageNoMatch     = "could not find a match for your request"
	MessageMatchFailed = "error processing recommendation"
)

var ErrNoRestaurantsInCategory = errors.New("no restaurants in category")

// Catalog is the read side of the store the matcher needs.
type Catalog interface {
	ListByCategory(ctx context.Context, category string) ([]models.Restaurant, error)
	ListReviewsForRestaurants(ctx context.Context, restaurantIDs []uint64, limit int) ([]models.Review, error)
}

// Recommendation is the matcher's answer. Restaurant is nil when there is no
// match, in which case Message explains why.
type Recommendation struct {
	Restaurant *models.Restaurant
	Message    string
	Outcome    Outcome
}

type Matcher struct {
	catalog Catalog
	model   llm.Invoker
	gen     llm.GenerationConfig
}

func NewMatcher(catalog Catalog, model llm.Invoker, gen llm.GenerationConfig) *Matcher {
	return &Matcher{catalog: catalog, model: model, gen: gen}
}

func noMatch(message string, outcome Outcome) Recommendation {
	return Recommendation{Message: message, Outcome: outcome}
}

// Recommend picks the restaurant in category that best fits intent. The
// only errors it returns are ErrNoRestaurantsInCategory and store failures;
// model problems become a no-match answer.
func (m *Matcher) Recommend(ctx context.Context, category, intent string) (Recommendation, error) {
	rec, err := m.recommend(ctx, category, intent)
	if err != nil {
		return rec, err
	}
	metrics.RecommendationOutcomes.WithLabelValues(recommendationLabel(rec)).Inc()

	return rec, nil
}

func (m *Matcher) recommend(ctx context.Context, category, intent string) (Recommendation, error) {
	if intent == "" || utf8.RuneCountInString(intent) > MaxIntentLength {
		return noMatch(MessageBeConcise, OutcomeInputRejected), nil
	}

	candidates, err := m.catalog.ListByCategory(ctx, category)
	if err != nil {
		return Recommendation{}, fmt.Errorf("list candidates: %w", err)
	}
	if len(candidates) == 0 {
		metrics.RecommendationOutcomes.WithLabelValues("empty_category").Inc()
		return Recommendation{}, ErrNoRestaurantsInCategory
	}

	ids := make([]uint64, len(candidates))
	for i, r := range candidates {
		ids[i] = r.ID
	}

	reviews, err := m.catalog.ListReviewsForRestaurants(ctx, ids, MaxPromptReviews)
	if err != nil {
		return Recommendation{}, fmt.Errorf("list candidate reviews: %w", err)
	}

	prompt, err := BuildMatchingPrompt(intent, candidateViews(candidates), excerptViews(reviews))
	if err != nil {
		slog.Error("failed to build matching prompt", "error", err)
		return noMatch(MessageMatchFailed, OutcomeTransportError), nil
	}

	reply, err := m.model.Invoke(ctx, prompt, m.gen)
	if err != nil {
		slog.Error("recommendation call failed", "error", err)
		return noMatch(MessageMatchFailed, OutcomeTransportError), nil
	}

	parsed, err := ParseRecommendation(reply)
	if err != nil {
		slog.Warn("recommendation reply rejected", "error", err, "raw", reply)
		return noMatch(MessageNoMatch, outcomeFor(err)), nil
	}

	if parsed.RestaurantID == nil {
		return noMatch(parsed.Message, OutcomeOK), nil
	}

	for i := range candidates {
		if int64(candidates[i].ID) == *parsed.RestaurantID {
			return Recommendation{Restaurant: &candidates[i], Message: parsed.Message, Outcome: OutcomeOK}, nil
		}
	}

	slog.Warn("model recommended a restaurant outside the candidate set", "restaurant_id", *parsed.RestaurantID, "category", category)

	return noMatch(MessageNoMatch, OutcomeSchemaMismatch), nil
}

// candidateViews lists higher averages first so ties read in the order the
// rubric breaks them.
func candidateViews(candidates []models.Restaurant) []candidateView {
	views := make([]candidateView, len(candidates))
	for i, r := range candidates {
		views[i] = candidateView{
			ID:          r.ID,
			Name:        r.Name,
			Category:    r.Category,
			Description: r.Description,
			Average:     r.AverageScore,
			Reviews:     r.ReviewCount,
		}
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Average > views[j].Average
	})

	return views
}

func excerptViews(reviews []models.Review) []excerptView {
	if len(reviews) > MaxPromptReviews {
		reviews = reviews[:MaxPromptReviews]
	}

	views := make([]excerptView, len(reviews))
	for i, r := range reviews {
		views[i] = excerptView{
			RestaurantID: r.RestaurantID,
			Text:         truncate(r.Text, MaxExcerptLength),
			Score:        r.Score,
		}
	}

	return views
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

func recommendationLabel(rec Recommendation) string {
	if rec.Outcome == OutcomeOK && rec.Restaurant == nil {
		return "no_match"
	}
	return string(rec.Outcome)
}
