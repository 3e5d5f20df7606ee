package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"

	"github.com/lavraseats/lavraseats/analysis"
	"github.com/lavraseats/lavraseats/config"
	"github.com/lavraseats/lavraseats/llm"
	"github.com/lavraseats/lavraseats/metrics"
	"github.com/lavraseats/lavraseats/models"
	"github.com/lavraseats/lavraseats/store"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/crypto/bcrypt"
)

const searchMinSimilarity = 0.3

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveAccount    = errors.New("account not confirmed")
	ErrInvalidCode        = errors.New("invalid confirmation code")
	ErrManagerOnly        = errors.New("only a manager can create manager accounts")
	ErrReviewRejected     = errors.New("review rejected")
)

type Store interface {
	analysis.Catalog

	CreateUser(ctx context.Context, user *models.User) error
	UserByID(ctx context.Context, id uint64) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByCPF(ctx context.Context, cpf string) (*models.User, error)
	ActivateUser(ctx context.Context, id uint64) error

	CreateRestaurant(ctx context.Context, r *models.Restaurant) error
	GetRestaurant(ctx context.Context, id uint64) (*models.Restaurant, error)
	UpdateRestaurant(ctx context.Context, id uint64, patch store.RestaurantPatch) (*models.Restaurant, error)
	DeleteRestaurant(ctx context.Context, id uint64) (*models.Restaurant, error)
	ListRestaurants(ctx context.Context) ([]models.Restaurant, error)
	Ranking(ctx context.Context, worst bool) ([]models.Restaurant, error)
	Filter(ctx context.Context, category string, ascending bool) ([]models.Restaurant, error)
	Search(ctx context.Context, query pgvector.Vector, minSimilarity float64) ([]models.SearchHit, error)

	ReviewExists(ctx context.Context, userID, restaurantID uint64) (bool, error)
	InsertReview(ctx context.Context, review *models.Review) error
	GetReview(ctx context.Context, id uint64) (*models.Review, error)
	ListAllReviews(ctx context.Context) ([]models.Review, error)
	ListReviewsByAuthor(ctx context.Context, userID uint64) ([]models.Review, error)
	ReviewByAuthorAndRestaurant(ctx context.Context, userID, restaurantID uint64) (*models.Review, error)
}

type Scorer interface {
	Score(ctx context.Context, text string) analysis.Scoring
}

type Recommender interface {
	Recommend(ctx context.Context, category, intent string) (analysis.Recommendation, error)
}

type Handler struct {
	store    Store
	scorer   Scorer
	matcher  Recommender
	embedder llm.Embedder
	uploads  config.Uploads
}

func NewHandler(st Store, scorer Scorer, matcher Recommender, embedder llm.Embedder, uploads config.Uploads) *Handler {
	return &Handler{
		store:    st,
		scorer:   scorer,
		matcher:  matcher,
		embedder: embedder,
		uploads:  uploads,
	}
}

func confirmationCode() string {
	return fmt.Sprintf("%06d", rand.Intn(1_000_000))
}

// Register stores an inactive account and logs its confirmation code.
func (h *Handler) Register(ctx context.Context, req RegisterRequest, caller *Claims) (*models.User, error) {
	role := models.Role(req.Role)
	switch role {
	case "", models.RoleUser:
		role = models.RoleUser
	case models.RoleManager:
		if caller == nil || caller.Role != models.RoleManager {
			return nil, ErrManagerOnly
		}
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, req.Role)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	code := confirmationCode()
	user := &models.User{
		Name:             strings.TrimSpace(req.Name),
		Email:            strings.ToLower(strings.TrimSpace(req.Email)),
		CPF:              strings.TrimSpace(req.CPF),
		PasswordHash:     string(hashed),
		Role:             role,
		ConfirmationCode: &code,
	}
	if err := h.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	slog.Info("user registered, confirmation pending", "user_id", user.ID, "email", user.Email, "code", code)

	return user, nil
}

func (h *Handler) Confirm(ctx context.Context, cpf, code string) error {
	user, err := h.store.UserByCPF(ctx, cpf)
	if err != nil {
		return err
	}
	if user.Active {
		return nil
	}
	if user.ConfirmationCode == nil || *user.ConfirmationCode != code {
		return ErrInvalidCode
	}

	return h.store.ActivateUser(ctx, user.ID)
}

func (h *Handler) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := h.store.UserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.Active {
		return nil, ErrInactiveAccount
	}

	return user, nil
}

// SubmitReview scores text and stores it with the aggregate update. The
// existence check only avoids a model call; the unique index is what keeps
// a single review per user and restaurant.
func (h *Handler) SubmitReview(ctx context.Context, userID, restaurantID uint64, text string) (*models.Review, error) {
	exists, err := h.store.ReviewExists(ctx, userID, restaurantID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, store.ErrDuplicateReview
	}

	restaurant, err := h.store.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	scoring := h.scorer.Score(ctx, text)
	if scoring.Outcome == analysis.OutcomeInputRejected {
		return nil, fmt.Errorf("%w: %s", ErrReviewRejected, scoring.Rationale)
	}

	review := &models.Review{
		UserID:       userID,
		RestaurantID: restaurant.ID,
		Text:         text,
		Sentiment:    scoring.Sentiment,
		Score:        scoring.Score,
		Rationale:    scoring.Rationale,
	}
	if err := h.store.InsertReview(ctx, review); err != nil {
		return nil, err
	}

	metrics.ReviewsStored.WithLabelValues(string(review.Sentiment)).Inc()
	slog.Info("review stored",
		"review_id", review.ID,
		"restaurant_id", restaurantID,
		"sentiment", review.Sentiment,
		"score", review.Score,
		"outcome", scoring.Outcome,
	)

	return review, nil
}

func (h *Handler) Recommend(ctx context.Context, category, prompt string) (RecommendationResponse, error) {
	rec, err := h.matcher.Recommend(ctx, strings.TrimSpace(category), strings.TrimSpace(prompt))
	if err != nil {
		return RecommendationResponse{}, err
	}

	resp := RecommendationResponse{Message: rec.Message}
	if rec.Restaurant != nil {
		id := rec.Restaurant.ID
		resp.RestaurantID = &id
		resp.Name = rec.Restaurant.Name
		resp.PosterURL = h.uploads.PosterURL(rec.Restaurant.Poster)
	}

	return resp, nil
}

func (h *Handler) Search(ctx context.Context, query string) ([]models.SearchHit, error) {
	if h.embedder == nil {
		return nil, store.ErrSearchUnavailable
	}

	vector, err := llm.Embed(ctx, h.embedder, query)
	if err != nil {
		return nil, err
	}

	return h.store.Search(ctx, pgvector.NewVector(vector), searchMinSimilarity)
}
