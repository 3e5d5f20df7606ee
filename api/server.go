package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lavraseats/lavraseats/analysis"
	"github.com/lavraseats/lavraseats/config"
	"github.com/lavraseats/lavraseats/models"
	"github.com/lavraseats/lavraseats/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var posterExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".webp": true}

type Server struct {
	config  *config.Config
	handler *Handler
	store   Store
	tokens  *Tokens
	feed    *Feed
	health  func() error
}

func NewServer(cfg *config.Config, handler *Handler, st Store, tokens *Tokens, feed *Feed) *Server {
	return &Server{
		config:  cfg,
		handler: handler,
		store:   st,
		tokens:  tokens,
		feed:    feed,
	}
}

func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.ContextWithFallback = true
	r.Use(gin.Recovery(), requestLogger(), corsMiddleware())

	r.GET("/health", s.healthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.Static("/imgs/posters", s.config.Uploads.Dir)

	api := r.Group("/api")
	auth := s.tokens.Middleware()
	manager := s.tokens.Middleware(models.RoleManager)

	api.POST("/users/register", s.register)
	api.GET("/users/confirm", s.confirm)
	api.GET("/users/me", auth, s.me)
	api.POST("/login", s.login)
	api.POST("/token/refresh", s.refresh)

	api.GET("/restaurants", s.listRestaurants)
	api.GET("/restaurants/ranking", s.ranking)
	api.GET("/restaurants/filter", s.filter)
	api.GET("/restaurants/search", s.search)
	api.GET("/restaurants/:id", s.getRestaurant)
	api.POST("/restaurants", manager, s.createRestaurant)
	api.PUT("/restaurants/:id", manager, s.updateRestaurant)
	api.DELETE("/restaurants/:id", manager, s.deleteRestaurant)

	api.POST("/reviews", auth, s.submitReview)
	api.GET("/reviews", s.listReviews)
	api.GET("/reviews/mine", auth, s.myReviews)
	api.GET("/reviews/restaurant/:restaurantId", auth, s.myReviewOf)
	api.GET("/reviews/live", s.live)

	api.POST("/recommendations", auth, s.recommend)

	return r
}

// respondError maps domain errors to status codes. Anything unknown is a 500
// and its detail stays in the log.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, analysis.ErrNoRestaurantsInCategory):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrDuplicateReview):
		status = http.StatusConflict
	case errors.Is(err, store.ErrDuplicateUser), errors.Is(err, ErrInvalidCode),
		errors.Is(err, ErrReviewRejected), errors.Is(err, ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInactiveAccount), errors.Is(err, ErrInvalidToken):
		status = http.StatusUnauthorized
	case errors.Is(err, ErrManagerOnly):
		status = http.StatusForbidden
	case errors.Is(err, store.ErrSearchUnavailable):
		status = http.StatusServiceUnavailable
	}

	_ = c.Error(err)
	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func pathID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

func (s *Server) healthCheck(c *gin.Context) {
	if s.health != nil {
		if err := s.health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	var caller *Claims
	if tok := bearer(c); tok != "" {
		caller, _ = s.tokens.Parse(tok, tokenAccess)
	}

	user, err := s.handler.Register(c, req, caller)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "user registered, confirm the account with the code sent to you",
		"user":    userView(user),
	})
}

func (s *Server) confirm(c *gin.Context) {
	cpf, code := c.Query("cpf"), c.Query("code")
	if cpf == "" || code == "" {
		badRequest(c, "cpf and code are required")
		return
	}

	if err := s.handler.Confirm(c, cpf, code); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "account confirmed"})
}

func (s *Server) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	user, err := s.handler.Authenticate(c, req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	access, refresh, err := s.tokens.Issue(user)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, LoginResponse{AccessToken: access, RefreshToken: refresh, User: userView(user)})
}

func (s *Server) refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	access, err := s.tokens.Refresh(req.RefreshToken)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"access_token": access})
}

func (s *Server) me(c *gin.Context) {
	user, err := s.store.UserByID(c, currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, userView(user))
}

func (s *Server) listRestaurants(c *gin.Context) {
	restaurants, err := s.store.ListRestaurants(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, restaurantViews(s.config.Uploads, restaurants))
}

func (s *Server) getRestaurant(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	restaurant, err := s.store.GetRestaurant(c, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, restaurantView(s.config.Uploads, *restaurant))
}

func (s *Server) ranking(c *gin.Context) {
	var worst bool
	switch c.DefaultQuery("order", "best") {
	case "best":
	case "worst":
		worst = true
	default:
		badRequest(c, "order must be best or worst")
		return
	}

	restaurants, err := s.store.Ranking(c, worst)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, restaurantViews(s.config.Uploads, restaurants))
}

func (s *Server) filter(c *gin.Context) {
	var ascending bool
	switch c.DefaultQuery("order", "desc") {
	case "desc":
	case "asc":
		ascending = true
	default:
		badRequest(c, "order must be asc or desc")
		return
	}

	restaurants, err := s.store.Filter(c, strings.TrimSpace(c.Query("category")), ascending)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, restaurantViews(s.config.Uploads, restaurants))
}

func (s *Server) search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		badRequest(c, "q is required")
		return
	}

	hits, err := s.handler.Search(c, q)
	if err != nil {
		respondError(c, err)
		return
	}
	results := make([]SearchHitView, len(hits))
	for i, hit := range hits {
		results[i] = SearchHitView{
			Restaurant: restaurantView(s.config.Uploads, hit.Restaurant),
			Similarity: hit.Similarity,
			Reviews:    hit.Reviews,
		}
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// savePoster stores the optional "poster" file part and returns its file
// name, or "" when the form has none.
func (s *Server) savePoster(c *gin.Context) (string, error) {
	file, err := c.FormFile("poster")
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !posterExtensions[ext] {
		return "", errors.New("poster must be a png, jpg or webp image")
	}

	if err := os.MkdirAll(s.config.Uploads.Dir, 0o755); err != nil {
		return "", err
	}

	name := uuid.NewString() + ext
	if err := c.SaveUploadedFile(file, filepath.Join(s.config.Uploads.Dir, name)); err != nil {
		return "", err
	}

	return name, nil
}

func (s *Server) removePoster(name string) {
	if name == "" {
		return
	}
	if err := os.Remove(filepath.Join(s.config.Uploads.Dir, filepath.Base(name))); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to remove poster", "poster", name, "error", err)
	}
}

func (s *Server) createRestaurant(c *gin.Context) {
	var form RestaurantForm
	if err := c.ShouldBind(&form); err != nil {
		badRequest(c, err.Error())
		return
	}

	poster, err := s.savePoster(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	restaurant := form.toModel()
	restaurant.Poster = poster
	if err := s.store.CreateRestaurant(c, restaurant); err != nil {
		s.removePoster(poster)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, restaurantView(s.config.Uploads, *restaurant))
}

func (s *Server) updateRestaurant(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	current, err := s.store.GetRestaurant(c, id)
	if err != nil {
		respondError(c, err)
		return
	}

	patch := store.RestaurantPatch{}
	for field, dst := range map[string]**string{
		"name":        &patch.Name,
		"description": &patch.Description,
		"category":    &patch.Category,
		"address":     &patch.Address,
		"phone":       &patch.Phone,
	} {
		if v, ok := c.GetPostForm(field); ok {
			*dst = &v
		}
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		badRequest(c, "name cannot be empty")
		return
	}

	poster, err := s.savePoster(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if poster != "" {
		patch.Poster = &poster
	}

	updated, err := s.store.UpdateRestaurant(c, id, patch)
	if err != nil {
		s.removePoster(poster)
		respondError(c, err)
		return
	}
	if poster != "" {
		s.removePoster(current.Poster)
	}

	c.JSON(http.StatusOK, restaurantView(s.config.Uploads, *updated))
}

func (s *Server) deleteRestaurant(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	deleted, err := s.store.DeleteRestaurant(c, id)
	if err != nil {
		respondError(c, err)
		return
	}
	s.removePoster(deleted.Poster)

	c.JSON(http.StatusOK, gin.H{"message": "restaurant deleted"})
}

func (s *Server) submitReview(c *gin.Context) {
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	review, err := s.handler.SubmitReview(c, currentUserID(c), req.RestaurantID, req.Text)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, review)
}

func (s *Server) listReviews(c *gin.Context) {
	reviews, err := s.store.ListAllReviews(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reviews)
}

func (s *Server) myReviews(c *gin.Context) {
	reviews, err := s.store.ListReviewsByAuthor(c, currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reviews)
}

func (s *Server) myReviewOf(c *gin.Context) {
	restaurantID, ok := pathID(c, "restaurantId")
	if !ok {
		return
	}

	review, err := s.store.ReviewByAuthorAndRestaurant(c, currentUserID(c), restaurantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

func (s *Server) live(c *gin.Context) {
	if s.feed == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live feed needs nats"})
		return
	}
	s.feed.Serve(c)
}

func (s *Server) recommend(c *gin.Context) {
	var req RecommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	resp, err := s.handler.Recommend(c, req.Category, req.Prompt)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
