package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/lavraseats/lavraseats/analysis"
	"github.com/lavraseats/lavraseats/config"
	"github.com/lavraseats/lavraseats/llm"
	"github.com/lavraseats/lavraseats/models"
	"github.com/lavraseats/lavraseats/store"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

const (
	positiveReply = `{"rationale":"Great food.","sentiment":"positive","score":9}`
	noMatchReply  = `{"recommended_restaurant_id": null, "explanatory_message": "nothing fits"}`
)

// scriptedModel answers scoring and matching prompts separately.
type scriptedModel struct {
	mu       sync.Mutex
	scoring  string
	matching string
	calls    int
}

func (m *scriptedModel) Invoke(_ context.Context, prompt string, _ llm.GenerationConfig) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if strings.HasPrefix(prompt, analysis.MatchingRubric) {
		return m.matching, nil
	}
	return m.scoring, nil
}

func (m *scriptedModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type testEnv struct {
	t      *testing.T
	cfg    *config.Config
	pg     *store.Pg
	model  *scriptedModel
	tokens *Tokens
	router *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	pg, err := store.OpenDialector(sqlite.Open(":memory:"), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Close() })
	require.NoError(t, pg.Migrate(context.Background()))

	cfg := &config.Config{
		Auth: config.Auth{JWTSecret: "test-secret", AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour},
		Uploads: config.Uploads{
			Dir:       t.TempDir(),
			PublicURL: "http://localhost:8000/imgs/posters",
		},
	}

	model := &scriptedModel{scoring: positiveReply, matching: noMatchReply}
	handler := NewHandler(
		pg,
		analysis.NewScorer(model, llm.GenerationConfig{}),
		analysis.NewMatcher(pg, model, llm.GenerationConfig{}),
		nil,
		cfg.Uploads,
	)
	tokens := NewTokens(cfg.Auth)

	return &testEnv{
		t:      t,
		cfg:    cfg,
		pg:     pg,
		model:  model,
		tokens: tokens,
		router: NewServer(cfg, handler, pg, tokens, nil).Routes(),
	}
}

func (e *testEnv) serve(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	return e.serve(req, token)
}

func (e *testEnv) form(method, path string, fields map[string]string, poster string, token string) *httptest.ResponseRecorder {
	e.t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(e.t, mw.WriteField(k, v))
	}
	if poster != "" {
		part, err := mw.CreateFormFile("poster", poster)
		require.NoError(e.t, err)
		_, err = part.Write([]byte("\x89PNG fake image"))
		require.NoError(e.t, err)
	}
	require.NoError(e.t, mw.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return e.serve(req, token)
}

var cpfSeq atomic.Int64

// account stores an active user directly and returns its access token.
func (e *testEnv) account(email string, role models.Role) (*models.User, string) {
	e.t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(e.t, err)

	user := &models.User{
		Name:         "Test",
		Email:        email,
		CPF:          fmt.Sprintf("%011d", cpfSeq.Add(1)),
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	}
	require.NoError(e.t, e.pg.CreateUser(context.Background(), user))

	access, _, err := e.tokens.Issue(user)
	require.NoError(e.t, err)

	return user, access
}

func (e *testEnv) restaurant(name, category string) *models.Restaurant {
	e.t.Helper()

	r := &models.Restaurant{Name: name, Category: category, Description: name + " in Lavras"}
	require.NoError(e.t, e.pg.CreateRestaurant(context.Background(), r))
	return r
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get(headerRequestID))

	w = env.do(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "lavraseats_http_request_duration_seconds")
}

func TestSearchAndLiveNeedInfrastructure(t *testing.T) {
	env := newTestEnv(t)

	require.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodGet, "/api/restaurants/search?q=pizza", nil, "").Code)
	require.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/restaurants/search", nil, "").Code)
	require.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodGet, "/api/reviews/live", nil, "").Code)
}
