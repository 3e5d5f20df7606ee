package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/lavraseats/lavraseats/models"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) posterExists(name string) bool {
	_, err := os.Stat(filepath.Join(e.cfg.Uploads.Dir, name))
	return err == nil
}

func TestRestaurantLifecycle(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.account("boss@example.com", models.RoleManager)

	w := env.form(http.MethodPost, "/api/restaurants", map[string]string{
		"name":     "Cantina",
		"category": "Italiana",
		"address":  "Rua A, 10",
	}, "front.png", token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	created := decode[RestaurantView](t, w)
	require.NotZero(t, created.ID)
	require.NotEmpty(t, created.Poster)
	require.True(t, env.posterExists(created.Poster))
	require.Equal(t, env.cfg.Uploads.PosterURL(created.Poster), created.PosterURL)

	path := fmt.Sprintf("/api/restaurants/%d", created.ID)

	w = env.form(http.MethodPut, path, map[string]string{"phone": "(35) 3333-0000"}, "", token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[RestaurantView](t, w)
	require.Equal(t, "Cantina", updated.Name)
	require.Equal(t, "(35) 3333-0000", updated.Phone)
	require.Equal(t, created.Poster, updated.Poster)

	w = env.form(http.MethodPut, path, map[string]string{"name": "Cantina Nova"}, "new.jpg", token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	replaced := decode[RestaurantView](t, w)
	require.Equal(t, "Cantina Nova", replaced.Name)
	require.NotEqual(t, created.Poster, replaced.Poster)
	require.False(t, env.posterExists(created.Poster))
	require.True(t, env.posterExists(replaced.Poster))

	w = env.do(http.MethodGet, path, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Cantina Nova", decode[RestaurantView](t, w).Name)

	w = env.do(http.MethodDelete, path, nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	require.False(t, env.posterExists(replaced.Poster))

	require.Equal(t, http.StatusNotFound, env.do(http.MethodGet, path, nil, "").Code)
	require.Equal(t, http.StatusNotFound, env.do(http.MethodDelete, path, nil, token).Code)
}

func TestRestaurantManagementNeedsManager(t *testing.T) {
	env := newTestEnv(t)
	_, userToken := env.account("ana@example.com", models.RoleUser)
	r := env.restaurant("Cantina", "Italiana")
	path := fmt.Sprintf("/api/restaurants/%d", r.ID)
	fields := map[string]string{"name": "X", "category": "Y"}

	require.Equal(t, http.StatusUnauthorized, env.form(http.MethodPost, "/api/restaurants", fields, "", "").Code)
	require.Equal(t, http.StatusForbidden, env.form(http.MethodPost, "/api/restaurants", fields, "", userToken).Code)
	require.Equal(t, http.StatusForbidden, env.form(http.MethodPut, path, fields, "", userToken).Code)
	require.Equal(t, http.StatusForbidden, env.do(http.MethodDelete, path, nil, userToken).Code)
}

func TestCreateRestaurantValidation(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.account("boss@example.com", models.RoleManager)

	tests := []struct {
		name   string
		fields map[string]string
		poster string
	}{
		{name: "missing name", fields: map[string]string{"category": "Italiana"}},
		{name: "missing category", fields: map[string]string{"name": "Cantina"}},
		{name: "bad poster type", fields: map[string]string{"name": "Cantina", "category": "Italiana"}, poster: "menu.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.form(http.MethodPost, "/api/restaurants", tt.fields, tt.poster, token)
			require.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	entries, err := os.ReadDir(env.cfg.Uploads.Dir)
	require.NoError(t, err)
	require.Empty(t, entries)

	r := env.restaurant("Cantina", "Italiana")
	w := env.form(http.MethodPut, fmt.Sprintf("/api/restaurants/%d", r.ID), map[string]string{"name": "  "}, "", token)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRankingAndFilterEndpoints(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.account("ana@example.com", models.RoleUser)
	good := env.restaurant("Good", "Pizzaria")
	bad := env.restaurant("Bad", "Pizzaria")
	env.restaurant("Sushi", "Japonesa")

	env.model.scoring = `{"rationale":"ok","sentiment":"positive","score":8}`
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/reviews", ReviewRequest{RestaurantID: good.ID, Text: "boa"}, token).Code)
	env.model.scoring = `{"rationale":"ruim","sentiment":"negative","score":2}`
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/reviews", ReviewRequest{RestaurantID: bad.ID, Text: "ruim"}, token).Code)

	names := func(path string) []string {
		w := env.do(http.MethodGet, path, nil, "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		views := decode[[]RestaurantView](t, w)
		out := make([]string, len(views))
		for i, v := range views {
			out[i] = v.Name
		}
		return out
	}

	require.Equal(t, []string{"Good", "Bad"}, names("/api/restaurants/ranking"))
	require.Equal(t, []string{"Bad", "Good"}, names("/api/restaurants/ranking?order=worst"))
	require.Equal(t, []string{"Good", "Bad"}, names("/api/restaurants/filter?category=pizza"))
	require.Equal(t, []string{"Bad", "Good"}, names("/api/restaurants/filter?category=pizza&order=asc"))
	require.Len(t, names("/api/restaurants"), 3)

	require.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/restaurants/ranking?order=top", nil, "").Code)
	require.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/restaurants/filter?order=up", nil, "").Code)
}
