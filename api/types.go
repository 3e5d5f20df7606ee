package main

import (
	"errors"
	"strings"

	"github.com/lavraseats/lavraseats/config"
	"github.com/lavraseats/lavraseats/models"
)

var ErrInvalidInput = errors.New("invalid input")

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	CPF      string `json:"cpf" binding:"required,len=11,numeric"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type UserView struct {
	ID     uint64      `json:"id"`
	Name   string      `json:"name"`
	Email  string      `json:"email"`
	CPF    string      `json:"cpf"`
	Role   models.Role `json:"role"`
	Active bool        `json:"active"`
}

func userView(u *models.User) UserView {
	return UserView{ID: u.ID, Name: u.Name, Email: u.Email, CPF: u.CPF, Role: u.Role, Active: u.Active}
}

type LoginResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	User         UserView `json:"user"`
}

// RestaurantForm is bound from multipart forms; the poster travels as a file
// part next to it.
type RestaurantForm struct {
	Name        string `form:"name" binding:"required"`
	Description string `form:"description"`
	Category    string `form:"category" binding:"required"`
	Address     string `form:"address"`
	Phone       string `form:"phone"`
}

func (f RestaurantForm) toModel() *models.Restaurant {
	return &models.Restaurant{
		Name:        strings.TrimSpace(f.Name),
		Description: f.Description,
		Category:    strings.TrimSpace(f.Category),
		Address:     f.Address,
		Phone:       f.Phone,
	}
}

type RestaurantView struct {
	models.Restaurant
	PosterURL string `json:"poster_url,omitempty"`
}

func restaurantView(uploads config.Uploads, r models.Restaurant) RestaurantView {
	return RestaurantView{Restaurant: r, PosterURL: uploads.PosterURL(r.Poster)}
}

func restaurantViews(uploads config.Uploads, rs []models.Restaurant) []RestaurantView {
	views := make([]RestaurantView, len(rs))
	for i, r := range rs {
		views[i] = restaurantView(uploads, r)
	}
	return views
}

type SearchHitView struct {
	Restaurant RestaurantView  `json:"restaurant"`
	Similarity float64         `json:"similarity"`
	Reviews    []models.Review `json:"reviews,omitempty"`
}

type ReviewRequest struct {
	RestaurantID uint64 `json:"restaurant_id" binding:"required"`
	Text         string `json:"text"`
}

type RecommendationRequest struct {
	Category string `json:"category"`
	Prompt   string `json:"prompt"`
}

type RecommendationResponse struct {
	RestaurantID *uint64 `json:"recommended_restaurant_id"`
	Name         string  `json:"name,omitempty"`
	PosterURL    string  `json:"poster_url,omitempty"`
	Message      string  `json:"explanatory_message"`
}
