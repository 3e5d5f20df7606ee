package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
)

// EmbeddingDimensions matches the output size of the configured embedding
// models (nomic-embed-text, text-embedding-004).
const EmbeddingDimensions = 768

type Role string

const (
	RoleUser    Role = "user"
	RoleManager Role = "manager"
)

type User struct {
	ID               uint64    `gorm:"primaryKey" json:"id"`
	Name             string    `gorm:"not null" json:"name"`
	Email            string    `gorm:"uniqueIndex;not null" json:"email"`
	CPF              string    `gorm:"uniqueIndex;not null" json:"cpf"`
	PasswordHash     string    `gorm:"not null" json:"-"`
	Role             Role      `gorm:"type:varchar(16);not null;default:user" json:"role"`
	Active           bool      `gorm:"not null;default:false" json:"active"`
	ConfirmationCode *string   `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (u *User) TableName() string {
	return "users"
}

// Restaurant carries two derived columns, AverageScore and ReviewCount, which
// are only ever written by the aggregate recomputation in the store.
type Restaurant struct {
	ID           uint64           `gorm:"primaryKey" json:"id"`
	Name         string           `gorm:"not null" json:"name"`
	Description  string           `json:"description"`
	Category     string           `gorm:"index" json:"category"`
	Address      string           `json:"address"`
	Phone        string           `json:"phone"`
	Poster       string           `json:"poster,omitempty"`
	AverageScore float64          `gorm:"not null;default:0" json:"average_score"`
	ReviewCount  int64            `gorm:"not null;default:0" json:"review_count"`
	Embedding    *pgvector.Vector `gorm:"type:vector(768)" json:"-"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func (r *Restaurant) TableName() string {
	return "restaurants"
}

func (r *Restaurant) Stringify() string {
	return fmt.Sprintf("Restaurant: %s, Category: %s, Address: %s, Description: %s", r.Name, r.Category, r.Address, r.Description)
}

type Sentiment string

const (
	Positive Sentiment = "positive"
	Neutral  Sentiment = "neutral"
	Negative Sentiment = "negative"
)

func (s Sentiment) Valid() bool {
	switch s {
	case Positive, Neutral, Negative:
		return true
	}
	return false
}

// Review is immutable once stored. At most one review exists per
// (UserID, RestaurantID).
type Review struct {
	ID           uint64           `gorm:"primaryKey" json:"id"`
	UserID       uint64           `gorm:"not null;uniqueIndex:idx_reviews_author_restaurant" json:"user_id"`
	RestaurantID uint64           `gorm:"not null;uniqueIndex:idx_reviews_author_restaurant;index" json:"restaurant_id"`
	Text         string           `gorm:"type:text;not null" json:"text"`
	Sentiment    Sentiment        `gorm:"type:varchar(16);not null" json:"sentiment"`
	Score        float64          `gorm:"not null" json:"score"`
	Rationale    string           `gorm:"type:text" json:"rationale"`
	Embedding    *pgvector.Vector `gorm:"type:vector(768)" json:"-"`
	CreatedAt    time.Time        `json:"created_at"`

	Restaurant *Restaurant `gorm:"foreignKey:RestaurantID" json:"restaurant,omitempty"`
}

func (r *Review) TableName() string {
	return "reviews"
}

// Stringify is the embedded text: only what the customer wrote, so it lines
// up with free-text search queries.
func (r *Review) Stringify() string {
	return strings.TrimSpace(r.Text)
}

type SearchHit struct {
	Restaurant Restaurant `json:"restaurant"`
	Similarity float64    `json:"similarity"`
	Reviews    []Review   `json:"reviews,omitempty"`
}
