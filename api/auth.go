package main

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lavraseats/lavraseats/config"
	"github.com/lavraseats/lavraseats/models"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"

	ctxUserID = "userId"
	ctxRole   = "role"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	UserID uint64      `json:"userId"`
	Role   models.Role `json:"role"`
	Kind   string      `json:"kind"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies the HS256 access and refresh tokens.
type Tokens struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokens(cfg config.Auth) *Tokens {
	return &Tokens{
		secret:     []byte(cfg.JWTSecret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}
}

func (t *Tokens) sign(userID uint64, role models.Role, kind string, ttl time.Duration) (string, error) {
	now := t.now()
	claims := &Claims{
		UserID: userID,
		Role:   role,
		Kind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(userID),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Issue returns a fresh access and refresh token pair for user.
func (t *Tokens) Issue(user *models.User) (string, string, error) {
	access, err := t.sign(user.ID, user.Role, tokenAccess, t.accessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err := t.sign(user.ID, user.Role, tokenRefresh, t.refreshTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// Refresh exchanges a valid refresh token for a new access token.
func (t *Tokens) Refresh(refreshToken string) (string, error) {
	claims, err := t.Parse(refreshToken, tokenRefresh)
	if err != nil {
		return "", err
	}
	return t.sign(claims.UserID, claims.Role, tokenAccess, t.accessTTL)
}

func (t *Tokens) Parse(tokenStr, kind string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Kind != kind {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func bearer(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}

// Middleware requires a valid access token and, when roles are given, one of
// those roles.
func (t *Tokens) Middleware(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearer(c)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}

		claims, err := t.Parse(tokenStr, tokenAccess)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		if len(roles) > 0 && !slices.Contains(roles, claims.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

func currentUserID(c *gin.Context) uint64 {
	return c.GetUint64(ctxUserID)
}
