// Package auth issues and parses the bearer tokens that identify residents.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"

	"github.com/rl1809/apartment-hub/internal/core/domain"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrInactive     = errors.New("resident is not active")
)

type Claims struct {
	ResidentID string      `json:"resident_id"`
	Role       domain.Role `json:"role"`
	Active     bool        `json:"active"`
	jwt.StandardClaims
}

type Tokens struct {
	secret []byte
}

func NewTokens(secret string) *Tokens {
	return &Tokens{secret: []byte(secret)}
}

func (t *Tokens) Issue(p domain.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		ResidentID: p.ResidentID,
		Role:       p.Role,
		Active:     true,
		StandardClaims: jwt.StandardClaims{
			Subject:   p.ResidentID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}
	return t.sign(claims)
}

func (t *Tokens) sign(claims Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse validates a token and returns the principal it carries. Tokens of
// deactivated residents are refused.
func (t *Tokens) Parse(tokenStr string) (domain.Principal, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ResidentID == "" || !claims.Role.Valid() {
		return domain.Principal{}, ErrInvalidToken
	}
	if !claims.Active {
		return domain.Principal{}, ErrInactive
	}
	return domain.Principal{ResidentID: claims.ResidentID, Role: claims.Role}, nil
}
