// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/models"
)

const tokenIssuer = "marquee"

// ErrInvalidToken wraps every reason a session token is refused.
var ErrInvalidToken = errors.New("invalid session token")

// Claims are the Marquee session claims. Subject holds the local user ID.
type Claims struct {
	Username       string `json:"username"`
	JellyfinUserID string `json:"jellyfin_user_id"`
	Role           string `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() string { return c.Subject }

func (c *Claims) IsAdmin() bool { return c.Role == models.RoleAdmin }

// JWTManager issues and checks HS256 session tokens.
type JWTManager struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewJWTManager needs a non-empty secret; config validation enforces the
// 32 character minimum.
func NewJWTManager(cfg *config.SecurityConfig) (*JWTManager, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	return &JWTManager{key: []byte(cfg.JWTSecret), ttl: cfg.SessionTimeout, now: time.Now}, nil
}

// parser only accepts HS256 tokens issued by Marquee that carry an expiry.
func (m *JWTManager) parser() *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
}

// GenerateToken signs a session for u and returns it with its expiry.
func (m *JWTManager) GenerateToken(u *models.User) (string, time.Time, error) {
	issued := m.now()
	exp := issued.Add(m.ttl)

	var c Claims
	c.Username = u.Username
	c.JellyfinUserID = u.JellyfinUserID
	c.Role = u.Role()
	c.Subject = u.ID
	c.Issuer = tokenIssuer
	c.IssuedAt = jwt.NewNumericDate(issued)
	c.NotBefore = c.IssuedAt
	c.ExpiresAt = jwt.NewNumericDate(exp)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &c).SignedString(m.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return token, exp, nil
}

// ValidateToken returns the claims of a well-signed, current token that
// names a user. Every failure wraps ErrInvalidToken.
func (m *JWTManager) ValidateToken(raw string) (*Claims, error) {
	var c Claims
	if _, err := m.parser().ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) { return m.key, nil }); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return &c, nil
}
