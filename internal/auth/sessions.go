// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/upstream"
)

// ErrNoSession means no usable Jellyfin token is stored for a user.
var ErrNoSession = errors.New("no stored Jellyfin session")

// UserStore is the user lookup Sessions needs.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// Sessions recovers Jellyfin sessions from stored, encrypted tokens.
type Sessions struct {
	users UserStore
	enc   *TokenEncryptor
}

// NewSessions creates a resolver. enc may be nil when encryption is
// disabled.
func NewSessions(users UserStore, enc *TokenEncryptor) *Sessions {
	return &Sessions{users: users, enc: enc}
}

// Seal encrypts a Jellyfin access token for storage.
func (s *Sessions) Seal(token string) (string, error) {
	return s.enc.Encrypt(token)
}

// Session returns the Jellyfin session of the local user userID.
func (s *Sessions) Session(ctx context.Context, userID string) (upstream.Session, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return upstream.Session{}, fmt.Errorf("load user %s: %w", userID, err)
	}
	return s.FromUser(u)
}

// FromUser decrypts the stored token of u.
func (s *Sessions) FromUser(u *models.User) (upstream.Session, error) {
	if u.AccessToken == "" || u.JellyfinUserID == "" {
		return upstream.Session{}, ErrNoSession
	}
	token, err := s.enc.Decrypt(u.AccessToken)
	if err != nil {
		return upstream.Session{}, fmt.Errorf("decrypt token of %s: %w", u.ID, err)
	}
	return upstream.Session{UserID: u.JellyfinUserID, Token: token}, nil
}
