// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package models

import (
	"strings"
	"time"
)

// User is a local account created on first Jellyfin login.
type User struct {
	ID             string    `json:"id"`
	JellyfinUserID string    `json:"jellyfin_user_id"`
	Username       string    `json:"username"`
	AccessToken    string    `json:"-"`
	IsAdmin        bool      `json:"is_admin"`
	CreatedAt      time.Time `json:"created_at"`
	LastLoginAt    time.Time `json:"last_login_at"`
}

// Role returns the authorization role for the user.
func (u *User) Role() string {
	if u.IsAdmin {
		return RoleAdmin
	}
	return RoleUser
}

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// ListStatus is the per-user state of a title.
type ListStatus string

const (
	StatusWatched   ListStatus = "WATCHED"
	StatusWatchlist ListStatus = "WATCHLIST"
	StatusBlocked   ListStatus = "BLOCKED"
)

// ParseListStatus accepts upper or lower case names.
func ParseListStatus(s string) (ListStatus, bool) {
	switch ListStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusWatched:
		return StatusWatched, true
	case StatusWatchlist:
		return StatusWatchlist, true
	case StatusBlocked:
		return StatusBlocked, true
	}
	return "", false
}

// UserMediaStatus associates a user with a title. There is at most one row per
// (user, title); changing status replaces the row.
type UserMediaStatus struct {
	UserID             string     `json:"user_id"`
	Media              MediaRef   `json:"media"`
	Status             ListStatus `json:"status"`
	PermanentBlock     bool       `json:"permanent_block,omitempty"`
	SoftBlockUntil     *time.Time `json:"soft_block_until,omitempty"`
	RedemptionAttempts int        `json:"redemption_attempts,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// RedemptionEligible reports whether a blocked title may be reconsidered at now.
func (s *UserMediaStatus) RedemptionEligible(now time.Time) bool {
	if s.Status != StatusBlocked || s.PermanentBlock {
		return false
	}
	return s.SoftBlockUntil == nil || !s.SoftBlockUntil.After(now)
}
