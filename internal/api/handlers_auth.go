// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/tomtom215/marquee/internal/auth"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/models"
)

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// Login handles POST /api/v1/auth/login.
//
// The credentials are checked against Jellyfin. On success the local user
// is created or refreshed with the sealed Jellyfin token, and a session JWT
// is returned in the body and in the token cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if h.limiter != nil && !h.limiter.Allow(req.Username) {
		w.Header().Set("Retry-After", "60")
		rw.Error(http.StatusTooManyRequests, ErrCodeTooManyRequests, "too many login attempts, try again later")
		return
	}

	res, err := h.jellyfin.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		logging.Ctx(r.Context()).Info().Str("username", req.Username).Err(err).Msg("Login failed")
		rw.Failure(err, "login")
		return
	}
	if h.limiter != nil {
		h.limiter.Reset(req.Username)
	}

	sealed, err := h.sessions.Seal(res.AccessToken)
	if err != nil {
		rw.Failure(err, "seal token")
		return
	}

	user := &models.User{
		JellyfinUserID: res.UserID,
		Username:       res.Username,
		AccessToken:    sealed,
		IsAdmin:        res.IsAdmin || h.isConfiguredAdmin(res.Username),
	}
	if err := h.store.UpsertUser(r.Context(), user); err != nil {
		rw.Failure(err, "upsert user")
		return
	}

	token, expiresAt, err := h.jwt.GenerateToken(user)
	if err != nil {
		rw.Failure(err, "generate token")
		return
	}

	h.setAuthCookie(w, r, token, expiresAt)
	logging.Ctx(r.Context()).Info().
		Str("user_id", user.ID).
		Str("username", user.Username).
		Str("role", user.Role()).
		Msg("User logged in")
	rw.Success(LoginResponse{Token: token, ExpiresAt: expiresAt, User: user})
}

// Logout handles POST /api/v1/auth/logout. JWTs are stateless, so this
// only clears the cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies(r),
		SameSite: http.SameSiteStrictMode,
	})
	NewResponseWriter(w, r).Success(map[string]bool{"logged_out": true})
}

func (h *Handler) isConfiguredAdmin(username string) bool {
	for _, name := range h.cfg.Security.AdminUsers {
		if strings.EqualFold(strings.TrimSpace(name), username) {
			return true
		}
	}
	return false
}

func (h *Handler) setAuthCookie(w http.ResponseWriter, r *http.Request, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.secureCookies(r),
		SameSite: http.SameSiteStrictMode,
	})
}

// secureCookies is true behind TLS and in production, where a reverse
// proxy usually terminates TLS.
func (h *Handler) secureCookies(r *http.Request) bool {
	return r.TLS != nil || h.cfg.Server.Environment == "production"
}
