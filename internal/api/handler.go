// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/marquee/internal/auth"
	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/database"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/recommend"
	"github.com/tomtom215/marquee/internal/upstream"
)

// Store is the persistence surface used by the handlers.
type Store interface {
	UpsertUser(ctx context.Context, u *models.User) error
	SetMediaStatus(ctx context.Context, s *models.UserMediaStatus) error
	RemoveMediaStatus(ctx context.Context, userID string, mediaType models.MediaType, externalID int) error
	ListMediaStatus(ctx context.Context, userID string, filter database.StatusFilter) ([]models.UserMediaStatus, error)
	GetRedemptionCandidates(ctx context.Context, userID string) ([]models.RedemptionCandidate, time.Time, error)
	Ping(ctx context.Context) error
}

// Authenticator checks Jellyfin credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*upstream.AuthResult, error)
}

// Requester submits Jellyseerr requests.
type Requester interface {
	Request(ctx context.Context, mt models.MediaType, id int) (*upstream.RequestResult, error)
}

// Recommender serves recommendation pages.
type Recommender interface {
	Next(ctx context.Context, v recommend.Viewer, f recommend.Filter, limit int) ([]models.Candidate, error)
	Invalidate(userID string)
}

// WeeklyService serves and schedules weekly picks.
type WeeklyService interface {
	Get(ctx context.Context, userID string) (*models.WeeklyWatchlistRecord, error)
	QueueAll(ctx context.Context) (int, error)
}

// RedemptionService evaluates blocked titles.
type RedemptionService interface {
	Evaluate(ctx context.Context, userID string) ([]models.RedemptionCandidate, error)
}

// EnrichmentQueue schedules catalog enrichment of a title.
type EnrichmentQueue interface {
	Enqueue(ctx context.Context, ref models.MediaRef)
}

// SessionStore seals Jellyfin tokens for storage and recovers them.
type SessionStore interface {
	Seal(token string) (string, error)
	Session(ctx context.Context, userID string) (upstream.Session, error)
}

// TitleResolver matches a free-text title to a catalog entry.
type TitleResolver interface {
	Verify(ctx context.Context, s recommend.Suggestion) *models.Candidate
}

// WebSocketServer upgrades notification connections.
type WebSocketServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userID string)
}

// BreakerStatus reports the state of one upstream circuit breaker.
type BreakerStatus interface {
	Name() string
	State() string
}

// Deps are the collaborators of a Handler. Breakers may be empty.
type Deps struct {
	Store       Store
	Jellyfin    Authenticator
	Jellyseerr  Requester
	Recommender Recommender
	Weekly      WeeklyService
	Redemption  RedemptionService
	Enrichment  EnrichmentQueue
	Resolver    TitleResolver
	Sessions    SessionStore
	JWT         *auth.JWTManager
	Limiter     *auth.LoginLimiter
	WebSocket   WebSocketServer
	Breakers    []BreakerStatus
}

// Handler implements the /api/v1 endpoints.
type Handler struct {
	cfg       *config.Config
	store     Store
	jellyfin  Authenticator
	requests  Requester
	recs      Recommender
	weekly    WeeklyService
	redeem    RedemptionService
	enrich    EnrichmentQueue
	resolver  TitleResolver
	sessions  SessionStore
	jwt       *auth.JWTManager
	limiter   *auth.LoginLimiter
	ws        WebSocketServer
	breakers  []BreakerStatus
	startTime time.Time
	now       func() time.Time
}

// NewHandler creates a handler.
func NewHandler(cfg *config.Config, deps Deps) *Handler {
	return &Handler{
		cfg:       cfg,
		store:     deps.Store,
		jellyfin:  deps.Jellyfin,
		requests:  deps.Jellyseerr,
		recs:      deps.Recommender,
		weekly:    deps.Weekly,
		redeem:    deps.Redemption,
		enrich:    deps.Enrichment,
		resolver:  deps.Resolver,
		sessions:  deps.Sessions,
		jwt:       deps.JWT,
		limiter:   deps.Limiter,
		ws:        deps.WebSocket,
		breakers:  deps.Breakers,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// claims returns the authenticated caller. The router only mounts these
// handlers behind auth.Middleware, so a missing value is a wiring bug.
func (h *Handler) claims(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	c := auth.ClaimsFromContext(r.Context())
	if c == nil || c.UserID() == "" {
		NewResponseWriter(w, r).Error(http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return nil, false
	}
	return c, true
}
