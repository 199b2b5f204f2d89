// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/marquee/internal/database"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/models"
)

// RedemptionResponse is the body of the redemption endpoints. GeneratedAt
// is nil when the advisor has not run for the user yet.
type RedemptionResponse struct {
	Candidates  []models.RedemptionCandidate `json:"candidates"`
	GeneratedAt *time.Time                   `json:"generated_at"`
}

// Weekly handles GET /api/v1/weekly. A missing or stale record is
// regenerated before answering.
func (h *Handler) Weekly(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	claims, ok := h.claims(w, r)
	if !ok {
		return
	}
	rec, err := h.weekly.Get(r.Context(), claims.UserID())
	if err != nil {
		rw.Failure(err, "weekly picks")
		return
	}
	rw.Success(rec)
}

// RunWeekly handles POST /api/v1/admin/weekly/run. Generation is queued
// per user; completion is announced over the websocket.
func (h *Handler) RunWeekly(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	queued, err := h.weekly.QueueAll(r.Context())
	if err != nil {
		rw.Failure(err, "queue weekly picks")
		return
	}
	logging.Ctx(r.Context()).Info().Int("queued", queued).Msg("Weekly picks queued")
	rw.Accepted(map[string]int{"queued": queued})
}

// Redemption handles GET /api/v1/redemption, returning the latest stored
// evaluation.
func (h *Handler) Redemption(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	claims, ok := h.claims(w, r)
	if !ok {
		return
	}
	cands, generatedAt, err := h.store.GetRedemptionCandidates(r.Context(), claims.UserID())
	if errors.Is(err, database.ErrNotFound) {
		rw.Success(RedemptionResponse{Candidates: []models.RedemptionCandidate{}})
		return
	}
	if err != nil {
		rw.Failure(err, "redemption candidates")
		return
	}
	rw.Success(newRedemptionResponse(cands, generatedAt))
}

// RefreshRedemption handles POST /api/v1/redemption/refresh, evaluating
// the caller's blocked titles now.
func (h *Handler) RefreshRedemption(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	claims, ok := h.claims(w, r)
	if !ok {
		return
	}
	cands, err := h.redeem.Evaluate(r.Context(), claims.UserID())
	if err != nil {
		rw.Failure(err, "evaluate redemption")
		return
	}
	rw.Success(newRedemptionResponse(cands, h.now().UTC()))
}

// WebSocket handles GET /api/v1/ws.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.claims(w, r)
	if !ok {
		return
	}
	h.ws.ServeWS(w, r, claims.UserID())
}

func newRedemptionResponse(cands []models.RedemptionCandidate, generatedAt time.Time) RedemptionResponse {
	if cands == nil {
		cands = []models.RedemptionCandidate{}
	}
	return RedemptionResponse{Candidates: cands, GeneratedAt: &generatedAt}
}
