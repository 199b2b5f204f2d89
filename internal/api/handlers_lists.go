// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/marquee/internal/database"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/recommend"
)

// maxListLimit caps GET /lists/{status}.
const maxListLimit = 500

// ListByStatus handles GET /api/v1/lists/{status}. Optional query
// parameters: type (movie or tv) and limit (1-500).
func (h *Handler) ListByStatus(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	claims, ok := h.claims(w, r)
	if !ok {
		return
	}
	status, ok := models.ParseListStatus(chi.URLParam(r, "status"))
	if !ok {
		rw.BadRequest("status must be one of WATCHED, WATCHLIST, BLOCKED")
		return
	}

	filter := database.StatusFilter{Statuses: []models.ListStatus{status}}
	q := r.URL.Query()
	if raw := q.Get("type"); raw != "" {
		mt, ok := models.ParseMediaType(raw)
		if !ok {
			rw.BadRequest("type must be movie or tv")
			return
		}
		filter.MediaType = mt
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			rw.BadRequest("limit must be an integer between 1 and 500")
			return
		}
		filter.Limit = n
	}

	items, err := h.store.ListMediaStatus(r.Context(), claims.UserID(), filter)
	if err != nil {
		rw.Failure(err, "list media status")
		return
	}
	if items == nil {
		items = []models.UserMediaStatus{}
	}
	rw.List(items, len(items))
}

// SetStatus handles PUT /api/v1/lists/{status}.
//
// Setting a status replaces any previous status of the title, so repeating
// the call is idempotent. BLOCKED entries get a soft-block window unless
// the request marks them permanent. A request without mediaId is matched
// by title and release year first and fails with 404 when nothing
// matches. Every change drops the user's recommendation buffers and
// queues catalog enrichment of the title.
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	claims, ok := h.claims(w, r)
	if !ok {
		return
	}
	status, ok := models.ParseListStatus(chi.URLParam(r, "status"))
	if !ok {
		rw.BadRequest("status must be one of WATCHED, WATCHLIST, BLOCKED")
		return
	}

	var req SetStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	mt, _ := models.ParseMediaType(req.MediaType)
	ref := models.MediaRef{
		ExternalID:  req.MediaID,
		Title:       req.Title,
		MediaType:   mt,
		ReleaseYear: req.ReleaseYear,
	}
	if ref.ExternalID == 0 {
		if h.resolver == nil {
			rw.Error(http.StatusServiceUnavailable, ErrCodeNotConfigured, "title lookup is not available")
			return
		}
		c := h.resolver.Verify(r.Context(), recommend.Suggestion{Title: req.Title, Year: req.ReleaseYear, MediaType: mt})
		if c == nil {
			rw.NotFound("no catalog title matches " + strconv.Quote(req.Title))
			return
		}
		ref = c.MediaRef
	}

	entry := &models.UserMediaStatus{
		UserID: claims.UserID(),
		Media:  ref,
		Status: status,
	}
	if status == models.StatusBlocked {
		entry.PermanentBlock = req.Permanent
		if !req.Permanent {
			entry.SoftBlockUntil = h.softBlockUntil(req.SoftBlockDays)
		}
	}

	if err := h.store.SetMediaStatus(r.Context(), entry); err != nil {
		rw.Failure(err, "set media status")
		return
	}
	h.recs.Invalidate(claims.UserID())
	if h.enrich != nil {
		h.enrich.Enqueue(r.Context(), entry.Media)
	}

	logging.Ctx(r.Context()).Debug().
		Str("user_id", claims.UserID()).
		Str("status", string(status)).
		Str("media_type", string(mt)).
		Int("external_id", ref.ExternalID).
		Msg("Media status set")
	rw.Success(entry)
}

// RemoveItem handles DELETE /api/v1/lists/items/{mediaType}/{id}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	claims, ok := h.claims(w, r)
	if !ok {
		return
	}
	mt, ok := models.ParseMediaType(chi.URLParam(r, "mediaType"))
	if !ok {
		rw.BadRequest("mediaType must be movie or tv")
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		rw.BadRequest("id must be a positive integer")
		return
	}

	if err := h.store.RemoveMediaStatus(r.Context(), claims.UserID(), mt, id); err != nil {
		rw.Failure(err, "remove media status")
		return
	}
	h.recs.Invalidate(claims.UserID())
	rw.Success(map[string]any{"removed": true, "media_type": mt, "external_id": id})
}

// softBlockUntil returns the end of a new soft block, or nil when the
// window is zero.
func (h *Handler) softBlockUntil(days *int) *time.Time {
	window := h.cfg.Redemption.SoftBlock
	if days != nil {
		window = time.Duration(*days) * 24 * time.Hour
	}
	if window <= 0 {
		return nil
	}
	until := h.now().UTC().Add(window)
	return &until
}
