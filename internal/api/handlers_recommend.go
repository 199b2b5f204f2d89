// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/recommend"
)

// maxLimit matches the page size cap of the buffer manager.
const maxLimit = 50

// Recommendations handles GET /api/v1/recommendations.
//
// Query parameters: type (movie or tv, default movie), genre (optional
// genre name) and limit (1-50, default the configured page size). Fewer
// items than limit may be returned when the pipeline runs out of attempts.
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	claims, ok := h.claims(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	mt := models.MediaTypeMovie
	if raw := q.Get("type"); raw != "" {
		parsed, ok := models.ParseMediaType(raw)
		if !ok {
			rw.BadRequest("type must be movie or tv")
			return
		}
		mt = parsed
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLimit {
			rw.BadRequest("limit must be an integer between 1 and 50")
			return
		}
		limit = n
	}

	genre := strings.TrimSpace(q.Get("genre"))
	if len(genre) > 64 {
		rw.BadRequest("genre is too long")
		return
	}

	session, err := h.sessions.Session(r.Context(), claims.UserID())
	if err != nil {
		rw.Failure(err, "resolve session")
		return
	}

	items, err := h.recs.Next(r.Context(),
		recommend.Viewer{UserID: claims.UserID(), Session: session},
		recommend.Filter{MediaType: mt, Genre: genre},
		limit,
	)
	if err != nil {
		rw.Failure(err, "recommendations")
		return
	}
	if items == nil {
		items = []models.Candidate{}
	}
	rw.List(items, len(items))
}
