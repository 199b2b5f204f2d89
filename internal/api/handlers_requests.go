// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"net/http"

	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/models"
)

// CreateRequest handles POST /api/v1/requests, asking Jellyseerr to
// acquire a title. Without Jellyseerr configured it answers 503
// NOT_CONFIGURED.
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	claims, ok := h.claims(w, r)
	if !ok {
		return
	}

	var req MediaRequest
	if !decodeBody(w, r, &req) {
		return
	}
	mt, _ := models.ParseMediaType(req.MediaType)

	res, err := h.requests.Request(r.Context(), mt, req.MediaID)
	if err != nil {
		rw.Failure(err, "jellyseerr request")
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("user_id", claims.UserID()).
		Str("media_type", string(mt)).
		Int("external_id", req.MediaID).
		Int("request_id", res.ID).
		Msg("Jellyseerr request created")
	rw.Created(res)
}
