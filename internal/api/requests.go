// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/marquee/internal/validation"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=256"`
	Password string `json:"password" validate:"required,max=1024"`
}

// SetStatusRequest is the body of PUT /lists/{status}. Without a mediaId
// the title (and releaseYear, when given) is resolved against the catalog.
type SetStatusRequest struct {
	MediaID     int    `json:"mediaId" validate:"omitempty,gt=0"`
	MediaType   string `json:"mediaType" validate:"required,mediatype"`
	Title       string `json:"title" validate:"required_without=MediaID,max=512"`
	ReleaseYear string `json:"releaseYear" validate:"omitempty,len=4,numeric"`
	// Permanent marks a block that redemption never reconsiders.
	Permanent bool `json:"permanent"`
	// SoftBlockDays overrides the configured soft-block window. Zero
	// makes the block eligible for redemption immediately.
	SoftBlockDays *int `json:"softBlockDays" validate:"omitempty,gte=0,lte=3650"`
}

// MediaRequest is the body of POST /requests.
type MediaRequest struct {
	MediaID   int    `json:"mediaId" validate:"required,gt=0"`
	MediaType string `json:"mediaType" validate:"required,mediatype"`
}

// decodeBody reads a JSON body into dst and validates it. On failure it
// writes the error response and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	rw := NewResponseWriter(w, r)
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			rw.Error(http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
		case errors.Is(err, io.EOF):
			rw.BadRequest("request body is required")
		default:
			rw.BadRequest("invalid JSON body")
		}
		return false
	}
	if verr := validation.ValidateStruct(dst); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ErrorWithDetails(http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
		return false
	}
	return true
}
