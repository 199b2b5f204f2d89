// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/marquee/internal/auth"
	"github.com/tomtom215/marquee/internal/database"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/upstream"
)

// APIResponse is the envelope of every API response.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError is the error half of the envelope.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// APIMeta carries tracing and list metadata.
type APIMeta struct {
	RequestID  string    `json:"request_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	Count      *int      `json:"count,omitempty"`
}

// Error codes
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeReauthRequired     = "REAUTH_REQUIRED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeTooManyRequests    = "TOO_MANY_REQUESTS"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeNotConfigured      = "NOT_CONFIGURED"
	ErrCodeUpstream           = "EXTERNAL_SERVICE_FAILED"
)

// ResponseWriter writes envelopes for one request.
type ResponseWriter struct {
	w         http.ResponseWriter
	r         *http.Request
	startTime time.Time
}

// NewResponseWriter creates a response writer.
func NewResponseWriter(w http.ResponseWriter, r *http.Request) *ResponseWriter {
	return &ResponseWriter{w: w, r: r, startTime: time.Now()}
}

func (rw *ResponseWriter) meta() *APIMeta {
	return &APIMeta{
		RequestID:  logging.RequestIDFromContext(rw.r.Context()),
		Timestamp:  time.Now(),
		DurationMs: time.Since(rw.startTime).Milliseconds(),
	}
}

// Success writes a 200 response with data.
func (rw *ResponseWriter) Success(data any) {
	rw.writeJSON(http.StatusOK, APIResponse{Success: true, Data: data, Meta: rw.meta()})
}

// List writes a 200 response for a collection, recording its size.
func (rw *ResponseWriter) List(data any, count int) {
	m := rw.meta()
	m.Count = &count
	rw.writeJSON(http.StatusOK, APIResponse{Success: true, Data: data, Meta: m})
}

// Accepted writes a 202 response for work queued in the background.
func (rw *ResponseWriter) Accepted(data any) {
	rw.writeJSON(http.StatusAccepted, APIResponse{Success: true, Data: data, Meta: rw.meta()})
}

// Created writes a 201 response.
func (rw *ResponseWriter) Created(data any) {
	rw.writeJSON(http.StatusCreated, APIResponse{Success: true, Data: data, Meta: rw.meta()})
}

// Error writes an error envelope.
func (rw *ResponseWriter) Error(statusCode int, code, message string) {
	rw.ErrorWithDetails(statusCode, code, message, nil)
}

// ErrorWithDetails writes an error envelope with details.
func (rw *ResponseWriter) ErrorWithDetails(statusCode int, code, message string, details any) {
	m := rw.meta()
	rw.writeJSON(statusCode, APIResponse{
		Success: false,
		Error: &APIError{
			Code:      code,
			Message:   message,
			Details:   details,
			RequestID: m.RequestID,
		},
		Meta: m,
	})
}

// BadRequest writes a 400 error.
func (rw *ResponseWriter) BadRequest(message string) {
	rw.Error(http.StatusBadRequest, ErrCodeBadRequest, message)
}

// NotFound writes a 404 error.
func (rw *ResponseWriter) NotFound(message string) {
	rw.Error(http.StatusNotFound, ErrCodeNotFound, message)
}

// Failure maps err onto a status and code and logs it. Jellyfin auth
// expiry becomes 401 REAUTH_REQUIRED so the client forces a new login.
func (rw *ResponseWriter) Failure(err error, action string) {
	l := logging.Ctx(rw.r.Context())
	switch {
	case errors.Is(err, upstream.ErrAuthExpired), errors.Is(err, auth.ErrNoSession):
		l.Info().Err(err).Msg("Jellyfin session expired")
		rw.Error(http.StatusUnauthorized, ErrCodeReauthRequired, "Jellyfin session expired, please log in again")
	case errors.Is(err, upstream.ErrInvalidCredentials):
		rw.Error(http.StatusUnauthorized, ErrCodeInvalidCredentials, "invalid username or password")
	case errors.Is(err, upstream.ErrNotConfigured):
		rw.Error(http.StatusServiceUnavailable, ErrCodeNotConfigured, "service not configured")
	case errors.Is(err, database.ErrNotFound):
		rw.NotFound("not found")
	case upstream.IsUnavailable(err):
		l.Warn().Err(err).Str("action", action).Msg("Upstream circuit open")
		rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "upstream service temporarily unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		l.Warn().Err(err).Str("action", action).Msg("Request timed out")
		rw.Error(http.StatusGatewayTimeout, ErrCodeServiceUnavailable, "request timed out")
	default:
		var se *upstream.StatusError
		if errors.As(err, &se) {
			l.Error().Err(err).Str("action", action).Str("service", se.Service).Msg("Upstream error")
			rw.Error(http.StatusBadGateway, ErrCodeUpstream, "external service failed: "+se.Service)
			return
		}
		l.Error().Err(err).Str("action", action).Msg("Request failed")
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, "internal error")
	}
}

func (rw *ResponseWriter) writeJSON(statusCode int, body APIResponse) {
	rw.w.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.w.Header().Set("Cache-Control", "no-store")
	rw.w.WriteHeader(statusCode)
	if err := json.NewEncoder(rw.w).Encode(body); err != nil {
		logging.Ctx(rw.r.Context()).Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// WriteError has the auth.ErrorWriter signature so the auth and authz
// middleware emit the same envelope as handlers.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	NewResponseWriter(w, r).Error(status, code, message)
}
