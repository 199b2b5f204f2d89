// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ctxKey values are unexported so no other package can collide with them.
type ctxKey int

const (
	keyCorrelation ctxKey = iota
	keyRequest
	keyLogger
)

// fieldNames maps each ID key to the log field it is written as.
var fieldNames = [...]string{
	keyCorrelation: "correlation_id",
	keyRequest:     "request_id",
}

// GenerateCorrelationID returns an 8 character ID. Short IDs are enough to
// follow one pipeline run or job message through the logs.
func GenerateCorrelationID() string {
	id := uuid.New()
	return id.String()[:8]
}

// GenerateRequestID returns a full UUID.
func GenerateRequestID() string { return uuid.NewString() }

func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyCorrelation, id)
}

// ContextWithNewCorrelationID starts a new trace, replacing any inherited
// correlation ID.
func ContextWithNewCorrelationID(ctx context.Context) context.Context {
	return context.WithValue(ctx, keyCorrelation, GenerateCorrelationID())
}

func CorrelationIDFromContext(ctx context.Context) string { return idFrom(ctx, keyCorrelation) }

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequest, id)
}

func RequestIDFromContext(ctx context.Context) string { return idFrom(ctx, keyRequest) }

func idFrom(ctx context.Context, k ctxKey) string {
	s, _ := ctx.Value(k).(string)
	return s
}

// ContextWithLogger attaches l; Ctx uses it instead of the global logger.
//
//nolint:gocritic // zerolog.Logger is passed by value
func ContextWithLogger(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, keyLogger, l)
}

// Ctx returns the context's logger (or the global one) with every ID the
// context carries added as a field.
//
//	logging.Ctx(ctx).Warn().Err(err).Msg("tmdb search failed")
func Ctx(ctx context.Context) *zerolog.Logger {
	l, ok := ctx.Value(keyLogger).(zerolog.Logger)
	if !ok {
		l = Logger()
	}
	fields := make(map[string]any, len(fieldNames))
	for k, name := range fieldNames {
		if id := idFrom(ctx, ctxKey(k)); id != "" {
			fields[name] = id
		}
	}
	if len(fields) > 0 {
		l = l.With().Fields(fields).Logger()
	}
	return &l
}
