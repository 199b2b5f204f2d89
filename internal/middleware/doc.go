// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package middleware provides the infrastructure layers of the HTTP stack.

All middleware has the chi signature func(http.Handler) http.Handler:

  - RequestID: assigns or propagates X-Request-ID and a correlation ID
  - Metrics: records request count and latency per chi route pattern
  - AccessLog: one structured log line per request, warning on slow ones

The router composes them outermost first:

	r.Use(middleware.RequestID)
	r.Use(middleware.Metrics)
	r.Use(middleware.AccessLog(2 * time.Second))

Route labels use the chi pattern ("/api/v1/lists/{status}") rather than
the raw path so metric cardinality stays bounded.
*/
package middleware
