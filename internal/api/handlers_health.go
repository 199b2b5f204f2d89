// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"context"
	"net/http"
	"time"
)

// healthPingTimeout bounds the database check.
const healthPingTimeout = 2 * time.Second

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status            string            `json:"status"`
	DatabaseConnected bool              `json:"database_connected"`
	Breakers          map[string]string `json:"breakers,omitempty"`
	Uptime            float64           `json:"uptime_seconds"`
}

// Health handles GET /api/v1/health. The service is "degraded" when the
// database is unreachable or any upstream breaker is open; the status code
// stays 200 so liveness probes do not restart the process for an upstream
// outage.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()

	dbConnected := h.store != nil && h.store.Ping(ctx) == nil

	status := "healthy"
	if !dbConnected {
		status = "degraded"
	}

	var breakers map[string]string
	if len(h.breakers) > 0 {
		breakers = make(map[string]string, len(h.breakers))
		for _, b := range h.breakers {
			state := b.State()
			breakers[b.Name()] = state
			if state == "open" {
				status = "degraded"
			}
		}
	}

	NewResponseWriter(w, r).Success(HealthStatus{
		Status:            status,
		DatabaseConnected: dbConnected,
		Breakers:          breakers,
		Uptime:            time.Since(h.startTime).Seconds(),
	})
}
