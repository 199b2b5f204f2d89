// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package upstream contains thin adapters for the external services Marquee
talks to:

  - Jellyfin: login, played history and library enumeration
  - TMDB: discovery, search, details and genre/keyword lookups
  - Jellyseerr: request status, search and request submission
  - Gemini: text generation for profiles, suggestions and selection stages

Every client converts the provider's wire format into models types at the
boundary, so the recommendation pipeline never sees provider field names.
Calls go through a per-service circuit breaker (sony/gobreaker) and record
latency in the marquee_upstream_request_duration_seconds histogram.

Error taxonomy:
  - ErrAuthExpired: Jellyfin rejected the stored session token; surfaced to
    the client as 401 REAUTH_REQUIRED
  - ErrInvalidCredentials: Jellyfin rejected a username/password login
  - ErrNotConfigured: optional service (Jellyseerr) disabled
  - *StatusError: any other non-2xx response
*/
package upstream
