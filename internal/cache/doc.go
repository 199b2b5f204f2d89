// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package cache provides the two cache layers used by the pipeline.
//
// Cache is a generic process-local TTL map. It holds Casbin decisions,
// recommendation buffers, taste profiles and TMDB genre and keyword lookups.
// Entries are shared by reference: callers that mutate a cached slice must
// copy it first.
//
// Store is a byte-oriented cache with per-entry TTL. BadgerStore persists
// verification outcomes across restarts; MemoryStore backs tests and the
// cache.persistent=false configuration.
package cache
