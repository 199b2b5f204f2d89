// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package recommend implements the recommendation candidate pipeline.
//
// # Pipeline
//
// A recommendation request flows through these components:
//
//   - ExclusionBuilder collects every external ID the user already knows
//     (stored lists, Jellyfin play history, Jellyfin library holdings).
//   - TasteProvider serves a cached TasteProfile and refreshes it in the
//     background through the job queue.
//   - Suggester asks the LLM for free-text titles; CandidateSource
//     queries TMDB discovery directly and by anchor titles.
//   - Verifier resolves free-text suggestions to canonical TMDB titles
//     with strict type and year matching.
//   - BufferManager fills a per-user, per-filter buffer and serves it a
//     page at a time.
//
// WeeklyPicks and RedemptionAdvisor run on a schedule and persist their
// results; the HTTP layer serves the stored records.
//
// # Failure Model
//
// Only upstream.ErrAuthExpired from Jellyfin is returned to request
// callers. Transient upstream failures and malformed LLM output degrade to
// empty contributions and are logged. A suggestion that fails verification
// is dropped, never substituted.
//
// # Concurrency
//
// Independent lookups fan out with goroutines. Accepting candidates into a
// buffer is sequential because each acceptance extends the working
// exclusion set. Buffers for the same key are not locked: two concurrent
// requests may both fill and the last write wins, so delivery is
// at-least-once.
package recommend
