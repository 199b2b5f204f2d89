// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package models defines the domain types shared by the store, the upstream
// clients and the recommendation pipeline.
//
// Every title is identified by its TMDB ID (MediaRef.ExternalID). Titles are
// never used as identity because remakes and adaptations share names.
package models
