// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package main is the entry point for the Marquee server.

Marquee recommends movies and shows to the users of a Jellyfin server. It
reads watch history from Jellyfin, asks Gemini for suggestions, verifies
them against TMDB (and optionally Jellyseerr) and serves them through a
JSON API.

# Application Architecture

Long-running components run under a Suture v4 supervisor tree:

	RootSupervisor ("marquee")
	├── DataSupervisor ("data-layer")
	│   ├── duckdb-checkpoint (periodic)
	│   └── login-limiter-cleanup (periodic)
	├── JobsSupervisor ("jobs-layer")
	│   ├── job-queue (watermill router, not restartable)
	│   ├── scheduler (weekly picks, redemption)
	│   └── websocket-hub
	└── APISupervisor ("api-layer")
	    └── http-server

Component initialization order:

 1. Configuration: koanf v2 with defaults, YAML file and environment
 2. Logging: zerolog with JSON or console output
 3. Database: DuckDB
 4. Verification cache: BadgerDB or in-memory
 5. Upstream clients: Jellyfin, Jellyseerr, TMDB and Gemini, each behind a circuit breaker
 6. Authentication: JWT sessions, Casbin route policy
 7. Recommendation pipeline, weekly picks and redemption advisor
 8. Supervisor tree and HTTP server

# Configuration

Core environment variables:

	HTTP_PORT=8097
	DUCKDB_PATH=/data/marquee.duckdb
	JELLYFIN_URL=http://jellyfin:8096
	TMDB_API_KEY=<key>
	GEMINI_API_KEY=<key>
	JWT_SECRET=<32+ chars>
	JELLYSEERR_ENABLED=false
	LOG_LEVEL=info

See internal/config for the complete list.

# Signal Handling

SIGINT and SIGTERM cancel the root context. The HTTP server drains
in-flight requests, the job queue stops, and the database is checkpointed
and closed once the tree has stopped.
*/
package main
