// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package auth issues and validates Marquee session tokens and protects the
Jellyfin credentials stored for background work.

Users log in with their Jellyfin username and password. Jellyfin returns an
access token; Marquee encrypts it with TokenEncryptor (AES-256-GCM with a
key derived through HKDF-SHA256) before it reaches the database, and hands
the client a signed JWT whose subject is the local user ID.

Components:
  - JWTManager: HS256 token issue and validation (golang-jwt/jwt/v5)
  - TokenEncryptor: encryption at rest of Jellyfin access tokens
  - Middleware: resolves the JWT from the Authorization header, the
    "token" cookie or, for websocket upgrades, the "token" query parameter
  - LoginLimiter: per-username token bucket in front of Jellyfin logins
  - Sessions: recovers a user's Jellyfin session for scheduled jobs

A token that Jellyfin later rejects surfaces as upstream.ErrAuthExpired and
is mapped by the API layer to a re-authentication response.
*/
package auth
