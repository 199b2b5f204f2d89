// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package api serves the Marquee HTTP API under /api/v1.

Every response uses the APIResponse envelope:

	{"success": true, "data": ..., "meta": {"request_id": "...", "timestamp": "..."}}
	{"success": false, "error": {"code": "REAUTH_REQUIRED", "message": "..."}}

Routes:

	POST   /api/v1/auth/login                      Jellyfin login, returns a session JWT
	POST   /api/v1/auth/logout                     clears the session cookie
	GET    /api/v1/health                          liveness, database and breaker state
	GET    /api/v1/recommendations                 next page of recommendations (?type=&genre=&limit=)
	GET    /api/v1/lists/{status}                  list entries by status
	PUT    /api/v1/lists/{status}                  set the status of a title
	DELETE /api/v1/lists/items/{mediaType}/{id}    remove a title from every list
	POST   /api/v1/requests                        request a title on Jellyseerr
	GET    /api/v1/weekly                          weekly picks, regenerated when stale
	POST   /api/v1/admin/weekly/run                queue weekly picks for every user (admin)
	GET    /api/v1/redemption                      latest redemption candidates
	POST   /api/v1/redemption/refresh              evaluate blocked titles now
	GET    /api/v1/ws                              websocket notifications
	GET    /metrics                                Prometheus metrics

Authentication is a JWT in the Authorization header or the token cookie.
Authorization is role based through casbin. A Jellyfin token that stopped
working is reported as 401 REAUTH_REQUIRED so the client logs in again.
*/
package api
