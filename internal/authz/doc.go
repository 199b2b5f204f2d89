// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package authz decides which API routes a role may use, using Casbin.
//
// Authentication (internal/auth) establishes who the caller is and puts
// the session claims in the request context. This package maps the
// claimed role, the request path and the HTTP method onto a Casbin
// request:
//
//	Request -> auth.Authenticate -> authz.Authorize -> Handler
//
// # Model
//
//	[request_definition]
//	r = sub, obj, act
//
//	[policy_definition]
//	p = sub, obj, act
//
//	[role_definition]
//	g = _, _
//
//	[policy_effect]
//	e = some(where (p.eft == allow))
//
//	[matchers]
//	m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && regexMatch(r.act, p.act)
//
// # Roles
//
// Two roles exist. "user" may use the recommendation, list, request,
// weekly, redemption and websocket routes. "admin" inherits "user" and
// may additionally use everything below /api/v1/admin.
//
// Actions are derived from the HTTP method: GET, HEAD and OPTIONS are
// "read"; POST, PUT and PATCH are "write"; DELETE is "delete".
//
// A policy file in Casbin CSV format can replace the built-in policy via
// EnforcerConfig.PolicyPath.
package authz
