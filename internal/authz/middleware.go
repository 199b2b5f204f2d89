// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package authz

import (
	"net/http"

	"github.com/tomtom215/marquee/internal/auth"
	"github.com/tomtom215/marquee/internal/logging"
)

// Middleware rejects authenticated requests whose role the policy does not
// allow on the requested route.
type Middleware struct {
	enforcer *Enforcer
	fail     auth.ErrorWriter
}

// NewMiddleware wires the enforcer to the API error writer. With a nil
// writer failures are reported with http.Error.
func NewMiddleware(enforcer *Enforcer, writeError auth.ErrorWriter) *Middleware {
	m := &Middleware{enforcer: enforcer, fail: writeError}
	if m.fail == nil {
		m.fail = func(w http.ResponseWriter, _ *http.Request, status int, _, message string) {
			http.Error(w, message, status)
		}
	}
	return m
}

// Authorize must be mounted behind auth.Middleware.Authenticate, which puts
// the claims it reads into the context.
func (m *Middleware) Authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := ""
		if claims := auth.ClaimsFromContext(r.Context()); claims != nil {
			role = claims.Role
		}
		if role == "" {
			m.fail(w, r, http.StatusForbidden, "FORBIDDEN", "no authentication context")
			return
		}

		ok, err := m.enforcer.Enforce(role, r.URL.Path, methodToAction(r.Method))
		switch {
		case err != nil:
			logging.Ctx(r.Context()).Error().Err(err).Str("role", role).Str("path", r.URL.Path).Msg("Policy check failed")
			m.fail(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "authorization failed")
		case !ok:
			m.fail(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

var methodActions = map[string]string{
	http.MethodPost:   "write",
	http.MethodPut:    "write",
	http.MethodPatch:  "write",
	http.MethodDelete: "delete",
}

// methodToAction treats every method not listed as a read.
func methodToAction(method string) string {
	if a, ok := methodActions[method]; ok {
		return a
	}
	return "read"
}
