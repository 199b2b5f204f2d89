// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/marquee/internal/auth"
	"github.com/tomtom215/marquee/internal/authz"
	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/middleware"
)

// slowRequestThreshold marks requests worth a warning. A cold
// recommendation fill runs several LLM and catalog calls, so it is generous.
const slowRequestThreshold = 10 * time.Second

// Router mounts the handler behind the middleware stack.
type Router struct {
	handler *Handler
	cfg     *config.Config
	authn   *auth.Middleware
	authz   *authz.Middleware
}

// NewRouter creates a router.
func NewRouter(handler *Handler, cfg *config.Config, authn *auth.Middleware, authorizer *authz.Middleware) *Router {
	return &Router{handler: handler, cfg: cfg, authn: authn, authz: authorizer}
}

// Setup builds the chi route tree.
func (rt *Router) Setup() http.Handler {
	h := rt.handler
	r := chi.NewRouter()

	// Global stack, applied to every route in this order.
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(middleware.AccessLog(slowRequestThreshold))
	r.Use(rt.cors())
	r.Use(SecurityHeaders)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusMethodNotAllowed, ErrCodeBadRequest, "method not allowed")
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.rateLimit())

		r.Get("/health", h.Health)
		r.Post("/auth/login", h.Login)
		r.Post("/auth/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(rt.authn.Authenticate)
			r.Use(rt.authz.Authorize)

			// The upgrade hijacks the connection, keep it out of Compress.
			r.Get("/ws", h.WebSocket)

			r.Group(func(r chi.Router) {
				r.Use(chimw.Compress(5, "application/json"))

				r.Get("/recommendations", h.Recommendations)

				r.Get("/lists/{status}", h.ListByStatus)
				r.Put("/lists/{status}", h.SetStatus)
				r.Delete("/lists/items/{mediaType}/{id}", h.RemoveItem)

				r.Post("/requests", h.CreateRequest)

				r.Get("/weekly", h.Weekly)
				r.Post("/admin/weekly/run", h.RunWeekly)

				r.Get("/redemption", h.Redemption)
				r.Post("/redemption/refresh", h.RefreshRedemption)
			})
		})
	})

	return r
}

// cors allows the configured browser origins. Credentials are only
// allowed for explicit origins, never for a wildcard.
func (rt *Router) cors() func(http.Handler) http.Handler {
	origins := rt.cfg.Security.CORSOrigins
	credentials := len(origins) > 0
	for _, o := range origins {
		if o == "*" {
			credentials = false
		}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: credentials,
		MaxAge:           86400,
	})
}

// rateLimit limits requests per client IP with go-chi/httprate.
func (rt *Router) rateLimit() func(http.Handler) http.Handler {
	sec := rt.cfg.Security
	if sec.RateLimitDisabled || sec.RateLimitReqs <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		sec.RateLimitReqs,
		sec.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			NewResponseWriter(w, r).Error(http.StatusTooManyRequests, ErrCodeTooManyRequests, "rate limit exceeded")
		}),
	)
}

// SecurityHeaders sets the response headers every API answer carries.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}
