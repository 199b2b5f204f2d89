// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "marquee"

func counterVec(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help}, labels)
}

func gaugeVec(subsystem, name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help}, labels)
}

func histogramVec(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets}, labels)
}

var (
	latencyBuckets  = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
	upstreamBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30}
)

// DuckDB.
var (
	DBQueryDuration = histogramVec("db", "query_duration_seconds", "Duration of DuckDB queries in seconds", prometheus.DefBuckets, "operation", "table")
	DBQueryErrors   = counterVec("db", "query_errors_total", "DuckDB query errors", "operation", "table")
)

// HTTP API. route is the chi route pattern, not the raw path.
var (
	APIRequestsTotal   = counterVec("api", "requests_total", "API requests by method, route and status", "method", "route", "status")
	APIRequestDuration = histogramVec("api", "request_duration_seconds", "API request latency in seconds", latencyBuckets, "method", "route")
)

// In-process caches, labelled by cache name.
var (
	CacheHits   = counterVec("cache", "hits_total", "Cache hits by cache name", "cache")
	CacheMisses = counterVec("cache", "misses_total", "Cache misses by cache name", "cache")
)

// Jellyfin, TMDB, Jellyseerr and the LLM.
var (
	UpstreamRequestDuration = histogramVec("upstream", "request_duration_seconds", "Latency of calls to external services", upstreamBuckets, "service", "operation", "outcome")

	CircuitBreakerState               = gaugeVec("circuit_breaker", "state", "Circuit breaker state (0=closed, 1=half-open, 2=open)", "name")
	CircuitBreakerRequests            = counterVec("circuit_breaker", "requests_total", "Calls through circuit breakers by result (success, failure, rejected)", "name", "result")
	CircuitBreakerConsecutiveFailures = gaugeVec("circuit_breaker", "consecutive_failures", "Current consecutive failures per circuit breaker", "name")
	CircuitBreakerTransitions         = counterVec("circuit_breaker", "state_transitions_total", "Circuit breaker state transitions", "name", "from", "to")
)

// Recommendation pipeline.
var (
	// outcome: accepted, unverified, excluded, filtered, malformed
	SuggestionsTotal = counterVec("", "suggestions_total", "Raw suggestions processed by the buffer fill, by outcome", "outcome")

	// result: match, no_match; source: cache, tmdb, jellyseerr
	VerificationsTotal = counterVec("", "verifications_total", "Title verifications by result and source", "result", "source")

	RecommendationsServed = counterVec("", "recommendations_served_total", "Verified recommendations returned to users", "media_type")

	PipelineAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pipeline_attempts",
		Help:      "LLM batches needed to fill one recommendation page",
		Buckets:   []float64{0, 1, 2, 3, 4, 5},
	})
)

// Background work.
var (
	JobsTotal         = counterVec("", "jobs_total", "Background jobs handled by topic and result", "topic", "result")
	ScheduledRuns     = counterVec("", "scheduled_runs_total", "Scheduled batch runs by job", "job")
	BatchUserFailures = counterVec("", "batch_user_failures_total", "Per-user failures inside scheduled batch runs", "job")

	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "websocket_connections",
		Help:      "Open websocket connections",
	})
)

// RecordDBQuery observes one query and counts it as an error when err is set.
func RecordDBQuery(operation, table string, d time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(d.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

func RecordAPIRequest(method, route, status string, d time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func RecordUpstream(service, operation string, d time.Duration, err error) {
	UpstreamRequestDuration.WithLabelValues(service, operation, outcome(err, "ok", "error")).Observe(d.Seconds())
}

func RecordJob(topic string, err error) {
	JobsTotal.WithLabelValues(topic, outcome(err, "success", "failure")).Inc()
}

func outcome(err error, ok, failed string) string {
	if err != nil {
		return failed
	}
	return ok
}
