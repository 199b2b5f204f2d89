// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/marquee/internal/metrics"
)

// transport is the JSON-over-HTTP plumbing shared by every client.
type transport struct {
	service string
	baseURL string
	client  *http.Client
	breaker *Breaker

	// decorate sets per-service headers on every request.
	decorate func(*http.Request)

	// mapStatus turns a StatusError into a domain error; nil keeps it.
	mapStatus func(*StatusError) error
}

func newTransport(service, baseURL string, timeout time.Duration) *transport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &transport{
		service: service,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		breaker: NewBreaker(service),
	}
}

// Breaker returns the circuit breaker of the Gemini client.
func (c *GeminiClient) Breaker() *Breaker { return c.t.breaker }

// Breaker returns the circuit breaker of the TMDB client.
func (c *TMDBClient) Breaker() *Breaker { return c.t.breaker }

// Breaker returns the circuit breaker of the Jellyfin client.
func (c *JellyfinClient) Breaker() *Breaker { return c.t.breaker }

// Breaker returns the circuit breaker of the Jellyseerr client.
func (c *JellyseerrClient) Breaker() *Breaker { return c.t.breaker }

// request describes one call.
type request struct {
	operation string
	method    string
	path      string
	query     url.Values
	body      any
	header    http.Header
}

// do performs r through the breaker and decodes a 2xx body into out.
func (t *transport) do(ctx context.Context, r request, out any) error {
	start := time.Now()
	err := t.breaker.run(func() error { return t.roundTrip(ctx, r, out) })
	metrics.RecordUpstream(t.service, r.operation, time.Since(start), err)
	return err
}

func (t *transport) roundTrip(ctx context.Context, r request, out any) error {
	fullURL := t.baseURL + r.path
	if len(r.query) > 0 {
		fullURL += "?" + r.query.Encode()
	}

	var body io.Reader = http.NoBody
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", t.service, err)
		}
		body = bytes.NewReader(b)
	}

	method := r.method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.decorate != nil {
		t.decorate(req)
	}
	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s request failed: %w", t.service, r.operation, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := statusError(t.service, resp)
		var se *StatusError
		if t.mapStatus != nil && errors.As(err, &se) {
			if mapped := t.mapStatus(se); mapped != nil {
				return mapped
			}
		}
		return err
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", t.service, r.operation, err)
	}
	return nil
}
