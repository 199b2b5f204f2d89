// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig tunes restart behaviour. Zero fields take the defaults noted.
type TreeConfig struct {
	FailureThreshold float64       // failures before backoff, default 5
	FailureDecay     float64       // seconds for the failure count to halve, default 30
	FailureBackoff   time.Duration // default 15s
	ShutdownTimeout  time.Duration // per service, default 10s
}

var defaultTreeConfig = TreeConfig{
	FailureThreshold: 5,
	FailureDecay:     30,
	FailureBackoff:   15 * time.Second,
	ShutdownTimeout:  10 * time.Second,
}

func (c TreeConfig) withDefaults() TreeConfig {
	d := defaultTreeConfig
	if c.FailureThreshold != 0 {
		d.FailureThreshold = c.FailureThreshold
	}
	if c.FailureDecay != 0 {
		d.FailureDecay = c.FailureDecay
	}
	if c.FailureBackoff != 0 {
		d.FailureBackoff = c.FailureBackoff
	}
	if c.ShutdownTimeout != 0 {
		d.ShutdownTimeout = c.ShutdownTimeout
	}
	return d
}

func (c TreeConfig) spec() suture.Spec {
	return suture.Spec{
		FailureThreshold: c.FailureThreshold,
		FailureDecay:     c.FailureDecay,
		FailureBackoff:   c.FailureBackoff,
		Timeout:          c.ShutdownTimeout,
	}
}

// Layer names one child supervisor. Services in different layers restart
// independently, so a crashing scheduler leaves the API up.
type Layer int

const (
	LayerData Layer = iota // storage maintenance
	LayerJobs              // queue, scheduler, websocket hub
	LayerAPI               // HTTP server
	layerCount
)

var layerNames = [layerCount]string{"data-layer", "jobs-layer", "api-layer"}

func (l Layer) String() string { return layerNames[l] }

// SupervisorTree is the root "marquee" supervisor and one child per Layer.
type SupervisorTree struct {
	root   *suture.Supervisor
	layers [layerCount]*suture.Supervisor
	config TreeConfig
}

// NewSupervisorTree builds the tree. Supervisor events go to logger.
func NewSupervisorTree(logger *slog.Logger, config TreeConfig) (*SupervisorTree, error) {
	config = config.withDefaults()

	rootSpec := config.spec()
	// Layers pick up the root's hook when they are added to it.
	rootSpec.EventHook = (&sutureslog.Handler{Logger: logger}).MustHook()

	t := &SupervisorTree{root: suture.New("marquee", rootSpec), config: config}
	for l := range t.layers {
		t.layers[l] = suture.New(Layer(l).String(), config.spec())
		t.root.Add(t.layers[l])
	}
	return t, nil
}

func (t *SupervisorTree) Root() *suture.Supervisor { return t.root }

// Add starts svc under layer, immediately if the tree is running.
func (t *SupervisorTree) Add(layer Layer, svc suture.Service) suture.ServiceToken {
	return t.layers[layer].Add(svc)
}

func (t *SupervisorTree) AddDataService(svc suture.Service) suture.ServiceToken {
	return t.Add(LayerData, svc)
}

func (t *SupervisorTree) AddJobsService(svc suture.Service) suture.ServiceToken {
	return t.Add(LayerJobs, svc)
}

func (t *SupervisorTree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.Add(LayerAPI, svc)
}

// Serve blocks until ctx ends or a service returns
// suture.ErrTerminateSupervisorTree.
func (t *SupervisorTree) Serve(ctx context.Context) error { return t.root.Serve(ctx) }

// ServeBackground runs Serve in a goroutine. The channel receives exactly
// one value and is not closed.
func (t *SupervisorTree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that missed the shutdown timeout.
func (t *SupervisorTree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
