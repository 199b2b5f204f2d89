// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package jobs runs fire-and-forget background work on an in-process
// watermill router backed by a Go channel pub/sub.
//
// Publish returns as soon as the message is handed to the pub/sub; the
// handler runs on the router's goroutine. Handler errors and panics are
// logged and the message is acked: background jobs are best effort and
// are never retried.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
)

// Topics.
const (
	TopicTasteRefresh   = "taste.refresh"
	TopicMediaEnrich    = "media.enrich"
	TopicWeeklyGenerate = "weekly.generate"
)

// ErrNotRunning is returned by Publish before Run has started the router
// or after Close.
var ErrNotRunning = errors.New("job queue is not running")

// Handler processes one job payload.
type Handler func(ctx context.Context, payload []byte) error

// Queue is the in-process job queue.
type Queue struct {
	pubsub *gochannel.GoChannel
	router *message.Router
	log    zerolog.Logger

	mu      sync.RWMutex
	running bool
	closed  bool
}

// New creates a queue. Register handlers with Handle before calling Run.
func New(cfg config.JobsConfig) (*Queue, error) {
	log := logging.WithComponent("jobs")
	wmLogger := NewLoggerAdapter(log)

	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 256
	}
	closeTimeout := cfg.CloseTimeout
	if closeTimeout <= 0 {
		closeTimeout = 30 * time.Second
	}

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: int64(buffer),
	}, wmLogger)

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: closeTimeout}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}
	router.AddMiddleware(middleware.Recoverer)

	return &Queue{pubsub: pubsub, router: router, log: log}, nil
}

// Handle registers h for topic.
func (q *Queue) Handle(topic string, h Handler) {
	q.router.AddConsumerHandler(topic+"-handler", topic, q.pubsub, func(msg *message.Message) error {
		ctx := msg.Context()
		if id := middleware.MessageCorrelationID(msg); id != "" {
			ctx = logging.ContextWithCorrelationID(ctx, id)
		}

		start := time.Now()
		err := safeRun(ctx, h, msg.Payload)
		metrics.RecordJob(topic, err)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("topic", topic).Str("message_id", msg.UUID).
				Dur("duration", time.Since(start)).Msg("Background job failed")
			return nil
		}
		logging.Ctx(ctx).Debug().Str("topic", topic).Dur("duration", time.Since(start)).Msg("Background job done")
		return nil
	})
}

// safeRun converts a handler panic into an error so the message is acked.
func safeRun(ctx context.Context, h Handler, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return h(ctx, payload)
}

// Publish encodes payload as JSON and enqueues it on topic. It does not
// wait for the handler.
func (q *Queue) Publish(ctx context.Context, topic string, payload any) error {
	q.mu.RLock()
	ready := q.running && !q.closed
	q.mu.RUnlock()
	if !ready {
		return ErrNotRunning
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), body)
	correlationID := logging.CorrelationIDFromContext(ctx)
	if correlationID == "" {
		correlationID = logging.GenerateCorrelationID()
	}
	middleware.SetCorrelationID(correlationID, msg)

	if err := q.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Run starts the router and blocks until ctx is cancelled or Close is
// called.
func (q *Queue) Run(ctx context.Context) error {
	go func() {
		select {
		case <-q.router.Running():
			q.mu.Lock()
			q.running = true
			q.mu.Unlock()
			q.log.Info().Msg("Job queue running")
		case <-ctx.Done():
		}
	}()

	err := q.router.Run(ctx)

	q.mu.Lock()
	q.running = false
	q.mu.Unlock()
	return err
}

// Running returns a channel closed once the router is processing messages.
func (q *Queue) Running() <-chan struct{} {
	return q.router.Running()
}

// Close stops the router, waiting for in-flight handlers, and closes the
// pub/sub.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.running = false
	q.mu.Unlock()

	routerErr := q.router.Close()
	pubsubErr := q.pubsub.Close()
	return errors.Join(routerErr, pubsubErr)
}

// Decode unmarshals a job payload.
func Decode[T any](payload []byte) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("decode job payload: %w", err)
	}
	return v, nil
}
