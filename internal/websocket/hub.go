// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
)

// Message types
const (
	MessageTypePing = "ping"
	MessageTypePong = "pong"
)

// Message is the JSON frame sent to clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type delivery struct {
	userID string
	msg    Message
}

// Hub tracks open connections by user and routes notifications to them.
type Hub struct {
	clients    map[string]map[*Client]struct{}
	deliveries chan delivery
	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		deliveries: make(chan delivery, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
	}
}

// Run processes registrations and deliveries until ctx is canceled, then
// closes every client. Lifecycle events are handled before deliveries so
// a freshly registered client sees messages queued after it connected.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		default:
		}

		select {
		case c := <-h.register:
			h.add(c)
			continue
		case c := <-h.unregister:
			h.remove(c)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case d := <-h.deliveries:
			h.deliver(d)
		}
	}
}

// Notify queues event for every connection of userID. It never blocks;
// when the queue is full the event is dropped.
func (h *Hub) Notify(userID, event string, data any) {
	select {
	case h.deliveries <- delivery{userID: userID, msg: Message{Type: event, Data: data}}:
	default:
		logging.Warn().Str("user_id", userID).Str("event", event).Msg("websocket delivery queue full, dropping event")
	}
}

// join registers c. It reports false once the hub has stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.stopped:
		return false
	}
}

// leave unregisters c unless the hub has stopped.
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

// ClientCount returns the number of open connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	metrics.WebSocketConnections.Inc()
	logging.Debug().Str("user_id", c.userID).Int("total_clients", h.ClientCount()).Msg("websocket client connected")
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	removed := h.dropLocked(c)
	h.mu.Unlock()
	if removed {
		logging.Debug().Str("user_id", c.userID).Int("total_clients", h.ClientCount()).Msg("websocket client disconnected")
	}
}

// dropLocked closes c's send channel once. h.mu must be held.
func (h *Hub) dropLocked(c *Client) bool {
	set := h.clients[c.userID]
	if _, ok := set[c]; !ok {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
	metrics.WebSocketConnections.Dec()
	return true
}

// deliver sends to the user's clients in connection order. Clients with a
// full buffer are dropped.
func (h *Hub) deliver(d delivery) {
	h.mu.Lock()
	defer h.mu.Unlock()

	targets := sortedClients(h.clients[d.userID])
	for _, c := range targets {
		select {
		case c.send <- d.msg:
		default:
			logging.Warn().Str("user_id", d.userID).Uint64("client_id", c.id).Msg("websocket client too slow, dropping connection")
			h.dropLocked(c)
		}
	}
}

func (h *Hub) closeAll() {
	h.stopOnce.Do(func() { close(h.stopped) })
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, set := range h.clients {
		for _, c := range sortedClients(set) {
			h.dropLocked(c)
			n++
		}
	}
	logging.Info().Str("component", "websocket-hub").Int("clients_closed", n).Msg("websocket hub stopped")
}

func sortedClients(set map[*Client]struct{}) []*Client {
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// MarshalMessage encodes a frame.
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
