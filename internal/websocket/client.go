// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package websocket

import (
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/marquee/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4 << 10
	sendBuffer     = 32
)

// clientIDCounter gives clients a stable order for delivery.
var clientIDCounter atomic.Uint64

// Client is one browser tab of one user.
type Client struct {
	id     uint64
	userID string
	hub    *Hub
	conn   *websocket.Conn
	send   chan Message
}

// Upgrader turns authenticated HTTP requests into hub clients.
type Upgrader struct {
	hub *Hub
	ws  websocket.Upgrader
}

// NewUpgrader accepts requests without an Origin header, from the API's own
// host, or from one of allowedOrigins ("*" matches anything).
func NewUpgrader(hub *Hub, allowedOrigins []string) *Upgrader {
	u := &Upgrader{hub: hub}
	u.ws.ReadBufferSize = 1024
	u.ws.WriteBufferSize = 1024
	u.ws.CheckOrigin = originChecker(allowedOrigins)
	return u
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// ServeWS upgrades the request and attaches the connection to userID. On
// upgrade failure the response has already been written.
func (u *Upgrader) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := u.ws.Upgrade(w, r, nil)
	if err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &Client{
		id:     clientIDCounter.Add(1),
		userID: userID,
		hub:    u.hub,
		conn:   conn,
		send:   make(chan Message, sendBuffer),
	}
	if !u.hub.join(c) {
		bye := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
		_ = conn.WriteControl(websocket.CloseMessage, bye, time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// readPump keeps the read deadline alive and answers {"type":"ping"} with a
// pong. Any read error ends the client.
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		_ = c.conn.Close()
	}()

	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) }
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(extend)
	if extend("") != nil {
		return
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Str("user_id", c.userID).Msg("unexpected websocket close")
			}
			return
		}
		if !isPing(data) {
			continue
		}
		select {
		case c.send <- Message{Type: MessageTypePong}:
		default:
		}
	}
}

func isPing(data []byte) bool {
	var m struct {
		Type string `json:"type"`
	}
	return json.Unmarshal(data, &m) == nil && m.Type == MessageTypePing
}

// writePump sends queued messages and keepalive pings. It exits when the
// hub closes send or a write fails.
func (c *Client) writePump() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	for {
		var (
			kind    int
			payload []byte
		)
		select {
		case msg, open := <-c.send:
			if !open {
				_ = c.write(websocket.CloseMessage, nil)
				return
			}
			data, err := MarshalMessage(msg)
			if err != nil {
				logging.Error().Err(err).Str("type", msg.Type).Msg("failed to encode websocket message")
				continue
			}
			kind, payload = websocket.TextMessage, data
		case <-ping.C:
			kind = websocket.PingMessage
		}
		if c.write(kind, payload) != nil {
			return
		}
	}
}

func (c *Client) write(kind int, payload []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(kind, payload)
}
