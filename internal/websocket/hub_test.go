// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package websocket

import (
	"context"
	"errors"
	"testing"
	"time"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc, <-chan error) {
	t.Helper()
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()
	t.Cleanup(cancel)
	return h, cancel, done
}

func fakeClient(h *Hub, userID string, buffer int) *Client {
	return &Client{id: clientIDCounter.Add(1), userID: userID, hub: h, send: make(chan Message, buffer)}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func receive(t *testing.T, c *Client) (Message, bool) {
	t.Helper()
	select {
	case m, ok := <-c.send:
		return m, ok
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return Message{}, false
	}
}

func TestNotifyRoutesByUser(t *testing.T) {
	h, _, _ := startHub(t)
	alice1 := fakeClient(h, "alice", 4)
	alice2 := fakeClient(h, "alice", 4)
	bob := fakeClient(h, "bob", 4)
	for _, c := range []*Client{alice1, alice2, bob} {
		if !h.join(c) {
			t.Fatal("join failed")
		}
	}
	if n := h.ClientCount(); n != 3 {
		t.Fatalf("ClientCount() = %d, want 3", n)
	}

	h.Notify("alice", "weekly_ready", map[string]int{"movies": 5})

	for _, c := range []*Client{alice1, alice2} {
		m, ok := receive(t, c)
		if !ok || m.Type != "weekly_ready" {
			t.Errorf("alice received %+v, %v", m, ok)
		}
	}
	select {
	case m := <-bob.send:
		t.Errorf("bob received %+v", m)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotifyUnknownUser(t *testing.T) {
	h, _, _ := startHub(t)
	h.Notify("nobody", "redemption_ready", nil)
	c := fakeClient(h, "alice", 1)
	h.join(c)
	h.Notify("alice", "redemption_ready", nil)
	if m, _ := receive(t, c); m.Type != "redemption_ready" {
		t.Errorf("got %+v", m)
	}
}

func TestSlowClientDropped(t *testing.T) {
	h, _, _ := startHub(t)
	c := fakeClient(h, "alice", 1)
	h.join(c)

	h.Notify("alice", "weekly_ready", nil)
	h.Notify("alice", "redemption_ready", nil)

	waitFor(t, func() bool { return h.ClientCount() == 0 })
	if _, ok := <-c.send; !ok {
		t.Fatal("buffered message lost")
	}
	if _, ok := <-c.send; ok {
		t.Error("send channel should be closed")
	}
}

func TestLeave(t *testing.T) {
	h, _, _ := startHub(t)
	c := fakeClient(h, "alice", 1)
	h.join(c)
	h.leave(c)
	waitFor(t, func() bool { return h.ClientCount() == 0 })

	// A second leave must not close the channel twice.
	h.leave(c)
	if _, ok := <-c.send; ok {
		t.Error("send channel should be closed")
	}
}

func TestRunShutdown(t *testing.T) {
	h, cancel, done := startHub(t)
	c := fakeClient(h, "alice", 1)
	h.join(c)

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	if _, ok := <-c.send; ok {
		t.Error("client not closed on shutdown")
	}
	if h.join(fakeClient(h, "bob", 1)) {
		t.Error("join succeeded after shutdown")
	}
	h.leave(c)
}

func TestMarshalMessage(t *testing.T) {
	data, err := MarshalMessage(Message{Type: MessageTypePong})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"type":"pong"}` {
		t.Errorf("MarshalMessage() = %s", data)
	}
}
