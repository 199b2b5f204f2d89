// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package websocket pushes per-user notifications to connected browsers.

Background work (weekly picks, redemption evaluation) finishes long after
the request that triggered it. When it does, the recommend package calls
Hub.Notify and every open connection of that user receives an event:

	{"type": "weekly_ready", "data": {"movies": 5, "shows": 5}}

The hub owns all connection state and runs in a single goroutine under the
supervisor. Each Client has a read pump (answers application-level pings,
detects disconnects) and a write pump (drains the send buffer and keeps the
connection alive with websocket pings).

Delivery is best effort: a client whose send buffer is full is dropped and
will reconnect.
*/
package websocket
