// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package services adapts Marquee components to suture.Service.

  - HTTPServerService: ListenAndServe with graceful Shutdown
  - RunnerService: any Run(ctx) error loop (websocket hub, job queue)
  - PeriodicService: a task on a fixed interval (maintenance)

Every wrapper implements fmt.Stringer so suture logs it by name.
*/
package services
