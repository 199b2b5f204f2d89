// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package supervisor runs Marquee's long-lived services under a suture v4 tree.

The tree has three layers so a failure in one does not restart the others:

	marquee
	├── data-layer
	│   └── maintenance (DuckDB checkpoint, login limiter cleanup)
	├── jobs-layer
	│   ├── job-queue (watermill router)
	│   ├── scheduler (weekly-picks, redemption)
	│   └── websocket-hub
	└── api-layer
	    └── http-server

Crashed services restart with suture's backoff. Supervisor events are logged
through sutureslog into the zerolog logger.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
	    ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddJobsService(services.NewRunnerService("websocket-hub", hub.Run))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	err = tree.Serve(ctx)
*/
package supervisor
