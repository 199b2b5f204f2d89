// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/marquee/internal/api"
	"github.com/tomtom215/marquee/internal/auth"
	"github.com/tomtom215/marquee/internal/authz"
	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/database"
	"github.com/tomtom215/marquee/internal/jobs"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/supervisor"
	"github.com/tomtom215/marquee/internal/supervisor/services"
	ws "github.com/tomtom215/marquee/internal/websocket"
)

const (
	checkpointInterval   = 15 * time.Minute
	checkpointTimeout    = time.Minute
	limiterCleanupPeriod = 10 * time.Minute

	// Failed logins allowed per username before throttling, refilled one
	// per loginRefill.
	loginBurst  = 5
	loginRefill = time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("db_path", cfg.Database.Path).
		Bool("jellyseerr", cfg.Jellyseerr.Enabled).
		Bool("weekly", cfg.Weekly.Enabled).
		Bool("redemption", cfg.Redemption.Enabled).
		Msg("Starting Marquee with supervisor tree")

	// run owns every deferred Close, so a fatal exit happens only after
	// it has returned.
	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Marquee stopped with an error")
	}
	logging.Info().Msg("Application stopped gracefully")
}

//nolint:gocyclo // sequential setup steps
func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	verifyStore, err := openVerifyCache(cfg.Cache)
	if err != nil {
		return err
	}
	defer func() {
		if err := verifyStore.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing verification cache")
		}
	}()

	clients := newClients(cfg)
	defer clients.Close()

	enc, err := auth.NewTokenEncryptor(&auth.TokenEncryptorConfig{MasterKey: cfg.Security.TokenEncryptionKey})
	if err != nil {
		return fmt.Errorf("initialize token encryption: %w", err)
	}
	if enc == nil {
		logging.Warn().Msg("TOKEN_ENCRYPTION_KEY is not set; Jellyfin tokens are stored unencrypted")
	}
	sessions := auth.NewSessions(db, enc)

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		return fmt.Errorf("initialize JWT manager: %w", err)
	}
	limiter := auth.NewLoginLimiter(loginBurst, loginRefill)

	enforcer, err := authz.NewEnforcer(nil)
	if err != nil {
		return fmt.Errorf("initialize authorization: %w", err)
	}
	defer enforcer.Close()

	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}
	for _, origin := range cfg.Security.CORSOrigins {
		if origin == "*" {
			logging.Warn().Msg("CORS allows any origin; set CORS_ORIGINS to the frontend URL in production")
			break
		}
	}

	hub := ws.NewHub()

	queue, err := jobs.New(cfg.Jobs)
	if err != nil {
		return fmt.Errorf("initialize job queue: %w", err)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing job queue")
		}
	}()

	engine := newEngine(cfg, db, clients, verifyStore, sessions, queue, hub)
	defer engine.Close()

	sched, err := engine.schedule(cfg)
	if err != nil {
		return err
	}

	handler := api.NewHandler(cfg, api.Deps{
		Store:       db,
		Jellyfin:    clients.jellyfin,
		Jellyseerr:  clients.jellyseerr,
		Recommender: engine.buffers,
		Weekly:      engine.weekly,
		Redemption:  engine.redemption,
		Enrichment:  engine.enricher,
		Resolver:    engine.verifier,
		Sessions:    sessions,
		JWT:         jwtManager,
		Limiter:     limiter,
		WebSocket:   ws.NewUpgrader(hub, cfg.Security.CORSOrigins),
		Breakers:    clients.Breakers(),
	})
	router := api.NewRouter(handler, cfg,
		auth.NewMiddleware(jwtManager, api.WriteError),
		authz.NewMiddleware(enforcer, api.WriteError))

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	// Data layer
	tree.AddDataService(services.NewPeriodicService("duckdb-checkpoint", checkpointInterval, checkpointTimeout, db.Checkpoint))
	tree.AddDataService(services.NewPeriodicService("login-limiter-cleanup", limiterCleanupPeriod, 0, func(ctx context.Context) error {
		if n := limiter.Cleanup(); n > 0 {
			logging.Ctx(ctx).Debug().Int("removed", n).Msg("Dropped idle login limiters")
		}
		return nil
	}))

	// Jobs layer. The watermill router cannot be restarted after it stops.
	tree.AddJobsService(services.NewRunnerService("job-queue", queue.Run).OneShot())
	tree.AddJobsService(sched)
	tree.AddJobsService(services.NewRunnerService("websocket-hub", hub.Run))

	// API layer
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	var runErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for supervisor to finish...")
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = fmt.Errorf("supervisor tree: %w", err)
		}
	}
	stop()

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	checkpointCtx, cancel := context.WithTimeout(context.Background(), checkpointTimeout)
	defer cancel()
	if err := db.Checkpoint(checkpointCtx); err != nil {
		logging.Warn().Err(err).Msg("Final checkpoint failed")
	}
	return runErr
}
