// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package logging holds the process-wide zerolog logger used by every Marquee
// package.
//
// Call Init once from main with the values from config.LoggingConfig. Packages
// log through the package-level helpers or a component logger:
//
//	logging.Info().Str("user", userID).Msg("weekly picks ready")
//	log := logging.WithComponent("verifier")
//	log.Debug().Str("title", title).Msg("cache miss")
//
// Request handlers should prefer logging.Ctx(ctx) so request and correlation IDs
// are attached automatically.
package logging

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config selects level, output format and destination.
type Config struct {
	Level  string    // zerolog level name, plus "warning" and "off"
	Format string    // "json" (default) or "console"
	Caller bool      // add file:line to each entry
	Output io.Writer // defaults to os.Stderr
}

// DefaultConfig is what the process logs with until Init runs.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Output: os.Stderr}
}

var global atomic.Pointer[zerolog.Logger]

//nolint:gochecknoinits // packages log during config loading, before Init
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFieldName = "time"
	zerolog.MessageFieldName = "message"
	Init(DefaultConfig())
}

// Init replaces the global logger. It is safe to call again, which tests do
// to restore defaults.
func Init(cfg Config) {
	w := cfg.Output
	if w == nil {
		w = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	c := zerolog.New(w).With().Timestamp()
	if cfg.Caller {
		c = c.Caller()
	}
	l := c.Logger()
	global.Store(&l)
}

var levelAliases = map[string]zerolog.Level{
	"warning": zerolog.WarnLevel,
	"off":     zerolog.Disabled,
}

// lookupLevel resolves a configured level name.
func lookupLevel(name string) (zerolog.Level, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if lvl, ok := levelAliases[name]; ok {
		return lvl, true
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel, false
	}
	return lvl, true
}

// parseLevel falls back to info for unknown names.
func parseLevel(name string) zerolog.Level {
	lvl, _ := lookupLevel(name)
	return lvl
}

// ValidLevel is used by config validation.
func ValidLevel(name string) bool {
	_, ok := lookupLevel(name)
	return ok
}

// Logger returns the current global logger by value.
func Logger() zerolog.Logger { return *global.Load() }

// SetLogger swaps the global logger; tests point it at a buffer.
//
//nolint:gocritic // zerolog.Logger is passed by value
func SetLogger(l zerolog.Logger) { global.Store(&l) }

// With starts a child context of the global logger.
func With() zerolog.Context { return global.Load().With() }

// WithComponent tags a child logger with component=name.
func WithComponent(name string) zerolog.Logger {
	return With().Str("component", name).Logger()
}

func Debug() *zerolog.Event { return global.Load().Debug() }
func Info() *zerolog.Event { return global.Load().Info() }
func Warn() *zerolog.Event { return global.Load().Warn() }
func Error() *zerolog.Event { return global.Load().Error() }

// Fatal exits the process after the event is sent.
func Fatal() *zerolog.Event { return global.Load().Fatal() }

// Err logs at error level when err is non-nil and info otherwise.
func Err(err error) *zerolog.Event { return global.Load().Err(err) }

// NewTestLogger writes JSON with timestamps to w.
func NewTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}
