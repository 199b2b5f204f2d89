// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package config loads Marquee's configuration.
//
// Loading order (koanf v2), later layers win:
//  1. Built-in defaults (defaultConfig)
//  2. YAML file from CONFIG_PATH, ./config.yaml or /etc/marquee/config.yaml
//  3. Environment variables listed in envMappings
package config

import "time"

// Config is the complete application configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Cache      CacheConfig      `koanf:"cache"`
	Jellyfin   JellyfinConfig   `koanf:"jellyfin"`
	Jellyseerr JellyseerrConfig `koanf:"jellyseerr"`
	TMDB       TMDBConfig       `koanf:"tmdb"`
	LLM        LLMConfig        `koanf:"llm"`
	Recommend  RecommendConfig  `koanf:"recommend"`
	Weekly     WeeklyConfig     `koanf:"weekly"`
	Redemption RedemptionConfig `koanf:"redemption"`
	Jobs       JobsConfig       `koanf:"jobs"`
	Security   SecurityConfig   `koanf:"security"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	Timeout         time.Duration `koanf:"timeout"` // per-request budget, must cover a full buffer fill
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = DuckDB default
}

// CacheConfig controls the persistent verification cache.
type CacheConfig struct {
	Persistent bool          `koanf:"persistent"` // false keeps verification outcomes in memory only
	Path       string        `koanf:"path"`
	GCInterval time.Duration `koanf:"gc_interval"`
}

// JellyfinConfig identifies Marquee to the Jellyfin server.
type JellyfinConfig struct {
	URL        string        `koanf:"url"`
	ClientName string        `koanf:"client_name"`
	DeviceName string        `koanf:"device_name"`
	DeviceID   string        `koanf:"device_id"`
	Version    string        `koanf:"version"`
	Timeout    time.Duration `koanf:"timeout"`
}

// JellyseerrConfig is optional; without it request status filtering and the
// secondary verifier are skipped.
type JellyseerrConfig struct {
	Enabled bool          `koanf:"enabled"`
	URL     string        `koanf:"url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

// TMDBConfig configures the catalog provider. Either APIKey (v3) or
// ReadAccessToken (v4 bearer) must be set.
type TMDBConfig struct {
	APIKey            string        `koanf:"api_key"`
	ReadAccessToken   string        `koanf:"read_access_token"`
	BaseURL           string        `koanf:"base_url"`
	ImageBaseURL      string        `koanf:"image_base_url"`
	Language          string        `koanf:"language"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Timeout           time.Duration `koanf:"timeout"`
}

// LLMConfig configures the Gemini generateContent API.
type LLMConfig struct {
	APIKey            string        `koanf:"api_key"`
	Model             string        `koanf:"model"`
	BaseURL           string        `koanf:"base_url"`
	Temperature       float64       `koanf:"temperature"`
	RequestsPerMinute int           `koanf:"requests_per_minute"`
	Timeout           time.Duration `koanf:"timeout"`
}

// RecommendConfig tunes the on-demand recommendation pipeline.
type RecommendConfig struct {
	PageSize           int           `koanf:"page_size"`            // items served per request
	BatchSize          int           `koanf:"batch_size"`           // LLM suggestions requested per attempt
	MaxAttempts        int           `koanf:"max_attempts"`         // pipeline attempts per request
	BufferTTL          time.Duration `koanf:"buffer_ttl"`           // lifetime of a per-user buffer
	VerifyCacheTTL     time.Duration `koanf:"verify_cache_ttl"`     // positive and negative verification outcomes
	ProfileTTL         time.Duration `koanf:"profile_ttl"`          // taste profile freshness
	ProfileSampleSize  int           `koanf:"profile_sample_size"`  // items per media type sent to the LLM
	SparseThreshold    int           `koanf:"sparse_threshold"`     // profiles built from fewer items are refreshed
	HistoryLimit       int           `koanf:"history_limit"`        // Jellyfin played items fetched for exclusion
	DiscoveryFloor     int           `koanf:"discovery_floor"`      // below this pool size discovery relaxes filters
	MinVoteCount       int           `koanf:"min_vote_count"`       // TMDB vote_count.gte
	AnimationRatio     float64       `koanf:"animation_ratio"`      // cap for genre/keyword discovery
	AnchorAnimationCap int           `koanf:"anchor_animation_cap"` // animated items allowed per 10 anchor results
	AnchorCount        int           `koanf:"anchor_count"`         // recent titles used as anchors
	JellyseerrFallback bool          `koanf:"jellyseerr_fallback"`  // verify through Jellyseerr search when TMDB finds nothing
}

// WeeklyConfig configures weekly picks.
type WeeklyConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Schedule    string        `koanf:"schedule"` // 5-field cron
	Timezone    string        `koanf:"timezone"`
	PoolSize    int           `koanf:"pool_size"`    // discovery candidates per media type
	CuratorSize int           `koanf:"curator_size"` // shortlist size after stage one
	CriticSize  int           `koanf:"critic_size"`  // final picks per media type
	MaxAge      time.Duration `koanf:"max_age"`
}

// RedemptionConfig configures the blocked-item advisor.
type RedemptionConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Schedule      string        `koanf:"schedule"`
	Timezone      string        `koanf:"timezone"`
	MaxResults    int           `koanf:"max_results"`
	MaxAttempts   int           `koanf:"max_attempts"`   // 0 = no limit
	RecentHistory int           `koanf:"recent_history"` // watched items used for the current profile
	SoftBlock     time.Duration `koanf:"soft_block"`     // default window before a block is reconsidered
}

// JobsConfig configures the in-process job queue.
type JobsConfig struct {
	Buffer       int           `koanf:"buffer"`
	CloseTimeout time.Duration `koanf:"close_timeout"`
}

// SecurityConfig holds API security settings.
type SecurityConfig struct {
	JWTSecret          string        `koanf:"jwt_secret"`
	SessionTimeout     time.Duration `koanf:"session_timeout"`
	TokenEncryptionKey string        `koanf:"token_encryption_key"` // base64, encrypts stored Jellyfin tokens
	CORSOrigins        []string      `koanf:"cors_origins"`
	RateLimitReqs      int           `koanf:"rate_limit_reqs"`
	RateLimitWindow    time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled  bool          `koanf:"rate_limit_disabled"`
	AdminUsers         []string      `koanf:"admin_users"` // Jellyfin usernames granted admin besides server administrators
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Load reads configuration using the koanf layering described in the package
// documentation.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
