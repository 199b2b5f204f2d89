// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/marquee/config.yaml",
	"/etc/marquee/config.yml",
}

// ConfigPathEnvVar names the variable holding an explicit config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8097,
			Host:            "0.0.0.0",
			Timeout:         90 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Environment:     "development",
		},
		Database: DatabaseConfig{
			Path:      "/data/marquee.duckdb",
			MaxMemory: "512MB",
		},
		Cache: CacheConfig{
			Persistent: true,
			Path:       "/data/cache",
			GCInterval: 10 * time.Minute,
		},
		Jellyfin: JellyfinConfig{
			ClientName: "Marquee",
			DeviceName: "Marquee Server",
			DeviceID:   "marquee-server",
			Version:    "1.0.0",
			Timeout:    15 * time.Second,
		},
		Jellyseerr: JellyseerrConfig{
			Timeout: 10 * time.Second,
		},
		TMDB: TMDBConfig{
			BaseURL:           "https://api.themoviedb.org/3",
			ImageBaseURL:      "https://image.tmdb.org/t/p",
			Language:          "en-US",
			RequestsPerSecond: 35,
			Timeout:           10 * time.Second,
		},
		LLM: LLMConfig{
			Model:             "gemini-2.5-flash",
			BaseURL:           "https://generativelanguage.googleapis.com/v1beta",
			Temperature:       0.7,
			RequestsPerMinute: 30,
			Timeout:           45 * time.Second,
		},
		Recommend: RecommendConfig{
			PageSize:           10,
			BatchSize:          30,
			MaxAttempts:        3,
			BufferTTL:          30 * time.Minute,
			VerifyCacheTTL:     6 * time.Hour,
			ProfileTTL:         6 * time.Hour,
			ProfileSampleSize:  50,
			SparseThreshold:    10,
			HistoryLimit:       500,
			DiscoveryFloor:     20,
			MinVoteCount:       100,
			AnimationRatio:     0.3,
			AnchorAnimationCap: 4,
			AnchorCount:        10,
			JellyseerrFallback: true,
		},
		Weekly: WeeklyConfig{
			Enabled:     true,
			Schedule:    "0 6 * * 1",
			Timezone:    "UTC",
			PoolSize:    100,
			CuratorSize: 30,
			CriticSize:  10,
			MaxAge:      7 * 24 * time.Hour,
		},
		Redemption: RedemptionConfig{
			Enabled:       true,
			Schedule:      "0 5 * * *",
			Timezone:      "UTC",
			MaxResults:    5,
			MaxAttempts:   0,
			RecentHistory: 30,
			SoftBlock:     30 * 24 * time.Hour,
		},
		Jobs: JobsConfig{
			Buffer:       256,
			CloseTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			SessionTimeout:  7 * 24 * time.Hour,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   120,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf loads defaults, the optional YAML file and the environment,
// then validates the result.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths accept comma separated strings from the environment.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"security.admin_users",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		raw, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		var parts []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// Variables not listed here are ignored.
var envMappings = map[string]string{
	"http_port":             "server.port",
	"http_host":             "server.host",
	"http_timeout":          "server.timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"environment":           "server.environment",

	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	"cache_persistent":  "cache.persistent",
	"cache_path":        "cache.path",
	"cache_gc_interval": "cache.gc_interval",

	"jellyfin_url":         "jellyfin.url",
	"jellyfin_client_name": "jellyfin.client_name",
	"jellyfin_device_name": "jellyfin.device_name",
	"jellyfin_device_id":   "jellyfin.device_id",
	"jellyfin_timeout":     "jellyfin.timeout",

	"jellyseerr_enabled": "jellyseerr.enabled",
	"jellyseerr_url":     "jellyseerr.url",
	"jellyseerr_api_key": "jellyseerr.api_key",
	"jellyseerr_timeout": "jellyseerr.timeout",

	"tmdb_api_key":           "tmdb.api_key",
	"tmdb_read_access_token": "tmdb.read_access_token",
	"tmdb_base_url":          "tmdb.base_url",
	"tmdb_image_base_url":    "tmdb.image_base_url",
	"tmdb_language":          "tmdb.language",
	"tmdb_rate_limit":        "tmdb.requests_per_second",
	"tmdb_timeout":           "tmdb.timeout",

	"gemini_api_key":   "llm.api_key",
	"llm_api_key":      "llm.api_key",
	"llm_model":        "llm.model",
	"llm_base_url":     "llm.base_url",
	"llm_temperature":  "llm.temperature",
	"llm_rate_per_min": "llm.requests_per_minute",
	"llm_timeout":      "llm.timeout",

	"recommend_page_size":            "recommend.page_size",
	"recommend_batch_size":           "recommend.batch_size",
	"recommend_max_attempts":         "recommend.max_attempts",
	"recommend_buffer_ttl":           "recommend.buffer_ttl",
	"recommend_verify_cache_ttl":     "recommend.verify_cache_ttl",
	"recommend_profile_ttl":          "recommend.profile_ttl",
	"recommend_profile_sample_size":  "recommend.profile_sample_size",
	"recommend_sparse_threshold":     "recommend.sparse_threshold",
	"recommend_history_limit":        "recommend.history_limit",
	"recommend_discovery_floor":      "recommend.discovery_floor",
	"recommend_min_vote_count":       "recommend.min_vote_count",
	"recommend_animation_ratio":      "recommend.animation_ratio",
	"recommend_anchor_animation_cap": "recommend.anchor_animation_cap",
	"recommend_anchor_count":         "recommend.anchor_count",
	"recommend_jellyseerr_fallback":  "recommend.jellyseerr_fallback",

	"weekly_enabled":      "weekly.enabled",
	"weekly_schedule":     "weekly.schedule",
	"weekly_timezone":     "weekly.timezone",
	"weekly_pool_size":    "weekly.pool_size",
	"weekly_curator_size": "weekly.curator_size",
	"weekly_critic_size":  "weekly.critic_size",
	"weekly_max_age":      "weekly.max_age",

	"redemption_enabled":        "redemption.enabled",
	"redemption_schedule":       "redemption.schedule",
	"redemption_timezone":       "redemption.timezone",
	"redemption_max_results":    "redemption.max_results",
	"redemption_max_attempts":   "redemption.max_attempts",
	"redemption_recent_history": "redemption.recent_history",
	"redemption_soft_block":     "redemption.soft_block",

	"jobs_buffer":        "jobs.buffer",
	"jobs_close_timeout": "jobs.close_timeout",

	"jwt_secret":           "security.jwt_secret",
	"session_timeout":      "security.session_timeout",
	"token_encryption_key": "security.token_encryption_key",
	"cors_origins":         "security.cors_origins",
	"rate_limit_requests":  "security.rate_limit_reqs",
	"rate_limit_window":    "security.rate_limit_window",
	"disable_rate_limit":   "security.rate_limit_disabled",
	"admin_users":          "security.admin_users",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable to its koanf path, or ""
// to skip it.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
