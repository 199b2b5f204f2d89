// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package config

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tomtom215/marquee/internal/logging"
)

// Validate checks that required configuration is present and consistent.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateJellyfin,
		c.validateJellyseerr,
		c.validateTMDB,
		c.validateLLM,
		c.validateRecommend,
		c.validateWeekly,
		c.validateRedemption,
		c.validateSecurity,
		c.validateLogging,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if c.Cache.Persistent && c.Cache.Path == "" {
		return fmt.Errorf("CACHE_PATH is required when CACHE_PERSISTENT=true")
	}
	return nil
}

func (c *Config) validateJellyfin() error {
	if c.Jellyfin.URL == "" {
		return fmt.Errorf("JELLYFIN_URL is required")
	}
	if err := validateHTTPURL(c.Jellyfin.URL, "JELLYFIN_URL"); err != nil {
		return err
	}
	if c.Jellyfin.DeviceID == "" {
		return fmt.Errorf("JELLYFIN_DEVICE_ID must not be empty")
	}
	return nil
}

func (c *Config) validateJellyseerr() error {
	if !c.Jellyseerr.Enabled {
		return nil
	}
	if c.Jellyseerr.URL == "" {
		return fmt.Errorf("JELLYSEERR_URL is required when JELLYSEERR_ENABLED=true")
	}
	if err := validateHTTPURL(c.Jellyseerr.URL, "JELLYSEERR_URL"); err != nil {
		return err
	}
	if c.Jellyseerr.APIKey == "" {
		return fmt.Errorf("JELLYSEERR_API_KEY is required when JELLYSEERR_ENABLED=true")
	}
	return nil
}

func (c *Config) validateTMDB() error {
	if c.TMDB.APIKey == "" && c.TMDB.ReadAccessToken == "" {
		return fmt.Errorf("TMDB_API_KEY or TMDB_READ_ACCESS_TOKEN is required")
	}
	if err := validateAPIBase(c.TMDB.BaseURL, "TMDB_BASE_URL"); err != nil {
		return err
	}
	if c.TMDB.RequestsPerSecond <= 0 {
		return fmt.Errorf("TMDB_RATE_LIMIT must be positive")
	}
	return nil
}

func (c *Config) validateLLM() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("LLM_MODEL must not be empty")
	}
	if err := validateAPIBase(c.LLM.BaseURL, "LLM_BASE_URL"); err != nil {
		return err
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be between 0 and 2, got %.2f", c.LLM.Temperature)
	}
	return nil
}

func (c *Config) validateRecommend() error {
	r := c.Recommend
	switch {
	case r.PageSize < 1 || r.PageSize > 50:
		return fmt.Errorf("RECOMMEND_PAGE_SIZE must be between 1 and 50, got %d", r.PageSize)
	case r.BatchSize < r.PageSize:
		return fmt.Errorf("RECOMMEND_BATCH_SIZE (%d) must be at least RECOMMEND_PAGE_SIZE (%d)", r.BatchSize, r.PageSize)
	case r.MaxAttempts < 1:
		return fmt.Errorf("RECOMMEND_MAX_ATTEMPTS must be at least 1")
	case r.HistoryLimit < 200 || r.HistoryLimit > 2000:
		return fmt.Errorf("RECOMMEND_HISTORY_LIMIT must be between 200 and 2000, got %d", r.HistoryLimit)
	case r.AnimationRatio < 0 || r.AnimationRatio > 1:
		return fmt.Errorf("RECOMMEND_ANIMATION_RATIO must be between 0 and 1, got %.2f", r.AnimationRatio)
	case r.AnchorAnimationCap < 0 || r.AnchorAnimationCap > 10:
		return fmt.Errorf("RECOMMEND_ANCHOR_ANIMATION_CAP must be between 0 and 10, got %d", r.AnchorAnimationCap)
	case r.ProfileSampleSize < 1:
		return fmt.Errorf("RECOMMEND_PROFILE_SAMPLE_SIZE must be at least 1")
	case r.VerifyCacheTTL <= 0 || r.BufferTTL <= 0 || r.ProfileTTL <= 0:
		return fmt.Errorf("recommend TTLs must be positive")
	}
	return nil
}

func (c *Config) validateWeekly() error {
	w := c.Weekly
	if !w.Enabled {
		return nil
	}
	if err := validateSchedule(w.Schedule, w.Timezone, "WEEKLY"); err != nil {
		return err
	}
	if w.CriticSize < 1 || w.CuratorSize < 1 {
		return fmt.Errorf("WEEKLY_CURATOR_SIZE and WEEKLY_CRITIC_SIZE must be at least 1")
	}
	if w.CriticSize > w.CuratorSize {
		return fmt.Errorf("WEEKLY_CRITIC_SIZE (%d) must not exceed WEEKLY_CURATOR_SIZE (%d)", w.CriticSize, w.CuratorSize)
	}
	if w.PoolSize < w.CuratorSize {
		return fmt.Errorf("WEEKLY_POOL_SIZE (%d) must be at least WEEKLY_CURATOR_SIZE (%d)", w.PoolSize, w.CuratorSize)
	}
	return nil
}

func (c *Config) validateRedemption() error {
	r := c.Redemption
	if !r.Enabled {
		return nil
	}
	if err := validateSchedule(r.Schedule, r.Timezone, "REDEMPTION"); err != nil {
		return err
	}
	if r.MaxResults < 1 {
		return fmt.Errorf("REDEMPTION_MAX_RESULTS must be at least 1")
	}
	if r.MaxAttempts < 0 {
		return fmt.Errorf("REDEMPTION_MAX_ATTEMPTS must not be negative")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.Security.SessionTimeout <= 0 {
		return fmt.Errorf("SESSION_TIMEOUT must be positive")
	}
	if k := c.Security.TokenEncryptionKey; k != "" {
		raw, err := base64.StdEncoding.DecodeString(k)
		if err != nil {
			return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be base64: %w", err)
		}
		if len(raw) < 32 {
			return fmt.Errorf("TOKEN_ENCRYPTION_KEY must decode to at least 32 bytes")
		}
	}
	if !c.Security.RateLimitDisabled && (c.Security.RateLimitReqs < 1 || c.Security.RateLimitWindow <= 0) {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
		return nil
	}
	return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
}

func validateSchedule(spec, tz, prefix string) error {
	if len(strings.Fields(spec)) != 5 {
		return fmt.Errorf("%s_SCHEDULE must have 5 cron fields, got %q", prefix, spec)
	}
	if tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("%s_TIMEZONE is invalid: %w", prefix, err)
		}
	}
	return nil
}

// validateHTTPURL accepts base URLs only: http(s) scheme, a host and no query.
func validateHTTPURL(rawURL, fieldName string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %s", fieldName, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}
	if parsed.RawQuery != "" {
		return fmt.Errorf("%s should not contain query parameters, remove: ?%s", fieldName, parsed.RawQuery)
	}
	return nil
}

// validateAPIBase is validateHTTPURL for versioned API roots like /3 or /v1beta.
func validateAPIBase(rawURL, fieldName string) error {
	if rawURL == "" {
		return fmt.Errorf("%s must not be empty", fieldName)
	}
	return validateHTTPURL(rawURL, fieldName)
}
