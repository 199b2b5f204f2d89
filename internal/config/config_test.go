// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// setupTestEnv clears the environment and sets the given variables for the
// duration of the test.
func setupTestEnv(t *testing.T, envVars map[string]string) {
	t.Helper()
	saved := os.Environ()
	os.Clearenv()
	for k, v := range envVars {
		os.Setenv(k, v)
	}
	t.Cleanup(func() {
		os.Clearenv()
		for _, kv := range saved {
			if i := strings.IndexByte(kv, '='); i > 0 {
				os.Setenv(kv[:i], kv[i+1:])
			}
		}
	})
}

func requiredEnv() map[string]string {
	return map[string]string{
		"JELLYFIN_URL":   "http://jellyfin:8096",
		"TMDB_API_KEY":   "tmdb-key",
		"GEMINI_API_KEY": "gemini-key",
		"JWT_SECRET":     "0123456789abcdef0123456789abcdef",
		"CONFIG_PATH":    "/nonexistent/config.yaml",
	}
}

func withEnv(extra map[string]string) map[string]string {
	env := requiredEnv()
	for k, v := range extra {
		env[k] = v
	}
	return env
}

func TestLoadDefaults(t *testing.T) {
	setupTestEnv(t, requiredEnv())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8097 {
		t.Errorf("Server.Port = %d, want 8097", cfg.Server.Port)
	}
	if cfg.Recommend.PageSize != 10 || cfg.Recommend.BatchSize != 30 || cfg.Recommend.MaxAttempts != 3 {
		t.Errorf("Recommend sizes = %d/%d/%d, want 10/30/3",
			cfg.Recommend.PageSize, cfg.Recommend.BatchSize, cfg.Recommend.MaxAttempts)
	}
	if cfg.Recommend.AnimationRatio != 0.3 {
		t.Errorf("AnimationRatio = %v, want 0.3", cfg.Recommend.AnimationRatio)
	}
	if cfg.Weekly.CuratorSize != 30 || cfg.Weekly.CriticSize != 10 {
		t.Errorf("Weekly sizes = %d/%d, want 30/10", cfg.Weekly.CuratorSize, cfg.Weekly.CriticSize)
	}
	if cfg.LLM.Model != "gemini-2.5-flash" {
		t.Errorf("LLM.Model = %q", cfg.LLM.Model)
	}
	if cfg.Recommend.VerifyCacheTTL != 6*time.Hour {
		t.Errorf("VerifyCacheTTL = %v, want 6h", cfg.Recommend.VerifyCacheTTL)
	}
	if cfg.Jellyseerr.Enabled {
		t.Error("Jellyseerr should be disabled by default")
	}
}

func TestLoadWithKoanfEnvVars(t *testing.T) {
	setupTestEnv(t, withEnv(map[string]string{
		"HTTP_PORT":                 "9000",
		"RECOMMEND_PAGE_SIZE":       "5",
		"RECOMMEND_ANIMATION_RATIO": "0.5",
		"RECOMMEND_BUFFER_TTL":      "45m",
		"JELLYSEERR_ENABLED":        "true",
		"JELLYSEERR_URL":            "http://seerr:5055",
		"JELLYSEERR_API_KEY":        "seerr-key",
		"CORS_ORIGINS":              "http://a.example, http://b.example",
		"ADMIN_USERS":               "alice,bob",
		"LOG_LEVEL":                 "debug",
		"UNRELATED_VARIABLE":        "ignored",
	}))

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Recommend.PageSize != 5 {
		t.Errorf("PageSize = %d, want 5", cfg.Recommend.PageSize)
	}
	if cfg.Recommend.AnimationRatio != 0.5 {
		t.Errorf("AnimationRatio = %v, want 0.5", cfg.Recommend.AnimationRatio)
	}
	if cfg.Recommend.BufferTTL != 45*time.Minute {
		t.Errorf("BufferTTL = %v, want 45m", cfg.Recommend.BufferTTL)
	}
	if !cfg.Jellyseerr.Enabled || cfg.Jellyseerr.APIKey != "seerr-key" {
		t.Errorf("Jellyseerr = %+v", cfg.Jellyseerr)
	}
	if len(cfg.Security.CORSOrigins) != 2 || cfg.Security.CORSOrigins[1] != "http://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.Security.CORSOrigins)
	}
	if len(cfg.Security.AdminUsers) != 2 {
		t.Errorf("AdminUsers = %v", cfg.Security.AdminUsers)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := `
server:
  port: 8500
recommend:
  history_limit: 1000
weekly:
  critic_size: 8
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o600); err != nil {
		t.Fatal(err)
	}

	env := withEnv(map[string]string{"CONFIG_PATH": path, "HTTP_PORT": "8600"})
	setupTestEnv(t, env)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8600 {
		t.Errorf("environment should override file: port = %d", cfg.Server.Port)
	}
	if cfg.Recommend.HistoryLimit != 1000 {
		t.Errorf("HistoryLimit = %d, want 1000", cfg.Recommend.HistoryLimit)
	}
	if cfg.Weekly.CriticSize != 8 {
		t.Errorf("CriticSize = %d, want 8", cfg.Weekly.CriticSize)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"missing jellyfin", map[string]string{"JELLYFIN_URL": ""}, "JELLYFIN_URL is required"},
		{"bad jellyfin scheme", map[string]string{"JELLYFIN_URL": "ftp://jf"}, "scheme must be http or https"},
		{"missing tmdb", map[string]string{"TMDB_API_KEY": ""}, "TMDB_API_KEY"},
		{"missing gemini", map[string]string{"GEMINI_API_KEY": ""}, "GEMINI_API_KEY is required"},
		{"short jwt", map[string]string{"JWT_SECRET": "short"}, "JWT_SECRET"},
		{"jellyseerr without key", map[string]string{"JELLYSEERR_ENABLED": "true", "JELLYSEERR_URL": "http://s:5055"}, "JELLYSEERR_API_KEY"},
		{"history too small", map[string]string{"RECOMMEND_HISTORY_LIMIT": "100"}, "RECOMMEND_HISTORY_LIMIT"},
		{"history too large", map[string]string{"RECOMMEND_HISTORY_LIMIT": "5000"}, "RECOMMEND_HISTORY_LIMIT"},
		{"ratio out of range", map[string]string{"RECOMMEND_ANIMATION_RATIO": "1.5"}, "RECOMMEND_ANIMATION_RATIO"},
		{"critic exceeds curator", map[string]string{"WEEKLY_CRITIC_SIZE": "40"}, "WEEKLY_CRITIC_SIZE"},
		{"bad schedule", map[string]string{"WEEKLY_SCHEDULE": "0 6 *"}, "WEEKLY_SCHEDULE"},
		{"bad timezone", map[string]string{"REDEMPTION_TIMEZONE": "Mars/Base"}, "REDEMPTION_TIMEZONE"},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}, "LOG_LEVEL"},
		{"bad encryption key", map[string]string{"TOKEN_ENCRYPTION_KEY": "!!!"}, "TOKEN_ENCRYPTION_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupTestEnv(t, withEnv(tt.env))
			_, err := Load()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := map[string]string{
		"HTTP_PORT":      "server.port",
		"GEMINI_API_KEY": "llm.api_key",
		"LLM_API_KEY":    "llm.api_key",
		"PATH":           "",
		"HOME":           "",
	}
	for in, want := range tests {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidateHTTPURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"http://jellyfin:8096", false},
		{"https://media.example.com/", false},
		{"https://media.example.com/jellyfin", false},
		{"jellyfin:8096", true},
		{"http://", true},
		{"http://host?x=1", true},
	}
	for _, tt := range tests {
		err := validateHTTPURL(tt.url, "TEST_URL")
		if (err != nil) != tt.wantErr {
			t.Errorf("validateHTTPURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
		}
	}
}
