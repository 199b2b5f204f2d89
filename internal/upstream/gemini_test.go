// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/marquee/internal/config"
)

func TestGeminiGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.5-flash:generateContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "llm-key" {
			t.Errorf("key = %q", r.URL.Query().Get("key"))
		}
		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if len(req.Contents) != 1 || req.Contents[0].Parts[0].Text != "suggest films" {
			t.Errorf("contents = %+v", req.Contents)
		}
		if req.GenerationConfig.ResponseMimeType != "application/json" {
			t.Errorf("responseMimeType = %q", req.GenerationConfig.ResponseMimeType)
		}
		_, _ = io.WriteString(w, `{"candidates": [{"content": {"parts": [{"text": "[{\"title\": "}, {"text": "\"Heat\"}]"}]}}]}`)
	}))
	defer server.Close()

	client := NewGeminiClient(config.LLMConfig{
		APIKey: "llm-key", Model: "gemini-2.5-flash", BaseURL: server.URL,
		Temperature: 0.7, RequestsPerMinute: 600, Timeout: 5 * time.Second,
	})

	got, err := client.Generate(context.Background(), "suggest films")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != `[{"title": "Heat"}]` {
		t.Errorf("Generate() = %q", got)
	}
}

func TestGeminiEmptyCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"candidates": []}`)
	}))
	defer server.Close()

	client := NewGeminiClient(config.LLMConfig{APIKey: "k", Model: "m", BaseURL: server.URL, RequestsPerMinute: 600})
	if _, err := client.Generate(context.Background(), "x"); !errors.Is(err, ErrEmptyCompletion) {
		t.Errorf("error = %v, want ErrEmptyCompletion", err)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain array", `[{"title": "Heat"}]`, `[{"title": "Heat"}]`},
		{"json fence", "```json\n[{\"title\": \"Heat\"}]\n```", `[{"title": "Heat"}]`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"prose around", "Sure! Here you go:\n[1, 2]\nEnjoy.", `[1, 2]`},
		{"object", `Result: {"recommend": true} done`, `{"recommend": true}`},
		{"no json", "nothing here", "nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractJSON(tt.in); got != tt.want {
				t.Errorf("ExtractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}
