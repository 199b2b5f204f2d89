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
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/models"
)

func testJellyfinConfig(url string) config.JellyfinConfig {
	return config.JellyfinConfig{
		URL:        url,
		ClientName: "Marquee",
		DeviceName: "Marquee Test",
		DeviceID:   "marquee-test",
		Version:    "1.0.0",
		Timeout:    5 * time.Second,
	}
}

const jellyfinItemsResponse = `{
  "Items": [
    {"Name": "The Matrix", "Type": "Movie", "ProductionYear": 1999,
     "ProviderIds": {"Tmdb": "603", "Imdb": "tt0133093"}, "Genres": ["Action"],
     "CommunityRating": 8.2, "UserData": {"LastPlayedDate": "2026-01-02T20:11:32.1234567Z"}},
    {"Name": "Home Video", "Type": "Movie", "PremiereDate": "2015-06-01T00:00:00.0000000Z", "ProviderIds": {}},
    {"Name": "Breaking Bad", "Type": "Series", "ProductionYear": 2008, "ProviderIds": {"tmdb": "1396"}},
    {"Name": "Some Album", "Type": "MusicAlbum", "ProviderIds": {}}
  ],
  "TotalRecordCount": 4
}`

func TestJellyfinAuthenticate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Users/AuthenticateByName" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		auth := r.Header.Get("X-Emby-Authorization")
		for _, want := range []string{`MediaBrowser Client="Marquee"`, `DeviceId="marquee-test"`, `Version="1.0.0"`} {
			if !strings.Contains(auth, want) {
				t.Errorf("X-Emby-Authorization = %q, missing %q", auth, want)
			}
		}

		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["Username"] != "alice" {
			t.Errorf("Username = %q", body["Username"])
		}
		if body["Pw"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"User": {"Id": "jf-1", "Name": "Alice", "Policy": {"IsAdministrator": true}}, "AccessToken": "tok-1"}`)
	}))
	defer server.Close()

	client := NewJellyfinClient(testJellyfinConfig(server.URL))

	got, err := client.Authenticate(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if got.UserID != "jf-1" || got.AccessToken != "tok-1" || !got.IsAdmin || got.Username != "Alice" {
		t.Errorf("Authenticate() = %+v", got)
	}

	_, err = client.Authenticate(context.Background(), "alice", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("bad password error = %v, want ErrInvalidCredentials", err)
	}
}

func TestJellyfinUserHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Users/jf-1/Items" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("X-Emby-Token") != "tok-1" {
			t.Errorf("X-Emby-Token = %q", r.Header.Get("X-Emby-Token"))
		}
		q := r.URL.Query()
		if q.Get("Filters") != "IsPlayed" || q.Get("Limit") != "500" || q.Get("IncludeItemTypes") != "Movie,Series" {
			t.Errorf("query = %v", q)
		}
		_, _ = io.WriteString(w, jellyfinItemsResponse)
	}))
	defer server.Close()

	client := NewJellyfinClient(testJellyfinConfig(server.URL))
	items, err := client.UserHistory(context.Background(), Session{UserID: "jf-1", Token: "tok-1"}, 500)
	if err != nil {
		t.Fatalf("UserHistory() error = %v", err)
	}

	if len(items) != 3 {
		t.Fatalf("UserHistory() returned %d items, want 3 (music dropped)", len(items))
	}
	want := []models.MediaRef{
		{ExternalID: 603, Title: "The Matrix", MediaType: models.MediaTypeMovie, ReleaseYear: "1999"},
		{ExternalID: 0, Title: "Home Video", MediaType: models.MediaTypeMovie, ReleaseYear: "2015"},
		{ExternalID: 1396, Title: "Breaking Bad", MediaType: models.MediaTypeTV, ReleaseYear: "2008"},
	}
	for i, w := range want {
		if items[i].Ref != w {
			t.Errorf("item %d = %+v, want %+v", i, items[i].Ref, w)
		}
	}
	if items[0].LastPlayed.IsZero() {
		t.Error("LastPlayed not parsed")
	}
}

func TestJellyfinExpiredToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewJellyfinClient(testJellyfinConfig(server.URL))
	_, err := client.LibraryItems(context.Background(), Session{UserID: "jf-1", Token: "stale"})
	if !errors.Is(err, ErrAuthExpired) {
		t.Errorf("LibraryItems() error = %v, want ErrAuthExpired", err)
	}

	_, err = client.UserHistory(context.Background(), Session{}, 10)
	if !errors.Is(err, ErrAuthExpired) {
		t.Errorf("empty session error = %v, want ErrAuthExpired", err)
	}
}

func TestJellyfinForbiddenIsNotExpiry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewJellyfinClient(testJellyfinConfig(server.URL))
	_, err := client.LibraryItems(context.Background(), Session{UserID: "jf-1", Token: "t"})
	if errors.Is(err, ErrAuthExpired) {
		t.Fatalf("LibraryItems() error = %v, 403 must not read as an expired session", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusForbidden {
		t.Errorf("error = %v, want jellyfin StatusError 403", err)
	}
}

func TestJellyfinServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewJellyfinClient(testJellyfinConfig(server.URL))
	_, err := client.LibraryItems(context.Background(), Session{UserID: "jf-1", Token: "t"})

	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusInternalServerError || se.Service != "jellyfin" {
		t.Errorf("error = %v, want jellyfin StatusError 500", err)
	}
}
