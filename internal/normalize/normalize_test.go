// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package normalize

import (
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/marquee/internal/models"
)

func TestTitleKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"The Matrix", "matrix"},
		{"the matrix", "matrix"},
		{"A Quiet Place", "quietplace"},
		{"An Education", "education"},
		{"Dune: Part Two", "dunepartwo"},
		{"Amélie", "amélie"},
		{"Theodore Rex", "theodorerex"},
		{"  ", ""},
		{"Se7en", "se7en"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := TitleKey(tt.in); got != tt.want {
				t.Errorf("TitleKey(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFallbackKey(t *testing.T) {
	if got := FallbackKey("The Matrix", "1999-03-31"); got != "matrix:1999" {
		t.Errorf("got %q", got)
	}
	if got := FallbackKey("The Matrix", ""); got != "matrix" {
		t.Errorf("got %q", got)
	}
	if got := FallbackKey("!!!", "1999"); got != "" {
		t.Errorf("got %q", got)
	}
}

func TestTitlesMatch(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"Dune", "Dune", true},
		{"Dune", "Dune: Part One", true},
		{"The Office (US)", "Office", true},
		{"Dune", "Arrival", false},
		{"", "Dune", false},
	}
	for _, tt := range tests {
		if got := TitlesMatch(tt.a, tt.b); got != tt.want {
			t.Errorf("TitlesMatch(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestYear(t *testing.T) {
	tests := map[string]string{
		"2021-10-22":           "2021",
		"1999":                 "1999",
		"2008-09-12T00:00:00Z": "2008",
		"19":                   "",
		"abcd":                 "",
		"20211":                "",
		"":                     "",
	}
	for in, want := range tests {
		if got := Year(in); got != want {
			t.Errorf("Year(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRecordMediaRef(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		fallback models.MediaType
		want     models.MediaRef
		wantOK   bool
	}{
		{
			name:   "jellyseerr movie",
			raw:    `{"id": 603, "mediaType": "movie", "title": "The Matrix", "releaseDate": "1999-03-30"}`,
			want:   models.MediaRef{ExternalID: 603, Title: "The Matrix", MediaType: models.MediaTypeMovie, ReleaseYear: "1999"},
			wantOK: true,
		},
		{
			name:   "jellyseerr tv uses name and firstAirDate",
			raw:    `{"id": 1396, "mediaType": "tv", "name": "Breaking Bad", "firstAirDate": "2008-01-20"}`,
			want:   models.MediaRef{ExternalID: 1396, Title: "Breaking Bad", MediaType: models.MediaTypeTV, ReleaseYear: "2008"},
			wantOK: true,
		},
		{
			name:     "llm suggestion with numeric year",
			raw:      `{"title": "Arrival", "year": 2016, "reason": "smart sci-fi"}`,
			fallback: models.MediaTypeMovie,
			want:     models.MediaRef{Title: "Arrival", MediaType: models.MediaTypeMovie, ReleaseYear: "2016"},
			wantOK:   true,
		},
		{
			name:   "snake case aliases",
			raw:    `{"tmdb_id": "27205", "media_type": "movie", "title": "Inception", "release_year": "2010"}`,
			want:   models.MediaRef{ExternalID: 27205, Title: "Inception", MediaType: models.MediaTypeMovie, ReleaseYear: "2010"},
			wantOK: true,
		},
		{
			name:   "person results are rejected",
			raw:    `{"id": 6384, "mediaType": "person", "name": "Keanu Reeves"}`,
			wantOK: false,
		},
		{
			name:     "series show type falls back",
			raw:      `{"id": 1396, "name": "Breaking Bad", "type": "Scripted", "first_air_date": "2008-01-20"}`,
			fallback: models.MediaTypeTV,
			want:     models.MediaRef{ExternalID: 1396, Title: "Breaking Bad", MediaType: models.MediaTypeTV, ReleaseYear: "2008"},
			wantOK:   true,
		},
		{
			name:   "unknown type without fallback",
			raw:    `{"id": 5, "title": "Thing", "type": "Scripted"}`,
			wantOK: false,
		},
		{
			name:   "empty record",
			raw:    `{"reason": "nothing"}`,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r Record
			if err := json.Unmarshal([]byte(tt.raw), &r); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			got, ok := r.MediaRef(tt.fallback)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("MediaRef() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRecordAccessors(t *testing.T) {
	var r Record
	raw := `{"genres": ["Drama", "Thriller"], "keywords": "heist, revenge", "vote": "7.5", "n": 3.0}`
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		t.Fatal(err)
	}
	if got := r.Strings("genres"); len(got) != 2 || got[1] != "Thriller" {
		t.Errorf("genres = %v", got)
	}
	if got := r.Strings("keywords"); len(got) != 2 || got[0] != "heist" {
		t.Errorf("keywords = %v", got)
	}
	if got := r.Float("vote"); got != 7.5 {
		t.Errorf("vote = %v", got)
	}
	if got := r.Int("n"); got != 3 {
		t.Errorf("n = %v", got)
	}
	if got := r.Strings("missing"); got != nil {
		t.Errorf("missing = %v", got)
	}
}

func TestRecordIntsAndRecords(t *testing.T) {
	var r Record
	raw := `{"genre_ids": [18, 16, "x", 0], "genres": [{"id": 18, "name": "Drama"}, "bad"]}`
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		t.Fatal(err)
	}

	ids := r.Ints("genre_ids")
	if len(ids) != 2 || ids[0] != 18 || ids[1] != 16 {
		t.Errorf("Ints() = %v, want [18 16]", ids)
	}
	genres := r.Records("genres")
	if len(genres) != 1 || genres[0].String("name") != "Drama" {
		t.Errorf("Records() = %v", genres)
	}
	if r.Ints("missing") != nil || r.Records("missing") != nil {
		t.Error("missing keys should return nil")
	}
}
