// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package normalize maps loosely shaped external records onto strict internal
// types and produces the comparison keys used for title matching.
//
// Jellyfin, Jellyseerr, TMDB and LLM output all spell the same facts
// differently (tmdbId, tmdb_id, id; title vs name; releaseDate vs
// firstAirDate). Everything crossing into the pipeline goes through Record so
// the rest of the code only ever sees models.MediaRef.
package normalize

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/tomtom215/marquee/internal/models"
)

var leadingArticles = []string{"the ", "a ", "an "}

// TitleKey lowercases title, drops one leading English article and removes
// everything that is not a letter or digit.
//
//	TitleKey("The Matrix: Reloaded") == "matrixreloaded"
func TitleKey(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	for _, a := range leadingArticles {
		if strings.HasPrefix(t, a) {
			t = t[len(a):]
			break
		}
	}

	var b strings.Builder
	b.Grow(len(t))
	for _, r := range t {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FallbackKey is the secondary exclusion key used when an item carries no
// external ID. An empty year yields the bare title key.
func FallbackKey(title, year string) string {
	k := TitleKey(title)
	if k == "" {
		return ""
	}
	if y := Year(year); y != "" {
		return k + ":" + y
	}
	return k
}

// TitlesMatch reports whether one normalised title contains the other.
func TitlesMatch(a, b string) bool {
	ka, kb := TitleKey(a), TitleKey(b)
	if ka == "" || kb == "" {
		return false
	}
	return strings.Contains(ka, kb) || strings.Contains(kb, ka)
}

// Year extracts a four digit year from a date ("2021-10-22"), a bare year or
// a float rendered by a JSON decoder ("1999"). Anything else yields "".
func Year(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 4 {
		return ""
	}
	y := s[:4]
	for _, r := range y {
		if r < '0' || r > '9' {
			return ""
		}
	}
	if len(s) > 4 && s[4] != '-' && s[4] != '.' && s[4] != 'T' {
		return ""
	}
	return y
}

// nonTitleTypes are search result kinds that never map to a title. Other
// unrecognised type values (TMDB series carry "Scripted", "Miniseries")
// fall back to the caller's media type.
var nonTitleTypes = map[string]bool{
	"person":     true,
	"collection": true,
	"company":    true,
	"keyword":    true,
	"network":    true,
}

// Record is a decoded JSON object of unknown shape.
type Record map[string]any

var (
	idKeys    = []string{"tmdbId", "tmdb_id", "tmdbid", "TmdbId", "externalId", "external_id", "mediaId", "id"}
	titleKeys = []string{"title", "name", "Name", "Title", "originalTitle", "original_title", "originalName", "original_name"}
	typeKeys  = []string{"mediaType", "media_type", "type", "Type"}
	yearKeys  = []string{"releaseYear", "release_year", "year", "Year", "ProductionYear", "releaseDate", "release_date", "firstAirDate", "first_air_date", "PremiereDate"}
)

// String returns the first non-empty value among keys rendered as a string.
func (r Record) String(keys ...string) string {
	for _, k := range keys {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		if s := stringify(v); s != "" {
			return s
		}
	}
	return ""
}

// Int returns the first value among keys that parses as a positive integer.
func (r Record) Int(keys ...string) int {
	for _, k := range keys {
		if n := toInt(r[k]); n > 0 {
			return n
		}
	}
	return 0
}

// Float returns the first numeric value among keys.
func (r Record) Float(keys ...string) float64 {
	for _, k := range keys {
		switch v := r[k].(type) {
		case float64:
			return v
		case int:
			return float64(v)
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f
			}
		}
	}
	return 0
}

// Strings returns a string slice stored under key. Comma separated strings
// are split.
func (r Record) Strings(key string) []string {
	switch v := r[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s := strings.TrimSpace(stringify(item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		var out []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}

// Ints returns the positive integers stored under key.
func (r Record) Ints(key string) []int {
	raw, ok := r[key].([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(raw))
	for _, v := range raw {
		if n := toInt(v); n > 0 {
			out = append(out, n)
		}
	}
	return out
}

// Records returns the objects stored under key.
func (r Record) Records(key string) []Record {
	raw, ok := r[key].([]any)
	if !ok {
		return nil
	}
	out := make([]Record, 0, len(raw))
	for _, v := range raw {
		if m, ok := v.(map[string]any); ok {
			out = append(out, Record(m))
		}
	}
	return out
}

// MediaRef maps the record onto a MediaRef. fallbackType is used when the
// record has no recognisable media type. ok is false when the record has
// neither an ID nor a title, names a non-title type such as "person", or
// carries an unknown type with no fallback.
func (r Record) MediaRef(fallbackType models.MediaType) (models.MediaRef, bool) {
	ref := models.MediaRef{
		ExternalID:  r.Int(idKeys...),
		Title:       strings.TrimSpace(r.String(titleKeys...)),
		ReleaseYear: Year(r.String(yearKeys...)),
		MediaType:   fallbackType,
	}

	if raw := r.String(typeKeys...); raw != "" {
		if mt, ok := models.ParseMediaType(raw); ok {
			ref.MediaType = mt
		} else if nonTitleTypes[strings.ToLower(raw)] || !fallbackType.Valid() {
			return models.MediaRef{}, false
		}
	}

	if ref.ExternalID == 0 && ref.Title == "" {
		return models.MediaRef{}, false
	}
	return ref, true
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case interface{ String() string }:
		return x.String()
	}
	return ""
}

func toInt(v any) int {
	switch x := v.(type) {
	case float64:
		if x > 0 && x == float64(int64(x)) {
			return int(x)
		}
	case int:
		return x
	case int64:
		return int(x)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
			return n
		}
	case interface{ String() string }:
		if n, err := strconv.Atoi(x.String()); err == nil {
			return n
		}
	}
	return 0
}
