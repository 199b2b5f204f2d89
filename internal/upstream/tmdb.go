// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/marquee/internal/cache"
	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/normalize"
)

// DiscoverQuery parameterizes /discover. Genre and keyword IDs are OR-ed.
type DiscoverQuery struct {
	GenreIDs   []int
	KeywordIDs []int
	MinRating  float64
	MinVotes   int
	YearRange  *models.YearRange
	Page       int
}

// Title is a TMDB title with its enrichment.
type Title struct {
	Candidate models.Candidate
	Details   models.MediaDetails
}

// genreTable maps genre names to IDs and back for one media type.
type genreTable struct {
	byName map[string]int
	byID   map[int]string
}

// TMDBClient talks to the TMDB v3 API. Requests are paced with a token
// bucket so discovery fan-out stays under the provider's rate limit.
type TMDBClient struct {
	t         *transport
	cfg       config.TMDBConfig
	limiter   *rate.Limiter
	genreTabs *cache.Cache[*genreTable]
	keywords  *cache.Cache[int]
	imageURL  string
}

// NewTMDBClient creates a TMDB client.
func NewTMDBClient(cfg config.TMDBConfig) *TMDBClient {
	t := newTransport("tmdb", cfg.BaseURL, cfg.Timeout)
	if cfg.ReadAccessToken != "" {
		token := cfg.ReadAccessToken
		t.decorate = func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+token)
		}
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 35
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}

	return &TMDBClient{
		t:         t,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		genreTabs: cache.New[*genreTable]("tmdb_genres", 24*time.Hour),
		keywords:  cache.New[int]("tmdb_keywords", 24*time.Hour),
		imageURL:  strings.TrimSuffix(cfg.ImageBaseURL, "/"),
	}
}

// Close stops the lookup caches' sweepers.
func (c *TMDBClient) Close() {
	c.genreTabs.Close()
	c.keywords.Close()
}

func (c *TMDBClient) get(ctx context.Context, operation, path string, q url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if q == nil {
		q = url.Values{}
	}
	if c.cfg.ReadAccessToken == "" {
		q.Set("api_key", c.cfg.APIKey)
	}
	if c.cfg.Language != "" && q.Get("language") == "" {
		q.Set("language", c.cfg.Language)
	}
	return c.t.do(ctx, request{operation: operation, path: path, query: q}, out)
}

type resultPage struct {
	Results []normalize.Record `json:"results"`
}

// Discover queries /discover/{movie|tv}.
func (c *TMDBClient) Discover(ctx context.Context, mt models.MediaType, dq DiscoverQuery) ([]models.Candidate, error) {
	q := url.Values{}
	q.Set("sort_by", "popularity.desc")
	q.Set("include_adult", "false")
	if len(dq.GenreIDs) > 0 {
		q.Set("with_genres", joinIDs(dq.GenreIDs, "|"))
	}
	if len(dq.KeywordIDs) > 0 {
		q.Set("with_keywords", joinIDs(dq.KeywordIDs, "|"))
	}
	if dq.MinRating > 0 {
		q.Set("vote_average.gte", strconv.FormatFloat(dq.MinRating, 'f', 1, 64))
	}
	if dq.MinVotes > 0 {
		q.Set("vote_count.gte", strconv.Itoa(dq.MinVotes))
	}
	if yr := dq.YearRange; yr != nil {
		field := "primary_release_date"
		if mt == models.MediaTypeTV {
			field = "first_air_date"
		}
		if yr.From > 0 {
			q.Set(field+".gte", fmt.Sprintf("%04d-01-01", yr.From))
		}
		if yr.To > 0 {
			q.Set(field+".lte", fmt.Sprintf("%04d-12-31", yr.To))
		}
	}
	if dq.Page > 1 {
		q.Set("page", strconv.Itoa(dq.Page))
	}

	var page resultPage
	if err := c.get(ctx, "discover", "/discover/"+string(mt), q, &page); err != nil {
		return nil, err
	}
	return c.candidates(ctx, page.Results, mt), nil
}

// Search runs a multi search and keeps movie and TV results in rank order.
func (c *TMDBClient) Search(ctx context.Context, query string) ([]models.Candidate, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("include_adult", "false")

	var page resultPage
	if err := c.get(ctx, "search", "/search/multi", q, &page); err != nil {
		return nil, err
	}
	return c.candidates(ctx, page.Results, ""), nil
}

// Similar returns titles TMDB considers similar.
func (c *TMDBClient) Similar(ctx context.Context, mt models.MediaType, id int) ([]models.Candidate, error) {
	var page resultPage
	if err := c.get(ctx, "similar", fmt.Sprintf("/%s/%d/similar", mt, id), nil, &page); err != nil {
		return nil, err
	}
	return c.candidates(ctx, page.Results, mt), nil
}

// Recommendations returns TMDB's recommendations for a title.
func (c *TMDBClient) Recommendations(ctx context.Context, mt models.MediaType, id int) ([]models.Candidate, error) {
	var page resultPage
	if err := c.get(ctx, "recommendations", fmt.Sprintf("/%s/%d/recommendations", mt, id), nil, &page); err != nil {
		return nil, err
	}
	return c.candidates(ctx, page.Results, mt), nil
}

// Details fetches a title with keywords, cast, similar and recommendation
// IDs in one request.
func (c *TMDBClient) Details(ctx context.Context, mt models.MediaType, id int) (*Title, error) {
	q := url.Values{}
	q.Set("append_to_response", "keywords,similar,recommendations,credits")

	var rec normalize.Record
	if err := c.get(ctx, "details", fmt.Sprintf("/%s/%d", mt, id), q, &rec); err != nil {
		return nil, err
	}

	cand, ok := c.candidate(rec, mt)
	if !ok {
		return nil, fmt.Errorf("tmdb details for %s/%d missing id or title", mt, id)
	}
	for _, g := range rec.Records("genres") {
		if gid := g.Int("id"); gid > 0 {
			cand.GenreIDs = append(cand.GenreIDs, gid)
		}
		if name := g.String("name"); name != "" {
			cand.Genres = append(cand.Genres, name)
		}
	}

	var keywords []string
	if kw, ok := rec["keywords"].(map[string]any); ok {
		// movies nest under "keywords", series under "results"
		for _, key := range []string{"keywords", "results"} {
			for _, k := range normalize.Record(kw).Records(key) {
				if name := k.String("name"); name != "" {
					keywords = append(keywords, name)
				}
			}
		}
	}
	cand.Keywords = keywords

	var cast []string
	if credits, ok := rec["credits"].(map[string]any); ok {
		for i, p := range normalize.Record(credits).Records("cast") {
			if i >= 10 {
				break
			}
			if name := p.String("name"); name != "" {
				cast = append(cast, name)
			}
		}
	}

	return &Title{
		Candidate: cand,
		Details: models.MediaDetails{
			ExternalID:      cand.ExternalID,
			MediaType:       mt,
			Title:           cand.Title,
			Genres:          cand.Genres,
			Keywords:        keywords,
			Cast:            cast,
			Similar:         nestedIDs(rec, "similar"),
			Recommendations: nestedIDs(rec, "recommendations"),
			UpdatedAt:       time.Now().UTC(),
		},
	}, nil
}

// GenreIDs returns lowercase genre name to ID for a media type.
func (c *TMDBClient) GenreIDs(ctx context.Context, mt models.MediaType) (map[string]int, error) {
	table, err := c.genres(ctx, mt)
	if err != nil {
		return nil, err
	}
	return table.byName, nil
}

func (c *TMDBClient) genres(ctx context.Context, mt models.MediaType) (*genreTable, error) {
	key := "genres:" + string(mt)
	if table, ok := c.genreTabs.Get(key); ok {
		return table, nil
	}

	var resp struct {
		Genres []struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
		} `json:"genres"`
	}
	if err := c.get(ctx, "genres", "/genre/"+string(mt)+"/list", nil, &resp); err != nil {
		return nil, err
	}

	table := &genreTable{byName: make(map[string]int), byID: make(map[int]string)}
	for _, g := range resp.Genres {
		table.byName[strings.ToLower(g.Name)] = g.ID
		table.byID[g.ID] = g.Name
	}
	c.genreTabs.Set(key, table)
	return table, nil
}

// KeywordID resolves a keyword name to its TMDB ID. Zero means unknown.
func (c *TMDBClient) KeywordID(ctx context.Context, name string) (int, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return 0, nil
	}
	key := "keyword:" + name
	if id, ok := c.keywords.Get(key); ok {
		return id, nil
	}

	q := url.Values{}
	q.Set("query", name)
	var page resultPage
	if err := c.get(ctx, "keyword", "/search/keyword", q, &page); err != nil {
		return 0, err
	}

	id := 0
	for _, r := range page.Results {
		if strings.EqualFold(r.String("name"), name) {
			id = r.Int("id")
			break
		}
	}
	if id == 0 && len(page.Results) > 0 {
		id = page.Results[0].Int("id")
	}
	c.keywords.Set(key, id)
	return id, nil
}

// candidates maps result records, dropping people and malformed rows.
// Genre names are filled from the cached genre table when it loads.
func (c *TMDBClient) candidates(ctx context.Context, results []normalize.Record, fallback models.MediaType) []models.Candidate {
	out := make([]models.Candidate, 0, len(results))
	for _, r := range results {
		cand, ok := c.candidate(r, fallback)
		if !ok {
			continue
		}
		cand.GenreIDs = r.Ints("genre_ids")
		out = append(out, cand)
	}

	names := map[models.MediaType]*genreTable{}
	for i := range out {
		mt := out[i].MediaType
		table, seen := names[mt]
		if !seen {
			table, _ = c.genres(ctx, mt)
			names[mt] = table
		}
		if table == nil {
			continue
		}
		for _, id := range out[i].GenreIDs {
			if name, ok := table.byID[id]; ok {
				out[i].Genres = append(out[i].Genres, name)
			}
		}
	}
	return out
}

func (c *TMDBClient) candidate(r normalize.Record, fallback models.MediaType) (models.Candidate, bool) {
	ref, ok := r.MediaRef(fallback)
	if !ok || ref.ExternalID == 0 || !ref.MediaType.Valid() {
		return models.Candidate{}, false
	}
	cand := models.Candidate{
		MediaRef:    ref,
		Overview:    r.String("overview"),
		VoteAverage: r.Float("vote_average"),
		VoteCount:   r.Int("vote_count"),
		Popularity:  r.Float("popularity"),
	}
	if p := r.String("poster_path"); p != "" && c.imageURL != "" {
		cand.PosterURL = c.imageURL + "/w500" + p
	}
	if p := r.String("backdrop_path"); p != "" && c.imageURL != "" {
		cand.BackdropURL = c.imageURL + "/w1280" + p
	}
	return cand, true
}

func nestedIDs(rec normalize.Record, key string) []int {
	nested, ok := rec[key].(map[string]any)
	if !ok {
		return nil
	}
	var ids []int
	for _, r := range normalize.Record(nested).Records("results") {
		if id := r.Int("id"); id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

func joinIDs(ids []int, sep string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, sep)
}
