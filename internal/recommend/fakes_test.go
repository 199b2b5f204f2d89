// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/database"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/normalize"
	"github.com/tomtom215/marquee/internal/upstream"
)

func testRecommendConfig() config.RecommendConfig {
	return config.RecommendConfig{
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
	}
}

func movie(id int, title, year string, genres ...string) models.Candidate {
	return models.Candidate{
		MediaRef:    models.MediaRef{ExternalID: id, Title: title, MediaType: models.MediaTypeMovie, ReleaseYear: year},
		Genres:      genres,
		VoteAverage: 7.0,
	}
}

func show(id int, title, year string, genres ...string) models.Candidate {
	c := movie(id, title, year, genres...)
	c.MediaType = models.MediaTypeTV
	return c
}

func animated(c models.Candidate) models.Candidate {
	c.GenreIDs = append(c.GenreIDs, models.AnimationGenreID)
	c.Genres = append(c.Genres, "Animation")
	return c
}

// fakeStatuses is an in-memory StatusStore.
type fakeStatuses struct {
	mu       sync.Mutex
	rows     map[string][]models.UserMediaStatus
	attempts map[int]int
	err      error
}

func newFakeStatuses() *fakeStatuses {
	return &fakeStatuses{rows: map[string][]models.UserMediaStatus{}, attempts: map[int]int{}}
}

// add appends a row. Rows are listed in insertion order, newest first.
func (f *fakeStatuses) add(userID string, status models.ListStatus, ref models.MediaRef) {
	f.addRow(models.UserMediaStatus{UserID: userID, Media: ref, Status: status})
}

func (f *fakeStatuses) addRow(row models.UserMediaStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().Add(-time.Duration(len(f.rows[row.UserID])) * time.Hour)
	}
	f.rows[row.UserID] = append(f.rows[row.UserID], row)
}

func (f *fakeStatuses) ListMediaStatus(_ context.Context, userID string, filter database.StatusFilter) ([]models.UserMediaStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []models.UserMediaStatus
	for _, r := range f.rows[userID] {
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, r.Status) {
			continue
		}
		if filter.MediaType != "" && r.Media.MediaType != filter.MediaType {
			continue
		}
		r.RedemptionAttempts += f.attempts[r.Media.ExternalID]
		out = append(out, r)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func containsStatus(list []models.ListStatus, s models.ListStatus) bool {
	for _, l := range list {
		if l == s {
			return true
		}
	}
	return false
}

func (f *fakeStatuses) IncrementRedemptionAttempts(_ context.Context, _ string, _ models.MediaType, externalID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[externalID]++
	return nil
}

// fakeDetails is an in-memory DetailsStore.
type fakeDetails struct {
	mu    sync.Mutex
	items map[string]models.MediaDetails
}

func newFakeDetails() *fakeDetails {
	return &fakeDetails{items: map[string]models.MediaDetails{}}
}

func detailsKey(mt models.MediaType, id int) string { return fmt.Sprintf("%s/%d", mt, id) }

func (f *fakeDetails) SaveMediaDetails(_ context.Context, d *models.MediaDetails) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[detailsKey(d.MediaType, d.ExternalID)] = *d
	return nil
}

func (f *fakeDetails) GetMediaDetails(_ context.Context, mt models.MediaType, id int) (*models.MediaDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.items[detailsKey(mt, id)]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &d, nil
}

type fakeUsers struct {
	users []models.User
}

func (f *fakeUsers) ListUsers(context.Context) ([]models.User, error) {
	return f.users, nil
}

// fakeWeekly is an in-memory WeeklyStore.
type fakeWeekly struct {
	mu     sync.Mutex
	latest map[string]*models.WeeklyWatchlistRecord
	saves  int
	failOn string
}

func newFakeWeekly() *fakeWeekly {
	return &fakeWeekly{latest: map[string]*models.WeeklyWatchlistRecord{}}
}

func (f *fakeWeekly) SaveWeeklyRecord(_ context.Context, rec *models.WeeklyWatchlistRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec.UserID == f.failOn {
		return errors.New("disk full")
	}
	cp := *rec
	f.latest[rec.UserID] = &cp
	f.saves++
	return nil
}

func (f *fakeWeekly) LatestWeeklyRecord(_ context.Context, userID string) (*models.WeeklyWatchlistRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.latest[userID]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

type fakeRedemption struct {
	mu    sync.Mutex
	saved map[string][]models.RedemptionCandidate
}

func (f *fakeRedemption) SaveRedemptionCandidates(_ context.Context, userID string, c []models.RedemptionCandidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = map[string][]models.RedemptionCandidate{}
	}
	f.saved[userID] = c
	return nil
}

// fakeMedia is a MediaServer.
type fakeMedia struct {
	history    []upstream.LibraryItem
	library    []upstream.LibraryItem
	historyErr error
	libraryErr error
}

func (f *fakeMedia) UserHistory(context.Context, upstream.Session, int) ([]upstream.LibraryItem, error) {
	return f.history, f.historyErr
}

func (f *fakeMedia) LibraryItems(context.Context, upstream.Session) ([]upstream.LibraryItem, error) {
	return f.library, f.libraryErr
}

// fakeCatalog is a Catalog. Search matches on normalised title containment
// so a query behaves like TMDB's fuzzy search.
type fakeCatalog struct {
	mu          sync.Mutex
	titles      []models.Candidate
	details     map[int]*upstream.Title
	genres      map[string]int
	keywords    map[string]int
	discover    func(q upstream.DiscoverQuery) []models.Candidate
	searchErr   error
	searches    int
	discoveries []upstream.DiscoverQuery
}

func (f *fakeCatalog) Discover(_ context.Context, mt models.MediaType, q upstream.DiscoverQuery) ([]models.Candidate, error) {
	f.mu.Lock()
	f.discoveries = append(f.discoveries, q)
	f.mu.Unlock()
	if f.discover == nil {
		return nil, nil
	}
	return f.discover(q), nil
}

func (f *fakeCatalog) Search(_ context.Context, query string) ([]models.Candidate, error) {
	f.mu.Lock()
	f.searches++
	f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var out []models.Candidate
	for _, c := range f.titles {
		if normalize.TitlesMatch(c.Title, query) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCatalog) Details(_ context.Context, _ models.MediaType, id int) (*upstream.Title, error) {
	if t, ok := f.details[id]; ok {
		return t, nil
	}
	return nil, &upstream.StatusError{Service: "tmdb", Code: 404}
}

func (f *fakeCatalog) GenreIDs(context.Context, models.MediaType) (map[string]int, error) {
	return f.genres, nil
}

func (f *fakeCatalog) KeywordID(_ context.Context, name string) (int, error) {
	if id, ok := f.keywords[strings.ToLower(name)]; ok {
		return id, nil
	}
	return 0, &upstream.StatusError{Service: "tmdb", Code: 404}
}

func (f *fakeCatalog) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searches
}

// fakeRequests is a RequestManager.
type fakeRequests struct {
	enabled  bool
	statuses map[int]models.RequestStatus
	results  []models.Candidate
}

func (f *fakeRequests) Enabled() bool { return f.enabled }

func (f *fakeRequests) Status(_ context.Context, _ models.MediaType, id int) (models.RequestStatus, error) {
	if s, ok := f.statuses[id]; ok {
		return s, nil
	}
	return models.RequestStatusUnknown, nil
}

func (f *fakeRequests) Search(context.Context, string) ([]models.Candidate, error) {
	return f.results, nil
}

// fakeLLM answers prompts through respond and counts calls.
type fakeLLM struct {
	mu      sync.Mutex
	respond func(prompt string) (string, error)
	prompts []string
}

func (f *fakeLLM) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return f.respond(prompt)
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

// fakePublisher records published jobs.
type fakePublisher struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, topic string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, topic)
	return nil
}

func (f *fakePublisher) count(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.published {
		if t == topic {
			n++
		}
	}
	return n
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) Notify(userID, event string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, userID+":"+event)
}

// suggestionsJSON renders suggestions the way the LLM is asked to.
func suggestionsJSON(items ...models.Candidate) string {
	parts := make([]string, 0, len(items))
	for _, c := range items {
		parts = append(parts, fmt.Sprintf(`{"title": %q, "year": %s, "reason": "because"}`, c.Title, c.ReleaseYear))
	}
	return "```json\n[" + strings.Join(parts, ",\n") + "]\n```"
}
