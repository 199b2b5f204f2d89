// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/marquee/internal/auth"
	"github.com/tomtom215/marquee/internal/authz"
	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/database"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/recommend"
	"github.com/tomtom215/marquee/internal/upstream"
)

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu          sync.Mutex
	users       map[string]*models.User
	statuses    []models.UserMediaStatus
	lastFilter  database.StatusFilter
	set         []*models.UserMediaStatus
	removeErr   error
	removed     []string
	redemption  []models.RedemptionCandidate
	redeemedAt  time.Time
	redeemErr   error
	pingErr     error
	upsertCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[string]*models.User{}}
}

func (s *fakeStore) UpsertUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	if u.ID == "" {
		u.ID = "local-" + u.JellyfinUserID
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *fakeStore) SetMediaStatus(_ context.Context, st *models.UserMediaStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *st
	s.set = append(s.set, &cp)
	return nil
}

func (s *fakeStore) RemoveMediaStatus(_ context.Context, userID string, mt models.MediaType, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removeErr != nil {
		return s.removeErr
	}
	s.removed = append(s.removed, userID+"/"+string(mt))
	return nil
}

func (s *fakeStore) ListMediaStatus(_ context.Context, _ string, f database.StatusFilter) ([]models.UserMediaStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilter = f
	return s.statuses, nil
}

func (s *fakeStore) GetRedemptionCandidates(context.Context, string) ([]models.RedemptionCandidate, time.Time, error) {
	return s.redemption, s.redeemedAt, s.redeemErr
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

type fakeJellyfin struct {
	result *upstream.AuthResult
	err    error
	calls  int
}

func (f *fakeJellyfin) Authenticate(_ context.Context, _, _ string) (*upstream.AuthResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeRequester struct {
	result *upstream.RequestResult
	err    error
	got    string
}

func (f *fakeRequester) Request(_ context.Context, mt models.MediaType, id int) (*upstream.RequestResult, error) {
	f.got = string(mt)
	return f.result, f.err
}

type fakeRecommender struct {
	mu          sync.Mutex
	items       []models.Candidate
	err         error
	viewer      recommend.Viewer
	filter      recommend.Filter
	limit       int
	invalidated []string
}

func (f *fakeRecommender) Next(_ context.Context, v recommend.Viewer, flt recommend.Filter, limit int) ([]models.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.viewer, f.filter, f.limit = v, flt, limit
	return f.items, f.err
}

func (f *fakeRecommender) Invalidate(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, userID)
}

type fakeWeekly struct {
	rec    *models.WeeklyWatchlistRecord
	err    error
	queued int
}

func (f *fakeWeekly) Get(context.Context, string) (*models.WeeklyWatchlistRecord, error) {
	return f.rec, f.err
}

func (f *fakeWeekly) QueueAll(context.Context) (int, error) { return f.queued, f.err }

type fakeRedemption struct {
	out   []models.RedemptionCandidate
	err   error
	users []string
}

func (f *fakeRedemption) Evaluate(_ context.Context, userID string) ([]models.RedemptionCandidate, error) {
	f.users = append(f.users, userID)
	return f.out, f.err
}

type fakeEnrichment struct {
	refs []models.MediaRef
}

func (f *fakeEnrichment) Enqueue(_ context.Context, ref models.MediaRef) {
	f.refs = append(f.refs, ref)
}

// fakeResolver matches titles from a fixed catalog keyed by lower-case title.
type fakeResolver struct {
	titles map[string]models.Candidate
	asked  []recommend.Suggestion
}

func (f *fakeResolver) Verify(_ context.Context, s recommend.Suggestion) *models.Candidate {
	f.asked = append(f.asked, s)
	c, ok := f.titles[strings.ToLower(s.Title)]
	if !ok || (s.Year != "" && c.ReleaseYear != s.Year) || (s.MediaType != "" && c.MediaType != s.MediaType) {
		return nil
	}
	return &c
}

type fakeSessions struct {
	session upstream.Session
	err     error
}

func (f *fakeSessions) Seal(token string) (string, error) { return "sealed:" + token, nil }

func (f *fakeSessions) Session(context.Context, string) (upstream.Session, error) {
	return f.session, f.err
}

type fakeWS struct {
	user string
}

func (f *fakeWS) ServeWS(w http.ResponseWriter, _ *http.Request, userID string) {
	f.user = userID
	w.WriteHeader(http.StatusSwitchingProtocols)
}

type fakeBreaker struct{ name, state string }

func (b fakeBreaker) Name() string  { return b.name }
func (b fakeBreaker) State() string { return b.state }

type testEnv struct {
	cfg        *config.Config
	store      *fakeStore
	jellyfin   *fakeJellyfin
	requests   *fakeRequester
	recs       *fakeRecommender
	weekly     *fakeWeekly
	redemption *fakeRedemption
	enrich     *fakeEnrichment
	resolver   *fakeResolver
	sessions   *fakeSessions
	ws         *fakeWS
	jwt        *auth.JWTManager
	handler    *Handler
	server     http.Handler
}

func newTestEnv(t *testing.T, breakers ...BreakerStatus) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Security: config.SecurityConfig{
			JWTSecret:         "0123456789abcdef0123456789abcdef",
			SessionTimeout:    time.Hour,
			RateLimitDisabled: true,
			AdminUsers:        []string{"Root"},
		},
		Redemption: config.RedemptionConfig{SoftBlock: 30 * 24 * time.Hour},
	}
	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	enforcer, err := authz.NewEnforcer(nil)
	if err != nil {
		t.Fatalf("NewEnforcer: %v", err)
	}
	t.Cleanup(enforcer.Close)

	env := &testEnv{
		cfg:        cfg,
		store:      newFakeStore(),
		jellyfin:   &fakeJellyfin{},
		requests:   &fakeRequester{},
		recs:       &fakeRecommender{},
		weekly:     &fakeWeekly{},
		redemption: &fakeRedemption{},
		enrich:     &fakeEnrichment{},
		resolver:   &fakeResolver{},
		sessions:   &fakeSessions{session: upstream.Session{UserID: "jf-1", Token: "tok"}},
		ws:         &fakeWS{},
		jwt:        jwtManager,
	}
	env.handler = NewHandler(cfg, Deps{
		Store:       env.store,
		Jellyfin:    env.jellyfin,
		Jellyseerr:  env.requests,
		Recommender: env.recs,
		Weekly:      env.weekly,
		Redemption:  env.redemption,
		Enrichment:  env.enrich,
		Resolver:    env.resolver,
		Sessions:    env.sessions,
		JWT:         jwtManager,
		Limiter:     auth.NewLoginLimiter(2, time.Minute),
		WebSocket:   env.ws,
		Breakers:    breakers,
	})
	env.handler.now = func() time.Time { return testNow }

	router := NewRouter(env.handler, cfg,
		auth.NewMiddleware(jwtManager, WriteError),
		authz.NewMiddleware(enforcer, WriteError))
	env.server = router.Setup()
	return env
}

func (e *testEnv) token(t *testing.T, userID string, admin bool) string {
	t.Helper()
	tok, _, err := e.jwt.GenerateToken(&models.User{ID: userID, Username: userID, JellyfinUserID: "jf-" + userID, IsAdmin: admin})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return env
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env.Success || env.Error == nil {
		t.Fatalf("expected error envelope, got %s", rec.Body.String())
	}
	if env.Error.Code != code {
		t.Errorf("code = %q, want %q", env.Error.Code, code)
	}
}
