// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"context"

	"github.com/tomtom215/marquee/internal/database"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/upstream"
)

// The interfaces below are the pipeline's view of its collaborators. The
// database, upstream and jobs packages satisfy them; tests use fakes.

// StatusStore reads and updates a user's list entries.
type StatusStore interface {
	ListMediaStatus(ctx context.Context, userID string, filter database.StatusFilter) ([]models.UserMediaStatus, error)
	IncrementRedemptionAttempts(ctx context.Context, userID string, mediaType models.MediaType, externalID int) error
}

// DetailsStore persists enrichment captured from the catalog.
type DetailsStore interface {
	SaveMediaDetails(ctx context.Context, d *models.MediaDetails) error
	GetMediaDetails(ctx context.Context, mediaType models.MediaType, externalID int) (*models.MediaDetails, error)
}

// UserLister enumerates local users for batch runs.
type UserLister interface {
	ListUsers(ctx context.Context) ([]models.User, error)
}

// WeeklyStore persists weekly picks.
type WeeklyStore interface {
	SaveWeeklyRecord(ctx context.Context, rec *models.WeeklyWatchlistRecord) error
	LatestWeeklyRecord(ctx context.Context, userID string) (*models.WeeklyWatchlistRecord, error)
}

// RedemptionStore persists the latest redemption evaluation.
type RedemptionStore interface {
	SaveRedemptionCandidates(ctx context.Context, userID string, candidates []models.RedemptionCandidate) error
}

// MediaServer is the Jellyfin surface used by the pipeline.
type MediaServer interface {
	UserHistory(ctx context.Context, s upstream.Session, limit int) ([]upstream.LibraryItem, error)
	LibraryItems(ctx context.Context, s upstream.Session) ([]upstream.LibraryItem, error)
}

// Catalog is the TMDB surface used by the pipeline.
type Catalog interface {
	Discover(ctx context.Context, mt models.MediaType, q upstream.DiscoverQuery) ([]models.Candidate, error)
	Search(ctx context.Context, query string) ([]models.Candidate, error)
	Details(ctx context.Context, mt models.MediaType, id int) (*upstream.Title, error)
	GenreIDs(ctx context.Context, mt models.MediaType) (map[string]int, error)
	KeywordID(ctx context.Context, name string) (int, error)
}

// RequestManager is the Jellyseerr surface used by the pipeline.
type RequestManager interface {
	Enabled() bool
	Status(ctx context.Context, mt models.MediaType, id int) (models.RequestStatus, error)
	Search(ctx context.Context, query string) ([]models.Candidate, error)
}

// LLM produces a text completion for a prompt.
type LLM interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Publisher enqueues a background job.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Notifier pushes an event to a user's open connections.
type Notifier interface {
	Notify(userID, event string, data any)
}

// SessionResolver recovers a user's Jellyfin session for background work
// that runs outside a request.
type SessionResolver interface {
	Session(ctx context.Context, userID string) (upstream.Session, error)
}

// Deps bundles the collaborators shared by the pipeline components. A
// component only reads the fields it needs.
type Deps struct {
	Statuses   StatusStore
	Details    DetailsStore
	Users      UserLister
	Weekly     WeeklyStore
	Redemption RedemptionStore
	Media      MediaServer
	Catalog    Catalog
	Requests   RequestManager
	LLM        LLM
	Jobs       Publisher
	Notifier   Notifier
	Sessions   SessionResolver
}

// Viewer is the user a pipeline run is for. Session may be empty for
// background runs, in which case live Jellyfin sources are skipped.
type Viewer struct {
	UserID  string
	Session upstream.Session
}

func (v Viewer) hasSession() bool {
	return v.Session.UserID != "" && v.Session.Token != ""
}

func (d Deps) notifier() Notifier {
	if d.Notifier == nil {
		return nopNotifier{}
	}
	return d.Notifier
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, string, any) {}

// viewerFor resolves a session for background work. Without one the run
// falls back to stored data only.
func (d Deps) viewerFor(ctx context.Context, userID string) Viewer {
	v := Viewer{UserID: userID}
	if d.Sessions == nil {
		return v
	}
	s, err := d.Sessions.Session(ctx, userID)
	if err != nil {
		logging.Ctx(ctx).Debug().Err(err).Str("user_id", userID).Msg("No Jellyfin session for background run")
		return v
	}
	v.Session = s
	return v
}
