// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/normalize"
)

// Session identifies a logged-in Jellyfin user.
type Session struct {
	UserID string
	Token  string
}

// AuthResult is a successful Jellyfin login.
type AuthResult struct {
	UserID      string
	Username    string
	AccessToken string
	IsAdmin     bool
}

// LibraryItem is a Jellyfin movie or series mapped onto a MediaRef.
// Ref.ExternalID is zero when the item carries no TMDB provider ID.
type LibraryItem struct {
	Ref             models.MediaRef
	Genres          []string
	CommunityRating float64
	LastPlayed      time.Time
}

// JellyfinClient talks to the Jellyfin REST API on behalf of a user.
type JellyfinClient struct {
	t   *transport
	cfg config.JellyfinConfig
}

// NewJellyfinClient creates a Jellyfin client.
func NewJellyfinClient(cfg config.JellyfinConfig) *JellyfinClient {
	t := newTransport("jellyfin", cfg.URL, cfg.Timeout)
	// Only 401 means the token is gone. A 403 is a permission problem on a
	// live session and stays a StatusError.
	t.mapStatus = func(se *StatusError) error {
		if se.Code == http.StatusUnauthorized {
			return ErrAuthExpired
		}
		return nil
	}
	return &JellyfinClient{t: t, cfg: cfg}
}

// authorization builds the MediaBrowser authorization header value.
func (c *JellyfinClient) authorization(token string) string {
	v := fmt.Sprintf(`MediaBrowser Client="%s", Device="%s", DeviceId="%s", Version="%s"`,
		c.cfg.ClientName, c.cfg.DeviceName, c.cfg.DeviceID, c.cfg.Version)
	if token != "" {
		v += fmt.Sprintf(`, Token="%s"`, token)
	}
	return v
}

func (c *JellyfinClient) sessionHeader(s Session) http.Header {
	h := http.Header{}
	h.Set("X-Emby-Authorization", c.authorization(s.Token))
	h.Set("X-Emby-Token", s.Token)
	return h
}

// Authenticate logs in with username and password.
func (c *JellyfinClient) Authenticate(ctx context.Context, username, password string) (*AuthResult, error) {
	h := http.Header{}
	h.Set("X-Emby-Authorization", c.authorization(""))

	var resp struct {
		User struct {
			ID     string `json:"Id"`
			Name   string `json:"Name"`
			Policy struct {
				IsAdministrator bool `json:"IsAdministrator"`
			} `json:"Policy"`
		} `json:"User"`
		AccessToken string `json:"AccessToken"`
	}
	err := c.t.do(ctx, request{
		operation: "authenticate",
		method:    http.MethodPost,
		path:      "/Users/AuthenticateByName",
		body:      map[string]string{"Username": username, "Pw": password},
		header:    h,
	}, &resp)
	if errors.Is(err, ErrAuthExpired) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" || resp.User.ID == "" {
		return nil, fmt.Errorf("jellyfin login response missing token or user id")
	}
	name := resp.User.Name
	if name == "" {
		name = username
	}
	return &AuthResult{
		UserID:      resp.User.ID,
		Username:    name,
		AccessToken: resp.AccessToken,
		IsAdmin:     resp.User.Policy.IsAdministrator,
	}, nil
}

// UserHistory returns up to limit played movies and series, most recently
// played first.
func (c *JellyfinClient) UserHistory(ctx context.Context, s Session, limit int) ([]LibraryItem, error) {
	q := itemQuery()
	q.Set("Filters", "IsPlayed")
	q.Set("SortBy", "DatePlayed")
	q.Set("SortOrder", "Descending")
	if limit > 0 {
		q.Set("Limit", strconv.Itoa(limit))
	}
	return c.items(ctx, s, "history", q)
}

// LibraryItems enumerates every movie and series visible to the user.
func (c *JellyfinClient) LibraryItems(ctx context.Context, s Session) ([]LibraryItem, error) {
	return c.items(ctx, s, "library", itemQuery())
}

func itemQuery() url.Values {
	q := url.Values{}
	q.Set("IncludeItemTypes", "Movie,Series")
	q.Set("Recursive", "true")
	q.Set("Fields", "ProviderIds,Genres,ProductionYear,PremiereDate")
	q.Set("EnableImages", "false")
	return q
}

type jellyfinItem struct {
	Name            string            `json:"Name"`
	Type            string            `json:"Type"`
	ProductionYear  int               `json:"ProductionYear"`
	PremiereDate    string            `json:"PremiereDate"`
	ProviderIDs     map[string]string `json:"ProviderIds"`
	Genres          []string          `json:"Genres"`
	CommunityRating float64           `json:"CommunityRating"`
	UserData        struct {
		LastPlayedDate string `json:"LastPlayedDate"`
	} `json:"UserData"`
}

func (c *JellyfinClient) items(ctx context.Context, s Session, operation string, q url.Values) ([]LibraryItem, error) {
	if s.UserID == "" || s.Token == "" {
		return nil, ErrAuthExpired
	}
	var resp struct {
		Items []jellyfinItem `json:"Items"`
	}
	err := c.t.do(ctx, request{
		operation: operation,
		path:      "/Users/" + url.PathEscape(s.UserID) + "/Items",
		query:     q,
		header:    c.sessionHeader(s),
	}, &resp)
	if err != nil {
		return nil, err
	}

	out := make([]LibraryItem, 0, len(resp.Items))
	for _, it := range resp.Items {
		if item, ok := toLibraryItem(it); ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func toLibraryItem(it jellyfinItem) (LibraryItem, bool) {
	var mt models.MediaType
	switch strings.ToLower(it.Type) {
	case "movie":
		mt = models.MediaTypeMovie
	case "series":
		mt = models.MediaTypeTV
	default:
		return LibraryItem{}, false
	}

	year := ""
	if it.ProductionYear > 0 {
		year = strconv.Itoa(it.ProductionYear)
	} else {
		year = normalize.Year(it.PremiereDate)
	}

	ref := models.MediaRef{
		ExternalID:  providerID(it.ProviderIDs, "Tmdb"),
		Title:       strings.TrimSpace(it.Name),
		MediaType:   mt,
		ReleaseYear: year,
	}
	if ref.ExternalID == 0 && ref.Title == "" {
		return LibraryItem{}, false
	}

	item := LibraryItem{Ref: ref, Genres: it.Genres, CommunityRating: it.CommunityRating}
	if it.UserData.LastPlayedDate != "" {
		if t, err := time.Parse(time.RFC3339Nano, it.UserData.LastPlayedDate); err == nil {
			item.LastPlayed = t
		}
	}
	return item, true
}

// providerID reads a numeric provider ID, matching the key case-insensitively.
func providerID(ids map[string]string, key string) int {
	for k, v := range ids {
		if strings.EqualFold(k, key) {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
				return n
			}
		}
	}
	return 0
}
