// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tomtom215/marquee/internal/database"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/normalize"
	"github.com/tomtom215/marquee/internal/upstream"
)

// maxPromptTitles bounds the known-title list handed to the LLM.
const maxPromptTitles = 200

// ExclusionSet holds everything a user must never be recommended. Membership
// is by external ID; titles without an ID contribute a normalised
// title+year key as a secondary signal. The two signals are unioned.
type ExclusionSet struct {
	ids    map[int]struct{}
	keys   map[string]struct{}
	titles []string
}

// NewExclusionSet returns an empty set.
func NewExclusionSet() *ExclusionSet {
	return &ExclusionSet{
		ids:  make(map[int]struct{}),
		keys: make(map[string]struct{}),
	}
}

// Add records ref. References without an external ID fall back to their
// title key.
func (s *ExclusionSet) Add(ref models.MediaRef) {
	if ref.ExternalID > 0 {
		s.ids[ref.ExternalID] = struct{}{}
	} else if k := normalize.FallbackKey(ref.Title, ref.ReleaseYear); k != "" {
		s.keys[k] = struct{}{}
	} else {
		return
	}
	if ref.Title != "" && len(s.titles) < maxPromptTitles {
		s.titles = append(s.titles, ref.Title)
	}
}

// AddID records a bare external ID.
func (s *ExclusionSet) AddID(id int) {
	if id > 0 {
		s.ids[id] = struct{}{}
	}
}

// Contains reports whether ref is excluded, by ID or by title key.
func (s *ExclusionSet) Contains(ref models.MediaRef) bool {
	if _, ok := s.ids[ref.ExternalID]; ok && ref.ExternalID > 0 {
		return true
	}
	if len(s.keys) == 0 {
		return false
	}
	if _, ok := s.keys[normalize.FallbackKey(ref.Title, ref.ReleaseYear)]; ok {
		return true
	}
	// Keys recorded without a year match any year.
	_, ok := s.keys[normalize.TitleKey(ref.Title)]
	return ok
}

// ContainsID reports whether id is excluded.
func (s *ExclusionSet) ContainsID(id int) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of IDs and title keys.
func (s *ExclusionSet) Len() int {
	return len(s.ids) + len(s.keys)
}

// Titles returns up to maxPromptTitles known titles for prompts.
func (s *ExclusionSet) Titles() []string {
	return s.titles
}

// ExclusionBuilder assembles an ExclusionSet from stored lists and live
// Jellyfin data.
type ExclusionBuilder struct {
	store        StatusStore
	media        MediaServer
	historyLimit int
}

// NewExclusionBuilder creates a builder. historyLimit bounds the played
// history fetched from Jellyfin.
func NewExclusionBuilder(store StatusStore, media MediaServer, historyLimit int) *ExclusionBuilder {
	return &ExclusionBuilder{
		store:        store,
		media:        media,
		historyLimit: historyLimit,
	}
}

// Build returns the exclusion set for v. The stored lists are required: a
// store failure is returned because skipping them could surface a blocked
// title. Jellyfin history and library failures contribute nothing, except
// upstream.ErrAuthExpired which is returned so the caller can force a new
// login. Without a session only the stored lists are used.
func (b *ExclusionBuilder) Build(ctx context.Context, v Viewer) (*ExclusionSet, error) {
	var (
		wg      sync.WaitGroup
		stored  []models.UserMediaStatus
		history []upstream.LibraryItem
		library []upstream.LibraryItem

		storeErr, historyErr, libraryErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		stored, storeErr = b.store.ListMediaStatus(ctx, v.UserID, database.StatusFilter{})
	}()

	if v.hasSession() && b.media != nil {
		wg.Add(2)
		go func() {
			defer wg.Done()
			history, historyErr = b.media.UserHistory(ctx, v.Session, b.historyLimit)
		}()
		go func() {
			defer wg.Done()
			library, libraryErr = b.media.LibraryItems(ctx, v.Session)
		}()
	}
	wg.Wait()

	if storeErr != nil {
		return nil, fmt.Errorf("load stored lists: %w", storeErr)
	}
	if errors.Is(historyErr, upstream.ErrAuthExpired) || errors.Is(libraryErr, upstream.ErrAuthExpired) {
		return nil, upstream.ErrAuthExpired
	}

	log := logging.Ctx(ctx).With().Str("component", "exclusion").Str("user_id", v.UserID).Logger()
	if historyErr != nil {
		log.Warn().Err(historyErr).Msg("Play history unavailable, continuing without it")
	}
	if libraryErr != nil {
		log.Warn().Err(libraryErr).Msg("Library holdings unavailable, continuing without them")
	}

	set := NewExclusionSet()
	for i := range stored {
		set.Add(stored[i].Media)
	}
	for i := range history {
		set.Add(history[i].Ref)
	}
	for i := range library {
		set.Add(library[i].Ref)
	}

	log.Debug().
		Int("stored", len(stored)).
		Int("history", len(history)).
		Int("library", len(library)).
		Int("size", set.Len()).
		Msg("Exclusion set built")
	return set, nil
}
