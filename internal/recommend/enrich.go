// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"context"
	"fmt"

	"github.com/tomtom215/marquee/internal/jobs"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/models"
)

// EnrichJob is the payload of jobs.TopicMediaEnrich.
type EnrichJob struct {
	MediaType  models.MediaType `json:"media_type"`
	ExternalID int              `json:"external_id"`
}

// Enricher captures catalog details (genres, keywords, cast, similar and
// recommended IDs) for titles on a user's lists. Anchor discovery and the
// redemption profile read what it stores.
type Enricher struct {
	deps Deps
}

// NewEnricher creates an enricher.
func NewEnricher(deps Deps) *Enricher {
	return &Enricher{deps: deps}
}

// Enqueue schedules enrichment of ref.
func (e *Enricher) Enqueue(ctx context.Context, ref models.MediaRef) {
	queueEnrichment(ctx, e.deps.Jobs, ref)
}

// HandleEnrich is the jobs.TopicMediaEnrich handler.
func (e *Enricher) HandleEnrich(ctx context.Context, payload []byte) error {
	job, err := jobs.Decode[EnrichJob](payload)
	if err != nil {
		return err
	}
	return e.Enrich(ctx, job.MediaType, job.ExternalID)
}

// Enrich fetches and stores the details of one title.
func (e *Enricher) Enrich(ctx context.Context, mt models.MediaType, id int) error {
	if !mt.Valid() || id <= 0 {
		return fmt.Errorf("enrich: invalid media reference %d/%s", id, mt)
	}
	t, err := e.deps.Catalog.Details(ctx, mt, id)
	if err != nil {
		return fmt.Errorf("enrich %s %d: %w", mt, id, err)
	}
	d := t.Details
	if err := e.deps.Details.SaveMediaDetails(ctx, &d); err != nil {
		return fmt.Errorf("enrich %s %d: %w", mt, id, err)
	}
	logging.Ctx(ctx).Debug().Str("media_type", string(mt)).Int("external_id", id).
		Int("similar", len(d.Similar)).Int("recommendations", len(d.Recommendations)).
		Msg("Title enriched")
	return nil
}

func queueEnrichment(ctx context.Context, pub Publisher, ref models.MediaRef) {
	if pub == nil || ref.ExternalID <= 0 || !ref.MediaType.Valid() {
		return
	}
	err := pub.Publish(ctx, jobs.TopicMediaEnrich, EnrichJob{MediaType: ref.MediaType, ExternalID: ref.ExternalID})
	if err != nil {
		logging.Ctx(ctx).Debug().Err(err).Int("external_id", ref.ExternalID).Msg("Could not queue enrichment")
	}
}
