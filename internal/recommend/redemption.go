// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/database"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/normalize"
	"github.com/tomtom215/marquee/internal/upstream"
)

const (
	redemptionParallel  = 3
	profileGenreCount   = 5
	profileKeywordCount = 8
)

// verdict is the LLM's answer for one blocked title.
type verdict struct {
	Recommend  bool
	Confidence int
	Appeal     string
	Reasons    []string
}

// RedemptionAdvisor re-evaluates blocked titles against the user's current
// taste and surfaces the ones worth another look.
type RedemptionAdvisor struct {
	cfg  config.RedemptionConfig
	deps Deps
	now  func() time.Time
}

// NewRedemptionAdvisor creates an advisor.
func NewRedemptionAdvisor(cfg config.RedemptionConfig, deps Deps) *RedemptionAdvisor {
	return &RedemptionAdvisor{cfg: cfg, deps: deps, now: time.Now}
}

// Evaluate asks the LLM about every eligible blocked title: blocked, not
// permanently, with any soft-block window expired and, when an attempt
// limit is configured, below it. Every evaluated title's attempt counter
// is incremented whatever the answer. Recommended titles are returned by
// confidence, highest first, capped at the configured count, and stored
// as the user's redemption cache.
func (a *RedemptionAdvisor) Evaluate(ctx context.Context, userID string) ([]models.RedemptionCandidate, error) {
	log := logging.Ctx(ctx).With().Str("component", "redemption").Str("user_id", userID).Logger()

	blocked, err := a.deps.Statuses.ListMediaStatus(ctx, userID, database.StatusFilter{
		Statuses: []models.ListStatus{models.StatusBlocked},
	})
	if err != nil {
		return nil, fmt.Errorf("load blocked titles: %w", err)
	}

	now := a.now()
	var eligible []models.UserMediaStatus
	for i := range blocked {
		s := blocked[i]
		if !s.RedemptionEligible(now) {
			continue
		}
		if a.cfg.MaxAttempts > 0 && s.RedemptionAttempts >= a.cfg.MaxAttempts {
			continue
		}
		eligible = append(eligible, s)
	}

	var out []models.RedemptionCandidate
	if len(eligible) > 0 {
		prof := a.currentProfile(ctx, userID)
		results := make([]*models.RedemptionCandidate, len(eligible))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(redemptionParallel)
		for i := range eligible {
			g.Go(func() error {
				item := eligible[i]
				v, err := a.ask(gctx, &prof, item.Media)
				if incErr := a.deps.Statuses.IncrementRedemptionAttempts(gctx, userID, item.Media.MediaType, item.Media.ExternalID); incErr != nil {
					log.Warn().Err(incErr).Int("external_id", item.Media.ExternalID).Msg("Could not record redemption attempt")
				}
				if err != nil {
					log.Warn().Err(err).Int("external_id", item.Media.ExternalID).Msg("Redemption evaluation failed")
					return nil
				}
				if !v.Recommend {
					return nil
				}
				results[i] = &models.RedemptionCandidate{
					Media:      item.Media,
					BlockedAt:  item.UpdatedAt,
					AppealText: v.Appeal,
					Confidence: v.Confidence,
					Reasons:    v.Reasons,
				}
				return nil
			})
		}
		_ = g.Wait()

		for _, r := range results {
			if r != nil {
				out = append(out, *r)
			}
		}
	}

	out = rankRedemptions(out, a.cfg.MaxResults)
	if err := a.deps.Redemption.SaveRedemptionCandidates(ctx, userID, out); err != nil {
		return nil, fmt.Errorf("save redemption candidates: %w", err)
	}
	if len(out) > 0 {
		a.deps.notifier().Notify(userID, EventRedemptionReady, map[string]any{"count": len(out)})
	}

	log.Info().Int("blocked", len(blocked)).Int("evaluated", len(eligible)).
		Int("recommended", len(out)).Msg("Redemption evaluation complete")
	return out, nil
}

// rankRedemptions orders by confidence, highest first, and caps at limit.
func rankRedemptions(in []models.RedemptionCandidate, limit int) []models.RedemptionCandidate {
	sort.SliceStable(in, func(i, j int) bool {
		return in[i].Confidence > in[j].Confidence
	})
	if limit > 0 && len(in) > limit {
		in = in[:limit]
	}
	return in
}

// RunAll evaluates every user sequentially, isolating failures.
func (a *RedemptionAdvisor) RunAll(ctx context.Context) error {
	return runForUsers(ctx, a.deps.Users, "redemption", func(ctx context.Context, userID string) error {
		_, err := a.Evaluate(ctx, userID)
		return err
	})
}

// currentProfile summarises the genres and keywords of recently watched
// titles. It does not call the LLM.
func (a *RedemptionAdvisor) currentProfile(ctx context.Context, userID string) models.TasteProfile {
	prof := models.TasteProfile{GeneratedAt: a.now().UTC()}
	recent, err := a.deps.Statuses.ListMediaStatus(ctx, userID, database.StatusFilter{
		Statuses: []models.ListStatus{models.StatusWatched},
		Limit:    a.cfg.RecentHistory,
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Recent history unavailable for redemption profile")
		return prof
	}

	genres := map[string]int{}
	keywords := map[string]int{}
	for i := range recent {
		ref := recent[i].Media
		d, err := a.deps.Details.GetMediaDetails(ctx, ref.MediaType, ref.ExternalID)
		if err != nil {
			continue
		}
		for _, g := range d.Genres {
			genres[g]++
		}
		for _, k := range d.Keywords {
			keywords[k]++
		}
	}
	prof.Genres = topCounts(genres, profileGenreCount)
	prof.Keywords = topCounts(keywords, profileKeywordCount)
	prof.SourceCount = len(recent)
	return prof
}

func topCounts(counts map[string]int, n int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

func (a *RedemptionAdvisor) ask(ctx context.Context, prof *models.TasteProfile, ref models.MediaRef) (verdict, error) {
	var b strings.Builder
	b.WriteString("A viewer blocked this title some time ago:\n")
	fmt.Fprintf(&b, "%s, a %s", refLabel(ref), strings.TrimSuffix(kindPlural(ref.MediaType), "s"))
	if d, err := a.deps.Details.GetMediaDetails(ctx, ref.MediaType, ref.ExternalID); err == nil && len(d.Genres) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(d.Genres, ", "))
	}
	b.WriteString("\n\nTheir taste today:\n")
	b.WriteString(prof.Describe())
	b.WriteString(`

Should they give it another chance? Respond ONLY with a JSON object:
{"recommend": true or false, "confidence": 0-100,
 "appeal": "one or two sentences addressed to the viewer",
 "reasons": ["short reason", "..."]}
`)

	text, err := a.deps.LLM.Generate(ctx, b.String())
	if err != nil {
		return verdict{}, err
	}
	return parseVerdict(text)
}

func parseVerdict(text string) (verdict, error) {
	var rec normalize.Record
	if err := json.Unmarshal([]byte(upstream.ExtractJSON(text)), &rec); err != nil {
		return verdict{}, fmt.Errorf("decode redemption verdict: %w", err)
	}
	v := verdict{
		Confidence: clampScore(int(rec.Float("confidence"))),
		Appeal:     strings.TrimSpace(rec.String("appeal", "appeal_text")),
		Reasons:    rec.Strings("reasons"),
	}
	switch r := rec["recommend"].(type) {
	case bool:
		v.Recommend = r
	case string:
		v.Recommend = strings.EqualFold(r, "true") || strings.EqualFold(r, "yes")
	}
	return v, nil
}
