// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

// Package matcher resolves normalized usage events against the works
// catalog through a fixed strategy cascade: identifier lookups first,
// then lexical similarity, then semantic similarity. The cascade exits
// on the first strategy whose top candidate clears its own acceptance
// threshold; strategies that decline contribute review suggestions.
package matcher

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/cadenza/internal/event"
	"github.com/tomtom215/cadenza/internal/logging"
	"github.com/tomtom215/cadenza/internal/metrics"
	"github.com/tomtom215/cadenza/internal/store"
)

// Catalog is the slice of the store the cascade queries.
type Catalog interface {
	FindRecordingByISRC(ctx context.Context, isrc string) (*store.RecordingRef, error)
	FindWorkByISWC(ctx context.Context, iswc string) (uuid.UUID, error)
	SearchRecordings(ctx context.Context, title, artist string, threshold float64, limit int) ([]store.Candidate, error)
	SearchWorks(ctx context.Context, title string, threshold float64, limit int) ([]store.Candidate, error)
	SearchWorksByEmbedding(ctx context.Context, embedding []float32, limit int) ([]store.Candidate, error)
}

// Strategy is one tier of the cascade. Try returns an accepted match, or
// nil plus any suggestions worth keeping for manual review. A strategy
// that cannot apply to the event returns (nil, nil, nil).
type Strategy interface {
	Name() event.MatchMethod
	Try(ctx context.Context, ev *event.NormalizedUsageEvent) (*event.MatchResult, []event.MatchResult, error)
}

// Attempt records one strategy execution for instrumentation.
type Attempt struct {
	Method      event.MatchMethod
	Success     bool
	Confidence  float64
	Suggestions int
}

// Outcome is the terminal result of running the cascade for one event.
type Outcome struct {
	// Match is non-nil when a strategy accepted.
	Match *event.MatchResult

	// Suggestions holds the ranked review candidates for unmatched
	// events: highest confidence per work, sorted descending, at most K.
	Suggestions []event.MatchResult

	// Attempts lists the strategies consulted, in order.
	Attempts []Attempt
}

// Thresholds holds the cascade acceptance thresholds.
type Thresholds struct {
	ISRCConfidence     float64
	FuzzyThreshold     float64
	EmbeddingThreshold float64
	ReviewThreshold    float64
	MaxAlternatives    int
}

// Cascade runs the strategies in order with early exit.
type Cascade struct {
	strategies      []Strategy
	maxAlternatives int
}

// NewCascade builds the production cascade over a catalog:
// ISRC exact, ISWC exact, fuzzy lexical, vector semantic.
func NewCascade(catalog Catalog, t Thresholds) *Cascade {
	return New(
		t.MaxAlternatives,
		&ISRCStrategy{Catalog: catalog, Confidence: t.ISRCConfidence},
		&ISWCStrategy{Catalog: catalog},
		&FuzzyStrategy{Catalog: catalog, Threshold: t.FuzzyThreshold, Limit: t.MaxAlternatives},
		&EmbeddingStrategy{Catalog: catalog, Threshold: t.EmbeddingThreshold, ReviewThreshold: t.ReviewThreshold, Limit: t.MaxAlternatives},
	)
}

// New builds a cascade from explicit strategies. Used by tests to compose
// fakes.
func New(maxAlternatives int, strategies ...Strategy) *Cascade {
	if maxAlternatives < 0 {
		maxAlternatives = 0
	}
	return &Cascade{strategies: strategies, maxAlternatives: maxAlternatives}
}

// Resolve runs the cascade for one event. Strategy-internal errors are
// logged and treated as "no result" so one failing tier never blocks the
// rest; the cascade itself returns no error.
func (c *Cascade) Resolve(ctx context.Context, ev *event.NormalizedUsageEvent) *Outcome {
	start := time.Now()
	outcome := &Outcome{}
	collected := make(map[uuid.UUID]event.MatchResult)

	for _, strategy := range c.strategies {
		match, suggestions, err := strategy.Try(ctx, ev)
		if err != nil {
			logging.Error().Err(err).
				Str("event_id", ev.EventID.String()).
				Str("method", string(strategy.Name())).
				Msg("Match strategy failed")
			outcome.Attempts = append(outcome.Attempts, Attempt{Method: strategy.Name()})
			continue
		}

		if match != nil {
			outcome.Match = match
			outcome.Attempts = append(outcome.Attempts, Attempt{
				Method:     strategy.Name(),
				Success:    true,
				Confidence: match.Confidence,
			})
			break
		}

		for _, s := range suggestions {
			if existing, ok := collected[s.WorkID]; !ok || s.Confidence > existing.Confidence {
				collected[s.WorkID] = s
			}
		}
		outcome.Attempts = append(outcome.Attempts, Attempt{
			Method:      strategy.Name(),
			Suggestions: len(suggestions),
		})
	}

	if outcome.Match == nil {
		outcome.Suggestions = rankSuggestions(collected, c.maxAlternatives)
	}

	metrics.RecordCascadeDuration(time.Since(start))
	return outcome
}

// rankSuggestions orders the per-work best candidates by confidence
// descending, ties broken by work_id ascending, truncated to limit.
func rankSuggestions(collected map[uuid.UUID]event.MatchResult, limit int) []event.MatchResult {
	if len(collected) == 0 {
		return nil
	}

	ranked := make([]event.MatchResult, 0, len(collected))
	for _, s := range collected {
		ranked = append(ranked, s)
	}
	sortCandidates(ranked)

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
