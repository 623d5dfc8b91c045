// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

package matcher

import (
	"bytes"
	"context"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/cadenza/internal/event"
	"github.com/tomtom215/cadenza/internal/store"
)

// fuzzyRecallMargin widens the candidate net below the acceptance
// threshold so near misses still surface as review suggestions.
const fuzzyRecallMargin = 0.1

// ISRCStrategy resolves events by exact recording ISRC lookup. An ISRC
// identifies one recording, so a hit is authoritative.
type ISRCStrategy struct {
	Catalog    Catalog
	Confidence float64
}

func (s *ISRCStrategy) Name() event.MatchMethod { return event.MethodISRCExact }

func (s *ISRCStrategy) Try(ctx context.Context, ev *event.NormalizedUsageEvent) (*event.MatchResult, []event.MatchResult, error) {
	if ev.ISRC == "" {
		return nil, nil, nil
	}

	ref, err := s.Catalog.FindRecordingByISRC(ctx, ev.ISRC)
	if err != nil {
		return nil, nil, err
	}
	if ref == nil {
		return nil, nil, nil
	}

	confidence := s.Confidence
	if confidence <= 0 {
		confidence = 1.0
	}

	recordingID := ref.RecordingID
	return &event.MatchResult{
		WorkID:      ref.WorkID,
		RecordingID: &recordingID,
		Confidence:  confidence,
		Method:      event.MethodISRCExact,
	}, nil, nil
}

// ISWCStrategy resolves events by exact work ISWC lookup. A hit
// identifies the composition but no particular recording.
type ISWCStrategy struct {
	Catalog Catalog
}

func (s *ISWCStrategy) Name() event.MatchMethod { return event.MethodISWCExact }

func (s *ISWCStrategy) Try(ctx context.Context, ev *event.NormalizedUsageEvent) (*event.MatchResult, []event.MatchResult, error) {
	if ev.ISWC == "" {
		return nil, nil, nil
	}

	workID, err := s.Catalog.FindWorkByISWC(ctx, ev.ISWC)
	if err != nil {
		return nil, nil, err
	}
	if workID == uuid.Nil {
		return nil, nil, nil
	}

	return &event.MatchResult{
		WorkID:     workID,
		Confidence: 1.0,
		Method:     event.MethodISWCExact,
	}, nil, nil
}

// FuzzyStrategy matches by trigram similarity over recording and work
// titles, run in parallel. Candidates are drawn with a recall threshold
// one margin below the acceptance threshold, deduplicated by work keeping
// the higher score; the best candidate is accepted at or above Threshold,
// and the rest become suggestions.
type FuzzyStrategy struct {
	Catalog   Catalog
	Threshold float64
	Limit     int
}

func (s *FuzzyStrategy) Name() event.MatchMethod { return event.MethodFuzzyTitle }

func (s *FuzzyStrategy) Try(ctx context.Context, ev *event.NormalizedUsageEvent) (*event.MatchResult, []event.MatchResult, error) {
	if ev.ReportedTitle == "" {
		return nil, nil, nil
	}

	recall := s.Threshold - fuzzyRecallMargin
	limit := s.Limit
	if limit < 1 {
		limit = 5
	}

	var recordingHits, workHits []store.Candidate
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		recordingHits, err = s.Catalog.SearchRecordings(gctx, ev.ReportedTitle, ev.ReportedArtist, recall, limit)
		return err
	})
	g.Go(func() error {
		var err error
		workHits, err = s.Catalog.SearchWorks(gctx, ev.ReportedTitle, recall, limit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	best := make(map[uuid.UUID]event.MatchResult)
	for _, hit := range append(recordingHits, workHits...) {
		if hit.Similarity < recall {
			continue
		}
		candidate := event.MatchResult{
			WorkID:      hit.WorkID,
			RecordingID: hit.RecordingID,
			Confidence:  hit.Similarity,
			Method:      event.MethodFuzzyTitle,
		}
		if existing, ok := best[hit.WorkID]; !ok || candidate.Confidence > existing.Confidence {
			best[hit.WorkID] = candidate
		}
	}

	candidates := make([]event.MatchResult, 0, len(best))
	for _, c := range best {
		candidates = append(candidates, c)
	}
	sortCandidates(candidates)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	if len(candidates) > 0 && candidates[0].Confidence >= s.Threshold {
		top := candidates[0]
		return &top, nil, nil
	}
	return nil, candidates, nil
}

// EmbeddingStrategy matches by cosine similarity between the event's
// content embedding and work title embeddings. Accepts at or above
// Threshold; candidates at or above ReviewThreshold become suggestions.
type EmbeddingStrategy struct {
	Catalog         Catalog
	Threshold       float64
	ReviewThreshold float64
	Limit           int
}

func (s *EmbeddingStrategy) Name() event.MatchMethod { return event.MethodAIEmbedding }

func (s *EmbeddingStrategy) Try(ctx context.Context, ev *event.NormalizedUsageEvent) (*event.MatchResult, []event.MatchResult, error) {
	if len(ev.ContentEmbedding) == 0 {
		return nil, nil, nil
	}

	limit := s.Limit
	if limit < 1 {
		limit = 5
	}

	hits, err := s.Catalog.SearchWorksByEmbedding(ctx, ev.ContentEmbedding, limit)
	if err != nil {
		return nil, nil, err
	}

	var candidates []event.MatchResult
	for _, hit := range hits {
		if hit.Similarity < s.ReviewThreshold {
			continue
		}
		candidates = append(candidates, event.MatchResult{
			WorkID:     hit.WorkID,
			Confidence: hit.Similarity,
			Method:     event.MethodAIEmbedding,
		})
	}
	sortCandidates(candidates)

	if len(candidates) > 0 && candidates[0].Confidence >= s.Threshold {
		top := candidates[0]
		return &top, nil, nil
	}
	return nil, candidates, nil
}

// sortCandidates orders by confidence descending, ties broken by work_id
// ascending so results are deterministic.
func sortCandidates(candidates []event.MatchResult) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return bytes.Compare(candidates[i].WorkID[:], candidates[j].WorkID[:]) < 0
	})
}
