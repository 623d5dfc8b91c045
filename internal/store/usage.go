// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/tomtom215/cadenza/internal/event"
	"github.com/tomtom215/cadenza/internal/metrics"
)

const insertUsageEventSQL = `
INSERT INTO usage_events (
	id, source, source_event_id, isrc, iswc,
	reported_title, reported_artist, reported_album,
	usage_type, play_count, revenue_amount, currency,
	territory, usage_date, reporting_period,
	processing_status, ingested_at, content_embedding
) VALUES (
	$1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''),
	NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''),
	$9, $10, $11, $12,
	NULLIF($13, ''), $14, NULLIF($15, ''),
	'pending', $16, $17
)
ON CONFLICT (id) DO NOTHING`

// InsertUsageEvent persists a normalized event with status pending.
// The event_id primary key is the idempotency anchor: re-delivered
// messages insert nothing and report inserted=false.
func (s *Store) InsertUsageEvent(ctx context.Context, ev *event.NormalizedUsageEvent) (inserted bool, err error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var embedding any
	if len(ev.ContentEmbedding) > 0 {
		embedding = pgvector.NewVector(ev.ContentEmbedding)
	}

	start := time.Now()
	tag, err := s.pool.Exec(ctx, insertUsageEventSQL,
		ev.EventID, ev.Source, ev.SourceEventID, ev.ISRC, ev.ISWC,
		ev.ReportedTitle, ev.ReportedArtist, ev.ReportedAlbum,
		string(ev.UsageType), ev.PlayCount, ev.RevenueAmount, ev.Currency,
		ev.Territory, ev.UsageDate.Time, ev.ReportingPeriod,
		ev.IngestedAt, embedding,
	)
	metrics.RecordDBQuery("insert_usage_event", time.Since(start), err)
	if err != nil {
		return false, classify(fmt.Sprintf("insert usage event %s", ev.EventID), err)
	}

	return tag.RowsAffected() > 0, nil
}

const updateStatusSQL = `
UPDATE usage_events
SET processing_status = $2, processed_at = $3
WHERE id = $1`

const upsertMatchSQL = `
INSERT INTO matched_usage (
	id, usage_event_id, work_id, recording_id,
	match_confidence, match_method, matched_by, is_confirmed, matched_at
) VALUES ($1, $2, $3, $4, $5, $6, 'system', false, $7)
ON CONFLICT (usage_event_id, work_id) DO UPDATE SET
	recording_id = EXCLUDED.recording_id,
	match_confidence = EXCLUDED.match_confidence,
	match_method = EXCLUDED.match_method,
	matched_at = EXCLUDED.matched_at`

// PersistMatch records a confident match in one transaction: the
// matched_usage upsert on (usage_event_id, work_id) plus the status
// transition to matched with a processed_at stamp.
func (s *Store) PersistMatch(ctx context.Context, usageEventID uuid.UUID, match *event.MatchResult, matchedAt time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	err := func() error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		if _, err := tx.Exec(ctx, upsertMatchSQL,
			uuid.New(), usageEventID, match.WorkID, match.RecordingID,
			match.Confidence, string(match.Method), matchedAt,
		); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, updateStatusSQL,
			usageEventID, string(event.StatusMatched), matchedAt,
		); err != nil {
			return err
		}

		return tx.Commit(ctx)
	}()
	metrics.RecordDBQuery("persist_match", time.Since(start), err)

	if err != nil {
		return classify(fmt.Sprintf("persist match for %s", usageEventID), err)
	}
	return nil
}

// MarkStatus transitions a usage event to a terminal status and stamps
// processed_at. Used for the unmatched and error outcomes.
func (s *Store) MarkStatus(ctx context.Context, usageEventID uuid.UUID, status event.ProcessingStatus, processedAt time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	_, err := s.pool.Exec(ctx, updateStatusSQL, usageEventID, string(status), processedAt)
	metrics.RecordDBQuery("mark_status", time.Since(start), err)
	if err != nil {
		return classify(fmt.Sprintf("mark %s as %s", usageEventID, status), err)
	}
	return nil
}
