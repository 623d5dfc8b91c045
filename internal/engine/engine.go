// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

// Package engine implements the matching engine worker: it consumes
// normalized usage events, resolves them against the works catalog
// through the match cascade, persists the outcome and publishes to
// usage.matched or usage.unmatched.
package engine

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/cadenza/internal/bus"
	"github.com/tomtom215/cadenza/internal/event"
	"github.com/tomtom215/cadenza/internal/logging"
	"github.com/tomtom215/cadenza/internal/matcher"
	"github.com/tomtom215/cadenza/internal/metrics"
	"github.com/tomtom215/cadenza/internal/store"
)

// Store is the persistence surface the engine needs.
type Store interface {
	PersistMatch(ctx context.Context, usageEventID uuid.UUID, match *event.MatchResult, matchedAt time.Time) error
	MarkStatus(ctx context.Context, usageEventID uuid.UUID, status event.ProcessingStatus, processedAt time.Time) error
}

// Resolver runs the match cascade for one event.
type Resolver interface {
	Resolve(ctx context.Context, ev *event.NormalizedUsageEvent) *matcher.Outcome
}

// Engine consumes usage.normalized and emits match outcomes.
type Engine struct {
	store      Store
	resolver   Resolver
	publisher  *bus.Publisher
	serializer *event.Serializer
	retry      store.RetryConfig
	logger     zerolog.Logger
}

// New creates a matching engine.
func New(st Store, resolver Resolver, publisher *bus.Publisher, retry store.RetryConfig) *Engine {
	return &Engine{
		store:      st,
		resolver:   resolver,
		publisher:  publisher,
		serializer: event.NewSerializer(),
		retry:      retry,
		logger:     logging.With().Str("component", "engine").Logger(),
	}
}

// Register adds the engine's consumer handler to the router.
func (e *Engine) Register(router *bus.Router, subscriber message.Subscriber) {
	router.AddConsumerHandler(
		"matching-engine",
		bus.TopicNormalized,
		subscriber,
		func(msg *message.Message) error {
			return e.Handle(msg.Context(), msg.Payload)
		},
	)
}

// Handle resolves one normalized event. Persistence failures set status
// error and dead-letter the event instead of blocking the partition. A
// publish failure after the outcome is committed surfaces as an error so
// the message is redelivered; the committed row is idempotent under
// reprocessing and its terminal status is never rewritten.
func (e *Engine) Handle(ctx context.Context, payload []byte) error {
	metrics.RecordConsume(bus.TopicNormalized)

	ev, err := e.serializer.Unmarshal(payload)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Skipping malformed normalized event")
		return nil
	}

	outcome := e.resolver.Resolve(ctx, ev)

	var topic string
	var out any
	if outcome.Match != nil {
		topic = bus.TopicMatched
		out, err = e.persistMatched(ctx, ev, outcome.Match)
	} else {
		topic = bus.TopicUnmatched
		out, err = e.persistUnmatched(ctx, ev, outcome.Suggestions)
	}
	if err != nil {
		e.logger.Error().Err(err).
			Str("event_id", ev.EventID.String()).
			Msg("Failed to persist match outcome, routing to DLQ")
		e.fail(ctx, ev, payload, err)
		return nil
	}

	return e.publishOutcome(ctx, topic, ev.EventID, out)
}

// persistMatched records the match transactionally and builds the
// usage.matched record.
func (e *Engine) persistMatched(ctx context.Context, ev *event.NormalizedUsageEvent, match *event.MatchResult) (*event.MatchedUsageEvent, error) {
	matchedAt := time.Now().UTC()

	err := store.WithRetry(ctx, e.retry, "persist_match", func(ctx context.Context) error {
		return e.store.PersistMatch(ctx, ev.EventID, match, matchedAt)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordMatchOutcome(true, string(match.Method), match.Confidence)
	e.logger.Info().
		Str("event_id", ev.EventID.String()).
		Str("work_id", match.WorkID.String()).
		Str("method", string(match.Method)).
		Float64("confidence", match.Confidence).
		Msg("Usage event matched")

	return &event.MatchedUsageEvent{
		UsageEventID:    ev.EventID,
		Source:          ev.Source,
		UsageDate:       ev.UsageDate,
		Territory:       ev.Territory,
		WorkID:          match.WorkID,
		RecordingID:     match.RecordingID,
		MatchConfidence: match.Confidence,
		MatchMethod:     match.Method,
		UsageType:       ev.UsageType,
		PlayCount:       ev.PlayCount,
		RevenueAmount:   ev.RevenueAmount,
		Currency:        ev.Currency,
		MatchedAt:       matchedAt,
	}, nil
}

// persistUnmatched marks the event unmatched and builds the review
// record with its ranked suggestions.
func (e *Engine) persistUnmatched(ctx context.Context, ev *event.NormalizedUsageEvent, suggestions []event.MatchResult) (*event.UnmatchedUsageEvent, error) {
	queuedAt := time.Now().UTC()

	err := store.WithRetry(ctx, e.retry, "mark_unmatched", func(ctx context.Context) error {
		return e.store.MarkStatus(ctx, ev.EventID, event.StatusUnmatched, queuedAt)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordMatchOutcome(false, "none", 0)
	e.logger.Info().
		Str("event_id", ev.EventID.String()).
		Int("suggestions", len(suggestions)).
		Msg("Usage event unmatched")

	if suggestions == nil {
		suggestions = []event.MatchResult{}
	}
	return &event.UnmatchedUsageEvent{
		UsageEventID:     ev.EventID,
		Source:           ev.Source,
		SourceEventID:    ev.SourceEventID,
		ISRC:             ev.ISRC,
		ReportedTitle:    ev.ReportedTitle,
		ReportedArtist:   ev.ReportedArtist,
		ReportedAlbum:    ev.ReportedAlbum,
		UsageType:        ev.UsageType,
		PlayCount:        ev.PlayCount,
		RevenueAmount:    ev.RevenueAmount,
		Currency:         ev.Currency,
		Territory:        ev.Territory,
		UsageDate:        ev.UsageDate,
		SuggestedMatches: suggestions,
		Reason:           event.ReasonNoConfidentMatch,
		QueuedAt:         queuedAt,
	}, nil
}

// publishOutcome sends an outcome message keyed by the usage event id,
// retrying with backoff until the worker shuts down. The outcome is
// already committed, so giving up would desynchronize downstream; on
// shutdown the context error propagates and the message is redelivered.
func (e *Engine) publishOutcome(ctx context.Context, topic string, eventID uuid.UUID, v any) error {
	backoff := time.Second
	for {
		err := e.publisher.PublishJSON(topic, eventID.String(), v)
		if err == nil {
			return nil
		}

		e.logger.Warn().Err(err).
			Str("topic", topic).
			Str("event_id", eventID.String()).
			Dur("backoff", backoff).
			Msg("Publish failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// fail sets status error and dead-letters the event, both best effort.
func (e *Engine) fail(ctx context.Context, ev *event.NormalizedUsageEvent, payload []byte, cause error) {
	if err := e.store.MarkStatus(ctx, ev.EventID, event.StatusError, time.Now().UTC()); err != nil {
		e.logger.Error().Err(err).
			Str("event_id", ev.EventID.String()).
			Msg("Failed to mark event as error")
	}

	failure := event.NewMatchingFailure(payload, cause)
	if err := e.publisher.PublishJSON(bus.TopicDLQMatching, "", failure); err != nil {
		e.logger.Error().Err(err).
			Str("event_id", ev.EventID.String()).
			Msg("Failed to write DLQ record")
		return
	}
	metrics.RecordDLQWrite(bus.TopicDLQMatching)
}
