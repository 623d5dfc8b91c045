// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

// Package processor implements the usage processor worker: it consumes
// raw DSP payloads from the usage.raw.* topics, normalizes them into
// canonical events, enriches them with content embeddings, persists them
// as pending and republishes them to usage.normalized.
package processor

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/cadenza/internal/bus"
	"github.com/tomtom215/cadenza/internal/event"
	"github.com/tomtom215/cadenza/internal/logging"
	"github.com/tomtom215/cadenza/internal/metrics"
	"github.com/tomtom215/cadenza/internal/normalizer"
	"github.com/tomtom215/cadenza/internal/store"
)

// Store is the persistence surface the processor needs.
type Store interface {
	InsertUsageEvent(ctx context.Context, ev *event.NormalizedUsageEvent) (bool, error)
}

// Embedder generates a content embedding for one event. Nil disables
// enrichment.
type Embedder interface {
	Embed(ctx context.Context, ev *event.NormalizedUsageEvent) ([]float32, error)
}

// Processor normalizes raw usage payloads from one or more DSP topics.
type Processor struct {
	store      Store
	publisher  *bus.Publisher
	embedder   Embedder
	serializer *event.Serializer
	retry      store.RetryConfig
	logger     zerolog.Logger
}

// New creates a processor. embedder may be nil when no provider is
// configured; events then flow through with null embeddings.
func New(st Store, publisher *bus.Publisher, embedder Embedder, retry store.RetryConfig) *Processor {
	return &Processor{
		store:      st,
		publisher:  publisher,
		embedder:   embedder,
		serializer: event.NewSerializer(),
		retry:      retry,
		logger:     logging.With().Str("component", "processor").Logger(),
	}
}

// Register adds one consumer handler per raw topic to the router.
func (p *Processor) Register(router *bus.Router, subscriber message.Subscriber) {
	for _, topic := range bus.RawTopics() {
		topic := topic
		router.AddConsumerHandler(
			"usage-processor-"+bus.SourceFromTopic(topic),
			topic,
			subscriber,
			func(msg *message.Message) error {
				return p.Handle(msg.Context(), topic, msg.Payload)
			},
		)
	}
}

// Handle processes one raw message. A nil return acks the message; only
// infrastructure failures (DB down, broker gone) return errors and
// trigger redelivery. Bad payloads are dead-lettered and acked so they
// never wedge a partition.
func (p *Processor) Handle(ctx context.Context, topic string, payload []byte) error {
	metrics.RecordConsume(topic)
	source := bus.SourceFromTopic(topic)

	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		p.logger.Warn().Err(err).
			Str("topic", topic).
			Msg("Skipping malformed raw payload")
		return nil
	}

	ev, err := normalizer.ForSource(source).Normalize(raw)
	metrics.RecordNormalization(source, err)
	if err != nil {
		p.logger.Error().Err(err).
			Str("source", source).
			Msg("Normalization failed, routing to DLQ")
		p.sendToDLQ(topic, payload, err)
		return nil
	}

	p.enrich(ctx, ev)

	inserted, err := p.persist(ctx, ev)
	if err != nil {
		p.logger.Error().Err(err).
			Str("event_id", ev.EventID.String()).
			Msg("Persistence failed after retries, routing to DLQ")
		p.sendToDLQ(topic, payload, err)
		return nil
	}
	if !inserted {
		p.logger.Debug().
			Str("event_id", ev.EventID.String()).
			Msg("Duplicate event, insert skipped")
	}

	if err := p.publish(ctx, ev); err != nil {
		// The row is committed; redelivery re-runs the insert as a no-op
		// and retries the publish.
		return err
	}

	p.logger.Debug().
		Str("event_id", ev.EventID.String()).
		Str("source", ev.Source).
		Msg("Usage event normalized")
	return nil
}

// enrich attaches a content embedding, best effort. Failures are logged
// and the event proceeds with a null embedding.
func (p *Processor) enrich(ctx context.Context, ev *event.NormalizedUsageEvent) {
	if p.embedder == nil || !ev.HasContent() {
		return
	}

	vector, err := p.embedder.Embed(ctx, ev)
	if err != nil {
		p.logger.Warn().Err(err).
			Str("event_id", ev.EventID.String()).
			Msg("Embedding generation failed, continuing without")
		return
	}
	ev.ContentEmbedding = vector
}

// persist inserts the pending row, retrying transient failures.
func (p *Processor) persist(ctx context.Context, ev *event.NormalizedUsageEvent) (bool, error) {
	var inserted bool
	err := store.WithRetry(ctx, p.retry, "insert_usage_event", func(ctx context.Context) error {
		var err error
		inserted, err = p.store.InsertUsageEvent(ctx, ev)
		return err
	})
	return inserted, err
}

// publish sends the normalized event keyed by event_id, retrying with
// backoff until the worker shuts down. The database row is already
// committed, so giving up would lose the event downstream.
func (p *Processor) publish(ctx context.Context, ev *event.NormalizedUsageEvent) error {
	data, err := p.serializer.Marshal(ev)
	if err != nil {
		return err
	}

	backoff := time.Second
	for {
		err := p.publisher.PublishJSON(bus.TopicNormalized, ev.EventID.String(), json.RawMessage(data))
		if err == nil {
			return nil
		}

		p.logger.Warn().Err(err).
			Str("event_id", ev.EventID.String()).
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

// sendToDLQ writes a processing failure record, best effort.
func (p *Processor) sendToDLQ(topic string, payload []byte, cause error) {
	failure := event.NewProcessingFailure(topic, payload, cause)
	if err := p.publisher.PublishJSON(bus.TopicDLQProcessing, "", failure); err != nil {
		p.logger.Error().Err(err).
			Str("original_topic", topic).
			Msg("Failed to write DLQ record")
		return
	}
	metrics.RecordDLQWrite(bus.TopicDLQProcessing)
}
