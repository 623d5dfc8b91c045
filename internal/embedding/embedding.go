// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

// Package embedding generates content embeddings for usage events through
// an external provider. The service is an auxiliary: when it fails, events
// continue through the pipeline with a null embedding and the match cascade
// skips its semantic tier.
package embedding

import (
	"context"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/cadenza/internal/event"
	"github.com/tomtom215/cadenza/internal/logging"
	"github.com/tomtom215/cadenza/internal/metrics"
)

// Provider is the embedding backend. Implementations must return one
// vector per input text, positionally aligned.
type Provider interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// BuildContentText joins the non-empty content fields of a usage event
// into the canonical embedding input. Returns empty when there is nothing
// to embed.
func BuildContentText(title, artist, album string) string {
	parts := make([]string, 0, 3)
	if title != "" {
		parts = append(parts, "Title: "+title)
	}
	if artist != "" {
		parts = append(parts, "Artist: "+artist)
	}
	if album != "" {
		parts = append(parts, "Album: "+album)
	}
	return strings.Join(parts, " | ")
}

// Config holds embedding service settings.
type Config struct {
	// BatchSize caps texts per provider request.
	BatchSize int

	// RatePerSecond throttles provider requests. Zero disables throttling.
	RatePerSecond float64
}

// Service batches embedding requests behind a circuit breaker and a rate
// limiter. A tripped breaker degrades to null embeddings instead of
// blocking the pipeline.
type Service struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker[[][]float32]
	limiter  *rate.Limiter
	batch    int
}

// NewService wires a provider with batching, breaker and rate limit.
func NewService(provider Provider, cfg Config) *Service {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 100
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	breaker := gobreaker.NewCircuitBreaker[[][]float32](gobreaker.Settings{
		Name:        "embedding-provider",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state change")
			metrics.SetCircuitBreakerState(name, int(to))
		},
	})

	return &Service{
		provider: provider,
		breaker:  breaker,
		limiter:  rate.NewLimiter(limit, 1),
		batch:    cfg.BatchSize,
	}
}

// Embed generates one content embedding for a usage event. Returns nil
// without error when the event has no embeddable content; provider
// failures surface as errors so callers can log and continue.
func (s *Service) Embed(ctx context.Context, ev *event.NormalizedUsageEvent) ([]float32, error) {
	text := BuildContentText(ev.ReportedTitle, ev.ReportedArtist, ev.ReportedAlbum)
	if text == "" {
		return nil, nil
	}

	vectors, err := s.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for a slice of events. The result is
// positionally aligned with the input: events without content map to nil
// without consuming a batch slot, and a failed provider request nils out
// only its own batch while the others proceed.
func (s *Service) EmbedBatch(ctx context.Context, events []*event.NormalizedUsageEvent) [][]float32 {
	embeddings := make([][]float32, len(events))

	indices := make([]int, 0, len(events))
	texts := make([]string, 0, len(events))
	for i, ev := range events {
		text := BuildContentText(ev.ReportedTitle, ev.ReportedArtist, ev.ReportedAlbum)
		if text == "" {
			continue
		}
		indices = append(indices, i)
		texts = append(texts, text)
	}

	for start := 0; start < len(texts); start += s.batch {
		end := min(start+s.batch, len(texts))

		vectors, err := s.request(ctx, texts[start:end])
		if err != nil {
			logging.Error().Err(err).
				Int("batch_size", end-start).
				Msg("Failed to generate batch embeddings")
			continue
		}

		for i, vec := range vectors {
			embeddings[indices[start+i]] = vec
		}
	}

	return embeddings
}

// request performs one rate-limited provider call through the breaker.
func (s *Service) request(ctx context.Context, texts []string) ([][]float32, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	vectors, err := s.breaker.Execute(func() ([][]float32, error) {
		return s.provider.CreateEmbeddings(ctx, texts)
	})
	metrics.RecordEmbeddingRequest(len(texts), time.Since(start), err)

	return vectors, err
}
