// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for both pipeline workers:
// - Kafka consume/publish throughput per topic and source
// - Normalization outcomes per source
// - Embedding generation latency and failures
// - Match cascade outcomes per method and confidence distribution
// - Database query performance (PostgreSQL)
// - Dead letter queue writes

var (
	// Kafka Metrics
	MessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_consumed_total",
			Help: "Total number of messages consumed from Kafka",
		},
		[]string{"topic"},
	)

	MessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_published_total",
			Help: "Total number of messages published to Kafka",
		},
		[]string{"topic"},
	)

	// Normalization Metrics
	EventsNormalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_events_normalized_total",
			Help: "Total number of raw usage events successfully normalized",
		},
		[]string{"source"},
	)

	NormalizationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_normalization_failures_total",
			Help: "Total number of raw usage events that failed normalization",
		},
		[]string{"source"},
	)

	// Embedding Metrics
	EmbeddingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "embedding_request_duration_seconds",
			Help:    "Duration of embedding provider requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	EmbeddingBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "embedding_batch_size",
			Help:    "Number of texts per embedding provider request",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		},
	)

	EmbeddingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "embedding_failures_total",
			Help: "Total number of failed embedding provider requests",
		},
	)

	// Matching Metrics
	MatchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "match_outcomes_total",
			Help: "Total number of match cascade outcomes",
		},
		[]string{"outcome", "method"}, // outcome: "matched", "unmatched"; method: cascade tier or "none"
	)

	MatchConfidence = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "match_confidence",
			Help:    "Confidence scores of accepted matches",
			Buckets: []float64{0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 0.99, 1},
		},
		[]string{"method"},
	)

	CascadeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "match_cascade_duration_seconds",
			Help:    "Duration of the full match cascade per event in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "postgres_query_duration_seconds",
			Help:    "Duration of PostgreSQL queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postgres_query_errors_total",
			Help: "Total number of PostgreSQL query errors",
		},
		[]string{"operation"},
	)

	// Dead Letter Queue Metrics
	DLQMessagesAdded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_added_total",
			Help: "Total number of messages written to dead letter topics",
		},
		[]string{"topic"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "worker"},
	)
)

// RecordConsume records a message consumed from a topic.
func RecordConsume(topic string) {
	MessagesConsumed.WithLabelValues(topic).Inc()
}

// RecordPublish records a message published to a topic.
func RecordPublish(topic string) {
	MessagesPublished.WithLabelValues(topic).Inc()
}

// RecordNormalization records the outcome of normalizing one raw event.
func RecordNormalization(source string, err error) {
	if err != nil {
		NormalizationFailures.WithLabelValues(source).Inc()
		return
	}
	EventsNormalized.WithLabelValues(source).Inc()
}

// RecordEmbeddingRequest records one embedding provider call.
func RecordEmbeddingRequest(batchSize int, duration time.Duration, err error) {
	EmbeddingDuration.Observe(duration.Seconds())
	EmbeddingBatchSize.Observe(float64(batchSize))
	if err != nil {
		EmbeddingFailures.Inc()
	}
}

// RecordMatchOutcome records the terminal outcome of one cascade run.
// method is "none" for unmatched events.
func RecordMatchOutcome(matched bool, method string, confidence float64) {
	outcome := "unmatched"
	if matched {
		outcome = "matched"
		MatchConfidence.WithLabelValues(method).Observe(confidence)
	}
	MatchOutcomes.WithLabelValues(outcome, method).Inc()
}

// RecordCascadeDuration records how long the full cascade took for one event.
func RecordCascadeDuration(duration time.Duration) {
	CascadeDuration.Observe(duration.Seconds())
}

// RecordDBQuery records a database query metric.
func RecordDBQuery(operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordDLQWrite records a message written to a dead letter topic.
func RecordDLQWrite(topic string) {
	DLQMessagesAdded.WithLabelValues(topic).Inc()
}

// SetCircuitBreakerState updates the gauge for a named breaker.
func SetCircuitBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
