// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

// Package main is the entry point for the matching engine worker.
//
// The matching engine consumes canonical usage events from the
// usage.normalized Kafka topic and resolves each against the works
// catalog through a fixed cascade: exact ISRC, exact ISWC, trigram
// similarity over titles, then semantic similarity over title
// embeddings. Outcomes are persisted (matched_usage upsert plus a
// terminal processing status) and published to usage.matched or
// usage.unmatched; unrecoverable failures dead-letter to dlq.matching.
//
// Startup mirrors the usage processor: configuration, logging, database
// pool, Kafka pub/sub, Watermill router, suture supervisor. SIGINT and
// SIGTERM drain the consumer and exit 0.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/cadenza/internal/bus"
	"github.com/tomtom215/cadenza/internal/config"
	"github.com/tomtom215/cadenza/internal/engine"
	"github.com/tomtom215/cadenza/internal/logging"
	"github.com/tomtom215/cadenza/internal/matcher"
	"github.com/tomtom215/cadenza/internal/metrics"
	"github.com/tomtom215/cadenza/internal/store"
	"github.com/tomtom215/cadenza/internal/supervisor"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cfg, err := config.Load("matching-engine")
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Strs("brokers", cfg.Kafka.Brokers).
		Str("consumer_group", cfg.Kafka.ConsumerGroup).
		Float64("fuzzy_threshold", cfg.Matching.FuzzyThreshold).
		Float64("embedding_threshold", cfg.Matching.EmbeddingThreshold).
		Msg("Starting matching engine")
	metrics.AppInfo.WithLabelValues(version, "matching-engine").Set(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.New(ctx, store.Config{
		URL:          cfg.Database.URL,
		MinConns:     cfg.Database.MinConns,
		MaxConns:     cfg.Database.MaxConns,
		QueryTimeout: cfg.Database.QueryTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer st.Close()

	if err := st.EnsureSchema(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to apply database schema")
	}

	wmLogger := bus.NewLoggerAdapter()

	publisher, err := bus.NewPublisher(bus.PublisherConfig{
		Brokers:  cfg.Kafka.Brokers,
		ClientID: cfg.Kafka.ClientID,
	}, wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create Kafka publisher")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing publisher")
		}
	}()

	subscriber, err := bus.NewSubscriber(bus.SubscriberConfig{
		Brokers:       cfg.Kafka.Brokers,
		ConsumerGroup: cfg.Kafka.ConsumerGroup,
		ClientID:      cfg.Kafka.ClientID,
	}, wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create Kafka subscriber")
	}

	router, err := bus.NewRouter(&bus.RouterConfig{
		CloseTimeout:         cfg.Kafka.CloseTimeout,
		RetryMaxRetries:      cfg.Kafka.RetryMaxRetries,
		RetryInitialInterval: cfg.Kafka.RetryInitialInterval,
		RetryMaxInterval:     cfg.Kafka.RetryMaxInterval,
		RetryMultiplier:      2.0,
		PoisonQueueTopic:     bus.TopicDLQMatching,
	}, publisher.WatermillPublisher(), wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create message router")
	}

	cascade := matcher.NewCascade(st, matcher.Thresholds{
		ISRCConfidence:     cfg.Matching.ISRCConfidence,
		FuzzyThreshold:     cfg.Matching.FuzzyThreshold,
		EmbeddingThreshold: cfg.Matching.EmbeddingThreshold,
		ReviewThreshold:    cfg.Matching.ReviewThreshold,
		MaxAlternatives:    cfg.Matching.MaxAlternatives,
	})

	retry := store.RetryConfig{
		MaxRetries:      cfg.Kafka.RetryMaxRetries,
		InitialInterval: cfg.Kafka.RetryInitialInterval,
		Multiplier:      2.0,
	}

	eng := engine.New(st, cascade, publisher, retry)
	eng.Register(router, subscriber)

	tree := supervisor.NewTree("matching-engine", supervisor.DefaultTreeConfig())
	tree.Add(supervisor.NewRouterService("matching-engine-router", router))
	tree.Add(supervisor.NewMetricsService(cfg.Metrics.Host, cfg.Metrics.Port, st.Ping))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
		os.Exit(1)
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Matching engine stopped gracefully")
}
