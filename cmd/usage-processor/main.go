// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

// Package main is the entry point for the usage processor worker.
//
// The usage processor consumes raw DSP usage reports from the
// usage.raw.* Kafka topics, normalizes each payload into the canonical
// usage event schema, enriches it with a content embedding (best effort)
// and persists it as pending before republishing to usage.normalized.
//
// Startup order:
//
//  1. Configuration: Koanf v2 layered load (defaults, config.yaml, env)
//  2. Logging: zerolog per LOG_LEVEL / LOG_FORMAT
//  3. Database: pgx pool with pgvector types registered
//  4. Bus: Kafka publisher and consumer-group subscriber
//  5. Router: Watermill router with retry and poison queue middleware
//  6. Supervisor: suture tree running the router and metrics endpoint
//
// SIGINT and SIGTERM trigger graceful shutdown: the consumer stops
// between messages, in-flight handlers drain within the close timeout,
// and the producer flushes before exit. Exit code 0 on normal stop,
// non-zero on fatal startup failure.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/cadenza/internal/bus"
	"github.com/tomtom215/cadenza/internal/config"
	"github.com/tomtom215/cadenza/internal/embedding"
	"github.com/tomtom215/cadenza/internal/logging"
	"github.com/tomtom215/cadenza/internal/metrics"
	"github.com/tomtom215/cadenza/internal/processor"
	"github.com/tomtom215/cadenza/internal/store"
	"github.com/tomtom215/cadenza/internal/supervisor"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cfg, err := config.Load("usage-processor")
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
		Bool("embeddings_enabled", cfg.Embedding.Enabled()).
		Msg("Starting usage processor")
	metrics.AppInfo.WithLabelValues(version, "usage-processor").Set(1)

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
		PoisonQueueTopic:     bus.TopicDLQProcessing,
	}, publisher.WatermillPublisher(), wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create message router")
	}

	var embedder processor.Embedder
	if cfg.Embedding.Enabled() {
		provider, err := embedding.NewOpenAIProvider(embedding.OpenAIConfig{
			APIKey:         cfg.Embedding.APIKey,
			BaseURL:        cfg.Embedding.BaseURL,
			Model:          cfg.Embedding.Model,
			RequestTimeout: cfg.Embedding.RequestTimeout,
		})
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create embedding provider")
		}
		embedder = embedding.NewService(provider, embedding.Config{
			BatchSize:     cfg.Embedding.BatchSize,
			RatePerSecond: cfg.Embedding.RatePerSecond,
		})
	} else {
		logging.Warn().Msg("No embedding provider configured, events will carry null embeddings")
	}

	retry := store.RetryConfig{
		MaxRetries:      cfg.Kafka.RetryMaxRetries,
		InitialInterval: cfg.Kafka.RetryInitialInterval,
		Multiplier:      2.0,
	}

	proc := processor.New(st, publisher, embedder, retry)
	proc.Register(router, subscriber)

	tree := supervisor.NewTree("usage-processor", supervisor.DefaultTreeConfig())
	tree.Add(supervisor.NewRouterService("usage-processor-router", router))
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

	logging.Info().Msg("Usage processor stopped gracefully")
}
