// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

// Package config provides centralized configuration for both pipeline
// workers, loaded with Koanf v2 in layers: built-in defaults, then an
// optional YAML file, then environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all worker configuration. Immutable after Load() and safe
// for concurrent read access.
type Config struct {
	Kafka     KafkaConfig     `koanf:"kafka"`
	Database  DatabaseConfig  `koanf:"database"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Matching  MatchingConfig  `koanf:"matching"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// KafkaConfig holds Kafka connectivity and consumer-group settings.
//
// Environment Variables:
//   - KAFKA_BROKERS: Comma-separated bootstrap servers (default: localhost:9092)
//   - KAFKA_CONSUMER_GROUP: Consumer group id (per-worker default)
type KafkaConfig struct {
	Brokers       []string `koanf:"brokers" validate:"required,min=1"`
	ConsumerGroup string   `koanf:"consumer_group" validate:"required"`
	ClientID      string   `koanf:"client_id"`

	// Router middleware settings shared by both workers.
	RetryMaxRetries      int           `koanf:"retry_max_retries" validate:"min=0"`
	RetryInitialInterval time.Duration `koanf:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `koanf:"retry_max_interval"`
	CloseTimeout         time.Duration `koanf:"close_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings.
//
// Environment Variables:
//   - DATABASE_URL: PostgreSQL DSN (required)
type DatabaseConfig struct {
	URL          string        `koanf:"url" validate:"required"`
	MinConns     int32         `koanf:"min_conns" validate:"min=1"`
	MaxConns     int32         `koanf:"max_conns" validate:"min=1"`
	QueryTimeout time.Duration `koanf:"query_timeout"`
}

// EmbeddingConfig holds embedding provider settings. The provider is
// optional: without an API key the processor skips embedding generation
// and the cascade runs without its semantic tier.
//
// Environment Variables:
//   - OPENAI_API_KEY: Provider API key (empty disables embeddings)
//   - EMBEDDING_MODEL: Model name (default: text-embedding-3-small)
//   - EMBEDDING_BATCH_SIZE: Texts per provider request (default: 100)
type EmbeddingConfig struct {
	APIKey         string        `koanf:"api_key"`
	BaseURL        string        `koanf:"base_url"`
	Model          string        `koanf:"model" validate:"required"`
	BatchSize      int           `koanf:"batch_size" validate:"min=1,max=2048"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	RatePerSecond  float64       `koanf:"rate_per_second"`
}

// Enabled reports whether an embedding provider is configured.
func (c EmbeddingConfig) Enabled() bool {
	return c.APIKey != ""
}

// MatchingConfig holds the cascade confidence thresholds.
//
// Environment Variables:
//   - ISRC_CONFIDENCE: Confidence for identifier matches (default: 1.0)
//   - FUZZY_MATCH_THRESHOLD: Minimum trigram similarity to accept (default: 0.85)
//   - EMBEDDING_MATCH_THRESHOLD: Minimum cosine similarity to accept (default: 0.80)
//   - MANUAL_REVIEW_THRESHOLD: Minimum similarity to suggest (default: 0.60)
//   - MAX_ALTERNATIVE_MATCHES: Suggestions kept per unmatched event (default: 5)
type MatchingConfig struct {
	ISRCConfidence     float64 `koanf:"isrc_confidence" validate:"gt=0,lte=1"`
	FuzzyThreshold     float64 `koanf:"fuzzy_threshold" validate:"gt=0,lte=1"`
	EmbeddingThreshold float64 `koanf:"embedding_threshold" validate:"gt=0,lte=1"`
	ReviewThreshold    float64 `koanf:"review_threshold" validate:"gte=0,lte=1"`
	MaxAlternatives    int     `koanf:"max_alternatives" validate:"min=0"`
}

// MetricsConfig holds the Prometheus exposition endpoint settings.
type MetricsConfig struct {
	Port int    `koanf:"port" validate:"min=1,max=65535"`
	Host string `koanf:"host"`
}

// LoggingConfig holds zerolog settings.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json or console (default: json)
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all defaults applied. Defaults are
// loaded first, then overridden by the config file and environment.
func defaultConfig() *Config {
	return &Config{
		Kafka: KafkaConfig{
			Brokers:              []string{"localhost:9092"},
			ConsumerGroup:        "", // Set per worker in Load()
			RetryMaxRetries:      3,
			RetryInitialInterval: time.Second,
			RetryMaxInterval:     time.Minute,
			CloseTimeout:         30 * time.Second,
		},
		Database: DatabaseConfig{
			URL:          "",
			MinConns:     5,
			MaxConns:     15,
			QueryTimeout: 10 * time.Second,
		},
		Embedding: EmbeddingConfig{
			APIKey:         "",
			BaseURL:        "",
			Model:          "text-embedding-3-small",
			BatchSize:      100,
			RequestTimeout: 10 * time.Second,
			RatePerSecond:  5,
		},
		Matching: MatchingConfig{
			ISRCConfidence:     1.0,
			FuzzyThreshold:     0.85,
			EmbeddingThreshold: 0.80,
			ReviewThreshold:    0.60,
			MaxAlternatives:    5,
		},
		Metrics: MetricsConfig{
			Port: 9464,
			Host: "0.0.0.0",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks the configuration for structural errors plus the
// cross-field constraints the struct tags cannot express.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database min_conns (%d) exceeds max_conns (%d)",
			c.Database.MinConns, c.Database.MaxConns)
	}
	if c.Matching.ReviewThreshold > c.Matching.EmbeddingThreshold {
		return fmt.Errorf("review threshold (%.2f) exceeds embedding threshold (%.2f)",
			c.Matching.ReviewThreshold, c.Matching.EmbeddingThreshold)
	}

	return nil
}
