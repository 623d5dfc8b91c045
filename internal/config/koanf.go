// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/cadenza/config.yaml",
	"/etc/cadenza/config.yml",
}

// ConfigPathEnvVar is the environment variable that overrides the config
// file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in sensible values
//  2. Config file: optional YAML file (if one exists)
//  3. Environment variables: override any setting
//
// defaultConsumerGroup names the worker's consumer group when neither the
// file nor KAFKA_CONSUMER_GROUP set one. Precedence is ENV > File > Defaults.
func Load(defaultConsumerGroup string) (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	defaults.Kafka.ConsumerGroup = defaultConsumerGroup
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the first file found, or empty string if none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths are parsed as
// comma-separated slices when coming from the environment.
var sliceConfigPaths = []string{
	"kafka.brokers",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars arrive as strings but the config expects
// slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from YAML file or defaults)
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps flat environment variable names to nested koanf
// config paths.
//
// Examples:
//   - KAFKA_BROKERS -> kafka.brokers
//   - DATABASE_URL -> database.url
//   - FUZZY_MATCH_THRESHOLD -> matching.fuzzy_threshold
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Kafka mappings
		"kafka_brokers":              "kafka.brokers",
		"kafka_consumer_group":       "kafka.consumer_group",
		"kafka_client_id":            "kafka.client_id",
		"kafka_retry_max_retries":    "kafka.retry_max_retries",
		"kafka_retry_interval":       "kafka.retry_initial_interval",
		"kafka_retry_max_interval":   "kafka.retry_max_interval",
		"kafka_close_timeout":        "kafka.close_timeout",
		"max_retries":                "kafka.retry_max_retries",

		// Database mappings
		"database_url":           "database.url",
		"database_min_conns":     "database.min_conns",
		"database_max_conns":     "database.max_conns",
		"database_query_timeout": "database.query_timeout",

		// Embedding provider mappings
		"openai_api_key":            "embedding.api_key",
		"openai_base_url":           "embedding.base_url",
		"embedding_model":           "embedding.model",
		"embedding_batch_size":      "embedding.batch_size",
		"embedding_request_timeout": "embedding.request_timeout",
		"embedding_rate_per_second": "embedding.rate_per_second",

		// Matching threshold mappings
		"isrc_confidence":           "matching.isrc_confidence",
		"fuzzy_match_threshold":     "matching.fuzzy_threshold",
		"embedding_match_threshold": "matching.embedding_threshold",
		"manual_review_threshold":   "matching.review_threshold",
		"max_alternative_matches":   "matching.max_alternatives",

		// Metrics mappings
		"metrics_port": "metrics.port",
		"metrics_host": "metrics.host",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unmapped vars are dropped to keep unrelated environment noise out
	// of the config tree.
	return ""
}
