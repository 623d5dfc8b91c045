// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

package store

import (
	"context"
	"time"

	"github.com/tomtom215/cadenza/internal/event"
	"github.com/tomtom215/cadenza/internal/logging"
)

// RetryConfig bounds the retry loop for transient persistence failures.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	Multiplier      float64
}

// DefaultRetryConfig returns the production retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		Multiplier:      2.0,
	}
}

// WithRetry runs op, retrying transient failures with exponential backoff
// up to MaxRetries. Permanent failures and context cancellation abort
// immediately; the last error is returned when retries are exhausted.
func WithRetry(ctx context.Context, cfg RetryConfig, name string, op func(ctx context.Context) error) error {
	interval := cfg.InitialInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	multiplier := cfg.Multiplier
	if multiplier < 1 {
		multiplier = 2.0
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if event.IsPermanent(err) || attempt >= cfg.MaxRetries {
			return err
		}
		if ctx.Err() != nil {
			return err
		}

		logging.Warn().Err(err).
			Str("operation", name).
			Int("attempt", attempt+1).
			Dur("backoff", interval).
			Msg("Transient failure, retrying")

		select {
		case <-ctx.Done():
			return err
		case <-time.After(interval):
		}
		interval = time.Duration(float64(interval) * multiplier)
	}
}
