// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

// RouterConfig holds configuration for the Watermill Router.
type RouterConfig struct {
	// CloseTimeout is how long to wait for handlers to finish when closing.
	CloseTimeout time.Duration

	// Retry configuration
	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64

	// PoisonQueueTopic receives messages that keep failing after all
	// retries. Empty disables the poison queue.
	PoisonQueueTopic string
}

// DefaultRouterConfig returns production defaults for the Router.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CloseTimeout:         30 * time.Second,
		RetryMaxRetries:      3,
		RetryInitialInterval: time.Second,
		RetryMaxInterval:     time.Minute,
		RetryMultiplier:      2.0,
	}
}

// Router wraps the Watermill Router with pre-configured middleware.
// It provides automatic Ack/Nack handling, retry with exponential backoff,
// panic recovery, and poison queue routing for messages that exhaust
// their retries.
type Router struct {
	router *message.Router
}

// NewRouter creates a new Watermill Router with pre-configured middleware.
// The middleware chain, outer to inner: Recoverer converts panics to
// errors, PoisonQueue routes messages whose retries are exhausted to the
// DLQ topic, Retry handles transient failures with backoff. Watermill
// wraps first-added middleware outermost, so PoisonQueue must be added
// before Retry to only see errors that survived every retry.
func NewRouter(
	cfg *RouterConfig,
	poisonPublisher message.Publisher,
	logger watermill.LoggerAdapter,
) (*Router, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	if cfg == nil {
		defaultCfg := DefaultRouterConfig()
		cfg = &defaultCfg
	}

	wmRouter, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: cfg.CloseTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	wmRouter.AddMiddleware(middleware.Recoverer)

	if poisonPublisher != nil && cfg.PoisonQueueTopic != "" {
		poisonQueue, err := middleware.PoisonQueue(poisonPublisher, cfg.PoisonQueueTopic)
		if err != nil {
			return nil, fmt.Errorf("create poison queue middleware: %w", err)
		}
		wmRouter.AddMiddleware(poisonQueue)
	}

	retryMiddleware := middleware.Retry{
		MaxRetries:      cfg.RetryMaxRetries,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		Multiplier:      cfg.RetryMultiplier,
		Logger:          logger,
	}
	wmRouter.AddMiddleware(retryMiddleware.Middleware)

	return &Router{router: wmRouter}, nil
}

// AddConsumerHandler registers a handler that publishes through its own
// publisher rather than a router output topic. Both pipeline workers use
// this form because one input fans out to multiple output topics.
func (r *Router) AddConsumerHandler(
	name string,
	subscribeTopic string,
	subscriber message.Subscriber,
	handler message.NoPublishHandlerFunc,
) *message.Handler {
	return r.router.AddConsumerHandler(
		name,
		subscribeTopic,
		subscriber,
		handler,
	)
}

// Run starts the router and blocks until context cancellation or Close().
// All registered handlers begin processing messages.
func (r *Router) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

// Running returns a channel that closes once the router has started all
// handlers and is consuming messages.
func (r *Router) Running() <-chan struct{} {
	return r.router.Running()
}

// Close gracefully stops the router.
// Waits for in-flight messages to complete up to CloseTimeout.
func (r *Router) Close() error {
	return r.router.Close()
}
