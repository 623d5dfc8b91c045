// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

// Package store provides PostgreSQL persistence for the usage pipeline:
// usage event inserts, match outcome transactions and the catalog lookups
// the cascade runs against. Requires the pg_trgm and pgvector extensions.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/tomtom215/cadenza/internal/logging"
)

// Config holds connection pool settings.
type Config struct {
	// URL is the PostgreSQL DSN.
	URL string

	// MinConns/MaxConns bound the pool.
	MinConns int32
	MaxConns int32

	// QueryTimeout bounds individual queries when the caller's context
	// carries no earlier deadline.
	QueryTimeout time.Duration
}

// Store wraps a pgx connection pool with the pipeline's queries.
// Safe for concurrent use.
type Store struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

// New creates a connection pool and verifies connectivity. pgvector types
// are registered on every connection so []float32 embeddings bind natively.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	logging.Info().
		Int32("min_conns", poolCfg.MinConns).
		Int32("max_conns", poolCfg.MaxConns).
		Msg("Database pool ready")

	return &Store{pool: pool, queryTimeout: timeout}, nil
}

// Ping verifies connectivity, for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pool connections.
func (s *Store) Close() {
	s.pool.Close()
}

// withTimeout derives a query context bounded by the configured timeout.
func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}
