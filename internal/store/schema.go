// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

package store

import (
	"context"
	"fmt"
)

// schemaDDL creates the pipeline tables when they do not exist. The
// catalog tables (works, recordings) are owned by the catalog services in
// production; creating them here keeps local and test environments
// self-contained.
const schemaDDL = `
CREATE EXTENSION IF NOT EXISTS pg_trgm;
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS works (
	id UUID PRIMARY KEY,
	title VARCHAR(500) NOT NULL,
	alternate_titles TEXT[],
	iswc VARCHAR(15) UNIQUE,
	language VARCHAR(10),
	genre VARCHAR(100),
	status VARCHAR(50) NOT NULL DEFAULT 'active',
	title_embedding vector(1536),
	metadata_embedding vector(1536)
);

CREATE TABLE IF NOT EXISTS recordings (
	id UUID PRIMARY KEY,
	work_id UUID NOT NULL REFERENCES works(id),
	isrc VARCHAR(12) UNIQUE,
	title VARCHAR(500) NOT NULL,
	artist_name VARCHAR(255),
	version_type VARCHAR(50)
);

CREATE TABLE IF NOT EXISTS usage_events (
	id UUID PRIMARY KEY,
	source VARCHAR(100) NOT NULL,
	source_event_id VARCHAR(255),
	isrc VARCHAR(12),
	iswc VARCHAR(15),
	reported_title VARCHAR(500),
	reported_artist VARCHAR(255),
	reported_album VARCHAR(255),
	usage_type VARCHAR(50) NOT NULL,
	play_count BIGINT NOT NULL DEFAULT 1,
	revenue_amount NUMERIC(12, 6),
	currency VARCHAR(3) NOT NULL DEFAULT 'USD',
	territory VARCHAR(5),
	usage_date DATE NOT NULL,
	reporting_period VARCHAR(20),
	processing_status VARCHAR(50) NOT NULL DEFAULT 'pending',
	ingested_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	processed_at TIMESTAMPTZ,
	content_embedding vector(1536)
);

CREATE TABLE IF NOT EXISTS matched_usage (
	id UUID PRIMARY KEY,
	usage_event_id UUID NOT NULL REFERENCES usage_events(id),
	work_id UUID NOT NULL REFERENCES works(id),
	recording_id UUID REFERENCES recordings(id),
	match_confidence NUMERIC(5, 4) NOT NULL,
	match_method VARCHAR(50) NOT NULL,
	matched_by VARCHAR(100),
	is_confirmed BOOLEAN NOT NULL DEFAULT false,
	confirmed_by UUID,
	confirmed_at TIMESTAMPTZ,
	matched_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (usage_event_id, work_id)
);

CREATE INDEX IF NOT EXISTS idx_usage_events_source ON usage_events(source);
CREATE INDEX IF NOT EXISTS idx_usage_events_isrc ON usage_events(isrc);
CREATE INDEX IF NOT EXISTS idx_usage_events_status ON usage_events(processing_status);
CREATE INDEX IF NOT EXISTS idx_usage_events_usage_date ON usage_events(usage_date);
CREATE INDEX IF NOT EXISTS idx_usage_events_period ON usage_events(reporting_period);
CREATE INDEX IF NOT EXISTS idx_matched_usage_event ON matched_usage(usage_event_id);
CREATE INDEX IF NOT EXISTS idx_matched_usage_work ON matched_usage(work_id);
CREATE INDEX IF NOT EXISTS idx_recordings_work ON recordings(work_id);
CREATE INDEX IF NOT EXISTS idx_recordings_title_trgm ON recordings USING gin (LOWER(title) gin_trgm_ops);
CREATE INDEX IF NOT EXISTS idx_works_title_trgm ON works USING gin (LOWER(title) gin_trgm_ops);
`

// EnsureSchema applies the pipeline DDL. Idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
