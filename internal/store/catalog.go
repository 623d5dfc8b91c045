// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/tomtom215/cadenza/internal/metrics"
)

// RecordingRef identifies a recording and its parent work.
type RecordingRef struct {
	RecordingID uuid.UUID
	WorkID      uuid.UUID
}

// Candidate is a scored catalog hit from a similarity search.
type Candidate struct {
	WorkID      uuid.UUID
	RecordingID *uuid.UUID
	Similarity  float64
}

const findRecordingByISRCSQL = `
SELECT r.id, r.work_id
FROM recordings r
WHERE r.isrc = $1
LIMIT 1`

// FindRecordingByISRC resolves a cleaned 12-character ISRC to its
// recording and work. Returns (nil, nil) when absent.
func (s *Store) FindRecordingByISRC(ctx context.Context, isrc string) (*RecordingRef, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var ref RecordingRef
	start := time.Now()
	err := s.pool.QueryRow(ctx, findRecordingByISRCSQL, isrc).Scan(&ref.RecordingID, &ref.WorkID)
	metrics.RecordDBQuery("find_recording_by_isrc", time.Since(start), ignoreNoRows(err))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find recording by isrc: %w", err)
	}
	return &ref, nil
}

const findWorkByISWCSQL = `
SELECT w.id
FROM works w
WHERE w.iswc = $1
LIMIT 1`

// FindWorkByISWC resolves a cleaned ISWC to its work.
// Returns uuid.Nil and no error when absent.
func (s *Store) FindWorkByISWC(ctx context.Context, iswc string) (uuid.UUID, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var workID uuid.UUID
	start := time.Now()
	err := s.pool.QueryRow(ctx, findWorkByISWCSQL, iswc).Scan(&workID)
	metrics.RecordDBQuery("find_work_by_iswc", time.Since(start), ignoreNoRows(err))

	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("find work by iswc: %w", err)
	}
	return workID, nil
}

const searchRecordingsByTextSQL = `
SELECT
	r.id,
	r.work_id,
	similarity(LOWER(r.title || ' ' || COALESCE(r.artist_name, '')), LOWER($1)) AS sim_score
FROM recordings r
WHERE similarity(LOWER(r.title || ' ' || COALESCE(r.artist_name, '')), LOWER($1)) > $2
ORDER BY sim_score DESC, r.work_id ASC
LIMIT $3`

const searchRecordingsByTitleSQL = `
SELECT
	r.id,
	r.work_id,
	similarity(LOWER(r.title), LOWER($1)) AS sim_score
FROM recordings r
WHERE similarity(LOWER(r.title), LOWER($1)) > $2
ORDER BY sim_score DESC, r.work_id ASC
LIMIT $3`

// SearchRecordings runs a trigram similarity search against recording
// titles. When artist is non-empty the search text is "title artist"
// against the concatenated title and artist columns.
func (s *Store) SearchRecordings(ctx context.Context, title, artist string, threshold float64, limit int) ([]Candidate, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := searchRecordingsByTitleSQL
	searchText := title
	if artist != "" {
		query = searchRecordingsByTextSQL
		searchText = title + " " + artist
	}

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, searchText, threshold, limit)
	metrics.RecordDBQuery("search_recordings", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("search recordings: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var recordingID uuid.UUID
		var c Candidate
		if err := rows.Scan(&recordingID, &c.WorkID, &c.Similarity); err != nil {
			return nil, fmt.Errorf("scan recording candidate: %w", err)
		}
		c.RecordingID = &recordingID
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

const searchWorksByTitleSQL = `
SELECT
	w.id,
	similarity(LOWER(w.title), LOWER($1)) AS sim_score
FROM works w
WHERE w.status = 'active'
	AND similarity(LOWER(w.title), LOWER($1)) > $2
ORDER BY sim_score DESC, w.id ASC
LIMIT $3`

// SearchWorks runs a trigram similarity search against active work titles.
func (s *Store) SearchWorks(ctx context.Context, title string, threshold float64, limit int) ([]Candidate, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	rows, err := s.pool.Query(ctx, searchWorksByTitleSQL, title, threshold, limit)
	metrics.RecordDBQuery("search_works", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("search works: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.WorkID, &c.Similarity); err != nil {
			return nil, fmt.Errorf("scan work candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

const searchWorksByEmbeddingSQL = `
SELECT
	w.id,
	1 - (w.title_embedding <=> $1) AS similarity
FROM works w
WHERE w.title_embedding IS NOT NULL
	AND w.status = 'active'
ORDER BY w.title_embedding <=> $1, w.id ASC
LIMIT $2`

// SearchWorksByEmbedding runs a cosine similarity search against work
// title embeddings. Similarity is 1 minus the cosine distance the <=>
// operator returns.
func (s *Store) SearchWorksByEmbedding(ctx context.Context, embedding []float32, limit int) ([]Candidate, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	rows, err := s.pool.Query(ctx, searchWorksByEmbeddingSQL, pgvector.NewVector(embedding), limit)
	metrics.RecordDBQuery("search_works_by_embedding", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("search works by embedding: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.WorkID, &c.Similarity); err != nil {
			return nil, fmt.Errorf("scan embedding candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// ignoreNoRows keeps absent-row lookups out of the error metrics.
func ignoreNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}
