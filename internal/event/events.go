// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

// Package event defines the canonical message schemas flowing through the
// usage pipeline: normalized usage events, matched/unmatched outcomes and
// dead-letter records, together with the shared enums and error taxonomy.
package event

import (
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// EmbeddingDim is the fixed dimensionality of content and title embeddings.
const EmbeddingDim = 1536

// UsageType classifies how a work was consumed.
type UsageType string

const (
	UsageTypeStream            UsageType = "stream"
	UsageTypeDownload          UsageType = "download"
	UsageTypeRadioPlay         UsageType = "radio_play"
	UsageTypeTVBroadcast       UsageType = "tv_broadcast"
	UsageTypePublicPerformance UsageType = "public_performance"
	UsageTypeSync              UsageType = "sync"
	UsageTypeMechanical        UsageType = "mechanical"
)

// Valid reports whether the usage type is one of the known values.
func (u UsageType) Valid() bool {
	switch u {
	case UsageTypeStream, UsageTypeDownload, UsageTypeRadioPlay,
		UsageTypeTVBroadcast, UsageTypePublicPerformance,
		UsageTypeSync, UsageTypeMechanical:
		return true
	}
	return false
}

// ProcessingStatus tracks a usage event through its lifecycle.
// The pipeline only writes pending and the three terminal states;
// processing and disputed exist for schema compatibility with the
// catalog services that share the usage_events table.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusMatched    ProcessingStatus = "matched"
	StatusUnmatched  ProcessingStatus = "unmatched"
	StatusDisputed   ProcessingStatus = "disputed"
	StatusError      ProcessingStatus = "error"
)

// Terminal reports whether the status ends the event lifecycle.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusMatched || s == StatusUnmatched || s == StatusError
}

// MatchMethod identifies which strategy produced a match.
type MatchMethod string

const (
	MethodISRCExact        MatchMethod = "isrc_exact"
	MethodISWCExact        MatchMethod = "iswc_exact"
	MethodTitleArtistExact MatchMethod = "title_artist_exact"
	MethodFuzzyTitle       MatchMethod = "fuzzy_title"
	MethodAIEmbedding      MatchMethod = "ai_embedding"
	MethodManual           MatchMethod = "manual"
)

// Date is a calendar date serialized as YYYY-MM-DD on the wire.
type Date struct {
	time.Time
}

// NewDate builds a Date from year, month and day in UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a time to its UTC calendar date.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return NewDate(y, m, d)
}

// Today returns the current UTC date.
func Today() Date {
	return DateOf(time.Now())
}

// String returns the date in YYYY-MM-DD form.
func (d Date) String() string {
	return d.Format("2006-01-02")
}

// ReportingPeriod derives the YYYY_MM period for this date.
func (d Date) ReportingPeriod() string {
	return d.Format("2006_01")
}

// MarshalJSON encodes the date as "YYYY-MM-DD".
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes "YYYY-MM-DD". Empty and null decode to the zero date.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// NormalizedUsageEvent is the canonical usage event published to
// usage.normalized and persisted to the usage_events table. The message
// key on the bus is EventID to preserve partition affinity downstream.
type NormalizedUsageEvent struct {
	EventID       uuid.UUID `json:"event_id"`
	Source        string    `json:"source"`
	SourceEventID string    `json:"source_event_id,omitempty"`

	// Content identification (standardized)
	ISRC           string `json:"isrc,omitempty"`
	ISWC           string `json:"iswc,omitempty"`
	ReportedTitle  string `json:"reported_title,omitempty"`
	ReportedArtist string `json:"reported_artist,omitempty"`
	ReportedAlbum  string `json:"reported_album,omitempty"`

	// Usage details
	UsageType     UsageType `json:"usage_type"`
	PlayCount     int64     `json:"play_count"`
	RevenueAmount *float64  `json:"revenue_amount,omitempty"`
	Currency      string    `json:"currency"`

	// Geographic & temporal
	Territory       string `json:"territory,omitempty"`
	UsageDate       Date   `json:"usage_date"`
	ReportingPeriod string `json:"reporting_period,omitempty"`

	// Processing metadata
	IngestedAt       time.Time `json:"ingested_at"`
	ContentEmbedding []float32 `json:"content_embedding,omitempty"`
}

// Validate checks the invariants every normalized event must satisfy.
func (e *NormalizedUsageEvent) Validate() error {
	if e.EventID == uuid.Nil {
		return &ValidationError{Field: "event_id", Message: "required"}
	}
	if e.Source == "" {
		return &ValidationError{Field: "source", Message: "required"}
	}
	if !e.UsageType.Valid() {
		return &ValidationError{Field: "usage_type", Message: "unknown value"}
	}
	if e.PlayCount < 1 {
		return &ValidationError{Field: "play_count", Message: "must be >= 1"}
	}
	if e.RevenueAmount != nil && *e.RevenueAmount < 0 {
		return &ValidationError{Field: "revenue_amount", Message: "must be >= 0"}
	}
	if e.Currency == "" {
		return &ValidationError{Field: "currency", Message: "required"}
	}
	if e.ISRC != "" && len(e.ISRC) != 12 {
		return &ValidationError{Field: "isrc", Message: "must be 12 characters"}
	}
	if utf8.RuneCountInString(e.Territory) > 5 {
		return &ValidationError{Field: "territory", Message: "at most 5 characters"}
	}
	if e.UsageDate.IsZero() {
		return &ValidationError{Field: "usage_date", Message: "required"}
	}
	if n := len(e.ContentEmbedding); n != 0 && n != EmbeddingDim {
		return &ValidationError{Field: "content_embedding", Message: "wrong dimension"}
	}
	return nil
}

// HasContent reports whether the event carries enough text to embed.
func (e *NormalizedUsageEvent) HasContent() bool {
	return e.ReportedTitle != "" || e.ReportedArtist != ""
}

// MatchResult is a single candidate resolution of a usage event to a work.
type MatchResult struct {
	WorkID      uuid.UUID   `json:"work_id"`
	RecordingID *uuid.UUID  `json:"recording_id,omitempty"`
	Confidence  float64     `json:"confidence"`
	Method      MatchMethod `json:"method"`
}

// MatchedUsageEvent is published to usage.matched after a confident match.
type MatchedUsageEvent struct {
	UsageEventID uuid.UUID `json:"usage_event_id"`
	Source       string    `json:"source"`
	UsageDate    Date      `json:"usage_date"`
	Territory    string    `json:"territory,omitempty"`

	WorkID          uuid.UUID   `json:"work_id"`
	RecordingID     *uuid.UUID  `json:"recording_id,omitempty"`
	MatchConfidence float64     `json:"match_confidence"`
	MatchMethod     MatchMethod `json:"match_method"`

	UsageType     UsageType `json:"usage_type"`
	PlayCount     int64     `json:"play_count"`
	RevenueAmount *float64  `json:"revenue_amount,omitempty"`
	Currency      string    `json:"currency"`

	MatchedAt time.Time `json:"matched_at"`
}

// ReasonNoConfidentMatch is the reason recorded on unmatched events.
const ReasonNoConfidentMatch = "no_confident_match"

// UnmatchedUsageEvent is published to usage.unmatched for human review,
// carrying ranked candidate suggestions.
type UnmatchedUsageEvent struct {
	UsageEventID  uuid.UUID `json:"usage_event_id"`
	Source        string    `json:"source"`
	SourceEventID string    `json:"source_event_id,omitempty"`

	ISRC           string `json:"isrc,omitempty"`
	ReportedTitle  string `json:"reported_title,omitempty"`
	ReportedArtist string `json:"reported_artist,omitempty"`
	ReportedAlbum  string `json:"reported_album,omitempty"`

	UsageType     UsageType `json:"usage_type"`
	PlayCount     int64     `json:"play_count"`
	RevenueAmount *float64  `json:"revenue_amount,omitempty"`
	Currency      string    `json:"currency"`
	Territory     string    `json:"territory,omitempty"`
	UsageDate     Date      `json:"usage_date"`

	SuggestedMatches []MatchResult `json:"suggested_matches"`
	Reason           string        `json:"reason"`
	QueuedAt         time.Time     `json:"queued_at"`
}

// ValidationError represents a field validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
