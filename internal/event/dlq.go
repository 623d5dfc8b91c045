// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

package event

import (
	"time"

	"github.com/goccy/go-json"
)

// ProcessingFailure is the dead-letter record written to dlq.usage.processing
// when a raw payload cannot be normalized or persisted. The raw payload is
// carried verbatim as the source of truth for later replay.
type ProcessingFailure struct {
	OriginalTopic string          `json:"original_topic"`
	RawData       json.RawMessage `json:"raw_data"`
	Error         string          `json:"error"`
	FailedAt      time.Time       `json:"failed_at"`
}

// NewProcessingFailure builds a processing DLQ record stamped with the
// current UTC time.
func NewProcessingFailure(topic string, raw []byte, err error) *ProcessingFailure {
	return &ProcessingFailure{
		OriginalTopic: topic,
		RawData:       json.RawMessage(raw),
		Error:         err.Error(),
		FailedAt:      time.Now().UTC(),
	}
}

// MatchingFailure is the dead-letter record written to dlq.matching when the
// cascade fails unrecoverably for a normalized event.
type MatchingFailure struct {
	EventData json.RawMessage `json:"event_data"`
	Error     string          `json:"error"`
	FailedAt  time.Time       `json:"failed_at"`
}

// NewMatchingFailure builds a matching DLQ record stamped with the current
// UTC time.
func NewMatchingFailure(eventData []byte, err error) *MatchingFailure {
	return &MatchingFailure{
		EventData: json.RawMessage(eventData),
		Error:     err.Error(),
		FailedAt:  time.Now().UTC(),
	}
}
