// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

package event

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Serializer handles normalized-event encoding/decoding for bus messages.
// Values on the wire are UTF-8 JSON.
type Serializer struct{}

// NewSerializer creates a new serializer.
func NewSerializer() *Serializer {
	return &Serializer{}
}

// Marshal converts a normalized event to JSON bytes, validating first.
func (s *Serializer) Marshal(ev *NormalizedUsageEvent) ([]byte, error) {
	if err := ev.Validate(); err != nil {
		return nil, fmt.Errorf("validate event: %w", err)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}

	return data, nil
}

// Unmarshal converts JSON bytes to a normalized event.
func (s *Serializer) Unmarshal(data []byte) (*NormalizedUsageEvent, error) {
	var ev NormalizedUsageEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}

	return &ev, nil
}

// SerializeEvent is a convenience function that marshals an event to JSON.
func SerializeEvent(ev *NormalizedUsageEvent) ([]byte, error) {
	return NewSerializer().Marshal(ev)
}

// DeserializeEvent is a convenience function that unmarshals JSON to an event.
func DeserializeEvent(data []byte) (*NormalizedUsageEvent, error) {
	return NewSerializer().Unmarshal(data)
}
