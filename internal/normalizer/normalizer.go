// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

// Package normalizer converts raw DSP usage payloads into canonical
// normalized usage events. One normalizer per source tag; a catch-all
// generic normalizer handles unknown tags and radio feeds.
package normalizer

import (
	"github.com/tomtom215/cadenza/internal/event"
)

// Normalizer converts an arbitrary raw JSON object from one DSP dialect
// into a canonical normalized usage event.
type Normalizer interface {
	// Source returns the source tag this normalizer handles.
	Source() string

	// Normalize converts one raw payload. The returned event carries a
	// freshly generated event_id and a null embedding.
	Normalize(raw map[string]any) (*event.NormalizedUsageEvent, error)
}

// registry maps source tags to normalizers. Radio feeds have no dialect
// of their own yet and go through the generic field aliases.
var registry = map[string]Normalizer{
	"spotify":     &SpotifyNormalizer{},
	"apple_music": &AppleMusicNormalizer{},
	"generic":     &GenericNormalizer{},
	"radio":       &GenericNormalizer{},
}

// ForSource returns the normalizer for a source tag. Unknown tags fall
// back to the generic normalizer.
func ForSource(source string) Normalizer {
	if n, ok := registry[source]; ok {
		return n
	}
	return &GenericNormalizer{}
}

// NormalizeBatch normalizes a slice of raw payloads with the given
// normalizer. The first failure aborts the batch.
func NormalizeBatch(n Normalizer, raws []map[string]any) ([]*event.NormalizedUsageEvent, error) {
	events := make([]*event.NormalizedUsageEvent, 0, len(raws))
	for _, raw := range raws {
		ev, err := n.Normalize(raw)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}
