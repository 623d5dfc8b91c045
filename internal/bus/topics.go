// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

// Package bus wraps Watermill's Kafka Pub/Sub with the pipeline's topic
// layout, JSON codec and a pre-configured message router. Delivery is
// at-least-once; offsets are tracked per consumer group.
package bus

// Kafka topic names for the usage pipeline. Raw topics carry free-form
// vendor JSON; the rest carry the canonical schemas from internal/event.
const (
	// Raw ingestion topics (one per DSP dialect)
	TopicRawSpotify    = "usage.raw.spotify"
	TopicRawAppleMusic = "usage.raw.apple_music"
	TopicRawRadio      = "usage.raw.radio"
	TopicRawGeneric    = "usage.raw.generic"

	// Processing topics
	TopicNormalized = "usage.normalized"
	TopicMatched    = "usage.matched"
	TopicUnmatched  = "usage.unmatched"

	// Dead letter queues (written, never consumed by the pipeline)
	TopicDLQProcessing = "dlq.usage.processing"
	TopicDLQMatching   = "dlq.matching"
)

// RawTopics lists every raw ingestion topic the usage processor consumes.
func RawTopics() []string {
	return []string{
		TopicRawSpotify,
		TopicRawAppleMusic,
		TopicRawRadio,
		TopicRawGeneric,
	}
}

// sourceByTopic maps raw topics to normalizer source tags.
var sourceByTopic = map[string]string{
	TopicRawSpotify:    "spotify",
	TopicRawAppleMusic: "apple_music",
	TopicRawRadio:      "radio",
	TopicRawGeneric:    "generic",
}

// SourceFromTopic extracts the source tag from a raw topic name.
// Unknown topics yield "unknown", which routes to the generic normalizer.
func SourceFromTopic(topic string) string {
	if source, ok := sourceByTopic[topic]; ok {
		return source
	}
	return "unknown"
}
