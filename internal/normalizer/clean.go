// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

package normalizer

import (
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/cadenza/internal/event"
)

// Shared cleaning rules applied by every normalizer.

// cleanISRC removes spaces and hyphens and uppercases. Accepts only a
// resulting length of exactly 12, anything else yields empty.
func cleanISRC(raw string) string {
	cleaned := strings.ReplaceAll(raw, " ", "")
	cleaned = strings.ReplaceAll(cleaned, "-", "")
	cleaned = strings.ToUpper(cleaned)

	if len(cleaned) != 12 {
		return ""
	}
	return cleaned
}

// cleanISWC strips all whitespace and uppercases. No length check, the
// format varies across societies.
func cleanISWC(raw string) string {
	return strings.ToUpper(strings.Join(strings.Fields(raw), ""))
}

// cleanString trims surrounding whitespace. Empty results stay empty.
func cleanString(raw string) string {
	return strings.TrimSpace(raw)
}

// dateLayouts are tried in order when parsing vendor dates.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
	"02/01/2006",
	"20060102",
	"01/02/2006",
}

// parseDate parses a vendor date string, trying the accepted layouts in
// order. Unparseable or empty input falls back to the current UTC date.
func parseDate(raw string) event.Date {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return event.Today()
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return event.DateOf(t)
		}
	}

	return event.Today()
}

// usageTypeLexicon maps vendor usage-type spellings, lowercased, to the
// canonical enum.
var usageTypeLexicon = map[string]event.UsageType{
	"stream":             event.UsageTypeStream,
	"streaming":          event.UsageTypeStream,
	"play":               event.UsageTypeStream,
	"download":           event.UsageTypeDownload,
	"purchase":           event.UsageTypeDownload,
	"radio":              event.UsageTypeRadioPlay,
	"radio_play":         event.UsageTypeRadioPlay,
	"broadcast":          event.UsageTypeTVBroadcast,
	"tv":                 event.UsageTypeTVBroadcast,
	"tv_broadcast":       event.UsageTypeTVBroadcast,
	"performance":        event.UsageTypePublicPerformance,
	"public_performance": event.UsageTypePublicPerformance,
	"sync":               event.UsageTypeSync,
	"synchronization":    event.UsageTypeSync,
	"mechanical":         event.UsageTypeMechanical,
}

// parseUsageType maps a vendor usage-type string through the lexicon.
// Unrecognized and empty values default to stream.
func parseUsageType(raw string) event.UsageType {
	if t, ok := usageTypeLexicon[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return t
	}
	return event.UsageTypeStream
}

// truncateTerritory keeps at most the first 5 characters. Truncation is
// by rune so multi-byte input stays valid UTF-8.
func truncateTerritory(raw string) string {
	runes := []rune(cleanString(raw))
	if len(runes) > 5 {
		return string(runes[:5])
	}
	return string(runes)
}

// firstValue returns the first non-nil value among the given keys.
func firstValue(raw map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := raw[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

// firstString returns the first key whose value stringifies to something
// non-empty after trimming.
func firstString(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := cleanString(asString(raw[key])); s != "" {
			return s
		}
	}
	return ""
}

// asString renders a raw JSON value as a string. Numbers are formatted
// without a trailing ".0" so numeric identifiers survive round-tripping.
func asString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// extractPlayCount tries the given fields in order and returns the first
// parseable integer, floored to 1. Absent, zero and negative counts all
// normalize to 1.
func extractPlayCount(raw map[string]any, keys ...string) int64 {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}

		var n int64
		switch val := v.(type) {
		case float64:
			n = int64(val)
		case string:
			parsed, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
			if err != nil {
				continue
			}
			n = parsed
		default:
			continue
		}

		if n < 1 {
			return 1
		}
		return n
	}

	return 1
}

// extractRevenue tries the given fields in order and returns the first
// parseable amount, or nil when none parses.
func extractRevenue(raw map[string]any, keys ...string) *float64 {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}

		switch val := v.(type) {
		case float64:
			return &val
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
			if err != nil {
				continue
			}
			return &parsed
		}
	}

	return nil
}
