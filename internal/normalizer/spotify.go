// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

package normalizer

import (
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/cadenza/internal/event"
)

// SpotifyNormalizer handles Spotify streaming reports.
//
// Spotify reports typically include track_name, artist_name, album_name,
// isrc, streams, date, country and earnings. Everything Spotify delivers
// is a stream.
type SpotifyNormalizer struct{}

func (n *SpotifyNormalizer) Source() string { return "spotify" }

func (n *SpotifyNormalizer) Normalize(raw map[string]any) (*event.NormalizedUsageEvent, error) {
	usageDate := parseDate(firstString(raw, "date", "usage_date"))

	reportingPeriod := firstString(raw, "reporting_period")
	if reportingPeriod == "" {
		reportingPeriod = usageDate.ReportingPeriod()
	}

	currency := firstString(raw, "currency")
	if currency == "" {
		currency = "USD"
	}

	ev := &event.NormalizedUsageEvent{
		EventID:       uuid.New(),
		Source:        n.Source(),
		SourceEventID: firstString(raw, "spotify_id", "source_event_id"),

		ISRC:           cleanISRC(firstString(raw, "isrc")),
		ISWC:           cleanISWC(firstString(raw, "iswc")),
		ReportedTitle:  firstString(raw, "track_name", "title"),
		ReportedArtist: firstString(raw, "artist_name", "artist"),
		ReportedAlbum:  firstString(raw, "album_name", "album"),

		UsageType:     event.UsageTypeStream,
		PlayCount:     extractPlayCount(raw, "streams", "play_count"),
		RevenueAmount: extractRevenue(raw, "earnings", "revenue_amount"),
		Currency:      currency,

		Territory:       truncateTerritory(firstString(raw, "country", "territory")),
		UsageDate:       usageDate,
		ReportingPeriod: reportingPeriod,

		IngestedAt: time.Now().UTC(),
	}

	if err := ev.Validate(); err != nil {
		return nil, event.NewPermanentError("invalid normalized event", err)
	}
	return ev, nil
}
