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

// GenericNormalizer handles usage data from sources without a dedicated
// dialect, trying a wide set of common field names in a fixed order. It is
// the fallback for unknown source tags and currently covers radio feeds.
type GenericNormalizer struct{}

func (n *GenericNormalizer) Source() string { return "generic" }

func (n *GenericNormalizer) Normalize(raw map[string]any) (*event.NormalizedUsageEvent, error) {
	usageDate := parseDate(firstString(raw, "date", "usage_date", "period_date", "transaction_date"))

	reportingPeriod := firstString(raw, "reporting_period", "period", "period_code")
	if reportingPeriod == "" {
		reportingPeriod = usageDate.ReportingPeriod()
	}

	currency := firstString(raw, "currency", "currency_code", "royalty_currency")
	if currency == "" {
		currency = "USD"
	}

	// Payloads may carry their true source tag; honor it when present.
	source := firstString(raw, "source")
	if source == "" {
		source = n.Source()
	}

	ev := &event.NormalizedUsageEvent{
		EventID:       uuid.New(),
		Source:        source,
		SourceEventID: firstString(raw, "source_event_id", "event_id", "transaction_id", "id"),

		ISRC:           cleanISRC(firstString(raw, "isrc", "ISRC", "recording_code")),
		ISWC:           cleanISWC(firstString(raw, "iswc", "ISWC")),
		ReportedTitle:  firstString(raw, "title", "track_name", "song_name", "name", "track_title", "reported_title"),
		ReportedArtist: firstString(raw, "artist", "artist_name", "performer", "main_artist", "reported_artist"),
		ReportedAlbum:  firstString(raw, "album", "album_name", "release_name", "album_title", "reported_album"),

		UsageType: parseUsageType(firstString(raw, "usage_type", "type", "transaction_type")),
		PlayCount: extractPlayCount(raw,
			"plays", "play_count", "streams", "quantity",
			"units", "count", "total_plays", "stream_count"),
		RevenueAmount: extractRevenue(raw,
			"revenue", "revenue_amount", "amount", "earnings",
			"royalty", "royalty_amount", "net_revenue", "gross_revenue", "payment"),
		Currency: currency,

		Territory:       truncateTerritory(firstString(raw, "country", "territory", "region", "country_code")),
		UsageDate:       usageDate,
		ReportingPeriod: reportingPeriod,

		IngestedAt: time.Now().UTC(),
	}

	if err := ev.Validate(); err != nil {
		return nil, event.NewPermanentError("invalid normalized event", err)
	}
	return ev, nil
}
