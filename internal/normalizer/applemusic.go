// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

package normalizer

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/cadenza/internal/event"
)

// AppleMusicNormalizer handles Apple Music sales and streaming reports.
//
// Apple reports typically include song_name or content_name, artist_name,
// container_name, apple_identifier or isrc, play_count, storefront,
// begin_date/end_date and royalty_amount. The product type identifier
// distinguishes downloads from streams.
type AppleMusicNormalizer struct{}

func (n *AppleMusicNormalizer) Source() string { return "apple_music" }

func (n *AppleMusicNormalizer) Normalize(raw map[string]any) (*event.NormalizedUsageEvent, error) {
	// Apple reports by period; begin_date stands in for the usage date.
	usageDate := parseDate(firstString(raw, "begin_date", "usage_date", "date"))

	reportingPeriod := firstString(raw, "reporting_period")
	if reportingPeriod == "" {
		if begin, end := firstString(raw, "begin_date"), firstString(raw, "end_date"); begin != "" && end != "" {
			reportingPeriod = parseDate(begin).ReportingPeriod()
		} else {
			reportingPeriod = usageDate.ReportingPeriod()
		}
	}

	usageType := event.UsageTypeStream
	productType := strings.ToLower(firstString(raw, "product_type_identifier"))
	if strings.Contains(productType, "download") || strings.Contains(productType, "purchase") {
		usageType = event.UsageTypeDownload
	}

	currency := firstString(raw, "royalty_currency", "currency")
	if currency == "" {
		currency = "USD"
	}

	ev := &event.NormalizedUsageEvent{
		EventID:       uuid.New(),
		Source:        n.Source(),
		SourceEventID: firstString(raw, "vendor_identifier", "source_event_id"),

		ISRC:           cleanISRC(firstString(raw, "isrc", "apple_identifier")),
		ISWC:           cleanISWC(firstString(raw, "iswc")),
		ReportedTitle:  firstString(raw, "song_name", "content_name", "title"),
		ReportedArtist: firstString(raw, "artist_name", "artist"),
		ReportedAlbum:  firstString(raw, "container_name", "album_name", "album"),

		UsageType:     usageType,
		PlayCount:     extractPlayCount(raw, "play_count", "quantity"),
		RevenueAmount: extractRevenue(raw, "royalty_amount", "revenue_amount"),
		Currency:      currency,

		Territory:       truncateTerritory(firstString(raw, "storefront", "territory")),
		UsageDate:       usageDate,
		ReportingPeriod: reportingPeriod,

		IngestedAt: time.Now().UTC(),
	}

	if err := ev.Validate(); err != nil {
		return nil, event.NewPermanentError("invalid normalized event", err)
	}
	return ev, nil
}
