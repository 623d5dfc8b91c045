// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

package normalizer

import (
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/tomtom215/cadenza/internal/event"
)

func TestCleanISRC(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"hyphenated", "xy-12-34-5678-90", "XY1234567890"},
		{"spaced", "XY 12 34 56789 0", "XY1234567890"},
		{"mixed separators", "xy12345678 90", "XY1234567890"},
		{"already clean", "USRC17607839", "USRC17607839"},
		{"lowercase clean", "usrc17607839", "USRC17607839"},
		{"too short", "USRC1760", ""},
		{"too long", "USRC176078391234", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanISRC(tt.input); got != tt.want {
				t.Errorf("cleanISRC(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// Distinct raw spellings of the same ISRC must converge on one key.
func TestCleanISRCRepresentationInvariance(t *testing.T) {
	variants := []string{
		"xy-12-34-5678-90",
		"XY 12 34 56789 0",
		"xy12345678 90",
		"XY1234567890",
	}
	want := cleanISRC(variants[0])
	if want == "" {
		t.Fatal("reference variant did not clean to a valid ISRC")
	}
	for _, v := range variants[1:] {
		if got := cleanISRC(v); got != want {
			t.Errorf("cleanISRC(%q) = %q, want %q", v, got, want)
		}
	}
}

func TestCleanISWC(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"t-034.524.680-1", "T-034.524.680-1"},
		{"T 034 524 680 1", "T0345246801"},
		{"  t0345246801\t", "T0345246801"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := cleanISWC(tt.input); got != tt.want {
			t.Errorf("cleanISWC(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	want := event.NewDate(2026, time.March, 15)

	tests := []struct {
		name  string
		input string
	}{
		{"iso", "2026-03-15"},
		{"slash ymd", "2026/03/15"},
		{"dmy dashes", "15-03-2026"},
		{"dmy slashes", "15/03/2026"},
		{"compact", "20260315"},
		{"padded", "  2026-03-15  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseDate(tt.input); !got.Equal(want.Time) {
				t.Errorf("parseDate(%q) = %s, want %s", tt.input, got, want)
			}
		})
	}

	// US-style mdy only wins when the dmy reading is impossible.
	if got := parseDate("03/15/2026"); !got.Equal(want.Time) {
		t.Errorf("parseDate(03/15/2026) = %s, want %s", got, want)
	}

	t.Run("unparseable falls back to today", func(t *testing.T) {
		today := event.Today()
		if got := parseDate("not a date"); !got.Equal(today.Time) {
			t.Errorf("parseDate(garbage) = %s, want today %s", got, today)
		}
		if got := parseDate(""); !got.Equal(today.Time) {
			t.Errorf("parseDate(empty) = %s, want today %s", got, today)
		}
	})
}

func TestParseUsageType(t *testing.T) {
	tests := []struct {
		input string
		want  event.UsageType
	}{
		{"stream", event.UsageTypeStream},
		{"Streaming", event.UsageTypeStream},
		{"play", event.UsageTypeStream},
		{"download", event.UsageTypeDownload},
		{"purchase", event.UsageTypeDownload},
		{"radio", event.UsageTypeRadioPlay},
		{"radio_play", event.UsageTypeRadioPlay},
		{"broadcast", event.UsageTypeTVBroadcast},
		{"TV", event.UsageTypeTVBroadcast},
		{"tv_broadcast", event.UsageTypeTVBroadcast},
		{"performance", event.UsageTypePublicPerformance},
		{"public_performance", event.UsageTypePublicPerformance},
		{"sync", event.UsageTypeSync},
		{"synchronization", event.UsageTypeSync},
		{"mechanical", event.UsageTypeMechanical},
		{"", event.UsageTypeStream},
		{"webcast", event.UsageTypeStream},
	}
	for _, tt := range tests {
		if got := parseUsageType(tt.input); got != tt.want {
			t.Errorf("parseUsageType(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestTruncateTerritory(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"US", "US"},
		{" GB ", "GB"},
		{"GLOBAL", "GLOBA"},
		{"日本国内限定", "日本国内限"},
		{"ÅLAND ISLANDS", "ÅLAND"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := truncateTerritory(tt.input); got != tt.want {
			t.Errorf("truncateTerritory(%q) = %q, want %q", tt.input, got, tt.want)
		}
		if !utf8.ValidString(truncateTerritory(tt.input)) {
			t.Errorf("truncateTerritory(%q) produced invalid UTF-8", tt.input)
		}
	}
}

func TestExtractPlayCount(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want int64
	}{
		{"number", map[string]any{"streams": float64(42)}, 42},
		{"string number", map[string]any{"streams": " 17 "}, 17},
		{"zero floors to one", map[string]any{"streams": float64(0)}, 1},
		{"negative floors to one", map[string]any{"streams": float64(-3)}, 1},
		{"absent defaults to one", map[string]any{}, 1},
		{"nil defaults to one", map[string]any{"streams": nil}, 1},
		{"second key wins", map[string]any{"play_count": float64(9)}, 9},
		{"unparseable string skipped", map[string]any{"streams": "n/a", "play_count": float64(5)}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractPlayCount(tt.raw, "streams", "play_count"); got != tt.want {
				t.Errorf("extractPlayCount = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestExtractRevenue(t *testing.T) {
	t.Run("number", func(t *testing.T) {
		got := extractRevenue(map[string]any{"earnings": 0.0042}, "earnings")
		if got == nil || *got != 0.0042 {
			t.Errorf("extractRevenue = %v, want 0.0042", got)
		}
	})
	t.Run("string", func(t *testing.T) {
		got := extractRevenue(map[string]any{"earnings": "1.25"}, "earnings")
		if got == nil || *got != 1.25 {
			t.Errorf("extractRevenue = %v, want 1.25", got)
		}
	})
	t.Run("explicit zero is kept", func(t *testing.T) {
		got := extractRevenue(map[string]any{"earnings": 0.0}, "earnings")
		if got == nil || *got != 0 {
			t.Errorf("extractRevenue = %v, want 0", got)
		}
	})
	t.Run("absent is nil", func(t *testing.T) {
		if got := extractRevenue(map[string]any{}, "earnings"); got != nil {
			t.Errorf("extractRevenue = %v, want nil", got)
		}
	})
	t.Run("unparseable is nil", func(t *testing.T) {
		if got := extractRevenue(map[string]any{"earnings": "free"}, "earnings"); got != nil {
			t.Errorf("extractRevenue = %v, want nil", got)
		}
	})
}

func TestSpotifyNormalize(t *testing.T) {
	n := &SpotifyNormalizer{}

	raw := map[string]any{
		"spotify_id":  "sp-123",
		"track_name":  "Shape of You",
		"artist_name": "Ed Sheeran",
		"album_name":  "Divide",
		"isrc":        "gb-ahs-17-00024",
		"streams":     float64(1500),
		"date":        "2026-01-15",
		"country":     "US",
		"earnings":    0.0042,
	}

	ev, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if ev.EventID == uuid.Nil {
		t.Error("expected generated event_id")
	}
	if ev.Source != "spotify" {
		t.Errorf("Source = %q, want spotify", ev.Source)
	}
	if ev.SourceEventID != "sp-123" {
		t.Errorf("SourceEventID = %q", ev.SourceEventID)
	}
	if ev.ISRC != "GBAHS1700024" {
		t.Errorf("ISRC = %q, want GBAHS1700024", ev.ISRC)
	}
	if ev.ReportedTitle != "Shape of You" || ev.ReportedArtist != "Ed Sheeran" || ev.ReportedAlbum != "Divide" {
		t.Errorf("content fields = %q / %q / %q", ev.ReportedTitle, ev.ReportedArtist, ev.ReportedAlbum)
	}
	if ev.UsageType != event.UsageTypeStream {
		t.Errorf("UsageType = %q, want stream", ev.UsageType)
	}
	if ev.PlayCount != 1500 {
		t.Errorf("PlayCount = %d, want 1500", ev.PlayCount)
	}
	if ev.RevenueAmount == nil || *ev.RevenueAmount != 0.0042 {
		t.Errorf("RevenueAmount = %v, want 0.0042", ev.RevenueAmount)
	}
	if ev.Currency != "USD" {
		t.Errorf("Currency = %q, want default USD", ev.Currency)
	}
	if ev.Territory != "US" {
		t.Errorf("Territory = %q, want US", ev.Territory)
	}
	if ev.UsageDate.String() != "2026-01-15" {
		t.Errorf("UsageDate = %s, want 2026-01-15", ev.UsageDate)
	}
	if ev.ReportingPeriod != "2026_01" {
		t.Errorf("ReportingPeriod = %q, want 2026_01", ev.ReportingPeriod)
	}
	if ev.ContentEmbedding != nil {
		t.Error("expected null embedding at normalization time")
	}
	if ev.IngestedAt.IsZero() {
		t.Error("IngestedAt not set")
	}
}

func TestSpotifyNormalizeMinimal(t *testing.T) {
	n := &SpotifyNormalizer{}

	// Nearly empty payload still yields a valid event with defaults.
	ev, err := n.Normalize(map[string]any{"track_name": "Untitled"})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if ev.PlayCount != 1 {
		t.Errorf("PlayCount = %d, want floor of 1", ev.PlayCount)
	}
	if ev.Currency != "USD" {
		t.Errorf("Currency = %q, want USD", ev.Currency)
	}
	if ev.RevenueAmount != nil {
		t.Errorf("RevenueAmount = %v, want nil", ev.RevenueAmount)
	}
	if !ev.UsageDate.Equal(event.Today().Time) {
		t.Errorf("UsageDate = %s, want today", ev.UsageDate)
	}
	if err := ev.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestSpotifyNormalizeInvalidIsPermanent(t *testing.T) {
	n := &SpotifyNormalizer{}

	_, err := n.Normalize(map[string]any{
		"track_name": "Free Track",
		"earnings":   -0.5,
	})
	if err == nil {
		t.Fatal("expected validation failure for negative revenue")
	}
	if !event.IsPermanent(err) {
		t.Errorf("Normalize error = %v, want permanent so the event is not retried", err)
	}
}

func TestAppleMusicNormalize(t *testing.T) {
	n := &AppleMusicNormalizer{}

	raw := map[string]any{
		"vendor_identifier":       "ap-9",
		"song_name":               "Blinding Lights",
		"artist_name":             "The Weeknd",
		"container_name":          "After Hours",
		"isrc":                    "USUG12000001",
		"play_count":              float64(37),
		"storefront":              "GBR",
		"begin_date":              "2026-02-01",
		"end_date":                "2026-02-28",
		"royalty_amount":          "0.31",
		"royalty_currency":        "GBP",
		"product_type_identifier": "1-Album Purchase",
	}

	ev, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if ev.Source != "apple_music" {
		t.Errorf("Source = %q", ev.Source)
	}
	if ev.UsageType != event.UsageTypeDownload {
		t.Errorf("UsageType = %q, want download for purchase product type", ev.UsageType)
	}
	if ev.UsageDate.String() != "2026-02-01" {
		t.Errorf("UsageDate = %s, want begin_date", ev.UsageDate)
	}
	if ev.ReportingPeriod != "2026_02" {
		t.Errorf("ReportingPeriod = %q, want 2026_02", ev.ReportingPeriod)
	}
	if ev.Currency != "GBP" {
		t.Errorf("Currency = %q, want GBP", ev.Currency)
	}
	if ev.RevenueAmount == nil || *ev.RevenueAmount != 0.31 {
		t.Errorf("RevenueAmount = %v, want 0.31", ev.RevenueAmount)
	}
	if ev.Territory != "GBR" {
		t.Errorf("Territory = %q", ev.Territory)
	}
}

func TestAppleMusicStreamDefault(t *testing.T) {
	n := &AppleMusicNormalizer{}

	ev, err := n.Normalize(map[string]any{
		"song_name":               "Song",
		"product_type_identifier": "Streaming Subscription",
	})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if ev.UsageType != event.UsageTypeStream {
		t.Errorf("UsageType = %q, want stream", ev.UsageType)
	}
}

func TestGenericNormalize(t *testing.T) {
	n := &GenericNormalizer{}

	raw := map[string]any{
		"source":     "radio",
		"id":         "tx-1",
		"title":      "Bohemian Rhapsody",
		"artist":     "Queen",
		"usage_type": "radio",
		"plays":      float64(3),
		"region":     "DE",
		"date":       "2026-04-02",
		"currency":   "EUR",
		"revenue":    "2.10",
	}

	ev, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if ev.Source != "radio" {
		t.Errorf("Source = %q, want payload source override", ev.Source)
	}
	if ev.SourceEventID != "tx-1" {
		t.Errorf("SourceEventID = %q", ev.SourceEventID)
	}
	if ev.UsageType != event.UsageTypeRadioPlay {
		t.Errorf("UsageType = %q, want radio_play", ev.UsageType)
	}
	if ev.PlayCount != 3 {
		t.Errorf("PlayCount = %d", ev.PlayCount)
	}
	if ev.Territory != "DE" {
		t.Errorf("Territory = %q", ev.Territory)
	}
	if ev.Currency != "EUR" {
		t.Errorf("Currency = %q", ev.Currency)
	}
	if ev.RevenueAmount == nil || *ev.RevenueAmount != 2.10 {
		t.Errorf("RevenueAmount = %v", ev.RevenueAmount)
	}
}

func TestGenericSourceDefaults(t *testing.T) {
	n := &GenericNormalizer{}

	ev, err := n.Normalize(map[string]any{"title": "X"})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if ev.Source != "generic" {
		t.Errorf("Source = %q, want generic", ev.Source)
	}
	if ev.UsageType != event.UsageTypeStream {
		t.Errorf("UsageType = %q, want stream default", ev.UsageType)
	}
}

func TestForSource(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"spotify", "spotify"},
		{"apple_music", "apple_music"},
		{"radio", "generic"},
		{"generic", "generic"},
		{"tidal", "generic"},
		{"", "generic"},
	}
	for _, tt := range tests {
		if got := ForSource(tt.source).Source(); got != tt.want {
			t.Errorf("ForSource(%q).Source() = %q, want %q", tt.source, got, tt.want)
		}
	}
}

func TestNormalizeBatch(t *testing.T) {
	n := &SpotifyNormalizer{}

	raws := []map[string]any{
		{"track_name": "A", "streams": float64(1)},
		{"track_name": "B", "streams": float64(2)},
	}
	events, err := NormalizeBatch(n, raws)
	if err != nil {
		t.Fatalf("NormalizeBatch: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].EventID == events[1].EventID {
		t.Error("expected distinct event ids")
	}
}
