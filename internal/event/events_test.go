// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

package event

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

func validEvent() *NormalizedUsageEvent {
	return &NormalizedUsageEvent{
		EventID:        uuid.New(),
		Source:         "spotify",
		ISRC:           "GBAHS1700024",
		ReportedTitle:  "Shape of You",
		ReportedArtist: "Ed Sheeran",
		UsageType:      UsageTypeStream,
		PlayCount:      100,
		Currency:       "USD",
		Territory:      "US",
		UsageDate:      NewDate(2026, time.January, 15),
		IngestedAt:     time.Now().UTC(),
	}
}

func TestValidate(t *testing.T) {
	negative := -0.5

	tests := []struct {
		name    string
		mutate  func(*NormalizedUsageEvent)
		wantErr string
	}{
		{"valid", func(e *NormalizedUsageEvent) {}, ""},
		{"missing event id", func(e *NormalizedUsageEvent) { e.EventID = uuid.Nil }, "event_id"},
		{"missing source", func(e *NormalizedUsageEvent) { e.Source = "" }, "source"},
		{"bad usage type", func(e *NormalizedUsageEvent) { e.UsageType = "webcast" }, "usage_type"},
		{"zero play count", func(e *NormalizedUsageEvent) { e.PlayCount = 0 }, "play_count"},
		{"negative revenue", func(e *NormalizedUsageEvent) { e.RevenueAmount = &negative }, "revenue_amount"},
		{"missing currency", func(e *NormalizedUsageEvent) { e.Currency = "" }, "currency"},
		{"short isrc", func(e *NormalizedUsageEvent) { e.ISRC = "ABC123" }, "isrc"},
		{"empty isrc ok", func(e *NormalizedUsageEvent) { e.ISRC = "" }, ""},
		{"long territory", func(e *NormalizedUsageEvent) { e.Territory = "GLOBAL" }, "territory"},
		{"five multibyte territory ok", func(e *NormalizedUsageEvent) { e.Territory = "日本国内限" }, ""},
		{"six multibyte territory", func(e *NormalizedUsageEvent) { e.Territory = "日本国内限定" }, "territory"},
		{"zero usage date", func(e *NormalizedUsageEvent) { e.UsageDate = Date{} }, "usage_date"},
		{"wrong embedding dimension", func(e *NormalizedUsageEvent) { e.ContentEmbedding = make([]float32, 3) }, "content_embedding"},
		{"full embedding ok", func(e *NormalizedUsageEvent) { e.ContentEmbedding = make([]float32, EmbeddingDim) }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := validEvent()
			tt.mutate(ev)
			err := ev.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate: %v, want nil", err)
				}
				return
			}
			verr, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("Validate: %v, want *ValidationError on %s", err, tt.wantErr)
			}
			if verr.Field != tt.wantErr {
				t.Errorf("Field = %q, want %q", verr.Field, tt.wantErr)
			}
		})
	}
}

func TestSerializerRoundTrip(t *testing.T) {
	revenue := 0.0042
	ev := validEvent()
	ev.RevenueAmount = &revenue
	ev.ReportingPeriod = "2026_01"

	s := NewSerializer()
	data, err := s.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := s.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if got.EventID != ev.EventID {
		t.Errorf("EventID = %s, want %s", got.EventID, ev.EventID)
	}
	if got.ISRC != ev.ISRC || got.ReportedTitle != ev.ReportedTitle {
		t.Errorf("content fields changed: %q / %q", got.ISRC, got.ReportedTitle)
	}
	if !got.UsageDate.Equal(ev.UsageDate.Time) {
		t.Errorf("UsageDate = %s, want %s", got.UsageDate, ev.UsageDate)
	}
	if got.RevenueAmount == nil || *got.RevenueAmount != revenue {
		t.Errorf("RevenueAmount = %v, want %v", got.RevenueAmount, revenue)
	}
	if got.ReportingPeriod != "2026_01" {
		t.Errorf("ReportingPeriod = %q", got.ReportingPeriod)
	}
}

func TestSerializerRejectsInvalid(t *testing.T) {
	ev := validEvent()
	ev.PlayCount = 0

	if _, err := NewSerializer().Marshal(ev); err == nil {
		t.Fatal("Marshal accepted an invalid event")
	}
}

func TestSerializerUnmarshalMalformed(t *testing.T) {
	if _, err := NewSerializer().Unmarshal([]byte("{not json")); err == nil {
		t.Fatal("Unmarshal accepted malformed input")
	}
}

func TestDateJSON(t *testing.T) {
	d := NewDate(2026, time.March, 5)

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `"2026-03-05"` {
		t.Errorf("Marshal = %s, want \"2026-03-05\"", data)
	}

	var back Date
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !back.Equal(d.Time) {
		t.Errorf("round trip = %s, want %s", back, d)
	}

	var empty Date
	if err := json.Unmarshal([]byte(`""`), &empty); err != nil {
		t.Fatalf("Unmarshal empty: %v", err)
	}
	if !empty.IsZero() {
		t.Errorf("empty date = %s, want zero", empty)
	}
}

func TestDateReportingPeriod(t *testing.T) {
	if got := NewDate(2026, time.January, 15).ReportingPeriod(); got != "2026_01" {
		t.Errorf("ReportingPeriod = %q, want 2026_01", got)
	}
	if got := NewDate(2025, time.December, 31).ReportingPeriod(); got != "2025_12" {
		t.Errorf("ReportingPeriod = %q, want 2025_12", got)
	}
}

func TestUsageTypeValid(t *testing.T) {
	valid := []UsageType{
		UsageTypeStream, UsageTypeDownload, UsageTypeRadioPlay,
		UsageTypeTVBroadcast, UsageTypePublicPerformance,
		UsageTypeSync, UsageTypeMechanical,
	}
	for _, u := range valid {
		if !u.Valid() {
			t.Errorf("%q reported invalid", u)
		}
	}
	for _, u := range []UsageType{"", "webcast", "STREAM"} {
		if u.Valid() {
			t.Errorf("%q reported valid", u)
		}
	}
}

func TestProcessingStatusTerminal(t *testing.T) {
	terminal := map[ProcessingStatus]bool{
		StatusPending:    false,
		StatusProcessing: false,
		StatusMatched:    true,
		StatusUnmatched:  true,
		StatusDisputed:   false,
		StatusError:      true,
	}
	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestHasContent(t *testing.T) {
	ev := validEvent()
	if !ev.HasContent() {
		t.Error("event with title should have content")
	}

	ev.ReportedTitle = ""
	if !ev.HasContent() {
		t.Error("artist alone should count as content")
	}

	ev.ReportedArtist = ""
	if ev.HasContent() {
		t.Error("event without title or artist should not have content")
	}
}
