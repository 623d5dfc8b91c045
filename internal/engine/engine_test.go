// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/cadenza/internal/bus"
	"github.com/tomtom215/cadenza/internal/event"
	"github.com/tomtom215/cadenza/internal/matcher"
	"github.com/tomtom215/cadenza/internal/store"
)

// capturePublisher records published messages per topic and can be
// scripted to fail on specific topics.
type capturePublisher struct {
	mu       sync.Mutex
	messages map[string][]*message.Message
	failOn   map[string]error
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{
		messages: make(map[string][]*message.Message),
		failOn:   make(map[string]error),
	}
}

func (p *capturePublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failOn[topic]; err != nil {
		return err
	}
	p.messages[topic] = append(p.messages[topic], messages...)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) topicCount(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages[topic])
}

func (p *capturePublisher) last(topic string) *message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	msgs := p.messages[topic]
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

// fakeStore records persistence calls.
type fakeStore struct {
	persistErr error
	statusErr  error

	persisted []uuid.UUID
	statuses  map[uuid.UUID]event.ProcessingStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{statuses: make(map[uuid.UUID]event.ProcessingStatus)}
}

func (s *fakeStore) PersistMatch(ctx context.Context, usageEventID uuid.UUID, match *event.MatchResult, matchedAt time.Time) error {
	if s.persistErr != nil {
		return s.persistErr
	}
	s.persisted = append(s.persisted, usageEventID)
	s.statuses[usageEventID] = event.StatusMatched
	return nil
}

func (s *fakeStore) MarkStatus(ctx context.Context, usageEventID uuid.UUID, status event.ProcessingStatus, processedAt time.Time) error {
	if s.statusErr != nil {
		return s.statusErr
	}
	s.statuses[usageEventID] = status
	return nil
}

// fakeResolver returns a scripted outcome.
type fakeResolver struct {
	outcome *matcher.Outcome
}

func (r *fakeResolver) Resolve(ctx context.Context, ev *event.NormalizedUsageEvent) *matcher.Outcome {
	return r.outcome
}

func fastRetry() store.RetryConfig {
	return store.RetryConfig{MaxRetries: 0, InitialInterval: 1, Multiplier: 1}
}

func normalizedPayload(t *testing.T) ([]byte, *event.NormalizedUsageEvent) {
	t.Helper()
	revenue := 0.0042
	ev := &event.NormalizedUsageEvent{
		EventID:        uuid.New(),
		Source:         "spotify",
		ISRC:           "GBAHS1700024",
		ReportedTitle:  "Shape of You",
		ReportedArtist: "Ed Sheeran",
		UsageType:      event.UsageTypeStream,
		PlayCount:      1500,
		RevenueAmount:  &revenue,
		Currency:       "USD",
		Territory:      "US",
		UsageDate:      event.NewDate(2026, time.January, 15),
		IngestedAt:     time.Now().UTC(),
	}
	data, err := event.SerializeEvent(ev)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	return data, ev
}

func TestHandleMatched(t *testing.T) {
	payload, ev := normalizedPayload(t)
	workID := uuid.New()
	recordingID := uuid.New()

	st := newFakeStore()
	pub := newCapturePublisher()
	resolver := &fakeResolver{outcome: &matcher.Outcome{
		Match: &event.MatchResult{
			WorkID:      workID,
			RecordingID: &recordingID,
			Confidence:  1.0,
			Method:      event.MethodISRCExact,
		},
	}}

	eng := New(st, resolver, bus.NewPublisherFromWatermill(pub, nil), fastRetry())
	if err := eng.Handle(context.Background(), payload); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(st.persisted) != 1 || st.persisted[0] != ev.EventID {
		t.Fatalf("persisted = %v, want %s", st.persisted, ev.EventID)
	}
	if pub.topicCount(bus.TopicMatched) != 1 {
		t.Fatalf("matched messages = %d, want 1", pub.topicCount(bus.TopicMatched))
	}

	msg := pub.last(bus.TopicMatched)
	if got := msg.Metadata.Get(bus.PartitionKeyMetadata); got != ev.EventID.String() {
		t.Errorf("partition key = %q, want %s", got, ev.EventID)
	}

	var matched event.MatchedUsageEvent
	if err := json.Unmarshal(msg.Payload, &matched); err != nil {
		t.Fatalf("matched payload: %v", err)
	}
	if matched.UsageEventID != ev.EventID || matched.WorkID != workID {
		t.Errorf("matched = %+v", matched)
	}
	if matched.MatchMethod != event.MethodISRCExact || matched.MatchConfidence != 1.0 {
		t.Errorf("matched = %+v", matched)
	}
	if matched.RecordingID == nil || *matched.RecordingID != recordingID {
		t.Errorf("RecordingID = %v, want %s", matched.RecordingID, recordingID)
	}
	if matched.PlayCount != 1500 || matched.RevenueAmount == nil {
		t.Errorf("usage fields not carried: %+v", matched)
	}
	if pub.topicCount(bus.TopicUnmatched) != 0 || pub.topicCount(bus.TopicDLQMatching) != 0 {
		t.Error("unexpected messages on other topics")
	}
}

func TestHandleUnmatched(t *testing.T) {
	payload, ev := normalizedPayload(t)
	suggestion := event.MatchResult{
		WorkID:     uuid.New(),
		Confidence: 0.75,
		Method:     event.MethodFuzzyTitle,
	}

	st := newFakeStore()
	pub := newCapturePublisher()
	resolver := &fakeResolver{outcome: &matcher.Outcome{
		Suggestions: []event.MatchResult{suggestion},
	}}

	eng := New(st, resolver, bus.NewPublisherFromWatermill(pub, nil), fastRetry())
	if err := eng.Handle(context.Background(), payload); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if st.statuses[ev.EventID] != event.StatusUnmatched {
		t.Errorf("status = %s, want unmatched", st.statuses[ev.EventID])
	}
	if pub.topicCount(bus.TopicUnmatched) != 1 {
		t.Fatalf("unmatched messages = %d, want 1", pub.topicCount(bus.TopicUnmatched))
	}

	var unmatched event.UnmatchedUsageEvent
	if err := json.Unmarshal(pub.last(bus.TopicUnmatched).Payload, &unmatched); err != nil {
		t.Fatalf("unmatched payload: %v", err)
	}
	if unmatched.UsageEventID != ev.EventID {
		t.Errorf("UsageEventID = %s", unmatched.UsageEventID)
	}
	if unmatched.Reason != event.ReasonNoConfidentMatch {
		t.Errorf("Reason = %q", unmatched.Reason)
	}
	if len(unmatched.SuggestedMatches) != 1 || unmatched.SuggestedMatches[0].WorkID != suggestion.WorkID {
		t.Errorf("SuggestedMatches = %+v", unmatched.SuggestedMatches)
	}
	if unmatched.ReportedTitle != ev.ReportedTitle || unmatched.ISRC != ev.ISRC {
		t.Errorf("reported fields not carried: %+v", unmatched)
	}
}

func TestHandleUnmatchedEmptySuggestions(t *testing.T) {
	payload, _ := normalizedPayload(t)

	st := newFakeStore()
	pub := newCapturePublisher()
	eng := New(st, &fakeResolver{outcome: &matcher.Outcome{}}, bus.NewPublisherFromWatermill(pub, nil), fastRetry())

	if err := eng.Handle(context.Background(), payload); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	var unmatched event.UnmatchedUsageEvent
	if err := json.Unmarshal(pub.last(bus.TopicUnmatched).Payload, &unmatched); err != nil {
		t.Fatalf("unmatched payload: %v", err)
	}
	if unmatched.SuggestedMatches == nil {
		t.Error("SuggestedMatches should serialize as an empty array, not null")
	}
	if len(unmatched.SuggestedMatches) != 0 {
		t.Errorf("SuggestedMatches = %+v", unmatched.SuggestedMatches)
	}
}

func TestHandlePublishFailureAfterCommitRedelivers(t *testing.T) {
	payload, ev := normalizedPayload(t)

	st := newFakeStore()
	pub := newCapturePublisher()
	pub.failOn[bus.TopicMatched] = errors.New("broker gone")
	resolver := &fakeResolver{outcome: &matcher.Outcome{
		Match: &event.MatchResult{WorkID: uuid.New(), Confidence: 1.0, Method: event.MethodISRCExact},
	}}

	eng := New(st, resolver, bus.NewPublisherFromWatermill(pub, nil), fastRetry())

	// Shutdown mid-publish-retry: the match is committed but never made
	// it to the topic.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := eng.Handle(ctx, payload)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Handle = %v, want context.Canceled so the message is redelivered", err)
	}
	if len(st.persisted) != 1 {
		t.Fatal("match should be committed before the publish attempt")
	}
	if st.statuses[ev.EventID] != event.StatusMatched {
		t.Errorf("status = %s, want matched kept (terminal status must not be rewritten)", st.statuses[ev.EventID])
	}
	if pub.topicCount(bus.TopicDLQMatching) != 0 {
		t.Error("committed outcome was dead-lettered on a publish failure")
	}
}

func TestHandleUnmatchedPublishFailureRedelivers(t *testing.T) {
	payload, ev := normalizedPayload(t)

	st := newFakeStore()
	pub := newCapturePublisher()
	pub.failOn[bus.TopicUnmatched] = errors.New("broker gone")

	eng := New(st, &fakeResolver{outcome: &matcher.Outcome{}}, bus.NewPublisherFromWatermill(pub, nil), fastRetry())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := eng.Handle(ctx, payload)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Handle = %v, want context.Canceled", err)
	}
	if st.statuses[ev.EventID] != event.StatusUnmatched {
		t.Errorf("status = %s, want unmatched kept", st.statuses[ev.EventID])
	}
	if pub.topicCount(bus.TopicDLQMatching) != 0 {
		t.Error("committed outcome was dead-lettered on a publish failure")
	}
}

func TestHandleMalformedAcked(t *testing.T) {
	st := newFakeStore()
	pub := newCapturePublisher()
	eng := New(st, &fakeResolver{outcome: &matcher.Outcome{}}, bus.NewPublisherFromWatermill(pub, nil), fastRetry())

	if err := eng.Handle(context.Background(), []byte("{not json")); err != nil {
		t.Fatalf("Handle = %v, want nil (ack and skip)", err)
	}
	if len(st.persisted) != 0 || pub.topicCount(bus.TopicUnmatched) != 0 {
		t.Error("malformed payload reached downstream")
	}
}

func TestHandlePersistFailureDeadLetters(t *testing.T) {
	payload, ev := normalizedPayload(t)

	st := newFakeStore()
	st.persistErr = errors.New("db down")
	pub := newCapturePublisher()
	resolver := &fakeResolver{outcome: &matcher.Outcome{
		Match: &event.MatchResult{WorkID: uuid.New(), Confidence: 1.0, Method: event.MethodISRCExact},
	}}

	eng := New(st, resolver, bus.NewPublisherFromWatermill(pub, nil), fastRetry())
	if err := eng.Handle(context.Background(), payload); err != nil {
		t.Fatalf("Handle = %v, want nil (DLQ and ack)", err)
	}

	if st.statuses[ev.EventID] != event.StatusError {
		t.Errorf("status = %s, want error", st.statuses[ev.EventID])
	}
	if pub.topicCount(bus.TopicDLQMatching) != 1 {
		t.Fatalf("DLQ messages = %d, want 1", pub.topicCount(bus.TopicDLQMatching))
	}

	var failure event.MatchingFailure
	if err := json.Unmarshal(pub.last(bus.TopicDLQMatching).Payload, &failure); err != nil {
		t.Fatalf("DLQ payload: %v", err)
	}
	if failure.Error == "" {
		t.Error("DLQ record missing error text")
	}
	replayed, err := event.DeserializeEvent(failure.EventData)
	if err != nil {
		t.Fatalf("DLQ event data: %v", err)
	}
	if replayed.EventID != ev.EventID {
		t.Errorf("DLQ carries wrong event: %s", replayed.EventID)
	}
	if pub.topicCount(bus.TopicMatched) != 0 {
		t.Error("failed match was published")
	}
}
