package events

import (
	"context"
	"testing"
	"time"

	"campaign-scribe-service/internal/models"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
		{"nil config", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerPartial != nil {
				t.Error("expected nil partial writer when disabled")
			}
			if p.writerFinal != nil {
				t.Error("expected nil final writer when disabled")
			}
		})
	}
}

func TestNew_ConfigValues(t *testing.T) {
	cfg := &Config{
		Enabled:      false,
		Brokers:      []string{"localhost:9092"},
		TopicPartial: "test.partial",
		TopicFinal:   "test.final",
		Principal:    "test-principal",
	}

	p := New(cfg)

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.topicPartial != "test.partial" {
		t.Errorf("expected topic partial 'test.partial', got %s", p.topicPartial)
	}
	if p.topicFinal != "test.final" {
		t.Errorf("expected topic final 'test.final', got %s", p.topicFinal)
	}
}

func TestPublisher_PublishPartial_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})

	ev := SegmentEvent{
		EventType: EventSegmentPartial,
		SessionID: "sess-1",
		Timestamp: time.Now().UnixMilli(),
		Segment:   models.TranscriptionSegment{ID: "seg-1", Text: "test partial", Interim: true},
	}
	if err := p.PublishPartial(context.Background(), "seg-1", ev); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_PublishFinal_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})

	ev := SegmentEvent{
		EventType: EventSegmentFinal,
		SessionID: "sess-1",
		Timestamp: time.Now().UnixMilli(),
		Segment:   models.TranscriptionSegment{ID: "seg-1", Text: "test final"},
	}
	if err := p.PublishFinal(context.Background(), "seg-1", ev); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	p := New(&Config{Enabled: false})

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
}

func TestPublisher_Close_NilWriters(t *testing.T) {
	p := &Publisher{}

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing publisher with nil writers, got %v", err)
	}
}

func TestObserver_OnSegment_Disabled(t *testing.T) {
	o := NewObserver(New(&Config{Enabled: false}))

	// Both paths must be safe in log-only mode.
	o.OnSegment(models.TranscriptionSegment{ID: "seg-1", Text: "interim", Interim: true})
	o.OnSegment(models.TranscriptionSegment{ID: "seg-2", Text: "final"})
	o.OnStateChange(models.StateActive)
}

type stubInfoSource struct{ sessionID, campaignID string }

func (s stubInfoSource) SessionInfo() (string, string) { return s.sessionID, s.campaignID }

func TestObserver_SegmentEventCarriesSessionIDs(t *testing.T) {
	o := NewObserver(New(&Config{Enabled: false}))
	o.BindSource(stubInfoSource{sessionID: "sess-1", campaignID: "camp-1"})

	ev := o.segmentEvent(models.TranscriptionSegment{ID: "seg-1", Text: "final"})
	if ev.SessionID != "sess-1" || ev.CampaignID != "camp-1" {
		t.Errorf("expected session ids on the event, got %q/%q", ev.SessionID, ev.CampaignID)
	}
	if ev.EventType != EventSegmentFinal {
		t.Errorf("expected %s, got %s", EventSegmentFinal, ev.EventType)
	}

	ev = o.segmentEvent(models.TranscriptionSegment{ID: "seg-2", Interim: true})
	if ev.EventType != EventSegmentPartial {
		t.Errorf("expected %s, got %s", EventSegmentPartial, ev.EventType)
	}
}

func TestObserver_SegmentEventWithoutSource(t *testing.T) {
	o := NewObserver(New(&Config{Enabled: false}))

	ev := o.segmentEvent(models.TranscriptionSegment{ID: "seg-1"})
	if ev.SessionID != "" || ev.CampaignID != "" {
		t.Errorf("expected empty ids without a bound source, got %q/%q", ev.SessionID, ev.CampaignID)
	}
}
