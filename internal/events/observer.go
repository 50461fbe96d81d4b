package events

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"campaign-scribe-service/internal/models"
	"campaign-scribe-service/internal/session"
)

// Event types on the wire.
const (
	EventSegmentPartial = "session.transcript.partial"
	EventSegmentFinal   = "session.transcript.final"
	EventStateChange    = "session.state"
)

// SessionInfoSource reports the ids of the session currently producing
// segments, used to tag outgoing events.
type SessionInfoSource interface {
	SessionInfo() (sessionID, campaignID string)
}

// Observer adapts the publisher to the session observer interface so
// every accepted segment is published as it arrives. Partition key is
// the segment id, which is also the downstream dedupe key.
type Observer struct {
	session.NopObserver
	publisher *Publisher
	source    SessionInfoSource
}

// NewObserver creates a publishing observer.
func NewObserver(publisher *Publisher) *Observer {
	return &Observer{publisher: publisher}
}

// BindSource attaches the session-info source after construction. The
// observer is built before the controller it observes, so the source
// arrives late.
func (o *Observer) BindSource(src SessionInfoSource) {
	o.source = src
}

// segmentEvent builds the wire payload for one segment.
func (o *Observer) segmentEvent(seg models.TranscriptionSegment) SegmentEvent {
	ev := SegmentEvent{
		Timestamp: time.Now().UnixMilli(),
		Segment:   seg,
	}
	if o.source != nil {
		ev.SessionID, ev.CampaignID = o.source.SessionInfo()
	}
	if seg.Interim {
		ev.EventType = EventSegmentPartial
	} else {
		ev.EventType = EventSegmentFinal
	}
	return ev
}

// OnSegment publishes the segment to the interim or final topic.
func (o *Observer) OnSegment(seg models.TranscriptionSegment) {
	ev := o.segmentEvent(seg)

	ctx := context.Background()
	var err error
	if seg.Interim {
		err = o.publisher.PublishPartial(ctx, seg.ID, ev)
	} else {
		err = o.publisher.PublishFinal(ctx, seg.ID, ev)
	}
	if err != nil {
		log.Warn().Err(err).Str("segmentId", seg.ID).Msg("Segment event publish failed")
	}
}

// OnStateChange logs session state transitions for event-stream
// consumers running in log-only mode.
func (o *Observer) OnStateChange(state models.SessionState) {
	log.Debug().Str("event", EventStateChange).Str("state", state.String()).Msg("Session state changed")
}
