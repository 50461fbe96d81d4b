package session

import (
	"campaign-scribe-service/internal/models"
)

// Observer receives session events. Implementations must be fast or
// hand off internally: fan-out is synchronous, in registration order.
type Observer interface {
	// OnStateChange fires on every session state transition.
	OnStateChange(state models.SessionState)

	// OnSegment fires for every accepted segment, interim and final,
	// before persistence.
	OnSegment(seg models.TranscriptionSegment)

	// OnError fires for non-fatal errors surfaced during an active
	// session and for terminal recovery failures.
	OnError(err error)

	// OnConnectionStateChange fires when the realtime transport
	// connection state changes.
	OnConnectionStateChange(state models.ConnectionState)
}

// NopObserver implements Observer with no-ops. Embed it to implement
// only the callbacks you care about.
type NopObserver struct{}

func (NopObserver) OnStateChange(models.SessionState)              {}
func (NopObserver) OnSegment(models.TranscriptionSegment)          {}
func (NopObserver) OnError(error)                                  {}
func (NopObserver) OnConnectionStateChange(models.ConnectionState) {}
