// Package transport provides the optional low-latency realtime channel.
// It mirrors outgoing audio and receives transcript segments back,
// independent of the speech-provider call itself.
//
// The transport is a thin shim: any connection failure is non-fatal to
// the owning session controller, which downgrades to batch-only
// operation. Reconnection policy lives in the recovery coordinator,
// not here.
package transport

import (
	"context"
	"fmt"

	"campaign-scribe-service/internal/models"
)

// ConnectionError wraps any transport connection failure so callers can
// distinguish it from provider errors.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("realtime transport: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SessionConfig describes the realtime session announced to the remote
// end before audio flows.
type SessionConfig struct {
	SessionID    string `json:"sessionId"`
	LanguageCode string `json:"languageCode,omitempty"`
	SampleRateHz int    `json:"sampleRateHz,omitempty"`
	Channels     int    `json:"channels,omitempty"`
	BitDepth     int    `json:"bitDepth,omitempty"`
}

// StateFunc observes connection state changes.
type StateFunc func(models.ConnectionState)

// SegmentFunc receives transcript segments delivered over the channel.
type SegmentFunc func(models.TranscriptionSegment)

// Transport is the bidirectional realtime channel contract.
type Transport interface {
	// Connect establishes the channel.
	Connect(ctx context.Context) error

	// StartSession announces a session before audio is mirrored.
	StartSession(ctx context.Context, cfg SessionConfig) error

	// SendAudioChunk mirrors one audio chunk out.
	SendAudioChunk(data []byte, timestampMs int64) error

	// EndSession announces the end of the current session.
	EndSession() error

	// Disconnect tears the channel down. Idempotent.
	Disconnect() error

	// IsConnected reports whether the channel is usable.
	IsConnected() bool
}

// Noop is the Transport used when realtime streaming is disabled. All
// sends succeed silently and the channel never reports connected.
type Noop struct{}

func (Noop) Connect(ctx context.Context) error                         { return nil }
func (Noop) StartSession(ctx context.Context, cfg SessionConfig) error { return nil }
func (Noop) SendAudioChunk(data []byte, timestampMs int64) error       { return nil }
func (Noop) EndSession() error                                         { return nil }
func (Noop) Disconnect() error                                         { return nil }
func (Noop) IsConnected() bool                                         { return false }
