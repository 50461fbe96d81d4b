// Package models defines the data structures shared across the
// transcription orchestration core.
package models

import (
	"fmt"
	"time"
)

// SessionState is the lifecycle state of a live recording session.
type SessionState int

const (
	// StateIdle - no session in progress.
	StateIdle SessionState = iota
	// StateStarting - transcript record and provider stream being set up.
	StateStarting
	// StateActive - audio is flowing to providers.
	StateActive
	// StatePaused - session alive, audio and segments buffered instead of forwarded.
	StatePaused
	// StateStopping - teardown and final flush in progress.
	StateStopping
	// StateError - startup failed; reachable from any non-idle state.
	StateError
)

// String returns the string representation of the state.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateActive:
		return "ACTIVE"
	case StatePaused:
		return "PAUSED"
	case StateStopping:
		return "STOPPING"
	case StateError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// ConnectionState is the realtime transport connection status surfaced
// to observers.
type ConnectionState int

const (
	ConnDisconnected ConnectionState = iota
	ConnConnecting
	ConnConnected
	ConnReconnecting
)

// String returns the string representation of the connection state.
func (c ConnectionState) String() string {
	switch c {
	case ConnDisconnected:
		return "disconnected"
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	case ConnReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// Session identifies one live recording effort. The campaign and world
// identifiers are opaque foreign keys; the core never interprets them.
// Mutated only by the session controller.
type Session struct {
	ID           string
	CampaignID   string
	WorldID      string
	State        SessionState
	TranscriptID string
	CreatedAt    time.Time
}

// AudioChunk is one timestamped slice of raw microphone audio.
type AudioChunk struct {
	Data        []byte
	TimestampMs int64
}
