// Package store defines the transcript persistence contract the core
// depends on, plus an in-memory implementation.
//
// The durable store itself lives outside this service; the core only
// requires at-least-once append semantics that are idempotent per
// segment id.
package store

import (
	"context"

	"campaign-scribe-service/internal/models"
)

// Transcript record statuses.
const (
	StatusRecording = "recording"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RecordMetadata describes a new transcript record.
type RecordMetadata struct {
	SessionID  string
	CampaignID string
	WorldID    string
	Source     string // "live" or "file"
}

// Store is the transcript persistence contract.
//
// AppendSegments must be idempotent per segment id: resending an already
// persisted segment must not create a duplicate.
type Store interface {
	// CreateTranscriptionRecord creates a new transcript record and
	// returns its id.
	CreateTranscriptionRecord(ctx context.Context, meta RecordMetadata) (string, error)

	// AppendSegments appends segments to the transcript. isFinal marks
	// the closing write of a session.
	AppendSegments(ctx context.Context, transcriptID string, segments []models.TranscriptionSegment, isFinal bool) error

	// UpdateStatus updates the transcript record status.
	UpdateStatus(ctx context.Context, transcriptID, status string) error
}
