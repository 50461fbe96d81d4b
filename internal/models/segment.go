package models

// SpeakerTier buckets the diarization confidence for a segment's
// speaker attribution.
type SpeakerTier string

const (
	SpeakerTierHigh    SpeakerTier = "high"
	SpeakerTierMedium  SpeakerTier = "medium"
	SpeakerTierLow     SpeakerTier = "low"
	SpeakerTierUnknown SpeakerTier = "unknown"
)

// TierForConfidence derives the speaker tier from a confidence score.
func TierForConfidence(confidence float64) SpeakerTier {
	switch {
	case confidence >= 0.85:
		return SpeakerTierHigh
	case confidence >= 0.6:
		return SpeakerTierMedium
	case confidence > 0:
		return SpeakerTierLow
	default:
		return SpeakerTierUnknown
	}
}

// TranscriptionSegment is one immutable utterance unit. The ID is assigned
// at creation and doubles as the idempotency key for persistence.
// Invariant: StartTime <= EndTime. Interim segments are surfaced to
// observers only and are never persisted.
type TranscriptionSegment struct {
	ID          string      `json:"id"`
	StartTime   float64     `json:"startTime"` // seconds from session start
	EndTime     float64     `json:"endTime"`
	Text        string      `json:"text"`
	SpeakerID   string      `json:"speakerId,omitempty"`
	SpeakerName string      `json:"speakerName,omitempty"`
	Confidence  float64     `json:"confidence"`
	SpeakerTier SpeakerTier `json:"speakerTier,omitempty"`
	Interim     bool        `json:"interim,omitempty"`
	Entities    []string    `json:"entities,omitempty"`
}
