// Package provider defines the speech-provider contract and the gateway
// that performs provider selection and fallback.
package provider

import (
	"context"

	"campaign-scribe-service/internal/models"
)

// StreamConfig carries the audio and recognition settings for a
// provider call.
type StreamConfig struct {
	LanguageCode   string
	SampleRateHz   int
	Channels       int
	BitDepth       int
	Diarization    bool
	MaxSpeakers    int
	InterimResults bool
}

// ResultFunc receives results from a provider stream. Implementations
// must not block: providers invoke it from their receive loops.
type ResultFunc func(models.ProviderResult)

// Stream is an open streaming recognition session.
type Stream interface {
	// Send forwards audio bytes to the provider.
	Send(ctx context.Context, audio []byte) error

	// Close ends the session and releases resources. Idempotent.
	Close() error
}

// Provider is a speech-recognition backend supporting streaming and
// batch transcription.
type Provider interface {
	// Name returns the provider name (e.g., "google", "mock").
	Name() string

	// StartStream begins a streaming recognition session. Results,
	// including errors after a successful start, are delivered through
	// onResult.
	StartStream(ctx context.Context, cfg StreamConfig, onResult ResultFunc) (Stream, error)

	// TranscribeFile transcribes a complete audio file in one shot.
	TranscribeFile(ctx context.Context, audio []byte, cfg StreamConfig) ([]models.TranscriptionSegment, error)
}
