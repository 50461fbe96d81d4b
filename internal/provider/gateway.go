package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"campaign-scribe-service/internal/models"
	"campaign-scribe-service/internal/observability/metrics"
)

// Errors returned by the gateway.
var (
	// ErrProviderUnavailable means no configured provider is reachable.
	ErrProviderUnavailable = errors.New("no speech provider available")

	// ErrAllProvidersFailed means both primary and fallback failed
	// during batch transcription.
	ErrAllProvidersFailed = errors.New("all speech providers failed")
)

// Gateway wraps a primary and an optional fallback provider behind one
// interface.
//
// File transcription tries the primary first and falls back on any
// failure. Streaming has no mid-stream fallback: reopening a stream
// mid-utterance would corrupt segment ordering, so a broken stream is
// reported to the result callback instead.
type Gateway struct {
	primary  Provider
	fallback Provider // may be nil
	metrics  *metrics.Metrics
}

// NewGateway creates a gateway. fallback may be nil.
func NewGateway(primary, fallback Provider) *Gateway {
	return &Gateway{
		primary:  primary,
		fallback: fallback,
		metrics:  metrics.DefaultMetrics,
	}
}

// PrimaryName returns the primary provider name.
func (g *Gateway) PrimaryName() string {
	if g.primary == nil {
		return ""
	}
	return g.primary.Name()
}

// StartStream opens a streaming session against the primary provider.
func (g *Gateway) StartStream(ctx context.Context, cfg StreamConfig, onResult ResultFunc) (Stream, error) {
	if g.primary == nil {
		return nil, ErrProviderUnavailable
	}
	stream, err := g.primary.StartStream(ctx, cfg, onResult)
	if err != nil {
		g.metrics.RecordProviderError(g.primary.Name())
		return nil, fmt.Errorf("start stream on %s: %w", g.primary.Name(), err)
	}
	return stream, nil
}

// TranscribeFile transcribes a complete file, trying the primary and
// then the fallback provider. If both fail the last error is wrapped in
// ErrAllProvidersFailed.
func (g *Gateway) TranscribeFile(ctx context.Context, audio []byte, cfg StreamConfig) ([]models.TranscriptionSegment, error) {
	if g.primary == nil {
		return nil, ErrProviderUnavailable
	}

	segments, err := g.primary.TranscribeFile(ctx, audio, cfg)
	if err == nil {
		return segments, nil
	}
	g.metrics.RecordProviderError(g.primary.Name())
	log.Warn().
		Err(err).
		Str("provider", g.primary.Name()).
		Msg("Primary provider failed for file transcription")

	if g.fallback == nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAllProvidersFailed, g.primary.Name(), err)
	}

	g.metrics.RecordFallback()
	segments, ferr := g.fallback.TranscribeFile(ctx, audio, cfg)
	if ferr == nil {
		log.Info().
			Str("provider", g.fallback.Name()).
			Int("segments", len(segments)).
			Msg("Fallback provider succeeded for file transcription")
		return segments, nil
	}
	g.metrics.RecordProviderError(g.fallback.Name())

	return nil, fmt.Errorf("%w: %s: %w", ErrAllProvidersFailed, g.fallback.Name(), ferr)
}
