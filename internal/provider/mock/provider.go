// Package mock provides a scripted speech provider for local runs and
// tests without cloud credentials. It simulates realistic behavior:
// progressive interim results while audio arrives, then exactly one
// final segment per utterance.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"campaign-scribe-service/internal/models"
	"campaign-scribe-service/internal/provider"
)

// Utterance is one scripted utterance with progressive transcripts.
type Utterance struct {
	Partials   []string
	Final      string
	Confidence float64
	Speaker    string
	StartSec   float64
	EndSec     float64
}

// DefaultUtterances provides sample table-talk for simulation.
var DefaultUtterances = []Utterance{
	{
		Partials:   []string{"I draw", "I draw my sword", "I draw my sword and"},
		Final:      "I draw my sword and charge the bandit captain",
		Confidence: 0.94,
		Speaker:    "speaker-1",
		StartSec:   0, EndSec: 3.2,
	},
	{
		Partials:   []string{"Roll", "Roll initiative"},
		Final:      "Roll initiative everyone",
		Confidence: 0.97,
		Speaker:    "speaker-2",
		StartSec:   3.2, EndSec: 5.0,
	},
	{
		Partials:   []string{"Wait", "Wait does the", "Wait does the innkeeper"},
		Final:      "Wait does the innkeeper know about the hidden cellar",
		Confidence: 0.88,
		Speaker:    "speaker-3",
		StartSec:   5.0, EndSec: 9.1,
	},
}

// Provider implements provider.Provider with scripted responses.
type Provider struct {
	name       string
	utterances []Utterance
	delay      time.Duration

	mu      sync.Mutex
	nextIdx int
}

// New creates a mock provider cycling through DefaultUtterances.
func New() *Provider {
	return &Provider{
		name:       "mock",
		utterances: DefaultUtterances,
		delay:      50 * time.Millisecond,
	}
}

// NewScripted creates a mock provider from explicit utterances with no
// artificial delay. Intended for tests.
func NewScripted(utterances []Utterance) *Provider {
	return &Provider{
		name:       "mock",
		utterances: utterances,
	}
}

// Name returns "mock".
func (p *Provider) Name() string { return p.name }

func (p *Provider) nextUtterance() Utterance {
	p.mu.Lock()
	defer p.mu.Unlock()
	u := p.utterances[p.nextIdx%len(p.utterances)]
	p.nextIdx++
	return u
}

// StartStream begins a scripted session. Each audio send advances the
// script: one interim per chunk, then the final segment.
func (p *Provider) StartStream(ctx context.Context, cfg provider.StreamConfig, onResult provider.ResultFunc) (provider.Stream, error) {
	return &stream{
		provider:  p,
		cfg:       cfg,
		onResult:  onResult,
		utterance: p.nextUtterance(),
		segmentID: uuid.NewString(),
	}, nil
}

// TranscribeFile returns one final segment per scripted utterance.
func (p *Provider) TranscribeFile(ctx context.Context, audio []byte, cfg provider.StreamConfig) ([]models.TranscriptionSegment, error) {
	segments := make([]models.TranscriptionSegment, 0, len(p.utterances))
	for _, u := range p.utterances {
		segments = append(segments, finalSegment(uuid.NewString(), u))
	}
	return segments, nil
}

type stream struct {
	provider *Provider
	cfg      provider.StreamConfig
	onResult provider.ResultFunc

	mu           sync.Mutex
	utterance    Utterance
	segmentID    string
	partialIndex int
	closed       bool
}

// Send simulates receiving audio: emits the next interim, or the final
// once all interims were delivered, then moves to the next utterance.
func (s *stream) Send(ctx context.Context, audio []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}

	var result models.ProviderResult
	if s.cfg.InterimResults && s.partialIndex < len(s.utterance.Partials) {
		text := s.utterance.Partials[s.partialIndex]
		s.partialIndex++
		result = models.InterimResult(models.TranscriptionSegment{
			ID:         s.segmentID,
			Text:       text,
			StartTime:  s.utterance.StartSec,
			EndTime:    s.utterance.EndSec,
			Confidence: s.utterance.Confidence,
			SpeakerID:  s.utterance.Speaker,
			Interim:    true,
		})
	} else {
		result = models.FinalResult(finalSegment(s.segmentID, s.utterance))
		s.utterance = s.provider.nextUtterance()
		s.segmentID = uuid.NewString()
		s.partialIndex = 0
	}
	delay := s.provider.delay
	onResult := s.onResult
	s.mu.Unlock()

	if delay > 0 {
		go func() {
			time.Sleep(delay)
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				onResult(result)
			}
		}()
	} else {
		onResult(result)
	}
	return nil
}

// Close ends the scripted session.
func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func finalSegment(id string, u Utterance) models.TranscriptionSegment {
	return models.TranscriptionSegment{
		ID:          id,
		Text:        u.Final,
		StartTime:   u.StartSec,
		EndTime:     u.EndSec,
		Confidence:  u.Confidence,
		SpeakerID:   u.Speaker,
		SpeakerTier: models.TierForConfidence(u.Confidence),
	}
}
