package provider

import (
	"context"
	"errors"
	"testing"

	"campaign-scribe-service/internal/models"
)

type stubProvider struct {
	name       string
	streamErr  error
	fileErr    error
	segments   []models.TranscriptionSegment
	fileCalls  int
	streamCall int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) StartStream(ctx context.Context, cfg StreamConfig, onResult ResultFunc) (Stream, error) {
	s.streamCall++
	if s.streamErr != nil {
		return nil, s.streamErr
	}
	return &stubStream{}, nil
}

func (s *stubProvider) TranscribeFile(ctx context.Context, audio []byte, cfg StreamConfig) ([]models.TranscriptionSegment, error) {
	s.fileCalls++
	if s.fileErr != nil {
		return nil, s.fileErr
	}
	return s.segments, nil
}

type stubStream struct{}

func (s *stubStream) Send(ctx context.Context, audio []byte) error { return nil }
func (s *stubStream) Close() error                                 { return nil }

func TestGateway_TranscribeFile_PrimarySucceeds(t *testing.T) {
	primary := &stubProvider{
		name:     "primary",
		segments: []models.TranscriptionSegment{{ID: "seg-1", Text: "roll initiative"}},
	}
	fallback := &stubProvider{name: "fallback"}
	gw := NewGateway(primary, fallback)

	got, err := gw.TranscribeFile(context.Background(), []byte{1, 2, 3}, StreamConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "seg-1" {
		t.Fatalf("unexpected segments %v", got)
	}
	if fallback.fileCalls != 0 {
		t.Errorf("fallback should not be consulted when primary succeeds, got %d calls", fallback.fileCalls)
	}
}

func TestGateway_TranscribeFile_FallsBack(t *testing.T) {
	primary := &stubProvider{name: "primary", fileErr: errors.New("quota exceeded")}
	fallback := &stubProvider{
		name:     "fallback",
		segments: []models.TranscriptionSegment{{ID: "seg-fb", Text: "the dragon lands"}},
	}
	gw := NewGateway(primary, fallback)

	got, err := gw.TranscribeFile(context.Background(), []byte{1}, StreamConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "seg-fb" {
		t.Fatalf("expected fallback segments, got %v", got)
	}
	if primary.fileCalls != 1 || fallback.fileCalls != 1 {
		t.Errorf("expected exactly one call each, got primary=%d fallback=%d", primary.fileCalls, fallback.fileCalls)
	}
}

func TestGateway_TranscribeFile_BothFail(t *testing.T) {
	primary := &stubProvider{name: "primary", fileErr: errors.New("quota exceeded")}
	fallback := &stubProvider{name: "fallback", fileErr: errors.New("model unavailable")}
	gw := NewGateway(primary, fallback)

	_, err := gw.TranscribeFile(context.Background(), []byte{1}, StreamConfig{})
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("expected ErrAllProvidersFailed, got %v", err)
	}
	if !errors.Is(err, fallback.fileErr) {
		t.Errorf("expected wrapped fallback error, got %v", err)
	}
}

func TestGateway_TranscribeFile_NoFallbackConfigured(t *testing.T) {
	primary := &stubProvider{name: "primary", fileErr: errors.New("boom")}
	gw := NewGateway(primary, nil)

	_, err := gw.TranscribeFile(context.Background(), []byte{1}, StreamConfig{})
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("expected ErrAllProvidersFailed, got %v", err)
	}
}

func TestGateway_StartStream_NoMidStreamFallback(t *testing.T) {
	primary := &stubProvider{name: "primary", streamErr: errors.New("stream refused")}
	fallback := &stubProvider{name: "fallback"}
	gw := NewGateway(primary, fallback)

	_, err := gw.StartStream(context.Background(), StreamConfig{}, func(models.ProviderResult) {})
	if err == nil {
		t.Fatal("expected error from failing primary stream")
	}
	if fallback.streamCall != 0 {
		t.Errorf("streaming must not fall back, fallback got %d calls", fallback.streamCall)
	}
}

func TestGateway_NoPrimary(t *testing.T) {
	gw := NewGateway(nil, nil)

	if _, err := gw.StartStream(context.Background(), StreamConfig{}, nil); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
	if _, err := gw.TranscribeFile(context.Background(), nil, StreamConfig{}); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
}
