package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"campaign-scribe-service/internal/models"
)

// Transcript is one stored transcript record.
type Transcript struct {
	ID        string
	Meta      RecordMetadata
	Status    string
	Segments  []models.TranscriptionSegment
	Finalized bool
	CreatedAt time.Time
}

// MemoryStore is a thread-safe in-memory Store. Appends are idempotent
// by segment id and preserve insertion order.
type MemoryStore struct {
	mu          sync.Mutex
	transcripts map[string]*Transcript
	seen        map[string]map[string]bool // transcriptID -> segmentID set
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transcripts: make(map[string]*Transcript),
		seen:        make(map[string]map[string]bool),
	}
}

// CreateTranscriptionRecord creates a new transcript record.
func (s *MemoryStore) CreateTranscriptionRecord(ctx context.Context, meta RecordMetadata) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.transcripts[id] = &Transcript{
		ID:        id,
		Meta:      meta,
		Status:    StatusRecording,
		CreatedAt: time.Now(),
	}
	s.seen[id] = make(map[string]bool)

	log.Debug().
		Str("transcriptId", id).
		Str("sessionId", meta.SessionID).
		Str("source", meta.Source).
		Msg("Transcript record created")
	return id, nil
}

// AppendSegments appends segments, skipping any segment id already stored.
func (s *MemoryStore) AppendSegments(ctx context.Context, transcriptID string, segments []models.TranscriptionSegment, isFinal bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transcripts[transcriptID]
	if !ok {
		return fmt.Errorf("unknown transcript: %s", transcriptID)
	}

	for _, seg := range segments {
		if s.seen[transcriptID][seg.ID] {
			continue
		}
		s.seen[transcriptID][seg.ID] = true
		t.Segments = append(t.Segments, seg)
	}
	if isFinal {
		t.Finalized = true
	}
	return nil
}

// UpdateStatus updates the transcript record status.
func (s *MemoryStore) UpdateStatus(ctx context.Context, transcriptID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transcripts[transcriptID]
	if !ok {
		return fmt.Errorf("unknown transcript: %s", transcriptID)
	}
	t.Status = status
	return nil
}

// Get returns a copy of the stored transcript, or false if absent.
func (s *MemoryStore) Get(transcriptID string) (Transcript, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transcripts[transcriptID]
	if !ok {
		return Transcript{}, false
	}
	cp := *t
	cp.Segments = append([]models.TranscriptionSegment(nil), t.Segments...)
	return cp, true
}
