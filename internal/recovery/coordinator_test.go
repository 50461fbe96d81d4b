package recovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"campaign-scribe-service/internal/models"
)

// recordingSink captures sink calls for assertions.
type recordingSink struct {
	mu            sync.Mutex
	segments      []models.TranscriptionSegment
	audio         []models.AudioChunk
	reconnectErr  error
	reconnects    int
	failedCalls   int
	failedErr     error
	reconnectDone chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{reconnectDone: make(chan struct{}, 32)}
}

func (s *recordingSink) ReplaySegment(sessionID string, seg models.TranscriptionSegment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = append(s.segments, seg)
}

func (s *recordingSink) ReplayAudio(sessionID string, chunk models.AudioChunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, chunk)
}

func (s *recordingSink) Reconnect(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	s.reconnects++
	err := s.reconnectErr
	s.mu.Unlock()
	s.reconnectDone <- struct{}{}
	return err
}

func (s *recordingSink) RecoveryFailed(sessionID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedCalls++
	s.failedErr = err
}

func (s *recordingSink) snapshot() (reconnects, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects, s.failedCalls
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BaseDelay = time.Millisecond
	cfg.HeartbeatInterval = time.Hour // heartbeat driven manually in tests
	cfg.Timeout = 100 * time.Millisecond
	return cfg
}

func TestCoordinator_BufferAndDrainOnResume(t *testing.T) {
	sink := newRecordingSink()
	c := NewCoordinator(testConfig(), sink)
	defer c.Close()

	c.InitializeRecovery("sess-1", "tr-1")
	c.UpdateSessionState("sess-1", models.StatePaused)

	if !c.ShouldBuffer("sess-1") {
		t.Fatal("expected buffering while paused")
	}

	for i := 0; i < 3; i++ {
		c.QueueSegment("sess-1", models.TranscriptionSegment{ID: fmt.Sprintf("seg-%d", i)})
	}
	c.QueueAudioBuffer("sess-1", models.AudioChunk{TimestampMs: 10})
	c.QueueAudioBuffer("sess-1", models.AudioChunk{TimestampMs: 20})

	segs, audio := c.QueuedCounts("sess-1")
	if segs != 3 || audio != 2 {
		t.Fatalf("expected 3 segments and 2 audio queued, got %d/%d", segs, audio)
	}

	c.UpdateSessionState("sess-1", models.StateActive)

	if c.ShouldBuffer("sess-1") {
		t.Error("expected no buffering after resume")
	}
	segs, audio = c.QueuedCounts("sess-1")
	if segs != 0 || audio != 0 {
		t.Errorf("expected empty queues after drain, got %d/%d", segs, audio)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.segments) != 3 {
		t.Fatalf("expected 3 replayed segments, got %d", len(sink.segments))
	}
	for i, seg := range sink.segments {
		if seg.ID != fmt.Sprintf("seg-%d", i) {
			t.Errorf("replay order broken at %d: got %s", i, seg.ID)
		}
	}
	if len(sink.audio) != 2 || sink.audio[0].TimestampMs != 10 {
		t.Errorf("expected audio replayed in order, got %v", sink.audio)
	}
}

func TestCoordinator_QueueBoundEvictsOldest(t *testing.T) {
	sink := newRecordingSink()
	cfg := testConfig()
	cfg.SegmentQueueCap = 10
	c := NewCoordinator(cfg, sink)
	defer c.Close()

	c.InitializeRecovery("sess-1", "tr-1")
	c.UpdateSessionState("sess-1", models.StatePaused)

	for i := 0; i < cfg.SegmentQueueCap+5; i++ {
		c.QueueSegment("sess-1", models.TranscriptionSegment{ID: fmt.Sprintf("seg-%d", i)})
	}

	segs, _ := c.QueuedCounts("sess-1")
	if segs != cfg.SegmentQueueCap {
		t.Fatalf("expected queue bounded at %d, got %d", cfg.SegmentQueueCap, segs)
	}

	c.UpdateSessionState("sess-1", models.StateActive)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.segments) != cfg.SegmentQueueCap {
		t.Fatalf("expected %d replayed segments, got %d", cfg.SegmentQueueCap, len(sink.segments))
	}
	// The 5 oldest were evicted, so replay starts at seg-5.
	if sink.segments[0].ID != "seg-5" {
		t.Errorf("expected replay to start at seg-5, got %s", sink.segments[0].ID)
	}
	if last := sink.segments[len(sink.segments)-1].ID; last != "seg-14" {
		t.Errorf("expected replay to end at seg-14, got %s", last)
	}
}

func TestCoordinator_ReconnectSuccessResetsAttempts(t *testing.T) {
	sink := newRecordingSink()
	c := NewCoordinator(testConfig(), sink)
	defer c.Close()

	c.InitializeRecovery("sess-1", "tr-1")
	c.QueueSegment("sess-1", models.TranscriptionSegment{ID: "seg-buffered"})

	c.HandleConnectionLoss("sess-1")

	if !c.ShouldBuffer("sess-1") {
		t.Error("expected buffering while reconnecting")
	}

	select {
	case <-sink.reconnectDone:
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect attempt never ran")
	}
	// Drain runs right after Reconnect returns; give it a moment.
	deadline := time.Now().Add(time.Second)
	for {
		sink.mu.Lock()
		n := len(sink.segments)
		sink.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("buffered segment never replayed, got %d", n)
		}
		time.Sleep(time.Millisecond)
	}

	if c.ShouldBuffer("sess-1") {
		t.Error("expected buffering to stop after successful reconnect")
	}
	_, failed := sink.snapshot()
	if failed != 0 {
		t.Errorf("expected no terminal failure, got %d", failed)
	}
}

func TestCoordinator_ExhaustionFiresRecoveryFailedOnce(t *testing.T) {
	sink := newRecordingSink()
	sink.reconnectErr = errors.New("still down")
	cfg := testConfig()
	cfg.MaxAttempts = 3
	c := NewCoordinator(cfg, sink)
	defer c.Close()

	c.InitializeRecovery("sess-1", "tr-1")
	c.HandleConnectionLoss("sess-1")

	deadline := time.Now().Add(5 * time.Second)
	for {
		_, failed := sink.snapshot()
		if failed > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("RecoveryFailed never fired")
		}
		time.Sleep(time.Millisecond)
	}

	// Extra losses after the terminal failure must not re-fire it.
	c.HandleConnectionLoss("sess-1")
	c.HandleConnectionLoss("sess-1")
	time.Sleep(20 * time.Millisecond)

	reconnects, failed := sink.snapshot()
	if failed != 1 {
		t.Fatalf("expected RecoveryFailed exactly once, got %d", failed)
	}
	if reconnects != cfg.MaxAttempts {
		t.Errorf("expected %d reconnect attempts, got %d", cfg.MaxAttempts, reconnects)
	}
	sink.mu.Lock()
	err := sink.failedErr
	sink.mu.Unlock()
	if !errors.Is(err, ErrRecoveryExhausted) {
		t.Errorf("expected ErrRecoveryExhausted, got %v", err)
	}
}

func TestCoordinator_ExhaustionStopsBufferingAndDrains(t *testing.T) {
	sink := newRecordingSink()
	sink.reconnectErr = errors.New("still down")
	cfg := testConfig()
	cfg.MaxAttempts = 2
	c := NewCoordinator(cfg, sink)
	defer c.Close()

	c.InitializeRecovery("sess-1", "tr-1")
	c.QueueSegment("sess-1", models.TranscriptionSegment{ID: "seg-outage-1"})
	c.QueueSegment("sess-1", models.TranscriptionSegment{ID: "seg-outage-2"})
	c.QueueAudioBuffer("sess-1", models.AudioChunk{TimestampMs: 10})

	c.HandleConnectionLoss("sess-1")

	deadline := time.Now().Add(5 * time.Second)
	for {
		_, failed := sink.snapshot()
		if failed > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("RecoveryFailed never fired")
		}
		time.Sleep(time.Millisecond)
	}

	// The provider stream is still healthy: delivery must continue
	// without the realtime channel.
	if c.ShouldBuffer("sess-1") {
		t.Error("expected buffering to stop once recovery is exhausted")
	}

	sink.mu.Lock()
	segs := append([]models.TranscriptionSegment(nil), sink.segments...)
	audio := append([]models.AudioChunk(nil), sink.audio...)
	sink.mu.Unlock()
	if len(segs) != 2 || segs[0].ID != "seg-outage-1" || segs[1].ID != "seg-outage-2" {
		t.Errorf("expected outage segments replayed in order, got %v", segs)
	}
	if len(audio) != 1 || audio[0].TimestampMs != 10 {
		t.Errorf("expected outage audio replayed, got %v", audio)
	}

	qs, qa := c.QueuedCounts("sess-1")
	if qs != 0 || qa != 0 {
		t.Errorf("expected empty queues after terminal drain, got %d/%d", qs, qa)
	}
}

func TestCoordinator_AutoRecoverDisabled(t *testing.T) {
	sink := newRecordingSink()
	cfg := testConfig()
	cfg.AutoRecover = false
	c := NewCoordinator(cfg, sink)
	defer c.Close()

	c.InitializeRecovery("sess-1", "tr-1")
	c.HandleConnectionLoss("sess-1")
	time.Sleep(20 * time.Millisecond)

	reconnects, failed := sink.snapshot()
	if reconnects != 0 || failed != 0 {
		t.Errorf("expected no recovery activity when disabled, got reconnects=%d failed=%d", reconnects, failed)
	}
}

func TestCoordinator_HeartbeatDetectsStalledSession(t *testing.T) {
	sink := newRecordingSink()
	cfg := testConfig()
	c := NewCoordinator(cfg, sink)
	defer c.Close()

	c.InitializeRecovery("sess-stalled", "tr-1")
	c.InitializeRecovery("sess-live", "tr-2")
	c.Touch("sess-live")

	c.checkStalled(time.Now().Add(cfg.Timeout + time.Second))

	select {
	case <-sink.reconnectDone:
	case <-time.After(2 * time.Second):
		t.Fatal("stalled session never triggered a reconnect")
	}

	reconnects, _ := sink.snapshot()
	if reconnects != 1 {
		t.Errorf("expected exactly one reconnect for the stalled session, got %d", reconnects)
	}
}

func TestCoordinator_HeartbeatSkipsPausedSessions(t *testing.T) {
	sink := newRecordingSink()
	cfg := testConfig()
	c := NewCoordinator(cfg, sink)
	defer c.Close()

	c.InitializeRecovery("sess-1", "tr-1")
	c.UpdateSessionState("sess-1", models.StatePaused)

	c.checkStalled(time.Now().Add(cfg.Timeout + time.Minute))
	time.Sleep(20 * time.Millisecond)

	reconnects, _ := sink.snapshot()
	if reconnects != 0 {
		t.Errorf("paused session must not trigger recovery, got %d reconnects", reconnects)
	}
}

func TestCoordinator_CleanupRemovesSession(t *testing.T) {
	sink := newRecordingSink()
	c := NewCoordinator(testConfig(), sink)
	defer c.Close()

	c.InitializeRecovery("sess-1", "tr-1")
	c.QueueSegment("sess-1", models.TranscriptionSegment{ID: "seg-1"})
	c.CleanupRecovery("sess-1")

	if c.ShouldBuffer("sess-1") {
		t.Error("cleaned-up session must not buffer")
	}
	segs, audio := c.QueuedCounts("sess-1")
	if segs != 0 || audio != 0 {
		t.Errorf("expected zero counts for cleaned-up session, got %d/%d", segs, audio)
	}

	// Loss on an unknown session is a no-op.
	c.HandleConnectionLoss("sess-1")
	time.Sleep(20 * time.Millisecond)
	reconnects, _ := sink.snapshot()
	if reconnects != 0 {
		t.Errorf("expected no reconnects for unknown session, got %d", reconnects)
	}
}
