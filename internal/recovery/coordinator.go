// Package recovery provides heartbeat-driven failure detection and the
// reconnection policy for live sessions. It owns the bounded queues of
// audio and segments accumulated during an outage or a pause.
package recovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"campaign-scribe-service/internal/models"
	"campaign-scribe-service/internal/observability/logging"
	"campaign-scribe-service/internal/observability/metrics"
)

// ErrRecoveryExhausted is the terminal error delivered once the maximum
// number of reconnection attempts is exceeded. The session stays in its
// last good state and continues batch-only; realtime delivery stops
// until the caller decides what to do.
var ErrRecoveryExhausted = errors.New("recovery attempts exhausted")

// Sink receives replayed items and drives reconnection. It is
// registered at construction so no event can race wiring.
type Sink interface {
	// ReplaySegment re-delivers a buffered segment as if freshly received.
	ReplaySegment(sessionID string, seg models.TranscriptionSegment)

	// ReplayAudio re-delivers a buffered audio chunk.
	ReplayAudio(sessionID string, chunk models.AudioChunk)

	// Reconnect attempts to restore the realtime channel for a session.
	Reconnect(ctx context.Context, sessionID string) error

	// RecoveryFailed signals that reconnection attempts are exhausted.
	// Fired at most once per outage.
	RecoveryFailed(sessionID string, err error)
}

// Config holds recovery tuning values.
type Config struct {
	AutoRecover       bool
	MaxAttempts       int
	BaseDelay         time.Duration
	Timeout           time.Duration
	HeartbeatInterval time.Duration
	SegmentQueueCap   int
	AudioQueueCap     int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		AutoRecover:       true,
		MaxAttempts:       5,
		BaseDelay:         time.Second,
		Timeout:           30 * time.Second,
		HeartbeatInterval: 5 * time.Second,
		SegmentQueueCap:   100,
		AudioQueueCap:     50,
	}
}

// sessionState is the per-session recovery record. Owned exclusively by
// the coordinator; every access goes through the coordinator mutex.
type sessionState struct {
	transcriptID string
	lastActive   time.Time
	attempts     int
	paused       bool
	failed       bool
	segments     *ring[models.TranscriptionSegment]
	audio        *ring[models.AudioChunk]
}

// Coordinator tracks recovery state per session id and runs the
// heartbeat that catches silently stalled sessions.
type Coordinator struct {
	cfg     Config
	sink    Sink
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]*sessionState

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCoordinator creates a coordinator. Call Start to begin heartbeat
// scanning and Close on teardown.
func NewCoordinator(cfg Config, sink Sink) *Coordinator {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Coordinator{
		cfg:      cfg,
		sink:     sink,
		logger:   logging.WithComponent("recovery"),
		metrics:  metrics.DefaultMetrics,
		sessions: make(map[string]*sessionState),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the heartbeat loop.
func (c *Coordinator) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stopCh:
				return
			case now := <-ticker.C:
				c.checkStalled(now)
			}
		}
	}()
}

// Close stops the heartbeat and any pending reconnect timers. Safe to
// call more than once.
func (c *Coordinator) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// InitializeRecovery creates a fresh recovery record for a session.
func (c *Coordinator) InitializeRecovery(sessionID, transcriptID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[sessionID] = &sessionState{
		transcriptID: transcriptID,
		lastActive:   time.Now(),
		segments:     newRing[models.TranscriptionSegment](c.cfg.SegmentQueueCap),
		audio:        newRing[models.AudioChunk](c.cfg.AudioQueueCap),
	}
}

// Touch records session activity for stall detection.
func (c *Coordinator) Touch(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.sessions[sessionID]; ok {
		st.lastActive = time.Now()
	}
}

// UpdateSessionState reacts to controller state transitions: entering
// Paused starts buffering, returning to Active drains both queues in
// FIFO order.
func (c *Coordinator) UpdateSessionState(sessionID string, state models.SessionState) {
	c.mu.Lock()
	st, ok := c.sessions[sessionID]
	if !ok {
		c.mu.Unlock()
		return
	}
	switch state {
	case models.StatePaused:
		st.paused = true
		c.mu.Unlock()
	case models.StateActive:
		st.paused = false
		st.lastActive = time.Now()
		c.mu.Unlock()
		c.drain(sessionID)
	default:
		c.mu.Unlock()
	}
}

// ShouldBuffer reports whether segments and audio for the session must
// be queued instead of forwarded: while paused, or mid-reconnect. Once
// recovery is exhausted buffering stops, so the still-healthy provider
// stream keeps delivering without the realtime channel.
func (c *Coordinator) ShouldBuffer(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.sessions[sessionID]
	if !ok {
		return false
	}
	return st.paused || (st.attempts > 0 && !st.failed)
}

// QueueSegment buffers a segment, evicting the oldest when full.
func (c *Coordinator) QueueSegment(sessionID string, seg models.TranscriptionSegment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.sessions[sessionID]
	if !ok {
		return
	}
	if st.segments.push(seg) {
		c.metrics.RecordQueueEviction("segments")
		c.logger.Warn().
			Str("sessionId", sessionID).
			Int("capacity", c.cfg.SegmentQueueCap).
			Msg("Segment queue full, oldest entry evicted")
	}
}

// QueueAudioBuffer buffers an audio chunk, evicting the oldest when full.
func (c *Coordinator) QueueAudioBuffer(sessionID string, chunk models.AudioChunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.sessions[sessionID]
	if !ok {
		return
	}
	if st.audio.push(chunk) {
		c.metrics.RecordQueueEviction("audio")
		c.logger.Warn().
			Str("sessionId", sessionID).
			Int("capacity", c.cfg.AudioQueueCap).
			Msg("Audio queue full, oldest entry evicted")
	}
}

// QueuedCounts returns the current queue lengths. Intended for
// observability and tests.
func (c *Coordinator) QueuedCounts(sessionID string) (segments, audio int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.sessions[sessionID]
	if !ok {
		return 0, 0
	}
	return st.segments.len(), st.audio.len()
}

// HandleConnectionLoss increments the attempt counter and either
// schedules a reconnect with linear backoff or, once the maximum is
// exceeded, fires the terminal RecoveryFailed exactly once.
func (c *Coordinator) HandleConnectionLoss(sessionID string) {
	c.mu.Lock()
	st, ok := c.sessions[sessionID]
	if !ok || st.failed {
		c.mu.Unlock()
		return
	}
	st.attempts++
	attempt := st.attempts

	if !c.cfg.AutoRecover {
		c.mu.Unlock()
		c.logger.Warn().
			Str("sessionId", sessionID).
			Msg("Connection lost, auto-recovery disabled")
		return
	}

	if attempt > c.cfg.MaxAttempts {
		st.failed = true
		c.mu.Unlock()
		c.metrics.RecordRecoveryExhausted()
		c.logger.Error().
			Str("sessionId", sessionID).
			Int("maxAttempts", c.cfg.MaxAttempts).
			Msg("Recovery attempts exhausted")
		c.sink.RecoveryFailed(sessionID, ErrRecoveryExhausted)
		// The realtime channel is gone but the provider stream may still
		// be healthy: release everything buffered during the outage so
		// delivery and persistence continue without it.
		c.drain(sessionID)
		return
	}
	c.mu.Unlock()

	delay := c.cfg.BaseDelay * time.Duration(attempt)
	c.logger.Info().
		Str("sessionId", sessionID).
		Int("attempt", attempt).
		Dur("delay", delay).
		Msg("Scheduling reconnection attempt")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		select {
		case <-c.stopCh:
			return
		case <-time.After(delay):
		}
		c.attemptRecovery(sessionID)
	}()
}

// attemptRecovery runs one reconnect attempt. Success resets the
// counter and drains the queues; failure feeds back into
// HandleConnectionLoss and grows the backoff.
func (c *Coordinator) attemptRecovery(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()

	err := c.sink.Reconnect(ctx, sessionID)
	c.metrics.RecordRecoveryAttempt(err == nil)
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str("sessionId", sessionID).
			Msg("Reconnection attempt failed")
		c.HandleConnectionLoss(sessionID)
		return
	}

	c.mu.Lock()
	if st, ok := c.sessions[sessionID]; ok {
		st.attempts = 0
		st.lastActive = time.Now()
	}
	c.mu.Unlock()

	c.logger.Info().Str("sessionId", sessionID).Msg("Reconnection succeeded")
	c.drain(sessionID)
}

// drain replays queued segments then queued audio in FIFO order. Sink
// calls happen outside the coordinator lock: replay re-enters the
// controller, which may call back into the coordinator.
func (c *Coordinator) drain(sessionID string) {
	c.mu.Lock()
	st, ok := c.sessions[sessionID]
	if !ok {
		c.mu.Unlock()
		return
	}
	segs := st.segments.drain()
	audio := st.audio.drain()
	c.mu.Unlock()

	if len(segs) == 0 && len(audio) == 0 {
		return
	}
	c.logger.Info().
		Str("sessionId", sessionID).
		Int("segments", len(segs)).
		Int("audioChunks", len(audio)).
		Msg("Replaying buffered items")

	for _, seg := range segs {
		c.sink.ReplaySegment(sessionID, seg)
	}
	for _, chunk := range audio {
		c.sink.ReplayAudio(sessionID, chunk)
	}
}

// CleanupRecovery discards the recovery record. Anything still queued
// is lost; cleanup only follows a deliberate stop, which already ran a
// final flush upstream.
func (c *Coordinator) CleanupRecovery(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.sessions[sessionID]
	if !ok {
		return
	}
	if n, m := st.segments.len(), st.audio.len(); n > 0 || m > 0 {
		c.logger.Warn().
			Str("sessionId", sessionID).
			Int("segments", n).
			Int("audioChunks", m).
			Msg("Discarding queued items on cleanup")
	}
	delete(c.sessions, sessionID)
}

// checkStalled treats any session whose last activity predates the
// recovery timeout as silently stalled and triggers connection-loss
// handling. This catches failures that never raised an explicit error,
// like a hung transport.
func (c *Coordinator) checkStalled(now time.Time) {
	c.mu.Lock()
	var stalled []string
	for id, st := range c.sessions {
		if st.paused || st.failed || st.attempts > 0 {
			continue
		}
		if now.Sub(st.lastActive) > c.cfg.Timeout {
			stalled = append(stalled, id)
		}
	}
	c.mu.Unlock()

	for _, id := range stalled {
		c.logger.Warn().Str("sessionId", id).Msg("Session stalled, triggering recovery")
		c.HandleConnectionLoss(id)
	}
}
