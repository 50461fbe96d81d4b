// Package session implements the live transcription session controller:
// the state machine that routes audio to providers and the realtime
// transport, filters and batches segments, and exposes events to
// observers.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"campaign-scribe-service/internal/models"
	"campaign-scribe-service/internal/observability/logging"
	"campaign-scribe-service/internal/observability/metrics"
	"campaign-scribe-service/internal/provider"
	"campaign-scribe-service/internal/recovery"
	"campaign-scribe-service/internal/store"
	"campaign-scribe-service/internal/transport"
)

// Errors returned by the controller.
var (
	// ErrAlreadyActive means startLiveSession was called while a
	// session is in progress. Fatal to the call, not the process.
	ErrAlreadyActive = errors.New("session already active")

	// ErrInvalidTransition means a lifecycle call was made from a state
	// where it is not legal. Rejected without side effects.
	ErrInvalidTransition = errors.New("invalid session state transition")

	// ErrDisposed means the controller has been disposed.
	ErrDisposed = errors.New("controller disposed")
)

// Config holds controller tuning values.
type Config struct {
	ConfidenceThreshold float64
	FlushInterval       time.Duration
	AudioChannelSize    int
	Stream              provider.StreamConfig
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.7,
		FlushInterval:       5 * time.Second,
		AudioChannelSize:    64,
		Stream: provider.StreamConfig{
			LanguageCode:   "en-US",
			SampleRateHz:   16000,
			Channels:       1,
			BitDepth:       16,
			InterimResults: true,
		},
	}
}

// Controller is the top-level session state machine. It exclusively
// owns the Session record; collaborators are injected at construction
// and never mutate it.
//
// The controller owns its recovery coordinator and registers itself as
// the replay sink, so buffered segments and audio re-enter the normal
// ingestion path on resume or reconnect.
type Controller struct {
	cfg       Config
	gateway   *provider.Gateway
	transport transport.Transport
	store     store.Store
	recovery  *recovery.Coordinator
	observers []Observer
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	mu           sync.Mutex
	sess         *models.Session
	stream       provider.Stream
	buffer       []models.TranscriptionSegment
	audioCh      chan models.AudioChunk
	startedAt    time.Time
	flushCancel  context.CancelFunc
	senderDone   chan struct{}
	flushDone    chan struct{}
	disposedOnce sync.Once
	disposed     bool
}

// NewController builds a controller with injected collaborators.
// Observers are registered here, before any session can exist, so no
// event races construction.
func NewController(cfg Config, recCfg recovery.Config, gw *provider.Gateway, tr transport.Transport, st store.Store, observers ...Observer) *Controller {
	c := &Controller{
		cfg:       cfg,
		gateway:   gw,
		transport: tr,
		store:     st,
		observers: observers,
		logger:    logging.WithComponent("session"),
		metrics:   metrics.DefaultMetrics,
	}
	c.recovery = recovery.NewCoordinator(recCfg, c)
	c.recovery.Start()
	return c
}

// Recovery exposes the owned coordinator, mainly for tests and
// observability wiring.
func (c *Controller) Recovery() *recovery.Coordinator { return c.recovery }

// State returns the current session state.
func (c *Controller) State() models.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// SessionInfo returns the ids of the session currently in progress, or
// empty strings while idle. Used by event publishers to tag outgoing
// segment events.
func (c *Controller) SessionInfo() (sessionID, campaignID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return "", ""
	}
	return c.sess.ID, c.sess.CampaignID
}

func (c *Controller) stateLocked() models.SessionState {
	if c.sess == nil {
		return models.StateIdle
	}
	return c.sess.State
}

// StartLiveSession creates a transcript record, connects the realtime
// transport (best effort), starts the provider stream, and transitions
// to Active. Returns the transcript id. Legal only from Idle.
//
// A transport failure is non-fatal: the session proceeds in batch-only
// mode. A provider-stream failure transitions to Error and fails the
// call.
func (c *Controller) StartLiveSession(ctx context.Context, sessionID, campaignID, worldID string) (string, error) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return "", ErrDisposed
	}
	if state := c.stateLocked(); state != models.StateIdle {
		c.mu.Unlock()
		return "", fmt.Errorf("%w: state=%s", ErrAlreadyActive, state)
	}
	c.sess = &models.Session{
		ID:         sessionID,
		CampaignID: campaignID,
		WorldID:    worldID,
		State:      models.StateStarting,
		CreatedAt:  time.Now(),
	}
	c.mu.Unlock()
	c.notifyState(models.StateStarting)

	transcriptID, err := c.store.CreateTranscriptionRecord(ctx, store.RecordMetadata{
		SessionID:  sessionID,
		CampaignID: campaignID,
		WorldID:    worldID,
		Source:     "live",
	})
	if err != nil {
		c.mu.Lock()
		c.sess = nil
		c.mu.Unlock()
		c.notifyState(models.StateIdle)
		return "", fmt.Errorf("create transcript record: %w", err)
	}

	// Transport is best effort: a failure here downgrades the session
	// to batch-only mode.
	if terr := c.transport.Connect(ctx); terr != nil {
		c.logger.Warn().
			Err(terr).
			Str("sessionId", sessionID).
			Msg("Realtime transport unavailable, continuing in batch-only mode")
	} else if terr := c.transport.StartSession(ctx, c.transportSessionConfig(sessionID)); terr != nil {
		c.logger.Warn().
			Err(terr).
			Str("sessionId", sessionID).
			Msg("Realtime session announce failed, continuing in batch-only mode")
	}

	stream, err := c.gateway.StartStream(context.Background(), c.cfg.Stream, c.handleProviderResult)
	if err != nil {
		c.mu.Lock()
		c.sess.State = models.StateError
		c.sess.TranscriptID = transcriptID
		c.mu.Unlock()
		c.notifyState(models.StateError)
		return "", fmt.Errorf("start provider stream: %w", err)
	}

	c.recovery.InitializeRecovery(sessionID, transcriptID)

	flushCtx, flushCancel := context.WithCancel(context.Background())
	audioCh := make(chan models.AudioChunk, c.cfg.AudioChannelSize)
	senderDone := make(chan struct{})
	flushDone := make(chan struct{})

	c.mu.Lock()
	c.sess.TranscriptID = transcriptID
	c.sess.State = models.StateActive
	c.stream = stream
	c.buffer = nil
	c.audioCh = audioCh
	c.startedAt = time.Now()
	c.flushCancel = flushCancel
	c.senderDone = senderDone
	c.flushDone = flushDone
	c.mu.Unlock()

	go c.senderLoop(sessionID, audioCh, senderDone)
	go c.flushLoop(flushCtx, flushDone)

	c.recovery.UpdateSessionState(sessionID, models.StateActive)
	c.metrics.RecordSessionStart()
	c.metrics.RecordStateChange(models.StateActive.String())
	c.notifyState(models.StateActive)

	c.logger.Info().
		Str("sessionId", sessionID).
		Str("transcriptId", transcriptID).
		Str("provider", c.gateway.PrimaryName()).
		Bool("realtime", c.transport.IsConnected()).
		Msg("Live session started")
	return transcriptID, nil
}

func (c *Controller) transportSessionConfig(sessionID string) transport.SessionConfig {
	return transport.SessionConfig{
		SessionID:    sessionID,
		LanguageCode: c.cfg.Stream.LanguageCode,
		SampleRateHz: c.cfg.Stream.SampleRateHz,
		Channels:     c.cfg.Stream.Channels,
		BitDepth:     c.cfg.Stream.BitDepth,
	}
}

// ProcessAudioChunk routes one audio chunk. While Active the chunk is
// handed to the sender without blocking; while Paused it is buffered by
// the recovery coordinator; otherwise it is a logged no-op.
func (c *Controller) ProcessAudioChunk(data []byte, timestampMs int64) {
	chunk := models.AudioChunk{Data: data, TimestampMs: timestampMs}

	c.mu.Lock()
	state := c.stateLocked()
	var sessionID string
	if c.sess != nil {
		sessionID = c.sess.ID
	}

	switch state {
	case models.StateActive:
		// Enqueue under the lock so StopSession cannot close the
		// channel mid-send. The send never blocks.
		enqueued := false
		if c.audioCh != nil {
			select {
			case c.audioCh <- chunk:
				enqueued = true
			default:
			}
		}
		c.mu.Unlock()
		c.recovery.Touch(sessionID)
		c.metrics.RecordAudioReceived(len(data))
		if !enqueued {
			c.metrics.RecordChunkDropped()
			c.notifyError(fmt.Errorf("audio backlog full, dropped chunk at %dms (%d bytes)", timestampMs, len(data)))
		}
	case models.StatePaused:
		c.mu.Unlock()
		c.recovery.QueueAudioBuffer(sessionID, chunk)
	default:
		c.mu.Unlock()
		c.logger.Debug().
			Str("state", state.String()).
			Int("bytes", len(data)).
			Msg("Ignoring audio chunk outside active session")
	}
}

// senderLoop forwards queued chunks to the transport and the provider
// stream. The two sends are independent: failure of one never blocks
// the other, and neither changes session state.
func (c *Controller) senderLoop(sessionID string, ch chan models.AudioChunk, done chan struct{}) {
	defer close(done)
	for chunk := range ch {
		if c.transport.IsConnected() {
			if err := c.transport.SendAudioChunk(chunk.Data, chunk.TimestampMs); err != nil {
				c.logger.Warn().
					Err(err).
					Str("sessionId", sessionID).
					Int("bytes", len(chunk.Data)).
					Msg("Transport send failed")
				c.notifyError(err)
				c.recovery.HandleConnectionLoss(sessionID)
			}
		}

		c.mu.Lock()
		stream := c.stream
		c.mu.Unlock()
		if stream == nil {
			continue
		}
		if err := stream.Send(context.Background(), chunk.Data); err != nil {
			c.logger.Warn().
				Err(err).
				Str("sessionId", sessionID).
				Int("bytes", len(chunk.Data)).
				Msg("Provider send failed")
			c.notifyError(err)
		}
	}
}

// PauseSession transitions Active -> Paused. New chunks and segments
// are buffered by the recovery coordinator; the provider stream stays
// open.
func (c *Controller) PauseSession() error {
	c.mu.Lock()
	if c.stateLocked() != models.StateActive {
		state := c.stateLocked()
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot pause from %s", ErrInvalidTransition, state)
	}
	c.sess.State = models.StatePaused
	sessionID := c.sess.ID
	c.mu.Unlock()

	c.recovery.UpdateSessionState(sessionID, models.StatePaused)
	c.metrics.RecordStateChange(models.StatePaused.String())
	c.notifyState(models.StatePaused)
	c.logger.Info().Str("sessionId", sessionID).Msg("Session paused")
	return nil
}

// ResumeSession transitions Paused -> Active and replays everything
// buffered during the pause, queued segments first, before any new live
// segment is emitted.
func (c *Controller) ResumeSession() error {
	c.mu.Lock()
	if c.stateLocked() != models.StatePaused {
		state := c.stateLocked()
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot resume from %s", ErrInvalidTransition, state)
	}
	c.sess.State = models.StateActive
	sessionID := c.sess.ID
	c.mu.Unlock()

	// Drains synchronously: buffered items are re-ingested before this
	// call returns, preserving chronological order across the resume.
	c.recovery.UpdateSessionState(sessionID, models.StateActive)
	c.metrics.RecordStateChange(models.StateActive.String())
	c.notifyState(models.StateActive)
	c.logger.Info().Str("sessionId", sessionID).Msg("Session resumed")
	return nil
}

// StopSession stops the provider stream, ends the transport session,
// runs the final flush, and returns to Idle. Legal from any state;
// calling it while Idle is a no-op. Cleanup always completes: a failed
// final flush is logged, never returned.
func (c *Controller) StopSession(ctx context.Context) error {
	c.mu.Lock()
	if c.sess == nil {
		c.mu.Unlock()
		c.logger.Debug().Msg("StopSession while idle is a no-op")
		return nil
	}
	sessionID := c.sess.ID
	transcriptID := c.sess.TranscriptID
	started := c.startedAt
	c.sess.State = models.StateStopping
	stream := c.stream
	c.stream = nil
	audioCh := c.audioCh
	c.audioCh = nil
	flushCancel := c.flushCancel
	c.flushCancel = nil
	senderDone := c.senderDone
	flushDone := c.flushDone
	c.mu.Unlock()

	c.metrics.RecordStateChange(models.StateStopping.String())
	c.notifyState(models.StateStopping)

	if stream != nil {
		if err := stream.Close(); err != nil {
			c.logger.Warn().Err(err).Str("sessionId", sessionID).Msg("Provider stream close failed")
		}
	}
	if err := c.transport.EndSession(); err != nil {
		c.logger.Debug().Err(err).Str("sessionId", sessionID).Msg("Transport session end failed")
	}

	if audioCh != nil {
		close(audioCh)
		<-senderDone
	}
	if flushCancel != nil {
		flushCancel()
		<-flushDone
	}

	if transcriptID != "" {
		if err := c.flush(ctx, true); err != nil {
			c.logger.Error().Err(err).Str("sessionId", sessionID).Msg("Final flush failed")
		}
		if err := c.store.UpdateStatus(ctx, transcriptID, store.StatusCompleted); err != nil {
			c.logger.Warn().Err(err).Str("transcriptId", transcriptID).Msg("Status update failed")
		}
	}

	c.recovery.CleanupRecovery(sessionID)
	if !started.IsZero() {
		c.metrics.RecordSessionEnd(time.Since(started).Seconds())
	}

	c.mu.Lock()
	c.sess = nil
	c.buffer = nil
	c.startedAt = time.Time{}
	c.mu.Unlock()

	c.metrics.RecordStateChange(models.StateIdle.String())
	c.notifyState(models.StateIdle)
	c.logger.Info().Str("sessionId", sessionID).Msg("Session stopped")
	return nil
}

// Dispose composes StopSession with releasing long-lived resources.
// Safe to call more than once.
func (c *Controller) Dispose(ctx context.Context) error {
	err := c.StopSession(ctx)
	c.disposedOnce.Do(func() {
		c.mu.Lock()
		c.disposed = true
		c.mu.Unlock()
		if derr := c.transport.Disconnect(); derr != nil {
			c.logger.Warn().Err(derr).Msg("Transport disconnect failed")
		}
		c.recovery.Close()
	})
	return err
}

// ProcessAudioFile is the independent one-shot batch path: it creates
// its own transcript record, transcribes with provider fallback, and
// persists all accepted segments as one final write. Session state is
// untouched.
func (c *Controller) ProcessAudioFile(ctx context.Context, audio []byte, sessionID, campaignID, worldID string) (string, error) {
	transcriptID, err := c.store.CreateTranscriptionRecord(ctx, store.RecordMetadata{
		SessionID:  sessionID,
		CampaignID: campaignID,
		WorldID:    worldID,
		Source:     "file",
	})
	if err != nil {
		return "", fmt.Errorf("create transcript record: %w", err)
	}

	segments, err := c.gateway.TranscribeFile(ctx, audio, c.cfg.Stream)
	if err != nil {
		c.metrics.RecordFileTranscription("failure")
		if serr := c.store.UpdateStatus(ctx, transcriptID, store.StatusFailed); serr != nil {
			c.logger.Warn().Err(serr).Str("transcriptId", transcriptID).Msg("Status update failed")
		}
		return "", fmt.Errorf("transcribe file: %w", err)
	}

	accepted := segments[:0:0]
	for _, seg := range segments {
		if seg.Confidence < c.cfg.ConfidenceThreshold {
			c.metrics.RecordSegmentFiltered()
			continue
		}
		accepted = append(accepted, seg)
	}

	if err := c.store.AppendSegments(ctx, transcriptID, accepted, true); err != nil {
		c.metrics.RecordFileTranscription("failure")
		return "", fmt.Errorf("persist segments: %w", err)
	}
	if err := c.store.UpdateStatus(ctx, transcriptID, store.StatusCompleted); err != nil {
		c.logger.Warn().Err(err).Str("transcriptId", transcriptID).Msg("Status update failed")
	}

	c.metrics.RecordFileTranscription("success")
	c.logger.Info().
		Str("transcriptId", transcriptID).
		Int("segments", len(accepted)).
		Msg("File transcription complete")
	return transcriptID, nil
}

// --- segment ingestion ---

// handleProviderResult receives results from the provider stream.
func (c *Controller) handleProviderResult(res models.ProviderResult) {
	if res.Kind == models.ResultFailure {
		// Mid-session provider errors are surfaced, not fatal; the
		// session may still be salvageable via the transport channel.
		c.logger.Warn().Err(res.Err).Msg("Provider stream error")
		c.metrics.RecordProviderError(c.gateway.PrimaryName())
		c.notifyError(res.Err)
		return
	}
	for _, seg := range res.Segments {
		c.ingest(seg)
	}
}

// HandleTransportSegment receives segments delivered over the realtime
// transport. Cross-source ordering is not guaranteed; duplicates are
// resolved by segment id at the store.
func (c *Controller) HandleTransportSegment(seg models.TranscriptionSegment) {
	c.ingest(seg)
}

// HandleTransportState receives transport connection-state changes and
// relays them to observers. A drop during an active session triggers
// connection-loss handling.
func (c *Controller) HandleTransportState(state models.ConnectionState) {
	c.notifyConnectionState(state)
	if state != models.ConnDisconnected {
		return
	}
	c.mu.Lock()
	active := c.stateLocked() == models.StateActive
	var sessionID string
	if c.sess != nil {
		sessionID = c.sess.ID
	}
	c.mu.Unlock()
	if active {
		c.recovery.HandleConnectionLoss(sessionID)
	}
}

// HandleCaptureState receives capture-side state notices from the audio
// source (recording started, stopped, device switched). The capture
// device is owned by the client; the notice is logged for correlation
// with segment gaps.
func (c *Controller) HandleCaptureState(state string) {
	c.logger.Info().Str("captureState", state).Msg("Audio capture state changed")
}

// HandleCaptureError receives capture failures from the audio source.
// A broken microphone does not change session state; the session keeps
// whatever the provider already has in flight, and observers decide
// whether to stop.
func (c *Controller) HandleCaptureError(err error) {
	c.logger.Warn().Err(err).Msg("Audio capture error reported by source")
	c.notifyError(err)
}

// ingest applies confidence filtering, buffers while paused or
// recovering, emits to observers, and stages finals for persistence.
func (c *Controller) ingest(seg models.TranscriptionSegment) {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return
	}

	if seg.Confidence < c.cfg.ConfidenceThreshold {
		c.metrics.RecordSegmentFiltered()
		c.logger.Debug().
			Str("segmentId", seg.ID).
			Float64("confidence", seg.Confidence).
			Float64("threshold", c.cfg.ConfidenceThreshold).
			Msg("Segment below confidence threshold, dropped")
		return
	}

	if c.recovery.ShouldBuffer(sess.ID) {
		c.recovery.QueueSegment(sess.ID, seg)
		return
	}
	c.deliver(seg)
}

// deliver emits a segment to observers and stages finals for the next
// flush. Interim segments are surfaced only; a later final supersedes
// them.
func (c *Controller) deliver(seg models.TranscriptionSegment) {
	kind := "final"
	if seg.Interim {
		kind = "interim"
	}
	c.metrics.RecordSegmentEmitted(kind)
	c.notifySegment(seg)

	if seg.Interim {
		return
	}
	c.mu.Lock()
	c.buffer = append(c.buffer, seg)
	c.mu.Unlock()
}

// --- persistence ---

func (c *Controller) flushLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.flush(context.Background(), false); err != nil {
				c.logger.Warn().Err(err).Msg("Periodic flush failed, will retry")
			}
		}
	}
}

// flush writes the staged segments. On failure the buffer is retained
// for the next cycle; resends are safe because segment id is the dedupe
// key at the store.
func (c *Controller) flush(ctx context.Context, final bool) error {
	c.mu.Lock()
	if c.sess == nil || c.sess.TranscriptID == "" {
		c.mu.Unlock()
		return nil
	}
	transcriptID := c.sess.TranscriptID
	pending := append([]models.TranscriptionSegment(nil), c.buffer...)
	c.mu.Unlock()

	if len(pending) == 0 && !final {
		return nil
	}

	start := time.Now()
	err := c.store.AppendSegments(ctx, transcriptID, pending, final)
	c.metrics.RecordFlush(len(pending), err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("append %d segments: %w", len(pending), err)
	}

	// Flushed entries are a prefix of the buffer; anything ingested
	// during the write stays staged.
	c.mu.Lock()
	c.buffer = c.buffer[len(pending):]
	c.mu.Unlock()
	return nil
}

// --- recovery.Sink implementation ---

// ReplaySegment re-ingests a buffered segment ahead of new live ones.
func (c *Controller) ReplaySegment(sessionID string, seg models.TranscriptionSegment) {
	c.deliver(seg)
}

// ReplayAudio re-enqueues a buffered chunk into the sender.
func (c *Controller) ReplayAudio(sessionID string, chunk models.AudioChunk) {
	c.mu.Lock()
	enqueued := false
	if c.audioCh != nil {
		select {
		case c.audioCh <- chunk:
			enqueued = true
		default:
		}
	}
	c.mu.Unlock()
	if !enqueued {
		c.metrics.RecordChunkDropped()
		c.logger.Warn().Str("sessionId", sessionID).Msg("Replayed chunk dropped, audio backlog full")
	}
}

// Reconnect restores the realtime channel for the session.
func (c *Controller) Reconnect(ctx context.Context, sessionID string) error {
	c.notifyConnectionState(models.ConnReconnecting)
	if err := c.transport.Connect(ctx); err != nil {
		return err
	}
	return c.transport.StartSession(ctx, c.transportSessionConfig(sessionID))
}

// RecoveryFailed surfaces the terminal recovery error. The session
// keeps its last good state and continues batch-only off the provider
// stream; realtime delivery stops until the caller decides whether to
// stop the session.
func (c *Controller) RecoveryFailed(sessionID string, err error) {
	c.logger.Error().Err(err).Str("sessionId", sessionID).Msg("Realtime recovery failed")
	c.notifyError(fmt.Errorf("session %s: %w", sessionID, err))
}

// --- observer fan-out ---

func (c *Controller) notifyState(state models.SessionState) {
	for _, o := range c.observers {
		o.OnStateChange(state)
	}
}

func (c *Controller) notifySegment(seg models.TranscriptionSegment) {
	for _, o := range c.observers {
		o.OnSegment(seg)
	}
}

func (c *Controller) notifyError(err error) {
	for _, o := range c.observers {
		o.OnError(err)
	}
}

func (c *Controller) notifyConnectionState(state models.ConnectionState) {
	for _, o := range c.observers {
		o.OnConnectionStateChange(state)
	}
}
