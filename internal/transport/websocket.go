package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"campaign-scribe-service/internal/models"
	"campaign-scribe-service/internal/observability/logging"
	"campaign-scribe-service/internal/observability/metrics"
)

// Message types on the wire.
const (
	msgSessionStart = "session.start"
	msgSessionEnd   = "session.end"
	msgAudio        = "audio"
	msgSegment      = "segment"
)

// message is the JSON envelope exchanged over the channel.
type message struct {
	Type        string                       `json:"type"`
	Session     *SessionConfig               `json:"session,omitempty"`
	TimestampMs int64                        `json:"timestampMs,omitempty"`
	Audio       []byte                       `json:"audio,omitempty"`
	Segment     *models.TranscriptionSegment `json:"segment,omitempty"`
}

// WSTransport is a WebSocket implementation of Transport.
type WSTransport struct {
	url       string
	onState   StateFunc
	onSegment SegmentFunc
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	session   *SessionConfig
	readDone  chan struct{}
}

// NewWSTransport creates a WebSocket transport. Both callbacks are
// registered here, before any connection exists, so no event can race
// construction. Either may be nil.
func NewWSTransport(url string, onState StateFunc, onSegment SegmentFunc) *WSTransport {
	return &WSTransport{
		url:       url,
		onState:   onState,
		onSegment: onSegment,
		logger:    logging.WithComponent("transport"),
		metrics:   metrics.DefaultMetrics,
	}
}

// Connect dials the realtime endpoint and starts the read loop.
func (t *WSTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	t.notify(models.ConnConnecting)
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		t.notify(models.ConnDisconnected)
		return &ConnectionError{Op: "connect", Err: err}
	}

	t.mu.Lock()
	t.conn = conn
	t.connected = true
	t.readDone = make(chan struct{})
	done := t.readDone
	t.mu.Unlock()

	t.metrics.TransportConnects.Inc()
	t.logger.Info().Str("url", t.url).Msg("Realtime transport connected")
	t.notify(models.ConnConnected)

	go t.readLoop(conn, done)
	return nil
}

// StartSession announces a session to the remote end.
func (t *WSTransport) StartSession(ctx context.Context, cfg SessionConfig) error {
	t.mu.Lock()
	t.session = &cfg
	t.mu.Unlock()
	return t.write(message{Type: msgSessionStart, Session: &cfg})
}

// SendAudioChunk mirrors one audio chunk to the remote end.
func (t *WSTransport) SendAudioChunk(data []byte, timestampMs int64) error {
	err := t.write(message{Type: msgAudio, Audio: data, TimestampMs: timestampMs})
	if err != nil {
		t.metrics.TransportSendErrors.Inc()
	}
	return err
}

// EndSession announces the end of the current session.
func (t *WSTransport) EndSession() error {
	t.mu.Lock()
	t.session = nil
	t.mu.Unlock()
	return t.write(message{Type: msgSessionEnd})
}

// Disconnect closes the channel. Safe to call repeatedly.
func (t *WSTransport) Disconnect() error {
	t.mu.Lock()
	conn := t.conn
	wasConnected := t.connected
	t.conn = nil
	t.connected = false
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if wasConnected {
		t.metrics.TransportDisconnects.Inc()
		t.notify(models.ConnDisconnected)
	}
	return nil
}

// IsConnected reports whether the channel is usable.
func (t *WSTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *WSTransport) write(msg message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected || t.conn == nil {
		return &ConnectionError{Op: "write", Err: errors.New("not connected")}
	}
	if err := t.conn.WriteJSON(msg); err != nil {
		return &ConnectionError{Op: "write", Err: err}
	}
	return nil
}

// readLoop receives segments until the connection drops. A read failure
// after a clean Disconnect is expected and ignored.
func (t *WSTransport) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		data, err := readMessage(conn)
		if err != nil {
			t.mu.Lock()
			stillCurrent := t.conn == conn
			if stillCurrent {
				t.conn = nil
				t.connected = false
			}
			t.mu.Unlock()

			if stillCurrent {
				t.logger.Warn().Err(err).Msg("Realtime transport read failed")
				t.metrics.TransportDisconnects.Inc()
				t.notify(models.ConnDisconnected)
			}
			return
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.logger.Warn().Err(err).Msg("Unparseable realtime transport message")
			continue
		}
		if msg.Type == msgSegment && msg.Segment != nil && t.onSegment != nil {
			t.onSegment(*msg.Segment)
		}
	}
}

func readMessage(conn *websocket.Conn) ([]byte, error) {
	_, data, err := conn.ReadMessage()
	return data, err
}

func (t *WSTransport) notify(state models.ConnectionState) {
	if t.onState != nil {
		t.onState(state)
	}
}
