// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "campaign_scribe"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsStarted prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionDuration prometheus.Histogram
	StateChanges    *prometheus.CounterVec

	// Audio metrics
	AudioBytesReceived  prometheus.Counter
	AudioChunksReceived prometheus.Counter
	AudioChunksDropped  prometheus.Counter

	// Segment metrics
	SegmentsEmitted   *prometheus.CounterVec
	SegmentsFiltered  prometheus.Counter
	SegmentsPersisted prometheus.Counter

	// Flush metrics
	FlushTotal   prometheus.Counter
	FlushErrors  prometheus.Counter
	FlushLatency prometheus.Histogram

	// Provider metrics
	ProviderErrors      *prometheus.CounterVec
	FileTranscriptions  *prometheus.CounterVec
	ProviderFallbacks   prometheus.Counter

	// Recovery metrics
	RecoveryAttempts  prometheus.Counter
	RecoveryFailures  prometheus.Counter
	RecoveryExhausted prometheus.Counter
	QueueEvictions    *prometheus.CounterVec

	// Transport metrics
	TransportConnects    prometheus.Counter
	TransportDisconnects prometheus.Counter
	TransportSendErrors  prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of live sessions started",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active live sessions",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of live sessions in seconds",
			Buckets:   []float64{10, 30, 60, 300, 900, 1800, 3600, 7200, 14400},
		}),
		StateChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_state_changes_total",
			Help:      "Total number of session state transitions",
		}, []string{"state"}),

		AudioBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes received",
		}),
		AudioChunksReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_received_total",
			Help:      "Total audio chunks received",
		}),
		AudioChunksDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_dropped_total",
			Help:      "Total audio chunks dropped due to backpressure",
		}),

		SegmentsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_emitted_total",
			Help:      "Total transcript segments emitted to observers",
		}, []string{"kind"}),
		SegmentsFiltered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_filtered_total",
			Help:      "Total segments dropped below the confidence threshold",
		}),
		SegmentsPersisted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_persisted_total",
			Help:      "Total segments written to the transcript store",
		}),

		FlushTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_total",
			Help:      "Total persistence flushes attempted",
		}),
		FlushErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_errors_total",
			Help:      "Total persistence flushes that failed",
		}),
		FlushLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_latency_seconds",
			Help:      "Transcript store flush latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Total speech-provider errors",
		}, []string{"provider"}),
		FileTranscriptions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_transcriptions_total",
			Help:      "Total batch file transcriptions",
		}, []string{"outcome"}),
		ProviderFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_fallbacks_total",
			Help:      "Total times the fallback provider was attempted",
		}),

		RecoveryAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovery_attempts_total",
			Help:      "Total reconnection attempts scheduled",
		}),
		RecoveryFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovery_failures_total",
			Help:      "Total reconnection attempts that failed",
		}),
		RecoveryExhausted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovery_exhausted_total",
			Help:      "Total sessions whose reconnection attempts were exhausted",
		}),
		QueueEvictions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_evictions_total",
			Help:      "Total entries evicted from bounded recovery queues",
		}, []string{"queue"}),

		TransportConnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_connects_total",
			Help:      "Total realtime transport connections established",
		}),
		TransportDisconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_disconnects_total",
			Help:      "Total realtime transport disconnections",
		}),
		TransportSendErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_send_errors_total",
			Help:      "Total realtime transport send failures",
		}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordSessionStart records a live session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsStarted.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a live session ending.
func (m *Metrics) RecordSessionEnd(durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordStateChange records a session state transition.
func (m *Metrics) RecordStateChange(state string) {
	m.StateChanges.WithLabelValues(state).Inc()
}

// RecordAudioReceived records an incoming audio chunk.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
	m.AudioChunksReceived.Inc()
}

// RecordChunkDropped records a chunk dropped under backpressure.
func (m *Metrics) RecordChunkDropped() {
	m.AudioChunksDropped.Inc()
}

// RecordSegmentEmitted records a segment delivered to observers.
func (m *Metrics) RecordSegmentEmitted(kind string) {
	m.SegmentsEmitted.WithLabelValues(kind).Inc()
}

// RecordSegmentFiltered records a segment dropped by confidence filtering.
func (m *Metrics) RecordSegmentFiltered() {
	m.SegmentsFiltered.Inc()
}

// RecordFlush records a persistence flush attempt.
func (m *Metrics) RecordFlush(segments int, err error, latencySeconds float64) {
	m.FlushTotal.Inc()
	m.FlushLatency.Observe(latencySeconds)
	if err != nil {
		m.FlushErrors.Inc()
		return
	}
	m.SegmentsPersisted.Add(float64(segments))
}

// RecordProviderError records a speech-provider error.
func (m *Metrics) RecordProviderError(provider string) {
	m.ProviderErrors.WithLabelValues(provider).Inc()
}

// RecordFileTranscription records the outcome of a batch transcription.
func (m *Metrics) RecordFileTranscription(outcome string) {
	m.FileTranscriptions.WithLabelValues(outcome).Inc()
}

// RecordFallback records a fallback provider attempt.
func (m *Metrics) RecordFallback() {
	m.ProviderFallbacks.Inc()
}

// RecordRecoveryAttempt records a scheduled reconnection attempt.
func (m *Metrics) RecordRecoveryAttempt(success bool) {
	m.RecoveryAttempts.Inc()
	if !success {
		m.RecoveryFailures.Inc()
	}
}

// RecordRecoveryExhausted records a session running out of reconnect attempts.
func (m *Metrics) RecordRecoveryExhausted() {
	m.RecoveryExhausted.Inc()
}

// RecordQueueEviction records a bounded-queue eviction.
func (m *Metrics) RecordQueueEviction(queue string) {
	m.QueueEvictions.WithLabelValues(queue).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic).Inc()
	}
}
