// Package config loads service configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ServiceConfig holds process-level settings.
type ServiceConfig struct {
	Principal   string
	HTTPPort    string
	MetricsAddr string
}

// STTConfig holds speech-provider settings.
type STTConfig struct {
	PrimaryProvider  string
	FallbackProvider string // empty means no fallback
	LanguageCode     string
	SampleRateHz     int
	Channels         int
	BitDepth         int
	Diarization      bool
	MaxSpeakers      int
	InterimResults   bool
}

// SessionConfig holds controller tuning values.
type SessionConfig struct {
	ConfidenceThreshold float64
	ChunkDurationMs     int
	FlushInterval       time.Duration
	AudioChannelSize    int
}

// TransportConfig holds realtime transport settings.
type TransportConfig struct {
	Enabled bool
	URL     string
}

// RecoveryConfig holds failure-detection and reconnect settings.
type RecoveryConfig struct {
	AutoRecover       bool
	MaxAttempts       int
	BaseDelay         time.Duration
	Timeout           time.Duration
	HeartbeatInterval time.Duration
	SegmentQueueCap   int
	AudioQueueCap     int
}

// KafkaConfig holds event publisher settings.
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicPartial string
	TopicFinal   string
	Principal    string
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// Configuration is the full service configuration.
type Configuration struct {
	Service       ServiceConfig
	STT           STTConfig
	Session       SessionConfig
	Transport     TransportConfig
	Recovery      RecoveryConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// Load reads configuration from the environment, applying defaults for
// anything unset.
func Load() *Configuration {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-campaign-scribe")
	return &Configuration{
		Service: ServiceConfig{
			Principal:   principal,
			HTTPPort:    envOrDefault("HTTP_PORT", "8080"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
		},
		STT: STTConfig{
			PrimaryProvider:  envOrDefault("STT_PROVIDER", "mock"),
			FallbackProvider: envOrDefault("STT_FALLBACK_PROVIDER", ""),
			LanguageCode:     envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			SampleRateHz:     envInt("STT_SAMPLE_RATE_HZ", 16000),
			Channels:         envInt("STT_CHANNELS", 1),
			BitDepth:         envInt("STT_BIT_DEPTH", 16),
			Diarization:      envBool("STT_DIARIZATION", false),
			MaxSpeakers:      envInt("STT_MAX_SPEAKERS", 6),
			InterimResults:   envBool("STT_INTERIM_RESULTS", true),
		},
		Session: SessionConfig{
			ConfidenceThreshold: envFloat("SESSION_CONFIDENCE_THRESHOLD", 0.7),
			ChunkDurationMs:     envInt("SESSION_CHUNK_DURATION_MS", 250),
			FlushInterval:       envDuration("SESSION_FLUSH_INTERVAL", 5*time.Second),
			AudioChannelSize:    envInt("SESSION_AUDIO_CHANNEL_SIZE", 64),
		},
		Transport: TransportConfig{
			Enabled: envBool("TRANSPORT_ENABLED", false),
			URL:     envOrDefault("TRANSPORT_URL", "ws://localhost:8765/realtime"),
		},
		Recovery: RecoveryConfig{
			AutoRecover:       envBool("RECOVERY_AUTO", true),
			MaxAttempts:       envInt("RECOVERY_MAX_ATTEMPTS", 5),
			BaseDelay:         envDuration("RECOVERY_BASE_DELAY", time.Second),
			Timeout:           envDuration("RECOVERY_TIMEOUT", 30*time.Second),
			HeartbeatInterval: envDuration("RECOVERY_HEARTBEAT_INTERVAL", 5*time.Second),
			SegmentQueueCap:   envInt("RECOVERY_SEGMENT_QUEUE_CAP", 100),
			AudioQueueCap:     envInt("RECOVERY_AUDIO_QUEUE_CAP", 50),
		},
		Kafka: KafkaConfig{
			Enabled:      envBool("KAFKA_ENABLED", false),
			Brokers:      envList("KAFKA_BROKERS"),
			TopicPartial: envOrDefault("KAFKA_TOPIC_PARTIAL", "session.transcript.partial"),
			TopicFinal:   envOrDefault("KAFKA_TOPIC_FINAL", "session.transcript.final"),
			Principal:    principal,
		},
		Observability: ObservabilityConfig{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
