package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"campaign-scribe-service/internal/config"
	"campaign-scribe-service/internal/events"
	"campaign-scribe-service/internal/httpapi"
	"campaign-scribe-service/internal/models"
	"campaign-scribe-service/internal/observability"
	"campaign-scribe-service/internal/observability/logging"
	"campaign-scribe-service/internal/provider"
	"campaign-scribe-service/internal/provider/googlestt"
	"campaign-scribe-service/internal/provider/mock"
	"campaign-scribe-service/internal/recovery"
	"campaign-scribe-service/internal/session"
	"campaign-scribe-service/internal/store"
	"campaign-scribe-service/internal/transport"
)

func main() {
	cfg := config.Load()

	logging.Init(logging.Config{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})

	ctx := context.Background()

	primary, err := buildProvider(ctx, cfg.STT.PrimaryProvider)
	if err != nil {
		log.Fatal().Err(err).Str("provider", cfg.STT.PrimaryProvider).Msg("Primary provider init failed")
	}
	var fallback provider.Provider
	if cfg.STT.FallbackProvider != "" {
		fallback, err = buildProvider(ctx, cfg.STT.FallbackProvider)
		if err != nil {
			log.Fatal().Err(err).Str("provider", cfg.STT.FallbackProvider).Msg("Fallback provider init failed")
		}
	}
	gateway := provider.NewGateway(primary, fallback)

	publisher := events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicPartial: cfg.Kafka.TopicPartial,
		TopicFinal:   cfg.Kafka.TopicFinal,
		Principal:    cfg.Kafka.Principal,
	})
	defer publisher.Close()

	// The transport callbacks are bound to the controller, which in
	// turn is constructed with the transport; the late-bound pointer
	// breaks the cycle before any connection exists.
	var controller *session.Controller
	var tr transport.Transport = transport.Noop{}
	if cfg.Transport.Enabled {
		tr = transport.NewWSTransport(cfg.Transport.URL,
			func(state models.ConnectionState) {
				if controller != nil {
					controller.HandleTransportState(state)
				}
			},
			func(seg models.TranscriptionSegment) {
				if controller != nil {
					controller.HandleTransportSegment(seg)
				}
			},
		)
	}

	segmentObs := events.NewObserver(publisher)
	controller = session.NewController(
		session.Config{
			ConfidenceThreshold: cfg.Session.ConfidenceThreshold,
			FlushInterval:       cfg.Session.FlushInterval,
			AudioChannelSize:    cfg.Session.AudioChannelSize,
			Stream: provider.StreamConfig{
				LanguageCode:   cfg.STT.LanguageCode,
				SampleRateHz:   cfg.STT.SampleRateHz,
				Channels:       cfg.STT.Channels,
				BitDepth:       cfg.STT.BitDepth,
				Diarization:    cfg.STT.Diarization,
				MaxSpeakers:    cfg.STT.MaxSpeakers,
				InterimResults: cfg.STT.InterimResults,
			},
		},
		recovery.Config{
			AutoRecover:       cfg.Recovery.AutoRecover,
			MaxAttempts:       cfg.Recovery.MaxAttempts,
			BaseDelay:         cfg.Recovery.BaseDelay,
			Timeout:           cfg.Recovery.Timeout,
			HeartbeatInterval: cfg.Recovery.HeartbeatInterval,
			SegmentQueueCap:   cfg.Recovery.SegmentQueueCap,
			AudioQueueCap:     cfg.Recovery.AudioQueueCap,
		},
		gateway,
		tr,
		store.NewMemoryStore(),
		segmentObs,
	)
	segmentObs.BindSource(controller)

	obsServer := observability.NewServer(cfg.Service.MetricsAddr)
	obsServer.Start()

	apiServer := &http.Server{
		Addr:         ":" + cfg.Service.HTTPPort,
		Handler:      httpapi.NewRouter(controller),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info().Str("port", cfg.Service.HTTPPort).Msg("Campaign scribe service started")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP serve failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := controller.Dispose(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Controller dispose failed")
	}
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Observability server shutdown failed")
	}
}

func buildProvider(ctx context.Context, name string) (provider.Provider, error) {
	switch name {
	case "google":
		return googlestt.New(ctx)
	default:
		return mock.New(), nil
	}
}
