// Package googlestt provides a Google Cloud Speech-to-Text provider.
package googlestt

import (
	"context"
	"fmt"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"campaign-scribe-service/internal/models"
	"campaign-scribe-service/internal/provider"
)

// Provider implements provider.Provider using Google Cloud
// Speech-to-Text. Requires GOOGLE_APPLICATION_CREDENTIALS to be set.
type Provider struct {
	client *speech.Client
}

// New creates a new Google STT provider.
func New(ctx context.Context) (*Provider, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	return &Provider{client: c}, nil
}

// Name returns "google".
func (p *Provider) Name() string { return "google" }

// Close releases the underlying client.
func (p *Provider) Close() error {
	return p.client.Close()
}

func recognitionConfig(cfg provider.StreamConfig) *speechpb.RecognitionConfig {
	rc := &speechpb.RecognitionConfig{
		Encoding:              speechpb.RecognitionConfig_LINEAR16,
		SampleRateHertz:       int32(cfg.SampleRateHz),
		AudioChannelCount:     int32(cfg.Channels),
		LanguageCode:          cfg.LanguageCode,
		EnableWordTimeOffsets: true,
	}
	if cfg.Diarization {
		rc.DiarizationConfig = &speechpb.SpeakerDiarizationConfig{
			EnableSpeakerDiarization: true,
			MaxSpeakerCount:          int32(cfg.MaxSpeakers),
		}
	}
	return rc
}

// StartStream begins a streaming recognition session. The receive loop
// runs until the stream ends and delivers results through onResult.
func (p *Provider) StartStream(ctx context.Context, cfg provider.StreamConfig, onResult provider.ResultFunc) (provider.Stream, error) {
	sc, err := p.client.StreamingRecognize(ctx)
	if err != nil {
		return nil, classify("open stream", err)
	}

	err = sc.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:         recognitionConfig(cfg),
				InterimResults: cfg.InterimResults,
			},
		},
	})
	if err != nil {
		return nil, classify("send streaming config", err)
	}

	s := &stream{sc: sc}
	go s.listen(onResult)
	return s, nil
}

// TranscribeFile transcribes a complete audio file synchronously.
func (p *Provider) TranscribeFile(ctx context.Context, audio []byte, cfg provider.StreamConfig) ([]models.TranscriptionSegment, error) {
	resp, err := p.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: recognitionConfig(cfg),
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return nil, classify("recognize", err)
	}

	var segments []models.TranscriptionSegment
	for _, r := range resp.Results {
		if seg, ok := segmentFromResult(r.Alternatives, false); ok {
			segments = append(segments, seg)
		}
	}
	return segments, nil
}

// stream wraps a live StreamingRecognize session.
type stream struct {
	sc     speechpb.Speech_StreamingRecognizeClient
	mu     sync.Mutex
	closed bool
}

// Send forwards audio bytes to Google.
func (s *stream) Send(ctx context.Context, audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	err := s.sc.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
	if err != nil {
		return classify("send audio", err)
	}
	return nil
}

// Close half-closes the stream; the receive loop drains remaining
// results and exits.
func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.sc.CloseSend()
}

// listen receives responses and invokes the result callback until the
// stream ends.
func (s *stream) listen(onResult provider.ResultFunc) {
	for {
		resp, err := s.sc.Recv()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				onResult(models.FailureResult(classify("recv", err)))
			}
			return
		}

		for _, r := range resp.Results {
			seg, ok := segmentFromResult(r.Alternatives, !r.IsFinal)
			if !ok {
				continue
			}
			if r.IsFinal {
				onResult(models.FinalResult(seg))
			} else {
				onResult(models.InterimResult(seg))
			}
		}
	}
}

func segmentFromResult(alts []*speechpb.SpeechRecognitionAlternative, interim bool) (models.TranscriptionSegment, bool) {
	if len(alts) == 0 {
		return models.TranscriptionSegment{}, false
	}
	alt := alts[0]

	seg := models.TranscriptionSegment{
		ID:         uuid.NewString(),
		Text:       alt.Transcript,
		Confidence: float64(alt.Confidence),
		Interim:    interim,
	}

	if n := len(alt.Words); n > 0 {
		first, last := alt.Words[0], alt.Words[n-1]
		seg.StartTime = first.StartTime.AsDuration().Seconds()
		seg.EndTime = last.EndTime.AsDuration().Seconds()
		if first.SpeakerTag != 0 {
			seg.SpeakerID = fmt.Sprintf("speaker-%d", first.SpeakerTag)
			seg.SpeakerTier = models.TierForConfidence(seg.Confidence)
		}
	}
	return seg, true
}

// classify maps grpc status codes onto wrapped errors so callers can
// tell retryable transport failures from hard API errors.
func classify(op string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("google stt: %s: %w", op, err)
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted:
		log.Debug().Str("op", op).Str("code", st.Code().String()).Msg("Retryable Google STT error")
		return fmt.Errorf("google stt: %s (retryable, %s): %w", op, st.Code(), err)
	default:
		return fmt.Errorf("google stt: %s (%s): %w", op, st.Code(), err)
	}
}
