package googlestt

import (
	"errors"
	"strings"
	"testing"
	"time"

	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"campaign-scribe-service/internal/models"
	"campaign-scribe-service/internal/provider"
)

func TestRecognitionConfig(t *testing.T) {
	cfg := provider.StreamConfig{
		LanguageCode: "en-US",
		SampleRateHz: 16000,
		Channels:     1,
	}

	rc := recognitionConfig(cfg)

	if rc.Encoding != speechpb.RecognitionConfig_LINEAR16 {
		t.Errorf("expected LINEAR16 encoding, got %v", rc.Encoding)
	}
	if rc.SampleRateHertz != 16000 {
		t.Errorf("expected sample rate 16000, got %d", rc.SampleRateHertz)
	}
	if rc.LanguageCode != "en-US" {
		t.Errorf("expected language 'en-US', got %s", rc.LanguageCode)
	}
	if !rc.EnableWordTimeOffsets {
		t.Error("expected word time offsets enabled")
	}
	if rc.DiarizationConfig != nil {
		t.Error("expected no diarization config when disabled")
	}
}

func TestRecognitionConfig_Diarization(t *testing.T) {
	cfg := provider.StreamConfig{
		LanguageCode: "en-US",
		SampleRateHz: 16000,
		Diarization:  true,
		MaxSpeakers:  6,
	}

	rc := recognitionConfig(cfg)

	if rc.DiarizationConfig == nil {
		t.Fatal("expected a diarization config")
	}
	if !rc.DiarizationConfig.EnableSpeakerDiarization {
		t.Error("expected speaker diarization enabled")
	}
	if rc.DiarizationConfig.MaxSpeakerCount != 6 {
		t.Errorf("expected max speaker count 6, got %d", rc.DiarizationConfig.MaxSpeakerCount)
	}
}

func TestSegmentFromResult(t *testing.T) {
	alts := []*speechpb.SpeechRecognitionAlternative{
		{
			Transcript: "the paladin raises her shield",
			Confidence: 0.93,
			Words: []*speechpb.WordInfo{
				{Word: "the", StartTime: durationpb.New(0), EndTime: durationpb.New(200 * time.Millisecond), SpeakerTag: 2},
				{Word: "shield", StartTime: durationpb.New(1200 * time.Millisecond), EndTime: durationpb.New(1500 * time.Millisecond), SpeakerTag: 2},
			},
		},
	}

	seg, ok := segmentFromResult(alts, false)
	if !ok {
		t.Fatal("expected a segment")
	}
	if seg.Text != "the paladin raises her shield" {
		t.Errorf("unexpected text %q", seg.Text)
	}
	if seg.ID == "" {
		t.Error("expected an assigned segment id")
	}
	if seg.StartTime != 0 || seg.EndTime != 1.5 {
		t.Errorf("unexpected word time offsets: start=%v end=%v", seg.StartTime, seg.EndTime)
	}
	if seg.SpeakerID != "speaker-2" {
		t.Errorf("expected speaker-2, got %q", seg.SpeakerID)
	}
	if seg.SpeakerTier != models.SpeakerTierHigh {
		t.Errorf("expected high speaker tier, got %s", seg.SpeakerTier)
	}
	if seg.Interim {
		t.Error("expected a final segment")
	}
}

func TestSegmentFromResult_Interim(t *testing.T) {
	alts := []*speechpb.SpeechRecognitionAlternative{
		{Transcript: "the paladin", Confidence: 0},
	}

	seg, ok := segmentFromResult(alts, true)
	if !ok {
		t.Fatal("expected a segment")
	}
	if !seg.Interim {
		t.Error("expected an interim segment")
	}
	if seg.SpeakerID != "" {
		t.Errorf("expected no speaker without word info, got %q", seg.SpeakerID)
	}
}

func TestSegmentFromResult_NoAlternatives(t *testing.T) {
	if _, ok := segmentFromResult(nil, false); ok {
		t.Error("expected no segment for empty alternatives")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"unavailable", status.Error(codes.Unavailable, "transport closing"), true},
		{"deadline", status.Error(codes.DeadlineExceeded, "timeout"), true},
		{"aborted", status.Error(codes.Aborted, "aborted"), true},
		{"invalid argument", status.Error(codes.InvalidArgument, "bad encoding"), false},
		{"permission denied", status.Error(codes.PermissionDenied, "no credentials"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("recv", tt.err)
			if got == nil {
				t.Fatal("expected a wrapped error")
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("expected the cause preserved, got %v", got)
			}
			if isRetryable := strings.Contains(got.Error(), "retryable"); isRetryable != tt.retryable {
				t.Errorf("classify(%v): retryable=%v, want %v", tt.err, isRetryable, tt.retryable)
			}
		})
	}
}
