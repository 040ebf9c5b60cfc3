package stt

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"audiopipe-server/pkg/ingest"
)

// MockProvider implements a deterministic speech-to-text provider for
// tests and local development. Silent audio (all-zero PCM) yields an
// empty transcription, mirroring how a real engine behaves on silence.
type MockProvider struct {
	logger     *logrus.Logger
	transcript string
	confidence float64
	err        error
}

// NewMockProvider creates a new mock provider
func NewMockProvider(logger *logrus.Logger) *MockProvider {
	return &MockProvider{
		logger:     logger,
		transcript: "The quick brown fox jumps over the lazy dog. Speech to text conversion is working.",
		confidence: 0.95,
	}
}

// SetTranscript overrides the canned transcript and confidence
func (p *MockProvider) SetTranscript(transcript string, confidence float64) {
	p.transcript = transcript
	p.confidence = confidence
}

// SetError forces every Transcribe call to fail with err
func (p *MockProvider) SetError(err error) {
	p.err = err
}

// Name returns the provider name
func (p *MockProvider) Name() string {
	return "mock"
}

// Initialize initializes the mock provider
func (p *MockProvider) Initialize() error {
	p.logger.Info("Mock STT provider initialized")
	return nil
}

// Transcribe returns the canned transcript split into per-sentence
// segments spread evenly across the asset duration.
func (p *MockProvider) Transcribe(ctx context.Context, asset *ingest.AudioAsset) (*TranscriptionResult, error) {
	if p.err != nil {
		return nil, p.err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if isSilent(asset) {
		p.logger.Debug("Mock STT detected silent audio, returning empty transcription")
		return NewTranscriptionResult(nil), nil
	}

	sentences := splitSentences(p.transcript)
	if len(sentences) == 0 {
		return NewTranscriptionResult(nil), nil
	}

	total := asset.Duration
	if total <= 0 {
		total = time.Duration(len(sentences)) * time.Second
	}
	per := total / time.Duration(len(sentences))

	segments := make([]TranscriptSegment, 0, len(sentences))
	for i, sentence := range sentences {
		segments = append(segments, TranscriptSegment{
			Text:       sentence,
			StartTime:  time.Duration(i) * per,
			EndTime:    time.Duration(i+1) * per,
			Confidence: p.confidence,
		})
	}

	p.logger.WithField("segments", len(segments)).Debug("Mock transcription generated")

	return NewTranscriptionResult(segments), nil
}

// isSilent reports whether a PCM asset carries no signal. Non-PCM
// assets are never treated as silent.
func isSilent(asset *ingest.AudioAsset) bool {
	if asset == nil || len(asset.Data) == 0 {
		return true
	}
	if asset.SourceFormat != ingest.FormatWAV {
		return false
	}
	for _, b := range asset.Data {
		if b != 0 {
			return false
		}
	}
	return true
}

func splitSentences(text string) []string {
	parts := strings.Split(text, ". ")
	sentences := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.HasSuffix(part, ".") && !strings.HasSuffix(part, "?") && !strings.HasSuffix(part, "!") {
			part += "."
		}
		sentences = append(sentences, part)
	}
	return sentences
}
