package tts

import (
	"context"
	"sync"
)

// silentMP3Frame is one valid MPEG-1 Layer III frame of silence,
// 128kbps at 44.1kHz. Repeating it yields a playable stream.
var silentMP3Frame = append([]byte{0xFF, 0xFB, 0x90, 0x00}, make([]byte, 413)...)

// MockSynthesizer produces a deterministic silent MP3 stream. Tests
// can force failures to exercise the degraded-completion path.
type MockSynthesizer struct {
	mu        sync.Mutex
	forcedErr error
	callCount int
}

// NewMockSynthesizer creates a mock synthesizer
func NewMockSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{}
}

// Name returns the synthesizer name
func (s *MockSynthesizer) Name() string {
	return "mock"
}

// SetError forces subsequent calls to fail with err
func (s *MockSynthesizer) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forcedErr = err
}

// CallCount returns the number of Synthesize calls made
func (s *MockSynthesizer) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

// Synthesize returns a silent MP3 stream sized to the input text
func (s *MockSynthesizer) Synthesize(ctx context.Context, text string) (*SynthesisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callCount++

	if s.forcedErr != nil {
		return nil, s.forcedErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// One frame per 20 characters keeps the stream roughly
	// proportional to the text without being large.
	frames := len(text)/20 + 1
	audio := make([]byte, 0, frames*len(silentMP3Frame))
	for i := 0; i < frames; i++ {
		audio = append(audio, silentMP3Frame...)
	}

	return &SynthesisResult{
		Audio:       audio,
		ContentType: "audio/mpeg",
		Duration:    estimateDuration(text),
	}, nil
}
