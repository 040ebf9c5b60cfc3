package tts

import (
	"context"
	"time"
)

// SynthesisResult carries the rendered audio for a summary
type SynthesisResult struct {
	// Audio is the encoded audio stream
	Audio []byte

	// ContentType is the MIME type of Audio
	ContentType string

	// Duration is the estimated playback length
	Duration time.Duration
}

// Synthesizer renders text to speech. Synthesis is best-effort in the
// pipeline: a failure degrades the job result instead of failing it.
type Synthesizer interface {
	// Name returns the synthesizer name
	Name() string

	// Synthesize renders text as encoded audio
	Synthesize(ctx context.Context, text string) (*SynthesisResult, error)
}
