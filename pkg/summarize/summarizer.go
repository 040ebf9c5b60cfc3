package summarize

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Result is the output of one summarization call
type Result struct {
	// Text is the summary itself
	Text string `json:"text"`

	// SourceHash identifies the exact input the summary was produced
	// from, so a reader can tell which transcript revision it covers
	SourceHash string `json:"source_hash"`
}

// Summarizer produces a short summary of a redacted transcript.
// Implementations must never see unredacted text; the orchestrator
// only hands them redactor output.
type Summarizer interface {
	// Name returns the summarizer name
	Name() string

	// Summarize condenses text into a short summary
	Summarize(ctx context.Context, text string) (*Result, error)
}

// hashSource fingerprints the summarizer input
func hashSource(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
