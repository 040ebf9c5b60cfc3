package summarize

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockSummarizer is a deterministic summarizer for tests and local
// development. It can be forced to fail or to return a fixed summary.
type MockSummarizer struct {
	mu          sync.Mutex
	fixedOutput string
	forcedErr   error
	callCount   int
}

// NewMockSummarizer creates a mock summarizer
func NewMockSummarizer() *MockSummarizer {
	return &MockSummarizer{}
}

// Name returns the summarizer name
func (s *MockSummarizer) Name() string {
	return "mock"
}

// SetOutput forces a fixed summary text for subsequent calls
func (s *MockSummarizer) SetOutput(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixedOutput = text
}

// SetError forces subsequent calls to fail with err
func (s *MockSummarizer) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forcedErr = err
}

// CallCount returns the number of Summarize calls made
func (s *MockSummarizer) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

// Summarize returns the fixed output when set, otherwise a short
// deterministic digest of the input.
func (s *MockSummarizer) Summarize(ctx context.Context, text string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callCount++

	if s.forcedErr != nil {
		return nil, s.forcedErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		// Nothing to compress; echo like the real backends do
		return &Result{Text: trimmed, SourceHash: hashSource(text)}, nil
	}

	summary := s.fixedOutput
	if summary == "" {
		summary = fmt.Sprintf("Summary of %d words.", len(strings.Fields(text)))
	}

	return &Result{Text: summary, SourceHash: hashSource(text)}, nil
}
