package summarize

import (
	"context"
	"regexp"
	"strings"

	"audiopipe-server/pkg/config"

	"github.com/sirupsen/logrus"
)

// sentenceBoundary splits after terminal punctuation followed by
// whitespace. Placeholder tokens contain no terminal punctuation, so
// they never split a sentence.
var sentenceBoundary = regexp.MustCompile(`(?s)(.*?[.!?])(?:\s+|$)`)

// ExtractiveSummarizer returns the leading sentences of the input. It
// needs no credentials and no network, and serves as the deterministic
// fallback when no abstractive backend is configured.
type ExtractiveSummarizer struct {
	logger         *logrus.Logger
	maxSentences   int
	minInputLength int
}

// NewExtractiveSummarizer creates a lead-sentences summarizer
func NewExtractiveSummarizer(logger *logrus.Logger, cfg config.SummaryConfig) *ExtractiveSummarizer {
	maxSentences := cfg.MaxSentences
	if maxSentences <= 0 {
		maxSentences = 3
	}
	return &ExtractiveSummarizer{
		logger:         logger,
		maxSentences:   maxSentences,
		minInputLength: cfg.MinInputLength,
	}
}

// Name returns the summarizer name
func (s *ExtractiveSummarizer) Name() string {
	return "extractive"
}

// Summarize returns the first sentences of text, up to the configured
// maximum. Inputs below the minimum length pass through verbatim.
func (s *ExtractiveSummarizer) Summarize(ctx context.Context, text string) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	trimmed := strings.TrimSpace(text)
	if len(trimmed) < s.minInputLength {
		return &Result{Text: trimmed, SourceHash: hashSource(text)}, nil
	}

	sentences := splitSentences(trimmed)
	if len(sentences) <= s.maxSentences {
		return &Result{Text: trimmed, SourceHash: hashSource(text)}, nil
	}

	summary := strings.Join(sentences[:s.maxSentences], " ")
	s.logger.WithFields(logrus.Fields{
		"sentences": len(sentences),
		"kept":      s.maxSentences,
	}).Debug("Extractive summary generated")

	return &Result{Text: summary, SourceHash: hashSource(text)}, nil
}

// splitSentences breaks text at terminal punctuation. Trailing text
// without terminal punctuation counts as a final sentence.
func splitSentences(text string) []string {
	var sentences []string
	consumed := 0
	for _, match := range sentenceBoundary.FindAllStringSubmatchIndex(text, -1) {
		sentence := strings.TrimSpace(text[match[2]:match[3]])
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		consumed = match[1]
	}
	if rest := strings.TrimSpace(text[consumed:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}
