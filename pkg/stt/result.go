package stt

import (
	"sort"
	"strings"
	"time"
)

// TranscriptSegment is one time-bounded unit of recognized speech
type TranscriptSegment struct {
	Text       string        `json:"text"`
	StartTime  time.Duration `json:"start_time"`
	EndTime    time.Duration `json:"end_time"`
	Confidence float64       `json:"confidence"`
}

// TranscriptionResult is the ordered output of a transcription engine.
// FullText is the ordered concatenation of segment texts.
type TranscriptionResult struct {
	Segments []TranscriptSegment `json:"segments"`
	FullText string              `json:"full_text"`
}

// NewTranscriptionResult normalizes raw segments into a result:
// segments are ordered by start time, confidences clamped to [0,1],
// and FullText derived from the ordered segment texts.
func NewTranscriptionResult(segments []TranscriptSegment) *TranscriptionResult {
	normalized := make([]TranscriptSegment, len(segments))
	copy(normalized, segments)

	sort.SliceStable(normalized, func(i, j int) bool {
		return normalized[i].StartTime < normalized[j].StartTime
	})

	texts := make([]string, 0, len(normalized))
	for i := range normalized {
		if normalized[i].Confidence < 0 {
			normalized[i].Confidence = 0
		}
		if normalized[i].Confidence > 1 {
			normalized[i].Confidence = 1
		}
		if normalized[i].EndTime < normalized[i].StartTime {
			normalized[i].EndTime = normalized[i].StartTime
		}
		if text := strings.TrimSpace(normalized[i].Text); text != "" {
			texts = append(texts, text)
		}
	}

	return &TranscriptionResult{
		Segments: normalized,
		FullText: strings.Join(texts, " "),
	}
}

// IsEmpty reports whether the result contains no recognized speech
func (r *TranscriptionResult) IsEmpty() bool {
	return r == nil || strings.TrimSpace(r.FullText) == ""
}

// Duration returns the end time of the last segment
func (r *TranscriptionResult) Duration() time.Duration {
	if r == nil || len(r.Segments) == 0 {
		return 0
	}
	return r.Segments[len(r.Segments)-1].EndTime
}

// WordCount returns the number of whitespace-separated words recognized
func (r *TranscriptionResult) WordCount() int {
	if r == nil {
		return 0
	}
	return len(strings.Fields(r.FullText))
}
