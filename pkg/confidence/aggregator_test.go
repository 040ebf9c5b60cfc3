package confidence

import (
	"testing"
	"time"

	"audiopipe-server/pkg/config"
	"audiopipe-server/pkg/stt"

	"github.com/stretchr/testify/assert"
)

func defaultAggregator() *Aggregator {
	return NewAggregator(&config.ConfidenceConfig{
		HighThreshold:   0.85,
		MediumThreshold: 0.6,
	})
}

func TestAggregateEmptyInput(t *testing.T) {
	a := defaultAggregator()

	score := a.Aggregate(nil)
	assert.Equal(t, 0.0, score.Value)
	assert.Equal(t, LevelLow, score.Level)

	score = a.Aggregate(stt.NewTranscriptionResult(nil))
	assert.Equal(t, 0.0, score.Value)
	assert.Equal(t, LevelLow, score.Level)
}

func TestAggregateDurationWeighting(t *testing.T) {
	a := defaultAggregator()

	// A long low-confidence segment must dominate many short
	// high-confidence ones.
	segments := []stt.TranscriptSegment{
		{Text: "long", StartTime: 0, EndTime: 60 * time.Second, Confidence: 0.2},
		{Text: "short1", StartTime: 60 * time.Second, EndTime: 61 * time.Second, Confidence: 1.0},
		{Text: "short2", StartTime: 61 * time.Second, EndTime: 62 * time.Second, Confidence: 1.0},
	}

	score := a.Aggregate(stt.NewTranscriptionResult(segments))

	// Weighted mean: (0.2*60 + 1.0*1 + 1.0*1) / 62 ≈ 0.226
	assert.InDelta(t, 14.0/62.0, score.Value, 1e-9)
	assert.Equal(t, LevelLow, score.Level)

	// A count-based mean would have been 0.733 (Medium); duration
	// weighting must prevent that dilution.
	assert.Less(t, score.Value, 0.6)
}

func TestAggregateZeroDurationSegments(t *testing.T) {
	a := defaultAggregator()

	segments := []stt.TranscriptSegment{
		{Text: "a", Confidence: 0.9},
		{Text: "b", Confidence: 0.7},
	}

	score := a.Aggregate(stt.NewTranscriptionResult(segments))
	assert.InDelta(t, 0.8, score.Value, 1e-9)
	assert.Equal(t, LevelMedium, score.Level)
}

func TestAggregateBounds(t *testing.T) {
	a := defaultAggregator()

	segments := []stt.TranscriptSegment{
		{Text: "a", StartTime: 0, EndTime: time.Second, Confidence: 1.0},
	}
	score := a.Aggregate(stt.NewTranscriptionResult(segments))
	assert.GreaterOrEqual(t, score.Value, 0.0)
	assert.LessOrEqual(t, score.Value, 1.0)
	assert.Equal(t, LevelHigh, score.Level)
}

func TestLevelThresholds(t *testing.T) {
	a := defaultAggregator()

	testCases := []struct {
		confidence float64
		expected   Level
	}{
		{0.0, LevelLow},
		{0.59, LevelLow},
		{0.6, LevelMedium},
		{0.84, LevelMedium},
		{0.85, LevelHigh},
		{1.0, LevelHigh},
	}

	for _, tc := range testCases {
		segments := []stt.TranscriptSegment{
			{Text: "x", StartTime: 0, EndTime: time.Second, Confidence: tc.confidence},
		}
		score := a.Aggregate(stt.NewTranscriptionResult(segments))
		assert.Equal(t, tc.expected, score.Level, "confidence %.2f", tc.confidence)
	}
}

func TestCustomThresholds(t *testing.T) {
	a := NewAggregator(&config.ConfidenceConfig{HighThreshold: 0.9, MediumThreshold: 0.5})

	segments := []stt.TranscriptSegment{
		{Text: "x", StartTime: 0, EndTime: time.Second, Confidence: 0.87},
	}
	score := a.Aggregate(stt.NewTranscriptionResult(segments))
	assert.Equal(t, LevelMedium, score.Level)
}
