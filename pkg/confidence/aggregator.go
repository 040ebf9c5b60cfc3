package confidence

import (
	"audiopipe-server/pkg/config"
	"audiopipe-server/pkg/stt"
)

// Level is the discretized transcription-quality category
type Level string

const (
	LevelLow    Level = "Low"
	LevelMedium Level = "Medium"
	LevelHigh   Level = "High"
)

// Score is the aggregated transcription confidence
type Score struct {
	Value float64 `json:"value"`
	Level Level   `json:"level"`
}

// Aggregator reduces segment-level confidence into a single score and
// level. It is a pure function of the transcription result and the
// configured thresholds.
type Aggregator struct {
	highThreshold   float64
	mediumThreshold float64
}

// NewAggregator creates an aggregator with the configured thresholds
func NewAggregator(cfg *config.ConfidenceConfig) *Aggregator {
	return &Aggregator{
		highThreshold:   cfg.HighThreshold,
		mediumThreshold: cfg.MediumThreshold,
	}
}

// Aggregate computes the duration-weighted mean of segment confidences.
// Segments are weighted by their duration so that long low-confidence
// segments are not diluted by many short ones. Zero-duration segments
// fall back to uniform weighting. Empty input yields {0, Low}.
func (a *Aggregator) Aggregate(result *stt.TranscriptionResult) Score {
	if result == nil || len(result.Segments) == 0 {
		return Score{Value: 0, Level: LevelLow}
	}

	var weightedSum, totalWeight float64
	for _, seg := range result.Segments {
		weight := (seg.EndTime - seg.StartTime).Seconds()
		if weight < 0 {
			weight = 0
		}
		weightedSum += seg.Confidence * weight
		totalWeight += weight
	}

	var value float64
	if totalWeight > 0 {
		value = weightedSum / totalWeight
	} else {
		// All segments are zero-length; weight them equally
		var sum float64
		for _, seg := range result.Segments {
			sum += seg.Confidence
		}
		value = sum / float64(len(result.Segments))
	}

	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}

	return Score{Value: value, Level: a.levelFor(value)}
}

func (a *Aggregator) levelFor(value float64) Level {
	switch {
	case value >= a.highThreshold:
		return LevelHigh
	case value >= a.mediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}
