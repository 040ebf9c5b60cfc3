package redact

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"audiopipe-server/pkg/errors"
	"audiopipe-server/pkg/metrics"

	"github.com/sirupsen/logrus"
)

// placeholderRegex matches spans already redacted in a previous pass,
// which guarantees that redaction is idempotent.
var placeholderRegex = regexp.MustCompile(`\[REDACTED:[A-Z]+\]`)

// Result is the output of one redaction pass. Entities are ordered by
// span start, spans never overlap, and offsets refer to the original
// (input) text.
type Result struct {
	RedactedText string   `json:"redacted_text"`
	Entities     []Entity `json:"entities"`
}

// HasPII reports whether any entity was detected
func (r *Result) HasPII() bool {
	return r != nil && len(r.Entities) > 0
}

// Redactor runs all registered detector strategies over a transcript
// and replaces every retained entity span with a type-tagged
// placeholder. Overlapping spans are resolved by a fixed tie-break: the
// longer span wins; on equal length, the earlier-registered detector.
type Redactor struct {
	logger    *logrus.Logger
	detectors []Detector
}

// NewRedactor creates a redactor over the given detectors. Detector
// registration order is the overlap tie-break order.
func NewRedactor(logger *logrus.Logger, detectors ...Detector) *Redactor {
	return &Redactor{
		logger:    logger,
		detectors: detectors,
	}
}

// candidate pairs an entity with the index of the detector that
// produced it, for tie-breaking.
type candidate struct {
	Entity
	detectorIndex int
}

// Redact detects PII in text and returns the redacted text plus the
// retained entity list. A detector error is an infrastructure failure
// and fails the whole call; the orchestrator decides whether that
// fails the job or degrades it.
func (r *Redactor) Redact(ctx context.Context, text string) (*Result, error) {
	var candidates []candidate

	for i, detector := range r.detectors {
		entities, err := detector.Detect(ctx, text)
		if err != nil {
			r.logger.WithError(err).WithField("detector", detector.Name()).Error("PII detector failed")
			return nil, errors.NewRedaction(
				fmt.Sprintf("detector %q unavailable", detector.Name()),
				map[string]interface{}{"detector": detector.Name()},
			)
		}
		for _, e := range entities {
			candidates = append(candidates, candidate{Entity: e, detectorIndex: i})
		}
	}

	// Spans already redacted in a previous pass are never candidates
	placeholders := placeholderRegex.FindAllStringIndex(text, -1)
	retained := resolveOverlaps(filterPlaceholders(candidates, placeholders))

	result := &Result{
		RedactedText: applyPlaceholders(text, retained),
		Entities:     retained,
	}

	if result.HasPII() {
		byType := make(map[EntityType]int)
		for _, e := range retained {
			byType[e.Type]++
			if metrics.PIIEntitiesDetected != nil {
				metrics.PIIEntitiesDetected.WithLabelValues(string(e.Type)).Inc()
			}
		}
		r.logger.WithField("entities", byType).Info("PII entities redacted")
	}

	return result, nil
}

// filterPlaceholders drops candidates overlapping an existing
// [REDACTED:*] placeholder in the input.
func filterPlaceholders(candidates []candidate, placeholders [][]int) []candidate {
	if len(placeholders) == 0 {
		return candidates
	}

	kept := candidates[:0]
	for _, c := range candidates {
		overlapping := false
		for _, p := range placeholders {
			if c.Start < p[1] && p[0] < c.End {
				overlapping = true
				break
			}
		}
		if !overlapping {
			kept = append(kept, c)
		}
	}
	return kept
}

// resolveOverlaps selects a non-overlapping entity set. Candidates are
// ranked longer-span-first, then by detector registration order, then
// by position; each is kept only if it does not overlap an already
// kept entity. The survivors are returned ordered by span start.
func resolveOverlaps(candidates []candidate) []Entity {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Length() != candidates[j].Length() {
			return candidates[i].Length() > candidates[j].Length()
		}
		if candidates[i].detectorIndex != candidates[j].detectorIndex {
			return candidates[i].detectorIndex < candidates[j].detectorIndex
		}
		return candidates[i].Start < candidates[j].Start
	})

	var retained []Entity
	for _, c := range candidates {
		if overlapsAny(c.Entity, retained) {
			continue
		}
		retained = append(retained, c.Entity)
	}

	sort.Slice(retained, func(i, j int) bool {
		return retained[i].Start < retained[j].Start
	})

	return retained
}

// applyPlaceholders rewrites text replacing each entity span with its
// placeholder. Entities must be non-overlapping and ordered by start.
func applyPlaceholders(text string, entities []Entity) string {
	if len(entities) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))

	cursor := 0
	for _, e := range entities {
		b.WriteString(text[cursor:e.Start])
		b.WriteString(Placeholder(e.Type))
		cursor = e.End
	}
	b.WriteString(text[cursor:])

	return b.String()
}

// Placeholder returns the type-tagged replacement token for an entity type
func Placeholder(t EntityType) string {
	return fmt.Sprintf("[REDACTED:%s]", t)
}
