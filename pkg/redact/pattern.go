package redact

import (
	"context"
	"regexp"
)

// PatternDetector detects structured identifiers with compiled regular
// expressions: phone numbers, email addresses, SSNs and credit card
// numbers. It has no external dependencies and cannot fail at runtime.
type PatternDetector struct {
	patterns []typedPattern
}

type typedPattern struct {
	entityType EntityType
	regex      *regexp.Regexp
}

// NewPatternDetector compiles the structured-identifier patterns
func NewPatternDetector() *PatternDetector {
	return &PatternDetector{
		patterns: []typedPattern{
			// Credit cards before phone: a 16-digit card number contains
			// phone-shaped substrings, and the longer match must be the
			// candidate offered to the overlap resolver.
			// Visa: 4xxx..., MasterCard: 5xxx..., AmEx: 3xxx (15 digits), Discover: 6xxx...
			{TypeID, regexp.MustCompile(`\b(?:4\d{3}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}|5\d{3}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}|3\d{3}[-\s]?\d{6}[-\s]?\d{5}|6\d{3}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4})\b`)},

			// SSN: 123-45-6789, 123 45 6789, 123456789
			{TypeID, regexp.MustCompile(`\b\d{3}[-\s]?\d{2}[-\s]?\d{4}\b`)},

			// Phone: (123) 456-7890, 123-456-7890, 123.456.7890, +1 variants
			{TypePhone, regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}\b`)},

			// Email
			{TypeEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
		},
	}
}

// Name returns the detector name
func (d *PatternDetector) Name() string {
	return "pattern"
}

// Detect scans text with each compiled pattern. Matches from earlier
// patterns shadow later ones over the same span, so an SSN is not also
// reported as a phone number.
func (d *PatternDetector) Detect(ctx context.Context, text string) ([]Entity, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var entities []Entity
	for _, pattern := range d.patterns {
		for _, loc := range pattern.regex.FindAllStringIndex(text, -1) {
			candidate := Entity{
				Type:         pattern.entityType,
				Start:        loc[0],
				End:          loc[1],
				OriginalText: text[loc[0]:loc[1]],
			}
			if overlapsAny(candidate, entities) {
				continue
			}
			entities = append(entities, candidate)
		}
	}

	return entities, nil
}

func overlapsAny(candidate Entity, existing []Entity) bool {
	for _, e := range existing {
		if candidate.overlaps(e) {
			return true
		}
	}
	return false
}
