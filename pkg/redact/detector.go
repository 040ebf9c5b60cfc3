package redact

import (
	"context"
)

// EntityType classifies a detected PII entity
type EntityType string

const (
	TypeName    EntityType = "NAME"
	TypePhone   EntityType = "PHONE"
	TypeEmail   EntityType = "EMAIL"
	TypeAddress EntityType = "ADDRESS"
	TypeID      EntityType = "ID"
	TypeOther   EntityType = "OTHER"
)

// Entity is a detected PII instance. Start and End are byte offsets
// into the original text, half-open [Start, End).
type Entity struct {
	Type         EntityType `json:"type"`
	Start        int        `json:"start"`
	End          int        `json:"end"`
	OriginalText string     `json:"-"`
}

// Length returns the span length in bytes
func (e Entity) Length() int {
	return e.End - e.Start
}

// overlaps reports whether two spans share any position
func (e Entity) overlaps(other Entity) bool {
	return e.Start < other.End && other.Start < e.End
}

// Detector is one PII detection strategy. Implementations return
// entities with offsets against the input text; an error indicates
// detector-infrastructure failure (never "no entities found").
type Detector interface {
	// Name returns the detector name
	Name() string

	// Detect scans text for PII entities
	Detect(ctx context.Context, text string) ([]Entity, error)
}

// DetectorFunc adapts a function to the Detector interface
type DetectorFunc struct {
	DetectorName string
	Fn           func(ctx context.Context, text string) ([]Entity, error)
}

// Name returns the detector name
func (d DetectorFunc) Name() string { return d.DetectorName }

// Detect calls the wrapped function
func (d DetectorFunc) Detect(ctx context.Context, text string) ([]Entity, error) {
	return d.Fn(ctx, text)
}
