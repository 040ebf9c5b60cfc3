package redact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternDetectorPhone(t *testing.T) {
	detector := NewPatternDetector()

	tests := []struct {
		name string
		text string
		want string
	}{
		{"dashed", "Call me at 555-123-4567 tomorrow", "555-123-4567"},
		{"dotted", "Call me at 555.123.4567 tomorrow", "555.123.4567"},
		{"parenthesized", "Call me at (555) 123-4567 tomorrow", "(555) 123-4567"},
		{"country code", "Call me at +1 555-123-4567 tomorrow", "+1 555-123-4567"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entities, err := detector.Detect(context.Background(), tt.text)
			require.NoError(t, err)
			require.Len(t, entities, 1)
			assert.Equal(t, TypePhone, entities[0].Type)
			assert.Equal(t, tt.want, entities[0].OriginalText)
		})
	}
}

func TestPatternDetectorMultiplePhones(t *testing.T) {
	detector := NewPatternDetector()

	entities, err := detector.Detect(context.Background(), "Call 555-123-4567 or 555-987-6543")
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "555-123-4567", entities[0].OriginalText)
	assert.Equal(t, "555-987-6543", entities[1].OriginalText)
}

func TestPatternDetectorEmail(t *testing.T) {
	detector := NewPatternDetector()

	entities, err := detector.Detect(context.Background(), "Reach me at john.smith+work@example.co.uk please")
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, TypeEmail, entities[0].Type)
	assert.Equal(t, "john.smith+work@example.co.uk", entities[0].OriginalText)
}

func TestPatternDetectorSSN(t *testing.T) {
	detector := NewPatternDetector()

	entities, err := detector.Detect(context.Background(), "My social is 123-45-6789 okay")
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, TypeID, entities[0].Type)
	assert.Equal(t, "123-45-6789", entities[0].OriginalText)
}

func TestPatternDetectorCreditCardShadowsPhone(t *testing.T) {
	detector := NewPatternDetector()

	// A 16-digit card number contains phone-shaped substrings; the card
	// pattern runs first and must shadow them.
	entities, err := detector.Detect(context.Background(), "Card number 4111-1111-1111-1111 on file")
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, TypeID, entities[0].Type)
	assert.Equal(t, "4111-1111-1111-1111", entities[0].OriginalText)
}

func TestPatternDetectorOffsets(t *testing.T) {
	detector := NewPatternDetector()

	text := "Call me at 555-123-4567."
	entities, err := detector.Detect(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "555-123-4567", text[entities[0].Start:entities[0].End])
}

func TestPatternDetectorNoPII(t *testing.T) {
	detector := NewPatternDetector()

	entities, err := detector.Detect(context.Background(), "The meeting moved to three thirty on Thursday.")
	require.NoError(t, err)
	assert.Empty(t, entities)
}

func TestPatternDetectorCanceledContext(t *testing.T) {
	detector := NewPatternDetector()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := detector.Detect(ctx, "Call 555-123-4567")
	assert.Error(t, err)
}
