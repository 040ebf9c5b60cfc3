package redact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"
)

// NERDetector detects names and addresses. When an endpoint is
// configured it calls a remote named-entity model service; otherwise a
// local heuristic recognizer covers the common spoken-introduction and
// street-address shapes. Remote failures surface as errors so the
// orchestrator can apply the redaction-failure policy.
type NERDetector struct {
	logger   *logrus.Logger
	endpoint string
	client   *http.Client

	nameTriggers *regexp.Regexp
	honorifics   *regexp.Regexp
	addresses    *regexp.Regexp
}

// NewNERDetector creates a names/addresses detector. An empty endpoint
// selects the local heuristic recognizer.
func NewNERDetector(logger *logrus.Logger, endpoint string) *NERDetector {
	return &NERDetector{
		logger:   logger,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},

		// "my name is John Smith", "this is Jane Doe calling"
		nameTriggers: regexp.MustCompile(`(?i)(?:my name is|my name's|this is|i am|i'm|speaking with|on behalf of)[\s]+((?:[A-Z][a-z]+)(?:\s+[A-Z][a-z]+){0,2})`),

		// "Dr. Smith", "Mrs. Jane Doe"
		honorifics: regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Dr|Prof)\.?\s+((?:[A-Z][a-z]+)(?:\s+[A-Z][a-z]+)?)`),

		// "123 Main Street", "4 Elm Grove Ave"
		addresses: regexp.MustCompile(`\b\d{1,5}\s+(?:[A-Z][a-z]+\s+){1,3}(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct|Place|Pl|Way)\b`),
	}
}

// Name returns the detector name
func (d *NERDetector) Name() string {
	return "ner"
}

// Detect scans text for name and address entities
func (d *NERDetector) Detect(ctx context.Context, text string) ([]Entity, error) {
	if d.endpoint != "" {
		return d.detectRemote(ctx, text)
	}
	return d.detectLocal(ctx, text)
}

// nerRequest is the payload sent to the remote entity service
type nerRequest struct {
	Text string `json:"text"`
}

// nerResponse mirrors the remote entity service's result shape
type nerResponse struct {
	Entities []struct {
		Label string `json:"label"`
		Start int    `json:"start"`
		End   int    `json:"end"`
	} `json:"entities"`
}

func (d *NERDetector) detectRemote(ctx context.Context, text string) ([]Entity, error) {
	body, err := json.Marshal(nerRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to encode NER request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create NER request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("NER service call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("NER service returned status %d", resp.StatusCode)
	}

	var result nerResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode NER response: %w", err)
	}

	entities := make([]Entity, 0, len(result.Entities))
	for _, e := range result.Entities {
		if e.Start < 0 || e.End > len(text) || e.Start >= e.End {
			d.logger.WithFields(logrus.Fields{
				"label": e.Label,
				"start": e.Start,
				"end":   e.End,
			}).Warn("Discarding NER entity with invalid span")
			continue
		}
		entities = append(entities, Entity{
			Type:         nerLabelToType(e.Label),
			Start:        e.Start,
			End:          e.End,
			OriginalText: text[e.Start:e.End],
		})
	}

	return entities, nil
}

func (d *NERDetector) detectLocal(ctx context.Context, text string) ([]Entity, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var entities []Entity

	for _, match := range d.nameTriggers.FindAllStringSubmatchIndex(text, -1) {
		// Submatch 1 is the name itself, not the trigger phrase
		start, end := match[2], match[3]
		entities = append(entities, Entity{
			Type:         TypeName,
			Start:        start,
			End:          end,
			OriginalText: text[start:end],
		})
	}

	for _, match := range d.honorifics.FindAllStringSubmatchIndex(text, -1) {
		start, end := match[2], match[3]
		candidate := Entity{
			Type:         TypeName,
			Start:        start,
			End:          end,
			OriginalText: text[start:end],
		}
		if overlapsAny(candidate, entities) {
			continue
		}
		entities = append(entities, candidate)
	}

	for _, loc := range d.addresses.FindAllStringIndex(text, -1) {
		entities = append(entities, Entity{
			Type:         TypeAddress,
			Start:        loc[0],
			End:          loc[1],
			OriginalText: text[loc[0]:loc[1]],
		})
	}

	return entities, nil
}

func nerLabelToType(label string) EntityType {
	switch label {
	case "PERSON", "PER", "NAME":
		return TypeName
	case "GPE", "LOC", "ADDRESS", "FAC":
		return TypeAddress
	case "PHONE":
		return TypePhone
	case "EMAIL":
		return TypeEmail
	default:
		return TypeOther
	}
}
