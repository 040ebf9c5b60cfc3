package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"audiopipe-server/pkg/config"
	"audiopipe-server/pkg/errors"

	"github.com/sirupsen/logrus"
)

const defaultOpenAIURL = "https://api.openai.com/v1/chat/completions"

const summaryPrompt = "You are a call-center analyst. Summarize the following transcript " +
	"in at most three sentences. Preserve any [REDACTED:*] placeholders exactly as written " +
	"and never guess at what they hide."

// OpenAISummarizer produces abstractive summaries through the OpenAI
// chat completions API. Inputs shorter than the configured minimum are
// returned verbatim without an API call.
type OpenAISummarizer struct {
	logger         *logrus.Logger
	apiKey         string
	apiURL         string
	model          string
	minInputLength int
	client         *http.Client
}

// NewOpenAISummarizer creates an OpenAI-backed summarizer
func NewOpenAISummarizer(logger *logrus.Logger, cfg config.SummaryConfig) *OpenAISummarizer {
	return &OpenAISummarizer{
		logger:         logger,
		apiKey:         cfg.OpenAIAPIKey,
		apiURL:         defaultOpenAIURL,
		model:          cfg.OpenAIModel,
		minInputLength: cfg.MinInputLength,
		client:         &http.Client{Timeout: 60 * time.Second},
	}
}

// Name returns the summarizer name
func (s *OpenAISummarizer) Name() string {
	return "openai"
}

// Initialize verifies the API key is configured
func (s *OpenAISummarizer) Initialize() error {
	if s.apiKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is not set in the environment")
	}
	s.logger.Info("OpenAI summarizer initialized successfully")
	return nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Summarize condenses text through the chat completions API
func (s *OpenAISummarizer) Summarize(ctx context.Context, text string) (*Result, error) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < s.minInputLength {
		return &Result{Text: trimmed, SourceHash: hashSource(text)}, nil
	}

	body, err := json.Marshal(chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: summaryPrompt},
			{Role: "user", Content: trimmed},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode summarization request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create summarization request")
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.NewSummarization("summarization API call failed",
			map[string]interface{}{"error": err.Error()})
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.NewSummarization(
			fmt.Sprintf("summarization API returned status %d", resp.StatusCode),
			map[string]interface{}{"body": string(payload)})
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.NewSummarization("failed to decode summarization response",
			map[string]interface{}{"error": err.Error()})
	}
	if len(result.Choices) == 0 {
		return nil, errors.NewSummarization("summarization response contained no choices", nil)
	}

	summary := strings.TrimSpace(result.Choices[0].Message.Content)
	if summary == "" {
		return nil, errors.NewSummarization("summarization response was empty", nil)
	}

	s.logger.WithFields(logrus.Fields{
		"model":          s.model,
		"input_length":   len(trimmed),
		"summary_length": len(summary),
	}).Debug("Summary generated")

	return &Result{Text: summary, SourceHash: hashSource(text)}, nil
}
