package tts

import (
	"context"
	"fmt"
	"strings"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"audiopipe-server/pkg/config"
	"audiopipe-server/pkg/errors"
)

// wordsPerMinute is the approximate speaking rate of the neural voices,
// used to estimate playback duration without decoding the MP3.
const wordsPerMinute = 150

// GoogleSynthesizer renders summaries through the Google Cloud
// Text-to-Speech API as MP3.
type GoogleSynthesizer struct {
	logger *logrus.Logger
	client *texttospeech.Client
	config config.TTSConfig
}

// NewGoogleSynthesizer creates a Google Cloud TTS synthesizer
func NewGoogleSynthesizer(logger *logrus.Logger, cfg config.TTSConfig) *GoogleSynthesizer {
	return &GoogleSynthesizer{
		logger: logger,
		config: cfg,
	}
}

// Name returns the synthesizer name
func (s *GoogleSynthesizer) Name() string {
	return "google"
}

// Initialize creates the Text-to-Speech client
func (s *GoogleSynthesizer) Initialize() error {
	var clientOptions []option.ClientOption
	if s.config.CredentialsFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(s.config.CredentialsFile))
		s.logger.WithField("credentials_file", s.config.CredentialsFile).Debug("Using Google TTS credentials file")
	}

	var err error
	s.client, err = texttospeech.NewClient(context.Background(), clientOptions...)
	if err != nil {
		s.logger.WithError(err).Error("Failed to create Google Text-to-Speech client")
		return fmt.Errorf("failed to create Google Text-to-Speech client: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"language": s.config.LanguageCode,
		"voice":    s.config.Voice,
	}).Info("Google Text-to-Speech client initialized successfully")
	return nil
}

// Close releases the underlying client
func (s *GoogleSynthesizer) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Synthesize renders text as MP3 audio
func (s *GoogleSynthesizer) Synthesize(ctx context.Context, text string) (*SynthesisResult, error) {
	if s.client == nil {
		return nil, errors.NewSynthesis("Google Text-to-Speech client is not initialized", nil)
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.NewSynthesis("nothing to synthesize", nil)
	}

	start := time.Now()
	resp, err := s.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: s.config.LanguageCode,
			Name:         s.config.Voice,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
		},
	})
	if err != nil {
		return nil, errors.NewSynthesis("speech synthesis failed",
			map[string]interface{}{"error": err.Error()})
	}
	if len(resp.AudioContent) == 0 {
		return nil, errors.NewSynthesis("speech synthesis returned no audio", nil)
	}

	s.logger.WithFields(logrus.Fields{
		"voice":       s.config.Voice,
		"text_length": len(text),
		"audio_bytes": len(resp.AudioContent),
		"latency":     time.Since(start),
	}).Debug("Summary audio synthesized")

	return &SynthesisResult{
		Audio:       resp.AudioContent,
		ContentType: "audio/mpeg",
		Duration:    estimateDuration(text),
	}, nil
}

// estimateDuration approximates playback time from the word count
func estimateDuration(text string) time.Duration {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return time.Duration(float64(words) / wordsPerMinute * float64(time.Minute))
}
