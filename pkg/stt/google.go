package stt

import (
	"context"
	"fmt"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"audiopipe-server/pkg/config"
	"audiopipe-server/pkg/errors"
	"audiopipe-server/pkg/ingest"
)

// GoogleProvider implements the Provider interface for Google Speech-to-Text
type GoogleProvider struct {
	logger   *logrus.Logger
	client   *speech.Client
	config   *config.GoogleSTTConfig
	language string
}

// NewGoogleProvider creates a new Google Speech-to-Text provider
func NewGoogleProvider(logger *logrus.Logger, cfg *config.GoogleSTTConfig, language string) *GoogleProvider {
	return &GoogleProvider{
		logger:   logger,
		config:   cfg,
		language: language,
	}
}

// Name returns the provider name
func (p *GoogleProvider) Name() string {
	return "google"
}

// Initialize initializes the Google Speech-to-Text client
func (p *GoogleProvider) Initialize() error {
	if p.config == nil {
		return fmt.Errorf("Google STT configuration is required")
	}

	if !p.config.Enabled {
		p.logger.Info("Google STT is disabled, skipping initialization")
		return nil
	}

	var clientOptions []option.ClientOption

	// Use API key if provided, otherwise use credentials file
	if p.config.APIKey != "" {
		clientOptions = append(clientOptions, option.WithAPIKey(p.config.APIKey))
		p.logger.Debug("Using Google STT API key authentication")
	} else if p.config.CredentialsFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(p.config.CredentialsFile))
		p.logger.WithField("credentials_file", p.config.CredentialsFile).Debug("Using Google STT credentials file")
	} else {
		return fmt.Errorf("Google STT requires either API key or credentials file")
	}

	var err error
	p.client, err = speech.NewClient(context.Background(), clientOptions...)
	if err != nil {
		p.logger.WithError(err).Error("Failed to create Google Speech client")
		return fmt.Errorf("failed to create Google Speech client: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"language":         p.language,
		"model":            p.config.Model,
		"auto_punctuation": p.config.EnableAutomaticPunctuation,
	}).Info("Google Speech-to-Text client initialized successfully")
	return nil
}

// Transcribe sends the complete asset through the synchronous Recognize
// API and converts the per-result alternatives into ordered segments.
func (p *GoogleProvider) Transcribe(ctx context.Context, asset *ingest.AudioAsset) (*TranscriptionResult, error) {
	if p.client == nil {
		return nil, ErrInitializationFailed
	}

	encoding, err := googleEncoding(asset.SourceFormat)
	if err != nil {
		return nil, errors.NewValidation(err.Error())
	}

	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        encoding,
			SampleRateHertz: int32(asset.SampleRate),
			LanguageCode:    p.language,
			Model:           p.config.Model,

			EnableAutomaticPunctuation: p.config.EnableAutomaticPunctuation,
			EnableWordTimeOffsets:      true,
			EnableWordConfidence:       true,
			AudioChannelCount:          int32(asset.Channels),
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: asset.Data},
		},
	}

	resp, err := p.client.Recognize(ctx, req)
	if err != nil {
		p.logger.WithError(err).Error("Google Speech recognize call failed")
		return nil, errors.Wrap(errors.ErrTranscription, "google recognize call failed")
	}

	segments := make([]TranscriptSegment, 0, len(resp.Results))
	var cursor time.Duration

	for _, result := range resp.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		alt := result.Alternatives[0]
		if alt.Transcript == "" {
			continue
		}

		start, end := cursor, cursor
		if len(alt.Words) > 0 {
			start = alt.Words[0].StartTime.AsDuration()
			end = alt.Words[len(alt.Words)-1].EndTime.AsDuration()
		} else if result.ResultEndTime != nil {
			end = result.ResultEndTime.AsDuration()
		}
		cursor = end

		segments = append(segments, TranscriptSegment{
			Text:       alt.Transcript,
			StartTime:  start,
			EndTime:    end,
			Confidence: float64(alt.Confidence),
		})
	}

	transcription := NewTranscriptionResult(segments)

	p.logger.WithFields(logrus.Fields{
		"segments":   len(transcription.Segments),
		"word_count": transcription.WordCount(),
	}).Debug("Google transcription received")

	return transcription, nil
}

func googleEncoding(format ingest.SourceFormat) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch format {
	case ingest.FormatWAV:
		return speechpb.RecognitionConfig_LINEAR16, nil
	case ingest.FormatMP3:
		return speechpb.RecognitionConfig_MP3, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED,
			fmt.Errorf("source format %q is not supported by the google provider", format)
	}
}
