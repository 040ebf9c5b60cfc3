package stt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming/types"
	"github.com/sirupsen/logrus"

	"audiopipe-server/pkg/config"
	"audiopipe-server/pkg/errors"
	"audiopipe-server/pkg/ingest"
)

// amazonChunkSize is the PCM payload size per audio event
const amazonChunkSize = 8 * 1024

// AmazonProvider implements the Provider interface for Amazon Transcribe.
// The streaming API is the only ingest path Transcribe offers without a
// staging bucket, so the complete asset is fed through it in chunks and
// the final (non-partial) results are collected into segments.
type AmazonProvider struct {
	logger   *logrus.Logger
	client   *transcribestreaming.Client
	config   *config.AmazonSTTConfig
	language string
	mutex    sync.RWMutex
}

// NewAmazonProvider creates a new Amazon Transcribe provider
func NewAmazonProvider(logger *logrus.Logger, cfg *config.AmazonSTTConfig, language string) *AmazonProvider {
	return &AmazonProvider{
		logger:   logger,
		config:   cfg,
		language: language,
	}
}

// Name returns the provider name
func (p *AmazonProvider) Name() string {
	return "amazon"
}

// Initialize initializes the Amazon Transcribe client
func (p *AmazonProvider) Initialize() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.config == nil {
		return fmt.Errorf("Amazon STT configuration is required")
	}

	if !p.config.Enabled {
		p.logger.Info("Amazon STT is disabled, skipping initialization")
		return nil
	}

	if p.config.AccessKeyID == "" || p.config.SecretAccessKey == "" {
		return fmt.Errorf("Amazon STT requires AWS access key ID and secret access key")
	}

	region := p.config.Region
	if region == "" {
		region = "us-east-1"
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithRetryMaxAttempts(3),
		awsconfig.WithRetryMode(aws.RetryModeStandard),
		awsconfig.WithCredentialsProvider(aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     p.config.AccessKeyID,
				SecretAccessKey: p.config.SecretAccessKey,
			}, nil
		})),
	)
	if err != nil {
		p.logger.WithError(err).Error("Failed to load AWS configuration")
		return fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	p.client = transcribestreaming.NewFromConfig(cfg)

	p.logger.WithFields(logrus.Fields{
		"region":   region,
		"language": p.language,
	}).Info("Amazon Transcribe provider initialized successfully")

	return nil
}

// Transcribe streams the decoded PCM through Amazon Transcribe and
// assembles the final results into an ordered transcription.
func (p *AmazonProvider) Transcribe(ctx context.Context, asset *ingest.AudioAsset) (*TranscriptionResult, error) {
	p.mutex.RLock()
	client := p.client
	p.mutex.RUnlock()

	if client == nil {
		return nil, ErrInitializationFailed
	}

	if asset.SourceFormat != ingest.FormatWAV {
		return nil, errors.NewValidation(
			fmt.Sprintf("source format %q is not supported by the amazon provider, PCM audio is required", asset.SourceFormat))
	}

	input := &transcribestreaming.StartStreamTranscriptionInput{
		LanguageCode:         types.LanguageCode(p.language),
		MediaSampleRateHertz: aws.Int32(int32(asset.SampleRate)),
		MediaEncoding:        types.MediaEncodingPcm,
	}

	resp, err := client.StartStreamTranscription(ctx, input)
	if err != nil {
		p.logger.WithError(err).Error("Failed to start Amazon Transcribe stream")
		return nil, errors.Wrap(errors.ErrTranscription, "failed to start transcription stream")
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, 2)

	// Audio sender goroutine
	go func() {
		defer func() {
			if closeErr := resp.GetStream().Close(); closeErr != nil {
				p.logger.WithError(closeErr).Debug("Failed to close stream")
			}
		}()

		data := asset.Data
		for offset := 0; offset < len(data); offset += amazonChunkSize {
			select {
			case <-streamCtx.Done():
				return
			default:
			}

			end := offset + amazonChunkSize
			if end > len(data) {
				end = len(data)
			}

			event := &types.AudioStreamMemberAudioEvent{
				Value: types.AudioEvent{AudioChunk: data[offset:end]},
			}
			if sendErr := resp.GetStream().Send(streamCtx, event); sendErr != nil {
				errChan <- sendErr
				return
			}
		}
	}()

	// Response collection on the caller goroutine
	var segments []TranscriptSegment
	for event := range resp.GetStream().Events() {
		transcriptEvent, ok := event.(*types.TranscriptResultStreamMemberTranscriptEvent)
		if !ok || transcriptEvent.Value.Transcript == nil {
			continue
		}

		for _, result := range transcriptEvent.Value.Transcript.Results {
			if result.IsPartial || len(result.Alternatives) == 0 {
				continue
			}
			alt := result.Alternatives[0]
			if alt.Transcript == nil || *alt.Transcript == "" {
				continue
			}

			segments = append(segments, TranscriptSegment{
				Text:       *alt.Transcript,
				StartTime:  secondsToDuration(result.StartTime),
				EndTime:    secondsToDuration(result.EndTime),
				Confidence: averageItemConfidence(alt.Items),
			})
		}
	}

	if streamErr := resp.GetStream().Err(); streamErr != nil {
		p.logger.WithError(streamErr).Error("Amazon Transcribe stream error")
		return nil, errors.Wrap(errors.ErrTranscription, "transcription stream failed")
	}

	select {
	case sendErr := <-errChan:
		p.logger.WithError(sendErr).Error("Failed to send audio to Amazon Transcribe")
		return nil, errors.Wrap(errors.ErrTranscription, "failed to send audio to transcription stream")
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return NewTranscriptionResult(segments), nil
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// averageItemConfidence derives a segment confidence from the word-level
// items. Items without a confidence value (punctuation) are skipped; a
// segment with no scored items reports zero.
func averageItemConfidence(items []types.Item) float64 {
	var sum float64
	var count int
	for _, item := range items {
		if item.Confidence != nil {
			sum += *item.Confidence
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
