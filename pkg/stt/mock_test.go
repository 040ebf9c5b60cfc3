package stt

import (
	"context"
	"testing"
	"time"

	"audiopipe-server/pkg/ingest"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func speechAsset(d time.Duration) *ingest.AudioAsset {
	data := make([]byte, 1600)
	for i := range data {
		data[i] = byte(i % 7)
	}
	return &ingest.AudioAsset{
		Data:         data,
		SampleRate:   16000,
		Channels:     1,
		Duration:     d,
		SourceFormat: ingest.FormatWAV,
	}
}

func TestMockProviderTranscribes(t *testing.T) {
	p := NewMockProvider(testLogger())
	require.NoError(t, p.Initialize())

	result, err := p.Transcribe(context.Background(), speechAsset(4*time.Second))
	require.NoError(t, err)

	assert.False(t, result.IsEmpty())
	assert.NotEmpty(t, result.Segments)
	for _, seg := range result.Segments {
		assert.GreaterOrEqual(t, seg.Confidence, 0.0)
		assert.LessOrEqual(t, seg.Confidence, 1.0)
	}
	for i := 1; i < len(result.Segments); i++ {
		assert.GreaterOrEqual(t, result.Segments[i].StartTime, result.Segments[i-1].StartTime)
	}
}

func TestMockProviderSilentAudio(t *testing.T) {
	p := NewMockProvider(testLogger())

	silent := &ingest.AudioAsset{
		Data:         make([]byte, 32000),
		SampleRate:   16000,
		Channels:     1,
		Duration:     time.Second,
		SourceFormat: ingest.FormatWAV,
	}

	result, err := p.Transcribe(context.Background(), silent)
	require.NoError(t, err)
	assert.True(t, result.IsEmpty())
	assert.Empty(t, result.Segments)
}

func TestMockProviderForcedError(t *testing.T) {
	p := NewMockProvider(testLogger())
	p.SetError(context.DeadlineExceeded)

	_, err := p.Transcribe(context.Background(), speechAsset(time.Second))
	assert.Error(t, err)
}

func TestProviderManagerFallback(t *testing.T) {
	logger := testLogger()
	manager := NewProviderManager(logger, "mock")
	require.NoError(t, manager.RegisterProvider(NewMockProvider(logger)))

	// Unknown provider falls back to the default
	result, err := manager.Transcribe(context.Background(), "nonexistent", speechAsset(2*time.Second))
	require.NoError(t, err)
	assert.False(t, result.IsEmpty())
}

func TestProviderManagerNoProviders(t *testing.T) {
	manager := NewProviderManager(testLogger(), "mock")

	_, err := manager.Transcribe(context.Background(), "mock", speechAsset(time.Second))
	assert.ErrorIs(t, err, ErrNoProviderAvailable)
}

func TestProviderManagerUnknownDefault(t *testing.T) {
	logger := testLogger()
	manager := NewProviderManager(logger, "google")
	require.NoError(t, manager.RegisterProvider(NewMockProvider(logger)))

	// Neither the requested name nor the default is registered, but the
	// registry itself is not empty
	_, err := manager.Transcribe(context.Background(), "amazon", speechAsset(time.Second))
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

// countingProvider tracks Initialize calls made through the manager
type countingProvider struct {
	inits   int
	initErr error
}

func (p *countingProvider) Initialize() error {
	p.inits++
	return p.initErr
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) Transcribe(ctx context.Context, asset *ingest.AudioAsset) (*TranscriptionResult, error) {
	return NewTranscriptionResult(nil), nil
}

func TestRegisterProviderInitializesOnce(t *testing.T) {
	manager := NewProviderManager(testLogger(), "counting")

	p := &countingProvider{}
	require.NoError(t, manager.RegisterProvider(p))
	assert.Equal(t, 1, p.inits)

	_, ok := manager.GetProvider("counting")
	assert.True(t, ok)
}

func TestRegisterProviderRejectsFailedInitialize(t *testing.T) {
	manager := NewProviderManager(testLogger(), "counting")

	p := &countingProvider{initErr: ErrInitializationFailed}
	assert.Error(t, manager.RegisterProvider(p))

	_, ok := manager.GetProvider("counting")
	assert.False(t, ok)
}
