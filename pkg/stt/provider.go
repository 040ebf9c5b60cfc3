package stt

import (
	"context"
	"time"

	"audiopipe-server/pkg/ingest"

	"github.com/sirupsen/logrus"
)

// Provider defines the interface for speech-to-text providers
type Provider interface {
	// Initialize initializes the provider with any required configuration
	Initialize() error

	// Name returns the provider name
	Name() string

	// Transcribe converts a complete decoded audio asset into an ordered
	// transcription result
	Transcribe(ctx context.Context, asset *ingest.AudioAsset) (*TranscriptionResult, error)
}

// ProviderManager manages all speech-to-text providers
type ProviderManager struct {
	logger          *logrus.Logger
	providers       map[string]Provider
	defaultProvider string
}

// NewProviderManager creates a new provider manager
func NewProviderManager(logger *logrus.Logger, defaultProvider string) *ProviderManager {
	return &ProviderManager{
		logger:          logger,
		providers:       make(map[string]Provider),
		defaultProvider: defaultProvider,
	}
}

// RegisterProvider registers a speech-to-text provider
func (m *ProviderManager) RegisterProvider(provider Provider) error {
	if err := provider.Initialize(); err != nil {
		m.logger.WithFields(logrus.Fields{
			"provider": provider.Name(),
			"error":    err,
		}).Error("Failed to initialize speech-to-text provider")
		return err
	}

	m.providers[provider.Name()] = provider
	m.logger.WithField("provider", provider.Name()).Info("Registered speech-to-text provider")

	return nil
}

// GetProvider returns a provider by name
func (m *ProviderManager) GetProvider(name string) (Provider, bool) {
	provider, exists := m.providers[name]
	return provider, exists
}

// GetDefaultProvider returns the default provider
func (m *ProviderManager) GetDefaultProvider() (Provider, bool) {
	return m.GetProvider(m.defaultProvider)
}

// Transcribe routes an asset to the named provider, falling back to the
// default provider when the requested one is not registered.
func (m *ProviderManager) Transcribe(ctx context.Context, providerName string, asset *ingest.AudioAsset) (*TranscriptionResult, error) {
	startTime := time.Now()

	provider, exists := m.GetProvider(providerName)
	if !exists {
		m.logger.WithFields(logrus.Fields{
			"provider":         providerName,
			"default_provider": m.defaultProvider,
		}).Warn("Provider not found, falling back to default")

		provider, exists = m.GetDefaultProvider()
		if !exists {
			if len(m.providers) == 0 {
				return nil, ErrNoProviderAvailable
			}
			return nil, ErrProviderNotFound
		}
	}

	result, err := provider.Transcribe(ctx, asset)

	elapsed := time.Since(startTime)
	m.logger.WithFields(logrus.Fields{
		"provider":    provider.Name(),
		"duration_ms": elapsed.Milliseconds(),
		"error":       err != nil,
	}).Info("Transcription completed")

	return result, err
}
