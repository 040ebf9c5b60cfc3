package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"audiopipe-server/pkg/config"
	"audiopipe-server/pkg/confidence"
	httpserver "audiopipe-server/pkg/http"
	"audiopipe-server/pkg/ingest"
	"audiopipe-server/pkg/messaging"
	"audiopipe-server/pkg/metrics"
	"audiopipe-server/pkg/pipeline"
	"audiopipe-server/pkg/redact"
	"audiopipe-server/pkg/storage"
	"audiopipe-server/pkg/stt"
	"audiopipe-server/pkg/summarize"
	"audiopipe-server/pkg/tts"
	"audiopipe-server/pkg/util"

	"github.com/sirupsen/logrus"
)

var (
	logger = logrus.New() // Using logrus for structured logging
)

func main() {
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatalf("Error loading configuration: %v", err)
	}

	configureLogging(cfg)

	metrics.Init(logger)

	transcriber := buildTranscriber(cfg)
	redactor := buildRedactor(cfg)
	summarizer := buildSummarizer(cfg)
	synthesizer := buildSynthesizer(cfg)

	store, outputsDir := buildStore(cfg)

	audit, err := pipeline.NewAuditLog(logger, cfg.Pipeline.AuditLogPath)
	if err != nil {
		logger.Fatalf("Error opening audit log: %v", err)
	}

	var publisher pipeline.EventPublisher
	var amqpPublisher *messaging.AMQPPublisher
	if cfg.Messaging.AMQPUrl != "" {
		amqpPublisher = messaging.NewAMQPPublisher(logger, cfg.Messaging)
		if err := amqpPublisher.Connect(); err != nil {
			// Events are best-effort; the pipeline runs without them
			// while the publisher keeps redialing.
			logger.WithError(err).Warn("AMQP connection failed, retrying in the background")
			go amqpPublisher.Reconnect()
		}
		publisher = amqpPublisher
	}

	orchestrator := pipeline.NewOrchestrator(logger, cfg, pipeline.Deps{
		Validator:   ingest.NewValidator(logger, &cfg.Ingest),
		Transcriber: transcriber,
		Aggregator:  confidence.NewAggregator(&cfg.Confidence),
		Redactor:    redactor,
		Summarizer:  summarizer,
		Synthesizer: synthesizer,
		Store:       store,
		Publisher:   publisher,
		Audit:       audit,
	})

	if err := orchestrator.Start(); err != nil {
		logger.Fatalf("Error starting pipeline orchestrator: %v", err)
	}

	server := httpserver.NewServer(logger, cfg, orchestrator, outputsDir)
	server.Start()

	logStartupConfig(cfg)

	shutdown := util.NewGracefulShutdown(logger, 30*time.Second)
	shutdown.Register(util.ShutdownResource{
		Name:     "http_server",
		Priority: 1,
		Shutdown: server.Shutdown,
	})
	shutdown.Register(util.ShutdownResource{
		Name:     "orchestrator",
		Priority: 2,
		Shutdown: func(ctx context.Context) error {
			return orchestrator.Stop()
		},
	})
	if amqpPublisher != nil {
		shutdown.Register(util.ShutdownResource{
			Name:     "amqp_publisher",
			Priority: 3,
			Shutdown: func(ctx context.Context) error {
				amqpPublisher.Close()
				return nil
			},
		})
	}
	if closer, ok := synthesizer.(*tts.GoogleSynthesizer); ok {
		shutdown.RegisterCloser("tts_client", closer, 3)
	}
	shutdown.RegisterCloser("audit_log", audit, 4)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.WithField("signal", sig.String()).Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := shutdown.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown completed with errors")
		os.Exit(1)
	}

	logger.Info("Shutdown complete")
}

func configureLogging(cfg *config.Config) {
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithField("level", cfg.Logging.Level).Warn("Unknown log level, staying on info")
	}

	if strings.EqualFold(cfg.Logging.Format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func buildTranscriber(cfg *config.Config) *stt.ProviderManager {
	manager := stt.NewProviderManager(logger, cfg.STT.Provider)

	// The mock provider is always available as a fallback target.
	if err := manager.RegisterProvider(stt.NewMockProvider(logger)); err != nil {
		logger.Fatalf("Error registering mock transcription provider: %v", err)
	}

	// RegisterProvider initializes each provider as part of registration
	if cfg.STT.Google.Enabled {
		if err := manager.RegisterProvider(stt.NewGoogleProvider(logger, &cfg.STT.Google, cfg.STT.Language)); err != nil {
			logger.Fatalf("Error registering Google transcription provider: %v", err)
		}
	}

	if cfg.STT.Amazon.Enabled {
		if err := manager.RegisterProvider(stt.NewAmazonProvider(logger, &cfg.STT.Amazon, cfg.STT.Language)); err != nil {
			logger.Fatalf("Error registering Amazon transcription provider: %v", err)
		}
	}

	if _, ok := manager.GetProvider(cfg.STT.Provider); !ok {
		logger.Fatalf("Configured transcription provider %q is not registered", cfg.STT.Provider)
	}

	return manager
}

func buildRedactor(cfg *config.Config) *redact.Redactor {
	var detectors []redact.Detector
	for _, name := range cfg.Redaction.Detectors {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "pattern":
			detectors = append(detectors, redact.NewPatternDetector())
		case "ner":
			detectors = append(detectors, redact.NewNERDetector(logger, cfg.Redaction.NEREndpoint))
		default:
			logger.Fatalf("Unknown PII detector: %s", name)
		}
	}
	return redact.NewRedactor(logger, detectors...)
}

func buildSummarizer(cfg *config.Config) summarize.Summarizer {
	switch cfg.Summary.Provider {
	case "openai":
		summarizer := summarize.NewOpenAISummarizer(logger, cfg.Summary)
		if err := summarizer.Initialize(); err != nil {
			logger.Fatalf("Error initializing OpenAI summarizer: %v", err)
		}
		return summarizer
	case "extractive":
		return summarize.NewExtractiveSummarizer(logger, cfg.Summary)
	case "mock":
		return summarize.NewMockSummarizer()
	default:
		logger.Fatalf("Unknown summarization provider: %s", cfg.Summary.Provider)
		return nil
	}
}

func buildSynthesizer(cfg *config.Config) tts.Synthesizer {
	switch cfg.TTS.Provider {
	case "google":
		synthesizer := tts.NewGoogleSynthesizer(logger, cfg.TTS)
		if err := synthesizer.Initialize(); err != nil {
			logger.Fatalf("Error initializing speech synthesizer: %v", err)
		}
		return synthesizer
	case "mock":
		return tts.NewMockSynthesizer()
	case "none", "":
		return nil
	default:
		logger.Fatalf("Unknown synthesis provider: %s", cfg.TTS.Provider)
		return nil
	}
}

func buildStore(cfg *config.Config) (storage.ArtifactStore, string) {
	switch cfg.Storage.Backend {
	case "local":
		store, err := storage.NewLocalStore(logger, cfg.Storage)
		if err != nil {
			logger.Fatalf("Error initializing artifact store: %v", err)
		}
		return store, store.Dir()
	case "noop":
		return storage.NewNoopStore(), ""
	default:
		logger.Fatalf("Unknown storage backend: %s", cfg.Storage.Backend)
		return nil, ""
	}
}

func logStartupConfig(cfg *config.Config) {
	logger.WithFields(logrus.Fields{
		"http_port":       cfg.HTTP.Port,
		"stt_provider":    cfg.STT.Provider,
		"summarizer":      cfg.Summary.Provider,
		"tts_provider":    cfg.TTS.Provider,
		"storage_backend": cfg.Storage.Backend,
		"detectors":       cfg.Redaction.Detectors,
		"fail_closed":     cfg.Redaction.FailClosed,
		"workers":         cfg.Pipeline.WorkerCount,
		"amqp_enabled":    cfg.Messaging.AMQPUrl != "",
	}).Info("Audio analysis pipeline started")
}
