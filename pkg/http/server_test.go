package http

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiopipe-server/pkg/config"
	"audiopipe-server/pkg/confidence"
	"audiopipe-server/pkg/ingest"
	"audiopipe-server/pkg/pipeline"
	"audiopipe-server/pkg/redact"
	"audiopipe-server/pkg/storage"
	"audiopipe-server/pkg/stt"
	"audiopipe-server/pkg/summarize"
	"audiopipe-server/pkg/tts"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func buildWAV(sampleRate, samples int) []byte {
	dataSize := samples * 2
	buf := make([]byte, 0, 44+dataSize)

	buf = append(buf, []byte("RIFF")...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+dataSize))
	buf = append(buf, []byte("WAVE")...)
	buf = append(buf, []byte("fmt ")...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1)
	buf = binary.LittleEndian.AppendUint16(buf, 1)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(sampleRate))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(sampleRate*2))
	buf = binary.LittleEndian.AppendUint16(buf, 2)
	buf = binary.LittleEndian.AppendUint16(buf, 16)
	buf = append(buf, []byte("data")...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(dataSize))
	pcm := make([]byte, dataSize)
	for i := 0; i < len(pcm); i += 2 {
		pcm[i] = 0x10
	}
	buf = append(buf, pcm...)

	return buf
}

type serverHarness struct {
	server      *Server
	sttMock     *stt.MockProvider
	summarizer  *summarize.MockSummarizer
	synthesizer *tts.MockSynthesizer
}

func newServerHarness(t *testing.T) *serverHarness {
	t.Helper()
	logger := testLogger()

	cfg := &config.Config{
		HTTP: config.HTTPConfig{BindAddress: "127.0.0.1", Port: 0},
		Ingest: config.IngestConfig{
			MaxFileSize:      1 << 20,
			MaxDuration:      time.Minute,
			SupportedFormats: []string{"wav", "mp3"},
		},
		STT:        config.STTConfig{Provider: "mock"},
		Confidence: config.ConfidenceConfig{HighThreshold: 0.85, MediumThreshold: 0.6},
		Redaction:  config.RedactionConfig{FailClosed: true},
		Summary:    config.SummaryConfig{MinInputLength: 1},
		Storage: config.StorageConfig{
			Backend:       "local",
			OutputDir:     t.TempDir(),
			PublicBaseURL: "/outputs",
		},
		Pipeline: config.PipelineConfig{
			WorkerCount:   2,
			QueueSize:     8,
			JobRetention:  time.Hour,
			Transcription: config.StagePolicyConfig{Timeout: 5 * time.Second, MaxRetries: 1},
			Redaction:     config.StagePolicyConfig{Timeout: 5 * time.Second, MaxRetries: 1},
			Summarization: config.StagePolicyConfig{Timeout: 5 * time.Second, MaxRetries: 1},
			Synthesis:     config.StagePolicyConfig{Timeout: 5 * time.Second},
		},
	}

	sttMock := stt.NewMockProvider(logger)
	require.NoError(t, sttMock.Initialize())
	manager := stt.NewProviderManager(logger, "mock")
	require.NoError(t, manager.RegisterProvider(sttMock))

	store, err := storage.NewLocalStore(logger, cfg.Storage)
	require.NoError(t, err)

	summarizer := summarize.NewMockSummarizer()
	synthesizer := tts.NewMockSynthesizer()

	orchestrator := pipeline.NewOrchestrator(logger, cfg, pipeline.Deps{
		Validator:   ingest.NewValidator(logger, &cfg.Ingest),
		Transcriber: manager,
		Aggregator:  confidence.NewAggregator(&cfg.Confidence),
		Redactor:    redact.NewRedactor(logger, redact.NewPatternDetector(), redact.NewNERDetector(logger, "")),
		Summarizer:  summarizer,
		Synthesizer: synthesizer,
		Store:       store,
	})
	require.NoError(t, orchestrator.Start())
	t.Cleanup(func() { orchestrator.Stop() })

	return &serverHarness{
		server:      NewServer(logger, cfg, orchestrator, store.Dir()),
		sttMock:     sttMock,
		summarizer:  summarizer,
		synthesizer: synthesizer,
	}
}

func multipartUpload(t *testing.T, data []byte, contentType string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="audio.wav"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return body, writer.FormDataContentType()
}

func TestHealthEndpoint(t *testing.T) {
	h := newServerHarness(t)

	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestProcessEndpoint(t *testing.T) {
	h := newServerHarness(t)
	h.sttMock.SetTranscript("Call me at 555-123-4567, my name is John Smith.", 0.9)
	h.summarizer.SetOutput("Caller left a callback number.")

	body, contentType := multipartUpload(t, buildWAV(16000, 16000), "audio/wav")
	req := httptest.NewRequest(http.MethodPost, "/api/process", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		ConfidenceScore float64  `json:"confidence_score"`
		ConfidenceLevel string   `json:"confidence_level"`
		Transcript      string   `json:"transcript"`
		Redacted        string   `json:"redacted_transcript"`
		Summary         string   `json:"summary"`
		AudioURL        *string  `json:"summary_audio_url"`
		Warnings        []string `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))

	assert.InDelta(t, 0.9, result.ConfidenceScore, 0.001)
	assert.Equal(t, "High", result.ConfidenceLevel)
	assert.Contains(t, result.Transcript, "555-123-4567")
	assert.Contains(t, result.Redacted, "[REDACTED:PHONE]")
	assert.Contains(t, result.Redacted, "[REDACTED:NAME]")
	assert.Equal(t, "Caller left a callback number.", result.Summary)
	require.NotNil(t, result.AudioURL)

	// The returned reference resolves through the static route
	rec = httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, *result.AudioURL, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.Bytes())
}

func TestProcessEndpointValidationError(t *testing.T) {
	h := newServerHarness(t)

	body, contentType := multipartUpload(t, []byte("not audio at all"), "audio/wav")
	req := httptest.NewRequest(http.MethodPost, "/api/process", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.NotEmpty(t, payload["detail"])
}

func TestProcessEndpointMissingFile(t *testing.T) {
	h := newServerHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/api/process", bytes.NewReader(nil))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=xxx")

	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAsyncJobLifecycle(t *testing.T) {
	h := newServerHarness(t)
	h.sttMock.SetTranscript("Asynchronous processing works.", 0.9)
	h.summarizer.SetOutput("It works.")

	body, contentType := multipartUpload(t, buildWAV(16000, 16000), "audio/wav")
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var submitted map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	require.NotEmpty(t, submitted["job_id"])

	// Poll until terminal
	deadline := time.Now().Add(5 * time.Second)
	var final map[string]interface{}
	for {
		rec = httptest.NewRecorder()
		h.server.Handler().ServeHTTP(rec,
			httptest.NewRequest(http.MethodGet, "/api/jobs/"+submitted["job_id"], nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &final))

		state := final["state"].(string)
		if state == string(pipeline.StateCompleted) || state == string(pipeline.StateFailed) {
			break
		}
		require.True(t, time.Now().Before(deadline), "job did not finish in time")
		time.Sleep(10 * time.Millisecond)
	}

	assert.Equal(t, string(pipeline.StateCompleted), final["state"])
	assert.Equal(t, "It works.", final["summary"])
}

func TestGetJobNotFound(t *testing.T) {
	h := newServerHarness(t)

	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/unknown", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProcessContextCancellation(t *testing.T) {
	h := newServerHarness(t)
	h.sttMock.SetTranscript("Some transcript.", 0.9)

	body, contentType := multipartUpload(t, buildWAV(16000, 16000), "audio/wav")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodPost, "/api/process", body).WithContext(ctx)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)

	// Client is gone; the handler reports a server-side abort
	assert.NotEqual(t, http.StatusOK, rec.Code)
}
