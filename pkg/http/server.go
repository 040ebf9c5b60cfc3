package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"audiopipe-server/pkg/config"
	"audiopipe-server/pkg/errors"
	"audiopipe-server/pkg/metrics"
	"audiopipe-server/pkg/pipeline"
)

// Server exposes the pipeline over HTTP: the processing API, artifact
// retrieval, health and metrics.
type Server struct {
	logger       *logrus.Logger
	cfg          *config.Config
	orchestrator *pipeline.Orchestrator
	httpServer   *http.Server
	mux          *http.ServeMux
	startTime    time.Time

	// outputsDir enables static serving of synthesized audio; empty
	// disables the route (noop storage backend)
	outputsDir string
}

// NewServer creates the HTTP server and registers all routes
func NewServer(logger *logrus.Logger, cfg *config.Config, orchestrator *pipeline.Orchestrator, outputsDir string) *Server {
	s := &Server{
		logger:       logger,
		cfg:          cfg,
		orchestrator: orchestrator,
		mux:          http.NewServeMux(),
		startTime:    time.Now(),
		outputsDir:   outputsDir,
	}

	s.mux.HandleFunc("GET /health", s.healthHandler)
	s.mux.HandleFunc("GET /status", s.statusHandler)
	s.mux.HandleFunc("POST /api/process", s.processHandler)
	s.mux.HandleFunc("POST /api/jobs", s.submitJobHandler)
	s.mux.HandleFunc("GET /api/jobs/{id}", s.getJobHandler)

	if cfg.HTTP.EnableMetrics {
		if registry := metrics.GetRegistry(); registry != nil {
			s.mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		}
	}
	if s.outputsDir != "" {
		prefix := cfg.Storage.PublicBaseURL
		if prefix == "" {
			prefix = "/outputs"
		}
		s.mux.Handle("GET "+prefix+"/", http.StripPrefix(prefix+"/", http.FileServer(http.Dir(s.outputsDir))))
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.BindAddress, cfg.HTTP.Port),
		Handler:      s.mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return s
}

// Handler returns the route multiplexer, for tests
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves in a background goroutine
func (s *Server) Start() {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting HTTP server")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server failed")
		}
	}()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}

// healthHandler reports liveness
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusHandler reports uptime and configuration summary
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"uptime":     time.Since(s.startTime).String(),
		"started_at": s.startTime.Format(time.RFC3339),
		"stt":        s.cfg.STT.Provider,
		"summarizer": s.cfg.Summary.Provider,
		"tts":        s.cfg.TTS.Provider,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode HTTP response")
	}
}

// errorResponse sends a standardized error response
func (s *Server) errorResponse(w http.ResponseWriter, err error) {
	errors.WriteError(w, err)
	s.logger.WithError(err).Warn("HTTP error response sent")
}
