package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"audiopipe-server/pkg/config"
	"audiopipe-server/pkg/errors"
	"audiopipe-server/pkg/metrics"
)

// LocalStore writes artifacts to a directory on local disk. Artifacts
// are served back to clients through the static file route under the
// configured public base URL.
type LocalStore struct {
	logger    *logrus.Logger
	outputDir string
	baseURL   string
}

// NewLocalStore creates a disk-backed artifact store, creating the
// output directory if needed.
func NewLocalStore(logger *logrus.Logger, cfg config.StorageConfig) (*LocalStore, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", cfg.OutputDir, err)
	}

	return &LocalStore{
		logger:    logger,
		outputDir: cfg.OutputDir,
		baseURL:   strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

// Dir returns the directory artifacts are written to
func (s *LocalStore) Dir() string {
	return s.outputDir
}

// Put writes data to the output directory under key. The write goes
// through a temp file and rename so readers never see partial content.
func (s *LocalStore) Put(ctx context.Context, key string, contentType string, data []byte) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}

	path := filepath.Join(s.outputDir, key)

	tmp, err := os.CreateTemp(s.outputDir, key+".tmp-*")
	if err != nil {
		return nil, errors.Wrap(errors.ErrStorage, fmt.Sprintf("failed to create artifact temp file: %v", err))
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, errors.Wrap(errors.ErrStorage, fmt.Sprintf("failed to write artifact: %v", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, errors.Wrap(errors.ErrStorage, fmt.Sprintf("failed to close artifact temp file: %v", err))
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return nil, errors.Wrap(errors.ErrStorage, fmt.Sprintf("failed to finalize artifact: %v", err))
	}

	if metrics.ArtifactBytesWritten != nil {
		metrics.ArtifactBytesWritten.Add(float64(len(data)))
	}

	s.logger.WithFields(logrus.Fields{
		"key":   key,
		"bytes": len(data),
	}).Debug("Artifact stored")

	return &Artifact{
		Key:         key,
		URL:         s.baseURL + "/" + key,
		Size:        int64(len(data)),
		ContentType: contentType,
	}, nil
}

// Delete removes the artifact under key, if present
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}

	err := os.Remove(filepath.Join(s.outputDir, key))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.ErrStorage, fmt.Sprintf("failed to delete artifact: %v", err))
	}
	return nil
}

// validateKey rejects keys that would escape the output directory
func validateKey(key string) error {
	if key == "" || strings.ContainsAny(key, "/\\") || strings.Contains(key, "..") {
		return errors.NewValidation("invalid artifact key",
			map[string]interface{}{"key": key})
	}
	return nil
}
