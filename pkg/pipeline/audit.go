package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"audiopipe-server/pkg/errors"
)

// auditRecord is one line of the processing audit trail. It carries
// counts and timings only; entity original text never appears here.
type auditRecord struct {
	Timestamp      time.Time        `json:"timestamp"`
	JobID          string           `json:"job_id"`
	State          State            `json:"state"`
	DurationMs     int64            `json:"duration_ms"`
	Confidence     float64          `json:"confidence"`
	Level          string           `json:"level"`
	EntityCounts   map[string]int   `json:"entity_counts,omitempty"`
	StageTimingsMs map[string]int64 `json:"stage_timings_ms,omitempty"`
	Warnings       []string         `json:"warnings,omitempty"`
	FailedStage    string           `json:"failed_stage,omitempty"`
	Error          string           `json:"error,omitempty"`
}

// AuditLog records one structured entry per terminal job, to the
// process logger and optionally to an append-only file.
type AuditLog struct {
	logger *logrus.Logger
	mu     sync.Mutex
	file   *os.File
}

// NewAuditLog creates an audit trail. An empty path keeps the trail
// logger-only.
func NewAuditLog(logger *logrus.Logger, path string) (*AuditLog, error) {
	a := &AuditLog{logger: logger}

	if path != "" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log %s: %w", path, err)
		}
		a.file = file
		logger.WithField("path", path).Info("Audit log enabled")
	}

	return a, nil
}

// Record writes the terminal audit entry for a job
func (a *AuditLog) Record(job *Job) error {
	job.mu.RLock()
	record := auditRecord{
		Timestamp:   time.Now().UTC(),
		JobID:       job.ID,
		State:       job.state,
		Warnings:    append([]string(nil), job.warnings...),
		FailedStage: job.failedStage,
	}
	if job.confidence != nil {
		record.Confidence = job.confidence.Value
		record.Level = string(job.confidence.Level)
	}
	if !job.startedAt.IsZero() && !job.completedAt.IsZero() {
		record.DurationMs = job.completedAt.Sub(job.startedAt).Milliseconds()
	}
	if len(job.stageDurations) > 0 {
		record.StageTimingsMs = make(map[string]int64, len(job.stageDurations))
		for stage, d := range job.stageDurations {
			record.StageTimingsMs[stage] = d.Milliseconds()
		}
	}
	if job.err != nil {
		record.Error = errors.Detail(job.err)
	}
	job.mu.RUnlock()

	record.EntityCounts = job.entityCounts()

	a.logger.WithFields(logrus.Fields{
		"job_id":        record.JobID,
		"state":         record.State,
		"duration_ms":   record.DurationMs,
		"confidence":    record.Confidence,
		"entity_counts": record.EntityCounts,
	}).Info("Audit record")

	if a.file == nil {
		return nil
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode audit record: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}

// Close releases the audit file, if any
func (a *AuditLog) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}
