package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"audiopipe-server/pkg/config"
	"audiopipe-server/pkg/confidence"
	"audiopipe-server/pkg/errors"
	"audiopipe-server/pkg/ingest"
	"audiopipe-server/pkg/metrics"
	"audiopipe-server/pkg/redact"
	"audiopipe-server/pkg/storage"
	"audiopipe-server/pkg/stt"
	"audiopipe-server/pkg/summarize"
	"audiopipe-server/pkg/tts"
)

// EventPublisher receives job lifecycle events. Implementations must
// tolerate being called concurrently and must never block a worker.
type EventPublisher interface {
	PublishJobEvent(event JobEvent)
}

// JobEvent is a lifecycle notification. It carries identifiers and
// metrics only, never transcript or entity text.
type JobEvent struct {
	Type        string        `json:"type"`
	JobID       string        `json:"job_id"`
	State       State         `json:"state"`
	Duration    time.Duration `json:"duration"`
	FailedStage string        `json:"failed_stage,omitempty"`
	Warnings    int           `json:"warnings"`
}

// Orchestrator sequences the pipeline stages per job over a bounded
// worker pool. It is the only component with end-to-end visibility of
// a job, and the only writer of job state.
type Orchestrator struct {
	logger *logrus.Logger
	cfg    *config.Config
	queue  *JobQueue

	validator   *ingest.Validator
	transcriber *stt.ProviderManager
	aggregator  *confidence.Aggregator
	redactor    *redact.Redactor
	summarizer  summarize.Summarizer
	synthesizer tts.Synthesizer
	store       storage.ArtifactStore
	publisher   EventPublisher
	audit       *AuditLog

	policies map[string]*StagePolicy

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// Deps bundles the stage implementations an orchestrator drives
type Deps struct {
	Validator   *ingest.Validator
	Transcriber *stt.ProviderManager
	Aggregator  *confidence.Aggregator
	Redactor    *redact.Redactor
	Summarizer  summarize.Summarizer
	Synthesizer tts.Synthesizer // nil disables synthesis
	Store       storage.ArtifactStore
	Publisher   EventPublisher // nil disables lifecycle events
	Audit       *AuditLog      // nil disables the audit trail
}

// NewOrchestrator creates a stopped orchestrator
func NewOrchestrator(logger *logrus.Logger, cfg *config.Config, deps Deps) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())

	return &Orchestrator{
		logger:      logger,
		cfg:         cfg,
		queue:       NewJobQueue(cfg.Pipeline.QueueSize, logger),
		validator:   deps.Validator,
		transcriber: deps.Transcriber,
		aggregator:  deps.Aggregator,
		redactor:    deps.Redactor,
		summarizer:  deps.Summarizer,
		synthesizer: deps.Synthesizer,
		store:       deps.Store,
		publisher:   deps.Publisher,
		audit:       deps.Audit,
		policies: map[string]*StagePolicy{
			StageTranscription: NewStagePolicy(logger, StageTranscription, cfg.Pipeline.Transcription),
			StageRedaction:     NewStagePolicy(logger, StageRedaction, cfg.Pipeline.Redaction),
			StageSummarization: NewStagePolicy(logger, StageSummarization, cfg.Pipeline.Summarization),
			StageSynthesis:     NewStagePolicy(logger, StageSynthesis, cfg.Pipeline.Synthesis),
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the worker pool and the retention sweeper
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return fmt.Errorf("orchestrator already started")
	}

	o.logger.WithField("worker_count", o.cfg.Pipeline.WorkerCount).Info("Starting pipeline orchestrator")

	for i := 0; i < o.cfg.Pipeline.WorkerCount; i++ {
		o.wg.Add(1)
		go o.runWorker(i)
	}

	o.wg.Add(1)
	go o.runRetentionSweeper()

	o.started = true
	return nil
}

// Stop cancels in-flight jobs and waits for workers to exit
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.started {
		return fmt.Errorf("orchestrator not started")
	}

	o.logger.Info("Stopping pipeline orchestrator")
	o.cancel()
	o.wg.Wait()
	o.queue.Close()
	o.started = false
	return nil
}

// Submit enqueues a job for asynchronous processing. Callers poll the
// outcome with GetJob.
func (o *Orchestrator) Submit(data []byte, declaredMIME string) (*Job, error) {
	job := NewJob(o.ctx, data, declaredMIME)
	if err := o.queue.Enqueue(job); err != nil {
		return nil, err
	}

	if metrics.JobsSubmitted != nil {
		metrics.JobsSubmitted.Inc()
	}
	o.logger.WithFields(logrus.Fields{
		"job_id": job.ID,
		"bytes":  len(data),
	}).Info("Pipeline job submitted")

	return job, nil
}

// GetJob returns the job for id, if it is still retained
func (o *Orchestrator) GetJob(id string) (*Job, error) {
	return o.queue.Get(id)
}

// Process runs one job synchronously: submit, wait for the terminal
// state, return the assembled result. A caller disconnect cancels the
// job cooperatively and its artifacts are not persisted.
func (o *Orchestrator) Process(ctx context.Context, data []byte, declaredMIME string) (*Result, error) {
	job, err := o.Submit(data, declaredMIME)
	if err != nil {
		return nil, err
	}
	defer o.queue.Remove(job.ID)

	select {
	case <-ctx.Done():
		job.Cancel()
		// Wait for the worker to acknowledge the cancellation so no
		// stage keeps running against a gone client.
		<-job.Done()
		return nil, errors.Wrap(errors.ErrCanceled, "client disconnected before completion",
			map[string]interface{}{"job_id": job.ID})
	case <-job.Done():
	}

	if job.State() == StateFailed {
		return job.Result(), job.Err()
	}
	return job.Result(), nil
}

func (o *Orchestrator) runWorker(id int) {
	defer o.wg.Done()

	workerLog := o.logger.WithField("worker_id", id)
	workerLog.Debug("Pipeline worker started")

	for {
		job, err := o.queue.Dequeue(o.ctx)
		if err != nil {
			workerLog.Debug("Pipeline worker stopping")
			return
		}
		o.runJob(workerLog, job)
	}
}

func (o *Orchestrator) runRetentionSweeper() {
	defer o.wg.Done()

	interval := o.cfg.Pipeline.JobRetention
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			if removed := o.queue.PruneTerminal(time.Now().Add(-interval)); removed > 0 {
				o.logger.WithField("removed", removed).Debug("Pruned retained jobs")
			}
		}
	}
}

// runJob drives one job through every stage. A panic in any stage is
// contained to the job and surfaces as an internal failure.
func (o *Orchestrator) runJob(workerLog *logrus.Entry, job *Job) {
	jobLog := workerLog.WithField("job_id", job.ID)
	start := time.Now()

	if metrics.JobsInFlight != nil {
		metrics.JobsInFlight.Inc()
	}
	defer func() {
		if metrics.JobsInFlight != nil {
			metrics.JobsInFlight.Dec()
		}
		if metrics.JobDuration != nil {
			metrics.JobDuration.Observe(time.Since(start).Seconds())
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			jobLog.WithFields(logrus.Fields{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("Pipeline stage panicked")
			o.failJob(jobLog, job, "internal",
				errors.NewInternal("unexpected internal failure",
					map[string]interface{}{"panic": fmt.Sprint(r)}))
		}
	}()

	jobLog.Info("Processing pipeline job")

	if o.checkCancelled(jobLog, job) {
		return
	}

	// Validation: client-caused failures, never retried
	if err := job.transitionTo(StateValidating); err != nil {
		o.failJob(jobLog, job, "internal", err)
		return
	}
	asset, err := o.validate(job)
	if err != nil {
		o.failJob(jobLog, job, StageValidation, err)
		return
	}
	job.setAsset(asset)

	// Transcription plus confidence aggregation
	if o.checkCancelled(jobLog, job) {
		return
	}
	if err := job.transitionTo(StateTranscribing); err != nil {
		o.failJob(jobLog, job, "internal", err)
		return
	}
	transcription, score, err := o.transcribe(job)
	if err != nil {
		o.failJob(jobLog, job, StageTranscription, err)
		return
	}
	job.setTranscription(transcription, score)

	// Redaction
	if o.checkCancelled(jobLog, job) {
		return
	}
	if err := job.transitionTo(StateRedacting); err != nil {
		o.failJob(jobLog, job, "internal", err)
		return
	}
	redaction, err := o.redactTranscript(job, transcription.FullText)
	if err != nil {
		o.failJob(jobLog, job, StageRedaction, err)
		return
	}
	job.setRedaction(redaction)

	// Summarization over redacted text only
	if o.checkCancelled(jobLog, job) {
		return
	}
	if err := job.transitionTo(StateSummarizing); err != nil {
		o.failJob(jobLog, job, "internal", err)
		return
	}
	summary, err := o.summarizeTranscript(job, redaction.RedactedText)
	if err != nil {
		o.failJob(jobLog, job, StageSummarization, err)
		return
	}
	job.setSummary(summary)

	// Synthesis: best-effort, failures degrade instead of failing
	if o.checkCancelled(jobLog, job) {
		return
	}
	if err := job.transitionTo(StateSynthesizing); err != nil {
		o.failJob(jobLog, job, "internal", err)
		return
	}
	o.synthesizeSummary(jobLog, job, summary.Text)

	if o.checkCancelled(jobLog, job) {
		return
	}
	if err := job.transitionTo(StateCompleted); err != nil {
		o.failJob(jobLog, job, "internal", err)
		return
	}
	o.finishJob(jobLog, job, "job_completed")

	jobLog.WithFields(logrus.Fields{
		"duration":   job.Duration(),
		"confidence": score.Value,
		"level":      score.Level,
		"warnings":   len(job.Warnings()),
	}).Info("Pipeline job completed")
}

func (o *Orchestrator) validate(job *Job) (*ingest.AudioAsset, error) {
	start := time.Now()
	defer metrics.ObserveStage(StageValidation, start)
	defer job.recordStage(StageValidation, time.Since(start))

	data, declaredMIME := job.takeInput()
	asset, err := o.validator.Validate(data, declaredMIME)
	if err != nil {
		if metrics.StageFailures != nil {
			metrics.StageFailures.WithLabelValues(StageValidation).Inc()
		}
		return nil, err
	}
	return asset, nil
}

func (o *Orchestrator) transcribe(job *Job) (*stt.TranscriptionResult, *confidence.Score, error) {
	start := time.Now()
	defer func() { job.recordStage(StageTranscription, time.Since(start)) }()

	asset := job.takeAsset()

	var result *stt.TranscriptionResult
	err := o.policies[StageTranscription].Execute(job.Context(), func(ctx context.Context) error {
		var terr error
		result, terr = o.transcriber.Transcribe(ctx, o.cfg.STT.Provider, asset)
		return terr
	})
	if err != nil {
		return nil, nil, err
	}

	score := o.aggregator.Aggregate(result)
	return result, &score, nil
}

func (o *Orchestrator) redactTranscript(job *Job, fullText string) (*redact.Result, error) {
	start := time.Now()
	defer func() { job.recordStage(StageRedaction, time.Since(start)) }()

	var result *redact.Result
	err := o.policies[StageRedaction].Execute(job.Context(), func(ctx context.Context) error {
		var rerr error
		result, rerr = o.redactor.Redact(ctx, fullText)
		return rerr
	})
	if err == nil {
		return result, nil
	}
	if job.Context().Err() != nil || o.cfg.Redaction.FailClosed {
		return nil, err
	}

	// Degrade: pass the unredacted transcript forward, flagged. The
	// fail-closed default exists because this path can leak PII.
	job.addWarning("PII redaction unavailable; transcript was not redacted")
	o.logger.WithField("job_id", job.ID).WithError(err).
		Warning("Redaction degraded to pass-through by policy")
	return &redact.Result{RedactedText: fullText}, nil
}

func (o *Orchestrator) summarizeTranscript(job *Job, redactedText string) (*summarize.Result, error) {
	start := time.Now()
	defer func() { job.recordStage(StageSummarization, time.Since(start)) }()

	var result *summarize.Result
	err := o.policies[StageSummarization].Execute(job.Context(), func(ctx context.Context) error {
		var serr error
		result, serr = o.summarizer.Summarize(ctx, redactedText)
		return serr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// synthesizeSummary renders and persists the summary audio. Any
// failure here leaves the job on the completion path with a warning
// and a nil audio reference.
func (o *Orchestrator) synthesizeSummary(jobLog *logrus.Entry, job *Job, summaryText string) {
	start := time.Now()
	defer func() { job.recordStage(StageSynthesis, time.Since(start)) }()

	skip := func(reason string, err error) {
		if metrics.SynthesisSkipped != nil {
			metrics.SynthesisSkipped.Inc()
		}
		job.addWarning("summary audio unavailable: " + reason)
		entry := jobLog.WithField("reason", reason)
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Warning("Synthesis skipped, completing without audio")
	}

	if o.synthesizer == nil {
		skip("synthesis disabled", nil)
		return
	}
	if strings.TrimSpace(summaryText) == "" {
		skip("nothing to narrate", nil)
		return
	}

	var synth *tts.SynthesisResult
	err := o.policies[StageSynthesis].Execute(job.Context(), func(ctx context.Context) error {
		var serr error
		synth, serr = o.synthesizer.Synthesize(ctx, summaryText)
		return serr
	})
	if err != nil {
		skip("speech synthesis failed", err)
		return
	}

	// A cancelled job must not leave artifacts behind
	if job.Context().Err() != nil {
		return
	}

	artifact, err := o.store.Put(job.Context(), storage.AudioKey(job.ID), synth.ContentType, synth.Audio)
	if err != nil {
		skip("artifact storage failed", err)
		return
	}
	job.setArtifact(artifact)
}

// checkCancelled moves a job whose context is gone into the cancelled
// terminal state. Returns true when the job is over.
func (o *Orchestrator) checkCancelled(jobLog *logrus.Entry, job *Job) bool {
	if job.Context().Err() == nil {
		return false
	}
	if job.State().IsTerminal() {
		return true
	}

	if err := job.transitionTo(StateCancelled); err != nil {
		jobLog.WithError(err).Error("Failed to cancel job")
		return true
	}
	job.setFailure("", errors.Wrap(errors.ErrCanceled, "job cancelled"))

	// A cancelled job leaves no artifacts behind
	if artifact := job.takeArtifact(); artifact != nil {
		if err := o.store.Delete(context.Background(), artifact.Key); err != nil {
			jobLog.WithError(err).Warning("Failed to remove artifact of cancelled job")
		}
	}

	jobLog.Info("Pipeline job cancelled")
	o.finishJob(jobLog, job, "job_cancelled")
	return true
}

// failJob records the terminal failure with job context and emits the
// lifecycle event.
func (o *Orchestrator) failJob(jobLog *logrus.Entry, job *Job, stage string, cause error) {
	// A stage error that is just the job's own cancellation surfacing
	// ends the job as cancelled, not failed.
	if job.Context().Err() != nil {
		o.checkCancelled(jobLog, job)
		return
	}

	wrapped := errors.Wrap(cause, errors.Detail(cause), map[string]interface{}{
		"job_id": job.ID,
		"stage":  stage,
	})
	job.setFailure(stage, wrapped)

	if job.State().IsTerminal() {
		// A failed terminal transition reported on an already-terminal
		// job only gets logged; the first outcome stands.
		jobLog.WithError(cause).WithField("stage", stage).
			Error("Failure after terminal state, keeping first outcome")
		return
	}
	if err := job.transitionTo(StateFailed); err != nil {
		jobLog.WithError(err).Error("Failed to mark job failed")
		return
	}

	jobLog.WithFields(logrus.Fields{
		"stage": stage,
		"error": cause.Error(),
	}).Error("Pipeline job failed")

	o.finishJob(jobLog, job, "job_failed")
}

// finishJob runs the terminal bookkeeping shared by every outcome
func (o *Orchestrator) finishJob(jobLog *logrus.Entry, job *Job, eventType string) {
	state := job.State()

	if metrics.JobsCompleted != nil {
		metrics.JobsCompleted.WithLabelValues(string(state)).Inc()
	}
	if o.audit != nil {
		if err := o.audit.Record(job); err != nil {
			jobLog.WithError(err).Warning("Failed to write audit record")
		}
	}
	if o.publisher != nil {
		o.publisher.PublishJobEvent(JobEvent{
			Type:        eventType,
			JobID:       job.ID,
			State:       state,
			Duration:    job.Duration(),
			FailedStage: job.failedStageName(),
			Warnings:    len(job.Warnings()),
		})
	}
}
