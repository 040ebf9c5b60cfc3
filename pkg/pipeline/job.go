package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"audiopipe-server/pkg/confidence"
	"audiopipe-server/pkg/errors"
	"audiopipe-server/pkg/ingest"
	"audiopipe-server/pkg/redact"
	"audiopipe-server/pkg/storage"
	"audiopipe-server/pkg/stt"
	"audiopipe-server/pkg/summarize"
)

// State is a job's position in the pipeline state machine
type State string

const (
	StateQueued       State = "queued"
	StateValidating   State = "validating"
	StateTranscribing State = "transcribing"
	StateRedacting    State = "redacting"
	StateSummarizing  State = "summarizing"
	StateSynthesizing State = "synthesizing"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
	StateCancelled    State = "cancelled"
)

// IsTerminal reports whether the state ends a job
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Stage names used in policies, metrics and error context
const (
	StageValidation    = "validation"
	StageTranscription = "transcription"
	StageRedaction     = "redaction"
	StageSummarization = "summarization"
	StageSynthesis     = "synthesis"
)

// validTransitions encodes the state machine. A synthesis failure is
// not listed as synthesizing→failed on purpose: synthesis degrades the
// job instead of failing it.
var validTransitions = map[State][]State{
	StateQueued:       {StateValidating, StateFailed, StateCancelled},
	StateValidating:   {StateTranscribing, StateFailed, StateCancelled},
	StateTranscribing: {StateRedacting, StateFailed, StateCancelled},
	StateRedacting:    {StateSummarizing, StateFailed, StateCancelled},
	StateSummarizing:  {StateSynthesizing, StateFailed, StateCancelled},
	StateSynthesizing: {StateCompleted, StateCancelled},
}

// Job is the aggregate root for one pipeline invocation. All mutation
// goes through methods holding the job mutex; stage outputs are set
// once and never rewritten.
type Job struct {
	ID        string
	CreatedAt time.Time

	mu          sync.RWMutex
	state       State
	startedAt   time.Time
	completedAt time.Time

	// input survives only until validation produces the asset; the
	// asset survives only until transcription consumes it
	input        []byte
	declaredMIME string
	asset        *ingest.AudioAsset

	transcription *stt.TranscriptionResult
	confidence    *confidence.Score
	redaction     *redact.Result
	summary       *summarize.Result
	artifact      *storage.Artifact

	warnings       []string
	err            error
	failedStage    string
	stageDurations map[string]time.Duration

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	doneOnce sync.Once
}

// NewJob creates a queued job over raw upload bytes. The job context
// is derived from parent; cancelling parent abandons the job at its
// next stage boundary.
func NewJob(parent context.Context, data []byte, declaredMIME string) *Job {
	ctx, cancel := context.WithCancel(parent)
	return &Job{
		ID:             uuid.New().String(),
		CreatedAt:      time.Now(),
		state:          StateQueued,
		input:          data,
		declaredMIME:   declaredMIME,
		stageDurations: make(map[string]time.Duration),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
}

// State returns the current state
func (j *Job) State() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// Done is closed once the job reaches a terminal state
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Context returns the job's cancellation context
func (j *Job) Context() context.Context {
	return j.ctx
}

// Cancel requests cooperative abandonment of the job
func (j *Job) Cancel() {
	j.cancel()
}

// Err returns the terminal error, if any
func (j *Job) Err() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.err
}

// Warnings returns a copy of the accumulated warnings
func (j *Job) Warnings() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]string(nil), j.warnings...)
}

// Duration returns the processing time so far, or total once terminal
func (j *Job) Duration() time.Duration {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.startedAt.IsZero() {
		return 0
	}
	if j.completedAt.IsZero() {
		return time.Since(j.startedAt)
	}
	return j.completedAt.Sub(j.startedAt)
}

// transitionTo moves the job to next, enforcing the state machine and
// the single-terminal-outcome guarantee.
func (j *Job) transitionTo(next State) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state.IsTerminal() {
		return errors.Wrap(errors.ErrInternal,
			"job already reached a terminal state",
			map[string]interface{}{"job_id": j.ID, "state": string(j.state), "attempted": string(next)})
	}

	for _, allowed := range validTransitions[j.state] {
		if allowed == next {
			if j.state == StateQueued && next == StateValidating {
				j.startedAt = time.Now()
			}
			j.state = next
			if next.IsTerminal() {
				j.completedAt = time.Now()
				j.doneOnce.Do(func() { close(j.done) })
			}
			return nil
		}
	}

	return errors.Wrap(errors.ErrInternal,
		"invalid job state transition",
		map[string]interface{}{"job_id": j.ID, "from": string(j.state), "to": string(next)})
}

func (j *Job) addWarning(warning string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.warnings = append(j.warnings, warning)
}

func (j *Job) recordStage(stage string, d time.Duration) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stageDurations[stage] = d
}

// takeInput hands the raw upload to validation and drops the job's
// reference to it.
func (j *Job) takeInput() ([]byte, string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	data, mime := j.input, j.declaredMIME
	j.input = nil
	return data, mime
}

func (j *Job) setAsset(asset *ingest.AudioAsset) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.asset = asset
}

// takeAsset hands the decoded audio to transcription and releases it
func (j *Job) takeAsset() *ingest.AudioAsset {
	j.mu.Lock()
	defer j.mu.Unlock()
	asset := j.asset
	j.asset = nil
	return asset
}

func (j *Job) setTranscription(result *stt.TranscriptionResult, score *confidence.Score) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.transcription = result
	j.confidence = score
}

func (j *Job) setRedaction(result *redact.Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.redaction = result
}

func (j *Job) setSummary(result *summarize.Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.summary = result
}

func (j *Job) setArtifact(artifact *storage.Artifact) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.artifact = artifact
}

func (j *Job) takeArtifact() *storage.Artifact {
	j.mu.Lock()
	defer j.mu.Unlock()
	artifact := j.artifact
	j.artifact = nil
	return artifact
}

func (j *Job) setFailure(stage string, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.failedStage = stage
	j.err = err
}

// Result is the client-facing view of a job
type Result struct {
	JobID            string   `json:"job_id"`
	State            State    `json:"state"`
	ConfidenceScore  float64  `json:"confidence_score"`
	ConfidenceLevel  string   `json:"confidence_level"`
	Transcript       string   `json:"transcript"`
	RedactedText     string   `json:"redacted_transcript"`
	Summary          string   `json:"summary"`
	SummaryAudioURL  *string  `json:"summary_audio_url"`
	Warnings         []string `json:"warnings,omitempty"`
	Error            string   `json:"error,omitempty"`
}

// Result assembles the observable outcome of the job. For synchronous
// callers it is only read after Done closes, so no partial result is
// ever visible mid-pipeline.
func (j *Job) Result() *Result {
	j.mu.RLock()
	defer j.mu.RUnlock()

	result := &Result{
		JobID:    j.ID,
		State:    j.state,
		Warnings: append([]string(nil), j.warnings...),
	}

	if j.transcription != nil {
		result.Transcript = j.transcription.FullText
	}
	if j.confidence != nil {
		result.ConfidenceScore = j.confidence.Value
		result.ConfidenceLevel = string(j.confidence.Level)
	}
	if j.redaction != nil {
		result.RedactedText = j.redaction.RedactedText
	}
	if j.summary != nil {
		result.Summary = j.summary.Text
	}
	if j.artifact != nil && j.artifact.URL != "" {
		url := j.artifact.URL
		result.SummaryAudioURL = &url
	}
	if j.err != nil {
		result.Error = errors.Detail(j.err)
	}

	return result
}

func (j *Job) failedStageName() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.failedStage
}

// entityCounts tallies redacted entities by type for the audit record
func (j *Job) entityCounts() map[string]int {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.redaction == nil || len(j.redaction.Entities) == 0 {
		return nil
	}
	counts := make(map[string]int, 4)
	for _, e := range j.redaction.Entities {
		counts[string(e.Type)]++
	}
	return counts
}
