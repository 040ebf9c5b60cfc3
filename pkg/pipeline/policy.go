package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"audiopipe-server/pkg/config"
	"audiopipe-server/pkg/errors"
	"audiopipe-server/pkg/metrics"
)

// sleepFunc waits for d or until ctx is cancelled. Injectable so
// retry tests run without real delays.
type sleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// StagePolicy wraps one stage call with a timeout and bounded
// linear-backoff retry. Whether an error is worth retrying comes from
// the error taxonomy, not from the policy.
type StagePolicy struct {
	stage      string
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	sleep      sleepFunc
	logger     *logrus.Logger
}

// NewStagePolicy creates a policy for one pipeline stage
func NewStagePolicy(logger *logrus.Logger, stage string, cfg config.StagePolicyConfig) *StagePolicy {
	return &StagePolicy{
		stage:      stage,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		sleep:      defaultSleep,
		logger:     logger,
	}
}

// Execute runs fn under the stage timeout, retrying retryable failures
// up to the configured bound. A cancelled parent context stops the
// attempt loop immediately.
func (p *StagePolicy) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	start := time.Now()
	defer metrics.ObserveStage(p.stage, start)

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = p.runAttempt(ctx, fn)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			// The stage error is just the parent cancellation surfacing
			return ctx.Err()
		}
		if !errors.IsRetryable(lastErr) || attempt >= p.maxRetries {
			break
		}

		delay := p.backoff * time.Duration(attempt+1)
		p.logger.WithFields(logrus.Fields{
			"stage":       p.stage,
			"attempt":     attempt + 1,
			"max_retries": p.maxRetries,
			"retry_delay": delay,
			"error":       lastErr.Error(),
		}).Warning("Stage failed, will retry")

		if metrics.StageRetries != nil {
			metrics.StageRetries.WithLabelValues(p.stage).Inc()
		}
		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
	}

	if metrics.StageFailures != nil {
		metrics.StageFailures.WithLabelValues(p.stage).Inc()
	}
	return lastErr
}

// runAttempt runs one bounded attempt. A deadline hit inside the
// attempt is reported as a retryable stage timeout.
func (p *StagePolicy) runAttempt(ctx context.Context, fn func(ctx context.Context) error) error {
	attemptCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	err := fn(attemptCtx)
	if err != nil && attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return errors.Wrap(errors.ErrTimeout, p.stage+" stage timed out",
			map[string]interface{}{"timeout": p.timeout.String()})
	}
	return err
}
