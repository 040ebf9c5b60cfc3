package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"audiopipe-server/pkg/errors"
	"audiopipe-server/pkg/metrics"
)

// JobQueue is an in-memory bounded queue plus a job index. Jobs stay
// in the index after leaving the channel so async callers can poll
// them until retention cleanup removes them.
type JobQueue struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	queue  chan *Job
	closed bool
	logger *logrus.Logger
}

// NewJobQueue creates a queue with the given buffer size
func NewJobQueue(bufferSize int, logger *logrus.Logger) *JobQueue {
	return &JobQueue{
		jobs:   make(map[string]*Job),
		queue:  make(chan *Job, bufferSize),
		logger: logger,
	}
}

// Enqueue indexes the job and adds it to the work channel. A full
// queue rejects the job rather than blocking the submitter.
func (q *JobQueue) Enqueue(job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errors.Wrap(errors.ErrUnavailable, "job queue is shut down")
	}

	select {
	case q.queue <- job:
		q.jobs[job.ID] = job
		if metrics.QueueDepth != nil {
			metrics.QueueDepth.Set(float64(len(q.queue)))
		}
		q.logger.WithField("job_id", job.ID).Debug("Job enqueued")
		return nil
	default:
		return errors.Wrap(errors.ErrUnavailable, "job queue is full",
			map[string]interface{}{"capacity": cap(q.queue)})
	}
}

// Dequeue blocks until a job is available or ctx is cancelled
func (q *JobQueue) Dequeue(ctx context.Context) (*Job, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case job, ok := <-q.queue:
		if !ok {
			return nil, errors.Wrap(errors.ErrUnavailable, "job queue is shut down")
		}
		if metrics.QueueDepth != nil {
			metrics.QueueDepth.Set(float64(len(q.queue)))
		}
		return job, nil
	}
}

// Get returns the indexed job for id
func (q *JobQueue) Get(id string) (*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	job, ok := q.jobs[id]
	if !ok {
		return nil, errors.Wrap(errors.ErrJobNotFound, "no such job",
			map[string]interface{}{"job_id": id})
	}
	return job, nil
}

// Remove drops a job from the index
func (q *JobQueue) Remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.jobs, id)
}

// Len returns the number of queued (not yet dequeued) jobs
func (q *JobQueue) Len() int {
	return len(q.queue)
}

// PruneTerminal removes terminal jobs that finished before cutoff and
// returns how many were removed.
func (q *JobQueue) PruneTerminal(cutoff time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for id, job := range q.jobs {
		job.mu.RLock()
		prune := job.state.IsTerminal() && !job.completedAt.IsZero() && job.completedAt.Before(cutoff)
		job.mu.RUnlock()
		if prune {
			delete(q.jobs, id)
			removed++
		}
	}
	return removed
}

// Close stops accepting new jobs
func (q *JobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.queue)
	}
}
