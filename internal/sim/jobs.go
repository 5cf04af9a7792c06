package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"slotmarket/internal/logger"
)

type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobCancelled JobStatus = "cancelled"
	JobFailed    JobStatus = "failed"
)

var ErrJobNotFound = errors.New("job not found")

// Job tracks one background grid search.
type Job struct {
	ID        string            `json:"id"`
	Status    JobStatus         `json:"status"`
	Completed int               `json:"completed"`
	Total     int               `json:"total"`
	Result    *GridSearchResult `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
}

type jobEntry struct {
	job    Job
	cancel context.CancelFunc
	done   chan struct{}
}

// JobRegistry runs grid searches in the background and serves snapshots
// of their progress.
type JobRegistry struct {
	mu   sync.Mutex
	jobs map[string]*jobEntry
}

func NewJobRegistry() *JobRegistry {
	return &JobRegistry{jobs: make(map[string]*jobEntry)}
}

// Start launches a sweep and returns its job id immediately.
func (r *JobRegistry) Start(cfg GridSearchConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	ctx, cancel := context.WithCancel(context.Background())
	entry := &jobEntry{
		job:    Job{ID: uuid.New().String(), Status: JobRunning},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.mu.Lock()
	r.jobs[entry.job.ID] = entry
	r.mu.Unlock()

	go func() {
		defer close(entry.done)
		result, err := GridSearch(ctx, cfg, func(completed, total int) {
			r.mu.Lock()
			entry.job.Completed = completed
			entry.job.Total = total
			r.mu.Unlock()
		})

		r.mu.Lock()
		defer r.mu.Unlock()
		entry.job.Result = result
		switch {
		case err == nil:
			entry.job.Status = JobCompleted
			logger.Success("sim", fmt.Sprintf("grid search %s completed (%d runs)", entry.job.ID, entry.job.Completed))
		case errors.Is(err, context.Canceled):
			entry.job.Status = JobCancelled
			logger.Warn("sim", fmt.Sprintf("grid search %s cancelled after %d of %d runs", entry.job.ID, entry.job.Completed, entry.job.Total))
		default:
			entry.job.Status = JobFailed
			entry.job.Error = err.Error()
			logger.Error("sim", fmt.Sprintf("grid search %s failed: %v", entry.job.ID, err))
		}
	}()
	return entry.job.ID, nil
}

// Status returns a snapshot; the caller gets a copy, never live state.
func (r *JobRegistry) Status(id string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return entry.job, nil
}

// Cancel requests a stop and returns once the job has wound down with its
// partial ranking in place. Cancelling a finished job is a no-op.
func (r *JobRegistry) Cancel(id string) (Job, error) {
	r.mu.Lock()
	entry, ok := r.jobs[id]
	r.mu.Unlock()
	if !ok {
		return Job{}, ErrJobNotFound
	}
	entry.cancel()
	<-entry.done
	return r.Status(id)
}

// Wait blocks until the job finishes and returns its final snapshot.
func (r *JobRegistry) Wait(id string) (Job, error) {
	r.mu.Lock()
	entry, ok := r.jobs[id]
	r.mu.Unlock()
	if !ok {
		return Job{}, ErrJobNotFound
	}
	<-entry.done
	return r.Status(id)
}

// ApplyBest hands the winning token policy of a completed job to apply.
// Jobs without a ranked combo cannot be applied.
func (r *JobRegistry) ApplyBest(id string, apply func(tokenAmount float64, tokenFrequency int) error) error {
	job, err := r.Status(id)
	if err != nil {
		return err
	}
	if job.Status == JobRunning {
		return errors.New("job still running")
	}
	if job.Result == nil || job.Result.Best == nil {
		return errors.New("job has no ranked result to apply")
	}
	return apply(job.Result.Best.TokenAmount, job.Result.Best.TokenFrequency)
}
