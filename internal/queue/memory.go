package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue implements Queue with in-memory state. Jobs do not survive
// a restart; it backs local development and tests.
type MemoryQueue struct {
	mu          sync.Mutex
	jobs        map[string]*Job
	maxAttempts int
}

func NewMemoryQueue(maxAttempts int) *MemoryQueue {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &MemoryQueue{
		jobs:        make(map[string]*Job),
		maxAttempts: maxAttempts,
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, kind, payload string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	job := &Job{
		ID:          uuid.New().String(),
		Kind:        kind,
		Payload:     payload,
		Status:      StatusPending,
		MaxAttempts: q.maxAttempts,
		RunAt:       now,
		CreatedAt:   now,
	}
	q.jobs[job.ID] = job
	copied := *job
	return &copied, nil
}

func (q *MemoryQueue) Claim(ctx context.Context, kind string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var due []*Job
	for _, job := range q.jobs {
		if job.Kind == kind && job.Status == StatusPending && !job.RunAt.After(now) {
			due = append(due, job)
		}
	}
	if len(due) == 0 {
		return nil, nil
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].RunAt.Equal(due[j].RunAt) {
			return due[i].RunAt.Before(due[j].RunAt)
		}
		if !due[i].CreatedAt.Equal(due[j].CreatedAt) {
			return due[i].CreatedAt.Before(due[j].CreatedAt)
		}
		return due[i].ID < due[j].ID
	})

	job := due[0]
	job.Status = StatusRunning
	job.Attempts++
	copied := *job
	return &copied, nil
}

func (q *MemoryQueue) Complete(ctx context.Context, jobID string) error {
	return q.setStatus(jobID, StatusCompleted, "")
}

func (q *MemoryQueue) Retry(ctx context.Context, jobID string, runAt time.Time, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return nil
	}
	job.Status = StatusPending
	job.RunAt = runAt
	job.LastError = reason
	return nil
}

func (q *MemoryQueue) Fail(ctx context.Context, jobID string, reason string) error {
	return q.setStatus(jobID, StatusFailed, reason)
}

func (q *MemoryQueue) setStatus(jobID string, status Status, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if job, ok := q.jobs[jobID]; ok {
		job.Status = status
		if reason != "" {
			job.LastError = reason
		}
	}
	return nil
}

// Job returns a snapshot of one job, nil if unknown.
func (q *MemoryQueue) Job(jobID string) *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return nil
	}
	copied := *job
	return &copied
}

// CountByStatus reports how many jobs of the kind are in the status.
func (q *MemoryQueue) CountByStatus(kind string, status Status) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, job := range q.jobs {
		if job.Kind == kind && job.Status == status {
			n++
		}
	}
	return n
}
