package queue

import (
	"context"
	"time"
)

// Job kinds the engine dispatches.
const (
	KindClassify      = "classify"
	KindGenerateDraft = "generate_draft"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// DefaultMaxAttempts bounds deliveries per job before it fails for good.
const DefaultMaxAttempts = 5

// Job is one unit of background work. Payload is an opaque reference,
// here always a message id. Attempts counts deliveries, so handlers see
// it already incremented.
type Job struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Payload     string    `json:"payload"`
	Status      Status    `json:"status"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	RunAt       time.Time `json:"run_at"`
	LastError   string    `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Queue is a durable at-least-once job queue. Claim hands each pending
// job to exactly one worker at a time; a claimed job that is neither
// completed, retried, nor failed stays invisible, so delivery is
// at-least-once, not exactly-once, and handlers must tolerate re-runs.
type Queue interface {
	// Enqueue adds a job ready to run immediately.
	Enqueue(ctx context.Context, kind, payload string) (*Job, error)
	// Claim takes the next due job of the kind, or returns nil when
	// nothing is ready.
	Claim(ctx context.Context, kind string) (*Job, error)
	// Complete finishes a claimed job.
	Complete(ctx context.Context, jobID string) error
	// Retry puts a claimed job back on the queue, due at runAt.
	Retry(ctx context.Context, jobID string, runAt time.Time, reason string) error
	// Fail terminally fails a claimed job.
	Fail(ctx context.Context, jobID string, reason string) error
}

// PermanentError marks a handler error that retrying cannot fix. The
// worker fails the job immediately instead of burning attempts.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so the worker treats it as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}
