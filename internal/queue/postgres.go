package queue

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

//go:embed migrations.sql
var migrations embed.FS

// PostgresQueue implements Queue on PostgreSQL, sharing the storage
// layer's connection pool. Jobs survive restarts; claims rely on
// FOR UPDATE SKIP LOCKED so multiple engine instances can work the same
// table.
type PostgresQueue struct {
	db          *sql.DB
	logger      *zap.Logger
	maxAttempts int
}

func NewPostgresQueue(db *sql.DB, maxAttempts int, logger *zap.Logger) (*PostgresQueue, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	q := &PostgresQueue{db: db, logger: logger, maxAttempts: maxAttempts}

	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return nil, fmt.Errorf("error reading queue migrations: %w", err)
	}
	if _, err := db.Exec(string(migrationSQL)); err != nil {
		return nil, fmt.Errorf("error initializing queue schema: %w", err)
	}
	return q, nil
}

func (q *PostgresQueue) Enqueue(ctx context.Context, kind, payload string) (*Job, error) {
	job := &Job{
		ID:          uuid.New().String(),
		Kind:        kind,
		Payload:     payload,
		Status:      StatusPending,
		MaxAttempts: q.maxAttempts,
	}
	query := `
		INSERT INTO jobs (id, kind, payload, status, max_attempts)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING run_at, created_at`

	err := q.db.QueryRowContext(ctx, query,
		job.ID, job.Kind, job.Payload, job.Status, job.MaxAttempts,
	).Scan(&job.RunAt, &job.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("error enqueueing %s job: %w", kind, err)
	}
	return job, nil
}

func (q *PostgresQueue) Claim(ctx context.Context, kind string) (*Job, error) {
	query := `
		UPDATE jobs
		SET status = 'running', attempts = attempts + 1, updated_at = now()
		WHERE id = (
			SELECT id FROM jobs
			WHERE kind = $1 AND status = 'pending' AND run_at <= now()
			ORDER BY run_at, created_at, id
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, kind, payload, status, attempts, max_attempts, run_at, last_error, created_at`

	job := &Job{}
	err := q.db.QueryRowContext(ctx, query, kind).Scan(
		&job.ID, &job.Kind, &job.Payload, &job.Status, &job.Attempts,
		&job.MaxAttempts, &job.RunAt, &job.LastError, &job.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error claiming %s job: %w", kind, err)
	}
	return job, nil
}

func (q *PostgresQueue) Complete(ctx context.Context, jobID string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'completed', updated_at = now() WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("error completing job: %w", err)
	}
	return nil
}

func (q *PostgresQueue) Retry(ctx context.Context, jobID string, runAt time.Time, reason string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'pending', run_at = $2, last_error = $3, updated_at = now() WHERE id = $1`,
		jobID, runAt, reason)
	if err != nil {
		return fmt.Errorf("error requeueing job: %w", err)
	}
	return nil
}

func (q *PostgresQueue) Fail(ctx context.Context, jobID string, reason string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'failed', last_error = $2, updated_at = now() WHERE id = $1`,
		jobID, reason)
	if err != nil {
		return fmt.Errorf("error failing job: %w", err)
	}
	return nil
}

// RequeueStuck returns running jobs older than the threshold to pending.
// Recovers work lost to a crashed worker; re-delivery is covered by the
// at-least-once contract.
func (q *PostgresQueue) RequeueStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'pending', updated_at = now()
		 WHERE status = 'running' AND updated_at < $1`,
		time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("error requeueing stuck jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		q.logger.Warn("requeued stuck jobs", zap.Int64("count", n))
	}
	return int(n), nil
}
