package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HandlerFunc processes one job delivery. nil completes the job, a
// PermanentError fails it immediately, any other error requeues it with
// exponential backoff until its attempts run out.
type HandlerFunc func(ctx context.Context, job *Job) error

// WorkerOptions tunes polling and backoff. Zero values fall back to
// defaults.
type WorkerOptions struct {
	PollInterval time.Duration
	BackoffBase  time.Duration
	BackoffMax   time.Duration
}

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultBackoffBase  = 2 * time.Second
	defaultBackoffMax   = 2 * time.Minute
)

type registration struct {
	handler     HandlerFunc
	concurrency int
}

// Worker runs a goroutine pool per job kind. Each kind has its own
// pool, so a backlog of one kind never starves another.
type Worker struct {
	queue    Queue
	logger   *zap.Logger
	opts     WorkerOptions
	handlers map[string]registration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(q Queue, opts WorkerOptions, logger *zap.Logger) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = defaultBackoffMax
	}
	return &Worker{
		queue:    q,
		logger:   logger,
		opts:     opts,
		handlers: make(map[string]registration),
	}
}

// Register binds a handler and a pool size to a job kind. Must be
// called before Start.
func (w *Worker) Register(kind string, concurrency int, handler HandlerFunc) {
	if concurrency <= 0 {
		concurrency = 1
	}
	w.handlers[kind] = registration{handler: handler, concurrency: concurrency}
}

// Start launches the worker pools. They run until Stop or context
// cancellation.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	total := 0
	for kind, reg := range w.handlers {
		for i := 0; i < reg.concurrency; i++ {
			w.wg.Add(1)
			go w.run(ctx, kind, reg.handler)
		}
		total += reg.concurrency
	}
	w.logger.Info("queue workers started",
		zap.Int("kinds", len(w.handlers)),
		zap.Int("goroutines", total))
}

// Stop cancels the pools and waits for in-flight jobs to finish their
// bookkeeping.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.logger.Info("queue workers stopped")
}

func (w *Worker) run(ctx context.Context, kind string, handler HandlerFunc) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		job, err := w.queue.Claim(ctx, kind)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Error("job claim failed", zap.String("kind", kind), zap.Error(err))
			}
		} else if job != nil {
			w.process(ctx, job, handler)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) process(ctx context.Context, job *Job, handler HandlerFunc) {
	err := handler(ctx, job)

	// Bookkeeping runs on its own context so a shutdown mid-job still
	// records the outcome.
	bctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err == nil {
		if cerr := w.queue.Complete(bctx, job.ID); cerr != nil {
			w.logger.Error("job completion failed",
				zap.String("job_id", job.ID), zap.Error(cerr))
		}
		return
	}

	var perm *PermanentError
	if errors.As(err, &perm) {
		w.logger.Error("job failed permanently",
			zap.String("job_id", job.ID),
			zap.String("kind", job.Kind),
			zap.Error(err))
		if ferr := w.queue.Fail(bctx, job.ID, err.Error()); ferr != nil {
			w.logger.Error("job fail write failed", zap.String("job_id", job.ID), zap.Error(ferr))
		}
		return
	}

	if job.Attempts >= job.MaxAttempts {
		w.logger.Error("job failed, attempts exhausted",
			zap.String("job_id", job.ID),
			zap.String("kind", job.Kind),
			zap.Int("attempts", job.Attempts),
			zap.Error(err))
		if ferr := w.queue.Fail(bctx, job.ID, err.Error()); ferr != nil {
			w.logger.Error("job fail write failed", zap.String("job_id", job.ID), zap.Error(ferr))
		}
		return
	}

	delay := backoffDelay(w.opts.BackoffBase, w.opts.BackoffMax, job.Attempts)
	w.logger.Warn("job requeued",
		zap.String("job_id", job.ID),
		zap.String("kind", job.Kind),
		zap.Int("attempt", job.Attempts),
		zap.Duration("delay", delay),
		zap.Error(err))
	if rerr := w.queue.Retry(bctx, job.ID, time.Now().Add(delay), err.Error()); rerr != nil {
		w.logger.Error("job retry write failed", zap.String("job_id", job.ID), zap.Error(rerr))
	}
}

// backoffDelay doubles the base per prior attempt, capped at max.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
