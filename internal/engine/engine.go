package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/helpdeck-io/triage-engine/internal/classifier"
	"github.com/helpdeck-io/triage-engine/internal/draft"
	"github.com/helpdeck-io/triage-engine/internal/knowledge"
	"github.com/helpdeck-io/triage-engine/internal/llm"
	"github.com/helpdeck-io/triage-engine/internal/models"
	"github.com/helpdeck-io/triage-engine/internal/queue"
	"github.com/helpdeck-io/triage-engine/internal/storage"
)

// Options tunes the background pools and the draft expiry sweep. Zero
// values fall back to defaults.
type Options struct {
	ClassifyWorkers int
	DraftWorkers    int
	DraftMaxAge     time.Duration
	SweepInterval   time.Duration
}

const (
	defaultClassifyWorkers = 4
	defaultDraftWorkers    = 2
	defaultDraftMaxAge     = 24 * time.Hour
	defaultSweepInterval   = time.Minute
)

// Engine is the facade the platform calls. Classify and GenerateDraft
// enqueue background jobs and return once the job record is persisted;
// draft review operations run synchronously and return after the storage
// commit.
type Engine struct {
	queue      queue.Queue
	worker     *queue.Worker
	classifier *classifier.Classifier
	generator  *draft.Generator
	lifecycle  *draft.Lifecycle
	knowledge  *knowledge.Service
	opts       Options
	logger     *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func New(q queue.Queue, worker *queue.Worker, cl *classifier.Classifier, gen *draft.Generator, lc *draft.Lifecycle, ks *knowledge.Service, opts Options, logger *zap.Logger) *Engine {
	if opts.ClassifyWorkers <= 0 {
		opts.ClassifyWorkers = defaultClassifyWorkers
	}
	if opts.DraftWorkers <= 0 {
		opts.DraftWorkers = defaultDraftWorkers
	}
	if opts.DraftMaxAge <= 0 {
		opts.DraftMaxAge = defaultDraftMaxAge
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	return &Engine{
		queue:      q,
		worker:     worker,
		classifier: cl,
		generator:  gen,
		lifecycle:  lc,
		knowledge:  ks,
		opts:       opts,
		logger:     logger,
	}
}

// Start registers the job handlers, launches the worker pools and the
// draft expiry sweep. The classify pool is larger than the draft pool so
// triage keeps moving when draft generation backs up.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	e.worker.Register(queue.KindClassify, e.opts.ClassifyWorkers, e.handleClassify)
	e.worker.Register(queue.KindGenerateDraft, e.opts.DraftWorkers, e.handleGenerateDraft)
	e.worker.Start(ctx)

	e.done = make(chan struct{})
	go e.sweepExpiredDrafts(ctx)

	e.logger.Info("engine started",
		zap.Int("classify_workers", e.opts.ClassifyWorkers),
		zap.Int("draft_workers", e.opts.DraftWorkers),
		zap.Duration("draft_max_age", e.opts.DraftMaxAge))
}

// Stop shuts down the pools and the sweep, waiting for in-flight jobs.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.worker.Stop()
	if e.done != nil {
		<-e.done
	}
	e.logger.Info("engine stopped")
}

// Classify schedules classification of a message. It returns as soon as
// the job is persisted, not when classification finishes.
func (e *Engine) Classify(ctx context.Context, messageID string) (*queue.Job, error) {
	return e.enqueue(ctx, queue.KindClassify, messageID)
}

// GenerateDraft schedules draft generation for a message. It returns as
// soon as the job is persisted.
func (e *Engine) GenerateDraft(ctx context.Context, messageID string) (*queue.Job, error) {
	return e.enqueue(ctx, queue.KindGenerateDraft, messageID)
}

// AcceptDraft resolves a pending draft and sends its content as the
// agent's reply.
func (e *Engine) AcceptDraft(ctx context.Context, draftID string, agentID int64) (*models.Draft, error) {
	return e.lifecycle.Accept(ctx, draftID, agentID)
}

// AcceptDraftWithEdits resolves a pending draft and sends the edited
// text, keeping the original draft content for quality metrics.
func (e *Engine) AcceptDraftWithEdits(ctx context.Context, draftID string, agentID int64, edited string) (*models.Draft, error) {
	return e.lifecycle.AcceptWithEdits(ctx, draftID, edited, agentID)
}

// RejectDraft resolves a pending draft without sending anything.
func (e *Engine) RejectDraft(ctx context.Context, draftID string, agentID int64, reason string) (*models.Draft, error) {
	return e.lifecycle.Reject(ctx, draftID, agentID, reason)
}

// DraftStats reports draft review outcomes for one account.
func (e *Engine) DraftStats(ctx context.Context, accountID int64) (models.DraftStats, error) {
	return e.lifecycle.Stats(ctx, accountID)
}

// SaveArticle upserts a help-center article, keeping its embedding in
// step with its content.
func (e *Engine) SaveArticle(ctx context.Context, article *models.KnowledgeArticle) error {
	return e.knowledge.Save(ctx, article)
}

// ReindexKnowledgeBase re-embeds an account's published articles and
// returns how many were processed.
func (e *Engine) ReindexKnowledgeBase(ctx context.Context, accountID int64) (int, error) {
	return e.knowledge.ReindexAccount(ctx, accountID)
}

type jobPayload struct {
	MessageID string `json:"message_id"`
}

func (e *Engine) enqueue(ctx context.Context, kind, messageID string) (*queue.Job, error) {
	payload, err := json.Marshal(jobPayload{MessageID: messageID})
	if err != nil {
		return nil, fmt.Errorf("error encoding job payload: %w", err)
	}
	job, err := e.queue.Enqueue(ctx, kind, string(payload))
	if err != nil {
		return nil, fmt.Errorf("error enqueueing %s job: %w", kind, err)
	}
	e.logger.Debug("job enqueued",
		zap.String("kind", kind),
		zap.String("job_id", job.ID),
		zap.String("message_id", messageID))
	return job, nil
}

func (e *Engine) handleClassify(ctx context.Context, job *queue.Job) error {
	messageID, err := decodePayload(job.Payload)
	if err != nil {
		return queue.Permanent(err)
	}
	_, err = e.classifier.Classify(ctx, messageID)
	return e.jobOutcome(err, job, messageID)
}

func (e *Engine) handleGenerateDraft(ctx context.Context, job *queue.Job) error {
	messageID, err := decodePayload(job.Payload)
	if err != nil {
		return queue.Permanent(err)
	}
	_, err = e.generator.Generate(ctx, messageID)
	return e.jobOutcome(err, job, messageID)
}

func decodePayload(raw string) (string, error) {
	var p jobPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return "", fmt.Errorf("error decoding job payload: %w", err)
	}
	if p.MessageID == "" {
		return "", errors.New("job payload has no message id")
	}
	return p.MessageID, nil
}

// jobOutcome maps pipeline errors onto queue policy. A missing record
// means the target was deleted after enqueue, so the job completes as a
// logged no-op. Provider failures that retrying cannot fix stop the job
// immediately; everything else requeues with backoff.
func (e *Engine) jobOutcome(err error, job *queue.Job, messageID string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		e.logger.Warn("job target missing, skipping",
			zap.String("kind", job.Kind),
			zap.String("job_id", job.ID),
			zap.String("message_id", messageID))
		return nil
	}
	var perr *llm.ProviderError
	if errors.As(err, &perr) && !perr.Retryable() {
		return queue.Permanent(err)
	}
	return err
}

// sweepExpiredDrafts periodically expires pending drafts nobody reviewed.
func (e *Engine) sweepExpiredDrafts(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.lifecycle.ExpirePending(ctx, e.opts.DraftMaxAge); err != nil {
				e.logger.Error("draft expiry sweep failed", zap.Error(err))
			}
		}
	}
}
