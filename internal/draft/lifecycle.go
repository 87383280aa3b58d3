package draft

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helpdeck-io/triage-engine/internal/models"
	"github.com/helpdeck-io/triage-engine/internal/notify"
	"github.com/helpdeck-io/triage-engine/internal/storage"
)

// ErrEmptyEdit rejects accept-with-edits calls that would send nothing.
var ErrEmptyEdit = errors.New("edited content is empty")

// LifecycleStore is the storage surface for draft reviews.
type LifecycleStore interface {
	GetDraft(ctx context.Context, id string) (*models.Draft, error)
	TransitionDraft(ctx context.Context, tr storage.DraftTransition) (*models.Draft, error)
	CreateMessage(ctx context.Context, msg *models.Message) error
	ExpireDraftsBefore(ctx context.Context, cutoff time.Time) (int, error)
	DraftStats(ctx context.Context, accountID int64) (models.DraftStats, error)
}

// Lifecycle applies agent decisions to pending drafts. Every transition
// goes through the storage layer's conditional update, so concurrent
// reviews cannot both win: the loser sees storage.ErrNotPending.
type Lifecycle struct {
	store  LifecycleStore
	events notify.Sink
	logger *zap.Logger
}

func NewLifecycle(store LifecycleStore, events notify.Sink, logger *zap.Logger) *Lifecycle {
	return &Lifecycle{store: store, events: events, logger: logger}
}

// Accept marks the draft accepted and sends its content as an outgoing
// agent message.
func (l *Lifecycle) Accept(ctx context.Context, draftID string, reviewerID int64) (*models.Draft, error) {
	return l.resolve(ctx, storage.DraftTransition{
		DraftID:    draftID,
		Status:     models.DraftAccepted,
		ReviewerID: &reviewerID,
		ReviewedAt: time.Now(),
	}, true)
}

// AcceptWithEdits marks the draft edited and sends the edited text. The
// original draft content stays on the record for feedback analysis.
func (l *Lifecycle) AcceptWithEdits(ctx context.Context, draftID, editedContent string, reviewerID int64) (*models.Draft, error) {
	editedContent = strings.TrimSpace(editedContent)
	if editedContent == "" {
		return nil, ErrEmptyEdit
	}
	return l.resolve(ctx, storage.DraftTransition{
		DraftID:       draftID,
		Status:        models.DraftEdited,
		ReviewerID:    &reviewerID,
		EditedContent: &editedContent,
		ReviewedAt:    time.Now(),
	}, true)
}

// Reject marks the draft rejected. No message goes out.
func (l *Lifecycle) Reject(ctx context.Context, draftID string, reviewerID int64, reason string) (*models.Draft, error) {
	return l.resolve(ctx, storage.DraftTransition{
		DraftID:      draftID,
		Status:       models.DraftRejected,
		ReviewerID:   &reviewerID,
		RejectReason: strings.TrimSpace(reason),
		ReviewedAt:   time.Now(),
	}, false)
}

func (l *Lifecycle) resolve(ctx context.Context, tr storage.DraftTransition, send bool) (*models.Draft, error) {
	d, err := l.store.TransitionDraft(ctx, tr)
	if err != nil {
		return nil, fmt.Errorf("transitioning draft %s to %s: %w", tr.DraftID, tr.Status, err)
	}

	if send {
		msg := &models.Message{
			ID:             uuid.New().String(),
			ConversationID: d.ConversationID,
			Sender:         models.SenderAgent,
			Content:        d.SentContent(),
			SourceDraftID:  &d.ID,
		}
		if err := l.store.CreateMessage(ctx, msg); err != nil {
			// The transition is already committed; surface the failure
			// instead of pretending the reply went out.
			l.logger.Error("draft resolved but outgoing message failed",
				zap.String("draft_id", d.ID), zap.Error(err))
			return nil, fmt.Errorf("creating outgoing message for draft %s: %w", d.ID, err)
		}
	}

	l.events.Publish(notify.Event{
		Type:           notify.EventDraftStatusChanged,
		ConversationID: d.ConversationID,
		Data:           d,
	})

	l.logger.Info("draft reviewed",
		zap.String("draft_id", d.ID),
		zap.String("status", string(d.Status)),
		zap.Int64("conversation_id", d.ConversationID))
	return d, nil
}

// ExpirePending sweeps pending drafts older than maxAge into expired.
// Returns how many were swept.
func (l *Lifecycle) ExpirePending(ctx context.Context, maxAge time.Duration) (int, error) {
	n, err := l.store.ExpireDraftsBefore(ctx, time.Now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("expiring drafts: %w", err)
	}
	if n > 0 {
		l.logger.Info("pending drafts expired", zap.Int("count", n))
	}
	return n, nil
}

// Stats reports draft outcomes for an account.
func (l *Lifecycle) Stats(ctx context.Context, accountID int64) (models.DraftStats, error) {
	stats, err := l.store.DraftStats(ctx, accountID)
	if err != nil {
		return models.DraftStats{}, fmt.Errorf("loading draft stats: %w", err)
	}
	return stats, nil
}
