package draft

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helpdeck-io/triage-engine/internal/models"
	"github.com/helpdeck-io/triage-engine/internal/notify"
	"github.com/helpdeck-io/triage-engine/internal/storage"
)

func pendingDraft(t *testing.T, fx *fixture) *models.Draft {
	t.Helper()
	d := &models.Draft{
		ID:             uuid.New().String(),
		ConversationID: fx.conv.ID,
		MessageID:      fx.msg.ID,
		Content:        "Refunds take 5 business days.",
		Confidence:     0.8,
		Status:         models.DraftPending,
	}
	require.NoError(t, fx.store.CreateDraft(context.Background(), d))
	return d
}

func outgoingMessages(t *testing.T, fx *fixture) []*models.Message {
	t.Helper()
	all, err := fx.store.ListConversationMessages(context.Background(), fx.conv.ID, 0)
	require.NoError(t, err)
	var out []*models.Message
	for _, m := range all {
		if m.Sender == models.SenderAgent {
			out = append(out, m)
		}
	}
	return out
}

func TestAccept_SendsDraftContent(t *testing.T) {
	fx := newFixture(t)
	d := pendingDraft(t, fx)
	sink := &fakeSink{}
	lc := NewLifecycle(fx.store, sink, zap.NewNop())

	accepted, err := lc.Accept(context.Background(), d.ID, 42)
	require.NoError(t, err)
	require.Equal(t, models.DraftAccepted, accepted.Status)
	require.NotNil(t, accepted.ReviewedBy)
	require.Equal(t, int64(42), *accepted.ReviewedBy)
	require.NotNil(t, accepted.ReviewedAt)

	sent := outgoingMessages(t, fx)
	require.Len(t, sent, 1)
	require.Equal(t, d.Content, sent[0].Content)
	require.NotNil(t, sent[0].SourceDraftID)
	require.Equal(t, d.ID, *sent[0].SourceDraftID)

	events := sink.byType(notify.EventDraftStatusChanged)
	require.Len(t, events, 1)
	require.Equal(t, fx.conv.ID, events[0].ConversationID)
}

func TestAcceptWithEdits_SendsEditedTextKeepsOriginal(t *testing.T) {
	fx := newFixture(t)
	d := pendingDraft(t, fx)
	lc := NewLifecycle(fx.store, &fakeSink{}, zap.NewNop())

	edited, err := lc.AcceptWithEdits(context.Background(), d.ID, "edited text", 42)
	require.NoError(t, err)
	require.Equal(t, models.DraftEdited, edited.Status)
	require.NotNil(t, edited.EditedContent)
	require.Equal(t, "edited text", *edited.EditedContent)
	// The original content stays on the record for analytics.
	require.Equal(t, "Refunds take 5 business days.", edited.Content)

	sent := outgoingMessages(t, fx)
	require.Len(t, sent, 1)
	require.Equal(t, "edited text", sent[0].Content)
}

func TestAcceptWithEdits_EmptyContentFailsBeforeTransition(t *testing.T) {
	fx := newFixture(t)
	d := pendingDraft(t, fx)
	lc := NewLifecycle(fx.store, &fakeSink{}, zap.NewNop())

	_, err := lc.AcceptWithEdits(context.Background(), d.ID, "   ", 42)
	require.ErrorIs(t, err, ErrEmptyEdit)

	still, err := fx.store.GetDraft(context.Background(), d.ID)
	require.NoError(t, err)
	require.Equal(t, models.DraftPending, still.Status)
}

func TestReject_NoMessageGoesOut(t *testing.T) {
	fx := newFixture(t)
	d := pendingDraft(t, fx)
	lc := NewLifecycle(fx.store, &fakeSink{}, zap.NewNop())

	rejected, err := lc.Reject(context.Background(), d.ID, 42, "tone is off")
	require.NoError(t, err)
	require.Equal(t, models.DraftRejected, rejected.Status)
	require.Equal(t, "tone is off", rejected.RejectReason)
	require.Empty(t, outgoingMessages(t, fx))
}

func TestSecondTransitionIsConflict(t *testing.T) {
	fx := newFixture(t)
	d := pendingDraft(t, fx)
	lc := NewLifecycle(fx.store, &fakeSink{}, zap.NewNop())

	_, err := lc.Accept(context.Background(), d.ID, 1)
	require.NoError(t, err)

	_, err = lc.Reject(context.Background(), d.ID, 2, "late")
	require.ErrorIs(t, err, storage.ErrNotPending)

	// The first decision stands.
	final, err := fx.store.GetDraft(context.Background(), d.ID)
	require.NoError(t, err)
	require.Equal(t, models.DraftAccepted, final.Status)
}

func TestConcurrentAcceptAndReject_ExactlyOneWins(t *testing.T) {
	fx := newFixture(t)
	d := pendingDraft(t, fx)
	lc := NewLifecycle(fx.store, &fakeSink{}, zap.NewNop())

	var wg sync.WaitGroup
	var acceptErr, rejectErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, acceptErr = lc.Accept(context.Background(), d.ID, 1)
	}()
	go func() {
		defer wg.Done()
		_, rejectErr = lc.Reject(context.Background(), d.ID, 2, "no")
	}()
	wg.Wait()

	if acceptErr == nil {
		require.ErrorIs(t, rejectErr, storage.ErrNotPending)
	} else {
		require.ErrorIs(t, acceptErr, storage.ErrNotPending)
		require.NoError(t, rejectErr)
	}
}

func TestTransitionUnknownDraft(t *testing.T) {
	fx := newFixture(t)
	lc := NewLifecycle(fx.store, &fakeSink{}, zap.NewNop())

	_, err := lc.Accept(context.Background(), uuid.New().String(), 1)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestExpirePending_SweepsOnlyStaleDrafts(t *testing.T) {
	fx := newFixture(t)
	stale := &models.Draft{
		ID:             uuid.New().String(),
		ConversationID: fx.conv.ID,
		MessageID:      uuid.New().String(),
		Content:        "old",
		Status:         models.DraftPending,
		CreatedAt:      time.Now().Add(-2 * time.Hour),
	}
	require.NoError(t, fx.store.CreateDraft(context.Background(), stale))
	fresh := pendingDraft(t, fx)

	lc := NewLifecycle(fx.store, &fakeSink{}, zap.NewNop())
	n, err := lc.ExpirePending(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	expired, err := fx.store.GetDraft(context.Background(), stale.ID)
	require.NoError(t, err)
	require.Equal(t, models.DraftExpired, expired.Status)

	// Expired is terminal: a late accept is a conflict.
	_, err = lc.Accept(context.Background(), stale.ID, 1)
	require.ErrorIs(t, err, storage.ErrNotPending)

	still, err := fx.store.GetDraft(context.Background(), fresh.ID)
	require.NoError(t, err)
	require.Equal(t, models.DraftPending, still.Status)
}

func TestStats_CountsOutcomes(t *testing.T) {
	fx := newFixture(t)
	lc := NewLifecycle(fx.store, &fakeSink{}, zap.NewNop())

	a := pendingDraft(t, fx)
	_, err := lc.Accept(context.Background(), a.ID, 1)
	require.NoError(t, err)

	b := pendingDraft(t, fx)
	_, err = lc.AcceptWithEdits(context.Background(), b.ID, "tweaked", 1)
	require.NoError(t, err)

	c := pendingDraft(t, fx)
	_, err = lc.Reject(context.Background(), c.ID, 1, "")
	require.NoError(t, err)

	pendingDraft(t, fx)

	stats, err := lc.Stats(context.Background(), fx.conv.AccountID)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Accepted)
	require.Equal(t, 1, stats.Edited)
	require.Equal(t, 1, stats.Rejected)
	require.Equal(t, 1, stats.Pending)
	require.InDelta(t, 2.0/3.0, stats.AcceptanceRate(), 1e-9)
}
