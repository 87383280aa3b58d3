package channel

import (
	"context"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helpdeck-io/triage-engine/internal/models"
	"github.com/helpdeck-io/triage-engine/internal/notify"
	"github.com/helpdeck-io/triage-engine/internal/queue"
	"github.com/helpdeck-io/triage-engine/internal/storage"
)

type fakeTriggers struct {
	classified []string
	drafted    []string
}

func (f *fakeTriggers) Classify(ctx context.Context, messageID string) (*queue.Job, error) {
	f.classified = append(f.classified, messageID)
	return &queue.Job{ID: "job-classify", Kind: queue.KindClassify, Status: queue.StatusPending}, nil
}

func (f *fakeTriggers) GenerateDraft(ctx context.Context, messageID string) (*queue.Job, error) {
	f.drafted = append(f.drafted, messageID)
	return &queue.Job{ID: "job-draft", Kind: queue.KindGenerateDraft, Status: queue.StatusPending}, nil
}

func newConnector(t *testing.T) (*Telegram, *storage.MemoryStorage, *fakeTriggers) {
	t.Helper()
	store := storage.NewMemoryStorage()
	triggers := &fakeTriggers{}
	conn := &Telegram{
		store:     store,
		triggers:  triggers,
		events:    notify.NewBroadcaster(zap.NewNop()),
		accountID: 1,
		logger:    zap.NewNop(),
	}
	return conn, store, triggers
}

func TestIngest_FirstContactOpensConversation(t *testing.T) {
	conn, store, _ := newConnector(t)
	ctx := context.Background()

	msg, err := conn.Ingest(ctx, "9001", "Ana García", "es", "No puedo acceder a mi cuenta")
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)

	conv, err := store.FindConversationByExternalID(ctx, models.ChannelTelegram, "9001")
	require.NoError(t, err)
	require.Equal(t, int64(1), conv.AccountID)
	require.Equal(t, models.ConversationOpen, conv.Status)
	require.Equal(t, conv.ID, msg.ConversationID)

	contact, err := store.GetContact(ctx, conv.ContactID)
	require.NoError(t, err)
	require.Equal(t, "Ana García", contact.Name)
	require.Equal(t, "es", contact.Language)

	stored, err := store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Equal(t, models.SenderCustomer, stored.Sender)
	require.Equal(t, "No puedo acceder a mi cuenta", stored.Content)
}

func TestIngest_ReusesOpenConversation(t *testing.T) {
	conn, store, _ := newConnector(t)
	ctx := context.Background()

	first, err := conn.Ingest(ctx, "9001", "Ana García", "es", "hello")
	require.NoError(t, err)
	second, err := conn.Ingest(ctx, "9001", "Ana García", "es", "still there?")
	require.NoError(t, err)

	require.Equal(t, first.ConversationID, second.ConversationID)

	msgs, err := store.ListConversationMessages(ctx, first.ConversationID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
}

func TestIngest_SeparateChatsGetSeparateConversations(t *testing.T) {
	conn, _, _ := newConnector(t)
	ctx := context.Background()

	first, err := conn.Ingest(ctx, "9001", "Ana", "es", "hi")
	require.NoError(t, err)
	second, err := conn.Ingest(ctx, "9002", "Bruno", "pt", "oi")
	require.NoError(t, err)

	require.NotEqual(t, first.ConversationID, second.ConversationID)
}

func TestHandleMessage_QueuesClassificationAndDraft(t *testing.T) {
	conn, store, triggers := newConnector(t)
	ctx := context.Background()

	conn.handleMessage(ctx, &tgbotapi.Message{
		Text: "My invoice is wrong",
		Chat: &tgbotapi.Chat{ID: 9001},
		From: &tgbotapi.User{FirstName: "Ana", LastName: "García", LanguageCode: "es"},
	})

	require.Len(t, triggers.classified, 1)
	require.Len(t, triggers.drafted, 1)
	require.Equal(t, triggers.classified[0], triggers.drafted[0])

	stored, err := store.GetMessage(ctx, triggers.classified[0])
	require.NoError(t, err)
	require.Equal(t, "My invoice is wrong", stored.Content)
}

func TestHandleMessage_CaptionFallsBackWhenNoText(t *testing.T) {
	conn, store, triggers := newConnector(t)
	ctx := context.Background()

	conn.handleMessage(ctx, &tgbotapi.Message{
		Caption: "screenshot of the error",
		Chat:    &tgbotapi.Chat{ID: 9001},
		From:    &tgbotapi.User{FirstName: "Ana"},
	})

	require.Len(t, triggers.classified, 1)
	stored, err := store.GetMessage(ctx, triggers.classified[0])
	require.NoError(t, err)
	require.Equal(t, "screenshot of the error", stored.Content)
}

func TestHandleMessage_BlankContentIgnored(t *testing.T) {
	conn, store, triggers := newConnector(t)
	ctx := context.Background()

	conn.handleMessage(ctx, &tgbotapi.Message{
		Text: "   ",
		Chat: &tgbotapi.Chat{ID: 9001},
		From: &tgbotapi.User{FirstName: "Ana"},
	})

	require.Empty(t, triggers.classified)
	require.Empty(t, triggers.drafted)
	_, err := store.FindConversationByExternalID(ctx, models.ChannelTelegram, "9001")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestOutboundReply_AcceptedDraftGoesToChat(t *testing.T) {
	conn, _, _ := newConnector(t)
	ctx := context.Background()

	msg, err := conn.Ingest(ctx, "9001", "Ana", "es", "where is my refund?")
	require.NoError(t, err)

	d := &models.Draft{
		ConversationID: msg.ConversationID,
		Status:         models.DraftAccepted,
		Content:        "Your refund was issued today.",
	}
	chatID, text, ok := conn.outboundReply(ctx, notify.Event{
		Type:           notify.EventDraftStatusChanged,
		ConversationID: msg.ConversationID,
		Data:           d,
	})
	require.True(t, ok)
	require.Equal(t, int64(9001), chatID)
	require.Equal(t, "Your refund was issued today.", text)
}

func TestOutboundReply_EditedDraftSendsEditedText(t *testing.T) {
	conn, _, _ := newConnector(t)
	ctx := context.Background()

	msg, err := conn.Ingest(ctx, "9001", "Ana", "es", "where is my refund?")
	require.NoError(t, err)

	edited := "Hi Ana, the refund was issued this morning."
	d := &models.Draft{
		ConversationID: msg.ConversationID,
		Status:         models.DraftEdited,
		Content:        "Your refund was issued today.",
		EditedContent:  &edited,
	}
	_, text, ok := conn.outboundReply(ctx, notify.Event{
		Type:           notify.EventDraftStatusChanged,
		ConversationID: msg.ConversationID,
		Data:           d,
	})
	require.True(t, ok)
	require.Equal(t, edited, text)
}

func TestOutboundReply_FiltersEverythingElse(t *testing.T) {
	conn, store, _ := newConnector(t)
	ctx := context.Background()

	msg, err := conn.Ingest(ctx, "9001", "Ana", "es", "hi")
	require.NoError(t, err)

	// A rejected draft never reaches the customer.
	_, _, ok := conn.outboundReply(ctx, notify.Event{
		Type: notify.EventDraftStatusChanged,
		Data: &models.Draft{ConversationID: msg.ConversationID, Status: models.DraftRejected, Content: "nope"},
	})
	require.False(t, ok)

	// draft.ready is for agents, not customers.
	_, _, ok = conn.outboundReply(ctx, notify.Event{
		Type: notify.EventDraftReady,
		Data: &models.Draft{ConversationID: msg.ConversationID, Status: models.DraftPending, Content: "draft"},
	})
	require.False(t, ok)

	// Conversations from other channels are not ours to answer.
	webConv := &models.Conversation{
		AccountID: 1,
		ContactID: 1,
		Channel:   models.ChannelWeb,
		Status:    models.ConversationOpen,
	}
	require.NoError(t, store.CreateConversation(ctx, webConv))
	_, _, ok = conn.outboundReply(ctx, notify.Event{
		Type: notify.EventDraftStatusChanged,
		Data: &models.Draft{ConversationID: webConv.ID, Status: models.DraftAccepted, Content: "sent elsewhere"},
	})
	require.False(t, ok)
}
