package channel

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helpdeck-io/triage-engine/internal/models"
	"github.com/helpdeck-io/triage-engine/internal/notify"
	"github.com/helpdeck-io/triage-engine/internal/queue"
	"github.com/helpdeck-io/triage-engine/internal/storage"
)

// Store is the storage surface the connector needs.
type Store interface {
	FindConversationByExternalID(ctx context.Context, channel models.Channel, externalID string) (*models.Conversation, error)
	CreateContact(ctx context.Context, contact *models.Contact) error
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetConversation(ctx context.Context, id int64) (*models.Conversation, error)
}

// Triggers schedules the background work for an inbound message.
type Triggers interface {
	Classify(ctx context.Context, messageID string) (*queue.Job, error)
	GenerateDraft(ctx context.Context, messageID string) (*queue.Job, error)
}

// Telegram bridges a Telegram bot into the pipeline. Inbound chat
// messages become conversations and customer messages and are queued for
// classification and drafting; accepted drafts go back out as bot
// replies on the same chat.
type Telegram struct {
	api       *tgbotapi.BotAPI
	store     Store
	triggers  Triggers
	events    *notify.Broadcaster
	accountID int64
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(token string, accountID int64, store Store, triggers Triggers, events *notify.Broadcaster, logger *zap.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Telegram{
		api:       api,
		store:     store,
		triggers:  triggers,
		events:    events,
		accountID: accountID,
		logger:    logger,
	}, nil
}

// Start launches the inbound update loop and the outbound reply loop.
func (t *Telegram) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.api.GetUpdatesChan(u)

	t.wg.Add(2)
	go t.inbound(ctx, updates)
	go t.outbound(ctx)

	t.logger.Info("telegram channel started", zap.String("bot", t.api.Self.UserName))
}

// Stop shuts both loops down and waits for them.
func (t *Telegram) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	t.api.StopReceivingUpdates()
	t.wg.Wait()
}

func (t *Telegram) inbound(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	defer t.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			t.handleMessage(ctx, update.Message)
		}
	}
}

func (t *Telegram) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.IsCommand() {
		t.handleCommand(message)
		return
	}

	content := message.Text
	if message.Caption != "" {
		content = message.Caption
	}
	if strings.TrimSpace(content) == "" {
		return
	}

	externalID := strconv.FormatInt(message.Chat.ID, 10)
	msg, err := t.Ingest(ctx, externalID, displayName(message.From), languageOf(message.From), content)
	if err != nil {
		t.logger.Error("failed to ingest message",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
		t.sendText(message.Chat.ID, "Sorry, something went wrong recording your message. Please try again.")
		return
	}

	if _, err := t.triggers.Classify(ctx, msg.ID); err != nil {
		t.logger.Error("failed to queue classification",
			zap.Error(err),
			zap.String("message_id", msg.ID))
	}
	if _, err := t.triggers.GenerateDraft(ctx, msg.ID); err != nil {
		t.logger.Error("failed to queue draft generation",
			zap.Error(err),
			zap.String("message_id", msg.ID))
	}
}

// Ingest records one inbound customer message. The open conversation for
// the chat is reused; first contact creates the contact and conversation.
func (t *Telegram) Ingest(ctx context.Context, externalID, name, language, content string) (*models.Message, error) {
	conv, err := t.store.FindConversationByExternalID(ctx, models.ChannelTelegram, externalID)
	if errors.Is(err, storage.ErrNotFound) {
		conv, err = t.openConversation(ctx, externalID, name, language)
	}
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Sender:         models.SenderCustomer,
		Content:        content,
	}
	if err := t.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	return msg, nil
}

func (t *Telegram) openConversation(ctx context.Context, externalID, name, language string) (*models.Conversation, error) {
	contact := &models.Contact{
		AccountID: t.accountID,
		Name:      name,
		Language:  language,
	}
	if err := t.store.CreateContact(ctx, contact); err != nil {
		return nil, fmt.Errorf("failed to create contact: %w", err)
	}

	conv := &models.Conversation{
		AccountID:  t.accountID,
		ContactID:  contact.ID,
		Channel:    models.ChannelTelegram,
		ExternalID: externalID,
		Status:     models.ConversationOpen,
	}
	if err := t.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	t.logger.Info("telegram conversation opened",
		zap.Int64("conversation_id", conv.ID),
		zap.String("external_id", externalID))
	return conv, nil
}

func (t *Telegram) outbound(ctx context.Context) {
	defer t.wg.Done()

	events := t.events.SubscribeAll()
	defer t.events.UnsubscribeAll(events)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			chatID, text, ok := t.outboundReply(ctx, ev)
			if ok {
				t.sendText(chatID, text)
			}
		}
	}
}

// outboundReply decides whether an event carries a reply for a Telegram
// chat. Only accepted or edited drafts on telegram conversations go out.
func (t *Telegram) outboundReply(ctx context.Context, ev notify.Event) (int64, string, bool) {
	if ev.Type != notify.EventDraftStatusChanged {
		return 0, "", false
	}
	d, ok := ev.Data.(*models.Draft)
	if !ok {
		return 0, "", false
	}
	if d.Status != models.DraftAccepted && d.Status != models.DraftEdited {
		return 0, "", false
	}

	conv, err := t.store.GetConversation(ctx, d.ConversationID)
	if err != nil {
		t.logger.Error("failed to load conversation for reply",
			zap.Error(err),
			zap.Int64("conversation_id", d.ConversationID))
		return 0, "", false
	}
	if conv.Channel != models.ChannelTelegram || conv.ExternalID == "" {
		return 0, "", false
	}

	chatID, err := strconv.ParseInt(conv.ExternalID, 10, 64)
	if err != nil {
		t.logger.Error("conversation has malformed chat id",
			zap.String("external_id", conv.ExternalID),
			zap.Int64("conversation_id", conv.ID))
		return 0, "", false
	}
	return chatID, d.SentContent(), true
}

func (t *Telegram) handleCommand(message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		t.sendText(message.Chat.ID, "Hi! You're connected to our support team.\nDescribe your issue in a message and an agent will get back to you here.")
	default:
		t.sendText(message.Chat.ID, "Just describe your issue in a message and we'll take it from there.")
	}
}

func (t *Telegram) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.api.Send(msg); err != nil {
		t.logger.Error("failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func displayName(from *tgbotapi.User) string {
	if from == nil {
		return "Telegram user"
	}
	name := strings.TrimSpace(strings.TrimSpace(from.FirstName) + " " + strings.TrimSpace(from.LastName))
	if name == "" {
		name = from.UserName
	}
	if name == "" {
		name = "Telegram user"
	}
	return name
}

func languageOf(from *tgbotapi.User) string {
	if from == nil {
		return ""
	}
	return from.LanguageCode
}
