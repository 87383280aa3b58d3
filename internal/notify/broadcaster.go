package notify

import (
	"sync"

	"go.uber.org/zap"
)

// Event types emitted by the engine.
const (
	EventClassificationCompleted = "classification.completed"
	EventDraftReady              = "draft.ready"
	EventDraftStatusChanged      = "draft.status_changed"
)

// Event is a fire-and-forget notification about a conversation.
type Event struct {
	Type           string `json:"type"`
	ConversationID int64  `json:"conversation_id"`
	Data           any    `json:"data"`
}

// Sink accepts events. Delivery is best-effort; publishers never block on
// slow consumers.
type Sink interface {
	Publish(event Event)
}

// Broadcaster fans events out to subscribers, either per conversation or
// across all of them.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[int64]map[chan Event]struct{} // conversationID -> clients
	firehose map[chan Event]struct{}
	logger   *zap.Logger
}

func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		clients:  make(map[int64]map[chan Event]struct{}),
		firehose: make(map[chan Event]struct{}),
		logger:   logger,
	}
}

// Subscribe registers for one conversation's events.
func (b *Broadcaster) Subscribe(conversationID int64) chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 16)
	if b.clients[conversationID] == nil {
		b.clients[conversationID] = make(map[chan Event]struct{})
	}
	b.clients[conversationID][ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a per-conversation subscription.
func (b *Broadcaster) Unsubscribe(conversationID int64, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[conversationID]; ok {
		if _, subscribed := clients[ch]; !subscribed {
			return
		}
		delete(clients, ch)
		close(ch)
		if len(clients) == 0 {
			delete(b.clients, conversationID)
		}
	}
}

// SubscribeAll registers for every conversation's events.
func (b *Broadcaster) SubscribeAll() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 64)
	b.firehose[ch] = struct{}{}
	return ch
}

// UnsubscribeAll removes and closes a firehose subscription.
func (b *Broadcaster) UnsubscribeAll(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.firehose[ch]; ok {
		delete(b.firehose, ch)
		close(ch)
	}
}

// Publish delivers the event to everyone watching its conversation and to
// firehose subscribers. Full channels are skipped.
func (b *Broadcaster) Publish(event Event) {
	b.mu.RLock()
	targets := make([]chan Event, 0, len(b.firehose)+len(b.clients[event.ConversationID]))
	for ch := range b.clients[event.ConversationID] {
		targets = append(targets, ch)
	}
	for ch := range b.firehose {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- event:
		default:
			b.logger.Warn("notification dropped, subscriber channel full",
				zap.String("type", event.Type),
				zap.Int64("conversation_id", event.ConversationID))
		}
	}
}

// ClientCount returns the subscriber count for one conversation.
func (b *Broadcaster) ClientCount(conversationID int64) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[conversationID])
}
