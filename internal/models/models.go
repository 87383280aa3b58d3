package models

import "time"

// Sender identifies who authored a message inside a conversation.
type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderAgent    Sender = "agent"
	SenderSystem   Sender = "system"
)

// Channel identifies where a conversation originated.
type Channel string

const (
	ChannelWeb      Channel = "web"
	ChannelTelegram Channel = "telegram"
	ChannelAPI      Channel = "api"
)

// ConversationStatus is the coarse lifecycle of a conversation.
type ConversationStatus string

const (
	ConversationOpen   ConversationStatus = "open"
	ConversationClosed ConversationStatus = "closed"
)

// Message is an immutable text unit inside a conversation. SourceDraftID
// links an outgoing agent message back to the draft it was sent from.
type Message struct {
	ID             string    `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	Sender         Sender    `json:"sender"`
	Content        string    `json:"content"`
	SourceDraftID  *string   `json:"source_draft_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Conversation is the engine's view of a support conversation. The CRUD
// layer owns the full record; the engine reads it and updates assignment.
type Conversation struct {
	ID         int64              `json:"id"`
	AccountID  int64              `json:"account_id"`
	ContactID  int64              `json:"contact_id"`
	Channel    Channel            `json:"channel"`
	ExternalID string             `json:"external_id,omitempty"`
	Status     ConversationStatus `json:"status"`
	TeamID     *int64             `json:"team_id,omitempty"`
	AssigneeID *int64             `json:"assignee_id,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Contact is the customer profile attached to a conversation.
type Contact struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"account_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Tier      string    `json:"tier,omitempty"`
	Language  string    `json:"language,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
