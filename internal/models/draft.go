package models

import "time"

// DraftStatus is the lifecycle state of a generated reply candidate.
// pending is the only non-terminal state: a draft transitions to exactly
// one of accepted, edited, rejected or expired, and never leaves it.
type DraftStatus string

const (
	DraftPending  DraftStatus = "pending"
	DraftAccepted DraftStatus = "accepted"
	DraftEdited   DraftStatus = "edited"
	DraftRejected DraftStatus = "rejected"
	DraftExpired  DraftStatus = "expired"
)

// Terminal reports whether no further transition is allowed from s.
func (s DraftStatus) Terminal() bool {
	return s != DraftPending
}

// Draft is one generated reply candidate for a message. Content always
// holds the original generated text; EditedContent holds what the agent
// actually sent when they accepted with edits, so both survive for
// feedback analysis.
type Draft struct {
	ID             string      `json:"id"`
	ConversationID int64       `json:"conversation_id"`
	MessageID      string      `json:"message_id"`
	Content        string      `json:"content"`
	EditedContent  *string     `json:"edited_content,omitempty"`
	Confidence     float64     `json:"confidence"`
	Reasoning      string      `json:"reasoning,omitempty"`
	Status         DraftStatus `json:"status"`
	RejectReason   string      `json:"reject_reason,omitempty"`
	ArticleIDs     []int64     `json:"article_ids,omitempty"`
	ReviewedBy     *int64      `json:"reviewed_by,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	ReviewedAt     *time.Time  `json:"reviewed_at,omitempty"`
}

// SentContent returns the text that was (or would be) sent to the
// customer: the agent's edit when present, the generated content otherwise.
func (d *Draft) SentContent() string {
	if d.EditedContent != nil {
		return *d.EditedContent
	}
	return d.Content
}

// DraftStats aggregates review outcomes for an account's drafts.
// AcceptanceRate counts accepted and edited drafts against all reviewed
// ones (expired drafts were never reviewed and are excluded).
type DraftStats struct {
	Pending  int `json:"pending"`
	Accepted int `json:"accepted"`
	Edited   int `json:"edited"`
	Rejected int `json:"rejected"`
	Expired  int `json:"expired"`
}

// AcceptanceRate returns the share of reviewed drafts an agent kept,
// with or without edits. Zero reviewed drafts yield 0.
func (s DraftStats) AcceptanceRate() float64 {
	reviewed := s.Accepted + s.Edited + s.Rejected
	if reviewed == 0 {
		return 0
	}
	return float64(s.Accepted+s.Edited) / float64(reviewed)
}
