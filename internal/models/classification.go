package models

import "time"

// Category is the closed set of classification categories. Model output
// outside this set is mapped to CategoryOther, never stored raw.
type Category string

const (
	CategoryBilling   Category = "billing"
	CategoryTechnical Category = "technical"
	CategorySales     Category = "sales"
	CategoryGeneral   Category = "general"
	CategoryOther     Category = "other"
)

// Priority is the closed set of urgency levels.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Sentiment is the closed set of customer sentiment labels.
type Sentiment string

const (
	SentimentPositive   Sentiment = "positive"
	SentimentNeutral    Sentiment = "neutral"
	SentimentNegative   Sentiment = "negative"
	SentimentFrustrated Sentiment = "frustrated"
)

// Language is the closed set of supported message languages.
type Language string

const (
	LanguageEN    Language = "en"
	LanguageES    Language = "es"
	LanguageFR    Language = "fr"
	LanguageDE    Language = "de"
	LanguagePT    Language = "pt"
	LanguageOther Language = "other"
)

// Valid reports whether the category is a member of the closed set.
func (c Category) Valid() bool {
	switch c {
	case CategoryBilling, CategoryTechnical, CategorySales, CategoryGeneral, CategoryOther:
		return true
	}
	return false
}

// Valid reports whether the priority is a member of the closed set.
func (p Priority) Valid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// Valid reports whether the sentiment is a member of the closed set.
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative, SentimentFrustrated:
		return true
	}
	return false
}

// Valid reports whether the language is a member of the closed set.
func (l Language) Valid() bool {
	switch l {
	case LanguageEN, LanguageES, LanguageFR, LanguagePT, LanguageDE, LanguageOther:
		return true
	}
	return false
}

// Classification is the result of one classifier run on one message.
// Records are immutable once created; a conversation accumulates them over
// time and only the latest is authoritative for routing decisions.
//
// Degraded marks records whose model output failed validation and was
// defaulted; such records always carry Confidence 0 so they can never
// trigger auto-assignment.
type Classification struct {
	ID               string    `json:"id"`
	ConversationID   int64     `json:"conversation_id"`
	MessageID        string    `json:"message_id"`
	Category         Category  `json:"category"`
	Priority         Priority  `json:"priority"`
	Sentiment        Sentiment `json:"sentiment"`
	Language         Language  `json:"language"`
	Confidence       float64   `json:"confidence"`
	Reasoning        string    `json:"reasoning,omitempty"`
	SuggestedTeamID  *int64    `json:"suggested_team_id,omitempty"`
	SuggestedAgentID *int64    `json:"suggested_agent_id,omitempty"`
	Degraded         bool      `json:"degraded"`
	CreatedAt        time.Time `json:"created_at"`
}
