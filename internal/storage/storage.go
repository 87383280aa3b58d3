package storage

import (
	"context"
	"errors"
	"time"

	"github.com/helpdeck-io/triage-engine/internal/models"
)

var (
	// ErrNotFound is returned when a referenced record does not exist.
	// Job handlers treat it as a referential miss: log, no-op, complete.
	ErrNotFound = errors.New("record not found")

	// ErrNotPending is returned when a draft transition loses the race on
	// the conditional status=pending update.
	ErrNotPending = errors.New("draft no longer pending")

	// ErrAgentAtCapacity is returned when the conditional load increment
	// finds the agent full or no longer online.
	ErrAgentAtCapacity = errors.New("agent at capacity")
)

// DraftTransition is the single conditional update that moves a draft out
// of pending. Exactly one transition ever succeeds per draft.
type DraftTransition struct {
	DraftID       string
	Status        models.DraftStatus
	ReviewerID    *int64
	EditedContent *string
	RejectReason  string
	ReviewedAt    time.Time
}

// Storage is the engine's view of the relational data store. Postgres is
// the production implementation; the in-memory twin backs tests and local
// runs.
type Storage interface {
	// Contacts and conversations.
	CreateContact(ctx context.Context, contact *models.Contact) error
	GetContact(ctx context.Context, id int64) (*models.Contact, error)
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id int64) (*models.Conversation, error)
	FindConversationByExternalID(ctx context.Context, channel models.Channel, externalID string) (*models.Conversation, error)

	// Assignment owns the agent load counter: increment on assign,
	// decrement on release, both inside one transaction boundary.
	AssignConversation(ctx context.Context, conversationID, teamID, agentID int64) error
	QueueConversation(ctx context.Context, conversationID, teamID int64) error
	ReleaseAssignment(ctx context.Context, conversationID int64) error

	// Messages.
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	ListConversationMessages(ctx context.Context, conversationID int64, limit int) ([]*models.Message, error)

	// Classifications.
	CreateClassification(ctx context.Context, cl *models.Classification) error
	LatestClassification(ctx context.Context, conversationID int64) (*models.Classification, error)

	// Drafts.
	CreateDraft(ctx context.Context, draft *models.Draft) error
	GetDraft(ctx context.Context, id string) (*models.Draft, error)
	PendingDraftForMessage(ctx context.Context, messageID string) (*models.Draft, error)
	TransitionDraft(ctx context.Context, tr DraftTransition) (*models.Draft, error)
	ExpireDraftsBefore(ctx context.Context, cutoff time.Time) (int, error)
	DraftStats(ctx context.Context, accountID int64) (models.DraftStats, error)

	// Teams and agents.
	GetTeam(ctx context.Context, id int64) (*models.Team, error)
	ListTeams(ctx context.Context, accountID int64) ([]*models.Team, error)
	ListTeamAgents(ctx context.Context, teamID int64) ([]*models.Agent, error)
	GetAgent(ctx context.Context, id int64) (*models.Agent, error)
	TeamLoad(ctx context.Context, teamID int64) (*models.TeamLoad, error)

	// Knowledge articles.
	SaveArticle(ctx context.Context, article *models.KnowledgeArticle) error
	GetArticle(ctx context.Context, id int64) (*models.KnowledgeArticle, error)
	ListPublishedArticles(ctx context.Context, accountID int64) ([]*models.KnowledgeArticle, error)

	Close() error
}
