package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helpdeck-io/triage-engine/internal/llm"
	"github.com/helpdeck-io/triage-engine/internal/models"
	"github.com/helpdeck-io/triage-engine/internal/notify"
	"github.com/helpdeck-io/triage-engine/internal/router"
	"github.com/helpdeck-io/triage-engine/internal/storage"
)

// DefaultAutoAssignThreshold gates automatic assignment. A suggestion
// below it is stored but acted on by humans only.
const DefaultAutoAssignThreshold = 0.85

const defaultTopAgentsPerTeam = 3

// Store is the storage surface the classifier reads and writes.
type Store interface {
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	GetConversation(ctx context.Context, id int64) (*models.Conversation, error)
	GetContact(ctx context.Context, id int64) (*models.Contact, error)
	LatestClassification(ctx context.Context, conversationID int64) (*models.Classification, error)
	ListTeams(ctx context.Context, accountID int64) ([]*models.Team, error)
	ListTeamAgents(ctx context.Context, teamID int64) ([]*models.Agent, error)
	TeamLoad(ctx context.Context, teamID int64) (*models.TeamLoad, error)
	CreateClassification(ctx context.Context, cl *models.Classification) error
	AssignConversation(ctx context.Context, conversationID, teamID, agentID int64) error
	QueueConversation(ctx context.Context, conversationID, teamID int64) error
}

// Options tunes classification. Zero values fall back to defaults.
type Options struct {
	AutoAssignThreshold float64
	TopAgentsPerTeam    int
	MaxTokens           int
	Temperature         float64
}

// Classifier turns one inbound message into a Classification and, when
// the model is confident enough, an assignment.
type Classifier struct {
	store  Store
	llm    llm.Client
	router *router.Router
	events notify.Sink
	logger *zap.Logger
	opts   Options
}

func New(store Store, client llm.Client, r *router.Router, events notify.Sink, opts Options, logger *zap.Logger) *Classifier {
	if opts.AutoAssignThreshold <= 0 {
		opts.AutoAssignThreshold = DefaultAutoAssignThreshold
	}
	if opts.TopAgentsPerTeam <= 0 {
		opts.TopAgentsPerTeam = defaultTopAgentsPerTeam
	}
	return &Classifier{
		store:  store,
		llm:    client,
		router: r,
		events: events,
		logger: logger,
		opts:   opts,
	}
}

// Classify runs the full pipeline for one message. A storage.ErrNotFound
// return means the message or conversation is gone and the caller should
// drop the job; LLM errors bubble up for the queue's retry policy.
func (c *Classifier) Classify(ctx context.Context, messageID string) (*models.Classification, error) {
	msg, err := c.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("loading message %s: %w", messageID, err)
	}
	conv, err := c.store.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation %d: %w", msg.ConversationID, err)
	}

	pc, err := c.gatherContext(ctx, msg, conv)
	if err != nil {
		return nil, err
	}

	response, err := c.llm.Complete(ctx, buildClassifyPrompt(pc, c.opts.MaxTokens, c.opts.Temperature))
	if err != nil {
		return nil, fmt.Errorf("classification completion: %w", err)
	}

	parsed := parseClassification(response)
	if parsed.Degraded {
		c.logger.Warn("classification degraded, response did not validate",
			zap.String("message_id", messageID),
			zap.String("response", response))
	}

	cl := &models.Classification{
		ID:               uuid.New().String(),
		ConversationID:   conv.ID,
		MessageID:        msg.ID,
		Category:         parsed.Category,
		Priority:         parsed.Priority,
		Sentiment:        parsed.Sentiment,
		Language:         parsed.Language,
		Confidence:       parsed.Confidence,
		Reasoning:        parsed.Reasoning,
		SuggestedTeamID:  parsed.SuggestedTeamID,
		SuggestedAgentID: parsed.SuggestedAgentID,
		Degraded:         parsed.Degraded,
	}
	if err := c.store.CreateClassification(ctx, cl); err != nil {
		return nil, fmt.Errorf("persisting classification: %w", err)
	}

	c.events.Publish(notify.Event{
		Type:           notify.EventClassificationCompleted,
		ConversationID: conv.ID,
		Data:           cl,
	})

	c.logger.Info("message classified",
		zap.String("message_id", msg.ID),
		zap.Int64("conversation_id", conv.ID),
		zap.String("category", string(cl.Category)),
		zap.String("priority", string(cl.Priority)),
		zap.Float64("confidence", cl.Confidence),
		zap.Bool("degraded", cl.Degraded))

	c.maybeAutoAssign(ctx, conv, cl)
	return cl, nil
}

func (c *Classifier) gatherContext(ctx context.Context, msg *models.Message, conv *models.Conversation) (promptContext, error) {
	pc := promptContext{message: msg}

	contact, err := c.store.GetContact(ctx, conv.ContactID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return pc, fmt.Errorf("loading contact %d: %w", conv.ContactID, err)
	}
	pc.contact = contact

	prior, err := c.store.LatestClassification(ctx, conv.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return pc, fmt.Errorf("loading prior classification: %w", err)
	}
	pc.prior = prior

	teams, err := c.store.ListTeams(ctx, conv.AccountID)
	if err != nil {
		return pc, fmt.Errorf("listing teams: %w", err)
	}
	for _, team := range teams {
		load, err := c.store.TeamLoad(ctx, team.ID)
		if err != nil {
			return pc, fmt.Errorf("loading team %d utilization: %w", team.ID, err)
		}
		agents, err := c.store.ListTeamAgents(ctx, team.ID)
		if err != nil {
			return pc, fmt.Errorf("listing agents for team %d: %w", team.ID, err)
		}
		pc.teams = append(pc.teams, teamSummary{
			team:      team,
			load:      load,
			topAgents: topAgentsByLoad(agents, c.opts.TopAgentsPerTeam),
		})
	}
	return pc, nil
}

// maybeAutoAssign routes the conversation when the gate passes. The
// classification is already persisted; assignment problems are logged,
// never turned into a job failure.
func (c *Classifier) maybeAutoAssign(ctx context.Context, conv *models.Conversation, cl *models.Classification) {
	if cl.Degraded || cl.Confidence < c.opts.AutoAssignThreshold || cl.SuggestedAgentID == nil {
		return
	}

	decision, err := c.router.Route(ctx, conv.AccountID, cl.SuggestedTeamID, cl.Category)
	if err != nil {
		c.logger.Warn("auto-assignment routing failed",
			zap.Int64("conversation_id", conv.ID), zap.Error(err))
		return
	}
	if decision.Team == nil {
		return
	}

	if decision.Agent != nil {
		err := c.store.AssignConversation(ctx, conv.ID, decision.Team.ID, decision.Agent.ID)
		if err == nil {
			c.logger.Info("conversation auto-assigned",
				zap.Int64("conversation_id", conv.ID),
				zap.Int64("team_id", decision.Team.ID),
				zap.Int64("agent_id", decision.Agent.ID))
			return
		}
		if !errors.Is(err, storage.ErrAgentAtCapacity) {
			c.logger.Warn("auto-assignment failed",
				zap.Int64("conversation_id", conv.ID), zap.Error(err))
			return
		}
		// The agent filled up between ranking and assignment; leave the
		// conversation on the team queue.
	}

	if err := c.store.QueueConversation(ctx, conv.ID, decision.Team.ID); err != nil {
		c.logger.Warn("team queueing failed",
			zap.Int64("conversation_id", conv.ID), zap.Error(err))
		return
	}
	c.logger.Info("conversation queued for team",
		zap.Int64("conversation_id", conv.ID),
		zap.Int64("team_id", decision.Team.ID))
}
