package classifier

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helpdeck-io/triage-engine/internal/llm"
	"github.com/helpdeck-io/triage-engine/internal/models"
	"github.com/helpdeck-io/triage-engine/internal/notify"
	"github.com/helpdeck-io/triage-engine/internal/router"
	"github.com/helpdeck-io/triage-engine/internal/storage"
)

type fakeLLM struct {
	mu       sync.Mutex
	response string
	err      error
	requests []llm.Request
}

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeLLM) lastRequest(t *testing.T) llm.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

type fakeSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (f *fakeSink) Publish(event notify.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeSink) byType(eventType string) []notify.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []notify.Event
	for _, event := range f.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

type fixture struct {
	store   *storage.MemoryStorage
	conv    *models.Conversation
	msg     *models.Message
	billing *models.Team
	agents  []*models.Agent
}

// newFixture seeds a premium contact, an open conversation with one
// customer message, and a billing team with three online agents at
// different loads.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStorage()

	contact := &models.Contact{AccountID: 1, Name: "Riley", Email: "riley@example.com", Tier: "premium", Language: "en"}
	require.NoError(t, store.CreateContact(ctx, contact))

	conv := &models.Conversation{AccountID: 1, ContactID: contact.ID, Channel: models.ChannelWeb, Status: models.ConversationOpen}
	require.NoError(t, store.CreateConversation(ctx, conv))

	msg := &models.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Sender:         models.SenderCustomer,
		Content:        "I was charged twice for order #12345",
	}
	require.NoError(t, store.CreateMessage(ctx, msg))

	billing := &models.Team{AccountID: 1, Name: "Billing", Categories: []string{"billing"}}
	store.AddTeam(billing)

	loads := []int{2, 0, 4}
	var agents []*models.Agent
	for i, load := range loads {
		agent := &models.Agent{
			AccountID:    1,
			Name:         fmt.Sprintf("billing-%d", i+1),
			Availability: models.AvailabilityOnline,
			CurrentLoad:  load,
			MaxCapacity:  5,
			QualityScore: 4.0,
		}
		store.AddAgent(agent)
		store.AddTeamMember(billing.ID, agent.ID)
		agents = append(agents, agent)
	}

	return &fixture{store: store, conv: conv, msg: msg, billing: billing, agents: agents}
}

func newClassifier(fx *fixture, client llm.Client, sink notify.Sink) *Classifier {
	logger := zap.NewNop()
	return New(fx.store, client, router.NewRouter(fx.store, logger), sink, Options{}, logger)
}

func responseJSON(category string, confidence float64, teamID, agentID int64) string {
	s := fmt.Sprintf(`{"category":%q,"priority":"high","sentiment":"frustrated","language":"en","confidence":%g,"reasoning":"test"`, category, confidence)
	if teamID > 0 {
		s += fmt.Sprintf(`,"suggested_team_id":%d`, teamID)
	}
	if agentID > 0 {
		s += fmt.Sprintf(`,"suggested_agent_id":%d`, agentID)
	}
	return s + "}"
}

func TestClassify_PersistsAndPublishes(t *testing.T) {
	fx := newFixture(t)
	sink := &fakeSink{}
	c := newClassifier(fx, &fakeLLM{response: responseJSON("billing", 0.7, 0, 0)}, sink)

	cl, err := c.Classify(context.Background(), fx.msg.ID)
	require.NoError(t, err)
	require.Equal(t, models.CategoryBilling, cl.Category)
	require.False(t, cl.Degraded)

	stored, err := fx.store.LatestClassification(context.Background(), fx.conv.ID)
	require.NoError(t, err)
	require.Equal(t, cl.ID, stored.ID)
	require.Equal(t, fx.msg.ID, stored.MessageID)

	events := sink.byType(notify.EventClassificationCompleted)
	require.Len(t, events, 1)
	require.Equal(t, fx.conv.ID, events[0].ConversationID)
}

func TestClassify_BillingMessageAutoAssignsLowestLoadAgent(t *testing.T) {
	fx := newFixture(t)
	idle := fx.agents[1] // load 0 of 5
	llmClient := &fakeLLM{response: responseJSON("billing", 0.93, fx.billing.ID, fx.agents[0].ID)}
	c := newClassifier(fx, llmClient, &fakeSink{})

	cl, err := c.Classify(context.Background(), fx.msg.ID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, cl.Confidence, 0.9)

	conv, err := fx.store.GetConversation(context.Background(), fx.conv.ID)
	require.NoError(t, err)
	require.NotNil(t, conv.AssigneeID)
	require.Equal(t, idle.ID, *conv.AssigneeID)
	require.NotNil(t, conv.TeamID)
	require.Equal(t, fx.billing.ID, *conv.TeamID)

	assigned, err := fx.store.GetAgent(context.Background(), idle.ID)
	require.NoError(t, err)
	require.Equal(t, 1, assigned.CurrentLoad)
}

func TestClassify_BelowThresholdStoresSuggestionOnly(t *testing.T) {
	fx := newFixture(t)
	c := newClassifier(fx, &fakeLLM{response: responseJSON("billing", 0.84, fx.billing.ID, fx.agents[0].ID)}, &fakeSink{})

	cl, err := c.Classify(context.Background(), fx.msg.ID)
	require.NoError(t, err)
	require.NotNil(t, cl.SuggestedAgentID)

	conv, err := fx.store.GetConversation(context.Background(), fx.conv.ID)
	require.NoError(t, err)
	require.Nil(t, conv.AssigneeID)
	require.Nil(t, conv.TeamID)
}

func TestClassify_NoSuggestedAgentNeverAutoAssigns(t *testing.T) {
	fx := newFixture(t)
	c := newClassifier(fx, &fakeLLM{response: responseJSON("billing", 0.99, fx.billing.ID, 0)}, &fakeSink{})

	_, err := c.Classify(context.Background(), fx.msg.ID)
	require.NoError(t, err)

	conv, err := fx.store.GetConversation(context.Background(), fx.conv.ID)
	require.NoError(t, err)
	require.Nil(t, conv.AssigneeID)
}

func TestClassify_NoAssignableAgentQueuesForTeam(t *testing.T) {
	fx := newFixture(t)
	for _, agent := range fx.agents {
		require.NoError(t, fx.store.SetAgentAvailability(agent.ID, models.AvailabilityOffline))
	}
	c := newClassifier(fx, &fakeLLM{response: responseJSON("billing", 0.95, fx.billing.ID, fx.agents[0].ID)}, &fakeSink{})

	_, err := c.Classify(context.Background(), fx.msg.ID)
	require.NoError(t, err)

	conv, err := fx.store.GetConversation(context.Background(), fx.conv.ID)
	require.NoError(t, err)
	require.Nil(t, conv.AssigneeID)
	require.NotNil(t, conv.TeamID)
	require.Equal(t, fx.billing.ID, *conv.TeamID)
}

func TestClassify_MalformedResponsePersistsDegradedRecord(t *testing.T) {
	fx := newFixture(t)
	c := newClassifier(fx, &fakeLLM{response: "I think this is about billing."}, &fakeSink{})

	cl, err := c.Classify(context.Background(), fx.msg.ID)
	require.NoError(t, err)
	require.True(t, cl.Degraded)
	require.Equal(t, models.CategoryOther, cl.Category)
	require.Zero(t, cl.Confidence)

	// The record landed, so the conversation is not stuck unclassified.
	stored, err := fx.store.LatestClassification(context.Background(), fx.conv.ID)
	require.NoError(t, err)
	require.True(t, stored.Degraded)

	conv, err := fx.store.GetConversation(context.Background(), fx.conv.ID)
	require.NoError(t, err)
	require.Nil(t, conv.AssigneeID)
}

func TestClassify_MessageGoneReturnsNotFound(t *testing.T) {
	fx := newFixture(t)
	c := newClassifier(fx, &fakeLLM{response: responseJSON("billing", 0.9, 0, 0)}, &fakeSink{})

	_, err := c.Classify(context.Background(), uuid.New().String())
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestClassify_LLMErrorPropagatesWithoutPersisting(t *testing.T) {
	fx := newFixture(t)
	providerErr := &llm.ProviderError{Kind: llm.KindRateLimited, StatusCode: 429, Message: "slow down"}
	c := newClassifier(fx, &fakeLLM{err: providerErr}, &fakeSink{})

	_, err := c.Classify(context.Background(), fx.msg.ID)
	require.Error(t, err)
	require.True(t, llm.Retryable(err))

	_, err = fx.store.LatestClassification(context.Background(), fx.conv.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestClassify_RerunProducesNewAuthoritativeRecord(t *testing.T) {
	fx := newFixture(t)
	llmClient := &fakeLLM{response: responseJSON("billing", 0.7, 0, 0)}
	c := newClassifier(fx, llmClient, &fakeSink{})

	first, err := c.Classify(context.Background(), fx.msg.ID)
	require.NoError(t, err)

	llmClient.response = responseJSON("technical", 0.8, 0, 0)
	second, err := c.Classify(context.Background(), fx.msg.ID)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	latest, err := fx.store.LatestClassification(context.Background(), fx.conv.ID)
	require.NoError(t, err)
	require.Equal(t, second.ID, latest.ID)
	require.Equal(t, models.CategoryTechnical, latest.Category)
}

func TestClassify_PromptCarriesConversationContext(t *testing.T) {
	fx := newFixture(t)
	llmClient := &fakeLLM{response: responseJSON("billing", 0.6, 0, 0)}
	c := newClassifier(fx, llmClient, &fakeSink{})

	_, err := c.Classify(context.Background(), fx.msg.ID)
	require.NoError(t, err)

	req := llmClient.lastRequest(t)
	require.Contains(t, req.Prompt, "I was charged twice for order #12345")
	require.Contains(t, req.Prompt, "premium")
	require.Contains(t, req.Prompt, "Billing")
	require.Contains(t, req.Prompt, "online_agents=3")
	require.NotEmpty(t, req.SchemaHint)

	// A second run sees the first classification as prior context.
	_, err = c.Classify(context.Background(), fx.msg.ID)
	require.NoError(t, err)
	require.Contains(t, llmClient.lastRequest(t).Prompt, "Previous classification")
}
