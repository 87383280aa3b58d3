package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helpdeck-io/triage-engine/internal/models"
)

// MemoryStorage implements Storage with in-memory maps. It backs local
// development and tests; behavior mirrors the Postgres adapter, including
// the conditional draft transition.
type MemoryStorage struct {
	mu sync.RWMutex

	contacts        map[int64]*models.Contact
	conversations   map[int64]*models.Conversation
	messages        map[string]*models.Message
	classifications map[int64][]*models.Classification
	drafts          map[string]*models.Draft
	teams           map[int64]*models.Team
	agents          map[int64]*models.Agent
	teamMembers     map[int64][]int64
	articles        map[int64]*models.KnowledgeArticle

	nextContactID      int64
	nextConversationID int64
	nextTeamID         int64
	nextAgentID        int64
	nextArticleID      int64
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		contacts:        make(map[int64]*models.Contact),
		conversations:   make(map[int64]*models.Conversation),
		messages:        make(map[string]*models.Message),
		classifications: make(map[int64][]*models.Classification),
		drafts:          make(map[string]*models.Draft),
		teams:           make(map[int64]*models.Team),
		agents:          make(map[int64]*models.Agent),
		teamMembers:     make(map[int64][]int64),
		articles:        make(map[int64]*models.KnowledgeArticle),
	}
}

func (s *MemoryStorage) Close() error {
	return nil
}

// ---- contacts & conversations ----

func (s *MemoryStorage) CreateContact(ctx context.Context, contact *models.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextContactID++
	contact.ID = s.nextContactID
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = time.Now()
	}
	c := *contact
	s.contacts[contact.ID] = &c
	return nil
}

func (s *MemoryStorage) GetContact(ctx context.Context, id int64) (*models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contact, ok := s.contacts[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *contact
	return &c, nil
}

func (s *MemoryStorage) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextConversationID++
	conv.ID = s.nextConversationID
	if conv.Status == "" {
		conv.Status = models.ConversationOpen
	}
	now := time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now
	c := copyConversation(conv)
	s.conversations[conv.ID] = c
	return nil
}

func (s *MemoryStorage) GetConversation(ctx context.Context, id int64) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyConversation(conv), nil
}

func (s *MemoryStorage) FindConversationByExternalID(ctx context.Context, channel models.Channel, externalID string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *models.Conversation
	for _, conv := range s.conversations {
		if conv.Channel != channel || conv.ExternalID != externalID || conv.Status != models.ConversationOpen {
			continue
		}
		if found == nil || conv.ID > found.ID {
			found = conv
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return copyConversation(found), nil
}

func (s *MemoryStorage) AssignConversation(ctx context.Context, conversationID, teamID, agentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[agentID]
	if !ok || !agent.Assignable() {
		return ErrAgentAtCapacity
	}
	conv, ok := s.conversations[conversationID]
	if !ok || conv.Status != models.ConversationOpen {
		return ErrNotFound
	}

	agent.CurrentLoad++
	tID, aID := teamID, agentID
	conv.TeamID = &tID
	conv.AssigneeID = &aID
	conv.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) QueueConversation(ctx context.Context, conversationID, teamID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok || conv.Status != models.ConversationOpen {
		return ErrNotFound
	}
	tID := teamID
	conv.TeamID = &tID
	conv.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) ReleaseAssignment(ctx context.Context, conversationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	if conv.AssigneeID == nil {
		return nil
	}
	if agent, ok := s.agents[*conv.AssigneeID]; ok && agent.CurrentLoad > 0 {
		agent.CurrentLoad--
	}
	conv.AssigneeID = nil
	conv.UpdatedAt = time.Now()
	return nil
}

// ---- messages ----

func (s *MemoryStorage) CreateMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	m := copyMessage(msg)
	s.messages[msg.ID] = m
	return nil
}

func (s *MemoryStorage) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyMessage(msg), nil
}

func (s *MemoryStorage) ListConversationMessages(ctx context.Context, conversationID int64, limit int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var messages []*models.Message
	for _, msg := range s.messages {
		if msg.ConversationID == conversationID {
			messages = append(messages, copyMessage(msg))
		}
	}
	sort.Slice(messages, func(i, j int) bool {
		if !messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].CreatedAt.Before(messages[j].CreatedAt)
		}
		return messages[i].ID < messages[j].ID
	})
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

// ---- classifications ----

func (s *MemoryStorage) CreateClassification(ctx context.Context, cl *models.Classification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cl.ID == "" {
		cl.ID = uuid.New().String()
	}
	if cl.CreatedAt.IsZero() {
		cl.CreatedAt = time.Now()
	}
	c := copyClassification(cl)
	s.classifications[cl.ConversationID] = append(s.classifications[cl.ConversationID], c)
	return nil
}

func (s *MemoryStorage) LatestClassification(ctx context.Context, conversationID int64) (*models.Classification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.classifications[conversationID]
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	// Later insertion wins ties on CreatedAt.
	latest := list[0]
	for _, cl := range list[1:] {
		if !cl.CreatedAt.Before(latest.CreatedAt) {
			latest = cl
		}
	}
	return copyClassification(latest), nil
}

// ---- drafts ----

func (s *MemoryStorage) CreateDraft(ctx context.Context, draft *models.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if draft.ID == "" {
		draft.ID = uuid.New().String()
	}
	if draft.Status == "" {
		draft.Status = models.DraftPending
	}
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = time.Now()
	}
	d := copyDraft(draft)
	s.drafts[draft.ID] = d
	return nil
}

func (s *MemoryStorage) GetDraft(ctx context.Context, id string) (*models.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	draft, ok := s.drafts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDraft(draft), nil
}

func (s *MemoryStorage) PendingDraftForMessage(ctx context.Context, messageID string) (*models.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, draft := range s.drafts {
		if draft.MessageID == messageID && draft.Status == models.DraftPending {
			return copyDraft(draft), nil
		}
	}
	return nil, ErrNotFound
}

// TransitionDraft checks and updates under one lock, so of two concurrent
// reviews exactly one succeeds and the other sees ErrNotPending.
func (s *MemoryStorage) TransitionDraft(ctx context.Context, tr DraftTransition) (*models.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft, ok := s.drafts[tr.DraftID]
	if !ok {
		return nil, ErrNotFound
	}
	if draft.Status != models.DraftPending {
		return nil, ErrNotPending
	}

	draft.Status = tr.Status
	draft.ReviewedBy = tr.ReviewerID
	draft.EditedContent = tr.EditedContent
	draft.RejectReason = tr.RejectReason
	reviewedAt := tr.ReviewedAt
	draft.ReviewedAt = &reviewedAt
	return copyDraft(draft), nil
}

func (s *MemoryStorage) ExpireDraftsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	count := 0
	for _, draft := range s.drafts {
		if draft.Status == models.DraftPending && draft.CreatedAt.Before(cutoff) {
			draft.Status = models.DraftExpired
			t := now
			draft.ReviewedAt = &t
			count++
		}
	}
	return count, nil
}

func (s *MemoryStorage) DraftStats(ctx context.Context, accountID int64) (models.DraftStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats models.DraftStats
	for _, draft := range s.drafts {
		conv, ok := s.conversations[draft.ConversationID]
		if !ok || conv.AccountID != accountID {
			continue
		}
		switch draft.Status {
		case models.DraftPending:
			stats.Pending++
		case models.DraftAccepted:
			stats.Accepted++
		case models.DraftEdited:
			stats.Edited++
		case models.DraftRejected:
			stats.Rejected++
		case models.DraftExpired:
			stats.Expired++
		}
	}
	return stats, nil
}

// ---- teams & agents ----

// AddTeam seeds a team. Team and agent records are owned by the wider
// platform; the engine only reads them, so the memory backend exposes
// seeding helpers instead of interface methods.
func (s *MemoryStorage) AddTeam(team *models.Team) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if team.ID == 0 {
		s.nextTeamID++
		team.ID = s.nextTeamID
	} else if team.ID > s.nextTeamID {
		s.nextTeamID = team.ID
	}
	t := *team
	t.Categories = append([]string(nil), team.Categories...)
	s.teams[team.ID] = &t
}

// AddAgent seeds an agent.
func (s *MemoryStorage) AddAgent(agent *models.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if agent.ID == 0 {
		s.nextAgentID++
		agent.ID = s.nextAgentID
	} else if agent.ID > s.nextAgentID {
		s.nextAgentID = agent.ID
	}
	s.agents[agent.ID] = copyAgent(agent)
}

// AddTeamMember links an agent into a team.
func (s *MemoryStorage) AddTeamMember(teamID, agentID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.teamMembers[teamID] {
		if id == agentID {
			return
		}
	}
	s.teamMembers[teamID] = append(s.teamMembers[teamID], agentID)
}

// SetAgentAvailability updates a seeded agent's availability.
func (s *MemoryStorage) SetAgentAvailability(agentID int64, availability models.Availability) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[agentID]
	if !ok {
		return ErrNotFound
	}
	agent.Availability = availability
	return nil
}

func (s *MemoryStorage) GetTeam(ctx context.Context, id int64) (*models.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	team, ok := s.teams[id]
	if !ok {
		return nil, ErrNotFound
	}
	t := *team
	t.Categories = append([]string(nil), team.Categories...)
	return &t, nil
}

func (s *MemoryStorage) ListTeams(ctx context.Context, accountID int64) ([]*models.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var teams []*models.Team
	for _, team := range s.teams {
		if team.AccountID != accountID {
			continue
		}
		t := *team
		t.Categories = append([]string(nil), team.Categories...)
		teams = append(teams, &t)
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].ID < teams[j].ID })
	return teams, nil
}

func (s *MemoryStorage) ListTeamAgents(ctx context.Context, teamID int64) ([]*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var agents []*models.Agent
	for _, agentID := range s.teamMembers[teamID] {
		if agent, ok := s.agents[agentID]; ok {
			agents = append(agents, copyAgent(agent))
		}
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents, nil
}

func (s *MemoryStorage) GetAgent(ctx context.Context, id int64) (*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agent, ok := s.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAgent(agent), nil
}

func (s *MemoryStorage) TeamLoad(ctx context.Context, teamID int64) (*models.TeamLoad, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	load := &models.TeamLoad{TeamID: teamID}
	var sumLoad, sumCapacity float64
	for _, agentID := range s.teamMembers[teamID] {
		agent, ok := s.agents[agentID]
		if !ok {
			continue
		}
		if agent.Availability == models.AvailabilityOnline {
			load.OnlineAgents++
		}
		sumLoad += float64(agent.CurrentLoad)
		sumCapacity += float64(agent.MaxCapacity)
	}
	if sumCapacity > 0 {
		load.Utilization = sumLoad / sumCapacity
	}
	return load, nil
}

// ---- knowledge articles ----

func (s *MemoryStorage) SaveArticle(ctx context.Context, article *models.KnowledgeArticle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if article.ID == 0 {
		s.nextArticleID++
		article.ID = s.nextArticleID
		if article.CreatedAt.IsZero() {
			article.CreatedAt = now
		}
	} else if _, ok := s.articles[article.ID]; !ok {
		return ErrNotFound
	}
	article.UpdatedAt = now
	s.articles[article.ID] = copyArticle(article)
	return nil
}

func (s *MemoryStorage) GetArticle(ctx context.Context, id int64) (*models.KnowledgeArticle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	article, ok := s.articles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyArticle(article), nil
}

func (s *MemoryStorage) ListPublishedArticles(ctx context.Context, accountID int64) ([]*models.KnowledgeArticle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var articles []*models.KnowledgeArticle
	for _, article := range s.articles {
		if article.AccountID == accountID && article.Published {
			articles = append(articles, copyArticle(article))
		}
	}
	sort.Slice(articles, func(i, j int) bool { return articles[i].ID < articles[j].ID })
	return articles, nil
}

// ---- copy helpers ----

func copyConversation(conv *models.Conversation) *models.Conversation {
	c := *conv
	if conv.TeamID != nil {
		v := *conv.TeamID
		c.TeamID = &v
	}
	if conv.AssigneeID != nil {
		v := *conv.AssigneeID
		c.AssigneeID = &v
	}
	return &c
}

func copyMessage(msg *models.Message) *models.Message {
	m := *msg
	if msg.SourceDraftID != nil {
		v := *msg.SourceDraftID
		m.SourceDraftID = &v
	}
	return &m
}

func copyClassification(cl *models.Classification) *models.Classification {
	c := *cl
	if cl.SuggestedTeamID != nil {
		v := *cl.SuggestedTeamID
		c.SuggestedTeamID = &v
	}
	if cl.SuggestedAgentID != nil {
		v := *cl.SuggestedAgentID
		c.SuggestedAgentID = &v
	}
	return &c
}

func copyDraft(draft *models.Draft) *models.Draft {
	d := *draft
	if draft.EditedContent != nil {
		v := *draft.EditedContent
		d.EditedContent = &v
	}
	if draft.ReviewedBy != nil {
		v := *draft.ReviewedBy
		d.ReviewedBy = &v
	}
	if draft.ReviewedAt != nil {
		v := *draft.ReviewedAt
		d.ReviewedAt = &v
	}
	d.ArticleIDs = append([]int64(nil), draft.ArticleIDs...)
	return &d
}

func copyAgent(agent *models.Agent) *models.Agent {
	a := *agent
	a.Skills = append([]string(nil), agent.Skills...)
	a.Languages = append([]string(nil), agent.Languages...)
	return &a
}

func copyArticle(article *models.KnowledgeArticle) *models.KnowledgeArticle {
	a := *article
	a.Tags = append([]string(nil), article.Tags...)
	a.Embedding = append([]float64(nil), article.Embedding...)
	return &a
}
