package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/helpdeck-io/triage-engine/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

// PostgresStorage implements Storage on PostgreSQL.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	s := &PostgresStorage{db: db, logger: logger}
	if err := s.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}
	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

// DB exposes the underlying handle so the queue can share the connection
// pool.
func (s *PostgresStorage) DB() *sql.DB {
	return s.db
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

// ---- contacts & conversations ----

func (s *PostgresStorage) CreateContact(ctx context.Context, contact *models.Contact) error {
	query := `
		INSERT INTO contacts (account_id, name, email, tier, language)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query,
		contact.AccountID, contact.Name, contact.Email, contact.Tier, contact.Language,
	).Scan(&contact.ID, &contact.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating contact: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetContact(ctx context.Context, id int64) (*models.Contact, error) {
	query := `
		SELECT id, account_id, name, email, tier, language, created_at
		FROM contacts WHERE id = $1`

	contact := &models.Contact{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&contact.ID, &contact.AccountID, &contact.Name, &contact.Email,
		&contact.Tier, &contact.Language, &contact.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying contact: %w", err)
	}
	return contact, nil
}

func (s *PostgresStorage) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv.Status == "" {
		conv.Status = models.ConversationOpen
	}
	query := `
		INSERT INTO conversations (account_id, contact_id, channel, external_id, status, team_id, assignee_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query,
		conv.AccountID, conv.ContactID, conv.Channel, conv.ExternalID,
		conv.Status, nullInt64(conv.TeamID), nullInt64(conv.AssigneeID),
	).Scan(&conv.ID, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error creating conversation: %w", err)
	}
	return nil
}

const conversationColumns = `id, account_id, contact_id, channel, external_id, status, team_id, assignee_id, created_at, updated_at`

func (s *PostgresStorage) scanConversation(row *sql.Row) (*models.Conversation, error) {
	conv := &models.Conversation{}
	var teamID, assigneeID sql.NullInt64
	err := row.Scan(
		&conv.ID, &conv.AccountID, &conv.ContactID, &conv.Channel, &conv.ExternalID,
		&conv.Status, &teamID, &assigneeID, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning conversation: %w", err)
	}
	conv.TeamID = int64Ptr(teamID)
	conv.AssigneeID = int64Ptr(assigneeID)
	return conv, nil
}

func (s *PostgresStorage) GetConversation(ctx context.Context, id int64) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	return s.scanConversation(row)
}

func (s *PostgresStorage) FindConversationByExternalID(ctx context.Context, channel models.Channel, externalID string) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+`
		 FROM conversations
		 WHERE channel = $1 AND external_id = $2 AND status = 'open'
		 ORDER BY id DESC LIMIT 1`,
		channel, externalID)
	return s.scanConversation(row)
}

// AssignConversation increments the agent's load and records the
// assignment in one transaction. The conditional UPDATE on the agent row
// is the capacity gate: load never exceeds max_capacity.
func (s *PostgresStorage) AssignConversation(ctx context.Context, conversationID, teamID, agentID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting assignment tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE agents
		 SET current_load = current_load + 1
		 WHERE id = $1 AND availability = 'online' AND current_load < max_capacity`,
		agentID)
	if err != nil {
		return fmt.Errorf("error incrementing agent load: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAgentAtCapacity
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE conversations
		 SET team_id = $2, assignee_id = $3, updated_at = now()
		 WHERE id = $1 AND status = 'open'`,
		conversationID, teamID, agentID)
	if err != nil {
		return fmt.Errorf("error updating conversation assignment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

func (s *PostgresStorage) QueueConversation(ctx context.Context, conversationID, teamID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations
		 SET team_id = $2, updated_at = now()
		 WHERE id = $1 AND status = 'open'`,
		conversationID, teamID)
	if err != nil {
		return fmt.Errorf("error queueing conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseAssignment clears the assignee and gives the agent its load slot
// back. Releasing an unassigned conversation is a no-op.
func (s *PostgresStorage) ReleaseAssignment(ctx context.Context, conversationID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting release tx: %w", err)
	}
	defer tx.Rollback()

	var assignee sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT assignee_id FROM conversations WHERE id = $1 FOR UPDATE`,
		conversationID).Scan(&assignee)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("error locking conversation: %w", err)
	}
	if !assignee.Valid {
		return nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE agents SET current_load = GREATEST(current_load - 1, 0) WHERE id = $1`,
		assignee.Int64); err != nil {
		return fmt.Errorf("error decrementing agent load: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET assignee_id = NULL, updated_at = now() WHERE id = $1`,
		conversationID); err != nil {
		return fmt.Errorf("error clearing assignment: %w", err)
	}

	return tx.Commit()
}

// ---- messages ----

func (s *PostgresStorage) CreateMessage(ctx context.Context, msg *models.Message) error {
	query := `
		INSERT INTO messages (id, conversation_id, sender, content, source_draft_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := s.db.QueryRowContext(ctx, query,
		msg.ID, msg.ConversationID, msg.Sender, msg.Content, nullString(msg.SourceDraftID),
	).Scan(&msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating message: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	query := `
		SELECT id, conversation_id, sender, content, source_draft_id, created_at
		FROM messages WHERE id = $1`

	msg := &models.Message{}
	var sourceDraft sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID, &msg.ConversationID, &msg.Sender, &msg.Content, &sourceDraft, &msg.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying message: %w", err)
	}
	msg.SourceDraftID = stringPtr(sourceDraft)
	return msg, nil
}

// ListConversationMessages returns the last limit messages in
// chronological order.
func (s *PostgresStorage) ListConversationMessages(ctx context.Context, conversationID int64, limit int) ([]*models.Message, error) {
	query := `
		SELECT id, conversation_id, sender, content, source_draft_id, created_at FROM (
			SELECT id, conversation_id, sender, content, source_draft_id, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		var sourceDraft sql.NullString
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Sender, &msg.Content, &sourceDraft, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning message: %w", err)
		}
		msg.SourceDraftID = stringPtr(sourceDraft)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ---- classifications ----

func (s *PostgresStorage) CreateClassification(ctx context.Context, cl *models.Classification) error {
	query := `
		INSERT INTO classifications
			(id, conversation_id, message_id, category, priority, sentiment, language,
			 confidence, reasoning, suggested_team_id, suggested_agent_id, degraded)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at`

	err := s.db.QueryRowContext(ctx, query,
		cl.ID, cl.ConversationID, cl.MessageID, cl.Category, cl.Priority, cl.Sentiment,
		cl.Language, cl.Confidence, cl.Reasoning,
		nullInt64(cl.SuggestedTeamID), nullInt64(cl.SuggestedAgentID), cl.Degraded,
	).Scan(&cl.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating classification: %w", err)
	}
	return nil
}

func (s *PostgresStorage) LatestClassification(ctx context.Context, conversationID int64) (*models.Classification, error) {
	query := `
		SELECT id, conversation_id, message_id, category, priority, sentiment, language,
		       confidence, reasoning, suggested_team_id, suggested_agent_id, degraded, created_at
		FROM classifications
		WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	cl := &models.Classification{}
	var teamID, agentID sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, conversationID).Scan(
		&cl.ID, &cl.ConversationID, &cl.MessageID, &cl.Category, &cl.Priority,
		&cl.Sentiment, &cl.Language, &cl.Confidence, &cl.Reasoning,
		&teamID, &agentID, &cl.Degraded, &cl.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying classification: %w", err)
	}
	cl.SuggestedTeamID = int64Ptr(teamID)
	cl.SuggestedAgentID = int64Ptr(agentID)
	return cl, nil
}

// ---- drafts ----

func (s *PostgresStorage) CreateDraft(ctx context.Context, draft *models.Draft) error {
	if draft.Status == "" {
		draft.Status = models.DraftPending
	}
	query := `
		INSERT INTO drafts
			(id, conversation_id, message_id, content, confidence, reasoning, status, article_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	err := s.db.QueryRowContext(ctx, query,
		draft.ID, draft.ConversationID, draft.MessageID, draft.Content,
		draft.Confidence, draft.Reasoning, draft.Status, pq.Array(draft.ArticleIDs),
	).Scan(&draft.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating draft: %w", err)
	}
	return nil
}

const draftColumns = `id, conversation_id, message_id, content, edited_content, confidence,
	reasoning, status, reject_reason, article_ids, reviewed_by, created_at, reviewed_at`

func scanDraft(scanner interface{ Scan(...any) error }) (*models.Draft, error) {
	draft := &models.Draft{}
	var (
		edited     sql.NullString
		reviewedBy sql.NullInt64
		reviewedAt sql.NullTime
		articleIDs pq.Int64Array
	)
	err := scanner.Scan(
		&draft.ID, &draft.ConversationID, &draft.MessageID, &draft.Content, &edited,
		&draft.Confidence, &draft.Reasoning, &draft.Status, &draft.RejectReason,
		&articleIDs, &reviewedBy, &draft.CreatedAt, &reviewedAt,
	)
	if err != nil {
		return nil, err
	}
	draft.EditedContent = stringPtr(edited)
	draft.ReviewedBy = int64Ptr(reviewedBy)
	draft.ArticleIDs = []int64(articleIDs)
	if reviewedAt.Valid {
		t := reviewedAt.Time
		draft.ReviewedAt = &t
	}
	return draft, nil
}

func (s *PostgresStorage) GetDraft(ctx context.Context, id string) (*models.Draft, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+draftColumns+` FROM drafts WHERE id = $1`, id)
	draft, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying draft: %w", err)
	}
	return draft, nil
}

func (s *PostgresStorage) PendingDraftForMessage(ctx context.Context, messageID string) (*models.Draft, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+draftColumns+` FROM drafts WHERE message_id = $1 AND status = 'pending' LIMIT 1`,
		messageID)
	draft, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying pending draft: %w", err)
	}
	return draft, nil
}

// TransitionDraft performs the single conditional update that resolves
// concurrent reviews: only the caller that finds status=pending wins, the
// loser gets ErrNotPending.
func (s *PostgresStorage) TransitionDraft(ctx context.Context, tr DraftTransition) (*models.Draft, error) {
	query := `
		UPDATE drafts
		SET status = $2, reviewed_by = $3, edited_content = $4, reject_reason = $5, reviewed_at = $6
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + draftColumns

	row := s.db.QueryRowContext(ctx, query,
		tr.DraftID, tr.Status, nullInt64(tr.ReviewerID), nullString(tr.EditedContent),
		tr.RejectReason, tr.ReviewedAt,
	)
	draft, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		// Either the draft does not exist or it already left pending.
		if _, getErr := s.GetDraft(ctx, tr.DraftID); errors.Is(getErr, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, ErrNotPending
	}
	if err != nil {
		return nil, fmt.Errorf("error transitioning draft: %w", err)
	}
	return draft, nil
}

func (s *PostgresStorage) ExpireDraftsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE drafts SET status = 'expired', reviewed_at = now()
		 WHERE status = 'pending' AND created_at < $1`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("error expiring drafts: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *PostgresStorage) DraftStats(ctx context.Context, accountID int64) (models.DraftStats, error) {
	query := `
		SELECT d.status, COUNT(*)
		FROM drafts d
		JOIN conversations c ON c.id = d.conversation_id
		WHERE c.account_id = $1
		GROUP BY d.status`

	rows, err := s.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return models.DraftStats{}, fmt.Errorf("error querying draft stats: %w", err)
	}
	defer rows.Close()

	var stats models.DraftStats
	for rows.Next() {
		var status models.DraftStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return models.DraftStats{}, fmt.Errorf("error scanning draft stats: %w", err)
		}
		switch status {
		case models.DraftPending:
			stats.Pending = count
		case models.DraftAccepted:
			stats.Accepted = count
		case models.DraftEdited:
			stats.Edited = count
		case models.DraftRejected:
			stats.Rejected = count
		case models.DraftExpired:
			stats.Expired = count
		}
	}
	return stats, rows.Err()
}

// ---- teams & agents ----

func (s *PostgresStorage) GetTeam(ctx context.Context, id int64) (*models.Team, error) {
	team := &models.Team{}
	var categories pq.StringArray
	err := s.db.QueryRowContext(ctx,
		`SELECT id, account_id, name, categories FROM teams WHERE id = $1`, id,
	).Scan(&team.ID, &team.AccountID, &team.Name, &categories)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying team: %w", err)
	}
	team.Categories = []string(categories)
	return team, nil
}

func (s *PostgresStorage) ListTeams(ctx context.Context, accountID int64) ([]*models.Team, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, name, categories FROM teams WHERE account_id = $1 ORDER BY id`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("error querying teams: %w", err)
	}
	defer rows.Close()

	var teams []*models.Team
	for rows.Next() {
		team := &models.Team{}
		var categories pq.StringArray
		if err := rows.Scan(&team.ID, &team.AccountID, &team.Name, &categories); err != nil {
			return nil, fmt.Errorf("error scanning team: %w", err)
		}
		team.Categories = []string(categories)
		teams = append(teams, team)
	}
	return teams, rows.Err()
}

const agentColumns = `a.id, a.account_id, a.name, a.availability, a.current_load,
	a.max_capacity, a.skills, a.languages, a.quality_score`

func scanAgent(scanner interface{ Scan(...any) error }) (*models.Agent, error) {
	agent := &models.Agent{}
	var skills, languages pq.StringArray
	err := scanner.Scan(
		&agent.ID, &agent.AccountID, &agent.Name, &agent.Availability,
		&agent.CurrentLoad, &agent.MaxCapacity, &skills, &languages, &agent.QualityScore,
	)
	if err != nil {
		return nil, err
	}
	agent.Skills = []string(skills)
	agent.Languages = []string(languages)
	return agent, nil
}

func (s *PostgresStorage) ListTeamAgents(ctx context.Context, teamID int64) ([]*models.Agent, error) {
	query := `
		SELECT ` + agentColumns + `
		FROM team_members tm
		JOIN agents a ON a.id = tm.agent_id
		WHERE tm.team_id = $1
		ORDER BY a.id`

	rows, err := s.db.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("error querying team agents: %w", err)
	}
	defer rows.Close()

	var agents []*models.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning agent: %w", err)
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

func (s *PostgresStorage) GetAgent(ctx context.Context, id int64) (*models.Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents a WHERE a.id = $1`, id)
	agent, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying agent: %w", err)
	}
	return agent, nil
}

func (s *PostgresStorage) TeamLoad(ctx context.Context, teamID int64) (*models.TeamLoad, error) {
	query := `
		SELECT COUNT(*) FILTER (WHERE a.availability = 'online'),
		       COALESCE(SUM(a.current_load), 0),
		       COALESCE(SUM(a.max_capacity), 0)
		FROM team_members tm
		JOIN agents a ON a.id = tm.agent_id
		WHERE tm.team_id = $1`

	var online int
	var sumLoad, sumCapacity float64
	err := s.db.QueryRowContext(ctx, query, teamID).Scan(&online, &sumLoad, &sumCapacity)
	if err != nil {
		return nil, fmt.Errorf("error querying team load: %w", err)
	}

	load := &models.TeamLoad{TeamID: teamID, OnlineAgents: online}
	if sumCapacity > 0 {
		load.Utilization = sumLoad / sumCapacity
	}
	return load, nil
}

// ---- knowledge articles ----

// SaveArticle inserts or updates an article. Callers go through the
// knowledge service so the embedding always matches the content written.
func (s *PostgresStorage) SaveArticle(ctx context.Context, article *models.KnowledgeArticle) error {
	if article.ID == 0 {
		query := `
			INSERT INTO knowledge_articles
				(account_id, title, content, category, tags, embedding, published)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at, updated_at`
		err := s.db.QueryRowContext(ctx, query,
			article.AccountID, article.Title, article.Content, article.Category,
			pq.Array(article.Tags), pq.Array(article.Embedding), article.Published,
		).Scan(&article.ID, &article.CreatedAt, &article.UpdatedAt)
		if err != nil {
			return fmt.Errorf("error creating article: %w", err)
		}
		return nil
	}

	query := `
		UPDATE knowledge_articles
		SET title = $2, content = $3, category = $4, tags = $5, embedding = $6,
		    published = $7, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`
	err := s.db.QueryRowContext(ctx, query,
		article.ID, article.Title, article.Content, article.Category,
		pq.Array(article.Tags), pq.Array(article.Embedding), article.Published,
	).Scan(&article.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("error updating article: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetArticle(ctx context.Context, id int64) (*models.KnowledgeArticle, error) {
	query := `
		SELECT id, account_id, title, content, category, tags, embedding, published, created_at, updated_at
		FROM knowledge_articles WHERE id = $1`

	article := &models.KnowledgeArticle{}
	var tags pq.StringArray
	var embedding pq.Float64Array
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&article.ID, &article.AccountID, &article.Title, &article.Content, &article.Category,
		&tags, &embedding, &article.Published, &article.CreatedAt, &article.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying article: %w", err)
	}
	article.Tags = []string(tags)
	article.Embedding = []float64(embedding)
	return article, nil
}

func (s *PostgresStorage) ListPublishedArticles(ctx context.Context, accountID int64) ([]*models.KnowledgeArticle, error) {
	query := `
		SELECT id, account_id, title, content, category, tags, embedding, published, created_at, updated_at
		FROM knowledge_articles
		WHERE account_id = $1 AND published
		ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("error querying articles: %w", err)
	}
	defer rows.Close()

	var articles []*models.KnowledgeArticle
	for rows.Next() {
		article := &models.KnowledgeArticle{}
		var tags pq.StringArray
		var embedding pq.Float64Array
		if err := rows.Scan(
			&article.ID, &article.AccountID, &article.Title, &article.Content, &article.Category,
			&tags, &embedding, &article.Published, &article.CreatedAt, &article.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning article: %w", err)
		}
		article.Tags = []string(tags)
		article.Embedding = []float64(embedding)
		articles = append(articles, article)
	}
	return articles, rows.Err()
}

// ---- scan helpers ----

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
