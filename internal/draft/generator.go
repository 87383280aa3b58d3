package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helpdeck-io/triage-engine/internal/knowledge"
	"github.com/helpdeck-io/triage-engine/internal/llm"
	"github.com/helpdeck-io/triage-engine/internal/models"
	"github.com/helpdeck-io/triage-engine/internal/notify"
	"github.com/helpdeck-io/triage-engine/internal/storage"
)

const (
	defaultHistoryTurns    = 10
	defaultExcerptLength   = 400
	defaultModelConfidence = 0.5
	modelConfidenceWeight  = 0.6
	articleRelevanceWeight = 0.4
)

// Store is the storage surface the generator reads and writes.
type Store interface {
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	GetConversation(ctx context.Context, id int64) (*models.Conversation, error)
	LatestClassification(ctx context.Context, conversationID int64) (*models.Classification, error)
	ListConversationMessages(ctx context.Context, conversationID int64, limit int) ([]*models.Message, error)
	PendingDraftForMessage(ctx context.Context, messageID string) (*models.Draft, error)
	CreateDraft(ctx context.Context, draft *models.Draft) error
}

// Retriever finds supporting knowledge articles for a query.
type Retriever interface {
	Retrieve(ctx context.Context, accountID int64, query string) ([]knowledge.Match, error)
}

// GeneratorOptions tunes draft generation. Zero values fall back to
// defaults.
type GeneratorOptions struct {
	HistoryTurns  int
	ExcerptLength int
	MaxTokens     int
	Temperature   float64
}

// Generator produces one pending draft reply per customer message,
// grounded on retrieved knowledge articles.
type Generator struct {
	store     Store
	retriever Retriever
	llm       llm.Client
	events    notify.Sink
	logger    *zap.Logger
	opts      GeneratorOptions
}

func NewGenerator(store Store, retriever Retriever, client llm.Client, events notify.Sink, opts GeneratorOptions, logger *zap.Logger) *Generator {
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = defaultHistoryTurns
	}
	if opts.ExcerptLength <= 0 {
		opts.ExcerptLength = defaultExcerptLength
	}
	return &Generator{
		store:     store,
		retriever: retriever,
		llm:       client,
		events:    events,
		logger:    logger,
		opts:      opts,
	}
}

// Generate drafts a reply for the message. Re-delivery is safe: if a
// pending draft already exists for the message it is returned unchanged.
// Classification may still be in flight; generation does not wait for it.
func (g *Generator) Generate(ctx context.Context, messageID string) (*models.Draft, error) {
	if existing, err := g.store.PendingDraftForMessage(ctx, messageID); err == nil {
		g.logger.Debug("pending draft exists, skipping generation",
			zap.String("message_id", messageID),
			zap.String("draft_id", existing.ID))
		return existing, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("checking for pending draft: %w", err)
	}

	msg, err := g.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("loading message %s: %w", messageID, err)
	}
	conv, err := g.store.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation %d: %w", msg.ConversationID, err)
	}

	cl, err := g.store.LatestClassification(ctx, conv.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("loading classification: %w", err)
	}

	matches, err := g.retriever.Retrieve(ctx, conv.AccountID, msg.Content)
	if err != nil {
		return nil, fmt.Errorf("retrieving articles: %w", err)
	}

	history, err := g.store.ListConversationMessages(ctx, conv.ID, g.opts.HistoryTurns)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	req := buildDraftPrompt(msg, cl, history, matches, g.opts.ExcerptLength, g.opts.MaxTokens, g.opts.Temperature)
	response, err := g.llm.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("draft completion: %w", err)
	}

	parsed := parseDraftResponse(response)
	if parsed.content == "" {
		return nil, &llm.ProviderError{Kind: llm.KindMalformed, Message: "draft response has no content"}
	}

	articleIDs := make([]int64, len(matches))
	for i, match := range matches {
		articleIDs[i] = match.Article.ID
	}

	d := &models.Draft{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		Content:        parsed.content,
		Confidence:     deriveConfidence(parsed, matches),
		Reasoning:      parsed.reasoning,
		Status:         models.DraftPending,
		ArticleIDs:     articleIDs,
	}
	if err := g.store.CreateDraft(ctx, d); err != nil {
		return nil, fmt.Errorf("persisting draft: %w", err)
	}

	g.events.Publish(notify.Event{
		Type:           notify.EventDraftReady,
		ConversationID: conv.ID,
		Data:           d,
	})

	g.logger.Info("draft generated",
		zap.String("draft_id", d.ID),
		zap.String("message_id", msg.ID),
		zap.Int64("conversation_id", conv.ID),
		zap.Float64("confidence", d.Confidence),
		zap.Int("articles", len(articleIDs)))
	return d, nil
}

// deriveConfidence blends the model's self-reported confidence with the
// mean relevance of the supporting articles. No articles means the model
// score stands alone; no self-report falls back to the default. The same
// inputs always produce the same score.
func deriveConfidence(parsed draftResponse, matches []knowledge.Match) float64 {
	modelConfidence := defaultModelConfidence
	if parsed.hasConfidence {
		modelConfidence = parsed.confidence
	}
	if len(matches) == 0 {
		return modelConfidence
	}
	return modelConfidenceWeight*modelConfidence + articleRelevanceWeight*knowledge.MeanRelevance(matches)
}

type draftResponse struct {
	content       string
	confidence    float64
	hasConfidence bool
	reasoning     string
}

// parseDraftResponse accepts either the requested JSON object or, when
// the model ignored the schema, the whole response as plain reply text.
func parseDraftResponse(response string) draftResponse {
	cleaned := llm.StripCodeFence(response)

	var payload map[string]any
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return draftResponse{content: cleaned}
	}

	var out draftResponse
	if content, ok := payload["content"].(string); ok {
		out.content = strings.TrimSpace(content)
	}
	if reasoning, ok := payload["reasoning"].(string); ok {
		out.reasoning = strings.TrimSpace(reasoning)
	}
	switch v := payload["confidence"].(type) {
	case float64:
		out.confidence, out.hasConfidence = clamp01(v), true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && !math.IsNaN(f) {
			out.confidence, out.hasConfidence = clamp01(f), true
		}
	}
	return out
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
