package knowledge

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/helpdeck-io/triage-engine/internal/llm"
	"github.com/helpdeck-io/triage-engine/internal/models"
)

const (
	DefaultTopK         = 3
	DefaultMinRelevance = 0.70
)

// ArticleSource provides the published articles of an account.
type ArticleSource interface {
	ListPublishedArticles(ctx context.Context, accountID int64) ([]*models.KnowledgeArticle, error)
}

// Retriever answers free-text queries with the account's most relevant
// published articles.
type Retriever struct {
	source   ArticleSource
	embedder llm.Embedder
	logger   *zap.Logger

	topK         int
	minRelevance float64
}

// RetrieverOptions tunes retrieval. Zero values fall back to defaults.
type RetrieverOptions struct {
	TopK         int
	MinRelevance float64
}

func NewRetriever(source ArticleSource, embedder llm.Embedder, opts RetrieverOptions, logger *zap.Logger) *Retriever {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.MinRelevance <= 0 {
		opts.MinRelevance = DefaultMinRelevance
	}
	return &Retriever{
		source:       source,
		embedder:     embedder,
		logger:       logger,
		topK:         opts.TopK,
		minRelevance: opts.MinRelevance,
	}
}

// Retrieve embeds the query with the same model used to index articles
// and returns the top matches strictly above the relevance cutoff. An
// empty result is a normal outcome, not an error.
func (r *Retriever) Retrieve(ctx context.Context, accountID int64, query string) ([]Match, error) {
	if query == "" {
		return nil, nil
	}

	articles, err := r.source.ListPublishedArticles(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing articles: %w", err)
	}
	if len(articles) == 0 {
		return nil, nil
	}

	queryVec, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	matches := rankArticles(articles, queryVec, r.topK, r.minRelevance)
	r.logger.Debug("knowledge retrieval",
		zap.Int64("account_id", accountID),
		zap.Int("candidates", len(articles)),
		zap.Int("matches", len(matches)))
	return matches, nil
}
