package knowledge

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/helpdeck-io/triage-engine/internal/llm"
	"github.com/helpdeck-io/triage-engine/internal/models"
	"github.com/helpdeck-io/triage-engine/internal/storage"
)

// ArticleStore is the storage surface the service writes through.
type ArticleStore interface {
	SaveArticle(ctx context.Context, article *models.KnowledgeArticle) error
	GetArticle(ctx context.Context, id int64) (*models.KnowledgeArticle, error)
	ListPublishedArticles(ctx context.Context, accountID int64) ([]*models.KnowledgeArticle, error)
}

// Service owns knowledge article writes. All content changes pass through
// here so a stored embedding always corresponds to the stored text.
type Service struct {
	store    ArticleStore
	embedder llm.Embedder
	logger   *zap.Logger
}

func NewService(store ArticleStore, embedder llm.Embedder, logger *zap.Logger) *Service {
	return &Service{store: store, embedder: embedder, logger: logger}
}

// embeddingInput is what gets vectorized for an article. Query embedding
// in the retriever uses the same model, so the spaces are comparable.
func embeddingInput(article *models.KnowledgeArticle) string {
	return article.Title + "\n\n" + article.Content
}

// Save persists the article, regenerating its embedding when the text
// changed or was never embedded. Flag-only updates keep the existing
// vector.
func (s *Service) Save(ctx context.Context, article *models.KnowledgeArticle) error {
	needsEmbedding := len(article.Embedding) == 0

	if article.ID != 0 {
		existing, err := s.store.GetArticle(ctx, article.ID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("loading article %d: %w", article.ID, err)
		}
		if existing != nil {
			if existing.Title != article.Title || existing.Content != article.Content {
				needsEmbedding = true
			} else if len(article.Embedding) == 0 {
				article.Embedding = existing.Embedding
				needsEmbedding = len(article.Embedding) == 0
			}
		}
	}

	if needsEmbedding {
		vec, err := s.embedder.EmbedText(ctx, embeddingInput(article))
		if err != nil {
			return fmt.Errorf("embedding article: %w", err)
		}
		article.Embedding = vec
	}

	if err := s.store.SaveArticle(ctx, article); err != nil {
		return fmt.Errorf("saving article: %w", err)
	}
	s.logger.Info("knowledge article saved",
		zap.Int64("article_id", article.ID),
		zap.Int64("account_id", article.AccountID),
		zap.Bool("reembedded", needsEmbedding))
	return nil
}

// ReindexAccount re-embeds every published article of the account in one
// batch call. Used after switching embedding models.
func (s *Service) ReindexAccount(ctx context.Context, accountID int64) (int, error) {
	articles, err := s.store.ListPublishedArticles(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("listing articles: %w", err)
	}
	if len(articles) == 0 {
		return 0, nil
	}

	inputs := make([]string, len(articles))
	for i, article := range articles {
		inputs[i] = embeddingInput(article)
	}
	vectors, err := s.embedder.EmbedTexts(ctx, inputs)
	if err != nil {
		return 0, fmt.Errorf("embedding articles: %w", err)
	}

	for i, article := range articles {
		article.Embedding = vectors[i]
		if err := s.store.SaveArticle(ctx, article); err != nil {
			return i, fmt.Errorf("saving article %d: %w", article.ID, err)
		}
	}
	s.logger.Info("knowledge account reindexed",
		zap.Int64("account_id", accountID),
		zap.Int("articles", len(articles)))
	return len(articles), nil
}
