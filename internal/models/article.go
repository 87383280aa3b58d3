package models

import "time"

// KnowledgeArticle is a help-center article with its embedding vector.
// Only published articles are eligible for retrieval. The embedding must
// always correspond to the current content; the knowledge service
// re-embeds on every content write.
type KnowledgeArticle struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"account_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Category  string    `json:"category,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Embedding []float64 `json:"-"`
	Published bool      `json:"published"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Excerpt returns the leading max characters of content for prompt use,
// cutting on a rune boundary.
func (a *KnowledgeArticle) Excerpt(max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(a.Content)
	if len(runes) <= max {
		return a.Content
	}
	return string(runes[:max]) + "..."
}
