package knowledge

import (
	"math"
	"sort"

	"github.com/helpdeck-io/triage-engine/internal/models"
)

// Match pairs an article with its relevance to a query.
type Match struct {
	Article   *models.KnowledgeArticle `json:"article"`
	Relevance float64                  `json:"relevance"`
}

// MeanRelevance returns the average relevance of the matches, 0 for an
// empty set.
func MeanRelevance(matches []Match) float64 {
	if len(matches) == 0 {
		return 0
	}
	var sum float64
	for _, m := range matches {
		sum += m.Relevance
	}
	return sum / float64(len(matches))
}

// cosineSimilarity returns 0 for mismatched dimensions or zero vectors so
// unembedded articles never rank.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// rankArticles scores articles against the query vector and returns the
// top k strictly above minRelevance, highest first. Ties are broken by
// article id ascending so an unchanged index always yields the same
// ordering.
func rankArticles(articles []*models.KnowledgeArticle, query []float64, k int, minRelevance float64) []Match {
	matches := make([]Match, 0, len(articles))
	for _, article := range articles {
		relevance := cosineSimilarity(query, article.Embedding)
		if relevance > minRelevance {
			matches = append(matches, Match{Article: article, Relevance: relevance})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Relevance != matches[j].Relevance {
			return matches[i].Relevance > matches[j].Relevance
		}
		return matches[i].Article.ID < matches[j].Article.ID
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
