package draft

import (
	"fmt"
	"strings"

	"github.com/helpdeck-io/triage-engine/internal/knowledge"
	"github.com/helpdeck-io/triage-engine/internal/llm"
	"github.com/helpdeck-io/triage-engine/internal/models"
)

const draftSchemaHint = `{
    "content": "the reply to send to the customer",
    "confidence": 0.85,
    "reasoning": "one sentence on why this reply fits"
}`

// toneFor maps the latest classification to writing guidance. Without a
// classification the draft stays neutral.
func toneFor(cl *models.Classification) string {
	if cl == nil {
		return "neutral and professional"
	}
	switch {
	case cl.Priority == models.PriorityUrgent:
		return "direct and to the point, acknowledging the urgency"
	case cl.Sentiment == models.SentimentFrustrated, cl.Sentiment == models.SentimentNegative:
		return "empathetic, apologize for the trouble before anything else"
	default:
		return "friendly and professional"
	}
}

func buildDraftPrompt(msg *models.Message, cl *models.Classification, history []*models.Message, matches []knowledge.Match, excerptLength, maxTokens int, temperature float64) llm.Request {
	system := fmt.Sprintf(`You draft replies that a human support agent will review before sending.
Write the reply only, no greetings to the agent, no meta commentary.
Tone: %s.
Keep the reply under 120 words. Use the knowledge base excerpts when they answer the question and do not invent policy details.`, toneFor(cl))

	var b strings.Builder

	if cl != nil {
		fmt.Fprintf(&b, "Conversation triage: category=%s priority=%s sentiment=%s language=%s\n",
			cl.Category, cl.Priority, cl.Sentiment, cl.Language)
		if cl.Language != models.LanguageOther {
			fmt.Fprintf(&b, "Reply in the customer's language (%s).\n", cl.Language)
		}
		b.WriteString("\n")
	}

	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, m := range history {
			fmt.Fprintf(&b, "%s: %s\n", m.Sender, m.Content)
		}
		b.WriteString("\n")
	}

	if len(matches) > 0 {
		b.WriteString("Knowledge base excerpts:\n")
		for _, match := range matches {
			fmt.Fprintf(&b, "[%s]\n%s\n", match.Article.Title, match.Article.Excerpt(excerptLength))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Customer message to answer:\n%s", msg.Content)

	return llm.Request{
		System:      system,
		Prompt:      b.String(),
		SchemaHint:  draftSchemaHint,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}
