package classifier

import (
	"fmt"
	"sort"
	"strings"

	"github.com/helpdeck-io/triage-engine/internal/llm"
	"github.com/helpdeck-io/triage-engine/internal/models"
)

const classifySystemPrompt = `You are the triage assistant of a customer support platform.
Classify the customer's message and suggest where to route the conversation.
Base the suggested team and agent only on the team overview provided; suggest ids from it or omit them.
Be honest about uncertainty: report low confidence instead of guessing.`

const classifySchemaHint = `{
    "category": "billing|technical|sales|general|other",
    "priority": "urgent|high|normal|low",
    "sentiment": "positive|neutral|negative|frustrated",
    "language": "en|es|fr|de|pt|other",
    "confidence": 0.95,
    "reasoning": "one or two sentences",
    "suggested_team_id": 12,
    "suggested_agent_id": 34
}`

// teamSummary is the routing context shown to the model for one team.
type teamSummary struct {
	team      *models.Team
	load      *models.TeamLoad
	topAgents []*models.Agent
}

type promptContext struct {
	message *models.Message
	contact *models.Contact
	prior   *models.Classification
	teams   []teamSummary
}

func buildClassifyPrompt(pc promptContext, maxTokens int, temperature float64) llm.Request {
	var b strings.Builder

	if pc.contact != nil {
		b.WriteString("Contact:\n")
		fmt.Fprintf(&b, "- name: %s\n", pc.contact.Name)
		if pc.contact.Tier != "" {
			fmt.Fprintf(&b, "- tier: %s\n", pc.contact.Tier)
		}
		if pc.contact.Language != "" {
			fmt.Fprintf(&b, "- preferred language: %s\n", pc.contact.Language)
		}
		b.WriteString("\n")
	}

	if pc.prior != nil {
		fmt.Fprintf(&b, "Previous classification of this conversation: category=%s priority=%s confidence=%.2f\n\n",
			pc.prior.Category, pc.prior.Priority, pc.prior.Confidence)
	}

	if len(pc.teams) > 0 {
		b.WriteString("Teams available for routing:\n")
		for _, ts := range pc.teams {
			fmt.Fprintf(&b, "- team id=%d %q", ts.team.ID, ts.team.Name)
			if len(ts.team.Categories) > 0 {
				fmt.Fprintf(&b, " handles=%s", strings.Join(ts.team.Categories, ","))
			}
			fmt.Fprintf(&b, " online_agents=%d utilization=%.0f%%\n", ts.load.OnlineAgents, ts.load.Utilization*100)
			for _, agent := range ts.topAgents {
				fmt.Fprintf(&b, "  - agent id=%d %q load=%d/%d quality=%.1f\n",
					agent.ID, agent.Name, agent.CurrentLoad, agent.MaxCapacity, agent.QualityScore)
			}
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Customer message:\n%s", pc.message.Content)

	return llm.Request{
		System:      classifySystemPrompt,
		Prompt:      b.String(),
		SchemaHint:  classifySchemaHint,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

// topAgentsByLoad returns up to limit assignable agents, least loaded
// first, mirroring how the router will rank them.
func topAgentsByLoad(agents []*models.Agent, limit int) []*models.Agent {
	candidates := make([]*models.Agent, 0, len(agents))
	for _, agent := range agents {
		if agent.Assignable() {
			candidates = append(candidates, agent)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.LoadRatio() != b.LoadRatio() {
			return a.LoadRatio() < b.LoadRatio()
		}
		if a.QualityScore != b.QualityScore {
			return a.QualityScore > b.QualityScore
		}
		return a.ID < b.ID
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}
