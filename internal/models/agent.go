package models

// Availability is an agent's presence state. Only online agents are
// eligible for routing.
type Availability string

const (
	AvailabilityOnline  Availability = "online"
	AvailabilityOffline Availability = "offline"
	AvailabilityBusy    Availability = "busy"
	AvailabilityAway    Availability = "away"
)

// Agent is a support agent with its routing attributes. CurrentLoad is
// owned by the assignment/release transaction in storage; nothing else
// mutates it.
type Agent struct {
	ID           int64        `json:"id"`
	AccountID    int64        `json:"account_id"`
	Name         string       `json:"name"`
	Availability Availability `json:"availability"`
	CurrentLoad  int          `json:"current_load"`
	MaxCapacity  int          `json:"max_capacity"`
	Skills       []string     `json:"skills,omitempty"`
	Languages    []string     `json:"languages,omitempty"`
	QualityScore float64      `json:"quality_score"`
}

// LoadRatio returns current load over capacity. Agents with a
// non-positive capacity rank as fully loaded.
func (a *Agent) LoadRatio() float64 {
	if a.MaxCapacity <= 0 {
		return 1
	}
	return float64(a.CurrentLoad) / float64(a.MaxCapacity)
}

// Assignable reports whether the agent can take one more conversation.
func (a *Agent) Assignable() bool {
	return a.Availability == AvailabilityOnline && a.CurrentLoad < a.MaxCapacity
}

// Team groups agents. Categories declares routing affinity: the router
// prefers teams that list a classification's category.
type Team struct {
	ID         int64    `json:"id"`
	AccountID  int64    `json:"account_id"`
	Name       string   `json:"name"`
	Categories []string `json:"categories,omitempty"`
}

// HandlesCategory reports whether the team declares the given category.
func (t *Team) HandlesCategory(c Category) bool {
	for _, tc := range t.Categories {
		if tc == string(c) {
			return true
		}
	}
	return false
}

// TeamLoad is the aggregate view of a team used by the classifier prompt
// and the router: online head count and summed load over summed capacity.
type TeamLoad struct {
	TeamID       int64   `json:"team_id"`
	OnlineAgents int     `json:"online_agents"`
	Utilization  float64 `json:"utilization"`
}
