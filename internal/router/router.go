package router

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/helpdeck-io/triage-engine/internal/models"
	"github.com/helpdeck-io/triage-engine/internal/storage"
)

// Directory is the read-only view of teams and agents the router ranks
// over.
type Directory interface {
	GetTeam(ctx context.Context, id int64) (*models.Team, error)
	ListTeams(ctx context.Context, accountID int64) ([]*models.Team, error)
	ListTeamAgents(ctx context.Context, teamID int64) ([]*models.Agent, error)
	TeamLoad(ctx context.Context, teamID int64) (*models.TeamLoad, error)
}

// Decision is a routing outcome. Agent may be nil even when Team is set:
// the conversation then stays team-queued until someone frees up. Both
// nil means no team could be determined at all.
type Decision struct {
	Team  *models.Team
	Agent *models.Agent
}

// Router picks the agent that should take a conversation. It trusts
// stored load and availability, not the classifier's suggestion: the
// suggestion only decides which team is ranked first.
type Router struct {
	directory Directory
	logger    *zap.Logger
}

func NewRouter(directory Directory, logger *zap.Logger) *Router {
	return &Router{directory: directory, logger: logger}
}

// Route resolves the target team, then returns its best assignable
// agent. A missing or unknown suggested team falls back to the best team
// for the category. "No agent" is a normal outcome, never an error.
func (r *Router) Route(ctx context.Context, accountID int64, suggestedTeamID *int64, category models.Category) (Decision, error) {
	team, err := r.resolveTeam(ctx, accountID, suggestedTeamID, category)
	if err != nil {
		return Decision{}, err
	}
	if team == nil {
		r.logger.Debug("no routable team",
			zap.Int64("account_id", accountID),
			zap.String("category", string(category)))
		return Decision{}, nil
	}

	agents, err := r.directory.ListTeamAgents(ctx, team.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("listing agents for team %d: %w", team.ID, err)
	}
	return Decision{Team: team, Agent: pickAgent(agents)}, nil
}

func (r *Router) resolveTeam(ctx context.Context, accountID int64, suggestedTeamID *int64, category models.Category) (*models.Team, error) {
	if suggestedTeamID != nil {
		team, err := r.directory.GetTeam(ctx, *suggestedTeamID)
		if err == nil {
			return team, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("loading team %d: %w", *suggestedTeamID, err)
		}
		// Suggested team ids come from model output and may not exist.
		r.logger.Warn("suggested team not found, picking by category",
			zap.Int64("team_id", *suggestedTeamID))
	}
	return r.bestTeamForCategory(ctx, accountID, category)
}

// bestTeamForCategory prefers teams that declare the category, then teams
// with anyone online, then lowest utilization, then team id.
func (r *Router) bestTeamForCategory(ctx context.Context, accountID int64, category models.Category) (*models.Team, error) {
	teams, err := r.directory.ListTeams(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing teams: %w", err)
	}
	if len(teams) == 0 {
		return nil, nil
	}

	candidates := make([]*models.Team, 0, len(teams))
	for _, team := range teams {
		if team.HandlesCategory(category) {
			candidates = append(candidates, team)
		}
	}
	if len(candidates) == 0 {
		candidates = teams
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	type scored struct {
		team *models.Team
		load *models.TeamLoad
	}
	ranked := make([]scored, 0, len(candidates))
	for _, team := range candidates {
		load, err := r.directory.TeamLoad(ctx, team.ID)
		if err != nil {
			return nil, fmt.Errorf("loading team %d utilization: %w", team.ID, err)
		}
		ranked = append(ranked, scored{team: team, load: load})
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if (a.load.OnlineAgents > 0) != (b.load.OnlineAgents > 0) {
			return a.load.OnlineAgents > 0
		}
		if a.load.Utilization != b.load.Utilization {
			return a.load.Utilization < b.load.Utilization
		}
		return a.team.ID < b.team.ID
	})
	return ranked[0].team, nil
}

// pickAgent ranks assignable agents by load ratio ascending, quality
// score descending, agent id ascending, and returns the winner or nil.
func pickAgent(agents []*models.Agent) *models.Agent {
	candidates := make([]*models.Agent, 0, len(agents))
	for _, agent := range agents {
		if agent.Assignable() {
			candidates = append(candidates, agent)
		}
	}
	if len(candidates) == 0 {
		return nil
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
	return candidates[0]
}
