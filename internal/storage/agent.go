package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/easeaico/scene-studio/internal/types"
)

type agentModel struct {
	ID              int
	Type            string
	Name            string
	Desc            string `gorm:"column:desc"`
	Canon           string
	State           string
	Goals           string
	PlayPrompt      string
	ForwardPrompt   string
	CheckerPrompt   string
	AwarenessPrompt string
	PlannerPrompt   string
	StyleGuide      string
	CreatedAt       time.Time
}

func (agentModel) TableName() string {
	return "agents"
}

// AgentRepo accesses the agents table.
type AgentRepo struct {
	db *gorm.DB
}

// NewAgentRepo returns an AgentRepo.
func NewAgentRepo(db *gorm.DB) *AgentRepo {
	return &AgentRepo{db: db}
}

// GetByName looks an agent up by its unique name. A missing agent is not an error.
func (r *AgentRepo) GetByName(ctx context.Context, name string) (types.Agent, bool, error) {
	var model agentModel
	err := r.db.WithContext(ctx).Where("name = ?", name).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.Agent{}, false, nil
	}
	if err != nil {
		return types.Agent{}, false, fmt.Errorf("failed to get agent by name: %w", err)
	}
	return agentFromModel(model), true, nil
}

func (r *AgentRepo) UpdateState(ctx context.Context, id int, state string) error {
	return r.updateColumn(ctx, id, "state", state)
}

func (r *AgentRepo) UpdateGoals(ctx context.Context, id int, goals string) error {
	return r.updateColumn(ctx, id, "goals", goals)
}

func (r *AgentRepo) UpdateStyleGuide(ctx context.Context, id int, guide string) error {
	return r.updateColumn(ctx, id, "style_guide", guide)
}

func (r *AgentRepo) updateColumn(ctx context.Context, id int, column, value string) error {
	res := r.db.WithContext(ctx).Model(&agentModel{}).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("failed to update agent %s: %w", column, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("failed to update agent %s: agent %d not found", column, id)
	}
	return nil
}

func agentFromModel(model agentModel) types.Agent {
	return types.Agent{
		ID:              model.ID,
		Name:            model.Name,
		Type:            model.Type,
		Desc:            model.Desc,
		Canon:           model.Canon,
		State:           model.State,
		Goals:           model.Goals,
		PlayPrompt:      model.PlayPrompt,
		ForwardPrompt:   model.ForwardPrompt,
		CheckerPrompt:   model.CheckerPrompt,
		AwarenessPrompt: model.AwarenessPrompt,
		PlannerPrompt:   model.PlannerPrompt,
		StyleGuide:      model.StyleGuide,
		CreatedAt:       model.CreatedAt,
	}
}
