package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/easeaico/scene-studio/internal/types"
)

// dialogModel maps to the dialogs table.
type dialogModel struct {
	ID          int
	SceneID     int
	AIPersona   string `gorm:"column:ai_persona"`
	UserPersona string
	UserQuery   string
	AIResponse  string `gorm:"column:ai_response"`
	Revised     string
	Comment     string
	Exemplary   bool
	Sortcode    float64
	CreatedAt   time.Time
}

func (dialogModel) TableName() string {
	return "dialogs"
}

// DialogRepo accesses the dialogs table.
type DialogRepo struct {
	db *gorm.DB
}

// NewDialogRepo returns a DialogRepo.
func NewDialogRepo(db *gorm.DB) *DialogRepo {
	return &DialogRepo{db: db}
}

// ListByScene returns a scene's dialogs by ascending sortcode.
func (r *DialogRepo) ListByScene(ctx context.Context, sceneID int) ([]types.Dialog, error) {
	var records []dialogModel
	err := r.db.WithContext(ctx).
		Where("scene_id = ?", sceneID).
		Order("sortcode ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list dialogs for scene %d: %w", sceneID, err)
	}
	return dialogsFromModels(records), nil
}

// ListAll returns every dialog, grouped by scene.
func (r *DialogRepo) ListAll(ctx context.Context) ([]types.Dialog, error) {
	var records []dialogModel
	if err := r.db.WithContext(ctx).Order("scene_id ASC, sortcode ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list dialogs: %w", err)
	}
	return dialogsFromModels(records), nil
}

// ListCommented returns the dialogs answered by aiPersona that carry a
// reviewer comment, oldest first.
func (r *DialogRepo) ListCommented(ctx context.Context, aiPersona string) ([]types.Dialog, error) {
	var records []dialogModel
	err := r.db.WithContext(ctx).
		Where("ai_persona = ? AND comment IS NOT NULL AND comment <> ''", aiPersona).
		Order("id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list commented dialogs for %s: %w", aiPersona, err)
	}
	return dialogsFromModels(records), nil
}

func dialogsFromModels(records []dialogModel) []types.Dialog {
	dialogs := make([]types.Dialog, 0, len(records))
	for _, model := range records {
		dialogs = append(dialogs, types.Dialog{
			ID:          model.ID,
			SceneID:     model.SceneID,
			AIPersona:   model.AIPersona,
			UserPersona: model.UserPersona,
			UserQuery:   model.UserQuery,
			AIResponse:  model.AIResponse,
			Revised:     model.Revised,
			Comment:     model.Comment,
			Exemplary:   model.Exemplary,
			Sortcode:    model.Sortcode,
			CreatedAt:   model.CreatedAt,
		})
	}
	return dialogs
}
