package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/easeaico/scene-studio/internal/types"
)

type sceneModel struct {
	SceneID   int `gorm:"primaryKey"`
	Name      string
	Synopsis  string
	Canon     string
	Sortcode  float64
	After     string
	Include   bool
	CreatedAt time.Time
}

func (sceneModel) TableName() string {
	return "scenes"
}

// SceneRepo accesses the scenes table.
type SceneRepo struct {
	db *gorm.DB
}

// NewSceneRepo returns a SceneRepo.
func NewSceneRepo(db *gorm.DB) *SceneRepo {
	return &SceneRepo{db: db}
}

// ListOrdered returns every scene by ascending sortcode.
func (r *SceneRepo) ListOrdered(ctx context.Context) ([]types.Scene, error) {
	var records []sceneModel
	if err := r.db.WithContext(ctx).Order("sortcode ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list scenes: %w", err)
	}
	scenes := make([]types.Scene, 0, len(records))
	for _, record := range records {
		scenes = append(scenes, sceneFromModel(record))
	}
	return scenes, nil
}

func (r *SceneRepo) GetByID(ctx context.Context, id int) (types.Scene, bool, error) {
	var model sceneModel
	err := r.db.WithContext(ctx).Where("scene_id = ?", id).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.Scene{}, false, nil
	}
	if err != nil {
		return types.Scene{}, false, fmt.Errorf("failed to get scene by id: %w", err)
	}
	return sceneFromModel(model), true, nil
}

func sceneFromModel(model sceneModel) types.Scene {
	return types.Scene{
		SceneID:   model.SceneID,
		Name:      model.Name,
		Synopsis:  model.Synopsis,
		Canon:     model.Canon,
		Sortcode:  model.Sortcode,
		After:     model.After,
		Include:   model.Include,
		CreatedAt: model.CreatedAt,
	}
}
