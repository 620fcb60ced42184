package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type stateModel struct {
	ID     int
	Domain string
	Key    string
	Value  string
}

func (stateModel) TableName() string {
	return "state"
}

// StateRepo is the (domain, key) -> value store for small persisted settings.
type StateRepo struct {
	db *gorm.DB
}

// NewStateRepo returns a StateRepo.
func NewStateRepo(db *gorm.DB) *StateRepo {
	return &StateRepo{db: db}
}

func (r *StateRepo) GetState(ctx context.Context, domain, key string) (string, bool, error) {
	var model stateModel
	err := r.db.WithContext(ctx).Where("domain = ? AND key = ?", domain, key).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get state %s/%s: %w", domain, key, err)
	}
	return model.Value, true, nil
}

var stateKeyColumns = []clause.Column{{Name: "domain"}, {Name: "key"}}

// SetState upserts on the (domain, key) unique constraint.
func (r *StateRepo) SetState(ctx context.Context, domain, key, value string) error {
	record := stateModel{Domain: domain, Key: key, Value: value}
	if err := upsertState(r.db.WithContext(ctx), &record).Error; err != nil {
		return fmt.Errorf("failed to set state %s/%s: %w", domain, key, err)
	}
	return nil
}

func upsertState(tx *gorm.DB, record *stateModel) *gorm.DB {
	return tx.Clauses(clause.OnConflict{
		Columns:   stateKeyColumns,
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(record)
}

func insertStateIfMissing(tx *gorm.DB, record *stateModel) *gorm.DB {
	return tx.Clauses(clause.OnConflict{Columns: stateKeyColumns, DoNothing: true}).Create(record)
}
