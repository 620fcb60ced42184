package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type promptModel struct {
	ID         int
	PromptName string
	PromptText string
}

func (promptModel) TableName() string {
	return "app_prompts"
}

// Defaults is the seed data for app_prompts and state.
type Defaults struct {
	Prompts []DefaultPrompt `yaml:"prompts"`
	State   []DefaultState  `yaml:"state"`
}

type DefaultPrompt struct {
	Name string `yaml:"name"`
	Text string `yaml:"text"`
}

type DefaultState struct {
	Domain string `yaml:"domain"`
	Key    string `yaml:"key"`
	Value  string `yaml:"value"`
}

// LoadDefaults parses the embedded seed data.
func LoadDefaults() (Defaults, error) {
	var d Defaults
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		return Defaults{}, fmt.Errorf("failed to parse default prompts: %w", err)
	}
	return d, nil
}

// PromptRepo resolves named prompt texts.
type PromptRepo struct {
	db *gorm.DB
}

// NewPromptRepo returns a PromptRepo.
func NewPromptRepo(db *gorm.DB) *PromptRepo {
	return &PromptRepo{db: db}
}

// Get returns the text stored under name. A missing prompt is not an error.
func (r *PromptRepo) Get(ctx context.Context, name string) (string, bool, error) {
	var model promptModel
	err := r.db.WithContext(ctx).Where("prompt_name = ?", name).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get prompt %s: %w", name, err)
	}
	return model.PromptText, true, nil
}

// EnsureDefaults inserts every seeded prompt and state row that is missing.
// Existing rows are never overwritten.
func (s *Store) EnsureDefaults(ctx context.Context) (int, error) {
	d, err := LoadDefaults()
	if err != nil {
		return 0, err
	}

	inserted := 0
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range d.Prompts {
			res := insertPromptIfMissing(tx, &promptModel{PromptName: p.Name, PromptText: p.Text})
			if res.Error != nil {
				return fmt.Errorf("failed to ensure prompt %s: %w", p.Name, res.Error)
			}
			if res.RowsAffected > 0 {
				slog.Info("inserted default prompt", "prompt_name", p.Name)
				inserted++
			}
		}
		for _, st := range d.State {
			res := insertStateIfMissing(tx, &stateModel{Domain: st.Domain, Key: st.Key, Value: st.Value})
			if res.Error != nil {
				return fmt.Errorf("failed to ensure state %s/%s: %w", st.Domain, st.Key, res.Error)
			}
			if res.RowsAffected > 0 {
				slog.Info("inserted default state entry", "domain", st.Domain, "key", st.Key)
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func insertPromptIfMissing(tx *gorm.DB, record *promptModel) *gorm.DB {
	return tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "prompt_name"}}, DoNothing: true}).Create(record)
}
