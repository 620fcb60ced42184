package pacing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/easeaico/scene-studio/internal/types"
)

const (
	stateDomain = "pacing"
	stateKey    = "pacingState"
)

// StateStore persists key/value state rows.
type StateStore interface {
	GetState(ctx context.Context, domain, key string) (string, bool, error)
	SetState(ctx context.Context, domain, key, value string) error
}

// Store keeps the session pacing state between turns.
type Store struct {
	states StateStore
}

// NewStore returns a pacing Store.
func NewStore(states StateStore) *Store {
	return &Store{states: states}
}

// Load returns the persisted state, or the zero state when none is stored.
func (s *Store) Load(ctx context.Context) (types.PacingState, error) {
	raw, ok, err := s.states.GetState(ctx, stateDomain, stateKey)
	if err != nil {
		return types.PacingState{}, fmt.Errorf("failed to load pacing state: %w", err)
	}
	if !ok || raw == "" {
		return types.PacingState{}, nil
	}
	var state types.PacingState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return types.PacingState{}, fmt.Errorf("failed to decode pacing state: %w", err)
	}
	return state, nil
}

// Save persists state.
func (s *Store) Save(ctx context.Context, state types.PacingState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode pacing state: %w", err)
	}
	if err := s.states.SetState(ctx, stateDomain, stateKey, string(raw)); err != nil {
		return fmt.Errorf("failed to save pacing state: %w", err)
	}
	return nil
}
