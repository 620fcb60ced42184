package config

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
)

const (
	settingDomain = "models"
	settingKey    = "use_lm_studio"
)

// StateStore reads and writes persisted key/value settings.
type StateStore interface {
	GetState(ctx context.Context, domain, key string) (string, bool, error)
	SetState(ctx context.Context, domain, key, value string) error
}

// BackendSetting caches the persisted remote/local backend switch.
// The value is read once and kept until Set or Reload.
type BackendSetting struct {
	store StateStore

	mu        sync.Mutex
	loaded    bool
	useRemote bool
}

// NewBackendSetting returns a setting holder backed by store.
func NewBackendSetting(store StateStore) *BackendSetting {
	return &BackendSetting{store: store}
}

// UseRemote reports whether the remote backend is active.
// A missing or unreadable setting selects the local backend.
func (s *BackendSetting) UseRemote(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return s.useRemote
	}

	s.useRemote = false
	if s.store != nil {
		val, ok, err := s.store.GetState(ctx, settingDomain, settingKey)
		if err != nil {
			slog.Error("failed to read backend setting, defaulting to local models", "error", err)
		} else if ok {
			s.useRemote = parseBool(val)
		}
	}
	s.loaded = true
	return s.useRemote
}

// Set persists the switch and updates the cached value.
func (s *BackendSetting) Set(ctx context.Context, useRemote bool) error {
	if s.store != nil {
		if err := s.store.SetState(ctx, settingDomain, settingKey, strconv.FormatBool(useRemote)); err != nil {
			return fmt.Errorf("failed to persist backend setting: %w", err)
		}
	}

	s.mu.Lock()
	s.useRemote = useRemote
	s.loaded = true
	s.mu.Unlock()

	slog.Info("backend setting updated", "use_remote", useRemote)
	return nil
}

// Reload drops the cached value so the next read hits the store.
func (s *BackendSetting) Reload() {
	s.mu.Lock()
	s.loaded = false
	s.mu.Unlock()
}
