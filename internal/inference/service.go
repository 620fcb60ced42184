package inference

import (
	"context"
	"iter"
	"log/slog"

	"github.com/easeaico/scene-studio/internal/config"
	"github.com/easeaico/scene-studio/internal/types"
)

// Service routes every call to the backend selected by the persisted setting.
type Service struct {
	setting *config.BackendSetting
	remote  Backend
	local   *Local
}

// NewService wires the facade. local may be nil when no in-process runtime
// is available; calls routed to it then fail as unavailable.
func NewService(setting *config.BackendSetting, remote Backend, local *Local) *Service {
	return &Service{setting: setting, remote: remote, local: local}
}

func (s *Service) active(ctx context.Context) Backend {
	if s.setting.UseRemote(ctx) {
		return s.remote
	}
	if s.local == nil {
		return unavailable{}
	}
	return s.local
}

// UsingRemote reports the current selection.
func (s *Service) UsingRemote(ctx context.Context) bool {
	return s.setting.UseRemote(ctx)
}

// LocalStatus reports the in-process model status.
func (s *Service) LocalStatus() Status {
	if s.local == nil {
		return StatusFailed
	}
	return s.local.Status()
}

// UpdateSetting persists the switch. Switching to remote unloads local models;
// switching to local starts loading them in the background.
func (s *Service) UpdateSetting(ctx context.Context, useRemote bool) error {
	if err := s.setting.Set(ctx, useRemote); err != nil {
		return err
	}
	if s.local == nil {
		return nil
	}
	if useRemote {
		s.local.Unload()
		return nil
	}
	s.initLocal()
	return nil
}

// InitializeLocal loads the local models and waits for the attempt to finish.
func (s *Service) InitializeLocal(ctx context.Context) Status {
	if s.local == nil {
		return StatusFailed
	}
	return s.local.Initialize(ctx)
}

// Warm starts loading local models when the persisted setting selects them.
func (s *Service) Warm(ctx context.Context) {
	if s.local == nil || s.setting.UseRemote(ctx) {
		return
	}
	s.initLocal()
}

func (s *Service) initLocal() {
	go func() {
		status := s.local.Initialize(context.Background())
		slog.Info("local model initialization finished", "status", status)
	}()
}

func (s *Service) FetchModels(ctx context.Context) (ModelList, error) {
	return s.active(ctx).FetchModels(ctx)
}

func (s *Service) InferChat(ctx context.Context, messages []types.Message, modelID string, maxTokens int) (string, error) {
	return s.active(ctx).InferChat(ctx, messages, modelID, maxTokens)
}

func (s *Service) StreamInferChat(ctx context.Context, messages []types.Message, modelID string, maxTokens int) iter.Seq2[string, error] {
	return s.active(ctx).StreamInferChat(ctx, messages, modelID, maxTokens)
}

func (s *Service) GetEmbedding(ctx context.Context, input, modelID string) ([]float32, error) {
	return s.active(ctx).GetEmbedding(ctx, input, modelID)
}

type unavailable struct{}

func (unavailable) err(op string) error {
	return &Error{Backend: BackendLocal, Op: op, Status: StatusFailed, Err: ErrModelUnavailable}
}

func (u unavailable) FetchModels(context.Context) (ModelList, error) {
	return ModelList{}, u.err("list models")
}

func (u unavailable) InferChat(context.Context, []types.Message, string, int) (string, error) {
	return "", u.err("chat inference")
}

func (u unavailable) StreamInferChat(context.Context, []types.Message, string, int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		yield("", u.err("chat stream"))
	}
}

func (u unavailable) GetEmbedding(context.Context, string, string) ([]float32, error) {
	return nil, u.err("embedding")
}
