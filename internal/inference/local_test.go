package inference

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/easeaico/scene-studio/internal/config"
	"github.com/easeaico/scene-studio/internal/types"
)

type fakeChat struct {
	tokens    []string
	lastInput string
	closed    atomic.Bool
}

func (c *fakeChat) Predict(ctx context.Context, prompt string, maxTokens int, onToken func(string) bool) (string, error) {
	c.lastInput = prompt
	var sb strings.Builder
	for _, tok := range c.tokens {
		if ctx.Err() != nil {
			return sb.String(), ctx.Err()
		}
		sb.WriteString(tok)
		if onToken != nil && !onToken(tok) {
			break
		}
	}
	return sb.String(), nil
}

func (c *fakeChat) ContextSize() int { return 8192 }
func (c *fakeChat) Close()           { c.closed.Store(true) }

type fakeEmbed struct{}

func (fakeEmbed) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text))}, nil
}
func (fakeEmbed) ContextSize() int { return 0 }
func (fakeEmbed) Close()           {}

type fakeLoader struct {
	calls atomic.Int32
	delay time.Duration
	err   error
	chat  *fakeChat
}

func (l *fakeLoader) LoadChat(path string, gpuLayers int) (ChatModel, error) {
	l.calls.Add(1)
	time.Sleep(l.delay)
	if l.err != nil {
		return nil, l.err
	}
	if l.chat == nil {
		l.chat = &fakeChat{tokens: []string{"a", "b", "c"}}
	}
	return l.chat, nil
}

func (l *fakeLoader) LoadEmbedding(path string, gpuLayers int) (EmbeddingModel, error) {
	return fakeEmbed{}, nil
}

func testLocalConfig() LocalConfig {
	return LocalConfig{
		InferenceModelPath: "/models/qwen-7b.gguf",
		EmbeddingModelPath: "/models/nomic.gguf",
	}
}

func TestLocalInitializeIsSharedByConcurrentCallers(t *testing.T) {
	loader := &fakeLoader{delay: 50 * time.Millisecond}
	l := NewLocal(testLocalConfig(), loader)

	var wg sync.WaitGroup
	statuses := make([]Status, 8)
	for i := range statuses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			statuses[i] = l.Initialize(context.Background())
		}(i)
	}
	wg.Wait()

	if n := loader.calls.Load(); n != 1 {
		t.Fatalf("expected exactly one load, got %d", n)
	}
	for i, s := range statuses {
		if s != StatusSuccess {
			t.Fatalf("caller %d observed status %s", i, s)
		}
	}
}

func TestLocalFailureIsStickyUntilUnload(t *testing.T) {
	loader := &fakeLoader{err: errors.New("bad gguf")}
	l := NewLocal(testLocalConfig(), loader)

	if s := l.Initialize(context.Background()); s != StatusFailed {
		t.Fatalf("expected failed, got %s", s)
	}
	if s := l.Initialize(context.Background()); s != StatusFailed {
		t.Fatalf("expected failed on retry, got %s", s)
	}
	if n := loader.calls.Load(); n != 1 {
		t.Fatalf("expected no reload while failed, got %d loads", n)
	}

	_, err := l.InferChat(context.Background(), nil, "", 10)
	var ie *Error
	if !errors.As(err, &ie) || !ie.Unavailable() || ie.Status != StatusFailed {
		t.Fatalf("expected unavailable error with failed status, got %v", err)
	}

	l.Unload()
	if s := l.Status(); s != StatusPending {
		t.Fatalf("expected pending after unload, got %s", s)
	}
	loader.err = nil
	if s := l.Initialize(context.Background()); s != StatusSuccess {
		t.Fatalf("expected success after unload and retry, got %s", s)
	}
}

func TestLocalMissingPathsFail(t *testing.T) {
	loader := &fakeLoader{}
	l := NewLocal(LocalConfig{InferenceModelPath: "/models/a.gguf"}, loader)

	if s := l.Initialize(context.Background()); s != StatusFailed {
		t.Fatalf("expected failed, got %s", s)
	}
	if n := loader.calls.Load(); n != 0 {
		t.Fatalf("expected loader not to be called, got %d", n)
	}
}

func TestLocalUnloadClosesModels(t *testing.T) {
	loader := &fakeLoader{}
	l := NewLocal(testLocalConfig(), loader)
	l.Initialize(context.Background())

	l.Unload()
	if !loader.chat.closed.Load() {
		t.Fatalf("expected chat model to be closed")
	}
}

func TestLocalFetchModelsUsesFileNames(t *testing.T) {
	l := NewLocal(testLocalConfig(), &fakeLoader{})

	list, err := l.FetchModels(context.Background())
	if err != nil {
		t.Fatalf("FetchModels returned error: %v", err)
	}
	if len(list.Data) != 2 {
		t.Fatalf("expected 2 models, got %d", len(list.Data))
	}
	if list.Data[0].ID != "qwen-7b.gguf" || list.Data[0].Type != "inference" || list.Data[0].ContextLength != 8192 {
		t.Fatalf("unexpected inference model: %+v", list.Data[0])
	}
	if list.Data[1].Type != "embedding" || list.Data[1].ContextLength != 4096 {
		t.Fatalf("unexpected embedding model: %+v", list.Data[1])
	}
	if list.PreferredEmbeddingModelID != "nomic.gguf" {
		t.Fatalf("unexpected preferred embedding id: %s", list.PreferredEmbeddingModelID)
	}
}

func TestLocalInferChatRendersChatML(t *testing.T) {
	loader := &fakeLoader{}
	l := NewLocal(testLocalConfig(), loader)

	out, err := l.InferChat(context.Background(), []types.Message{
		types.NewMessage(types.RoleSystem, "sys"),
		types.NewMessage(types.RoleUser, "hi"),
	}, "", 10)
	if err != nil {
		t.Fatalf("InferChat returned error: %v", err)
	}
	if out != "abc" {
		t.Fatalf("expected %q, got %q", "abc", out)
	}
	want := "<|im_start|>system\nsys<|im_end|>\n<|im_start|>user\nhi<|im_end|>\n<|im_start|>assistant\n"
	if loader.chat.lastInput != want {
		t.Fatalf("unexpected prompt:\n%q\nwant\n%q", loader.chat.lastInput, want)
	}
}

func TestLocalStreamYieldsTokensAndStopsOnBreak(t *testing.T) {
	l := NewLocal(testLocalConfig(), &fakeLoader{})

	var all []string
	for tok, err := range l.StreamInferChat(context.Background(), nil, "", 10) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		all = append(all, tok)
	}
	if strings.Join(all, "") != "abc" {
		t.Fatalf("unexpected stream output: %q", all)
	}

	count := 0
	for _, err := range l.StreamInferChat(context.Background(), nil, "", 10) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		count++
		break
	}
	if count != 1 {
		t.Fatalf("expected one token before break, got %d", count)
	}
}

type memStateStore struct {
	mu   sync.Mutex
	rows map[string]string
}

func (m *memStateStore) GetState(ctx context.Context, domain, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.rows[domain+"/"+key]
	return v, ok, nil
}

func (m *memStateStore) SetState(ctx context.Context, domain, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows == nil {
		m.rows = map[string]string{}
	}
	m.rows[domain+"/"+key] = value
	return nil
}

type stubBackend struct{ name string }

func (s stubBackend) FetchModels(context.Context) (ModelList, error) {
	return ModelList{Data: []ModelInfo{{ID: s.name}}}, nil
}
func (s stubBackend) InferChat(context.Context, []types.Message, string, int) (string, error) {
	return s.name, nil
}
func (s stubBackend) StreamInferChat(context.Context, []types.Message, string, int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) { yield(s.name, nil) }
}
func (s stubBackend) GetEmbedding(context.Context, string, string) ([]float32, error) {
	return []float32{1}, nil
}

func TestServiceRoutesBySetting(t *testing.T) {
	store := &memStateStore{}
	setting := config.NewBackendSetting(store)
	loader := &fakeLoader{}
	svc := NewService(setting, stubBackend{name: "remote"}, NewLocal(testLocalConfig(), loader))
	ctx := context.Background()

	out, err := svc.InferChat(ctx, nil, "", 10)
	if err != nil || out != "abc" {
		t.Fatalf("expected local output by default, got %q, %v", out, err)
	}

	if err := svc.UpdateSetting(ctx, true); err != nil {
		t.Fatalf("UpdateSetting returned error: %v", err)
	}
	if !svc.UsingRemote(ctx) {
		t.Fatalf("expected remote to be selected")
	}
	if svc.LocalStatus() != StatusPending {
		t.Fatalf("expected local models to be unloaded, got %s", svc.LocalStatus())
	}
	out, err = svc.InferChat(ctx, nil, "", 10)
	if err != nil || out != "remote" {
		t.Fatalf("expected remote output, got %q, %v", out, err)
	}
	if v, _, _ := store.GetState(ctx, "models", "use_lm_studio"); v != "true" {
		t.Fatalf("expected setting to be persisted, got %q", v)
	}
}

func TestServiceWithoutLocalRuntimeIsUnavailable(t *testing.T) {
	svc := NewService(config.NewBackendSetting(&memStateStore{}), stubBackend{name: "remote"}, nil)

	_, err := svc.GetEmbedding(context.Background(), "x", "")
	var ie *Error
	if !errors.As(err, &ie) || !ie.Unavailable() {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestServiceWarmLoadsOnlyWhenLocalSelected(t *testing.T) {
	ctx := context.Background()

	remoteStore := &memStateStore{}
	_ = remoteStore.SetState(ctx, "models", "use_lm_studio", "true")
	loader := &fakeLoader{}
	NewService(config.NewBackendSetting(remoteStore), stubBackend{name: "remote"}, NewLocal(testLocalConfig(), loader)).Warm(ctx)
	time.Sleep(20 * time.Millisecond)
	if n := loader.calls.Load(); n != 0 {
		t.Fatalf("expected no load with remote selected, got %d", n)
	}

	local := NewLocal(testLocalConfig(), &fakeLoader{})
	NewService(config.NewBackendSetting(&memStateStore{}), stubBackend{name: "remote"}, local).Warm(ctx)
	deadline := time.Now().Add(time.Second)
	for local.Status() != StatusSuccess && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if local.Status() != StatusSuccess {
		t.Fatalf("expected local models to load, got %s", local.Status())
	}
}

func TestServiceSwitchBackToLocalLoadsOnFetch(t *testing.T) {
	ctx := context.Background()
	loader := &fakeLoader{}
	svc := NewService(config.NewBackendSetting(&memStateStore{}), stubBackend{name: "remote"}, NewLocal(testLocalConfig(), loader))

	if err := svc.UpdateSetting(ctx, true); err != nil {
		t.Fatalf("UpdateSetting(true) returned error: %v", err)
	}
	if err := svc.UpdateSetting(ctx, false); err != nil {
		t.Fatalf("UpdateSetting(false) returned error: %v", err)
	}

	list, err := svc.FetchModels(ctx)
	if err != nil {
		t.Fatalf("FetchModels returned error: %v", err)
	}
	if len(list.Data) != 2 || list.Data[0].ID != "qwen-7b.gguf" {
		t.Fatalf("expected local model list, got %+v", list.Data)
	}
	if n := loader.calls.Load(); n != 1 {
		t.Fatalf("expected exactly one load, got %d", n)
	}
	if svc.LocalStatus() != StatusSuccess {
		t.Fatalf("expected success, got %s", svc.LocalStatus())
	}
}

func TestServiceUnloadDuringLoadThenBackToLocalRecovers(t *testing.T) {
	ctx := context.Background()
	loader := &fakeLoader{delay: 50 * time.Millisecond}
	svc := NewService(config.NewBackendSetting(&memStateStore{}), stubBackend{name: "remote"}, NewLocal(testLocalConfig(), loader))

	if err := svc.UpdateSetting(ctx, false); err != nil {
		t.Fatalf("UpdateSetting(false) returned error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := svc.UpdateSetting(ctx, true); err != nil {
		t.Fatalf("UpdateSetting(true) returned error: %v", err)
	}
	if err := svc.UpdateSetting(ctx, false); err != nil {
		t.Fatalf("UpdateSetting(false) returned error: %v", err)
	}

	list, err := svc.FetchModels(ctx)
	if err != nil {
		t.Fatalf("FetchModels returned error: %v", err)
	}
	if len(list.Data) != 2 {
		t.Fatalf("expected local model list, got %+v", list.Data)
	}
	if svc.LocalStatus() != StatusSuccess {
		t.Fatalf("expected success after reload, got %s", svc.LocalStatus())
	}
	if n := loader.calls.Load(); n < 1 || n > 2 {
		t.Fatalf("expected at most the invalidated load plus one fresh load, got %d", n)
	}
}

func TestLocalWaiterRestartsInvalidatedAttempt(t *testing.T) {
	loader := &fakeLoader{delay: 40 * time.Millisecond}
	local := NewLocal(testLocalConfig(), loader)
	ctx := context.Background()

	owner := make(chan Status, 1)
	go func() { owner <- local.Initialize(ctx) }()
	time.Sleep(5 * time.Millisecond)

	waiter := make(chan Status, 1)
	go func() { waiter <- local.Initialize(ctx) }()
	time.Sleep(5 * time.Millisecond)
	local.Unload()

	if got := <-owner; got != StatusPending {
		t.Fatalf("expected invalidated owner to report pending, got %s", got)
	}
	if got := <-waiter; got != StatusSuccess {
		t.Fatalf("expected waiter to load again, got %s", got)
	}
}

func TestServiceInitializeLocalWaits(t *testing.T) {
	ctx := context.Background()
	loader := &fakeLoader{delay: 20 * time.Millisecond}
	svc := NewService(config.NewBackendSetting(&memStateStore{}), stubBackend{name: "remote"}, NewLocal(testLocalConfig(), loader))

	if got := svc.InitializeLocal(ctx); got != StatusSuccess {
		t.Fatalf("expected success, got %s", got)
	}
	if got := NewService(config.NewBackendSetting(&memStateStore{}), stubBackend{}, nil).InitializeLocal(ctx); got != StatusFailed {
		t.Fatalf("expected failed without local runtime, got %s", got)
	}
}
