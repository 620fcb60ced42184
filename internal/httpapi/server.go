// Package httpapi exposes inference and embedding operations over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/easeaico/scene-studio/internal/inference"
	"github.com/easeaico/scene-studio/internal/orchestrator"
	"github.com/easeaico/scene-studio/internal/retrieval"
	"github.com/easeaico/scene-studio/internal/sse"
)

// Inference is the orchestrator surface served here.
type Inference interface {
	Play(ctx context.Context, req orchestrator.PlayRequest) (string, error)
	PlayStream(ctx context.Context, req orchestrator.PlayRequest, sink orchestrator.Sink) (string, error)
	AutoStream(ctx context.Context, req orchestrator.SceneRequest, sink orchestrator.Sink) (string, error)
	WonderStream(ctx context.Context, req orchestrator.SceneRequest, sink orchestrator.Sink) (string, error)
	RefineStream(ctx context.Context, req orchestrator.RefineRequest, sink orchestrator.Sink) (string, error)
	Think(ctx context.Context, req orchestrator.AgentRequest) (string, error)
	Plan(ctx context.Context, req orchestrator.AgentRequest) (string, error)
	EvolveStream(ctx context.Context, req orchestrator.AgentRequest, sink orchestrator.Sink) (string, error)
	Style(ctx context.Context, req orchestrator.StyleRequest) (string, error)
}

// Models lists models and switches the active backend.
type Models interface {
	FetchModels(ctx context.Context) (inference.ModelList, error)
	UsingRemote(ctx context.Context) bool
	LocalStatus() inference.Status
	UpdateSetting(ctx context.Context, useRemote bool) error
}

// Indexer maintains the embedding pools.
type Indexer interface {
	StoreMemory(ctx context.Context, content string, sceneID, agentID *int) (int, error)
	Search(ctx context.Context, text string, k int) (retrieval.SearchResult, error)
	TeachDialogs(ctx context.Context) (retrieval.TeachResult, error)
}

// Server routes HTTP requests to the core services.
type Server struct {
	inference Inference
	models    Models
	indexer   Indexer
}

// NewServer creates a Server.
func NewServer(inf Inference, models Models, indexer Indexer) *Server {
	return &Server{inference: inf, models: models, indexer: indexer}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	inf := api.PathPrefix("/inference").Methods(http.MethodPost).Subrouter()
	inf.HandleFunc("/play", s.handlePlay)
	inf.HandleFunc("/play-stream", s.handlePlayStream)
	inf.HandleFunc("/auto-stream", s.handleAutoStream)
	inf.HandleFunc("/wonder", s.handleWonder)
	inf.HandleFunc("/refine", s.handleRefine)
	inf.HandleFunc("/think", s.handleThink)
	inf.HandleFunc("/plan", s.handlePlan)
	inf.HandleFunc("/evolve", s.handleEvolve)
	inf.HandleFunc("/style", s.handleStyle)

	api.HandleFunc("/models", s.handleModels).Methods(http.MethodGet)
	api.HandleFunc("/model-settings", s.handleGetSettings).Methods(http.MethodGet)
	api.HandleFunc("/model-settings", s.handleUpdateSettings).Methods(http.MethodPost)

	emb := api.PathPrefix("/embeddings").Methods(http.MethodPost).Subrouter()
	emb.HandleFunc("/store", s.handleStoreMemory)
	emb.HandleFunc("/search", s.handleSearch)
	emb.HandleFunc("/teach-dialogs", s.handleTeachDialogs)

	r.Use(logRequests)
	return r
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slog.Debug("http request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, title, message string) {
	sse.WriteJSON(w, status, orchestrator.Failure{Error: title, Message: message})
}

func writeFailure(w http.ResponseWriter, err error) {
	f := orchestrator.AsFailure(err)
	if f.Kind == orchestrator.FailureInternal {
		slog.Error("request failed", "error", err)
	}
	sse.WriteJSON(w, sse.StatusFor(f.Kind), f)
}

// stream runs a streaming flow. Failures before dispatch have not touched
// the writer and become plain JSON errors.
func stream(w http.ResponseWriter, r *http.Request, run func(ctx context.Context, sink orchestrator.Sink) (string, error)) {
	sw := sse.NewWriter(w)
	if _, err := run(r.Context(), sw); err != nil && !sw.Committed() {
		writeFailure(w, err)
	}
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}
