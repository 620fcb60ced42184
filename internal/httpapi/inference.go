package httpapi

import (
	"context"
	"net/http"

	"github.com/easeaico/scene-studio/internal/orchestrator"
	"github.com/easeaico/scene-studio/internal/pacing"
	"github.com/easeaico/scene-studio/internal/sse"
)

type playBody struct {
	orchestrator.PlayRequest
	PacingKey string `json:"pacingKey"`
}

type refineBody struct {
	orchestrator.RefineRequest
	PacingKey string `json:"pacingKey"`
}

func (s *Server) decodePlay(w http.ResponseWriter, r *http.Request) (orchestrator.PlayRequest, bool) {
	var body playBody
	if !decode(w, r, &body) {
		return orchestrator.PlayRequest{}, false
	}
	directive, err := pacing.ParseDirective(body.PacingKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return orchestrator.PlayRequest{}, false
	}
	req := body.PlayRequest
	req.Pacing = directive
	return req, true
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodePlay(w, r)
	if !ok {
		return
	}
	resp, err := s.inference.Play(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	sse.WriteJSON(w, http.StatusOK, map[string]string{"response": resp})
}

func (s *Server) handlePlayStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodePlay(w, r)
	if !ok {
		return
	}
	stream(w, r, func(ctx context.Context, sink orchestrator.Sink) (string, error) {
		return s.inference.PlayStream(ctx, req, sink)
	})
}

func (s *Server) handleAutoStream(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.SceneRequest
	if !decode(w, r, &req) {
		return
	}
	stream(w, r, func(ctx context.Context, sink orchestrator.Sink) (string, error) {
		return s.inference.AutoStream(ctx, req, sink)
	})
}

func (s *Server) handleWonder(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.SceneRequest
	if !decode(w, r, &req) {
		return
	}
	stream(w, r, func(ctx context.Context, sink orchestrator.Sink) (string, error) {
		return s.inference.WonderStream(ctx, req, sink)
	})
}

func (s *Server) handleRefine(w http.ResponseWriter, r *http.Request) {
	var body refineBody
	if !decode(w, r, &body) {
		return
	}
	directive, err := pacing.ParseDirective(body.PacingKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	req := body.RefineRequest
	req.Pacing = directive
	stream(w, r, func(ctx context.Context, sink orchestrator.Sink) (string, error) {
		return s.inference.RefineStream(ctx, req, sink)
	})
}

func (s *Server) handleThink(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.AgentRequest
	if !decode(w, r, &req) {
		return
	}
	state, err := s.inference.Think(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	sse.WriteJSON(w, http.StatusOK, map[string]string{"new_state": state})
}

func (s *Server) handleStyle(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.StyleRequest
	if !decode(w, r, &req) {
		return
	}
	guide, err := s.inference.Style(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	sse.WriteJSON(w, http.StatusOK, map[string]string{"style_guide": guide})
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.AgentRequest
	if !decode(w, r, &req) {
		return
	}
	goals, err := s.inference.Plan(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	sse.WriteJSON(w, http.StatusOK, map[string]string{"new_goals": goals})
}

type evolveBody struct {
	SceneID   int    `json:"scene_id"`
	Responder string `json:"ai_persona_name"`
	ModelID   string `json:"selected_model_id"`
}

func (s *Server) handleEvolve(w http.ResponseWriter, r *http.Request) {
	var body evolveBody
	if !decode(w, r, &body) {
		return
	}
	req := orchestrator.AgentRequest{SceneID: body.SceneID, Agent: body.Responder, ModelID: body.ModelID}
	stream(w, r, func(ctx context.Context, sink orchestrator.Sink) (string, error) {
		return s.inference.EvolveStream(ctx, req, sink)
	})
}
