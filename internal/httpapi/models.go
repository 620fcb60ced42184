package httpapi

import (
	"net/http"

	"github.com/easeaico/scene-studio/internal/inference"
	"github.com/easeaico/scene-studio/internal/sse"
)

type settingsResponse struct {
	UseRemote   bool             `json:"useRemote"`
	LocalStatus inference.Status `json:"localStatus"`
}

type settingsBody struct {
	UseRemote *bool `json:"useRemote"`
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	list, err := s.models.FetchModels(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	sse.WriteJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	sse.WriteJSON(w, http.StatusOK, settingsResponse{
		UseRemote:   s.models.UsingRemote(r.Context()),
		LocalStatus: s.models.LocalStatus(),
	})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var body settingsBody
	if !decode(w, r, &body) {
		return
	}
	if body.UseRemote == nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "useRemote is required")
		return
	}
	if err := s.models.UpdateSetting(r.Context(), *body.UseRemote); err != nil {
		writeFailure(w, err)
		return
	}
	sse.WriteJSON(w, http.StatusOK, settingsResponse{
		UseRemote:   *body.UseRemote,
		LocalStatus: s.models.LocalStatus(),
	})
}
