package httpapi

import (
	"net/http"

	"github.com/easeaico/scene-studio/internal/sse"
)

const defaultSearchK = 5

type storeBody struct {
	Content string `json:"content"`
	SceneID *int   `json:"scene_id"`
	AgentID *int   `json:"agent_id"`
}

type searchBody struct {
	Text string `json:"text"`
	K    int    `json:"k"`
}

func (s *Server) handleStoreMemory(w http.ResponseWriter, r *http.Request) {
	var body storeBody
	if !decode(w, r, &body) {
		return
	}
	if trimmed(body.Content) == "" {
		writeError(w, http.StatusBadRequest, "Bad Request", "content is required")
		return
	}
	id, err := s.indexer.StoreMemory(r.Context(), body.Content, body.SceneID, body.AgentID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	sse.WriteJSON(w, http.StatusCreated, map[string]int{"id": id})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var body searchBody
	if !decode(w, r, &body) {
		return
	}
	if trimmed(body.Text) == "" {
		writeError(w, http.StatusBadRequest, "Bad Request", "text is required")
		return
	}
	if body.K <= 0 {
		body.K = defaultSearchK
	}
	res, err := s.indexer.Search(r.Context(), body.Text, body.K)
	if err != nil {
		writeFailure(w, err)
		return
	}
	sse.WriteJSON(w, http.StatusOK, res)
}

func (s *Server) handleTeachDialogs(w http.ResponseWriter, r *http.Request) {
	res, err := s.indexer.TeachDialogs(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	sse.WriteJSON(w, http.StatusOK, res)
}
