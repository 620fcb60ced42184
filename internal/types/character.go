package types

import "time"

// Agent is a persona definition. Name is the lookup key for prompt assembly.
type Agent struct {
	ID              int       `json:"id"`
	Name            string    `json:"name"`
	Type            string    `json:"type"`
	Desc            string    `json:"desc"`
	Canon           string    `json:"canon"`
	State           string    `json:"state"`
	Goals           string    `json:"goals"`
	PlayPrompt      string    `json:"play_prompt"`
	ForwardPrompt   string    `json:"forward_prompt"`
	CheckerPrompt   string    `json:"checker_prompt"`
	AwarenessPrompt string    `json:"awareness_prompt"`
	PlannerPrompt   string    `json:"planner_prompt"`
	StyleGuide      string    `json:"style_guide"`
	CreatedAt       time.Time `json:"created_at"`
}

// Scene is an ordered narrative unit. Excluded scenes never appear in a timeline.
type Scene struct {
	SceneID   int       `json:"scene_id"`
	Name      string    `json:"name"`
	Synopsis  string    `json:"synopsis"`
	Canon     string    `json:"canon"`
	Sortcode  float64   `json:"sortcode"`
	After     string    `json:"after"`
	Include   bool      `json:"include"`
	CreatedAt time.Time `json:"created_at"`
}

// Dialog is one query/response exchange within a scene.
type Dialog struct {
	ID          int       `json:"id"`
	SceneID     int       `json:"scene_id"`
	AIPersona   string    `json:"ai_persona"`
	UserPersona string    `json:"user_persona"`
	UserQuery   string    `json:"user_query"`
	AIResponse  string    `json:"ai_response"`
	Revised     string    `json:"revised"`
	Comment     string    `json:"comment"`
	Exemplary   bool      `json:"exemplary"`
	Sortcode    float64   `json:"sortcode"`
	CreatedAt   time.Time `json:"created_at"`
}

// ResponseText returns the approved revision when present, else the raw response.
func (d Dialog) ResponseText() string {
	if hasText(d.Revised) {
		return d.Revised
	}
	return d.AIResponse
}

const (
	// PoolVector is the bulk, regenerable pool built from indexed dialogs.
	PoolVector = "vector"
	// PoolMemory is the curated long-term pool.
	PoolMemory = "memory"
)

// EmbeddingRecord is a stored embedding in one of the pools.
type EmbeddingRecord struct {
	ID        int       `json:"id"`
	Pool      string    `json:"pool"`
	SceneID   *int      `json:"scene_id,omitempty"`
	AgentID   *int      `json:"agent_id,omitempty"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// EmbeddingMatch is a retrieval hit. Lower distance is more similar.
type EmbeddingMatch struct {
	ID        int     `json:"id"`
	Pool      string  `json:"source"`
	Content   string  `json:"content"`
	Distance  float64 `json:"distance"`
	SceneID   *int    `json:"scene_id,omitempty"`
	SceneName string  `json:"scene_name,omitempty"`
	AgentID   *int    `json:"agent_id,omitempty"`
	AgentName string  `json:"agent_name,omitempty"`
}

// PacingState carries the previous turn's lengths between turns.
type PacingState struct {
	LastUserQueryLength     int `json:"lastUserQueryLength"`
	LastAgentResponseLength int `json:"lastAgentResponseLength"`
}
