package models

import "time"

// Project is the top-level ownership root. Conversations, tasks and artifacts
// belong to exactly one project and are referenced by id, not embedded.
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Child ids in creation order. Mutated only by the create-child operations.
	ConversationIDs []string `json:"conversation_ids"`
	TaskIDs         []string `json:"task_ids"`
	ArtifactIDs     []string `json:"artifact_ids"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Context  map[string]interface{} `json:"context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so snapshots never alias live state.
func (p *Project) Clone() *Project {
	cp := *p
	cp.ConversationIDs = append([]string(nil), p.ConversationIDs...)
	cp.TaskIDs = append([]string(nil), p.TaskIDs...)
	cp.ArtifactIDs = append([]string(nil), p.ArtifactIDs...)
	cp.Metadata = cloneMap(p.Metadata)
	cp.Context = cloneMap(p.Context)
	return &cp
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
