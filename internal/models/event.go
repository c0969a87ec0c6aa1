package models

import "time"

// EventType identifies one lifecycle transition published on the event bus.
type EventType string

const (
	EventProjectCreated         EventType = "project_created"
	EventProjectUpdated         EventType = "project_updated"
	EventConversationCreated    EventType = "conversation_created"
	EventMessageAdded           EventType = "message_added"
	EventTaskCreated            EventType = "task_created"
	EventTaskUpdated            EventType = "task_updated"
	EventTaskHistoryAdded       EventType = "task_history_added"
	EventArtifactCreated        EventType = "artifact_created"
	EventArtifactVersionCreated EventType = "artifact_version_created"
	EventKnowledgeStored        EventType = "knowledge_stored"
	EventPersistenceCompleted   EventType = "persistence_completed"
	EventPersistenceFailed      EventType = "persistence_failed"
)

// EntityPayload describes the entity a lifecycle event refers to.
type EntityPayload struct {
	Kind      string `json:"kind"` // "project","conversation","task","artifact","knowledge"
	ID        string `json:"id"`
	ProjectID string `json:"project_id,omitempty"`
}

// PersistencePayload describes the outcome of a snapshot attempt.
type PersistencePayload struct {
	Path     string        `json:"path"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Event is a single bus notification. Exactly one payload field is set,
// matching the event type.
type Event struct {
	Type        EventType           `json:"type"`
	Entity      *EntityPayload      `json:"entity,omitempty"`
	Persistence *PersistencePayload `json:"persistence,omitempty"`
	Timestamp   time.Time           `json:"timestamp"`
}
