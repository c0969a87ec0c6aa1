package models

import "time"

// MessageRole is the closed set of message author roles.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	RoleTool      MessageRole = "tool"
)

// ValidMessageRole reports whether role is one of the known roles.
func ValidMessageRole(role MessageRole) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// Message is a single turn in a conversation. Immutable once appended.
type Message struct {
	ID        string                 `json:"id"`
	Role      MessageRole            `json:"role"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Conversation holds an ordered message list owned by a project.
// Messages are embedded values, not separately addressable entities.
type Conversation struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Title     string    `json:"title,omitempty"`
	Messages  []Message `json:"messages"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Context  map[string]interface{} `json:"context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the conversation and its messages.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		cp.Messages[i] = m
		cp.Messages[i].Metadata = cloneMap(m.Metadata)
	}
	cp.Metadata = cloneMap(c.Metadata)
	cp.Context = cloneMap(c.Context)
	return &cp
}
