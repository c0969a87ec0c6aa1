package models

import "time"

// TaskStatus represents the execution state of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// taskTransitions is the exhaustive status transition table.
// failed -> in_progress covers manual retry; completed and cancelled are terminal.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:    {TaskStatusInProgress, TaskStatusCancelled},
	TaskStatusInProgress: {TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled},
	TaskStatusFailed:     {TaskStatusInProgress},
	TaskStatusCompleted:  {},
	TaskStatusCancelled:  {},
}

// ValidTaskStatus reports whether status is one of the known statuses.
func ValidTaskStatus(status TaskStatus) bool {
	_, ok := taskTransitions[status]
	return ok
}

// CanTransition reports whether a task may move from one status to another.
// A no-op transition (same status) is always allowed.
func CanTransition(from, to TaskStatus) bool {
	if from == to {
		return true
	}
	for _, next := range taskTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// HistoryEntryType is the closed set of task history entry kinds.
type HistoryEntryType string

const (
	HistoryStatusChange HistoryEntryType = "status_change"
	HistoryNote         HistoryEntryType = "note"
	HistoryResult       HistoryEntryType = "result"
)

// ValidHistoryEntryType reports whether t is one of the known entry kinds.
func ValidHistoryEntryType(t HistoryEntryType) bool {
	switch t {
	case HistoryStatusChange, HistoryNote, HistoryResult:
		return true
	}
	return false
}

// TaskHistoryEntry is one append-only record in a task's history.
type TaskHistoryEntry struct {
	ID        string                 `json:"id"`
	TaskID    string                 `json:"task_id"`
	Type      HistoryEntryType       `json:"type"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Task is a unit of work owned by a project.
type Task struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`

	History []TaskHistoryEntry `json:"history"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Context  map[string]interface{} `json:"context,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the task and its history.
func (t *Task) Clone() *Task {
	cp := *t
	cp.History = make([]TaskHistoryEntry, len(t.History))
	for i, h := range t.History {
		cp.History[i] = h
		cp.History[i].Metadata = cloneMap(h.Metadata)
	}
	cp.Metadata = cloneMap(t.Metadata)
	cp.Context = cloneMap(t.Context)
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}
