package services

import (
	"sort"
	"sync"
	"time"

	"engram/internal/memerr"
	"engram/internal/models"

	"github.com/google/uuid"
)

// EntityStore owns the project, conversation and task collections, their
// parent/child linkage and the cascading updatedAt propagation. All state is
// in-memory; durability comes from the persistence engine snapshotting the
// exported collections.
//
// One RWMutex guards the three collections together because child mutations
// (message append, task update) must bump the owning project's updatedAt in
// the same critical section.
type EntityStore struct {
	mu            sync.RWMutex
	projects      map[string]*models.Project
	conversations map[string]*models.Conversation
	tasks         map[string]*models.Task

	bus     *EventBus
	metrics *Metrics
}

// NewEntityStore creates an empty entity store.
func NewEntityStore(bus *EventBus, metrics *Metrics) *EntityStore {
	return &EntityStore{
		projects:      make(map[string]*models.Project),
		conversations: make(map[string]*models.Conversation),
		tasks:         make(map[string]*models.Task),
		bus:           bus,
		metrics:       metrics,
	}
}

// CreateProjectInput carries the caller-supplied fields for a new project.
// ID is optional; one is generated when absent.
type CreateProjectInput struct {
	ID          string                 `json:"id,omitempty"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Context     map[string]interface{} `json:"context,omitempty"`
}

// ProjectPatch carries partial updates for a project. Child id lists are not
// patchable; they are mutated only by the create-child operations.
type ProjectPatch struct {
	Name        *string                `json:"name,omitempty"`
	Description *string                `json:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Context     map[string]interface{} `json:"context,omitempty"`
}

// CreateProject inserts a new project with empty child lists.
func (s *EntityStore) CreateProject(input CreateProjectInput) (string, error) {
	if input.Name == "" {
		s.metrics.recordError("validation")
		return "", memerr.Validation("project name is required")
	}

	id := input.ID
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	if _, exists := s.projects[id]; exists {
		s.mu.Unlock()
		s.metrics.recordError("conflict")
		return "", memerr.Conflict("project", id)
	}

	now := time.Now()
	s.projects[id] = &models.Project{
		ID:              id,
		Name:            input.Name,
		Description:     input.Description,
		ConversationIDs: []string{},
		TaskIDs:         []string{},
		ArtifactIDs:     []string{},
		Metadata:        input.Metadata,
		Context:         input.Context,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.mu.Unlock()

	s.metrics.recordOp("project", "create")
	s.bus.publishEntity(models.EventProjectCreated, "project", id, id)
	return id, nil
}

// GetProject returns a copy of a project by id.
func (s *EntityStore) GetProject(id string) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	project, ok := s.projects[id]
	if !ok {
		s.metrics.recordError("not_found")
		return nil, memerr.NotFound("project", id)
	}
	return project.Clone(), nil
}

// ListProjects returns all projects sorted by creation time, newest first.
func (s *EntityStore) ListProjects() []*models.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// UpdateProject merges patch fields into a project and bumps updatedAt.
func (s *EntityStore) UpdateProject(id string, patch ProjectPatch) (*models.Project, error) {
	s.mu.Lock()
	project, ok := s.projects[id]
	if !ok {
		s.mu.Unlock()
		s.metrics.recordError("not_found")
		return nil, memerr.NotFound("project", id)
	}

	if patch.Name != nil {
		if *patch.Name == "" {
			s.mu.Unlock()
			s.metrics.recordError("validation")
			return nil, memerr.Validation("project name cannot be empty")
		}
		project.Name = *patch.Name
	}
	if patch.Description != nil {
		project.Description = *patch.Description
	}
	mergeInto(&project.Metadata, patch.Metadata)
	mergeInto(&project.Context, patch.Context)
	project.UpdatedAt = time.Now()

	updated := project.Clone()
	s.mu.Unlock()

	s.metrics.recordOp("project", "update")
	s.bus.publishEntity(models.EventProjectUpdated, "project", id, id)
	return updated, nil
}

// CreateConversationInput carries the caller-supplied fields for a new conversation.
type CreateConversationInput struct {
	ID       string                 `json:"id,omitempty"`
	Title    string                 `json:"title,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// CreateConversation inserts a conversation under an existing project and
// appends its id to the project's conversation list.
func (s *EntityStore) CreateConversation(projectID string, input CreateConversationInput) (string, error) {
	id := input.ID
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	project, ok := s.projects[projectID]
	if !ok {
		s.mu.Unlock()
		s.metrics.recordError("not_found")
		return "", memerr.NotFound("project", projectID)
	}
	if _, exists := s.conversations[id]; exists {
		s.mu.Unlock()
		s.metrics.recordError("conflict")
		return "", memerr.Conflict("conversation", id)
	}

	now := time.Now()
	s.conversations[id] = &models.Conversation{
		ID:        id,
		ProjectID: projectID,
		Title:     input.Title,
		Messages:  []models.Message{},
		Metadata:  input.Metadata,
		Context:   input.Context,
		CreatedAt: now,
		UpdatedAt: now,
	}
	project.ConversationIDs = append(project.ConversationIDs, id)
	project.UpdatedAt = now
	s.mu.Unlock()

	s.metrics.recordOp("conversation", "create")
	s.bus.publishEntity(models.EventConversationCreated, "conversation", id, projectID)
	return id, nil
}

// GetConversation returns a copy of a conversation by id.
func (s *EntityStore) GetConversation(id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conversation, ok := s.conversations[id]
	if !ok {
		s.metrics.recordError("not_found")
		return nil, memerr.NotFound("conversation", id)
	}
	return conversation.Clone(), nil
}

// ListConversations returns copies of all conversations for a project in
// creation order.
func (s *EntityStore) ListConversations(projectID string) ([]*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	project, ok := s.projects[projectID]
	if !ok {
		s.metrics.recordError("not_found")
		return nil, memerr.NotFound("project", projectID)
	}

	out := make([]*models.Conversation, 0, len(project.ConversationIDs))
	for _, id := range project.ConversationIDs {
		if c, ok := s.conversations[id]; ok {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

// MessageInput carries the caller-supplied fields for a new message.
type MessageInput struct {
	Role     models.MessageRole     `json:"role"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// AddMessage appends an immutable message to a conversation and bumps the
// conversation's and the owning project's updatedAt.
func (s *EntityStore) AddMessage(conversationID string, input MessageInput) (string, error) {
	if !models.ValidMessageRole(input.Role) {
		s.metrics.recordError("validation")
		return "", memerr.Validation("unknown message role %q", input.Role)
	}
	if input.Content == "" {
		s.metrics.recordError("validation")
		return "", memerr.Validation("message content is required")
	}

	s.mu.Lock()
	conversation, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		s.metrics.recordError("not_found")
		return "", memerr.NotFound("conversation", conversationID)
	}

	now := time.Now()
	id := uuid.NewString()
	conversation.Messages = append(conversation.Messages, models.Message{
		ID:        id,
		Role:      input.Role,
		Content:   input.Content,
		Timestamp: now,
		Metadata:  input.Metadata,
	})
	conversation.UpdatedAt = now
	s.touchProjectLocked(conversation.ProjectID, now)
	projectID := conversation.ProjectID
	s.mu.Unlock()

	s.metrics.recordOp("message", "create")
	s.bus.publishEntity(models.EventMessageAdded, "message", id, projectID)
	return id, nil
}

// CreateTaskInput carries the caller-supplied fields for a new task.
// Status defaults to pending when absent.
type CreateTaskInput struct {
	ID          string                 `json:"id,omitempty"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Status      models.TaskStatus      `json:"status,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Context     map[string]interface{} `json:"context,omitempty"`
}

// TaskPatch carries partial updates for a task.
type TaskPatch struct {
	Name        *string                `json:"name,omitempty"`
	Description *string                `json:"description,omitempty"`
	Status      *models.TaskStatus     `json:"status,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Context     map[string]interface{} `json:"context,omitempty"`
}

// TaskHistoryInput carries the caller-supplied fields for a history entry.
type TaskHistoryInput struct {
	Type     models.HistoryEntryType `json:"type"`
	Content  string                  `json:"content"`
	Metadata map[string]interface{}  `json:"metadata,omitempty"`
}

// CreateTask inserts a task under an existing project.
func (s *EntityStore) CreateTask(projectID string, input CreateTaskInput) (string, error) {
	if input.Name == "" {
		s.metrics.recordError("validation")
		return "", memerr.Validation("task name is required")
	}
	status := input.Status
	if status == "" {
		status = models.TaskStatusPending
	}
	if !models.ValidTaskStatus(status) {
		s.metrics.recordError("validation")
		return "", memerr.Validation("unknown task status %q", status)
	}

	id := input.ID
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	project, ok := s.projects[projectID]
	if !ok {
		s.mu.Unlock()
		s.metrics.recordError("not_found")
		return "", memerr.NotFound("project", projectID)
	}
	if _, exists := s.tasks[id]; exists {
		s.mu.Unlock()
		s.metrics.recordError("conflict")
		return "", memerr.Conflict("task", id)
	}

	now := time.Now()
	s.tasks[id] = &models.Task{
		ID:          id,
		ProjectID:   projectID,
		Name:        input.Name,
		Description: input.Description,
		Status:      status,
		History:     []models.TaskHistoryEntry{},
		Metadata:    input.Metadata,
		Context:     input.Context,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	project.TaskIDs = append(project.TaskIDs, id)
	project.UpdatedAt = now
	s.mu.Unlock()

	s.metrics.recordOp("task", "create")
	s.bus.publishEntity(models.EventTaskCreated, "task", id, projectID)
	return id, nil
}

// GetTask returns a copy of a task by id.
func (s *EntityStore) GetTask(id string) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		s.metrics.recordError("not_found")
		return nil, memerr.NotFound("task", id)
	}
	return task.Clone(), nil
}

// ListTasks returns copies of all tasks for a project in creation order.
func (s *EntityStore) ListTasks(projectID string) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	project, ok := s.projects[projectID]
	if !ok {
		s.metrics.recordError("not_found")
		return nil, memerr.NotFound("project", projectID)
	}

	out := make([]*models.Task, 0, len(project.TaskIDs))
	for _, id := range project.TaskIDs {
		if t, ok := s.tasks[id]; ok {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

// UpdateTask merges patch fields into a task. Status changes are checked
// against the transition table; the first transition into completed stamps
// completedAt, and repeated completed updates keep the original stamp.
// Every status change appends a status_change history entry.
func (s *EntityStore) UpdateTask(id string, patch TaskPatch) (*models.Task, error) {
	if patch.Status != nil && !models.ValidTaskStatus(*patch.Status) {
		s.metrics.recordError("validation")
		return nil, memerr.Validation("unknown task status %q", *patch.Status)
	}

	s.mu.Lock()
	task, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		s.metrics.recordError("not_found")
		return nil, memerr.NotFound("task", id)
	}

	now := time.Now()
	if patch.Status != nil && *patch.Status != task.Status {
		if !models.CanTransition(task.Status, *patch.Status) {
			s.mu.Unlock()
			s.metrics.recordError("validation")
			return nil, memerr.Validation("invalid task status transition %s -> %s", task.Status, *patch.Status)
		}
		previous := task.Status
		task.Status = *patch.Status
		if task.Status == models.TaskStatusCompleted && task.CompletedAt == nil {
			at := now
			task.CompletedAt = &at
		}
		task.History = append(task.History, models.TaskHistoryEntry{
			ID:        uuid.NewString(),
			TaskID:    id,
			Type:      models.HistoryStatusChange,
			Content:   string(previous) + " -> " + string(task.Status),
			Timestamp: now,
		})
	}
	if patch.Name != nil {
		if *patch.Name == "" {
			s.mu.Unlock()
			s.metrics.recordError("validation")
			return nil, memerr.Validation("task name cannot be empty")
		}
		task.Name = *patch.Name
	}
	if patch.Description != nil {
		task.Description = *patch.Description
	}
	mergeInto(&task.Metadata, patch.Metadata)
	mergeInto(&task.Context, patch.Context)
	task.UpdatedAt = now
	s.touchProjectLocked(task.ProjectID, now)

	updated := task.Clone()
	projectID := task.ProjectID
	s.mu.Unlock()

	s.metrics.recordOp("task", "update")
	s.bus.publishEntity(models.EventTaskUpdated, "task", id, projectID)
	return updated, nil
}

// AddTaskHistory appends an entry to a task's history.
func (s *EntityStore) AddTaskHistory(taskID string, input TaskHistoryInput) (string, error) {
	if !models.ValidHistoryEntryType(input.Type) {
		s.metrics.recordError("validation")
		return "", memerr.Validation("unknown history entry type %q", input.Type)
	}
	if input.Content == "" {
		s.metrics.recordError("validation")
		return "", memerr.Validation("history entry content is required")
	}

	s.mu.Lock()
	task, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		s.metrics.recordError("not_found")
		return "", memerr.NotFound("task", taskID)
	}

	now := time.Now()
	id := uuid.NewString()
	task.History = append(task.History, models.TaskHistoryEntry{
		ID:        id,
		TaskID:    taskID,
		Type:      input.Type,
		Content:   input.Content,
		Timestamp: now,
		Metadata:  input.Metadata,
	})
	task.UpdatedAt = now
	s.touchProjectLocked(task.ProjectID, now)
	projectID := task.ProjectID
	s.mu.Unlock()

	s.metrics.recordOp("task_history", "create")
	s.bus.publishEntity(models.EventTaskHistoryAdded, "task", taskID, projectID)
	return id, nil
}

// AttachArtifact appends an artifact id to a project's artifact list and
// bumps the project's updatedAt. Called by the artifact manager, which holds
// its own lock; the entity store never calls back into it.
func (s *EntityStore) AttachArtifact(projectID, artifactID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	project, ok := s.projects[projectID]
	if !ok {
		return memerr.NotFound("project", projectID)
	}
	project.ArtifactIDs = append(project.ArtifactIDs, artifactID)
	project.UpdatedAt = time.Now()
	return nil
}

// TouchProject bumps a project's updatedAt. Unknown ids are a no-op so a
// child mutation never fails after the child itself succeeded.
func (s *EntityStore) TouchProject(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchProjectLocked(projectID, time.Now())
}

// ProjectExists reports whether a project id is present.
func (s *EntityStore) ProjectExists(projectID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.projects[projectID]
	return ok
}

// StoreProjectContext sets one key in a project's context map.
func (s *EntityStore) StoreProjectContext(projectID, key string, value interface{}) error {
	if key == "" {
		s.metrics.recordError("validation")
		return memerr.Validation("context key is required")
	}

	s.mu.Lock()
	project, ok := s.projects[projectID]
	if !ok {
		s.mu.Unlock()
		s.metrics.recordError("not_found")
		return memerr.NotFound("project", projectID)
	}
	if project.Context == nil {
		project.Context = make(map[string]interface{})
	}
	project.Context[key] = value
	project.UpdatedAt = time.Now()
	s.mu.Unlock()

	s.metrics.recordOp("project_context", "store")
	s.bus.publishEntity(models.EventProjectUpdated, "project", projectID, projectID)
	return nil
}

// RetrieveProjectContext returns one key from a project's context map.
// The second return value reports whether the key was present.
func (s *EntityStore) RetrieveProjectContext(projectID, key string) (interface{}, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	project, ok := s.projects[projectID]
	if !ok {
		s.metrics.recordError("not_found")
		return nil, false, memerr.NotFound("project", projectID)
	}
	value, found := project.Context[key]
	return value, found, nil
}

// Counts returns the number of projects, conversations and tasks.
func (s *EntityStore) Counts() (projects, conversations, tasks int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.projects), len(s.conversations), len(s.tasks)
}

// Export returns deep copies of the three collections for snapshotting.
func (s *EntityStore) Export() (map[string]*models.Project, map[string]*models.Conversation, map[string]*models.Task) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	projects := make(map[string]*models.Project, len(s.projects))
	for id, p := range s.projects {
		projects[id] = p.Clone()
	}
	conversations := make(map[string]*models.Conversation, len(s.conversations))
	for id, c := range s.conversations {
		conversations[id] = c.Clone()
	}
	tasks := make(map[string]*models.Task, len(s.tasks))
	for id, t := range s.tasks {
		tasks[id] = t.Clone()
	}
	return projects, conversations, tasks
}

// Replace swaps in loaded collections, discarding all current state.
// Nil maps are treated as empty.
func (s *EntityStore) Replace(projects map[string]*models.Project, conversations map[string]*models.Conversation, tasks map[string]*models.Task) {
	if projects == nil {
		projects = make(map[string]*models.Project)
	}
	if conversations == nil {
		conversations = make(map[string]*models.Conversation)
	}
	if tasks == nil {
		tasks = make(map[string]*models.Task)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects = projects
	s.conversations = conversations
	s.tasks = tasks
}

// touchProjectLocked bumps a project's updatedAt. Caller holds s.mu.
func (s *EntityStore) touchProjectLocked(projectID string, now time.Time) {
	if project, ok := s.projects[projectID]; ok {
		project.UpdatedAt = now
	}
}

// mergeInto copies patch keys into the target map, allocating it if needed.
func mergeInto(target *map[string]interface{}, patch map[string]interface{}) {
	if len(patch) == 0 {
		return
	}
	if *target == nil {
		*target = make(map[string]interface{}, len(patch))
	}
	for k, v := range patch {
		(*target)[k] = v
	}
}
