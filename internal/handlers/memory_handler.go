package handlers

import (
	"encoding/json"
	"errors"
	"time"

	"engram/internal/memerr"
	"engram/internal/services"

	"github.com/gofiber/fiber/v2"
)

// MemoryHandler handles REST endpoints for the memory core. It owns no
// state; every operation delegates to the memory service and maps the error
// taxonomy onto HTTP status codes.
type MemoryHandler struct {
	memory *services.MemoryService
}

// NewMemoryHandler creates a new memory REST handler
func NewMemoryHandler(memory *services.MemoryService) *MemoryHandler {
	return &MemoryHandler{memory: memory}
}

// RegisterRoutes mounts all memory-core routes on the app.
func (h *MemoryHandler) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api/memory")

	api.Post("/projects", h.CreateProject)
	api.Get("/projects", h.ListProjects)
	api.Get("/projects/:id", h.GetProject)
	api.Patch("/projects/:id", h.UpdateProject)
	api.Put("/projects/:id/context/:key", h.StoreProjectContext)
	api.Get("/projects/:id/context/:key", h.RetrieveProjectContext)

	api.Post("/projects/:id/conversations", h.CreateConversation)
	api.Get("/projects/:id/conversations", h.ListConversations)
	api.Get("/conversations/:id", h.GetConversation)
	api.Post("/conversations/:id/messages", h.AddMessage)

	api.Post("/projects/:id/tasks", h.CreateTask)
	api.Get("/projects/:id/tasks", h.ListTasks)
	api.Get("/tasks/:id", h.GetTask)
	api.Patch("/tasks/:id", h.UpdateTask)
	api.Post("/tasks/:id/history", h.AddTaskHistory)

	api.Post("/projects/:id/artifacts", h.CreateArtifact)
	api.Get("/projects/:id/artifacts", h.ListArtifacts)
	api.Get("/artifacts/:id", h.GetArtifact)
	api.Post("/artifacts/:id/versions", h.CreateArtifactVersion)
	api.Get("/artifacts/:id/versions/:versionId", h.GetArtifactVersion)
	api.Get("/artifacts/:id/current", h.GetCurrentArtifactVersion)

	api.Put("/knowledge/:key", h.StoreKnowledge)
	api.Get("/knowledge/:key", h.RetrieveKnowledge)

	api.Put("/global/:key", h.SetGlobalContext)
	api.Get("/global/:key", h.GetGlobalContext)

	api.Get("/stats", h.GetStats)
	api.Post("/snapshot", h.Snapshot)
}

// fail maps the error taxonomy onto HTTP status codes.
func fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, memerr.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, memerr.ErrConflict):
		status = fiber.StatusConflict
	case errors.Is(err, memerr.ErrValidation):
		status = fiber.StatusBadRequest
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// CreateProject creates a new project
func (h *MemoryHandler) CreateProject(c *fiber.Ctx) error {
	var input services.CreateProjectInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	id, err := h.memory.Entities.CreateProject(input)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

// ListProjects returns all projects, newest first
func (h *MemoryHandler) ListProjects(c *fiber.Ctx) error {
	return c.JSON(h.memory.Entities.ListProjects())
}

// GetProject returns a project by id
func (h *MemoryHandler) GetProject(c *fiber.Ctx) error {
	project, err := h.memory.Entities.GetProject(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(project)
}

// UpdateProject merges patch fields into a project
func (h *MemoryHandler) UpdateProject(c *fiber.Ctx) error {
	var patch services.ProjectPatch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	project, err := h.memory.Entities.UpdateProject(c.Params("id"), patch)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(project)
}

// StoreProjectContext sets one key in a project's context map
func (h *MemoryHandler) StoreProjectContext(c *fiber.Ctx) error {
	var body struct {
		Value interface{} `json:"value"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	if err := h.memory.Entities.StoreProjectContext(c.Params("id"), c.Params("key"), body.Value); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"stored": true})
}

// RetrieveProjectContext returns one key from a project's context map
func (h *MemoryHandler) RetrieveProjectContext(c *fiber.Ctx) error {
	value, found, err := h.memory.Entities.RetrieveProjectContext(c.Params("id"), c.Params("key"))
	if err != nil {
		return fail(c, err)
	}
	if !found {
		return c.Status(404).JSON(fiber.Map{"error": "context key not found"})
	}
	return c.JSON(fiber.Map{"value": value})
}

// CreateConversation creates a conversation under a project
func (h *MemoryHandler) CreateConversation(c *fiber.Ctx) error {
	var input services.CreateConversationInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	id, err := h.memory.Entities.CreateConversation(c.Params("id"), input)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

// ListConversations returns a project's conversations
func (h *MemoryHandler) ListConversations(c *fiber.Ctx) error {
	conversations, err := h.memory.Entities.ListConversations(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(conversations)
}

// GetConversation returns a conversation by id
func (h *MemoryHandler) GetConversation(c *fiber.Ctx) error {
	conversation, err := h.memory.Entities.GetConversation(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(conversation)
}

// AddMessage appends a message to a conversation
func (h *MemoryHandler) AddMessage(c *fiber.Ctx) error {
	var input services.MessageInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	id, err := h.memory.Entities.AddMessage(c.Params("id"), input)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

// CreateTask creates a task under a project
func (h *MemoryHandler) CreateTask(c *fiber.Ctx) error {
	var input services.CreateTaskInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	id, err := h.memory.Entities.CreateTask(c.Params("id"), input)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

// ListTasks returns a project's tasks
func (h *MemoryHandler) ListTasks(c *fiber.Ctx) error {
	tasks, err := h.memory.Entities.ListTasks(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(tasks)
}

// GetTask returns a task by id
func (h *MemoryHandler) GetTask(c *fiber.Ctx) error {
	task, err := h.memory.Entities.GetTask(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(task)
}

// UpdateTask merges patch fields into a task
func (h *MemoryHandler) UpdateTask(c *fiber.Ctx) error {
	var patch services.TaskPatch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	task, err := h.memory.Entities.UpdateTask(c.Params("id"), patch)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(task)
}

// AddTaskHistory appends an entry to a task's history
func (h *MemoryHandler) AddTaskHistory(c *fiber.Ctx) error {
	var input services.TaskHistoryInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	id, err := h.memory.Entities.AddTaskHistory(c.Params("id"), input)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

// CreateArtifact creates an artifact under a project
func (h *MemoryHandler) CreateArtifact(c *fiber.Ctx) error {
	var input services.CreateArtifactInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	id, err := h.memory.Artifacts.CreateArtifact(c.Params("id"), input)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

// ListArtifacts returns a project's artifacts
func (h *MemoryHandler) ListArtifacts(c *fiber.Ctx) error {
	artifacts, err := h.memory.Artifacts.ListArtifacts(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(artifacts)
}

// GetArtifact returns an artifact by id
func (h *MemoryHandler) GetArtifact(c *fiber.Ctx) error {
	artifact, err := h.memory.Artifacts.GetArtifact(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(artifact)
}

// CreateArtifactVersion appends a new version to an artifact
func (h *MemoryHandler) CreateArtifactVersion(c *fiber.Ctx) error {
	var input services.VersionInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	id, err := h.memory.Artifacts.CreateVersion(c.Params("id"), input)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

// GetArtifactVersion returns one version of an artifact
func (h *MemoryHandler) GetArtifactVersion(c *fiber.Ctx) error {
	version, err := h.memory.Artifacts.GetVersion(c.Params("id"), c.Params("versionId"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(version)
}

// GetCurrentArtifactVersion returns the most recently created version
func (h *MemoryHandler) GetCurrentArtifactVersion(c *fiber.Ctx) error {
	version, err := h.memory.Artifacts.GetCurrentVersion(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(version)
}

// StoreKnowledge upserts a knowledge item
func (h *MemoryHandler) StoreKnowledge(c *fiber.Ctx) error {
	var body struct {
		Value     interface{}            `json:"value"`
		ExpiresAt *time.Time             `json:"expires_at,omitempty"`
		Metadata  map[string]interface{} `json:"metadata,omitempty"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	err := h.memory.Knowledge.Store(c.Params("key"), body.Value, services.StoreOptions{
		ExpiresAt: body.ExpiresAt,
		Metadata:  body.Metadata,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"stored": true})
}

// RetrieveKnowledge returns a knowledge item, treating expired items as absent
func (h *MemoryHandler) RetrieveKnowledge(c *fiber.Ctx) error {
	item, found := h.memory.Knowledge.Retrieve(c.Params("key"))
	if !found {
		return c.Status(404).JSON(fiber.Map{"error": "knowledge key not found"})
	}
	return c.JSON(item)
}

// SetGlobalContext stores one raw value in the global mapping
func (h *MemoryHandler) SetGlobalContext(c *fiber.Ctx) error {
	if !json.Valid(c.Body()) {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON body"})
	}
	h.memory.SetGlobalContext(c.Params("key"), json.RawMessage(append([]byte(nil), c.Body()...)))
	return c.JSON(fiber.Map{"stored": true})
}

// GetGlobalContext returns one raw value from the global mapping
func (h *MemoryHandler) GetGlobalContext(c *fiber.Ctx) error {
	value, found := h.memory.GetGlobalContext(c.Params("key"))
	if !found {
		return c.Status(404).JSON(fiber.Map{"error": "global key not found"})
	}
	c.Set("Content-Type", "application/json")
	return c.Send(value)
}

// GetStats returns per-collection counts and the last persisted timestamp
func (h *MemoryHandler) GetStats(c *fiber.Ctx) error {
	return c.JSON(h.memory.GetMemoryStats())
}

// Snapshot writes a durable snapshot now; the error goes to this caller
func (h *MemoryHandler) Snapshot(c *fiber.Ctx) error {
	if err := h.memory.Snapshot(); err != nil {
		return fail(c, err)
	}
	return c.JSON(h.memory.GetMemoryStats())
}
