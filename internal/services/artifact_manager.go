package services

import (
	"sort"
	"sync"
	"time"

	"engram/internal/memerr"
	"engram/internal/models"

	"github.com/google/uuid"
)

// ArtifactManager owns artifacts and their append-only version chains. It
// depends on the entity store for project ownership validation and for the
// cascading updatedAt bump on the owning project.
//
// Version numbers are derived from the current length of the version list
// rather than stored independently, so they cannot drift from the actual
// history even after a restart from snapshot. The count-then-append runs
// under the manager lock.
type ArtifactManager struct {
	mu        sync.RWMutex
	artifacts map[string]*models.Artifact

	entities *EntityStore
	bus      *EventBus
	metrics  *Metrics
}

// NewArtifactManager creates an empty artifact manager.
func NewArtifactManager(entities *EntityStore, bus *EventBus, metrics *Metrics) *ArtifactManager {
	return &ArtifactManager{
		artifacts: make(map[string]*models.Artifact),
		entities:  entities,
		bus:       bus,
		metrics:   metrics,
	}
}

// CreateArtifactInput carries the caller-supplied fields for a new artifact.
// When Content is non-nil, version 1 is created atomically with the artifact.
type CreateArtifactInput struct {
	ID        string                 `json:"id,omitempty"`
	Name      string                 `json:"name"`
	Type      string                 `json:"type,omitempty"`
	Content   *string                `json:"content,omitempty"`
	CreatedBy string                 `json:"created_by,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// VersionInput carries the caller-supplied fields for a new artifact version.
type VersionInput struct {
	Content     string                 `json:"content"`
	Description string                 `json:"description,omitempty"`
	CreatedBy   string                 `json:"created_by,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// CreateArtifact inserts an artifact under an existing project. With initial
// content it starts at version 1 and CurrentVersionID set; otherwise it
// starts with zero versions and an empty CurrentVersionID.
func (m *ArtifactManager) CreateArtifact(projectID string, input CreateArtifactInput) (string, error) {
	if input.Name == "" {
		m.metrics.recordError("validation")
		return "", memerr.Validation("artifact name is required")
	}
	if !m.entities.ProjectExists(projectID) {
		m.metrics.recordError("not_found")
		return "", memerr.NotFound("project", projectID)
	}

	id := input.ID
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	if _, exists := m.artifacts[id]; exists {
		m.mu.Unlock()
		m.metrics.recordError("conflict")
		return "", memerr.Conflict("artifact", id)
	}

	now := time.Now()
	artifact := &models.Artifact{
		ID:        id,
		ProjectID: projectID,
		Name:      input.Name,
		Type:      input.Type,
		Versions:  []models.ArtifactVersion{},
		Metadata:  input.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if input.Content != nil {
		version := models.ArtifactVersion{
			ID:            uuid.NewString(),
			ArtifactID:    id,
			VersionNumber: 1,
			Content:       *input.Content,
			CreatedBy:     input.CreatedBy,
			CreatedAt:     now,
		}
		artifact.Versions = append(artifact.Versions, version)
		artifact.CurrentVersionID = version.ID
	}
	m.artifacts[id] = artifact
	m.mu.Unlock()

	// Project existence was checked above; a failure here means the project
	// vanished mid-create, which this single-writer core does not do.
	if err := m.entities.AttachArtifact(projectID, id); err != nil {
		m.metrics.recordError("not_found")
		return "", err
	}

	m.metrics.recordOp("artifact", "create")
	m.bus.publishEntity(models.EventArtifactCreated, "artifact", id, projectID)
	return id, nil
}

// CreateVersion appends a new immutable version to an artifact, points
// CurrentVersionID at it and bumps the artifact's and owning project's
// updatedAt.
func (m *ArtifactManager) CreateVersion(artifactID string, input VersionInput) (string, error) {
	if input.Content == "" {
		m.metrics.recordError("validation")
		return "", memerr.Validation("version content is required")
	}

	m.mu.Lock()
	artifact, ok := m.artifacts[artifactID]
	if !ok {
		m.mu.Unlock()
		m.metrics.recordError("not_found")
		return "", memerr.NotFound("artifact", artifactID)
	}

	now := time.Now()
	version := models.ArtifactVersion{
		ID:            uuid.NewString(),
		ArtifactID:    artifactID,
		VersionNumber: len(artifact.Versions) + 1,
		Content:       input.Content,
		Description:   input.Description,
		CreatedBy:     input.CreatedBy,
		Metadata:      input.Metadata,
		CreatedAt:     now,
	}
	artifact.Versions = append(artifact.Versions, version)
	artifact.CurrentVersionID = version.ID
	artifact.UpdatedAt = now
	projectID := artifact.ProjectID
	m.mu.Unlock()

	m.entities.TouchProject(projectID)

	m.metrics.recordOp("artifact_version", "create")
	m.bus.publishEntity(models.EventArtifactVersionCreated, "artifact", artifactID, projectID)
	return version.ID, nil
}

// GetArtifact returns a copy of an artifact by id.
func (m *ArtifactManager) GetArtifact(id string) (*models.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	artifact, ok := m.artifacts[id]
	if !ok {
		m.metrics.recordError("not_found")
		return nil, memerr.NotFound("artifact", id)
	}
	return artifact.Clone(), nil
}

// ListArtifacts returns copies of all artifacts for a project in creation order.
func (m *ArtifactManager) ListArtifacts(projectID string) ([]*models.Artifact, error) {
	if !m.entities.ProjectExists(projectID) {
		m.metrics.recordError("not_found")
		return nil, memerr.NotFound("project", projectID)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Artifact
	for _, a := range m.artifacts {
		if a.ProjectID == projectID {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// GetVersion returns a copy of one version of an artifact.
func (m *ArtifactManager) GetVersion(artifactID, versionID string) (*models.ArtifactVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	artifact, ok := m.artifacts[artifactID]
	if !ok {
		m.metrics.recordError("not_found")
		return nil, memerr.NotFound("artifact", artifactID)
	}
	for i := range artifact.Versions {
		if artifact.Versions[i].ID == versionID {
			v := artifact.Versions[i]
			v.Metadata = cloneVersionMetadata(v.Metadata)
			return &v, nil
		}
	}
	m.metrics.recordError("not_found")
	return nil, memerr.NotFound("artifact version", versionID)
}

// GetCurrentVersion returns a copy of the most recently created version.
// An artifact with no versions yet reports not found.
func (m *ArtifactManager) GetCurrentVersion(artifactID string) (*models.ArtifactVersion, error) {
	m.mu.RLock()
	artifact, ok := m.artifacts[artifactID]
	if !ok {
		m.mu.RUnlock()
		m.metrics.recordError("not_found")
		return nil, memerr.NotFound("artifact", artifactID)
	}
	currentID := artifact.CurrentVersionID
	m.mu.RUnlock()

	if currentID == "" {
		m.metrics.recordError("not_found")
		return nil, memerr.NotFound("current version of artifact", artifactID)
	}
	return m.GetVersion(artifactID, currentID)
}

// Count returns the number of artifacts.
func (m *ArtifactManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.artifacts)
}

// Export returns deep copies of the artifact collection for snapshotting.
func (m *ArtifactManager) Export() map[string]*models.Artifact {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*models.Artifact, len(m.artifacts))
	for id, a := range m.artifacts {
		out[id] = a.Clone()
	}
	return out
}

// Replace swaps in a loaded artifact collection, discarding current state.
func (m *ArtifactManager) Replace(artifacts map[string]*models.Artifact) {
	if artifacts == nil {
		artifacts = make(map[string]*models.Artifact)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts = artifacts
}

func cloneVersionMetadata(meta map[string]interface{}) map[string]interface{} {
	if meta == nil {
		return nil
	}
	out := make(map[string]interface{}, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
