package services

import (
	"errors"
	"fmt"
	"testing"

	"engram/internal/memerr"
)

func newTestManager(t *testing.T) (*ArtifactManager, *EntityStore) {
	t.Helper()
	bus := NewEventBus()
	entities := NewEntityStore(bus, nil)
	return NewArtifactManager(entities, bus, nil), entities
}

func TestCreateArtifactWithInitialContent(t *testing.T) {
	m, entities := newTestManager(t)
	projectID := mustCreateProject(t, entities, "Demo")

	content := "v1"
	artifactID, err := m.CreateArtifact(projectID, CreateArtifactInput{Name: "doc", Content: &content})
	if err != nil {
		t.Fatalf("CreateArtifact failed: %v", err)
	}

	artifact, err := m.GetArtifact(artifactID)
	if err != nil {
		t.Fatalf("GetArtifact failed: %v", err)
	}
	if len(artifact.Versions) != 1 {
		t.Fatalf("Expected exactly one version, got %d", len(artifact.Versions))
	}
	if artifact.Versions[0].VersionNumber != 1 {
		t.Errorf("Expected versionNumber 1, got %d", artifact.Versions[0].VersionNumber)
	}
	if artifact.CurrentVersionID != artifact.Versions[0].ID {
		t.Errorf("Expected currentVersion %s, got %s", artifact.Versions[0].ID, artifact.CurrentVersionID)
	}

	versionID, err := m.CreateVersion(artifactID, VersionInput{Content: "v2"})
	if err != nil {
		t.Fatalf("CreateVersion failed: %v", err)
	}

	current, err := m.GetCurrentVersion(artifactID)
	if err != nil {
		t.Fatalf("GetCurrentVersion failed: %v", err)
	}
	if current.ID != versionID || current.VersionNumber != 2 || current.Content != "v2" {
		t.Errorf("Expected current version 2 with content v2, got %+v", current)
	}
}

func TestCreateArtifactWithoutContent(t *testing.T) {
	m, entities := newTestManager(t)
	projectID := mustCreateProject(t, entities, "Demo")

	artifactID, err := m.CreateArtifact(projectID, CreateArtifactInput{Name: "empty"})
	if err != nil {
		t.Fatalf("CreateArtifact failed: %v", err)
	}

	artifact, _ := m.GetArtifact(artifactID)
	if len(artifact.Versions) != 0 || artifact.CurrentVersionID != "" {
		t.Errorf("Expected zero versions and unset currentVersion, got %d / %q",
			len(artifact.Versions), artifact.CurrentVersionID)
	}

	if _, err := m.GetCurrentVersion(artifactID); !errors.Is(err, memerr.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for current version of empty artifact, got %v", err)
	}
}

func TestVersionNumbersAreContiguous(t *testing.T) {
	m, entities := newTestManager(t)
	projectID := mustCreateProject(t, entities, "Demo")
	artifactID, _ := m.CreateArtifact(projectID, CreateArtifactInput{Name: "doc"})

	const n = 10
	for i := 1; i <= n; i++ {
		if _, err := m.CreateVersion(artifactID, VersionInput{Content: fmt.Sprintf("rev %d", i)}); err != nil {
			t.Fatalf("CreateVersion %d failed: %v", i, err)
		}
	}

	artifact, _ := m.GetArtifact(artifactID)
	if len(artifact.Versions) != n {
		t.Fatalf("Expected %d versions, got %d", n, len(artifact.Versions))
	}
	seen := make(map[int]bool)
	for i, v := range artifact.Versions {
		if v.VersionNumber != i+1 {
			t.Errorf("Expected version %d at index %d, got %d", i+1, i, v.VersionNumber)
		}
		if seen[v.VersionNumber] {
			t.Errorf("Duplicate version number %d", v.VersionNumber)
		}
		seen[v.VersionNumber] = true
	}
}

func TestCreateArtifactUnknownProject(t *testing.T) {
	m, _ := newTestManager(t)

	if _, err := m.CreateArtifact("missing", CreateArtifactInput{Name: "doc"}); !errors.Is(err, memerr.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if m.Count() != 0 {
		t.Error("Expected no artifacts after failed create")
	}
}

func TestCreateVersionValidation(t *testing.T) {
	m, entities := newTestManager(t)
	projectID := mustCreateProject(t, entities, "Demo")
	artifactID, _ := m.CreateArtifact(projectID, CreateArtifactInput{Name: "doc"})

	if _, err := m.CreateVersion(artifactID, VersionInput{}); !errors.Is(err, memerr.ErrValidation) {
		t.Errorf("Expected ErrValidation for missing content, got %v", err)
	}
	if _, err := m.CreateVersion("missing", VersionInput{Content: "x"}); !errors.Is(err, memerr.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown artifact, got %v", err)
	}
}

func TestGetVersionNotFound(t *testing.T) {
	m, entities := newTestManager(t)
	projectID := mustCreateProject(t, entities, "Demo")
	artifactID, _ := m.CreateArtifact(projectID, CreateArtifactInput{Name: "doc"})

	if _, err := m.GetVersion(artifactID, "missing"); !errors.Is(err, memerr.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown version, got %v", err)
	}
	if _, err := m.GetVersion("missing", "v"); !errors.Is(err, memerr.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown artifact, got %v", err)
	}
}

func TestCreateVersionBumpsProject(t *testing.T) {
	m, entities := newTestManager(t)
	projectID := mustCreateProject(t, entities, "Demo")
	artifactID, _ := m.CreateArtifact(projectID, CreateArtifactInput{Name: "doc"})

	if _, err := m.CreateVersion(artifactID, VersionInput{Content: "v1"}); err != nil {
		t.Fatalf("CreateVersion failed: %v", err)
	}

	artifact, _ := m.GetArtifact(artifactID)
	project, _ := entities.GetProject(projectID)
	if project.UpdatedAt.Before(artifact.UpdatedAt) {
		t.Errorf("Expected project.UpdatedAt >= artifact.UpdatedAt, got %v < %v",
			project.UpdatedAt, artifact.UpdatedAt)
	}
	if len(project.ArtifactIDs) != 1 || project.ArtifactIDs[0] != artifactID {
		t.Errorf("Expected project to reference artifact %s, got %v", artifactID, project.ArtifactIDs)
	}
}
