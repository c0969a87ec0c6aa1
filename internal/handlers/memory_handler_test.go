package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"engram/internal/services"

	"github.com/gofiber/fiber/v2"
)

func setupTestApp(t *testing.T) (*fiber.App, *services.MemoryService) {
	t.Helper()

	memory := services.NewMemoryService(filepath.Join(t.TempDir(), "snapshot.json"), nil)
	app := fiber.New()
	NewMemoryHandler(memory).RegisterRoutes(app)
	return app, memory
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body failed: %v", err)
	}

	var decoded map[string]interface{}
	if len(raw) > 0 {
		// List endpoints return arrays; those tests decode themselves
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp.StatusCode, decoded
}

func TestCreateAndGetProject(t *testing.T) {
	app, _ := setupTestApp(t)

	status, body := doJSON(t, app, "POST", "/api/memory/projects", map[string]interface{}{"name": "Demo"})
	if status != 201 {
		t.Fatalf("Expected 201, got %d (%v)", status, body)
	}
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatal("Expected created id in response")
	}

	status, body = doJSON(t, app, "GET", "/api/memory/projects/"+id, nil)
	if status != 200 {
		t.Fatalf("Expected 200, got %d", status)
	}
	if body["name"] != "Demo" {
		t.Errorf("Expected project name Demo, got %v", body["name"])
	}
}

func TestErrorMapping(t *testing.T) {
	app, _ := setupTestApp(t)

	// Seed one project with a fixed id
	status, _ := doJSON(t, app, "POST", "/api/memory/projects", map[string]interface{}{"id": "p1", "name": "Demo"})
	if status != 201 {
		t.Fatalf("Seed project failed with %d", status)
	}

	tests := []struct {
		name       string
		method     string
		path       string
		body       interface{}
		wantStatus int
	}{
		{"not found", "GET", "/api/memory/projects/missing", nil, 404},
		{"conflict", "POST", "/api/memory/projects", map[string]interface{}{"id": "p1", "name": "Again"}, 409},
		{"validation", "POST", "/api/memory/projects", map[string]interface{}{}, 400},
		{"child of unknown project", "POST", "/api/memory/projects/missing/conversations", map[string]interface{}{}, 404},
		{"unknown task status", "POST", "/api/memory/projects/p1/tasks", map[string]interface{}{"name": "t", "status": "paused"}, 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doJSON(t, app, tt.method, tt.path, tt.body)
			if status != tt.wantStatus {
				t.Errorf("Expected %d, got %d (%v)", tt.wantStatus, status, body)
			}
			if body["error"] == "" {
				t.Error("Expected error message in body")
			}
		})
	}
}

func TestArtifactEndpoints(t *testing.T) {
	app, _ := setupTestApp(t)

	_, body := doJSON(t, app, "POST", "/api/memory/projects", map[string]interface{}{"name": "Demo"})
	projectID := body["id"].(string)

	status, body := doJSON(t, app, "POST", "/api/memory/projects/"+projectID+"/artifacts",
		map[string]interface{}{"name": "doc", "content": "v1"})
	if status != 201 {
		t.Fatalf("CreateArtifact returned %d (%v)", status, body)
	}
	artifactID := body["id"].(string)

	status, body = doJSON(t, app, "POST", "/api/memory/artifacts/"+artifactID+"/versions",
		map[string]interface{}{"content": "v2"})
	if status != 201 {
		t.Fatalf("CreateVersion returned %d (%v)", status, body)
	}

	status, body = doJSON(t, app, "GET", "/api/memory/artifacts/"+artifactID+"/current", nil)
	if status != 200 {
		t.Fatalf("GetCurrentVersion returned %d", status)
	}
	if body["content"] != "v2" || body["version_number"] != float64(2) {
		t.Errorf("Expected current version 2 with content v2, got %v", body)
	}
}

func TestKnowledgeEndpoints(t *testing.T) {
	app, _ := setupTestApp(t)

	status, _ := doJSON(t, app, "PUT", "/api/memory/knowledge/fact", map[string]interface{}{"value": "water is wet"})
	if status != 200 {
		t.Fatalf("StoreKnowledge returned %d", status)
	}

	status, body := doJSON(t, app, "GET", "/api/memory/knowledge/fact", nil)
	if status != 200 {
		t.Fatalf("RetrieveKnowledge returned %d", status)
	}
	if body["value"] != "water is wet" {
		t.Errorf("Expected stored value, got %v", body["value"])
	}

	status, _ = doJSON(t, app, "GET", "/api/memory/knowledge/missing", nil)
	if status != 404 {
		t.Errorf("Expected 404 for absent key, got %d", status)
	}
}

func TestStatsAndSnapshotEndpoints(t *testing.T) {
	app, memory := setupTestApp(t)

	doJSON(t, app, "POST", "/api/memory/projects", map[string]interface{}{"name": "Demo"})

	status, body := doJSON(t, app, "GET", "/api/memory/stats", nil)
	if status != 200 {
		t.Fatalf("GetStats returned %d", status)
	}
	if body["projects"] != float64(1) {
		t.Errorf("Expected 1 project in stats, got %v", body["projects"])
	}

	status, body = doJSON(t, app, "POST", "/api/memory/snapshot", nil)
	if status != 200 {
		t.Fatalf("Snapshot returned %d (%v)", status, body)
	}
	if memory.Engine().LastPersistedAt().IsZero() {
		t.Error("Expected snapshot to have persisted")
	}
}

func TestGlobalContextEndpoints(t *testing.T) {
	app, _ := setupTestApp(t)

	req := httptest.NewRequest("PUT", "/api/memory/global/shell", bytes.NewReader([]byte(`{"window":"main"}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("SetGlobalContext returned %d", resp.StatusCode)
	}

	status, body := doJSON(t, app, "GET", "/api/memory/global/shell", nil)
	if status != 200 {
		t.Fatalf("GetGlobalContext returned %d", status)
	}
	if body["window"] != "main" {
		t.Errorf("Expected raw payload to round-trip, got %v", body)
	}
}
