package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"engram/internal/memerr"
	"engram/internal/models"
)

// snapshotSchemaVersion is bumped when the snapshot layout changes in a way
// older readers cannot tolerate. Decoding ignores unknown fields and treats
// missing collections as empty, so additive changes keep the same version.
const snapshotSchemaVersion = 1

// Snapshot is the durable on-disk layout: one file holding every collection
// as an id-keyed mapping, plus a catch-all global mapping preserved verbatim
// for payloads written by other producers of the same file.
type Snapshot struct {
	SchemaVersion int       `json:"schema_version"`
	SavedAt       time.Time `json:"saved_at"`

	Projects      map[string]*models.Project       `json:"projects"`
	Conversations map[string]*models.Conversation  `json:"conversations"`
	Tasks         map[string]*models.Task          `json:"tasks"`
	Artifacts     map[string]*models.Artifact      `json:"artifacts"`
	Knowledge     map[string]*models.KnowledgeItem `json:"knowledge"`
	Global        map[string]json.RawMessage       `json:"global"`
}

// GlobalContext is the free-form global mapping carried through snapshots.
type GlobalContext struct {
	mu     sync.RWMutex
	values map[string]json.RawMessage
}

// NewGlobalContext creates an empty global context.
func NewGlobalContext() *GlobalContext {
	return &GlobalContext{values: make(map[string]json.RawMessage)}
}

// Set stores one raw value under key.
func (g *GlobalContext) Set(key string, value json.RawMessage) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.values[key] = value
}

// Get returns the raw value for key.
func (g *GlobalContext) Get(key string) (json.RawMessage, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.values[key]
	return v, ok
}

// Export returns a copy of the mapping.
func (g *GlobalContext) Export() map[string]json.RawMessage {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(g.values))
	for k, v := range g.values {
		out[k] = v
	}
	return out
}

// Replace swaps in a loaded mapping.
func (g *GlobalContext) Replace(values map[string]json.RawMessage) {
	if values == nil {
		values = make(map[string]json.RawMessage)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.values = values
}

// PersistenceEngine serializes the full state of the entity store, artifact
// manager and knowledge cache to a single snapshot file and reads it back.
// A failed write never mutates in-memory state; the durable copy may lag but
// the live copy stays authoritative.
type PersistenceEngine struct {
	path string

	entities  *EntityStore
	artifacts *ArtifactManager
	knowledge *KnowledgeCache
	global    *GlobalContext

	bus     *EventBus
	metrics *Metrics

	mu              sync.Mutex // serializes Snapshot/Load
	lastPersistedAt time.Time
}

// NewPersistenceEngine creates a persistence engine writing to path.
func NewPersistenceEngine(path string, entities *EntityStore, artifacts *ArtifactManager, knowledge *KnowledgeCache, global *GlobalContext, bus *EventBus, metrics *Metrics) *PersistenceEngine {
	return &PersistenceEngine{
		path:      path,
		entities:  entities,
		artifacts: artifacts,
		knowledge: knowledge,
		global:    global,
		bus:       bus,
		metrics:   metrics,
	}
}

// Path returns the configured snapshot file path.
func (e *PersistenceEngine) Path() string {
	return e.path
}

// LastPersistedAt returns the time of the last successful snapshot, or the
// zero time if none has completed.
func (e *PersistenceEngine) LastPersistedAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastPersistedAt
}

// Snapshot captures a point-in-time copy of all collections and writes it
// atomically: marshal, write to a temporary file, then rename over the
// configured path so a crash mid-write never leaves a corrupt snapshot.
func (e *PersistenceEngine) Snapshot() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()

	projects, conversations, tasks := e.entities.Export()
	snap := Snapshot{
		SchemaVersion: snapshotSchemaVersion,
		SavedAt:       start,
		Projects:      projects,
		Conversations: conversations,
		Tasks:         tasks,
		Artifacts:     e.artifacts.Export(),
		Knowledge:     e.knowledge.Export(),
		Global:        e.global.Export(),
	}

	data, err := json.Marshal(&snap)
	if err != nil {
		return e.fail(start, "encode snapshot", err)
	}

	tmp := e.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return e.fail(start, "create snapshot directory", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return e.fail(start, "write snapshot", err)
	}
	if err := os.Rename(tmp, e.path); err != nil {
		os.Remove(tmp)
		return e.fail(start, "commit snapshot", err)
	}

	duration := time.Since(start)
	e.lastPersistedAt = start
	if e.metrics != nil {
		e.metrics.SnapshotDuration.Observe(duration.Seconds())
	}
	e.bus.Publish(models.Event{
		Type:        models.EventPersistenceCompleted,
		Persistence: &models.PersistencePayload{Path: e.path, Duration: duration},
	})
	log.Printf("[PERSISTENCE] Snapshot written to %s (%d bytes, %v)", e.path, len(data), duration)
	return nil
}

// Load reads the snapshot file and fully replaces every collection's
// in-memory contents. A missing file is not an error: all stores are left
// empty. Call before any other operation is allowed to run.
func (e *PersistenceEngine) Load() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, err := os.ReadFile(e.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("[PERSISTENCE] No snapshot at %s, starting empty", e.path)
			return nil
		}
		return memerr.PersistenceIO("read snapshot", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return memerr.PersistenceIO("decode snapshot", err)
	}
	if snap.SchemaVersion > snapshotSchemaVersion {
		return memerr.PersistenceIO("decode snapshot",
			fmt.Errorf("snapshot schema version %d is newer than supported %d", snap.SchemaVersion, snapshotSchemaVersion))
	}

	e.entities.Replace(snap.Projects, snap.Conversations, snap.Tasks)
	e.artifacts.Replace(snap.Artifacts)
	e.knowledge.Replace(snap.Knowledge)
	e.global.Replace(snap.Global)

	log.Printf("[PERSISTENCE] Loaded snapshot from %s (%d projects, %d conversations, %d tasks, %d artifacts, %d knowledge items)",
		e.path, len(snap.Projects), len(snap.Conversations), len(snap.Tasks), len(snap.Artifacts), len(snap.Knowledge))
	return nil
}

// fail records a snapshot failure, emits persistence_failed and returns the
// wrapped error. In-memory state is untouched.
func (e *PersistenceEngine) fail(start time.Time, op string, err error) error {
	if e.metrics != nil {
		e.metrics.SnapshotFailures.Inc()
	}
	wrapped := memerr.PersistenceIO(op, err)
	e.bus.Publish(models.Event{
		Type: models.EventPersistenceFailed,
		Persistence: &models.PersistencePayload{
			Path:     e.path,
			Error:    wrapped.Error(),
			Duration: time.Since(start),
		},
	})
	log.Printf("[PERSISTENCE] Snapshot failed: %v", wrapped)
	return wrapped
}
