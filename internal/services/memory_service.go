package services

import (
	"encoding/json"
	"log"
	"time"
)

// MemoryStats reports per-collection counts and the last persisted time.
type MemoryStats struct {
	Projects      int `json:"projects"`
	Conversations int `json:"conversations"`
	Tasks         int `json:"tasks"`
	Artifacts     int `json:"artifacts"`
	Knowledge     int `json:"knowledge"`

	LastPersistedAt *time.Time `json:"last_persisted_at,omitempty"`
	SnapshotPath    string     `json:"snapshot_path"`
}

// MemoryService is the explicitly constructed root object owning the five
// collections, the event bus and the persistence engine. There is no
// singleton: independent instances coexist, which tests rely on.
type MemoryService struct {
	Entities  *EntityStore
	Artifacts *ArtifactManager
	Knowledge *KnowledgeCache
	Global    *GlobalContext
	Bus       *EventBus

	engine  *PersistenceEngine
	metrics *Metrics
}

// NewMemoryService wires the memory core around a snapshot path.
func NewMemoryService(snapshotPath string, metrics *Metrics) *MemoryService {
	bus := NewEventBus()
	entities := NewEntityStore(bus, metrics)
	artifacts := NewArtifactManager(entities, bus, metrics)
	knowledge := NewKnowledgeCache(bus, metrics)
	global := NewGlobalContext()
	engine := NewPersistenceEngine(snapshotPath, entities, artifacts, knowledge, global, bus, metrics)

	return &MemoryService{
		Entities:  entities,
		Artifacts: artifacts,
		Knowledge: knowledge,
		Global:    global,
		Bus:       bus,
		engine:    engine,
		metrics:   metrics,
	}
}

// Engine exposes the persistence engine for the autosave job.
func (s *MemoryService) Engine() *PersistenceEngine {
	return s.engine
}

// Load reads the snapshot into the stores. Must run before any other
// operation is served; a missing snapshot leaves all stores empty.
func (s *MemoryService) Load() error {
	return s.engine.Load()
}

// Snapshot writes a durable snapshot now. The error goes directly to the
// caller (unlike scheduled autosaves, which convert it into an event).
func (s *MemoryService) Snapshot() error {
	return s.engine.Snapshot()
}

// SetGlobalContext stores one raw value in the snapshot's global mapping.
func (s *MemoryService) SetGlobalContext(key string, value json.RawMessage) {
	s.Global.Set(key, value)
}

// GetGlobalContext returns one raw value from the global mapping.
func (s *MemoryService) GetGlobalContext(key string) (json.RawMessage, bool) {
	return s.Global.Get(key)
}

// GetMemoryStats returns per-collection counts plus the last-persisted time.
func (s *MemoryService) GetMemoryStats() MemoryStats {
	projects, conversations, tasks := s.Entities.Counts()
	stats := MemoryStats{
		Projects:      projects,
		Conversations: conversations,
		Tasks:         tasks,
		Artifacts:     s.Artifacts.Count(),
		Knowledge:     s.Knowledge.Count(),
		SnapshotPath:  s.engine.Path(),
	}
	if at := s.engine.LastPersistedAt(); !at.IsZero() {
		stats.LastPersistedAt = &at
	}

	if s.metrics != nil {
		s.metrics.Entities.WithLabelValues("projects").Set(float64(stats.Projects))
		s.metrics.Entities.WithLabelValues("conversations").Set(float64(stats.Conversations))
		s.metrics.Entities.WithLabelValues("tasks").Set(float64(stats.Tasks))
		s.metrics.Entities.WithLabelValues("artifacts").Set(float64(stats.Artifacts))
		s.metrics.Entities.WithLabelValues("knowledge").Set(float64(stats.Knowledge))
	}
	return stats
}

// Shutdown writes a final snapshot. The autosave job is stopped by its own
// Stop; this covers explicit shutdowns where no autosaver was started.
func (s *MemoryService) Shutdown() error {
	log.Printf("[MEMORY] Shutting down, writing final snapshot")
	return s.engine.Snapshot()
}
