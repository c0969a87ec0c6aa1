// Package jobs runs the background work of the memory core. The only job is
// the autosave: a fixed-interval snapshot of all in-memory collections.
package jobs

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"engram/internal/services"

	"github.com/robfig/cron/v3"
)

// AutoSaver drives the persistence engine on a timer and on shutdown.
//
// Overlap guard: if a snapshot is still in flight when the next tick fires,
// the tick is skipped rather than queued, bounding concurrent writers to one.
// Autosave failures are logged and surfaced as persistence_failed events by
// the engine; they never crash the scheduler.
type AutoSaver struct {
	engine   *services.PersistenceEngine
	interval time.Duration
	metrics  *services.Metrics

	cron     *cron.Cron
	inFlight atomic.Bool

	mu      sync.Mutex
	running bool
}

// NewAutoSaver creates an autosaver snapshotting every interval.
func NewAutoSaver(engine *services.PersistenceEngine, interval time.Duration, metrics *services.Metrics) *AutoSaver {
	return &AutoSaver{
		engine:   engine,
		interval: interval,
		metrics:  metrics,
	}
}

// Start begins the periodic snapshots. Calling Start on a running autosaver
// is a no-op.
func (a *AutoSaver) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return nil
	}

	c := cron.New()
	spec := fmt.Sprintf("@every %s", a.interval)
	if _, err := c.AddFunc(spec, a.tick); err != nil {
		return fmt.Errorf("failed to schedule autosave: %w", err)
	}
	c.Start()

	a.cron = c
	a.running = true
	log.Printf("[AUTOSAVE] Started (interval: %s, path: %s)", a.interval, a.engine.Path())
	return nil
}

// Stop cancels the timer, waits for any in-flight tick and performs one
// final snapshot so state accumulated since the last tick is not lost.
// The final snapshot's error is returned to the caller.
func (a *AutoSaver) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return nil
	}

	// cron.Stop returns a context that is done once running jobs finish.
	<-a.cron.Stop().Done()
	a.cron = nil
	a.running = false

	log.Printf("[AUTOSAVE] Stopped, writing final snapshot")
	return a.engine.Snapshot()
}

// tick runs one scheduled snapshot, skipping if one is already in flight.
func (a *AutoSaver) tick() {
	if !a.inFlight.CompareAndSwap(false, true) {
		log.Printf("[AUTOSAVE] Snapshot still in flight, skipping tick")
		if a.metrics != nil {
			a.metrics.SnapshotSkipped.Inc()
		}
		return
	}
	defer a.inFlight.Store(false)

	// Snapshot reports failures via the persistence_failed event; the error
	// is logged here and deliberately not propagated out of the timer.
	if err := a.engine.Snapshot(); err != nil {
		log.Printf("[AUTOSAVE] Scheduled snapshot failed: %v", err)
	}
}
