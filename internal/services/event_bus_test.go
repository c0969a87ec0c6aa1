package services

import (
	"testing"

	"engram/internal/models"
)

func TestPublishFansOutToAllListeners(t *testing.T) {
	bus := NewEventBus()

	var first, second []models.EventType
	bus.Subscribe("first", func(e models.Event) { first = append(first, e.Type) })
	bus.Subscribe("second", func(e models.Event) { second = append(second, e.Type) })

	bus.publishEntity(models.EventProjectCreated, "project", "p1", "p1")
	bus.publishEntity(models.EventProjectUpdated, "project", "p1", "p1")

	for name, got := range map[string][]models.EventType{"first": first, "second": second} {
		if len(got) != 2 {
			t.Fatalf("Listener %s: expected 2 events, got %d", name, len(got))
		}
		if got[0] != models.EventProjectCreated || got[1] != models.EventProjectUpdated {
			t.Errorf("Listener %s: expected emission order preserved, got %v", name, got)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewEventBus()

	count := 0
	bus.Subscribe("sub", func(e models.Event) { count++ })
	bus.publishEntity(models.EventTaskCreated, "task", "t1", "p1")

	bus.Unsubscribe("sub")
	bus.publishEntity(models.EventTaskUpdated, "task", "t1", "p1")

	if count != 1 {
		t.Errorf("Expected 1 delivery after unsubscribe, got %d", count)
	}
	if bus.SubscriberCount() != 0 {
		t.Errorf("Expected 0 subscribers, got %d", bus.SubscriberCount())
	}
}

func TestMutationsEmitEvents(t *testing.T) {
	bus := NewEventBus()
	entities := NewEntityStore(bus, nil)
	artifacts := NewArtifactManager(entities, bus, nil)

	var events []models.Event
	bus.Subscribe("recorder", func(e models.Event) { events = append(events, e) })

	projectID, err := entities.CreateProject(CreateProjectInput{Name: "Demo"})
	if err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	artifactID, err := artifacts.CreateArtifact(projectID, CreateArtifactInput{Name: "doc"})
	if err != nil {
		t.Fatalf("CreateArtifact failed: %v", err)
	}
	if _, err := artifacts.CreateVersion(artifactID, VersionInput{Content: "v1"}); err != nil {
		t.Fatalf("CreateVersion failed: %v", err)
	}

	want := []models.EventType{
		models.EventProjectCreated,
		models.EventArtifactCreated,
		models.EventArtifactVersionCreated,
	}
	if len(events) != len(want) {
		t.Fatalf("Expected %d events, got %d", len(want), len(events))
	}
	for i, e := range events {
		if e.Type != want[i] {
			t.Errorf("Event %d: expected %s, got %s", i, want[i], e.Type)
		}
		if e.Entity == nil {
			t.Errorf("Event %d: expected entity payload", i)
		} else if e.Entity.ProjectID != projectID {
			t.Errorf("Event %d: expected project id %s, got %s", i, projectID, e.Entity.ProjectID)
		}
		if e.Timestamp.IsZero() {
			t.Errorf("Event %d: expected timestamp", i)
		}
	}
}
