package store

import (
	"encoding/json"
	"testing"
)

func TestMemoryBus_DeliversToMatchingCollection(t *testing.T) {
	bus := NewMemoryBus()

	var patients, queue []Change
	bus.Subscribe("patients", func(ch Change) { patients = append(patients, ch) })
	bus.Subscribe("queue", func(ch Change) { queue = append(queue, ch) })

	bus.Publish(Change{Origin: "o1", Collection: "patients", Snapshot: json.RawMessage(`[]`)})

	if len(patients) != 1 {
		t.Fatalf("patients subscriber got %d changes, want 1", len(patients))
	}
	if len(queue) != 0 {
		t.Errorf("queue subscriber must not see patients changes")
	}
	if patients[0].Origin != "o1" {
		t.Errorf("origin = %q", patients[0].Origin)
	}
}

func TestMemoryBus_Unsubscribe(t *testing.T) {
	bus := NewMemoryBus()

	calls := 0
	unsub := bus.Subscribe("patients", func(Change) { calls++ })

	bus.Publish(Change{Collection: "patients"})
	unsub()
	bus.Publish(Change{Collection: "patients"})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestMemoryBus_MultipleSubscribers(t *testing.T) {
	bus := NewMemoryBus()

	calls := 0
	bus.Subscribe("queue", func(Change) { calls++ })
	bus.Subscribe("queue", func(Change) { calls++ })

	bus.Publish(Change{Collection: "queue"})

	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}
