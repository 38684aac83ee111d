package store

import (
	"encoding/json"
	"sync"
)

// Change is a full-snapshot notification for one collection key. Origin
// identifies the publishing collection instance so receivers can ignore
// their own messages.
type Change struct {
	Origin     string          `json:"origin"`
	Collection string          `json:"collection"`
	Snapshot   json.RawMessage `json:"snapshot"`
}

// ChangeBus propagates collection snapshots between application instances.
// The store depends only on this interface; transports range from the
// in-process MemoryBus to the websocket hub.
type ChangeBus interface {
	Publish(change Change)
	Subscribe(collection string, fn func(Change)) (unsubscribe func())
}

// MemoryBus is the single-process ChangeBus: subscribers are invoked
// synchronously in the publisher's goroutine.
type MemoryBus struct {
	mu   sync.RWMutex
	seq  int
	subs map[string]map[int]func(Change)
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[int]func(Change))}
}

func (b *MemoryBus) Publish(change Change) {
	b.mu.RLock()
	fns := make([]func(Change), 0, len(b.subs[change.Collection]))
	for _, fn := range b.subs[change.Collection] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(change)
	}
}

func (b *MemoryBus) Subscribe(collection string, fn func(Change)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[collection] == nil {
		b.subs[collection] = make(map[int]func(Change))
	}
	id := b.seq
	b.seq++
	b.subs[collection][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[collection], id)
		if len(b.subs[collection]) == 0 {
			delete(b.subs, collection)
		}
	}
}
