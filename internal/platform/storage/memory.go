package storage

import "sync"

// MemoryMedium keeps payloads in process memory. Used by tests and the
// ephemeral storage driver.
type MemoryMedium struct {
	mu       sync.RWMutex
	payloads map[string][]byte
}

// NewMemoryMedium creates an empty in-memory medium.
func NewMemoryMedium() *MemoryMedium {
	return &MemoryMedium{payloads: make(map[string][]byte)}
}

func (m *MemoryMedium) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	payload, ok := m.payloads[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	return cp, true, nil
}

func (m *MemoryMedium) Put(key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	m.payloads[key] = cp
	return nil
}

func (m *MemoryMedium) Close() error { return nil }
