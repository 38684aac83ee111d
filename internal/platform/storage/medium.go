// Package storage provides the durable medium under the collection store:
// one opaque JSON payload per collection key. Backends: embedded SQLite
// (default), one-file-per-collection, and in-memory for tests.
package storage

// Medium persists one payload per collection key. Implementations must make
// Put atomic: after an error the previously stored payload is still intact.
type Medium interface {
	// Get returns the stored payload for key, or ok=false when absent.
	Get(key string) (payload []byte, ok bool, err error)
	// Put stores payload under key, replacing any previous payload.
	Put(key string, payload []byte) error
	// Close releases backend resources.
	Close() error
}
