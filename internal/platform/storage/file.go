package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileMedium stores each collection as <dir>/<key>.json. Writes go through a
// temp file and rename so a crash mid-write never corrupts the previous
// payload.
type FileMedium struct {
	dir string
}

// NewFileMedium creates the directory if needed and returns a file-backed
// medium rooted at dir.
func NewFileMedium(dir string) (*FileMedium, error) {
	if dir == "" {
		return nil, errors.New("storage: directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileMedium{dir: dir}, nil
}

func (f *FileMedium) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

func (f *FileMedium) Get(key string) ([]byte, bool, error) {
	payload, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return payload, true, nil
}

func (f *FileMedium) Put(key string, payload []byte) error {
	tmp := f.path(key) + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmp, f.path(key)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit %s: %w", key, err)
	}
	return nil
}

func (f *FileMedium) Close() error { return nil }
