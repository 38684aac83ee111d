package storage

import (
	"fmt"
	"path/filepath"
)

// Driver identifies a concrete medium implementation.
type Driver string

const (
	DriverSQLite Driver = "sqlite" // embedded sqlite file (default)
	DriverFile   Driver = "file"   // one json file per collection
	DriverMemory Driver = "memory" // in-memory only (tests / ephemeral)
)

// Open selects a medium for the given driver. dataDir holds the sqlite file
// or the per-collection json files; sqlitePath overrides the sqlite location
// when non-empty.
func Open(driver Driver, dataDir, sqlitePath string) (Medium, error) {
	switch driver {
	case DriverMemory:
		return NewMemoryMedium(), nil
	case DriverFile:
		return NewFileMedium(dataDir)
	case DriverSQLite, "":
		path := sqlitePath
		if path == "" {
			path = filepath.Join(dataDir, "clinicdesk.db")
		}
		return NewSQLiteMedium(path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
