package storage

import "fmt"

// NewStorage opens the SQLite store kept under dataDir
func NewStorage(dataDir string) (Storage, error) {
	store, err := NewSQLiteStorage(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage in %s: %w", dataDir, err)
	}
	return store, nil
}
