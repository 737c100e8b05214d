package store

import (
	"path/filepath"
	"testing"

	"diskuto/internal/config"
)

// openTestStore creates a fresh, fully migrated Store backed by a temp file
// that is cleaned up automatically when the test ends. It duplicates
// storetest.Open because that package imports store, and importing it back
// from store's own white-box tests would create an import cycle.
func openTestStore(t *testing.T) *Store {
	t.Helper()

	dir := t.TempDir()
	s, err := Open(config.DatabaseConfig{
		Path:        filepath.Join(dir, "test.sqlite3"),
		ReaderConns: 2,
	})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.MigrateUp(); err != nil {
		t.Fatalf("migrating store: %v", err)
	}
	return s
}
