// Package storetest builds a migrated, temp-file-backed Store for use in
// other packages' tests.
package storetest

import (
	"path/filepath"
	"testing"

	"diskuto/internal/config"
	"diskuto/internal/store"
)

// Open creates a fresh, fully migrated Store backed by a temp file that is
// cleaned up automatically when the test ends.
func Open(t *testing.T) *store.Store {
	t.Helper()

	dir := t.TempDir()
	s, err := store.Open(config.DatabaseConfig{
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
