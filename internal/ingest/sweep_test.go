package ingest

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"diskuto/internal/store/blob"
)

func TestSweepOnceRemovesStaleTmpFiles(t *testing.T) {
	root := t.TempDir()
	fs := blob.NewFilesystemStore(root)
	if err := os.MkdirAll(fs.TmpDir(), 0755); err != nil {
		t.Fatalf("creating tmp dir: %v", err)
	}

	stalePath := filepath.Join(fs.TmpDir(), "stale")
	if err := os.WriteFile(stalePath, []byte("orphan"), 0644); err != nil {
		t.Fatalf("writing stale file: %v", err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(stalePath, old, old); err != nil {
		t.Fatalf("backdating stale file: %v", err)
	}

	freshPath := filepath.Join(fs.TmpDir(), "fresh")
	if err := os.WriteFile(freshPath, []byte("in progress"), 0644); err != nil {
		t.Fatalf("writing fresh file: %v", err)
	}

	sweeper := NewSweeper(fs, 10*time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	removed, err := sweeper.SweepOnce()
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	if _, err := os.Stat(stalePath); !os.IsNotExist(err) {
		t.Error("stale file should have been removed")
	}
	if _, err := os.Stat(freshPath); err != nil {
		t.Error("fresh file should not have been removed")
	}
}

func TestSweepOnceToleratesMissingTmpDir(t *testing.T) {
	root := t.TempDir()
	fs := blob.NewFilesystemStore(root)

	sweeper := NewSweeper(fs, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	removed, err := sweeper.SweepOnce()
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if removed != 0 {
		t.Fatalf("removed = %d, want 0", removed)
	}
}
