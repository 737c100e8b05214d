package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"diskuto/internal/store/blob"
)

// Sweeper periodically reclaims staging blobs left behind by uploads that
// were abandoned before the filesystem store's own tmp-then-rename could
// clean them up (a crash between the staging write and the rename; a failed
// write removes its own staging file). Publishing is atomic, so anything still
// sitting in tmp/ past the grace window has no referencing file row by
// construction and is always safe to delete. S3Store has no tmp/ staging
// area to sweep; this only applies to the filesystem backend.
type Sweeper struct {
	store *blob.FilesystemStore
	grace time.Duration
	log   *slog.Logger
}

// NewSweeper builds a Sweeper over store's staging directory. Entries older
// than grace are deleted on each SweepOnce.
func NewSweeper(store *blob.FilesystemStore, grace time.Duration, log *slog.Logger) *Sweeper {
	return &Sweeper{store: store, grace: grace, log: log}
}

// SweepOnce deletes every tmp/ entry older than the grace window and
// returns how many it removed.
func (s *Sweeper) SweepOnce() (int, error) {
	cutoff := time.Now().Add(-s.grace)
	entries, err := os.ReadDir(s.store.TmpDir())
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.store.TmpDir(), e.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			continue
		}
		removed++
	}
	return removed, nil
}

// Run sweeps on a ticker until ctx is cancelled, logging each pass, in the
// "background maintenance goroutine" idiom a long-running server uses for
// its own housekeeping.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.SweepOnce()
			if err != nil {
				s.log.Error("sweeping staged blobs", "error", err)
				continue
			}
			if removed > 0 {
				s.log.Info("swept orphaned staged blobs", "count", removed)
			}
		}
	}
}
