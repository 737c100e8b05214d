package ingest

import (
	"context"
	"database/sql"
	"fmt"

	"diskuto/internal/crypto"
	"diskuto/internal/store"
)

// DeleteItem removes a single item as a local administrative decision.
// Ownership is logical, per the author's keypair; a server is only a cache
// of items it has received, and is free to stop serving any of them.
// Any attachments the item declared are deleted with it, and their blobs
// are reclaimed once store.FileRefCount confirms no other item's file row
// still references the same content hash.
func (s *Service) DeleteItem(ctx context.Context, userID crypto.UserID, sig crypto.Signature) error {
	var hashes []crypto.Multihash
	err := s.Store.WithWriteTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		hashes, err = store.DeleteItem(ctx, tx, userID, sig)
		return err
	})
	if err != nil {
		return err
	}

	for _, hash := range hashes {
		refs, err := store.Reader(ctx, s.Store, func(ctx context.Context, q store.Queryer) (int64, error) {
			return store.FileRefCount(ctx, q, hash)
		})
		if err != nil {
			return fmt.Errorf("checking blob refcount: %w", err)
		}
		if refs > 0 {
			continue
		}
		if err := s.Blobs.Delete(ctx, hash); err != nil {
			return fmt.Errorf("reclaiming orphaned blob: %w", err)
		}
	}
	return nil
}
