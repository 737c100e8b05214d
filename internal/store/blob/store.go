// Package blob implements diskuto's content-addressable attachment
// side-store: a filesystem-backed implementation and an S3-backed one,
// selected by the operator's configured BlobStoreConfig.
package blob

import (
	"context"
	"errors"
	"io"

	"diskuto/internal/crypto"
)

// ErrNotFound is returned when no blob exists for the requested hash.
var ErrNotFound = errors.New("blob not found")

// Store is the content-addressable side-store for attachment bytes. Writers
// stage to a temporary location and atomically publish, so readers never
// observe a torn write; identical bytes across items always resolve to one
// blob.
type Store interface {
	// Put stores size bytes read from r, keyed by hash. It must verify
	// that exactly size bytes were read. Put does not check the hash;
	// callers hash the bytes as they stream into Put and Delete the blob
	// on a mismatch.
	Put(ctx context.Context, hash crypto.Multihash, r io.Reader, size int64) error
	// Get opens the blob for hash. Returns ErrNotFound if absent.
	Get(ctx context.Context, hash crypto.Multihash) (io.ReadCloser, error)
	// Has reports whether a blob exists for hash, the basis of the HEAD
	// cross-item dedup contract.
	Has(ctx context.Context, hash crypto.Multihash) (bool, error)
	// Delete removes the blob for hash. Called when deleting an item leaves
	// no completed file row referencing hash, and when uploaded bytes do
	// not match their declared hash.
	Delete(ctx context.Context, hash crypto.Multihash) error
}
