// Package ingest implements diskuto's two-phase upload protocol: an item
// PUT followed by zero or more attachment PUTs, plus the background sweep
// that reclaims abandoned staging blobs.
package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"diskuto/internal/authz"
	"diskuto/internal/config"
	"diskuto/internal/crypto"
	"diskuto/internal/item"
	"diskuto/internal/store"
	"diskuto/internal/store/blob"
)

// Result distinguishes a first-time write from an idempotent repeat, the
// 201-vs-202 distinction sync tools rely on.
type Result int

const (
	Created Result = iota
	AlreadyPresent
)

// Errors surfaced by PutAttachment beyond the ones item.Parse and
// authz.Decide already define.
var (
	ErrAttachmentNotDeclared = errors.New("attachment not declared by item")
	ErrSizeMismatch          = errors.New("uploaded size does not match declared size")
	ErrHashMismatch          = errors.New("uploaded bytes do not match declared hash")
)

// Service wires the item codec, storage engine, blob store, and admission
// policy together into the PUT/GET/HEAD operations.
type Service struct {
	Store  *store.Store
	Blobs  blob.Store
	Policy authz.Policy
	Config *config.Config
}

// PutItem validates and stores a single Item, running the admission check
// in the same transaction as the insert so it sees the committed state of
// any concurrent write to the same author's follow graph.
func (s *Service) PutItem(ctx context.Context, userID crypto.UserID, sig crypto.Signature, raw []byte) (Result, error) {
	if err := crypto.Verify(userID, sig, raw); err != nil {
		return 0, err
	}
	it, err := item.Parse(raw)
	if err != nil {
		return 0, err
	}
	if err := it.CheckTimestamp(time.Now(), time.Duration(s.Config.FutureSkewMinutes)*time.Minute); err != nil {
		return 0, err
	}
	if err := it.CheckSize(s.Config.ItemMaxBytes); err != nil {
		return 0, err
	}

	var result Result
	err = s.Store.WithWriteTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		// A re-PUT of an already-stored item must stay idempotent even at
		// quota: check for the existing row before running admission, so
		// its bytes aren't counted against the quota a second time.
		if _, err := store.GetItem(ctx, tx, userID, sig); err == nil {
			result = AlreadyPresent
			return nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("checking for existing item: %w", err)
		}

		totalBytes := int64(len(raw)) + it.DeclaredAttachmentBytes()
		decision, err := s.Policy.Decide(ctx, tx, userID, totalBytes)
		if err != nil {
			return fmt.Errorf("checking admission: %w", err)
		}
		switch decision {
		case authz.Forbidden:
			return authz.ErrForbidden
		case authz.QuotaExceeded:
			return authz.ErrQuotaExceeded
		}

		receivedMs := time.Now().UnixMilli()
		inserted, err := store.InsertItem(ctx, tx, it, userID, sig, receivedMs)
		if err != nil {
			return err
		}
		if !inserted {
			result = AlreadyPresent
			return nil
		}
		result = Created

		switch {
		case it.Profile != nil:
			isLatest, err := store.UpsertProfileIfLatest(ctx, tx, userID, sig, it.TimestampMsUTC, it.Profile.DisplayName)
			if err != nil {
				return err
			}
			if isLatest {
				if err := store.ReplaceFollows(ctx, tx, userID, it.Profile.Follows); err != nil {
					return err
				}
			}
		case it.Comment != nil:
			if err := store.IndexReply(ctx, tx, userID, sig, it.Comment.ReplyToUserID, it.Comment.ReplyToSignature); err != nil {
				return err
			}
		case it.Post != nil:
			for _, a := range it.Post.Attachments {
				if err := store.InsertFile(ctx, tx, userID, sig, a.Name, a.SizeBytes, a.Hash, ""); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return result, nil
}

// PutAttachment uploads the bytes for a previously declared attachment.
// contentLength must equal the declared size exactly. The uploaded bytes are
// hashed while streaming to the blob store; a hash mismatch discards the
// write and returns ErrHashMismatch. If a blob for this content hash already
// exists (because this or another item already completed it), the bytes are
// still hashed to validate them but are not re-written, since the same
// content may be attached under more than one item.
func (s *Service) PutAttachment(ctx context.Context, userID crypto.UserID, sig crypto.Signature, name string, contentLength int64, r io.Reader) (Result, error) {
	f, err := getFile(ctx, s.Store, userID, sig, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, ErrAttachmentNotDeclared
		}
		return 0, err
	}
	if contentLength != f.SizeBytes {
		return 0, ErrSizeMismatch
	}

	hasher := crypto.NewHasher()
	tee := io.TeeReader(r, hasher)

	alreadyStored, err := s.Blobs.Has(ctx, f.Hash)
	if err != nil {
		return 0, fmt.Errorf("checking existing blob: %w", err)
	}
	if alreadyStored {
		if _, err := io.Copy(io.Discard, tee); err != nil {
			return 0, fmt.Errorf("draining uploaded bytes: %w", err)
		}
	} else {
		if err := s.Blobs.Put(ctx, f.Hash, tee, contentLength); err != nil {
			return 0, fmt.Errorf("storing blob: %w", err)
		}
	}

	if hasher.Sum() != f.Hash {
		if !alreadyStored {
			s.Blobs.Delete(ctx, f.Hash)
		}
		return 0, ErrHashMismatch
	}

	if err := s.Store.WithWriteTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return store.CompleteFile(ctx, tx, userID, sig, name)
	}); err != nil {
		return 0, err
	}

	if alreadyStored || f.Completed {
		return AlreadyPresent, nil
	}
	return Created, nil
}

// HeadAttachment reports whether the attachment's content is available,
// true either because this item's own upload completed or because some
// other item's attachment with the same bytes already published the blob.
func (s *Service) HeadAttachment(ctx context.Context, userID crypto.UserID, sig crypto.Signature, name string) (present bool, sizeBytes int64, err error) {
	f, err := getFile(ctx, s.Store, userID, sig, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, 0, nil
		}
		return false, 0, err
	}
	present, err = s.Blobs.Has(ctx, f.Hash)
	if err != nil {
		return false, 0, err
	}
	return present, f.SizeBytes, nil
}

// GetAttachment opens the attachment's content for reading.
func (s *Service) GetAttachment(ctx context.Context, userID crypto.UserID, sig crypto.Signature, name string) (io.ReadCloser, int64, error) {
	f, err := getFile(ctx, s.Store, userID, sig, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, 0, blob.ErrNotFound
		}
		return nil, 0, err
	}
	rc, err := s.Blobs.Get(ctx, f.Hash)
	if err != nil {
		return nil, 0, err
	}
	return rc, f.SizeBytes, nil
}

// getFile dispatches the file lookup off the calling goroutine through the
// store's reader pool.
func getFile(ctx context.Context, s *store.Store, userID crypto.UserID, sig crypto.Signature, name string) (*store.StoredFile, error) {
	return store.Reader(ctx, s, func(ctx context.Context, q store.Queryer) (*store.StoredFile, error) {
		return store.GetFile(ctx, q, userID, sig, name)
	})
}
