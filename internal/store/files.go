package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"diskuto/internal/crypto"
)

// StoredFile is a file (attachment) row.
type StoredFile struct {
	UserID       crypto.UserID
	Signature    crypto.Signature
	Name         string
	SizeBytes    int64
	Hash         crypto.Multihash
	BlobLocation string
	Completed    bool
}

// KnownUser is a row in the authorization allow-list.
type KnownUser struct {
	UserID     crypto.UserID
	OnHomepage bool
	QuotaBytes *int64
	Notes      string
}

// InsertFile records a pending (not yet completed) attachment row. Like
// InsertItem, it is idempotent: re-declaring the same (user, sig, name) is
// not an error.
func InsertFile(ctx context.Context, q Queryer, userID crypto.UserID, sig crypto.Signature, name string, sizeBytes int64, hash crypto.Multihash, blobLocation string) error {
	_, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO file (user_id, signature, name, size_bytes, hash, blob_location, completed)
		VALUES (?, ?, ?, ?, ?, ?, 0)`,
		userID.Bytes(), sig.Bytes(), name, sizeBytes, hash.Bytes(), blobLocation)
	if err != nil {
		return fmt.Errorf("inserting file: %w", err)
	}
	return nil
}

// CompleteFile flips a file row's completed flag once its blob has been
// written and verified.
func CompleteFile(ctx context.Context, q Queryer, userID crypto.UserID, sig crypto.Signature, name string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE file SET completed = 1 WHERE user_id = ? AND signature = ? AND name = ?`,
		userID.Bytes(), sig.Bytes(), name)
	if err != nil {
		return fmt.Errorf("completing file: %w", err)
	}
	return nil
}

// GetFile fetches a single file row by its composite key.
func GetFile(ctx context.Context, q Queryer, userID crypto.UserID, sig crypto.Signature, name string) (*StoredFile, error) {
	row := q.QueryRowContext(ctx, `
		SELECT user_id, signature, name, size_bytes, hash, blob_location, completed
		FROM file WHERE user_id = ? AND signature = ? AND name = ?`, userID.Bytes(), sig.Bytes(), name)

	var userIDBytes, sigBytes, hashBytes []byte
	var completed int
	var sf StoredFile
	if err := row.Scan(&userIDBytes, &sigBytes, &sf.Name, &sf.SizeBytes, &hashBytes, &sf.BlobLocation, &completed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning file row: %w", err)
	}
	copy(sf.UserID[:], userIDBytes)
	copy(sf.Signature[:], sigBytes)
	hash, err := crypto.NewMultihash(hashBytes)
	if err != nil {
		return nil, fmt.Errorf("decoding stored file hash: %w", err)
	}
	sf.Hash = hash
	sf.Completed = completed != 0
	return &sf, nil
}

// FileRefCount reports how many completed file rows reference hash, the
// signal DeleteItem uses to decide whether a blob it just orphaned can be
// reclaimed: the same content may be attached under more than one item, so
// a blob is only safe to delete once no row references it anymore.
func FileRefCount(ctx context.Context, q Queryer, hash crypto.Multihash) (int64, error) {
	var count int64
	row := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM file WHERE hash = ? AND completed = 1`, hash.Bytes())
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("counting file references: %w", err)
	}
	return count, nil
}

// KnownUserByID looks up an entry in the administrator-maintained allow-list.
func KnownUserByID(ctx context.Context, q Queryer, userID crypto.UserID) (*KnownUser, error) {
	row := q.QueryRowContext(ctx, `SELECT user_id, on_homepage, quota_bytes, notes FROM known_user WHERE user_id = ?`, userID.Bytes())
	var userIDBytes []byte
	var onHomepage int
	var quota sql.NullInt64
	var ku KnownUser
	if err := row.Scan(&userIDBytes, &onHomepage, &quota, &ku.Notes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning known_user row: %w", err)
	}
	copy(ku.UserID[:], userIDBytes)
	ku.OnHomepage = onHomepage != 0
	if quota.Valid {
		ku.QuotaBytes = &quota.Int64
	}
	return &ku, nil
}

// FollowedByKnownUser reports whether any known user's latest Profile lists
// userID as a follow, the transitive admission rule.
func FollowedByKnownUser(ctx context.Context, q Queryer, userID crypto.UserID) (bool, error) {
	var exists int
	row := q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM follow
			INNER JOIN known_user ON known_user.user_id = follow.source_user_id
			WHERE follow.followed_user_id = ?
		)`, userID.Bytes())
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("checking transitive admission: %w", err)
	}
	return exists != 0, nil
}

// AddKnownUser inserts or replaces an allow-list entry.
func AddKnownUser(ctx context.Context, q Queryer, ku KnownUser) error {
	var quota any
	if ku.QuotaBytes != nil {
		quota = *ku.QuotaBytes
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO known_user (user_id, on_homepage, quota_bytes, notes) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET on_homepage = excluded.on_homepage,
			quota_bytes = excluded.quota_bytes, notes = excluded.notes`,
		ku.UserID.Bytes(), boolToInt(ku.OnHomepage), quota, ku.Notes)
	if err != nil {
		return fmt.Errorf("adding known user: %w", err)
	}
	return nil
}

// RemoveKnownUser deletes an allow-list entry. Existing items remain; this
// only affects future admission decisions.
func RemoveKnownUser(ctx context.Context, q Queryer, userID crypto.UserID) error {
	_, err := q.ExecContext(ctx, `DELETE FROM known_user WHERE user_id = ?`, userID.Bytes())
	if err != nil {
		return fmt.Errorf("removing known user: %w", err)
	}
	return nil
}

// ListKnownUsers returns every allow-list entry, ordered by user id.
func ListKnownUsers(ctx context.Context, q Queryer) ([]KnownUser, error) {
	rows, err := q.QueryContext(ctx, `SELECT user_id, on_homepage, quota_bytes, notes FROM known_user ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("listing known users: %w", err)
	}
	defer rows.Close()

	var out []KnownUser
	for rows.Next() {
		var userIDBytes []byte
		var onHomepage int
		var quota sql.NullInt64
		var ku KnownUser
		if err := rows.Scan(&userIDBytes, &onHomepage, &quota, &ku.Notes); err != nil {
			return nil, fmt.Errorf("scanning known_user row: %w", err)
		}
		copy(ku.UserID[:], userIDBytes)
		ku.OnHomepage = onHomepage != 0
		if quota.Valid {
			ku.QuotaBytes = &quota.Int64
		}
		out = append(out, ku)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
