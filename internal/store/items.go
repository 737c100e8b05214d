package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"diskuto/internal/crypto"
	"diskuto/internal/feed"
	"diskuto/internal/item"
)

// ErrNotFound is returned by single-row lookups that find nothing.
var ErrNotFound = errors.New("not found")

// StoredItem is a persisted item row: identity, the exact bytes received,
// and the timestamps used for ordering.
type StoredItem struct {
	UserID         crypto.UserID
	Signature      crypto.Signature
	RawBytes       []byte
	TimestampMsUTC int64
	ReceivedUTCMs  int64
	KindUnknown    bool
}

// ItemRef is the lightweight envelope returned by list queries: enough to
// identify an item and fetch its body separately, keeping feed payloads
// bounded.
type ItemRef struct {
	UserID         crypto.UserID
	Signature      crypto.Signature
	TimestampMsUTC int64
}

// InsertItem inserts a new item row. It reports inserted=false rather than
// an error when the (user_id, signature) primary key already exists,
// matching the Inserted | AlreadyExists contract: re-uploading identical
// bytes is not an error.
func InsertItem(ctx context.Context, q Queryer, it *item.Item, userID crypto.UserID, sig crypto.Signature, receivedUTCMs int64) (inserted bool, err error) {
	kindUnknown := 0
	if it.KindUnknown() {
		kindUnknown = 1
	}
	res, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO item (user_id, signature, raw, timestamp_ms_utc, received_utc_ms, kind_unknown)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID.Bytes(), sig.Bytes(), it.RawBytes, it.TimestampMsUTC, receivedUTCMs, kindUnknown)
	if err != nil {
		return false, fmt.Errorf("inserting item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking insert result: %w", err)
	}
	return affected > 0, nil
}

// DeleteItem removes a single item row. Deletion is a local administrative
// decision, not something the protocol otherwise exposes: the item stays
// gone from this server only. Any file rows the item declared are deleted
// along with it, and their hashes are returned so the caller can check
// FileRefCount and reclaim the underlying blob once no row references it
// anymore.
func DeleteItem(ctx context.Context, q Queryer, userID crypto.UserID, sig crypto.Signature) ([]crypto.Multihash, error) {
	rows, err := q.QueryContext(ctx, `SELECT hash FROM file WHERE user_id = ? AND signature = ?`, userID.Bytes(), sig.Bytes())
	if err != nil {
		return nil, fmt.Errorf("listing item's files: %w", err)
	}
	var hashes []crypto.Multihash
	for rows.Next() {
		var hashBytes []byte
		if err := rows.Scan(&hashBytes); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning file hash: %w", err)
		}
		hash, err := crypto.NewMultihash(hashBytes)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("decoding file hash: %w", err)
		}
		hashes = append(hashes, hash)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("listing item's files: %w", err)
	}
	rows.Close()

	if _, err := q.ExecContext(ctx, `DELETE FROM file WHERE user_id = ? AND signature = ?`, userID.Bytes(), sig.Bytes()); err != nil {
		return nil, fmt.Errorf("deleting item's files: %w", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM item WHERE user_id = ? AND signature = ?`, userID.Bytes(), sig.Bytes()); err != nil {
		return nil, fmt.Errorf("deleting item: %w", err)
	}
	return hashes, nil
}

// GetItem fetches a single item by its primary key.
func GetItem(ctx context.Context, q Queryer, userID crypto.UserID, sig crypto.Signature) (*StoredItem, error) {
	row := q.QueryRowContext(ctx, `
		SELECT user_id, signature, raw, timestamp_ms_utc, received_utc_ms, kind_unknown
		FROM item WHERE user_id = ? AND signature = ?`, userID.Bytes(), sig.Bytes())
	return scanStoredItem(row)
}

func scanStoredItem(row *sql.Row) (*StoredItem, error) {
	var (
		userIDBytes, sigBytes []byte
		raw                   []byte
		kindUnknown            int
		si                     StoredItem
	)
	if err := row.Scan(&userIDBytes, &sigBytes, &raw, &si.TimestampMsUTC, &si.ReceivedUTCMs, &kindUnknown); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning item row: %w", err)
	}
	copy(si.UserID[:], userIDBytes)
	copy(si.Signature[:], sigBytes)
	si.RawBytes = raw
	si.KindUnknown = kindUnknown != 0
	return &si, nil
}

func windowClause(r feed.Resolved, args []any) (string, []any) {
	clause := ""
	if r.Before != nil {
		clause += " AND timestamp_ms_utc < ?"
		args = append(args, *r.Before)
	}
	if r.After != nil {
		clause += " AND timestamp_ms_utc > ?"
		args = append(args, *r.After)
	}
	return clause, args
}

func orderClause(r feed.Resolved) string {
	if r.Order == feed.Asc {
		return " ORDER BY timestamp_ms_utc ASC, signature ASC"
	}
	return " ORDER BY timestamp_ms_utc DESC, signature DESC"
}

func queryItemRefs(ctx context.Context, q Queryer, query string, args []any) ([]ItemRef, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	var refs []ItemRef
	for rows.Next() {
		var userIDBytes, sigBytes []byte
		var ref ItemRef
		if err := rows.Scan(&userIDBytes, &sigBytes, &ref.TimestampMsUTC); err != nil {
			return nil, fmt.Errorf("scanning item ref: %w", err)
		}
		copy(ref.UserID[:], userIDBytes)
		copy(ref.Signature[:], sigBytes)
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// ListUserItems lists a single user's own items.
func ListUserItems(ctx context.Context, q Queryer, userID crypto.UserID, window feed.Resolved, limit int) ([]ItemRef, error) {
	clause, args := windowClause(window, []any{userID.Bytes()})
	query := "SELECT user_id, signature, timestamp_ms_utc FROM item WHERE user_id = ? AND kind_unknown = 0" + clause + orderClause(window) + " LIMIT ?"
	args = append(args, limit)
	return queryItemRefs(ctx, q, query, args)
}

// ListHomepage lists items authored by any known_user flagged on_homepage.
// Unknown-kind items are stored and servable by direct GET but never
// surfaced into a feed, so kind_unknown = 0 is always part of the filter.
func ListHomepage(ctx context.Context, q Queryer, window feed.Resolved, limit int) ([]ItemRef, error) {
	clause, args := windowClause(window, nil)
	query := `SELECT i.user_id, i.signature, i.timestamp_ms_utc FROM item AS i
		WHERE i.user_id IN (SELECT user_id FROM known_user WHERE on_homepage = 1) AND i.kind_unknown = 0` + clause + orderClause(window) + " LIMIT ?"
	args = append(args, limit)
	return queryItemRefs(ctx, q, query, args)
}

// ListFeed lists items authored by userID or by anyone userID follows.
// Unknown-kind items are excluded for the same reason as ListHomepage.
func ListFeed(ctx context.Context, q Queryer, userID crypto.UserID, window feed.Resolved, limit int) ([]ItemRef, error) {
	clause, args := windowClause(window, []any{userID.Bytes(), userID.Bytes()})
	query := `SELECT i.user_id, i.signature, i.timestamp_ms_utc FROM item AS i
		WHERE (i.user_id IN (SELECT followed_user_id FROM follow WHERE source_user_id = ?) OR i.user_id = ?) AND i.kind_unknown = 0` +
		clause + orderClause(window) + " LIMIT ?"
	args = append(args, limit)
	return queryItemRefs(ctx, q, query, args)
}

// ListReplies lists comments whose reply_to matches (userID, sig).
func ListReplies(ctx context.Context, q Queryer, userID crypto.UserID, sig crypto.Signature, window feed.Resolved, limit int) ([]ItemRef, error) {
	clause, args := windowClause(window, []any{userID.Bytes(), sig.Bytes()})
	query := `SELECT i.user_id, i.signature, i.timestamp_ms_utc FROM item AS i
		INNER JOIN reply AS r ON (r.from_user_id = i.user_id AND r.from_signature = i.signature)
		WHERE r.to_user_id = ? AND r.to_signature = ?` + clause + orderClause(window) + " LIMIT ?"
	args = append(args, limit)
	return queryItemRefs(ctx, q, query, args)
}

// LatestProfile returns the Profile item with the greatest timestamp for
// userID, ties broken by the greater signature.
func LatestProfile(ctx context.Context, q Queryer, userID crypto.UserID) (*StoredItem, error) {
	row := q.QueryRowContext(ctx, `
		SELECT i.user_id, i.signature, i.raw, i.timestamp_ms_utc, i.received_utc_ms, i.kind_unknown
		FROM item AS i
		INNER JOIN profile AS p ON (p.user_id = i.user_id AND p.signature = i.signature)
		WHERE i.user_id = ?`, userID.Bytes())
	return scanStoredItem(row)
}

// TotalBytes sums item and attachment bytes attributed to userID: the raw
// bytes of every item plus the declared size of every completed attachment.
// It must run inside the same transaction as a pending quota decision to
// see a consistent view of "bytes already committed".
func TotalBytes(ctx context.Context, q Queryer, userID crypto.UserID) (int64, error) {
	var itemBytes, fileBytes sql.NullInt64
	row := q.QueryRowContext(ctx, `SELECT COALESCE(SUM(LENGTH(raw)), 0) FROM item WHERE user_id = ?`, userID.Bytes())
	if err := row.Scan(&itemBytes); err != nil {
		return 0, fmt.Errorf("summing item bytes: %w", err)
	}
	row = q.QueryRowContext(ctx, `SELECT COALESCE(SUM(size_bytes), 0) FROM file WHERE user_id = ? AND completed = 1`, userID.Bytes())
	if err := row.Scan(&fileBytes); err != nil {
		return 0, fmt.Errorf("summing file bytes: %w", err)
	}
	return itemBytes.Int64 + fileBytes.Int64, nil
}

// UpsertProfileIfLatest updates the profile cache table iff the candidate
// item is newer than what's cached (or ties it with a greater signature),
// implementing the "latest Profile, tie-broken by signature" rule at the
// point of ingestion rather than at read time. isLatest reports whether the
// candidate won and the cache was updated; callers must skip ReplaceFollows
// when it didn't, or an out-of-order Profile would overwrite the follow
// graph with stale follows while leaving the cache at the newer item.
func UpsertProfileIfLatest(ctx context.Context, q Queryer, userID crypto.UserID, sig crypto.Signature, timestampMs int64, displayName string) (isLatest bool, err error) {
	var curTimestamp int64
	var curSig []byte
	row := q.QueryRowContext(ctx, `SELECT timestamp_ms_utc, signature FROM profile WHERE user_id = ?`, userID.Bytes())
	err = row.Scan(&curTimestamp, &curSig)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// no cached profile yet
	case err != nil:
		return false, fmt.Errorf("reading cached profile: %w", err)
	default:
		if timestampMs < curTimestamp {
			return false, nil
		}
		if timestampMs == curTimestamp && compareBytes(sig.Bytes(), curSig) <= 0 {
			return false, nil
		}
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO profile (user_id, signature, timestamp_ms_utc, display_name) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET signature = excluded.signature,
			timestamp_ms_utc = excluded.timestamp_ms_utc, display_name = excluded.display_name`,
		userID.Bytes(), sig.Bytes(), timestampMs, displayName)
	if err != nil {
		return false, fmt.Errorf("upserting cached profile: %w", err)
	}
	return true, nil
}

func compareBytes(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return int(a[i]) - int(b[i])
		}
	}
	return len(a) - len(b)
}

// ReplaceFollows rewrites userID's follow list, called whenever a newer
// Profile item is accepted as the latest. Must run in the same transaction
// as UpsertProfileIfLatest so the follow graph and the profile cache never
// diverge.
func ReplaceFollows(ctx context.Context, q Queryer, userID crypto.UserID, follows []item.Follow) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM follow WHERE source_user_id = ?`, userID.Bytes()); err != nil {
		return fmt.Errorf("clearing old follows: %w", err)
	}
	for _, f := range follows {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO follow (source_user_id, followed_user_id, display_name) VALUES (?, ?, ?)`,
			userID.Bytes(), f.UserID.Bytes(), f.DisplayName); err != nil {
			return fmt.Errorf("inserting follow: %w", err)
		}
	}
	return nil
}

// IndexReply records that (fromUserID, fromSig) is a comment replying to
// (toUserID, toSig), so ListReplies can find it.
func IndexReply(ctx context.Context, q Queryer, fromUserID crypto.UserID, fromSig crypto.Signature, toUserID crypto.UserID, toSig crypto.Signature) error {
	_, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO reply (from_user_id, from_signature, to_user_id, to_signature) VALUES (?, ?, ?, ?)`,
		fromUserID.Bytes(), fromSig.Bytes(), toUserID.Bytes(), toSig.Bytes())
	if err != nil {
		return fmt.Errorf("indexing reply: %w", err)
	}
	return nil
}
