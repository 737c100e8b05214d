package store

import (
	"context"
	"fmt"

	"diskuto/internal/crypto"
)

// UsageRow is one line of `diskuto user usage` reporting, lifted from the
// original implementation's admin usage report.
type UsageRow struct {
	UserID      crypto.UserID
	DisplayName string
	Items       int64
	Attachments int64
	TotalBytes  int64
}

// UsageByUser reports storage usage per known user, ordered by total bytes
// descending, for quota administration.
func UsageByUser(ctx context.Context, q Queryer, limit int) ([]UsageRow, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT
			ku.user_id,
			COALESCE(p.display_name, ''),
			COALESCE((SELECT COUNT(*) FROM item WHERE item.user_id = ku.user_id), 0),
			COALESCE((SELECT COUNT(*) FROM file WHERE file.user_id = ku.user_id AND file.completed = 1), 0),
			COALESCE((SELECT SUM(LENGTH(raw)) FROM item WHERE item.user_id = ku.user_id), 0)
				+ COALESCE((SELECT SUM(size_bytes) FROM file WHERE file.user_id = ku.user_id AND file.completed = 1), 0)
		FROM known_user AS ku
		LEFT OUTER JOIN profile AS p ON p.user_id = ku.user_id
		ORDER BY 5 DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying usage by user: %w", err)
	}
	defer rows.Close()

	var out []UsageRow
	for rows.Next() {
		var userIDBytes []byte
		var row UsageRow
		if err := rows.Scan(&userIDBytes, &row.DisplayName, &row.Items, &row.Attachments, &row.TotalBytes); err != nil {
			return nil, fmt.Errorf("scanning usage row: %w", err)
		}
		copy(row.UserID[:], userIDBytes)
		out = append(out, row)
	}
	return out, rows.Err()
}
