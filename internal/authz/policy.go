// Package authz implements diskuto's admission and quota policy: deciding
// whether a given user's item may be accepted, following the transitive
// "admitted if known, or followed by someone known" rule.
package authz

import (
	"context"
	"errors"
	"fmt"

	"diskuto/internal/crypto"
	"diskuto/internal/store"
)

// Decision is the outcome of a policy check.
type Decision int

const (
	// Allow means the item may be accepted.
	Allow Decision = iota
	// Forbidden means no known user admits this author, directly or
	// transitively.
	Forbidden
	// QuotaExceeded means the author is admitted but this item would push
	// them over their byte quota.
	QuotaExceeded
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Forbidden:
		return "forbidden"
	case QuotaExceeded:
		return "quota exceeded"
	default:
		return "unknown"
	}
}

// ErrForbidden and ErrQuotaExceeded let callers use errors.Is against the
// non-Allow outcomes without inspecting the Decision value.
var (
	ErrForbidden     = errors.New("not an admitted user")
	ErrQuotaExceeded = errors.New("quota exceeded")
)

// Policy evaluates admission and quota decisions against the store, inside
// whatever transaction the caller is using for the pending insert so the
// decision is computed against the committed latest Profile.
type Policy struct {
	// DefaultQuotaBytes bounds total storage for users admitted only
	// transitively (followed by a known user, not known themselves). Zero
	// means unlimited.
	DefaultQuotaBytes int64
}

// Decide reports whether userID may have an item or attachment accepted:
// userID must be a known user (subject to its own quota) or be followed by
// some known user's latest Profile (subject to the server-wide default
// quota).
// itemAndAttachmentBytes is the total size this item would add if accepted.
func (p Policy) Decide(ctx context.Context, q store.Queryer, userID crypto.UserID, itemAndAttachmentBytes int64) (Decision, error) {
	known, err := store.KnownUserByID(ctx, q, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// fall through to transitive admission below
	case err != nil:
		return Forbidden, fmt.Errorf("looking up known user: %w", err)
	default:
		return p.checkQuota(ctx, q, userID, known.QuotaBytes, itemAndAttachmentBytes)
	}

	followed, err := store.FollowedByKnownUser(ctx, q, userID)
	if err != nil {
		return Forbidden, fmt.Errorf("checking transitive admission: %w", err)
	}
	if !followed {
		return Forbidden, nil
	}

	var defaultQuota *int64
	if p.DefaultQuotaBytes > 0 {
		defaultQuota = &p.DefaultQuotaBytes
	}
	return p.checkQuota(ctx, q, userID, defaultQuota, itemAndAttachmentBytes)
}

func (p Policy) checkQuota(ctx context.Context, q store.Queryer, userID crypto.UserID, quotaBytes *int64, itemAndAttachmentBytes int64) (Decision, error) {
	if quotaBytes == nil {
		return Allow, nil
	}
	used, err := store.TotalBytes(ctx, q, userID)
	if err != nil {
		return Forbidden, fmt.Errorf("computing usage for quota check: %w", err)
	}
	if used+itemAndAttachmentBytes > *quotaBytes {
		return QuotaExceeded, nil
	}
	return Allow, nil
}
