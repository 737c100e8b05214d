package item

import (
	"fmt"
	"strings"
	"time"
)

// maxAttachmentNameLength bounds attachment names to a reasonable length.
const maxAttachmentNameLength = 255

// validateItem enforces the structural invariants that do not depend on
// wall-clock time or server configuration: kind-specific field shape,
// attachment name well-formedness and uniqueness. It runs as part of Parse.
func validateItem(it *Item) error {
	if it.Post == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(it.Post.Attachments))
	for _, a := range it.Post.Attachments {
		if err := validateAttachmentName(a.Name); err != nil {
			return err
		}
		if _, dup := seen[a.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateAttachmentName, a.Name)
		}
		seen[a.Name] = struct{}{}
		if a.SizeBytes < 0 {
			return fmt.Errorf("%w: attachment %q has negative size", ErrMalformed, a.Name)
		}
	}
	return nil
}

func validateAttachmentName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrAttachmentNameInvalid)
	}
	if len(name) > maxAttachmentNameLength {
		return fmt.Errorf("%w: %q exceeds %d bytes", ErrAttachmentNameInvalid, name, maxAttachmentNameLength)
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("%w: %q contains a path separator", ErrAttachmentNameInvalid, name)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("%w: %q is not a valid file name", ErrAttachmentNameInvalid, name)
	}
	return nil
}

// CheckTimestamp enforces that the item's timestamp is no later than
// now+futureSkew. Items far in the past are always permitted; only items
// too far in the future are rejected.
func (it *Item) CheckTimestamp(now time.Time, futureSkew time.Duration) error {
	limit := now.Add(futureSkew).UnixMilli()
	if it.TimestampMsUTC > limit {
		return fmt.Errorf("%w: %d ms is past the %s future-skew limit", ErrTimestampOutOfRange, it.TimestampMsUTC, futureSkew)
	}
	return nil
}

// DeclaredAttachmentBytes returns the sum of declared attachment sizes, used
// together with len(RawBytes) to enforce the item-max-bytes limit before any
// attachment bytes are actually uploaded.
func (it *Item) DeclaredAttachmentBytes() int64 {
	if it.Post == nil {
		return 0
	}
	var total int64
	for _, a := range it.Post.Attachments {
		total += a.SizeBytes
	}
	return total
}

// CheckSize enforces that the item bytes plus declared attachment sizes do
// not exceed itemMaxBytes.
func (it *Item) CheckSize(itemMaxBytes int64) error {
	total := int64(len(it.RawBytes)) + it.DeclaredAttachmentBytes()
	if total > itemMaxBytes {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrOversizedItem, total, itemMaxBytes)
	}
	return nil
}
