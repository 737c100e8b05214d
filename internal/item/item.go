// Package item implements the content model and wire codec for diskuto
// records: parsing and validating the CBOR-encoded Item envelope and its
// Post/Comment/Profile variants, and re-encoding them byte-exactly.
package item

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"diskuto/internal/crypto"
)

// Validation errors, mapped to HTTP 400 at the httpapi boundary.
var (
	ErrMalformed                           = errors.New("malformed item")
	ErrMissingRequiredField                = errors.New("missing required field")
	ErrUnknownKindEmpty                    = errors.New("no kind variant populated")
	ErrMultipleKindsSet                    = errors.New("multiple kind variants populated")
	ErrTimestampOutOfRange                 = errors.New("timestamp out of range")
	ErrAttachmentNameInvalid               = errors.New("attachment name invalid")
	ErrDuplicateAttachmentName             = errors.New("duplicate attachment name")
	ErrAttachmentHashAlgorithmUnsupported  = errors.New("attachment hash algorithm unsupported")
	ErrOversizedItem                       = errors.New("item too large")
	ErrBadSignature                        = crypto.ErrBadSignature
)

// Top-level field keys. Keys >= 100 are never assigned a meaning by this
// version and always land in Unknown.
const (
	keyTimestampMs       uint64 = 0
	keyUTCOffsetMinutes  uint64 = 1
	keyPost              uint64 = 2
	keyComment           uint64 = 3
	keyProfile           uint64 = 4
	firstUnassignedKind  uint64 = 100
)

// Attachment is a named binary blob referenced by a Post, with its declared
// size and content hash.
type Attachment struct {
	Name      string
	SizeBytes int64
	Hash      crypto.Multihash
}

// Follow is one entry in a Profile's follows list.
type Follow struct {
	UserID      crypto.UserID
	DisplayName string
}

// Post is the "kind" variant for a top-level text/media post.
type Post struct {
	Title       string
	Body        string
	Attachments []Attachment
	Unknown     rawMap
}

// Comment is the "kind" variant for a reply to another item.
type Comment struct {
	ReplyToUserID    crypto.UserID
	ReplyToSignature crypto.Signature
	Body             string
	Unknown          rawMap
}

// Profile is the "kind" variant describing an author: display name, about
// text, and the follows list that drives transitive authorization and the
// feed query.
type Profile struct {
	DisplayName string
	About       string
	Follows     []Follow
	Servers     []string
	Unknown     rawMap
}

// Item is a parsed, validated diskuto record. Exactly one of Post, Comment,
// or Profile is non-nil. RawBytes is always the exact bytes that were
// parsed, and is what gets signed, hashed, and returned verbatim on GET.
type Item struct {
	TimestampMsUTC   int64
	UTCOffsetMinutes int32

	Post    *Post
	Comment *Comment
	Profile *Profile

	// Unknown holds top-level fields (including kind tags >= 100) this
	// version does not understand. They are stored and served but never
	// surfaced to feed or authorization logic.
	Unknown rawMap

	RawBytes []byte
}

// KindUnknown reports whether this item's populated kind is one this version
// does not recognize (a pass-through record).
func (it *Item) KindUnknown() bool {
	return it.Post == nil && it.Comment == nil && it.Profile == nil
}

// Parse decodes raw into a validated Item whose RawBytes is raw. On any
// error it returns a nil Item.
func Parse(raw []byte) (*Item, error) {
	m, err := decodeRawMap(raw)
	if err != nil {
		return nil, err
	}

	it := &Item{RawBytes: raw}

	hasTimestamp, err := m.take(keyTimestampMs, &it.TimestampMsUTC)
	if err != nil {
		return nil, err
	}
	if !hasTimestamp {
		return nil, fmt.Errorf("%w: timestamp_ms_utc", ErrMissingRequiredField)
	}

	if _, err := m.take(keyUTCOffsetMinutes, &it.UTCOffsetMinutes); err != nil {
		return nil, err
	}

	kindsSet := 0

	if raw, ok := m[keyPost]; ok {
		delete(m, keyPost)
		post, err := decodePost(raw)
		if err != nil {
			return nil, err
		}
		it.Post = post
		kindsSet++
	}
	if raw, ok := m[keyComment]; ok {
		delete(m, keyComment)
		comment, err := decodeComment(raw)
		if err != nil {
			return nil, err
		}
		it.Comment = comment
		kindsSet++
	}
	if raw, ok := m[keyProfile]; ok {
		delete(m, keyProfile)
		profile, err := decodeProfile(raw)
		if err != nil {
			return nil, err
		}
		it.Profile = profile
		kindsSet++
	}

	// Any remaining key, including unassigned kind tags >= 100, is an
	// unknown field. An unassigned kind tag counts toward "a kind is
	// populated" for the UnknownKindEmpty check below, but not toward
	// MultipleKindsSet: this version cannot tell two unknown kinds apart
	// from one, so it only polices the kinds it understands.
	it.Unknown = m

	hasUnknownKind := false
	for k := range m {
		if k >= firstUnassignedKind {
			hasUnknownKind = true
			break
		}
	}

	if kindsSet > 1 {
		return nil, ErrMultipleKindsSet
	}
	if kindsSet == 0 && !hasUnknownKind {
		return nil, ErrUnknownKindEmpty
	}

	if err := validateItem(it); err != nil {
		return nil, err
	}

	return it, nil
}

// Encode re-serializes the item from its parsed fields. It reproduces the
// parsed bytes when they carried every recognized field of the item's kind,
// carried the UTC offset only when nonzero, and had no unknown keys inside
// attachment or follow entries (Parse does not keep those). A recognized
// field missing from the input is written with its zero value. The server
// itself never relies on this for the read path, which always returns
// RawBytes.
func (it *Item) Encode() ([]byte, error) {
	m := rawMap{}
	for k, v := range it.Unknown {
		m[k] = v
	}
	if err := m.put(keyTimestampMs, it.TimestampMsUTC); err != nil {
		return nil, err
	}
	if it.UTCOffsetMinutes != 0 {
		if err := m.put(keyUTCOffsetMinutes, it.UTCOffsetMinutes); err != nil {
			return nil, err
		}
	}
	switch {
	case it.Post != nil:
		raw, err := encodePost(it.Post)
		if err != nil {
			return nil, err
		}
		m[keyPost] = raw
	case it.Comment != nil:
		raw, err := encodeComment(it.Comment)
		if err != nil {
			return nil, err
		}
		m[keyComment] = raw
	case it.Profile != nil:
		raw, err := encodeProfile(it.Profile)
		if err != nil {
			return nil, err
		}
		m[keyProfile] = raw
	}
	return m.encode()
}

func decodePost(raw cbor.RawMessage) (*Post, error) {
	m, err := decodeRawMap(raw)
	if err != nil {
		return nil, err
	}
	p := &Post{}
	if _, err := m.take(0, &p.Title); err != nil {
		return nil, err
	}
	if _, err := m.take(1, &p.Body); err != nil {
		return nil, err
	}
	var rawAttachments []cbor.RawMessage
	if _, err := m.take(2, &rawAttachments); err != nil {
		return nil, err
	}
	for _, ra := range rawAttachments {
		a, err := decodeAttachment(ra)
		if err != nil {
			return nil, err
		}
		p.Attachments = append(p.Attachments, a)
	}
	p.Unknown = m
	return p, nil
}

func encodePost(p *Post) (cbor.RawMessage, error) {
	m := rawMap{}
	for k, v := range p.Unknown {
		m[k] = v
	}
	if err := m.put(0, p.Title); err != nil {
		return nil, err
	}
	if err := m.put(1, p.Body); err != nil {
		return nil, err
	}
	attachments := make([]cbor.RawMessage, 0, len(p.Attachments))
	for _, a := range p.Attachments {
		raw, err := encodeAttachment(a)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, raw)
	}
	if err := m.put(2, attachments); err != nil {
		return nil, err
	}
	return m.encode()
}

func decodeComment(raw cbor.RawMessage) (*Comment, error) {
	m, err := decodeRawMap(raw)
	if err != nil {
		return nil, err
	}
	c := &Comment{}
	var userIDBytes, sigBytes []byte
	hasUser, err := m.take(0, &userIDBytes)
	if err != nil {
		return nil, err
	}
	hasSig, err := m.take(1, &sigBytes)
	if err != nil {
		return nil, err
	}
	if !hasUser || !hasSig {
		return nil, fmt.Errorf("%w: comment reply_to", ErrMissingRequiredField)
	}
	if len(userIDBytes) != crypto.UserIDSize {
		return nil, fmt.Errorf("%w: comment reply_to user id", ErrMalformed)
	}
	copy(c.ReplyToUserID[:], userIDBytes)
	if len(sigBytes) != crypto.SignatureSize {
		return nil, fmt.Errorf("%w: comment reply_to signature", ErrMalformed)
	}
	copy(c.ReplyToSignature[:], sigBytes)
	if _, err := m.take(2, &c.Body); err != nil {
		return nil, err
	}
	c.Unknown = m
	return c, nil
}

func encodeComment(c *Comment) (cbor.RawMessage, error) {
	m := rawMap{}
	for k, v := range c.Unknown {
		m[k] = v
	}
	if err := m.put(0, c.ReplyToUserID.Bytes()); err != nil {
		return nil, err
	}
	if err := m.put(1, c.ReplyToSignature.Bytes()); err != nil {
		return nil, err
	}
	if err := m.put(2, c.Body); err != nil {
		return nil, err
	}
	return m.encode()
}

func decodeProfile(raw cbor.RawMessage) (*Profile, error) {
	m, err := decodeRawMap(raw)
	if err != nil {
		return nil, err
	}
	p := &Profile{}
	if _, err := m.take(0, &p.DisplayName); err != nil {
		return nil, err
	}
	if _, err := m.take(1, &p.About); err != nil {
		return nil, err
	}
	var rawFollows []cbor.RawMessage
	if _, err := m.take(2, &rawFollows); err != nil {
		return nil, err
	}
	for _, rf := range rawFollows {
		f, err := decodeFollow(rf)
		if err != nil {
			return nil, err
		}
		p.Follows = append(p.Follows, f)
	}
	if _, err := m.take(3, &p.Servers); err != nil {
		return nil, err
	}
	p.Unknown = m
	return p, nil
}

func encodeProfile(p *Profile) (cbor.RawMessage, error) {
	m := rawMap{}
	for k, v := range p.Unknown {
		m[k] = v
	}
	if err := m.put(0, p.DisplayName); err != nil {
		return nil, err
	}
	if err := m.put(1, p.About); err != nil {
		return nil, err
	}
	follows := make([]cbor.RawMessage, 0, len(p.Follows))
	for _, f := range p.Follows {
		raw, err := encodeFollow(f)
		if err != nil {
			return nil, err
		}
		follows = append(follows, raw)
	}
	if err := m.put(2, follows); err != nil {
		return nil, err
	}
	if err := m.put(3, p.Servers); err != nil {
		return nil, err
	}
	return m.encode()
}
