// Package itemtest builds signed item fixtures for other packages' tests.
package itemtest

import (
	"crypto/ed25519"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"diskuto/internal/crypto"
)

// Author is a generated keypair used to sign fixtures.
type Author struct {
	UserID crypto.UserID
	priv   ed25519.PrivateKey
}

// NewAuthor generates a fresh Ed25519 keypair.
func NewAuthor(t *testing.T) Author {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	var userID crypto.UserID
	copy(userID[:], pub)
	return Author{UserID: userID, priv: priv}
}

// Sign returns the Ed25519 signature of raw under this author's key.
func (a Author) Sign(raw []byte) crypto.Signature {
	sig := ed25519.Sign(a.priv, raw)
	var out crypto.Signature
	copy(out[:], sig)
	return out
}

func encodeMap(t *testing.T, m map[uint64]cbor.RawMessage) []byte {
	t.Helper()
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		t.Fatalf("building cbor encoder: %v", err)
	}
	raw, err := mode.Marshal(m)
	if err != nil {
		t.Fatalf("encoding cbor: %v", err)
	}
	return raw
}

func field(t *testing.T, v interface{}) cbor.RawMessage {
	t.Helper()
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		t.Fatalf("building cbor encoder: %v", err)
	}
	raw, err := mode.Marshal(v)
	if err != nil {
		t.Fatalf("encoding cbor field: %v", err)
	}
	return raw
}

// PostItem builds the unsigned wire bytes for a Post item with the given
// timestamp and body and no attachments.
func PostItem(t *testing.T, timestampMs int64, body string) []byte {
	t.Helper()
	post := map[uint64]cbor.RawMessage{1: field(t, body)}
	m := map[uint64]cbor.RawMessage{
		0: field(t, timestampMs),
		2: field(t, post),
	}
	return encodeMap(t, m)
}

// PostItemWithAttachment builds the unsigned wire bytes for a Post item
// declaring a single attachment.
func PostItemWithAttachment(t *testing.T, timestampMs int64, body, attachmentName string, size int64, hash crypto.Multihash) []byte {
	t.Helper()
	attachment := map[uint64]cbor.RawMessage{
		0: field(t, attachmentName),
		1: field(t, size),
		2: field(t, hash.Bytes()),
	}
	post := map[uint64]cbor.RawMessage{
		1: field(t, body),
		2: field(t, []cbor.RawMessage{field(t, attachment)}),
	}
	m := map[uint64]cbor.RawMessage{
		0: field(t, timestampMs),
		2: field(t, post),
	}
	return encodeMap(t, m)
}

// ProfileItem builds the unsigned wire bytes for a Profile item with the
// given display name and follows list.
func ProfileItem(t *testing.T, timestampMs int64, displayName string, follows []crypto.UserID) []byte {
	t.Helper()
	rawFollows := make([]cbor.RawMessage, 0, len(follows))
	for _, f := range follows {
		rawFollows = append(rawFollows, field(t, map[uint64]cbor.RawMessage{
			0: field(t, f.Bytes()),
		}))
	}
	profile := map[uint64]cbor.RawMessage{
		0: field(t, displayName),
		2: field(t, rawFollows),
	}
	m := map[uint64]cbor.RawMessage{
		0: field(t, timestampMs),
		4: field(t, profile),
	}
	return encodeMap(t, m)
}

// CommentItem builds the unsigned wire bytes for a Comment replying to
// (toUserID, toSig).
func CommentItem(t *testing.T, timestampMs int64, toUserID crypto.UserID, toSig crypto.Signature, body string) []byte {
	t.Helper()
	comment := map[uint64]cbor.RawMessage{
		0: field(t, toUserID.Bytes()),
		1: field(t, toSig.Bytes()),
		2: field(t, body),
	}
	m := map[uint64]cbor.RawMessage{
		0: field(t, timestampMs),
		3: field(t, comment),
	}
	return encodeMap(t, m)
}
