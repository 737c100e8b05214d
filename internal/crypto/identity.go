package crypto

import (
	"crypto/ed25519"
	"errors"
	"fmt"
)

// ErrWrongLength is returned when a decoded UserID or Signature is not the
// expected byte length.
var ErrWrongLength = errors.New("wrong length")

// UserIDSize is the length in bytes of an Ed25519 public key.
const UserIDSize = ed25519.PublicKeySize

// SignatureSize is the length in bytes of an Ed25519 signature.
const SignatureSize = ed25519.SignatureSize

// UserID is a 32-byte Ed25519 public key identifying an author.
type UserID [UserIDSize]byte

// Signature is a 64-byte Ed25519 signature, also the in-namespace
// content-address of the item it signs.
type Signature [SignatureSize]byte

// String returns the canonical base58 text form.
func (u UserID) String() string {
	return EncodeBase58(u[:])
}

// Bytes returns the raw public key bytes.
func (u UserID) Bytes() []byte {
	return u[:]
}

// String returns the canonical base58 text form.
func (s Signature) String() string {
	return EncodeBase58(s[:])
}

// Bytes returns the raw signature bytes.
func (s Signature) Bytes() []byte {
	return s[:]
}

// ParseUserID decodes the canonical base58 text form of a UserID.
func ParseUserID(text string) (UserID, error) {
	raw, err := DecodeBase58(text)
	if err != nil {
		return UserID{}, err
	}
	if len(raw) != UserIDSize {
		return UserID{}, fmt.Errorf("user id: %w: got %d bytes, want %d", ErrWrongLength, len(raw), UserIDSize)
	}
	var u UserID
	copy(u[:], raw)
	return u, nil
}

// ParseSignature decodes the canonical base58 text form of a Signature.
func ParseSignature(text string) (Signature, error) {
	raw, err := DecodeBase58(text)
	if err != nil {
		return Signature{}, err
	}
	if len(raw) != SignatureSize {
		return Signature{}, fmt.Errorf("signature: %w: got %d bytes, want %d", ErrWrongLength, len(raw), SignatureSize)
	}
	var s Signature
	copy(s[:], raw)
	return s, nil
}

// ErrBadSignature is returned when a signature fails to verify.
var ErrBadSignature = errors.New("bad signature")

// Verify checks that signature is a valid Ed25519 signature of raw under
// userID. It is deterministic and runs in the time ed25519.Verify takes,
// which is constant with respect to the signature's validity.
func Verify(userID UserID, signature Signature, raw []byte) error {
	if !ed25519.Verify(ed25519.PublicKey(userID[:]), raw, signature[:]) {
		return ErrBadSignature
	}
	return nil
}
