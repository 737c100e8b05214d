// Package crypto implements the identity and content-addressing primitives
// shared by every layer of diskuto: base58 text encoding, Ed25519 key and
// signature handling, and the multihash-sha512 envelope used for attachment
// content addresses.
package crypto

import (
	"fmt"

	"gopkg.in/basen.v1"
)

// base58 is the Bitcoin-alphabet encoding used for every canonical text form
// in this package (UserID, Signature, attachment hash).
var base58 = basen.Base58

// EncodeBase58 returns the canonical base58 text form of raw.
func EncodeBase58(raw []byte) string {
	return base58.EncodeToString(raw)
}

// DecodeBase58 parses base58 text back into raw bytes.
func DecodeBase58(text string) ([]byte, error) {
	raw, err := base58.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("invalid base58 encoding: %w", err)
	}
	return raw, nil
}
