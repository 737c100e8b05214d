// Package encryption implements the passphrase-protected backup encryption
// used by `diskuto db backup --encrypt` and `diskuto db restore --decrypt`.
package encryption

import "io"

// Encryptor encrypts backup snapshots against a public key generated at
// Setup time, and unlocks the matching private key with a passphrase so a
// later restore can decrypt them.
type Encryptor interface {
	// Setup generates a new key pair, protecting the private half with
	// passphrase.
	Setup(passphrase string) error
	// Encrypt streams plaintext from r as ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error
	// Unlock decrypts the private key with passphrase, returning a
	// DecryptionContext usable for the lifetime of a restore.
	Unlock(passphrase string) (DecryptionContext, error)
	// IsConfigured reports whether Setup has already been run.
	IsConfigured() bool
}

// DecryptionContext decrypts ciphertext produced by the Encryptor that
// unlocked it.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
