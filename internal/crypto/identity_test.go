package crypto

import (
	"crypto/ed25519"
	"testing"
)

func TestParseUserIDRoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	var want UserID
	copy(want[:], pub)

	got, err := ParseUserID(want.String())
	if err != nil {
		t.Fatalf("ParseUserID: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %x, want %x", got, want)
	}
}

func TestParseUserIDWrongLength(t *testing.T) {
	_, err := ParseUserID(EncodeBase58([]byte("too short")))
	if err == nil {
		t.Fatal("expected error for short user id")
	}
}

func TestVerify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	var userID UserID
	copy(userID[:], pub)

	msg := []byte("sign me")
	sig := ed25519.Sign(priv, msg)
	var signature Signature
	copy(signature[:], sig)

	if err := Verify(userID, signature, msg); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	tampered := append([]byte{}, msg...)
	tampered[len(tampered)-1] ^= 0xff
	if err := Verify(userID, signature, tampered); err != ErrBadSignature {
		t.Fatalf("Verify on tampered bytes = %v, want ErrBadSignature", err)
	}
}
