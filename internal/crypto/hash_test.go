package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestHashStreamRoundTrip(t *testing.T) {
	data := []byte("attachment bytes")
	m, err := HashStream(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("HashStream: %v", err)
	}
	if m[0] != AlgoSHA512 {
		t.Fatalf("algorithm tag = 0x%02x, want 0x%02x", m[0], AlgoSHA512)
	}

	again, err := HashStream(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("HashStream: %v", err)
	}
	if m != again {
		t.Fatal("hashing the same bytes twice produced different multihashes")
	}

	parsed, err := ParseMultihash(m.String())
	if err != nil {
		t.Fatalf("ParseMultihash: %v", err)
	}
	if parsed != m {
		t.Fatal("round trip through base58 text changed the multihash")
	}
}

func TestNewMultihashRejectsUnsupportedAlgorithm(t *testing.T) {
	raw := make([]byte, MultihashSize)
	raw[0] = 0x02
	if _, err := NewMultihash(raw); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Fatalf("NewMultihash = %v, want ErrUnsupportedAlgorithm", err)
	}
}
