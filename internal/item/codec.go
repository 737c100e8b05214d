package item

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"diskuto/internal/crypto"
)

var encMode = func() cbor.EncMode {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("building canonical cbor encoder: %v", err))
	}
	return mode
}()

// rawMap is a CBOR map keyed by small unsigned integers, the shape every
// record and sub-record in the wire format uses. Unrecognized keys survive a
// decode/encode round trip unmodified.
type rawMap map[uint64]cbor.RawMessage

func decodeRawMap(data []byte) (rawMap, error) {
	var m rawMap
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}

func (m rawMap) encode() ([]byte, error) {
	return encMode.Marshal(map[uint64]cbor.RawMessage(m))
}

// take decodes the field at key into v, removing it from the map so callers
// can treat whatever remains as unknown.
func (m rawMap) take(key uint64, v interface{}) (bool, error) {
	raw, ok := m[key]
	if !ok {
		return false, nil
	}
	delete(m, key)
	if err := cbor.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("%w: field %d: %v", ErrMalformed, key, err)
	}
	return true, nil
}

func (m rawMap) put(key uint64, v interface{}) error {
	raw, err := encMode.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding field %d: %w", key, err)
	}
	m[key] = raw
	return nil
}

func decodeAttachment(raw cbor.RawMessage) (Attachment, error) {
	m, err := decodeRawMap(raw)
	if err != nil {
		return Attachment{}, err
	}
	var a Attachment
	var hashBytes []byte
	if _, err := m.take(0, &a.Name); err != nil {
		return Attachment{}, err
	}
	if _, err := m.take(1, &a.SizeBytes); err != nil {
		return Attachment{}, err
	}
	if _, err := m.take(2, &hashBytes); err != nil {
		return Attachment{}, err
	}
	if len(hashBytes) > 0 {
		hash, err := crypto.NewMultihash(hashBytes)
		if err != nil && !errors.Is(err, crypto.ErrUnsupportedAlgorithm) {
			return Attachment{}, fmt.Errorf("%w: attachment hash: %v", ErrMalformed, err)
		} else if err != nil {
			return Attachment{}, fmt.Errorf("%w: %v", ErrAttachmentHashAlgorithmUnsupported, err)
		}
		a.Hash = hash
	}
	return a, nil
}

func encodeAttachment(a Attachment) (cbor.RawMessage, error) {
	m := rawMap{}
	if err := m.put(0, a.Name); err != nil {
		return nil, err
	}
	if err := m.put(1, a.SizeBytes); err != nil {
		return nil, err
	}
	if err := m.put(2, a.Hash.Bytes()); err != nil {
		return nil, err
	}
	return m.encode()
}

func decodeFollow(raw cbor.RawMessage) (Follow, error) {
	m, err := decodeRawMap(raw)
	if err != nil {
		return Follow{}, err
	}
	var f Follow
	var userIDBytes []byte
	if _, err := m.take(0, &userIDBytes); err != nil {
		return Follow{}, err
	}
	if len(userIDBytes) != crypto.UserIDSize {
		return Follow{}, fmt.Errorf("%w: follow user id", ErrMalformed)
	}
	copy(f.UserID[:], userIDBytes)
	if _, err := m.take(1, &f.DisplayName); err != nil {
		return Follow{}, err
	}
	return f, nil
}

func encodeFollow(f Follow) (cbor.RawMessage, error) {
	m := rawMap{}
	if err := m.put(0, f.UserID.Bytes()); err != nil {
		return nil, err
	}
	if err := m.put(1, f.DisplayName); err != nil {
		return nil, err
	}
	return m.encode()
}
