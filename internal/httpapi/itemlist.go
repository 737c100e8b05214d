package httpapi

import (
	"github.com/fxamacker/cbor/v2"

	"diskuto/internal/store"
)

var itemListEncMode = func() cbor.EncMode {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// wireItemRef is the on-wire shape of one ItemList entry: enough to identify
// an item and fetch its body by a follow-up GET.
type wireItemRef struct {
	UserID    []byte `cbor:"0,keyasint"`
	Signature []byte `cbor:"1,keyasint"`
	Timestamp int64  `cbor:"2,keyasint"`
}

// encodeItemList serializes an ItemList response: refs, never bodies, so
// feed payloads stay bounded and cache-friendly.
func encodeItemList(refs []store.ItemRef) ([]byte, error) {
	wire := make([]wireItemRef, len(refs))
	for i, ref := range refs {
		wire[i] = wireItemRef{
			UserID:    ref.UserID.Bytes(),
			Signature: ref.Signature.Bytes(),
			Timestamp: ref.TimestampMsUTC,
		}
	}
	return itemListEncMode.Marshal(wire)
}
