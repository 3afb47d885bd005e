package coprocessor

import "obscuraplay/internal/fhe"

var (
	// CiphertextKeyPrefix stores sealed values by handle: CiphertextKeyPrefix || handle.
	CiphertextKeyPrefix = []byte{0x01}
)

func CiphertextKey(h fhe.Handle) []byte {
	bz := make([]byte, 1+fhe.HandleLength)
	bz[0] = CiphertextKeyPrefix[0]
	copy(bz[1:], h[:])
	return bz
}
