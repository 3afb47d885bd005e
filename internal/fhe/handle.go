package fhe

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// HandleVersion is the ciphertext scheme version stamped into every handle.
const HandleVersion byte = 0

const HandleLength = 32

const (
	computedHandleDomain = "obscura/handle/computed/v0"
	inputHandleDomain    = "obscura/handle/input/v0"
)

// Type tags the plaintext type a handle refers to.
type Type uint8

const (
	TypeUint8   Type = 2
	TypeAddress Type = 7
)

func (t Type) Valid() bool {
	return t == TypeUint8 || t == TypeAddress
}

// Width is the fixed plaintext encoding width in bytes.
func (t Type) Width() int {
	switch t {
	case TypeUint8:
		return 1
	case TypeAddress:
		return common.AddressLength
	default:
		return 0
	}
}

func (t Type) String() string {
	switch t {
	case TypeUint8:
		return "euint8"
	case TypeAddress:
		return "eaddress"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Handle is an opaque reference to a ciphertext held by the engine.
//
// Layout: digest(30) || type(1) || version(1). The digest binds the originating
// contract and the creation sequence (computed handles) or the ciphertext, caller
// and contract (input handles).
type Handle [HandleLength]byte

var ZeroHandle Handle

func ComputedHandle(contract common.Address, seq uint64, typ Type) Handle {
	var seqBE [8]byte
	binary.BigEndian.PutUint64(seqBE[:], seq)
	digest := crypto.Keccak256([]byte(computedHandleDomain), contract.Bytes(), seqBE[:], []byte{byte(typ)})
	return packHandle(digest, typ)
}

func InputHandle(ciphertext []byte, caller, contract common.Address, typ Type) Handle {
	digest := crypto.Keccak256([]byte(inputHandleDomain), ciphertext, caller.Bytes(), contract.Bytes(), []byte{byte(typ)})
	return packHandle(digest, typ)
}

func packHandle(digest []byte, typ Type) Handle {
	var h Handle
	copy(h[:HandleLength-2], digest)
	h[HandleLength-2] = byte(typ)
	h[HandleLength-1] = HandleVersion
	return h
}

func (h Handle) IsZero() bool { return h == ZeroHandle }

func (h Handle) Type() Type { return Type(h[HandleLength-2]) }

func (h Handle) Version() byte { return h[HandleLength-1] }

func (h Handle) Bytes() []byte { return h[:] }

func (h Handle) Hex() string { return hexutil.Encode(h[:]) }

func (h Handle) String() string { return h.Hex() }

// Validate rejects the zero handle and handles of an unknown scheme or type.
func (h Handle) Validate() error {
	if h.IsZero() {
		return ErrInvalidHandle.Wrap("zero handle")
	}
	if h.Version() != HandleVersion {
		return ErrInvalidHandle.Wrapf("unsupported version %d", h.Version())
	}
	if !h.Type().Valid() {
		return ErrInvalidHandle.Wrapf("unsupported type %d", uint8(h.Type()))
	}
	return nil
}

func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

func (h *Handle) UnmarshalText(input []byte) error {
	parsed, err := HandleFromHex(string(input))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

func HandleFromHex(s string) (Handle, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return Handle{}, ErrInvalidHandle.Wrapf("decode %q: %v", s, err)
	}
	if len(b) != HandleLength {
		return Handle{}, ErrInvalidHandle.Wrapf("expected %d bytes, got %d", HandleLength, len(b))
	}
	var h Handle
	copy(h[:], b)
	return h, nil
}
