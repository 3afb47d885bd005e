package fhe

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Plaintext is a cleartext value together with its encrypted type.
type Plaintext struct {
	Type  Type
	Value *big.Int
}

func Uint8(v uint8) Plaintext {
	return Plaintext{Type: TypeUint8, Value: new(big.Int).SetUint64(uint64(v))}
}

func AddressValue(a common.Address) Plaintext {
	return Plaintext{Type: TypeAddress, Value: new(big.Int).SetBytes(a.Bytes())}
}

// Bytes returns the fixed-width big-endian encoding used inside ciphertexts.
func (p Plaintext) Bytes() ([]byte, error) {
	w := p.Type.Width()
	if w == 0 {
		return nil, ErrTypeMismatch.Wrapf("unsupported type %d", uint8(p.Type))
	}
	if p.Value == nil || p.Value.Sign() < 0 || p.Value.BitLen() > 8*w {
		return nil, ErrInvalidCiphertext.Wrapf("value out of range for %s", p.Type)
	}
	return p.Value.FillBytes(make([]byte, w)), nil
}

func DecodePlaintext(typ Type, b []byte) (Plaintext, error) {
	w := typ.Width()
	if w == 0 {
		return Plaintext{}, ErrTypeMismatch.Wrapf("unsupported type %d", uint8(typ))
	}
	if len(b) != w {
		return Plaintext{}, ErrInvalidCiphertext.Wrapf("%s: expected %d bytes, got %d", typ, w, len(b))
	}
	return Plaintext{Type: typ, Value: new(big.Int).SetBytes(b)}, nil
}

func (p Plaintext) Uint64() (uint64, error) {
	if p.Type != TypeUint8 || p.Value == nil {
		return 0, ErrTypeMismatch.Wrapf("want %s, have %s", TypeUint8, p.Type)
	}
	return p.Value.Uint64(), nil
}

func (p Plaintext) Address() (common.Address, error) {
	if p.Type != TypeAddress || p.Value == nil {
		return common.Address{}, ErrTypeMismatch.Wrapf("want %s, have %s", TypeAddress, p.Type)
	}
	return common.BigToAddress(p.Value), nil
}

// String renders uint values in decimal and addresses in checksummed hex.
func (p Plaintext) String() string {
	if p.Value == nil {
		return ""
	}
	if p.Type == TypeAddress {
		return common.BigToAddress(p.Value).Hex()
	}
	return p.Value.String()
}

// ParsePlaintext is the inverse of String.
func ParsePlaintext(typ Type, s string) (Plaintext, error) {
	switch typ {
	case TypeAddress:
		if !common.IsHexAddress(s) {
			return Plaintext{}, ErrInvalidCiphertext.Wrapf("bad address %q", s)
		}
		return AddressValue(common.HexToAddress(s)), nil
	case TypeUint8:
		v, ok := new(big.Int).SetString(s, 10)
		if !ok || v.Sign() < 0 || v.BitLen() > 8 {
			return Plaintext{}, ErrInvalidCiphertext.Wrapf("bad uint8 %q", s)
		}
		return Plaintext{Type: TypeUint8, Value: v}, nil
	default:
		return Plaintext{}, ErrTypeMismatch.Wrapf("unsupported type %d", uint8(typ))
	}
}
