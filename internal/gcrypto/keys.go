package gcrypto

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// KeyPair is a ristretto255 keypair: Public = Secret*G.
type KeyPair struct {
	Secret Scalar
	Public Point
}

func GenerateKeyPair(rand io.Reader) (KeyPair, error) {
	sk, err := RandomScalar(rand)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{Secret: sk, Public: MulBase(sk)}, nil
}

func KeyPairFromSecret(b []byte) (KeyPair, error) {
	sk, err := ScalarFromBytesCanonical(b)
	if err != nil {
		return KeyPair{}, err
	}
	if sk.IsZero() {
		return KeyPair{}, fmt.Errorf("keypair: zero secret")
	}
	return KeyPair{Secret: sk, Public: MulBase(sk)}, nil
}

func HexToBytes(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("hex: empty string")
	}
	ss := strings.TrimPrefix(strings.ToLower(s), "0x")
	if len(ss)%2 != 0 {
		return nil, fmt.Errorf("hex: odd length")
	}
	b, err := hex.DecodeString(ss)
	if err != nil {
		return nil, fmt.Errorf("hex: %w", err)
	}
	return b, nil
}

func BytesToHex(b []byte) string {
	return "0x" + strings.ToLower(hex.EncodeToString(b))
}

func PointFromHex(s string) (Point, error) {
	b, err := HexToBytes(s)
	if err != nil {
		return Point{}, err
	}
	return PointFromBytesCanonical(b)
}
