package gcrypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Sealed boxes are hashed-ElGamal encryptions:
//
//	U = r*G, K = HKDF(r*PK, salt=U), box = U || AEAD_K(plaintext, aad)
//
// Each box uses a fresh key, so the AEAD nonce is fixed at zero.
const SealOverhead = PointBytes + chacha20poly1305.Overhead

const sealInfo = "OBSv1|seal|chacha20poly1305"

func sealKey(shared Point, u Point) ([]byte, error) {
	kdf := hkdf.New(sha256.New, shared.Bytes(), u.Bytes(), []byte(sealInfo))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("seal: derive key: %w", err)
	}
	return key, nil
}

// SealWithScalar seals plaintext to pk using the caller-provided ephemeral scalar r.
// r must never be reused for the same pk.
func SealWithScalar(pk Point, r Scalar, plaintext, aad []byte) ([]byte, error) {
	if r.IsZero() {
		// Zero randomness is valid mathematically but leaks the plaintext.
		return nil, fmt.Errorf("seal: r must be non-zero")
	}
	if pk.IsIdentity() {
		return nil, fmt.Errorf("seal: identity public key")
	}
	u := MulBase(r)
	key, err := sealKey(MulPoint(pk, r), u)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	out := make([]byte, 0, SealOverhead+len(plaintext))
	out = append(out, u.Bytes()...)
	return aead.Seal(out, nonce, plaintext, aad), nil
}

// Seal seals plaintext to pk with fresh randomness from rand.
func Seal(rand io.Reader, pk Point, plaintext, aad []byte) ([]byte, error) {
	r, err := RandomScalar(rand)
	if err != nil {
		return nil, err
	}
	return SealWithScalar(pk, r, plaintext, aad)
}

// Open reverses Seal. Any tampering with the box or a different aad fails.
func Open(sk Scalar, box, aad []byte) ([]byte, error) {
	if len(box) < SealOverhead {
		return nil, fmt.Errorf("open: box too short")
	}
	u, err := PointFromBytesCanonical(box[:PointBytes])
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	key, err := sealKey(MulPoint(u, sk), u)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	pt, err := aead.Open(nil, nonce, box[PointBytes:], aad)
	if err != nil {
		return nil, fmt.Errorf("open: authentication failed")
	}
	return pt, nil
}

// SealedPoint returns the ephemeral point U carried at the front of a box.
func SealedPoint(box []byte) (Point, error) {
	if len(box) < SealOverhead {
		return Point{}, fmt.Errorf("sealed point: box too short")
	}
	return PointFromBytesCanonical(box[:PointBytes])
}
