package authz

import (
	"crypto/rand"
	"encoding/binary"
	"io"

	"github.com/ethereum/go-ethereum/common"

	"obscuraplay/internal/gcrypto"
	"obscuraplay/internal/relay/types"
)

const possessionDomain = "obscura/authz/possession/v1"

// Keypair is the ephemeral key that results are sealed to. The secret half stays in
// the process that generated it.
type Keypair struct {
	kp gcrypto.KeyPair
}

func GenerateKeypair(r io.Reader) (*Keypair, error) {
	if r == nil {
		r = rand.Reader
	}
	kp, err := gcrypto.GenerateKeyPair(r)
	if err != nil {
		return nil, err
	}
	return &Keypair{kp: kp}, nil
}

func (k *Keypair) PublicKey() []byte {
	return k.kp.Public.Bytes()
}

// Open decrypts a value the relay sealed for this key.
func (k *Keypair) Open(box, aad []byte) ([]byte, error) {
	return gcrypto.Open(k.kp.Secret, box, aad)
}

// ProvePossession binds the key to the authorization it is presented with, so a
// request cannot be replayed with a key the presenter does not hold.
func (k *Keypair) ProvePossession(holder common.Address, r Request) ([]byte, error) {
	w, err := gcrypto.RandomScalar(rand.Reader)
	if err != nil {
		return nil, err
	}
	proof, err := gcrypto.SchnorrProve(possessionDomain, k.kp.Secret, w, possessionBinding(holder, r)...)
	if err != nil {
		return nil, err
	}
	return gcrypto.EncodeSchnorrProof(proof), nil
}

// VerifyPossession checks a proof produced by ProvePossession against r.PublicKey.
func VerifyPossession(holder common.Address, r Request, proof []byte) error {
	pk, err := gcrypto.PointFromBytesCanonical(r.PublicKey)
	if err != nil {
		return types.ErrInvalidRequest.Wrapf("public key: %v", err)
	}
	if pk.IsIdentity() {
		return types.ErrInvalidRequest.Wrap("public key is the identity point")
	}
	p, err := gcrypto.DecodeSchnorrProof(proof)
	if err != nil {
		return types.ErrInvalidSignature.Wrapf("key proof: %v", err)
	}
	ok, err := gcrypto.SchnorrVerify(possessionDomain, pk, p, possessionBinding(holder, r)...)
	if err != nil {
		return types.ErrInvalidSignature.Wrapf("key proof: %v", err)
	}
	if !ok {
		return types.ErrInvalidSignature.Wrap("key proof does not verify")
	}
	return nil
}

func possessionBinding(holder common.Address, r Request) [][]byte {
	window := make([]byte, 16)
	binary.BigEndian.PutUint64(window[:8], r.StartTimestamp)
	binary.BigEndian.PutUint64(window[8:], r.DurationDays)
	bind := [][]byte{holder.Bytes(), window}
	for _, c := range r.Contracts {
		bind = append(bind, c.Bytes())
	}
	return bind
}
