package fhe

import (
	"crypto/rand"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"obscuraplay/internal/gcrypto"
)

const (
	inputAADDomain   = "obscura/input/aad/v0"
	inputProofDomain = "obscura/input/pok/v0"
)

// EncryptedInput is a client-supplied ciphertext and its proof.
//
// Ciphertext layout: type(1) || sealed box. The box is sealed to the network key with
// associated data naming the caller and the target contract, and Proof is a Schnorr proof
// of knowledge of the sealing randomness whose transcript binds the same pair, so an input
// cannot be replayed by another caller or against another contract.
type EncryptedInput struct {
	Ciphertext hexutil.Bytes `json:"ciphertext"`
	Proof      hexutil.Bytes `json:"proof"`
}

func (in EncryptedInput) Type() (Type, error) {
	if len(in.Ciphertext) < 1+gcrypto.SealOverhead {
		return 0, ErrInvalidCiphertext.Wrap("ciphertext too short")
	}
	t := Type(in.Ciphertext[0])
	if !t.Valid() {
		return 0, ErrTypeMismatch.Wrapf("unsupported type %d", uint8(t))
	}
	return t, nil
}

// Handle is the handle the engine assigns to this input once verified.
func (in EncryptedInput) Handle(caller, contract common.Address) Handle {
	var typ Type
	if len(in.Ciphertext) > 0 {
		typ = Type(in.Ciphertext[0])
	}
	return InputHandle(in.Ciphertext, caller, contract, typ)
}

func inputAAD(caller, contract common.Address, typ Type) []byte {
	aad := make([]byte, 0, len(inputAADDomain)+2*common.AddressLength+1)
	aad = append(aad, inputAADDomain...)
	aad = append(aad, caller.Bytes()...)
	aad = append(aad, contract.Bytes()...)
	return append(aad, byte(typ))
}

// VerifyInputProof checks the proof against (caller, contract). It needs no secret and
// is safe to run in CheckTx.
func VerifyInputProof(in EncryptedInput, caller, contract common.Address) error {
	if _, err := in.Type(); err != nil {
		return ErrInvalidProof.Wrap(err.Error())
	}
	u, err := gcrypto.SealedPoint(in.Ciphertext[1:])
	if err != nil {
		return ErrInvalidProof.Wrap(err.Error())
	}
	proof, err := gcrypto.DecodeSchnorrProof(in.Proof)
	if err != nil {
		return ErrInvalidProof.Wrap(err.Error())
	}
	ok, err := gcrypto.SchnorrVerify(inputProofDomain, u, proof, caller.Bytes(), contract.Bytes(), in.Ciphertext)
	if err != nil {
		return ErrInvalidProof.Wrap(err.Error())
	}
	if !ok {
		return ErrInvalidProof.Wrap("proof does not match caller/contract binding")
	}
	return nil
}

// OpenInput decrypts a verified input with the network secret key.
func OpenInput(networkSecret gcrypto.Scalar, in EncryptedInput, caller, contract common.Address) (Plaintext, error) {
	typ, err := in.Type()
	if err != nil {
		return Plaintext{}, err
	}
	raw, err := gcrypto.Open(networkSecret, in.Ciphertext[1:], inputAAD(caller, contract, typ))
	if err != nil {
		return Plaintext{}, ErrInvalidProof.Wrap(err.Error())
	}
	return DecodePlaintext(typ, raw)
}

// InputBuilder encrypts client values for one (contract, caller) pair.
type InputBuilder struct {
	networkKey gcrypto.Point
	contract   common.Address
	caller     common.Address
	rand       io.Reader
	values     []Plaintext
}

func NewInputBuilder(networkKey gcrypto.Point, contract, caller common.Address) *InputBuilder {
	return &InputBuilder{
		networkKey: networkKey,
		contract:   contract,
		caller:     caller,
		rand:       rand.Reader,
	}
}

func (b *InputBuilder) WithRand(r io.Reader) *InputBuilder {
	b.rand = r
	return b
}

func (b *InputBuilder) Add8(v uint8) *InputBuilder {
	b.values = append(b.values, Uint8(v))
	return b
}

func (b *InputBuilder) AddAddress(a common.Address) *InputBuilder {
	b.values = append(b.values, AddressValue(a))
	return b
}

func (b *InputBuilder) Encrypt() ([]EncryptedInput, error) {
	out := make([]EncryptedInput, 0, len(b.values))
	for _, v := range b.values {
		raw, err := v.Bytes()
		if err != nil {
			return nil, err
		}
		r, err := gcrypto.RandomScalar(b.rand)
		if err != nil {
			return nil, err
		}
		box, err := gcrypto.SealWithScalar(b.networkKey, r, raw, inputAAD(b.caller, b.contract, v.Type))
		if err != nil {
			return nil, err
		}
		ct := append([]byte{byte(v.Type)}, box...)

		w, err := gcrypto.RandomScalar(b.rand)
		if err != nil {
			return nil, err
		}
		proof, err := gcrypto.SchnorrProve(inputProofDomain, r, w, b.caller.Bytes(), b.contract.Bytes(), ct)
		if err != nil {
			return nil, err
		}
		out = append(out, EncryptedInput{Ciphertext: ct, Proof: gcrypto.EncodeSchnorrProof(proof)})
	}
	return out, nil
}
