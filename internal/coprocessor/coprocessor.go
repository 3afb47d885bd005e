package coprocessor

import (
	"context"
	"fmt"
	"math/big"

	"cosmossdk.io/log"
	dbm "github.com/cosmos/cosmos-db"
	"github.com/ethereum/go-ethereum/common"

	"obscuraplay/internal/fhe"
	"obscuraplay/internal/gcrypto"
)

// Coprocessor is the engine behind the ledger. It holds the network secret key and a
// vault of sealed values keyed by handle; plaintext exists only transiently inside a
// single operation.
type Coprocessor struct {
	db     dbm.DB
	key    gcrypto.KeyPair
	logger log.Logger
}

var _ fhe.Engine = (*Coprocessor)(nil)

func New(db dbm.DB, key gcrypto.KeyPair, logger log.Logger) (*Coprocessor, error) {
	if db == nil {
		return nil, fmt.Errorf("coprocessor: db is nil")
	}
	if key.Secret.IsZero() {
		return nil, fmt.Errorf("coprocessor: network key is unset")
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Coprocessor{
		db:     db,
		key:    key,
		logger: logger.With("module", "coprocessor"),
	}, nil
}

// NetworkKey is the public key clients encrypt inputs to.
func (c *Coprocessor) NetworkKey() gcrypto.Point {
	return c.key.Public
}

func (c *Coprocessor) VerifyInput(ctx context.Context, in fhe.EncryptedInput, caller, contract common.Address, want fhe.Type) (fhe.Handle, error) {
	if err := ctx.Err(); err != nil {
		return fhe.Handle{}, err
	}
	if err := fhe.VerifyInputProof(in, caller, contract); err != nil {
		return fhe.Handle{}, err
	}
	typ, err := in.Type()
	if err != nil {
		return fhe.Handle{}, err
	}
	if typ != want {
		return fhe.Handle{}, fhe.ErrTypeMismatch.Wrapf("input is %s, want %s", typ, want)
	}
	pt, err := fhe.OpenInput(c.key.Secret, in, caller, contract)
	if err != nil {
		return fhe.Handle{}, err
	}
	h := in.Handle(caller, contract)
	if err := c.store(h, pt); err != nil {
		return fhe.Handle{}, err
	}
	c.logger.Debug("input verified", "handle", h.Hex(), "caller", caller.Hex())
	return h, nil
}

// RandBounded stores a uniform value in [0, bound) under out. The draw is keyed by the
// network secret, so the public seed and handle do not determine it.
func (c *Coprocessor) RandBounded(ctx context.Context, out fhe.Handle, bound uint64, seed []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if out.Type() != fhe.TypeUint8 {
		return fhe.ErrTypeMismatch.Wrapf("random output must be %s", fhe.TypeUint8)
	}
	if bound == 0 || bound > 256 {
		return fhe.ErrInvalidCiphertext.Wrapf("random bound %d out of range (1..256)", bound)
	}
	rng, err := newDeterministicRng(c.key.Secret.Bytes(), append(append([]byte(nil), seed...), out[:]...))
	if err != nil {
		return err
	}
	v, err := rng.uniform(bound)
	if err != nil {
		return err
	}
	return c.store(out, fhe.Uint8(uint8(v)))
}

func (c *Coprocessor) TrivialEncrypt(ctx context.Context, out fhe.Handle, pt fhe.Plaintext) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.store(out, pt)
}

func (c *Coprocessor) RemScalar(ctx context.Context, out, a fhe.Handle, m uint64) error {
	if m == 0 {
		return fhe.ErrInvalidCiphertext.Wrap("modulus must be non-zero")
	}
	return c.unaryUint8(ctx, out, a, func(v uint64) uint64 { return v % m })
}

func (c *Coprocessor) AddScalar(ctx context.Context, out, a fhe.Handle, k uint64) error {
	return c.unaryUint8(ctx, out, a, func(v uint64) uint64 { return (v + k) & 0xff })
}

func (c *Coprocessor) Decrypt(ctx context.Context, h fhe.Handle) (fhe.Plaintext, error) {
	if err := ctx.Err(); err != nil {
		return fhe.Plaintext{}, err
	}
	return c.load(h)
}

func (c *Coprocessor) unaryUint8(ctx context.Context, out, a fhe.Handle, f func(uint64) uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if out.Type() != fhe.TypeUint8 {
		return fhe.ErrTypeMismatch.Wrapf("output must be %s", fhe.TypeUint8)
	}
	pt, err := c.load(a)
	if err != nil {
		return err
	}
	v, err := pt.Uint64()
	if err != nil {
		return err
	}
	return c.store(out, fhe.Plaintext{Type: fhe.TypeUint8, Value: new(big.Int).SetUint64(f(v))})
}

// sealScalar derives the sealing randomness from the network secret, the handle and the
// value. Replaying a block rewrites byte-identical boxes, and a handle left behind by a
// rolled-back tx never shares a scalar with a different value stored under it later.
func (c *Coprocessor) sealScalar(h fhe.Handle, raw []byte) (gcrypto.Scalar, error) {
	return gcrypto.HashToScalar("obscura/v1/coprocessor/seal", c.key.Secret.Bytes(), h[:], raw)
}

func (c *Coprocessor) store(h fhe.Handle, pt fhe.Plaintext) error {
	if err := h.Validate(); err != nil {
		return err
	}
	if h.Type() != pt.Type {
		return fhe.ErrTypeMismatch.Wrapf("handle is %s, value is %s", h.Type(), pt.Type)
	}
	raw, err := pt.Bytes()
	if err != nil {
		return err
	}
	r, err := c.sealScalar(h, raw)
	if err != nil {
		return err
	}
	box, err := gcrypto.SealWithScalar(c.key.Public, r, raw, h[:])
	if err != nil {
		return err
	}
	if err := c.db.Set(CiphertextKey(h), box); err != nil {
		return fmt.Errorf("vault set: %w", err)
	}
	return nil
}

func (c *Coprocessor) load(h fhe.Handle) (fhe.Plaintext, error) {
	if err := h.Validate(); err != nil {
		return fhe.Plaintext{}, err
	}
	box, err := c.db.Get(CiphertextKey(h))
	if err != nil {
		return fhe.Plaintext{}, fmt.Errorf("vault get: %w", err)
	}
	if box == nil {
		return fhe.Plaintext{}, fhe.ErrUnknownHandle.Wrap(h.Hex())
	}
	raw, err := gcrypto.Open(c.key.Secret, box, h[:])
	if err != nil {
		return fhe.Plaintext{}, fhe.ErrInvalidCiphertext.Wrapf("%s: %v", h.Hex(), err)
	}
	return fhe.DecodePlaintext(h.Type(), raw)
}
