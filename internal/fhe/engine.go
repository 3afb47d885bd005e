package fhe

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Evaluator is the ledger-facing half of the cryptographic engine. Every operation
// writes its result under a handle chosen by the caller, so replicas that agree on
// the ledger state agree on the handles.
type Evaluator interface {
	// VerifyInput checks the input's binding to (caller, contract), stores it and
	// returns its handle.
	VerifyInput(ctx context.Context, in EncryptedInput, caller, contract common.Address, want Type) (Handle, error)
	// RandBounded stores a value drawn uniformly from [0, bound) under out.
	RandBounded(ctx context.Context, out Handle, bound uint64, seed []byte) error
	TrivialEncrypt(ctx context.Context, out Handle, pt Plaintext) error
	// RemScalar stores a mod m under out.
	RemScalar(ctx context.Context, out, a Handle, m uint64) error
	// AddScalar stores a + k (wrapping at the type width) under out.
	AddScalar(ctx context.Context, out, a Handle, k uint64) error
}

// Decrypter is the relay-facing half. It must only be reachable from code that has
// already checked access grants.
type Decrypter interface {
	Decrypt(ctx context.Context, h Handle) (Plaintext, error)
}

type Engine interface {
	Evaluator
	Decrypter
}
