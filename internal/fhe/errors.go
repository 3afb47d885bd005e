package fhe

import errorsmod "cosmossdk.io/errors"

const Codespace = "fhe"

// Engine sentinel errors.
var (
	ErrInvalidProof      = errorsmod.Register(Codespace, 2, "invalid input proof")
	ErrUnknownHandle     = errorsmod.Register(Codespace, 3, "unknown handle")
	ErrTypeMismatch      = errorsmod.Register(Codespace, 4, "ciphertext type mismatch")
	ErrInvalidCiphertext = errorsmod.Register(Codespace, 5, "invalid ciphertext")
	ErrInvalidHandle     = errorsmod.Register(Codespace, 6, "invalid handle")
)
