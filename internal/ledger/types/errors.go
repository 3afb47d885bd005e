package types

import errorsmod "cosmossdk.io/errors"

// grid ledger sentinel errors.
var (
	ErrInvalidRequest  = errorsmod.Register(ModuleName, 2, "invalid request")
	ErrAlreadyJoined   = errorsmod.Register(ModuleName, 3, "player already joined")
	ErrNotJoined       = errorsmod.Register(ModuleName, 4, "player not joined")
	ErrInvalidProof    = errorsmod.Register(ModuleName, 5, "invalid input proof")
	ErrUnauthenticated = errorsmod.Register(ModuleName, 6, "tx authentication failed")
	ErrReplayedNonce   = errorsmod.Register(ModuleName, 7, "nonce not increasing")
	ErrUnknownTx       = errorsmod.Register(ModuleName, 8, "unknown tx type")
	ErrIndexOutOfRange = errorsmod.Register(ModuleName, 9, "player index out of range")
)
