package relay

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"obscuraplay/internal/fhe"
)

// ACL is a read-only view of ledger grants.
type ACL interface {
	Issued(h fhe.Handle) bool
	CanDecrypt(h fhe.Handle, requester, contract common.Address) bool
	IsPublic(h fhe.Handle) bool
}

// GrantReader gives the relay a consistent view of the ledger grants for the duration
// of fn. The relay never writes ledger state.
type GrantReader interface {
	ReadGrants(ctx context.Context, fn func(ACL) error) error
}
