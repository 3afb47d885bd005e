package app

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"obscuraplay/internal/codec"
	"obscuraplay/internal/ledger/types"
	"obscuraplay/internal/state"
)

// requirePlayerAuth checks that env is signed by player for this deployment and carries a
// fresh nonce. It returns the nonce, which is recorded whether or not the tx then succeeds.
func requirePlayerAuth(st *state.State, d codec.SignDomain, env codec.TxEnvelope, player common.Address) (uint64, error) {
	if env.Nonce == "" {
		return 0, types.ErrUnauthenticated.Wrap("missing tx.nonce")
	}
	nonce, err := strconv.ParseUint(env.Nonce, 10, 64)
	if err != nil {
		return 0, types.ErrUnauthenticated.Wrapf("invalid tx.nonce %q", env.Nonce)
	}
	if env.Signer == "" {
		return 0, types.ErrUnauthenticated.Wrap("missing tx.signer")
	}
	if len(env.Sig) == 0 {
		return 0, types.ErrUnauthenticated.Wrap("missing tx.sig")
	}
	if !common.IsHexAddress(env.Signer) || common.HexToAddress(env.Signer) != player {
		return 0, types.ErrUnauthenticated.Wrapf("tx signer mismatch: signer=%q want=%q", env.Signer, player.Hex())
	}
	signer, err := codec.RecoverSigner(env, d)
	if err != nil {
		return 0, types.ErrUnauthenticated.Wrap(err.Error())
	}
	if signer != player {
		return 0, types.ErrUnauthenticated.Wrap("invalid signature")
	}
	if last, ok := st.NonceMax[player]; ok && nonce <= last {
		return 0, types.ErrReplayedNonce.Wrapf("nonce %d, last accepted %d", nonce, last)
	}
	return nonce, nil
}
