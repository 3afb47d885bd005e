package authz

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"obscuraplay/internal/relay/types"
)

// Sign returns a 65-byte signature with V in {27, 28}.
func Sign(d Domain, r Request, key *ecdsa.PrivateKey) ([]byte, error) {
	digest, err := Hash(d, r)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return nil, fmt.Errorf("sign authorization: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// Recover returns the address that signed r under d.
func Recover(d Domain, r Request, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, types.ErrInvalidSignature.Wrapf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	digest, err := Hash(d, r)
	if err != nil {
		return common.Address{}, types.ErrInvalidRequest.Wrap(err.Error())
	}
	norm := make([]byte, crypto.SignatureLength)
	copy(norm, sig)
	if norm[crypto.RecoveryIDOffset] >= 27 {
		norm[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(digest, norm)
	if err != nil {
		return common.Address{}, types.ErrInvalidSignature.Wrap(err.Error())
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify checks that holder signed r under d and that now falls inside the window
// [start-skew, start+durationDays].
func Verify(d Domain, r Request, sig []byte, holder common.Address, now time.Time, skew time.Duration) error {
	signer, err := Recover(d, r, sig)
	if err != nil {
		return err
	}
	if signer != holder {
		return types.ErrInvalidSignature.Wrapf("signed by %s, not %s", signer.Hex(), holder.Hex())
	}
	return CheckWindow(r, now, skew)
}

func CheckWindow(r Request, now time.Time, skew time.Duration) error {
	if now.Add(skew).Before(r.Start()) {
		return types.ErrAuthorizationNotYetValid.Wrapf("starts at %s", r.Start().UTC().Format(time.RFC3339))
	}
	if !now.Before(r.End()) {
		return types.ErrAuthorizationExpired.Wrapf("expired at %s", r.End().UTC().Format(time.RFC3339))
	}
	return nil
}
