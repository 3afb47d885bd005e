package relay

import (
	"crypto/ecdsa"
	"crypto/rand"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"obscuraplay/internal/authz"
)

// DefaultDurationDays is the window a fresh session asks for.
const DefaultDurationDays = 10

// Session is a signed decryption authorization together with the ephemeral key it
// names. It can be reused for any number of UserDecrypt calls until it expires.
type Session struct {
	Holder    common.Address
	Domain    authz.Domain
	Request   authz.Request
	Signature []byte
	KeyProof  []byte

	key *authz.Keypair
}

// NewSession generates an ephemeral keypair, builds the authorization for contracts
// starting at start, and signs it with holderKey.
func NewSession(domain authz.Domain, holderKey *ecdsa.PrivateKey, contracts []common.Address, start time.Time, durationDays uint64) (*Session, error) {
	if durationDays == 0 {
		durationDays = DefaultDurationDays
	}
	kp, err := authz.GenerateKeypair(rand.Reader)
	if err != nil {
		return nil, err
	}
	req := authz.Request{
		PublicKey:      kp.PublicKey(),
		Contracts:      append([]common.Address(nil), contracts...),
		StartTimestamp: uint64(start.Unix()),
		DurationDays:   durationDays,
	}
	if err := authz.ValidateRequest(req, 0); err != nil {
		return nil, err
	}
	holder := crypto.PubkeyToAddress(holderKey.PublicKey)
	sig, err := authz.Sign(domain, req, holderKey)
	if err != nil {
		return nil, err
	}
	proof, err := kp.ProvePossession(holder, req)
	if err != nil {
		return nil, err
	}
	return &Session{
		Holder:    holder,
		Domain:    domain,
		Request:   req,
		Signature: sig,
		KeyProof:  proof,
		key:       kp,
	}, nil
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.Request.End())
}
