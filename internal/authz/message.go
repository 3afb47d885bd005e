package authz

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"obscuraplay/internal/relay/types"
)

const (
	DomainName    = "Decryption"
	DomainVersion = "1"

	PrimaryType = "UserDecryptRequestVerification"

	// MaxContracts bounds the contract scope of a single authorization.
	MaxContracts = 10

	Day = 24 * time.Hour

	// Window arithmetic stays inside time.Duration and time.Unix ranges.
	maxDurationDays = 36500
	maxTimestamp    = 1 << 40
)

// Domain separates signatures by verifier deployment and chain.
type Domain struct {
	Name              string         `json:"name"`
	Version           string         `json:"version"`
	ChainID           uint64         `json:"chainId"`
	VerifyingContract common.Address `json:"verifyingContract"`
}

func NewDomain(chainID uint64, verifyingContract common.Address) Domain {
	return Domain{
		Name:              DomainName,
		Version:           DomainVersion,
		ChainID:           chainID,
		VerifyingContract: verifyingContract,
	}
}

// Request is the message a holder signs to open a decryption window.
type Request struct {
	PublicKey      hexutil.Bytes    `json:"publicKey"`
	Contracts      []common.Address `json:"contractAddresses"`
	StartTimestamp uint64           `json:"startTimestamp"` // unix seconds
	DurationDays   uint64           `json:"durationDays"`
	ExtraData      hexutil.Bytes    `json:"extraData"`
}

func (r Request) Start() time.Time {
	return time.Unix(int64(r.StartTimestamp), 0)
}

func (r Request) End() time.Time {
	return r.Start().Add(time.Duration(r.DurationDays) * Day)
}

func (r Request) InScope(contract common.Address) bool {
	for _, c := range r.Contracts {
		if c == contract {
			return true
		}
	}
	return false
}

// ValidateRequest checks the shape of r. maxDays of zero means no upper bound.
func ValidateRequest(r Request, maxDays uint64) error {
	if len(r.PublicKey) == 0 {
		return types.ErrInvalidRequest.Wrap("missing public key")
	}
	if len(r.Contracts) == 0 || len(r.Contracts) > MaxContracts {
		return types.ErrInvalidRequest.Wrapf("contract scope must hold 1..%d addresses, got %d", MaxContracts, len(r.Contracts))
	}
	seen := make(map[common.Address]struct{}, len(r.Contracts))
	for _, c := range r.Contracts {
		if c == (common.Address{}) {
			return types.ErrInvalidRequest.Wrap("zero contract address in scope")
		}
		if _, dup := seen[c]; dup {
			return types.ErrInvalidRequest.Wrapf("duplicate contract %s in scope", c.Hex())
		}
		seen[c] = struct{}{}
	}
	if r.DurationDays == 0 {
		return types.ErrInvalidRequest.Wrap("durationDays must be positive")
	}
	if maxDays > 0 && r.DurationDays > maxDays {
		return types.ErrInvalidRequest.Wrapf("durationDays %d exceeds limit %d", r.DurationDays, maxDays)
	}
	if r.DurationDays > maxDurationDays {
		return types.ErrInvalidRequest.Wrapf("durationDays %d out of range", r.DurationDays)
	}
	if r.StartTimestamp > maxTimestamp {
		return types.ErrInvalidRequest.Wrap("startTimestamp out of range")
	}
	return nil
}

// TypedData renders r as EIP-712 typed data under d.
func TypedData(d Domain, r Request) apitypes.TypedData {
	contracts := make([]interface{}, len(r.Contracts))
	for i, c := range r.Contracts {
		contracts[i] = c.Hex()
	}
	extra := r.ExtraData
	if extra == nil {
		extra = hexutil.Bytes{}
	}
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			PrimaryType: {
				{Name: "publicKey", Type: "bytes"},
				{Name: "contractAddresses", Type: "address[]"},
				{Name: "startTimestamp", Type: "uint256"},
				{Name: "durationDays", Type: "uint256"},
				{Name: "extraData", Type: "bytes"},
			},
		},
		PrimaryType: PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              d.Name,
			Version:           d.Version,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).SetUint64(d.ChainID)),
			VerifyingContract: d.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"publicKey":         hexutil.Encode(r.PublicKey),
			"contractAddresses": contracts,
			"startTimestamp":    strconv.FormatUint(r.StartTimestamp, 10),
			"durationDays":      strconv.FormatUint(r.DurationDays, 10),
			"extraData":         hexutil.Encode(extra),
		},
	}
}

// Hash is the EIP-712 digest keccak256(0x1901 || domainSeparator || hashStruct(r)).
func Hash(d Domain, r Request) ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(TypedData(d, r))
	if err != nil {
		return nil, fmt.Errorf("hash typed data: %w", err)
	}
	return digest, nil
}
