package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"obscuraplay/internal/fhe"
)

const (
	PathUserDecrypt   = "/v1/user-decrypt"
	PathPublicDecrypt = "/v1/public-decrypt"
	PathHealth        = "/healthz"
	PathMetrics       = "/metrics"

	HeaderRequestID = "X-Request-Id"
)

type HandleContractPair struct {
	Handle          fhe.Handle     `json:"handle"`
	ContractAddress common.Address `json:"contractAddress"`
}

type RequestValidity struct {
	StartTimestamp uint64 `json:"startTimestamp"` // unix seconds
	DurationDays   uint64 `json:"durationDays"`
}

type UserDecryptRequest struct {
	HandleContractPairs []HandleContractPair `json:"handleContractPairs"`
	RequestValidity     RequestValidity      `json:"requestValidity"`
	ContractAddresses   []common.Address     `json:"contractAddresses"`
	UserAddress         common.Address       `json:"userAddress"`
	PublicKey           hexutil.Bytes        `json:"publicKey"`
	KeyProof            hexutil.Bytes        `json:"keyProof"`
	Signature           hexutil.Bytes        `json:"signature"`
	ExtraData           hexutil.Bytes        `json:"extraData,omitempty"`
}

// SealedValue is a plaintext sealed to the requester's ephemeral key with associated
// data handle || userAddress.
type SealedValue struct {
	Handle fhe.Handle    `json:"handle"`
	Sealed hexutil.Bytes `json:"sealed"`
}

type UserDecryptResponse struct {
	Results []SealedValue `json:"results"`
}

type PublicDecryptRequest struct {
	Handles []fhe.Handle `json:"handles"`
}

type ClearValue struct {
	Handle fhe.Handle `json:"handle"`
	Value  string     `json:"value"`
}

type PublicDecryptResponse struct {
	Results []ClearValue `json:"results"`
}

type ErrorResponse struct {
	Codespace string `json:"codespace"`
	Code      uint32 `json:"code"`
	Message   string `json:"message"`
}
