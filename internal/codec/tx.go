package codec

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"obscuraplay/internal/fhe"
)

// TxEnvelope is the transaction container carried in CometBFT tx bytes.
//
// Every grid tx is signed: Sig is a 65-byte secp256k1 recoverable signature over
// SignBytes(domain, type, nonce, signer, value) and the recovered address must equal
// Signer.
// Nonce is a decimal u64 that must strictly increase per signer.
type TxEnvelope struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`

	Nonce  string        `json:"nonce,omitempty"`
	Signer string        `json:"signer,omitempty"` // 0x-hex address
	Sig    hexutil.Bytes `json:"sig,omitempty"`
}

func DecodeTxEnvelope(txBytes []byte) (TxEnvelope, error) {
	var env TxEnvelope
	if err := json.Unmarshal(txBytes, &env); err != nil {
		return TxEnvelope{}, fmt.Errorf("invalid tx json: %w", err)
	}
	if env.Type == "" {
		return TxEnvelope{}, fmt.Errorf("missing tx.type")
	}
	return env, nil
}

// NewTxEnvelope wraps an unsigned tx body.
func NewTxEnvelope(typ string, value any) (TxEnvelope, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return TxEnvelope{}, fmt.Errorf("encode tx value: %w", err)
	}
	return TxEnvelope{Type: typ, Value: b}, nil
}

// ---- Grid ----

type GridJoinTx struct {
	Player string `json:"player"`
}

type GridMoveTx struct {
	Player string             `json:"player"`
	X      fhe.EncryptedInput `json:"x"`
	Y      fhe.EncryptedInput `json:"y"`
}

type GridDiscloseTx struct {
	Player string `json:"player"`
}
