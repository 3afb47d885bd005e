package codec

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const txAuthDomain = "obscura/tx/v1"

// SignDomain pins a signature to one deployment: the chain and the grid contract.
type SignDomain struct {
	ChainID  string
	Contract common.Address
}

// SignBytes = DOMAIN || 0x00 || chainID || 0x00 || contract || 0x00 || type || 0x00 ||
// nonce || 0x00 || signer || 0x00 || sha256(value).
func SignBytes(d SignDomain, typ string, value []byte, nonce string, signer string) []byte {
	sum := sha256.Sum256(value)
	out := make([]byte, 0, len(txAuthDomain)+1+len(d.ChainID)+1+common.AddressLength+1+len(typ)+1+len(nonce)+1+len(signer)+1+sha256.Size)
	out = append(out, []byte(txAuthDomain)...)
	out = append(out, 0)
	out = append(out, []byte(d.ChainID)...)
	out = append(out, 0)
	out = append(out, d.Contract.Bytes()...)
	out = append(out, 0)
	out = append(out, []byte(typ)...)
	out = append(out, 0)
	out = append(out, []byte(nonce)...)
	out = append(out, 0)
	out = append(out, []byte(signer)...)
	out = append(out, 0)
	out = append(out, sum[:]...)
	return out
}

// SignTx fills in Nonce, Signer and Sig and returns the encoded tx bytes.
func SignTx(env TxEnvelope, d SignDomain, key *ecdsa.PrivateKey, nonce uint64) ([]byte, error) {
	env.Nonce = strconv.FormatUint(nonce, 10)
	env.Signer = crypto.PubkeyToAddress(key.PublicKey).Hex()
	digest := crypto.Keccak256(SignBytes(d, env.Type, env.Value, env.Nonce, env.Signer))
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	env.Sig = sig
	return json.Marshal(env)
}

// RecoverSigner returns the address that produced env.Sig under d.
func RecoverSigner(env TxEnvelope, d SignDomain) (common.Address, error) {
	if len(env.Sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid tx.sig length: got %d want %d", len(env.Sig), crypto.SignatureLength)
	}
	sig := make([]byte, crypto.SignatureLength)
	copy(sig, env.Sig)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	digest := crypto.Keccak256(SignBytes(d, env.Type, env.Value, env.Nonce, env.Signer))
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
