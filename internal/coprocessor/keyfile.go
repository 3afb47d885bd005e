package coprocessor

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"obscuraplay/internal/gcrypto"
)

const NetworkKeyFile = "network_key.json"

type networkKeyJSON struct {
	PublicKey string `json:"publicKey"`
	SecretKey string `json:"secretKey"`
}

// LoadOrGenerateNetworkKey reads <dir>/network_key.json, creating it on first use.
func LoadOrGenerateNetworkKey(dir string) (gcrypto.KeyPair, error) {
	path := filepath.Join(dir, NetworkKeyFile)
	b, err := os.ReadFile(path)
	if err == nil {
		var nk networkKeyJSON
		if err := json.Unmarshal(b, &nk); err != nil {
			return gcrypto.KeyPair{}, fmt.Errorf("decode network key: %w", err)
		}
		raw, err := gcrypto.HexToBytes(nk.SecretKey)
		if err != nil {
			return gcrypto.KeyPair{}, fmt.Errorf("decode network key: %w", err)
		}
		return gcrypto.KeyPairFromSecret(raw)
	}
	if !os.IsNotExist(err) {
		return gcrypto.KeyPair{}, fmt.Errorf("read network key: %w", err)
	}

	kp, err := gcrypto.GenerateKeyPair(rand.Reader)
	if err != nil {
		return gcrypto.KeyPair{}, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return gcrypto.KeyPair{}, fmt.Errorf("mkdir key dir: %w", err)
	}
	out, err := json.MarshalIndent(networkKeyJSON{
		PublicKey: gcrypto.BytesToHex(kp.Public.Bytes()),
		SecretKey: gcrypto.BytesToHex(kp.Secret.Bytes()),
	}, "", "  ")
	if err != nil {
		return gcrypto.KeyPair{}, fmt.Errorf("encode network key: %w", err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return gcrypto.KeyPair{}, fmt.Errorf("write network key: %w", err)
	}
	return kp, nil
}
