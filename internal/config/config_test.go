package config

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, uint64(31337), cfg.ChainID)
	require.Equal(t, "socket", cfg.ABCI.Transport)
	require.Equal(t, 2*time.Minute, cfg.Relay.ClockSkew)
	require.Equal(t, uint64(365), cfg.Relay.MaxDurationDays)
}

func TestWriteDefault_ThenOverride(t *testing.T) {
	home := t.TempDir()
	path, err := WriteDefault(home)
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err)

	// Rewriting keeps the existing file.
	require.NoError(t, os.WriteFile(path, []byte("chain_id = 7\ncontract = \"0x00000000000000000000000000000000000000c0\"\n[relay]\nclock_skew = \"5s\"\n"), 0o644))
	_, err = WriteDefault(home)
	require.NoError(t, err)

	t.Setenv("GRIDD_RELAY_LISTEN", "127.0.0.1:9999")
	cfg, err := Load(home)
	require.NoError(t, err)
	require.Equal(t, uint64(7), cfg.ChainID)
	require.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000c0"), cfg.ContractAddress())
	require.Equal(t, 5*time.Second, cfg.Relay.ClockSkew)
	require.Equal(t, "127.0.0.1:9999", cfg.Relay.Listen)
}

func TestValidate(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	bad := cfg
	bad.Contract = "nope"
	require.Error(t, bad.Validate())

	bad = cfg
	bad.ABCI.Transport = "http"
	require.Error(t, bad.Validate())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Level: "info", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)
	logger.Info("hello", "k", "v")
	require.Contains(t, buf.String(), `"k":"v"`)

	_, err = LogConfig{Level: "loud"}.NewLogger(&buf)
	require.Error(t, err)
}
