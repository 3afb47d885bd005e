package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const (
	EnvPrefix  = "GRIDD"
	FileName   = "gridd.toml"
	DefaultDir = ".gridd"
)

type ABCIConfig struct {
	Addr      string `mapstructure:"addr"`
	Transport string `mapstructure:"transport"`
}

type RelayConfig struct {
	Listen            string        `mapstructure:"listen"`
	VerifyingContract string        `mapstructure:"verifying_contract"`
	MaxDurationDays   uint64        `mapstructure:"max_duration_days"`
	ClockSkew         time.Duration `mapstructure:"clock_skew"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // plain | json
}

type Config struct {
	ChainID  uint64      `mapstructure:"chain_id"`
	Contract string      `mapstructure:"contract"`
	ABCI     ABCIConfig  `mapstructure:"abci"`
	Relay    RelayConfig `mapstructure:"relay"`
	Log      LogConfig   `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("chain_id", 31337)
	v.SetDefault("contract", "0x0000000000000000000000000000000000000A11")
	v.SetDefault("abci.addr", "tcp://127.0.0.1:26658")
	v.SetDefault("abci.transport", "socket")
	v.SetDefault("relay.listen", "127.0.0.1:8545")
	v.SetDefault("relay.verifying_contract", "0x0000000000000000000000000000000000000D0C")
	v.SetDefault("relay.max_duration_days", 365)
	v.SetDefault("relay.clock_skew", "2m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "plain")
}

func Path(home string) string {
	return filepath.Join(home, "config", FileName)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads <home>/config/gridd.toml if present. GRIDD_* environment variables
// override file values, e.g. GRIDD_RELAY_LISTEN.
func Load(home string) (Config, error) {
	v := newViper()
	v.SetConfigFile(Path(home))
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WriteDefault writes a config file with default values. An existing file is kept.
func WriteDefault(home string) (string, error) {
	path := Path(home)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("mkdir config dir: %w", err)
	}
	v := newViper()
	if err := v.SafeWriteConfigAs(path); err != nil {
		var exists viper.ConfigFileAlreadyExistsError
		if errors.As(err, &exists) {
			return path, nil
		}
		return "", fmt.Errorf("write config: %w", err)
	}
	return path, nil
}

func (c Config) Validate() error {
	if c.ChainID == 0 {
		return fmt.Errorf("chain_id must be set")
	}
	if !common.IsHexAddress(c.Contract) {
		return fmt.Errorf("contract %q is not an address", c.Contract)
	}
	if !common.IsHexAddress(c.Relay.VerifyingContract) {
		return fmt.Errorf("relay.verifying_contract %q is not an address", c.Relay.VerifyingContract)
	}
	if c.Relay.ClockSkew < 0 {
		return fmt.Errorf("relay.clock_skew must not be negative")
	}
	switch c.ABCI.Transport {
	case "socket", "grpc":
	default:
		return fmt.Errorf("abci.transport must be socket or grpc, got %q", c.ABCI.Transport)
	}
	return nil
}

func (c Config) ContractAddress() common.Address {
	return common.HexToAddress(c.Contract)
}

func (c Config) VerifyingContract() common.Address {
	return common.HexToAddress(c.Relay.VerifyingContract)
}

// NewLogger builds the process logger described by c.
func (c LogConfig) NewLogger(w io.Writer) (log.Logger, error) {
	lvl, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	opts := []log.Option{log.LevelOption(lvl)}
	switch c.Format {
	case "", "plain":
	case "json":
		opts = append(opts, log.OutputJSONOption())
	default:
		return nil, fmt.Errorf("log.format must be plain or json, got %q", c.Format)
	}
	return log.NewLogger(w, opts...), nil
}
