package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultNetworkName  = "ledgersim-local"
	DefaultMaxCallDepth = 16
	DefaultService      = "ledgersim"
	DefaultEnv          = "dev"
)

type Config struct {
	NetworkName  string  `toml:"NetworkName"`
	MaxCallDepth int     `toml:"MaxCallDepth"`
	Gas          Gas     `toml:"Gas"`
	Block        Block   `toml:"Block"`
	Logging      Logging `toml:"Logging"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		NetworkName:  DefaultNetworkName,
		MaxCallDepth: DefaultMaxCallDepth,
		Gas:          DefaultGas(),
		Logging:      Logging{Service: DefaultService, Env: DefaultEnv},
	}
}

// DefaultGas returns the advisory gas schedule.
func DefaultGas() Gas {
	return Gas{
		TxBase:          50_000,
		PerArgByte:      1_500,
		ContractCall:    10_000,
		NestedCall:      10_000,
		AsyncCall:       20_000,
		TokenTransfer:   5_000,
		StorageStore:    10_000,
		StorageLoad:     1_000,
		EventLog:        3_000,
		Deploy:          100_000,
		NFTCreate:       15_000,
		LocalMintOrBurn: 5_000,
	}
}

// Load loads the configuration from the given path. A missing file is created
// with the default values.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	// A [Gas] table replaces the whole schedule.
	cfg.Gas = Gas{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode parses configuration from an in-memory TOML document.
func Decode(data string) (*Config, error) {
	cfg := Default()
	cfg.Gas = Gas{}
	if _, err := toml.Decode(data, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = DefaultNetworkName
	}
	if cfg.MaxCallDepth == 0 {
		cfg.MaxCallDepth = DefaultMaxCallDepth
	}
	if cfg.Gas == (Gas{}) {
		cfg.Gas = DefaultGas()
	}
	if strings.TrimSpace(cfg.Logging.Service) == "" {
		cfg.Logging.Service = DefaultService
	}
	if strings.TrimSpace(cfg.Logging.Env) == "" {
		cfg.Logging.Env = DefaultEnv
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
