package config

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"revenueos/crypto"
)

// Config carries the revenued daemon settings.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	Origin        string `toml:"Origin"`
	VaultAddress  string `toml:"VaultAddress"`
	Environment   string `toml:"Environment"`
}

const (
	defaultListenAddress = ":8645"
	defaultDataDir       = "./revenued-data"
	defaultOrigin        = "http://localhost:3000"
)

// custodyLabel seeds the built-in custody address used when no vault is
// configured, the same way module accounts are derived from fixed labels.
const custodyLabel = "revenueos/custody"

// DefaultVaultAddress returns the built-in custody account.
func DefaultVaultAddress() crypto.Address {
	digest := sha256.Sum256([]byte(custodyLabel))
	return crypto.NewAddress(crypto.RVOPrefix, digest[:crypto.AddressLength])
}

// Load reads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = defaultListenAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = defaultDataDir
	}
	if strings.TrimSpace(cfg.Origin) == "" {
		cfg.Origin = defaultOrigin
	}
	if strings.TrimSpace(cfg.VaultAddress) == "" {
		cfg.VaultAddress = DefaultVaultAddress().String()
	}
}

func validate(cfg *Config) error {
	if _, err := crypto.DecodeAddress(cfg.VaultAddress); err != nil {
		return fmt.Errorf("config: invalid VaultAddress: %w", err)
	}
	return nil
}

// Vault decodes the configured custody address.
func (c *Config) Vault() (crypto.Address, error) {
	return crypto.DecodeAddress(c.VaultAddress)
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
