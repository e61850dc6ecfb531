package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration. Addresses are hex-encoded 20-byte
// identities.
type Config struct {
	ListenAddress           string `toml:"ListenAddress"`
	DataDir                 string `toml:"DataDir"`
	Owner                   string `toml:"Owner"`
	Vault                   string `toml:"Vault"`
	FeeCollector            string `toml:"FeeCollector"`
	FeeBps                  uint32 `toml:"FeeBps"`
	MinExpirationSeconds    int64  `toml:"MinExpirationSeconds"`
	OracleResultFavorsBuyer bool   `toml:"OracleResultFavorsBuyer"`
}

func defaultConfig() *Config {
	return &Config{
		ListenAddress:        "127.0.0.1:8681",
		DataDir:              "./debazaar-data",
		FeeBps:               250,
		MinExpirationSeconds: 3600,
	}
}

// Load reads the configuration from the given path, writing a commented
// default file on first run.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := defaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := defaultConfig()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks address formats and parameter bounds.
func (c *Config) Validate() error {
	if c.FeeBps > 10_000 {
		return fmt.Errorf("config: FeeBps %d out of range", c.FeeBps)
	}
	if c.MinExpirationSeconds < 0 {
		return fmt.Errorf("config: MinExpirationSeconds must be non-negative")
	}
	for name, value := range map[string]string{
		"Owner":        c.Owner,
		"Vault":        c.Vault,
		"FeeCollector": c.FeeCollector,
	} {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if _, err := c.address(value); err != nil {
			return fmt.Errorf("config: invalid %s address: %w", name, err)
		}
	}
	return nil
}

// Address decodes one of the configured hex addresses. Empty values decode to
// the zero address.
func (c *Config) Address(value string) ([20]byte, error) {
	return c.address(value)
}

func (c *Config) address(value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if trimmed == "" {
		return addr, nil
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, err
	}
	if len(raw) != 20 {
		return addr, fmt.Errorf("expected 20 bytes, got %d", len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}
