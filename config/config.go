package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"evmbridge/core/evm"
)

const secretBytes = 32

type Config struct {
	DataDir     string `toml:"DataDir"`
	RPCAddress  string `toml:"RPCAddress"`
	Environment string `toml:"Environment"`
	LogFile     string `toml:"LogFile"`
	AuditDSN    string `toml:"AuditDSN"`

	Database  Database  `toml:"database"`
	Auth      Auth      `toml:"auth"`
	RateLimit RateLimit `toml:"ratelimit"`
	Telemetry Telemetry `toml:"telemetry"`
	Replay    Replay    `toml:"replay"`
	Migration Migration `toml:"migration"`
	Pauses    Pauses    `toml:"pauses"`
	Quota     Quota     `toml:"quota"`
	Webhook   Webhook   `toml:"webhook"`
}

// Load loads the configuration from the given path. A missing file is
// replaced by a persisted default.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0].String())
	}

	if cfg.Auth.Enabled {
		if err := ensureSecret(path, cfg); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
	return cfg, nil
}

// Default returns the configuration written for a fresh install.
func Default() *Config {
	return &Config{
		DataDir:     "./bridge-data",
		RPCAddress:  "127.0.0.1:8645",
		Environment: "local",
		AuditDSN:    "file::memory:?cache=shared",
		Database:    Database{CacheMB: 64, Handles: 128},
		Auth: Auth{
			Enabled:          true,
			Issuer:           "evmbridge",
			Audience:         "bridged",
			ScopeClaim:       "scope",
			ClockSkewSeconds: 120,
		},
		RateLimit: RateLimit{RequestsPerMinute: 600, Burst: 60},
		Telemetry: Telemetry{Endpoint: "localhost:4318", SampleRatio: 1},
		Replay:    Replay{MinimumBalance: "0", GasLimit: evm.DefaultBlockGasLimit},
		Migration: Migration{
			BaseSlot:          evm.DefaultOwnerSlot,
			MaxScanPairs:      10_000,
			CollectionDeposit: "0",
		},
		Quota: Quota{MaxRequestsPerEpoch: 60, MaxItemsPerEpoch: 1_000, EpochSeconds: 3600},
	}
}

// ensureSecret provisions the HMAC secret file used to verify bearer tokens.
func ensureSecret(configPath string, cfg *Config) error {
	secretPath := cfg.Auth.HMACSecretFile
	if secretPath == "" {
		secretPath = defaultSecretPath(configPath)
	}

	if _, err := os.Stat(secretPath); os.IsNotExist(err) {
		if err := writeSecret(secretPath); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.Auth.HMACSecretFile != secretPath {
		cfg.Auth.HMACSecretFile = secretPath
		return persist(configPath, cfg)
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	secretPath := defaultSecretPath(path)
	if err := writeSecret(secretPath); err != nil {
		return nil, err
	}
	cfg.Auth.HMACSecretFile = secretPath

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadSecret returns the trimmed contents of the configured HMAC secret file.
func (c *Config) ReadSecret() (string, error) {
	if strings.TrimSpace(c.Auth.HMACSecretFile) == "" {
		return "", fmt.Errorf("auth: HMACSecretFile not configured")
	}
	raw, err := os.ReadFile(c.Auth.HMACSecretFile)
	if err != nil {
		return "", fmt.Errorf("auth: read secret: %w", err)
	}
	secret := strings.TrimSpace(string(raw))
	if secret == "" {
		return "", fmt.Errorf("auth: secret file %s is empty", c.Auth.HMACSecretFile)
	}
	return secret, nil
}

func writeSecret(path string) error {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return err
	}
	if err := ensureDir(path); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(hex.EncodeToString(buf)+"\n"), 0o600)
}

func persist(path string, cfg *Config) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func defaultSecretPath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "jwt.secret")
}
