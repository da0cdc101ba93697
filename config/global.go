package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/holiman/uint256"

	"evmbridge/crypto"
	nativecommon "evmbridge/native/common"
	"evmbridge/native/migrate"
)

// MigrationParams parses the migration and quota sections into engine
// parameters.
func (c *Config) MigrationParams() (migrate.Params, error) {
	params := migrate.DefaultParams()
	params.BaseSlot = c.Migration.BaseSlot
	params.MaxScanPairs = c.Migration.MaxScanPairs
	params.ViewCallGas = c.Migration.ViewCallGas
	params.Quota = nativecommon.Quota{
		MaxRequestsPerEpoch: c.Quota.MaxRequestsPerEpoch,
		MaxItemsPerEpoch:    c.Quota.MaxItemsPerEpoch,
		EpochSeconds:        c.Quota.EpochSeconds,
	}

	var err error
	if params.AdminAccount, err = parseOptionalAccount(c.Migration.AdminAccount); err != nil {
		return params, fmt.Errorf("invalid migration.AdminAccount: %w", err)
	}
	if params.PalletAccount, err = parseOptionalAccount(c.Migration.PalletAccount); err != nil {
		return params, fmt.Errorf("invalid migration.PalletAccount: %w", err)
	}
	deposit, err := parseUintAmount(c.Migration.CollectionDeposit)
	if err != nil {
		return params, fmt.Errorf("invalid migration.CollectionDeposit: %w", err)
	}
	params.CollectionDeposit = deposit
	return params, nil
}

// ReplayAuthority returns the configured bootstrap authority. ok is false when
// none is set.
func (c *Config) ReplayAuthority() (crypto.AccountID, bool, error) {
	id, err := parseOptionalAccount(c.Replay.Authority)
	if err != nil {
		return crypto.AccountID{}, false, fmt.Errorf("invalid replay.Authority: %w", err)
	}
	return id, !id.IsZero(), nil
}

// MinimumBalance parses the ledger existence floor.
func (c *Config) MinimumBalance() (*uint256.Int, error) {
	amount, err := parseUintAmount(c.Replay.MinimumBalance)
	if err != nil {
		return nil, fmt.Errorf("invalid replay.MinimumBalance: %w", err)
	}
	return amount, nil
}

// PauseView converts the pause flags into the view consulted by the engines.
func (c *Config) PauseView() nativecommon.Pauses {
	return nativecommon.Pauses{
		nativecommon.ModuleReplay:  c.Pauses.Replay,
		nativecommon.ModuleMigrate: c.Pauses.Migrate,
		nativecommon.ModuleClaim:   c.Pauses.Claim,
	}
}

func parseOptionalAccount(raw string) (crypto.AccountID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return crypto.AccountID{}, nil
	}
	return crypto.ParseAccountID(trimmed)
}

// parseUintAmount accepts a base-10 amount; an empty string is zero.
func parseUintAmount(raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return new(uint256.Int), nil
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("amount %q must be a non-negative integer", raw)
	}
	amount, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("amount %q exceeds 256 bits", raw)
	}
	return amount, nil
}

// WebhookSecret reads the webhook signing secret. It returns nil when webhook
// delivery is disabled.
func (c *Config) WebhookSecret() ([]byte, error) {
	if strings.TrimSpace(c.Webhook.Endpoint) == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(c.Webhook.SecretFile)
	if err != nil {
		return nil, fmt.Errorf("webhook: read secret: %w", err)
	}
	secret := strings.TrimSpace(string(raw))
	if secret == "" {
		return nil, fmt.Errorf("webhook: secret file %s is empty", c.Webhook.SecretFile)
	}
	return []byte(secret), nil
}
