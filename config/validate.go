package config

import (
	"fmt"
	"net"
	"strings"
)

var (
	// MaxScanPairsLimit caps the per-call scan bound an operator may configure.
	MaxScanPairsLimit = uint64(1_000_000)
)

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must be set")
	}
	if _, _, err := net.SplitHostPort(c.RPCAddress); err != nil {
		return fmt.Errorf("RPCAddress: %w", err)
	}
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.HMACSecretFile) == "" {
		return fmt.Errorf("auth: HMACSecretFile required when auth is enabled")
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit: values must not be negative")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0, 1]")
	}
	if c.Migration.MaxScanPairs == 0 || c.Migration.MaxScanPairs > MaxScanPairsLimit {
		return fmt.Errorf("migration: MaxScanPairs must be within [1, %d]", MaxScanPairsLimit)
	}
	if c.Quota.MaxRequestsPerEpoch > 0 && c.Quota.EpochSeconds == 0 {
		return fmt.Errorf("quota: EpochSeconds required when a request quota is set")
	}
	if strings.TrimSpace(c.Webhook.Endpoint) != "" && strings.TrimSpace(c.Webhook.SecretFile) == "" {
		return fmt.Errorf("webhook: SecretFile required when Endpoint is set")
	}
	if c.Webhook.QueueSize < 0 {
		return fmt.Errorf("webhook: QueueSize must not be negative")
	}
	if _, err := c.MigrationParams(); err != nil {
		return err
	}
	if _, _, err := c.ReplayAuthority(); err != nil {
		return err
	}
	if _, err := c.MinimumBalance(); err != nil {
		return err
	}
	return nil
}
