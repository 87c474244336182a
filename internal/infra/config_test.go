package infra

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validConfigYAML = `
app:
  name: vault
  version: test
vault:
  authority: gov
  synthetic_asset: usdg
  swap_enabled: true
  leverage_enabled: true
  max_leverage_bps: 500000
  liquidation_fee_usd: "5"
  tax_bps: 50
  stable_tax_bps: 20
  mint_burn_fee_bps: 30
  swap_fee_bps: 30
  stable_swap_bps: 4
  margin_fee_bps: 10
  funding_interval: 3600
  funding_rate_factor: 600
  stable_funding_rate_factor: 600
tokens:
  - asset: eth
    decimals: 18
    weight: 10000
    is_shortable: true
    feed_symbol: ETH-USD
  - asset: usdc
    decimals: 6
    weight: 10000
    is_stable: true
storage:
  db_path: /tmp/vault-test.db
logging:
  level: info
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validConfigYAML))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Vault.Authority != "gov" {
		t.Errorf("authority = %q", cfg.Vault.Authority)
	}
	if len(cfg.Tokens) != 2 {
		t.Fatalf("tokens = %d, want 2", len(cfg.Tokens))
	}

	vcfg, err := cfg.VaultConfig()
	if err != nil {
		t.Fatalf("VaultConfig: %v", err)
	}
	if vcfg.MaxLeverageBps != 500000 {
		t.Errorf("max leverage = %d", vcfg.MaxLeverageBps)
	}
	// "5" parses to 5 * 10^30.
	if vcfg.LiquidationFeeUsd.IsZero() {
		t.Error("liquidation fee not parsed")
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("VAULT_AUTHORITY", "ops")
	t.Setenv("VAULT_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(writeConfig(t, validConfigYAML))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Vault.Authority != "ops" {
		t.Errorf("authority = %q, want env override", cfg.Vault.Authority)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want env override", cfg.Logging.Level)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s string) string
	}{
		{"missing authority", func(s string) string {
			return strings.Replace(s, "authority: gov", "authority: \"\"", 1)
		}},
		{"leverage below 1x", func(s string) string {
			return strings.Replace(s, "max_leverage_bps: 500000", "max_leverage_bps: 5000", 1)
		}},
		{"fee above cap", func(s string) string {
			return strings.Replace(s, "margin_fee_bps: 10", "margin_fee_bps: 600", 1)
		}},
		{"liquidation fee above cap", func(s string) string {
			return strings.Replace(s, `liquidation_fee_usd: "5"`, `liquidation_fee_usd: "500"`, 1)
		}},
		{"funding interval too short", func(s string) string {
			return strings.Replace(s, "funding_interval: 3600", "funding_interval: 60", 1)
		}},
		{"duplicate token", func(s string) string {
			return strings.Replace(s, "asset: usdc", "asset: eth", 1)
		}},
		{"synthetic asset whitelisted", func(s string) string {
			return strings.Replace(s, "asset: usdc", "asset: usdg", 1)
		}},
		{"missing db path", func(s string) string {
			return strings.Replace(s, "db_path: /tmp/vault-test.db", "db_path: \"\"", 1)
		}},
		{"bad feed url", func(s string) string {
			return s + "feed:\n  ws_url: http://example.com\n"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tt.mutate(validConfigYAML))); err == nil {
				t.Error("invalid config accepted")
			}
		})
	}
}
