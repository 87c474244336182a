package infra

import (
	"fmt"
	"os"
	"strings"

	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"vault_go/internal/domain"
	"vault_go/pkg/fixed"
)

// Governance bounds mirrored from the engine's admin surface; a config that
// could not be applied through SetFees/SetFundingRate is rejected up front.
const (
	maxFeeBps            = 500
	maxLiquidationFeeUsd = 100
	minFundingInterval   = 3600
	maxFundingRateFactor = 10000
	minLeverageBps       = 10000
)

// TokenEntry is one whitelisted asset in the config file. Amount-like fields
// are decimal strings parsed without float64.
type TokenEntry struct {
	Asset                string `yaml:"asset"`
	Decimals             uint32 `yaml:"decimals"`
	Weight               uint64 `yaml:"weight"`
	MinProfitBps         uint64 `yaml:"min_profit_bps"`
	MaxSyntheticIssuance string `yaml:"max_synthetic_issuance"`
	IsStable             bool   `yaml:"is_stable"`
	IsShortable          bool   `yaml:"is_shortable"`
	// FeedSymbol maps the asset to the price feed's instrument name.
	FeedSymbol string `yaml:"feed_symbol"`
}

// Config carries everything the process needs. Environment variables
// override file values after loading.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Vault struct {
		Authority              string `yaml:"authority"`
		SyntheticAsset         string `yaml:"synthetic_asset"`
		SwapEnabled            bool   `yaml:"swap_enabled"`
		LeverageEnabled        bool   `yaml:"leverage_enabled"`
		ManagerMode            bool   `yaml:"manager_mode"`
		PrivateLiquidationMode bool   `yaml:"private_liquidation_mode"`
		MaxLeverageBps         uint64 `yaml:"max_leverage_bps"`
		LiquidationFeeUsd      string `yaml:"liquidation_fee_usd"`
		TaxBps                 uint64 `yaml:"tax_bps"`
		StableTaxBps           uint64 `yaml:"stable_tax_bps"`
		MintBurnFeeBps         uint64 `yaml:"mint_burn_fee_bps"`
		SwapFeeBps             uint64 `yaml:"swap_fee_bps"`
		StableSwapBps          uint64 `yaml:"stable_swap_bps"`
		MarginFeeBps           uint64 `yaml:"margin_fee_bps"`
		HasDynamicFees         bool   `yaml:"has_dynamic_fees"`
		MinProfitTime          uint64 `yaml:"min_profit_time"`

		FundingInterval         uint64 `yaml:"funding_interval"`
		FundingRateFactor       uint64 `yaml:"funding_rate_factor"`
		StableFundingRateFactor uint64 `yaml:"stable_funding_rate_factor"`
	} `yaml:"vault"`

	Tokens []TokenEntry `yaml:"tokens"`

	Feed struct {
		WSURL           string `yaml:"ws_url"`
		PingIntervalSec int    `yaml:"ping_interval_sec"`
	} `yaml:"feed"`

	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the config file, applies environment
// overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// overrideWithEnv lets deployment-specific values win over the file.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("VAULT_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("VAULT_FEED_WS_URL"); v != "" {
		cfg.Feed.WSURL = v
	}
	if v := os.Getenv("VAULT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("VAULT_AUTHORITY"); v != "" {
		cfg.Vault.Authority = v
	}
}

// Validate checks configuration validity against the governance bounds.
func (c *Config) Validate() error {
	if c.Vault.Authority == "" {
		return fmt.Errorf("vault authority is required")
	}
	if c.Vault.SyntheticAsset == "" {
		return fmt.Errorf("synthetic asset id is required")
	}
	if c.Vault.MaxLeverageBps < minLeverageBps {
		return fmt.Errorf("max leverage %d below 1x", c.Vault.MaxLeverageBps)
	}
	for _, bps := range []uint64{
		c.Vault.TaxBps, c.Vault.StableTaxBps, c.Vault.MintBurnFeeBps,
		c.Vault.SwapFeeBps, c.Vault.StableSwapBps, c.Vault.MarginFeeBps,
	} {
		if bps > maxFeeBps {
			return fmt.Errorf("fee rate %d above cap %d", bps, maxFeeBps)
		}
	}
	liqFee, err := c.LiquidationFeeUsd()
	if err != nil {
		return err
	}
	maxLiqFee := new(uint256.Int).Mul(uint256.NewInt(maxLiquidationFeeUsd), fixed.PricePrecision)
	if liqFee.Gt(maxLiqFee) {
		return fmt.Errorf("liquidation fee %s above cap %s", c.Vault.LiquidationFeeUsd, fixed.Format(maxLiqFee, fixed.PriceDecimals))
	}
	if c.Vault.FundingInterval < minFundingInterval {
		return fmt.Errorf("funding interval %d below minimum %d", c.Vault.FundingInterval, minFundingInterval)
	}
	if c.Vault.FundingRateFactor > maxFundingRateFactor || c.Vault.StableFundingRateFactor > maxFundingRateFactor {
		return fmt.Errorf("funding rate factor above cap %d", maxFundingRateFactor)
	}

	seen := make(map[string]bool)
	for _, t := range c.Tokens {
		if t.Asset == "" {
			return fmt.Errorf("token entry with empty asset id")
		}
		if t.Asset == c.Vault.SyntheticAsset {
			return fmt.Errorf("synthetic asset %s cannot be whitelisted", t.Asset)
		}
		if seen[t.Asset] {
			return fmt.Errorf("duplicate token entry %s", t.Asset)
		}
		seen[t.Asset] = true
		if t.Decimals == 0 || t.Decimals > fixed.PriceDecimals {
			return fmt.Errorf("token %s decimals %d out of range", t.Asset, t.Decimals)
		}
		if t.MaxSyntheticIssuance != "" {
			if _, err := fixed.ParseDecimal(t.MaxSyntheticIssuance, fixed.SyntheticDecimals); err != nil {
				return fmt.Errorf("token %s issuance cap: %w", t.Asset, err)
			}
		}
	}

	if c.Feed.WSURL != "" && !strings.HasPrefix(c.Feed.WSURL, "ws://") && !strings.HasPrefix(c.Feed.WSURL, "wss://") {
		return fmt.Errorf("invalid feed WS URL: %s", c.Feed.WSURL)
	}
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage db_path is required")
	}
	return nil
}

// LiquidationFeeUsd parses the configured USD fee into price precision.
func (c *Config) LiquidationFeeUsd() (*uint256.Int, error) {
	s := c.Vault.LiquidationFeeUsd
	if s == "" {
		s = "0"
	}
	v, err := fixed.ParseDecimal(s, fixed.PriceDecimals)
	if err != nil {
		return nil, fmt.Errorf("liquidation fee: %w", err)
	}
	return v, nil
}

// VaultConfig maps the file config onto the engine's configuration type.
func (c *Config) VaultConfig() (*domain.VaultConfig, error) {
	liqFee, err := c.LiquidationFeeUsd()
	if err != nil {
		return nil, err
	}
	return &domain.VaultConfig{
		Authority:              domain.AccountID(c.Vault.Authority),
		SyntheticAsset:         domain.AssetID(c.Vault.SyntheticAsset),
		SwapEnabled:            c.Vault.SwapEnabled,
		LeverageEnabled:        c.Vault.LeverageEnabled,
		ManagerMode:            c.Vault.ManagerMode,
		PrivateLiquidationMode: c.Vault.PrivateLiquidationMode,
		MaxLeverageBps:         c.Vault.MaxLeverageBps,
		LiquidationFeeUsd:      liqFee,
		TaxBps:                 c.Vault.TaxBps,
		StableTaxBps:           c.Vault.StableTaxBps,
		MintBurnFeeBps:         c.Vault.MintBurnFeeBps,
		SwapFeeBps:             c.Vault.SwapFeeBps,
		StableSwapBps:          c.Vault.StableSwapBps,
		MarginFeeBps:           c.Vault.MarginFeeBps,
		HasDynamicFees:         c.Vault.HasDynamicFees,
		MinProfitTime:          c.Vault.MinProfitTime,

		FundingInterval:         c.Vault.FundingInterval,
		FundingRateFactor:       c.Vault.FundingRateFactor,
		StableFundingRateFactor: c.Vault.StableFundingRateFactor,
	}, nil
}
