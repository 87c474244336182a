package domain

import "github.com/holiman/uint256"

// VaultConfig is the venue-wide configuration. The core consults it
// read-only; only admin operations mutate it.
type VaultConfig struct {
	Authority AccountID
	// SyntheticAsset is the id of the USD-pegged stable minted by the
	// bridge engine.
	SyntheticAsset AssetID

	SwapEnabled            bool
	LeverageEnabled        bool
	ManagerMode            bool
	PrivateLiquidationMode bool

	// MaxLeverageBps caps size/collateral, e.g. 50x = 500000.
	MaxLeverageBps uint64
	// LiquidationFeeUsd is fixed, at price precision.
	LiquidationFeeUsd *uint256.Int

	TaxBps         uint64
	StableTaxBps   uint64
	MintBurnFeeBps uint64
	SwapFeeBps     uint64
	StableSwapBps  uint64
	MarginFeeBps   uint64
	// HasDynamicFees switches the swap fee between the flat rate and the
	// weight-deviation curve.
	HasDynamicFees bool
	// MinProfitTime is the anti-wick lockout window in seconds.
	MinProfitTime uint64

	// FundingInterval is in seconds; factors are at funding precision per
	// interval of full reserve utilisation.
	FundingInterval         uint64
	FundingRateFactor       uint64
	StableFundingRateFactor uint64
}

func (c *VaultConfig) Clone() *VaultConfig {
	n := *c
	n.LiquidationFeeUsd = new(uint256.Int).Set(c.LiquidationFeeUsd)
	return &n
}
