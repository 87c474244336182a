package engine

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"

	"vault_go/internal/domain"
)

// OpKind tags the operation union for dispatch and journal decoding.
type OpKind uint16

const (
	OpIncreasePosition OpKind = iota + 1
	OpDecreasePosition
	OpLiquidatePosition
	OpSwap
	OpMintSynthetic
	OpRedeemSynthetic
	OpDirectPoolDeposit
	OpAccrueFunding
	OpSetTokenConfig
	OpClearTokenConfig
	OpSetFees
	OpSetFundingRate
	OpSetBufferAmount
	OpSetMaxGlobalShortSize
	OpSetFeature
	OpWithdrawFees
)

// Op is the tagged union of every vault operation. Time is externally
// supplied epoch seconds; the engine never reads a clock.
type Op interface {
	Kind() OpKind
	At() uint64
	Caller() domain.AccountID
}

// OpBase carries the fields shared by all operations.
type OpBase struct {
	Time   uint64           `json:"time"`
	Sender domain.AccountID `json:"sender"`
}

func (b OpBase) At() uint64               { return b.Time }
func (b OpBase) Caller() domain.AccountID { return b.Sender }

// IncreasePositionOp opens or scales up a position. CollateralAmount is the
// collateral-asset units the sender escrowed with custody before the call;
// SizeDelta is USD notional at price precision.
type IncreasePositionOp struct {
	OpBase
	Account          domain.AccountID `json:"account"`
	CollateralAsset  domain.AssetID   `json:"collateral_asset"`
	IndexAsset       domain.AssetID   `json:"index_asset"`
	CollateralAmount *uint256.Int     `json:"collateral_amount"`
	SizeDelta        *uint256.Int     `json:"size_delta"`
	IsLong           bool             `json:"is_long"`
}

func (IncreasePositionOp) Kind() OpKind { return OpIncreasePosition }

// DecreasePositionOp scales down or closes a position. Both deltas are USD
// at price precision; the payout goes to Receiver.
type DecreasePositionOp struct {
	OpBase
	Account         domain.AccountID `json:"account"`
	CollateralAsset domain.AssetID   `json:"collateral_asset"`
	IndexAsset      domain.AssetID   `json:"index_asset"`
	CollateralDelta *uint256.Int     `json:"collateral_delta"`
	SizeDelta       *uint256.Int     `json:"size_delta"`
	IsLong          bool             `json:"is_long"`
	Receiver        domain.AccountID `json:"receiver"`
}

func (DecreasePositionOp) Kind() OpKind { return OpDecreasePosition }

// LiquidatePositionOp force-closes an undercollateralized position. The
// fixed liquidation fee is paid to FeeReceiver.
type LiquidatePositionOp struct {
	OpBase
	Account         domain.AccountID `json:"account"`
	CollateralAsset domain.AssetID   `json:"collateral_asset"`
	IndexAsset      domain.AssetID   `json:"index_asset"`
	IsLong          bool             `json:"is_long"`
	FeeReceiver     domain.AccountID `json:"fee_receiver"`
}

func (LiquidatePositionOp) Kind() OpKind { return OpLiquidatePosition }

// SwapOp converts AmountIn units of AssetIn into AssetOut for Receiver.
type SwapOp struct {
	OpBase
	AssetIn  domain.AssetID   `json:"asset_in"`
	AssetOut domain.AssetID   `json:"asset_out"`
	AmountIn *uint256.Int     `json:"amount_in"`
	Receiver domain.AccountID `json:"receiver"`
}

func (SwapOp) Kind() OpKind { return OpSwap }

// MintSyntheticOp mints synthetic stable against AmountIn units of Asset.
type MintSyntheticOp struct {
	OpBase
	Asset    domain.AssetID   `json:"asset"`
	AmountIn *uint256.Int     `json:"amount_in"`
	Receiver domain.AccountID `json:"receiver"`
}

func (MintSyntheticOp) Kind() OpKind { return OpMintSynthetic }

// RedeemSyntheticOp burns BurnAmount synthetic stable and pays out Asset.
type RedeemSyntheticOp struct {
	OpBase
	Asset      domain.AssetID   `json:"asset"`
	BurnAmount *uint256.Int     `json:"burn_amount"`
	Receiver   domain.AccountID `json:"receiver"`
}

func (RedeemSyntheticOp) Kind() OpKind { return OpRedeemSynthetic }

// DirectPoolDepositOp credits already-escrowed units to the pool without
// minting anything in return.
type DirectPoolDepositOp struct {
	OpBase
	Asset  domain.AssetID `json:"asset"`
	Amount *uint256.Int   `json:"amount"`
}

func (DirectPoolDepositOp) Kind() OpKind { return OpDirectPoolDeposit }

// AccrueFundingOp pokes funding accrual for one asset. Every mutating
// operation accrues implicitly; this makes the accrual step addressable.
type AccrueFundingOp struct {
	OpBase
	Asset domain.AssetID `json:"asset"`
}

func (AccrueFundingOp) Kind() OpKind { return OpAccrueFunding }

// SetTokenConfigOp whitelists an asset or updates its static config.
type SetTokenConfigOp struct {
	OpBase
	Asset                domain.AssetID `json:"asset"`
	Decimals             uint32         `json:"decimals"`
	Weight               uint64         `json:"weight"`
	MinProfitBps         uint64         `json:"min_profit_bps"`
	MaxSyntheticIssuance *uint256.Int   `json:"max_synthetic_issuance"`
	IsStable             bool           `json:"is_stable"`
	IsShortable          bool           `json:"is_shortable"`
}

func (SetTokenConfigOp) Kind() OpKind { return OpSetTokenConfig }

// ClearTokenConfigOp delists an asset.
type ClearTokenConfigOp struct {
	OpBase
	Asset domain.AssetID `json:"asset"`
}

func (ClearTokenConfigOp) Kind() OpKind { return OpClearTokenConfig }

// SetFeesOp replaces the fee schedule.
type SetFeesOp struct {
	OpBase
	TaxBps            uint64       `json:"tax_bps"`
	StableTaxBps      uint64       `json:"stable_tax_bps"`
	MintBurnFeeBps    uint64       `json:"mint_burn_fee_bps"`
	SwapFeeBps        uint64       `json:"swap_fee_bps"`
	StableSwapBps     uint64       `json:"stable_swap_bps"`
	MarginFeeBps      uint64       `json:"margin_fee_bps"`
	LiquidationFeeUsd *uint256.Int `json:"liquidation_fee_usd"`
	MinProfitTime     uint64       `json:"min_profit_time"`
	HasDynamicFees    bool         `json:"has_dynamic_fees"`
}

func (SetFeesOp) Kind() OpKind { return OpSetFees }

// SetFundingRateOp replaces the funding interval and rate factors.
type SetFundingRateOp struct {
	OpBase
	FundingInterval         uint64 `json:"funding_interval"`
	FundingRateFactor       uint64 `json:"funding_rate_factor"`
	StableFundingRateFactor uint64 `json:"stable_funding_rate_factor"`
}

func (SetFundingRateOp) Kind() OpKind { return OpSetFundingRate }

// SetBufferAmountOp sets the soft pool minimum for one asset.
type SetBufferAmountOp struct {
	OpBase
	Asset  domain.AssetID `json:"asset"`
	Amount *uint256.Int   `json:"amount"`
}

func (SetBufferAmountOp) Kind() OpKind { return OpSetBufferAmount }

// SetMaxGlobalShortSizeOp caps aggregate short notional for an index asset.
type SetMaxGlobalShortSizeOp struct {
	OpBase
	Asset  domain.AssetID `json:"asset"`
	Amount *uint256.Int   `json:"amount"`
}

func (SetMaxGlobalShortSizeOp) Kind() OpKind { return OpSetMaxGlobalShortSize }

// Feature names a toggleable capability.
type Feature string

const (
	FeatureSwap               Feature = "swap"
	FeatureLeverage           Feature = "leverage"
	FeatureManagerMode        Feature = "manager_mode"
	FeaturePrivateLiquidation Feature = "private_liquidation"
)

// SetFeatureOp flips a feature toggle.
type SetFeatureOp struct {
	OpBase
	Feature Feature `json:"feature"`
	Enabled bool    `json:"enabled"`
}

func (SetFeatureOp) Kind() OpKind { return OpSetFeature }

// WithdrawFeesOp drains the fee reserve of one asset to Receiver.
type WithdrawFeesOp struct {
	OpBase
	Asset    domain.AssetID   `json:"asset"`
	Receiver domain.AccountID `json:"receiver"`
}

func (WithdrawFeesOp) Kind() OpKind { return OpWithdrawFees }

// EncodeOp serializes an operation for the journal.
func EncodeOp(op Op) ([]byte, error) {
	return json.Marshal(op)
}

// DecodeOp rebuilds an operation from its journal record.
func DecodeOp(kind OpKind, payload []byte) (Op, error) {
	var op Op
	switch kind {
	case OpIncreasePosition:
		op = &IncreasePositionOp{}
	case OpDecreasePosition:
		op = &DecreasePositionOp{}
	case OpLiquidatePosition:
		op = &LiquidatePositionOp{}
	case OpSwap:
		op = &SwapOp{}
	case OpMintSynthetic:
		op = &MintSyntheticOp{}
	case OpRedeemSynthetic:
		op = &RedeemSyntheticOp{}
	case OpDirectPoolDeposit:
		op = &DirectPoolDepositOp{}
	case OpAccrueFunding:
		op = &AccrueFundingOp{}
	case OpSetTokenConfig:
		op = &SetTokenConfigOp{}
	case OpClearTokenConfig:
		op = &ClearTokenConfigOp{}
	case OpSetFees:
		op = &SetFeesOp{}
	case OpSetFundingRate:
		op = &SetFundingRateOp{}
	case OpSetBufferAmount:
		op = &SetBufferAmountOp{}
	case OpSetMaxGlobalShortSize:
		op = &SetMaxGlobalShortSizeOp{}
	case OpSetFeature:
		op = &SetFeatureOp{}
	case OpWithdrawFees:
		op = &WithdrawFeesOp{}
	default:
		return nil, fmt.Errorf("unknown op kind %d", kind)
	}
	if err := json.Unmarshal(payload, op); err != nil {
		return nil, fmt.Errorf("decode op kind %d: %w", kind, err)
	}
	return op, nil
}
