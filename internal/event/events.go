// Package event defines the typed notifications emitted by vault operations.
//
// Notifications are purely observational: every numeric value a later
// computation needs is returned through ordinary return values, never read
// back out of these structs.
package event

import (
	"math/big"

	"github.com/holiman/uint256"

	"vault_go/internal/domain"
)

// Type tags each notification for journal decoding and subscribers.
type Type uint16

const (
	EvUpdateFundingRate Type = iota + 1
	EvIncreasePosition
	EvDecreasePosition
	EvLiquidatePosition
	EvUpdatePosition
	EvClosePosition
	EvCollectMarginFees
	EvCollectSwapFees
	EvSwap
	EvMintSynthetic
	EvRedeemSynthetic
	EvDirectPoolDeposit
	EvWithdrawFees
	EvPoolDelta
)

// Notification is the interface all vault notifications satisfy.
type Notification interface {
	GetSeq() uint64
	GetTs() uint64
	GetType() Type
}

// Base carries the sequence number and externally supplied timestamp.
// Seq is assigned when the operation commits.
type Base struct {
	Seq uint64 `json:"seq"`
	Ts  uint64 `json:"ts"`
}

func (b Base) GetSeq() uint64 { return b.Seq }
func (b Base) GetTs() uint64  { return b.Ts }

// SetMeta stamps sequence and timestamp; called once at commit.
func (b *Base) SetMeta(seq, ts uint64) { b.Seq, b.Ts = seq, ts }

// Stampable is implemented by every notification via *Base.
type Stampable interface{ SetMeta(seq, ts uint64) }

type UpdateFundingRate struct {
	Base
	Asset                 domain.AssetID `json:"asset"`
	CumulativeFundingRate *uint256.Int   `json:"cumulative_funding_rate"`
}

func (UpdateFundingRate) GetType() Type { return EvUpdateFundingRate }

type IncreasePosition struct {
	Base
	Account            domain.AccountID `json:"account"`
	CollateralAsset    domain.AssetID   `json:"collateral_asset"`
	IndexAsset         domain.AssetID   `json:"index_asset"`
	IsLong             bool             `json:"is_long"`
	CollateralDeltaUsd *uint256.Int     `json:"collateral_delta_usd"`
	SizeDelta          *uint256.Int     `json:"size_delta"`
	Price              *uint256.Int     `json:"price"`
	FeeUsd             *uint256.Int     `json:"fee_usd"`
}

func (IncreasePosition) GetType() Type { return EvIncreasePosition }

type DecreasePosition struct {
	Base
	Account            domain.AccountID `json:"account"`
	CollateralAsset    domain.AssetID   `json:"collateral_asset"`
	IndexAsset         domain.AssetID   `json:"index_asset"`
	IsLong             bool             `json:"is_long"`
	CollateralDeltaUsd *uint256.Int     `json:"collateral_delta_usd"`
	SizeDelta          *uint256.Int     `json:"size_delta"`
	Price              *uint256.Int     `json:"price"`
	FeeUsd             *uint256.Int     `json:"fee_usd"`
	UsdOut             *uint256.Int     `json:"usd_out"`
	RealisedPnl        *big.Int         `json:"realised_pnl"`
}

func (DecreasePosition) GetType() Type { return EvDecreasePosition }

type LiquidatePosition struct {
	Base
	Account         domain.AccountID `json:"account"`
	CollateralAsset domain.AssetID   `json:"collateral_asset"`
	IndexAsset      domain.AssetID   `json:"index_asset"`
	IsLong          bool             `json:"is_long"`
	Size            *uint256.Int     `json:"size"`
	Collateral      *uint256.Int     `json:"collateral"`
	ReserveAmount   *uint256.Int     `json:"reserve_amount"`
	RealisedPnl     *big.Int         `json:"realised_pnl"`
	MarkPrice       *uint256.Int     `json:"mark_price"`
}

func (LiquidatePosition) GetType() Type { return EvLiquidatePosition }

type UpdatePosition struct {
	Base
	Account          domain.AccountID `json:"account"`
	CollateralAsset  domain.AssetID   `json:"collateral_asset"`
	IndexAsset       domain.AssetID   `json:"index_asset"`
	IsLong           bool             `json:"is_long"`
	Size             *uint256.Int     `json:"size"`
	Collateral       *uint256.Int     `json:"collateral"`
	AveragePrice     *uint256.Int     `json:"average_price"`
	EntryFundingRate *uint256.Int     `json:"entry_funding_rate"`
	ReserveAmount    *uint256.Int     `json:"reserve_amount"`
	RealisedPnl      *big.Int         `json:"realised_pnl"`
	MarkPrice        *uint256.Int     `json:"mark_price"`
}

func (UpdatePosition) GetType() Type { return EvUpdatePosition }

type ClosePosition struct {
	Base
	Account          domain.AccountID `json:"account"`
	CollateralAsset  domain.AssetID   `json:"collateral_asset"`
	IndexAsset       domain.AssetID   `json:"index_asset"`
	IsLong           bool             `json:"is_long"`
	Size             *uint256.Int     `json:"size"`
	Collateral       *uint256.Int     `json:"collateral"`
	AveragePrice     *uint256.Int     `json:"average_price"`
	EntryFundingRate *uint256.Int     `json:"entry_funding_rate"`
	ReserveAmount    *uint256.Int     `json:"reserve_amount"`
	RealisedPnl      *big.Int         `json:"realised_pnl"`
}

func (ClosePosition) GetType() Type { return EvClosePosition }

type CollectMarginFees struct {
	Base
	Asset     domain.AssetID `json:"asset"`
	FeeUsd    *uint256.Int   `json:"fee_usd"`
	FeeTokens *uint256.Int   `json:"fee_tokens"`
}

func (CollectMarginFees) GetType() Type { return EvCollectMarginFees }

type CollectSwapFees struct {
	Base
	Asset     domain.AssetID `json:"asset"`
	FeeUsd    *uint256.Int   `json:"fee_usd"`
	FeeTokens *uint256.Int   `json:"fee_tokens"`
}

func (CollectSwapFees) GetType() Type { return EvCollectSwapFees }

type Swap struct {
	Base
	Account            domain.AccountID `json:"account"`
	AssetIn            domain.AssetID   `json:"asset_in"`
	AssetOut           domain.AssetID   `json:"asset_out"`
	AmountIn           *uint256.Int     `json:"amount_in"`
	AmountOut          *uint256.Int     `json:"amount_out"`
	AmountOutAfterFees *uint256.Int     `json:"amount_out_after_fees"`
	FeeBps             uint64           `json:"fee_bps"`
}

func (Swap) GetType() Type { return EvSwap }

type MintSynthetic struct {
	Base
	Account    domain.AccountID `json:"account"`
	Asset      domain.AssetID   `json:"asset"`
	AmountIn   *uint256.Int     `json:"amount_in"`
	MintAmount *uint256.Int     `json:"mint_amount"`
	FeeBps     uint64           `json:"fee_bps"`
}

func (MintSynthetic) GetType() Type { return EvMintSynthetic }

type RedeemSynthetic struct {
	Base
	Account    domain.AccountID `json:"account"`
	Asset      domain.AssetID   `json:"asset"`
	BurnAmount *uint256.Int     `json:"burn_amount"`
	AmountOut  *uint256.Int     `json:"amount_out"`
	FeeBps     uint64           `json:"fee_bps"`
}

func (RedeemSynthetic) GetType() Type { return EvRedeemSynthetic }

type DirectPoolDeposit struct {
	Base
	Asset  domain.AssetID `json:"asset"`
	Amount *uint256.Int   `json:"amount"`
}

func (DirectPoolDeposit) GetType() Type { return EvDirectPoolDeposit }

type WithdrawFees struct {
	Base
	Asset    domain.AssetID   `json:"asset"`
	Amount   *uint256.Int     `json:"amount"`
	Receiver domain.AccountID `json:"receiver"`
}

func (WithdrawFees) GetType() Type { return EvWithdrawFees }

// PoolCounter names the ledger counter a PoolDelta touched.
type PoolCounter string

const (
	CounterPool       PoolCounter = "pool_amount"
	CounterReserved   PoolCounter = "reserved_amount"
	CounterGuaranteed PoolCounter = "guaranteed_usd"
	CounterSynthetic  PoolCounter = "synthetic_issued"
)

// PoolDelta reports a single ledger counter adjustment.
type PoolDelta struct {
	Base
	Asset    domain.AssetID `json:"asset"`
	Counter  PoolCounter    `json:"counter"`
	Increase bool           `json:"increase"`
	Amount   *uint256.Int   `json:"amount"`
}

func (PoolDelta) GetType() Type { return EvPoolDelta }
