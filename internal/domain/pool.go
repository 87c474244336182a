package domain

import "github.com/holiman/uint256"

// PoolState is the per-asset mutable ledger.
//
// Invariants: PoolAmount >= ReservedAmount at all times; SyntheticIssued stays
// under the token's cap whenever the cap is nonzero; CumulativeFundingRate is
// monotonic.
type PoolState struct {
	// PoolAmount is the asset units custodied and owned by the pool.
	PoolAmount *uint256.Int
	// ReservedAmount is earmarked against open position notional.
	ReservedAmount *uint256.Int
	// BufferAmount is a soft minimum the swap engine may not drain below.
	BufferAmount *uint256.Int
	// GuaranteedUsd is the USD the pool owes long positions beyond their
	// posted collateral, at price precision.
	GuaranteedUsd *uint256.Int
	// SyntheticIssued is the synthetic stable minted against this asset,
	// at synthetic decimals.
	SyntheticIssued *uint256.Int
	// FeeReserve is collected fees in asset units, outside PoolAmount.
	FeeReserve *uint256.Int
	// ShortCollateral is the asset units custodied as margin for open
	// shorts, outside PoolAmount. Floors at zero: releases are valued at
	// the price of the release, deposits at theirs.
	ShortCollateral *uint256.Int
	// CumulativeFundingRate is the funding index at funding precision.
	CumulativeFundingRate *uint256.Int
	// LastFundingTime is epoch seconds, snapped to interval boundaries
	// once accrual has happened at least once.
	LastFundingTime uint64
	// FundingAccruing is the Uninitialized -> Accruing transition: false
	// until the first accrual call records its timestamp. Kept explicit
	// so listing an asset at epoch second zero still initializes.
	FundingAccruing bool
}

// NewPoolState returns a zeroed ledger entry for a freshly listed asset.
func NewPoolState() *PoolState {
	return &PoolState{
		PoolAmount:            new(uint256.Int),
		ReservedAmount:        new(uint256.Int),
		BufferAmount:          new(uint256.Int),
		GuaranteedUsd:         new(uint256.Int),
		SyntheticIssued:       new(uint256.Int),
		FeeReserve:            new(uint256.Int),
		ShortCollateral:       new(uint256.Int),
		CumulativeFundingRate: new(uint256.Int),
	}
}

func (p *PoolState) Clone() *PoolState {
	return &PoolState{
		PoolAmount:            new(uint256.Int).Set(p.PoolAmount),
		ReservedAmount:        new(uint256.Int).Set(p.ReservedAmount),
		BufferAmount:          new(uint256.Int).Set(p.BufferAmount),
		GuaranteedUsd:         new(uint256.Int).Set(p.GuaranteedUsd),
		SyntheticIssued:       new(uint256.Int).Set(p.SyntheticIssued),
		FeeReserve:            new(uint256.Int).Set(p.FeeReserve),
		ShortCollateral:       new(uint256.Int).Set(p.ShortCollateral),
		CumulativeFundingRate: new(uint256.Int).Set(p.CumulativeFundingRate),
		LastFundingTime:       p.LastFundingTime,
		FundingAccruing:       p.FundingAccruing,
	}
}

// GlobalShortState blends every open short on an index asset into one
// aggregate size and average entry price, so aggregate short PnL never needs
// per-position iteration. Updated atomically with short-side size changes.
type GlobalShortState struct {
	// Size is USD notional at price precision.
	Size *uint256.Int
	// AveragePrice is the blended entry price at price precision.
	AveragePrice *uint256.Int
	// MaxSize caps Size when nonzero.
	MaxSize *uint256.Int
}

func NewGlobalShortState() *GlobalShortState {
	return &GlobalShortState{
		Size:         new(uint256.Int),
		AveragePrice: new(uint256.Int),
		MaxSize:      new(uint256.Int),
	}
}

func (g *GlobalShortState) Clone() *GlobalShortState {
	return &GlobalShortState{
		Size:         new(uint256.Int).Set(g.Size),
		AveragePrice: new(uint256.Int).Set(g.AveragePrice),
		MaxSize:      new(uint256.Int).Set(g.MaxSize),
	}
}
