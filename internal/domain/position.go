package domain

import (
	"math/big"

	"github.com/holiman/uint256"
)

// PositionKey identifies a position by account, collateral asset, index
// asset and direction. A typed composite key, not a byte concatenation.
type PositionKey struct {
	Account         AccountID
	CollateralAsset AssetID
	IndexAsset      AssetID
	IsLong          bool
}

// Position is a leveraged directional exposure. USD fields are at price
// precision; ReserveAmount is collateral-asset units. A position is never
// deleted, only zeroed: Size == 0 implies Collateral == 0.
type Position struct {
	Size             *uint256.Int
	Collateral       *uint256.Int
	AveragePrice     *uint256.Int
	EntryFundingRate *uint256.Int
	ReserveAmount    *uint256.Int
	// RealisedPnl is signed, cumulative over the position's lifetime.
	RealisedPnl       *big.Int
	LastIncreasedTime uint64
}

// NewPosition returns the zero-valued (Empty) position.
func NewPosition() *Position {
	return &Position{
		Size:             new(uint256.Int),
		Collateral:       new(uint256.Int),
		AveragePrice:     new(uint256.Int),
		EntryFundingRate: new(uint256.Int),
		ReserveAmount:    new(uint256.Int),
		RealisedPnl:      new(big.Int),
	}
}

// IsOpen reports whether the position holds any exposure.
func (p *Position) IsOpen() bool {
	return !p.Size.IsZero()
}

func (p *Position) Clone() *Position {
	return &Position{
		Size:              new(uint256.Int).Set(p.Size),
		Collateral:        new(uint256.Int).Set(p.Collateral),
		AveragePrice:      new(uint256.Int).Set(p.AveragePrice),
		EntryFundingRate:  new(uint256.Int).Set(p.EntryFundingRate),
		ReserveAmount:     new(uint256.Int).Set(p.ReserveAmount),
		RealisedPnl:       new(big.Int).Set(p.RealisedPnl),
		LastIncreasedTime: p.LastIncreasedTime,
	}
}
