package engine

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"vault_go/internal/domain"
	"vault_go/internal/event"
	"vault_go/pkg/fixed"
	"vault_go/pkg/safe"
)

// liquidationState classifies a position's health.
type liquidationState int

const (
	// liquidationNone: the position is healthy.
	liquidationNone liquidationState = iota
	// liquidationInsolvent: losses or fees have consumed the collateral;
	// the position is seized and its collateral absorbed.
	liquidationInsolvent
	// liquidationMaxLeverage: solvent but above the leverage cap; the
	// position is force-closed at market with a normal payout.
	liquidationMaxLeverage
)

// assessLiquidation classifies a position and prices the margin fees a
// seizure would charge. It never mutates state.
func (ex *execution) assessLiquidation(key domain.PositionKey, pos *domain.Position) (liquidationState, *uint256.Int, error) {
	hasProfit, delta, err := ex.positionDelta(key.IndexAsset, pos.Size, pos.AveragePrice, key.IsLong, pos.LastIncreasedTime)
	if err != nil {
		return liquidationNone, nil, err
	}
	positionFee, err := ex.positionFeeUsd(pos.Size)
	if err != nil {
		return liquidationNone, nil, err
	}
	fundingFee, err := ex.fundingFeeUsd(key.CollateralAsset, pos.Size, pos.EntryFundingRate)
	if err != nil {
		return liquidationNone, nil, err
	}
	marginFees, err := safe.Add(positionFee, fundingFee)
	if err != nil {
		return liquidationNone, nil, fmt.Errorf("margin fees: %w", err)
	}

	if !hasProfit && pos.Collateral.Lt(delta) {
		return liquidationInsolvent, marginFees, nil
	}

	remaining := new(uint256.Int).Set(pos.Collateral)
	if !hasProfit {
		remaining.Sub(remaining, delta)
	}
	if remaining.Lt(marginFees) {
		return liquidationInsolvent, remaining, nil
	}
	withLiqFee, err := safe.Add(marginFees, ex.st.config.LiquidationFeeUsd)
	if err != nil {
		return liquidationNone, nil, fmt.Errorf("margin fees: %w", err)
	}
	if remaining.Lt(withLiqFee) {
		return liquidationInsolvent, marginFees, nil
	}

	leveraged, err := safe.Mul(remaining, uint256.NewInt(ex.st.config.MaxLeverageBps))
	if err != nil {
		return liquidationNone, nil, fmt.Errorf("leverage check: %w", err)
	}
	sized, err := safe.Mul(pos.Size, fixed.BpsDivisor)
	if err != nil {
		return liquidationNone, nil, fmt.Errorf("leverage check: %w", err)
	}
	if leveraged.Lt(sized) {
		return liquidationMaxLeverage, marginFees, nil
	}
	return liquidationNone, marginFees, nil
}

// ensureNotLiquidatable rejects opens and reductions that would leave the
// position seizable.
func (ex *execution) ensureNotLiquidatable(key domain.PositionKey, pos *domain.Position) error {
	state, _, err := ex.assessLiquidation(key, pos)
	if err != nil {
		return err
	}
	if state != liquidationNone {
		return fmt.Errorf("account %s on %s: %w", key.Account, key.IndexAsset, domain.ErrPositionLiquidated)
	}
	return nil
}

func (ex *execution) liquidatePosition(o *LiquidatePositionOp) (*Receipt, error) {
	if ex.st.config.PrivateLiquidationMode && !ex.v.auth.HasRole(ex.caller, domain.RoleLiquidator) {
		return nil, fmt.Errorf("liquidation by %s: %w", ex.caller, domain.ErrUnauthorized)
	}
	key := domain.PositionKey{Account: o.Account, CollateralAsset: o.CollateralAsset, IndexAsset: o.IndexAsset, IsLong: o.IsLong}
	pos, ok := ex.st.positions[key]
	if !ok || !pos.IsOpen() {
		return nil, fmt.Errorf("no open position for %s: %w", o.Account, domain.ErrInvalidAmount)
	}
	if _, err := ex.accrueFunding(o.CollateralAsset); err != nil {
		return nil, err
	}
	if o.IndexAsset != o.CollateralAsset {
		if _, err := ex.accrueFunding(o.IndexAsset); err != nil {
			return nil, err
		}
	}

	state, marginFees, err := ex.assessLiquidation(key, pos)
	if err != nil {
		return nil, err
	}
	switch state {
	case liquidationNone:
		return nil, fmt.Errorf("position for %s is healthy: %w", o.Account, domain.ErrInvalidAmount)
	case liquidationMaxLeverage:
		// Over-leveraged but solvent: force a full close at market back
		// to the owner, with no seizure and no liquidation fee.
		amountOut, feeUsd, err := ex.reducePosition(key, new(uint256.Int), new(uint256.Int).Set(pos.Size), o.Account)
		if err != nil {
			return nil, err
		}
		r := ex.receipt()
		r.AmountOut = amountOut
		r.FeeUsd = feeUsd
		return r, nil
	}

	feeTokens, err := ex.usdToTokenMin(key.CollateralAsset, marginFees)
	if err != nil {
		return nil, err
	}
	cp, err := ex.pool(key.CollateralAsset)
	if err != nil {
		return nil, err
	}
	cp.FeeReserve, err = safe.Add(cp.FeeReserve, feeTokens)
	if err != nil {
		return nil, fmt.Errorf("fee reserve %s: %w", key.CollateralAsset, err)
	}
	ex.emit(&event.CollectMarginFees{
		Asset:     key.CollateralAsset,
		FeeUsd:    new(uint256.Int).Set(marginFees),
		FeeTokens: new(uint256.Int).Set(feeTokens),
	})

	if err := ex.decreaseReserved(key.CollateralAsset, pos.ReserveAmount); err != nil {
		return nil, err
	}
	if key.IsLong {
		exposure := new(uint256.Int).Sub(pos.Size, pos.Collateral)
		if err := ex.decreaseGuaranteedUsd(key.CollateralAsset, exposure); err != nil {
			return nil, err
		}
		if err := ex.decreasePool(key.CollateralAsset, feeTokens); err != nil {
			return nil, err
		}
	}

	var markPrice *uint256.Int
	if key.IsLong {
		markPrice, err = ex.minPrice(key.IndexAsset)
	} else {
		markPrice, err = ex.maxPrice(key.IndexAsset)
	}
	if err != nil {
		return nil, err
	}
	ex.emit(&event.LiquidatePosition{
		Account:         key.Account,
		CollateralAsset: key.CollateralAsset,
		IndexAsset:      key.IndexAsset,
		IsLong:          key.IsLong,
		Size:            new(uint256.Int).Set(pos.Size),
		Collateral:      new(uint256.Int).Set(pos.Collateral),
		ReserveAmount:   new(uint256.Int).Set(pos.ReserveAmount),
		RealisedPnl:     new(big.Int).Set(pos.RealisedPnl),
		MarkPrice:       markPrice,
	})

	if !key.IsLong {
		// The seizure consumes the whole collateral: fees plus the pool
		// remainder. None of it is short margin afterwards.
		collateralTokens, err := ex.usdToTokenMin(key.CollateralAsset, pos.Collateral)
		if err != nil {
			return nil, err
		}
		ex.decreaseShortCollateral(key.CollateralAsset, collateralTokens)
		// Whatever collateral the fees did not consume stays with the pool.
		if marginFees.Lt(pos.Collateral) {
			remaining := new(uint256.Int).Sub(pos.Collateral, marginFees)
			tokens, err := ex.usdToTokenMin(key.CollateralAsset, remaining)
			if err != nil {
				return nil, err
			}
			if err := ex.increasePool(key.CollateralAsset, tokens); err != nil {
				return nil, err
			}
		}
		ex.decreaseGlobalShortSize(key.IndexAsset, pos.Size)
	}

	zeroPosition(pos)

	liqFeeTokens, err := ex.usdToTokenMin(key.CollateralAsset, ex.st.config.LiquidationFeeUsd)
	if err != nil {
		return nil, err
	}
	if err := ex.decreasePool(key.CollateralAsset, liqFeeTokens); err != nil {
		return nil, err
	}
	ex.payOut(key.CollateralAsset, o.FeeReceiver, liqFeeTokens)

	r := ex.receipt()
	r.FeeUsd = marginFees
	r.AmountOut = liqFeeTokens
	return r, nil
}
