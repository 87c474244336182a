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

// position returns the stored position for key, creating the zero-valued
// entry on first touch. Positions are never deleted, only zeroed.
func (ex *execution) position(key domain.PositionKey) *domain.Position {
	p, ok := ex.st.positions[key]
	if !ok {
		p = domain.NewPosition()
		ex.st.positions[key] = p
	}
	return p
}

// resolveAccount maps an operation's target account to the caller unless a
// manager acts on someone else's behalf.
func (ex *execution) resolveAccount(account domain.AccountID) (domain.AccountID, error) {
	if account == "" || account == ex.caller {
		return ex.caller, nil
	}
	if !ex.v.auth.HasRole(ex.caller, domain.RoleManager) {
		return "", fmt.Errorf("caller %s cannot act for %s: %w", ex.caller, account, domain.ErrUnauthorized)
	}
	return account, nil
}

// validateTokenPair enforces the collateral/index pairing rules: longs are
// collateralized by the index asset itself, which must not be a stable;
// shorts post stable collateral against a shortable, non-stable index.
func (ex *execution) validateTokenPair(collateralAsset, indexAsset domain.AssetID, isLong bool) error {
	collateral, err := ex.token(collateralAsset)
	if err != nil {
		return err
	}
	if isLong {
		if collateralAsset != indexAsset {
			return fmt.Errorf("long collateral %s must match index %s: %w", collateralAsset, indexAsset, domain.ErrInvalidAsset)
		}
		if collateral.IsStable {
			return fmt.Errorf("long collateral %s is a stable asset: %w", collateralAsset, domain.ErrInvalidAsset)
		}
		return nil
	}
	if !collateral.IsStable {
		return fmt.Errorf("short collateral %s must be a stable asset: %w", collateralAsset, domain.ErrInvalidAsset)
	}
	index, err := ex.token(indexAsset)
	if err != nil {
		return err
	}
	if index.IsStable {
		return fmt.Errorf("short index %s is a stable asset: %w", indexAsset, domain.ErrInvalidAsset)
	}
	if !index.IsShortable {
		return fmt.Errorf("index %s is not shortable: %w", indexAsset, domain.ErrInvalidAsset)
	}
	return nil
}

// validatePosition enforces the structural position invariants: collateral
// never exceeds size, and an empty position holds no collateral.
func validatePosition(size, collateral *uint256.Int) error {
	if size.IsZero() {
		if !collateral.IsZero() {
			return fmt.Errorf("empty position holds collateral %s: %w", collateral, domain.ErrInvalidAmount)
		}
		return nil
	}
	if size.Lt(collateral) {
		return fmt.Errorf("size %s below collateral %s: %w", size, collateral, domain.ErrInvalidAmount)
	}
	return nil
}

// positionDelta marks a position to the unfavorable oracle side and returns
// the unrealized PnL magnitude with its direction. Fresh profits inside the
// min-profit window are suppressed to zero to blunt price wicks.
func (ex *execution) positionDelta(indexAsset domain.AssetID, size, averagePrice *uint256.Int, isLong bool, lastIncreasedTime uint64) (bool, *uint256.Int, error) {
	if averagePrice.IsZero() {
		return false, nil, fmt.Errorf("position on %s has zero average price: %w", indexAsset, domain.ErrInvariantBroken)
	}
	var price *uint256.Int
	var err error
	if isLong {
		price, err = ex.minPrice(indexAsset)
	} else {
		price, err = ex.maxPrice(indexAsset)
	}
	if err != nil {
		return false, nil, err
	}

	priceDelta := absDiff(averagePrice, price)
	delta, err := safe.MulDiv(size, priceDelta, averagePrice)
	if err != nil {
		return false, nil, fmt.Errorf("position delta %s: %w", indexAsset, err)
	}

	var hasProfit bool
	if isLong {
		hasProfit = price.Gt(averagePrice)
	} else {
		hasProfit = averagePrice.Gt(price)
	}

	if hasProfit {
		minBps := uint64(0)
		if ex.now <= lastIncreasedTime+ex.st.config.MinProfitTime {
			t, err := ex.token(indexAsset)
			if err != nil {
				return false, nil, err
			}
			minBps = t.MinProfitBps
		}
		scaled, err := safe.Mul(delta, fixed.BpsDivisor)
		if err != nil {
			return false, nil, fmt.Errorf("position delta %s: %w", indexAsset, err)
		}
		if !scaled.Gt(uint256.NewInt(minBps)) {
			delta = new(uint256.Int)
		}
	}
	return hasProfit, delta, nil
}

// nextAveragePrice blends the current entry price with the price of an
// added tranche so that the blended position carries the same unrealized
// PnL as the two tranches held separately.
func (ex *execution) nextAveragePrice(indexAsset domain.AssetID, pos *domain.Position, sizeDelta, nextPrice *uint256.Int, isLong bool) (*uint256.Int, error) {
	hasProfit, delta, err := ex.positionDelta(indexAsset, pos.Size, pos.AveragePrice, isLong, pos.LastIncreasedTime)
	if err != nil {
		return nil, err
	}
	nextSize, err := safe.Add(pos.Size, sizeDelta)
	if err != nil {
		return nil, fmt.Errorf("next average price %s: %w", indexAsset, err)
	}

	var divisor *uint256.Int
	if hasProfit == isLong {
		divisor, err = safe.Add(nextSize, delta)
	} else {
		divisor, err = safe.Sub(nextSize, delta)
	}
	if err != nil {
		return nil, fmt.Errorf("next average price %s: %w", indexAsset, err)
	}
	if divisor.IsZero() {
		return nil, fmt.Errorf("next average price %s divisor is zero: %w", indexAsset, domain.ErrInvalidAmount)
	}
	return safe.MulDiv(nextPrice, nextSize, divisor)
}

// nextGlobalShortAveragePrice blends the aggregate short entry price with a
// newly added short tranche.
func nextGlobalShortAveragePrice(g *domain.GlobalShortState, sizeDelta, nextPrice *uint256.Int) (*uint256.Int, error) {
	if g.Size.IsZero() || g.AveragePrice.IsZero() {
		return new(uint256.Int).Set(nextPrice), nil
	}
	priceDelta := absDiff(g.AveragePrice, nextPrice)
	delta, err := safe.MulDiv(g.Size, priceDelta, g.AveragePrice)
	if err != nil {
		return nil, fmt.Errorf("global short average price: %w", err)
	}
	hasProfit := g.AveragePrice.Gt(nextPrice)

	nextSize, err := safe.Add(g.Size, sizeDelta)
	if err != nil {
		return nil, fmt.Errorf("global short average price: %w", err)
	}
	var divisor *uint256.Int
	if hasProfit {
		divisor, err = safe.Sub(nextSize, delta)
	} else {
		divisor, err = safe.Add(nextSize, delta)
	}
	if err != nil {
		return nil, fmt.Errorf("global short average price: %w", err)
	}
	if divisor.IsZero() {
		return nil, fmt.Errorf("global short average price divisor is zero: %w", domain.ErrInvalidAmount)
	}
	return safe.MulDiv(nextPrice, nextSize, divisor)
}

// increaseGlobalShort grows the aggregate short book, re-blending its
// average price and enforcing the per-index cap.
func (ex *execution) increaseGlobalShort(indexAsset domain.AssetID, sizeDelta, price *uint256.Int) error {
	g, ok := ex.st.shorts[indexAsset]
	if !ok {
		return fmt.Errorf("asset %s not whitelisted: %w", indexAsset, domain.ErrInvalidAsset)
	}
	avg, err := nextGlobalShortAveragePrice(g, sizeDelta, price)
	if err != nil {
		return err
	}
	nextSize, err := safe.Add(g.Size, sizeDelta)
	if err != nil {
		return fmt.Errorf("global short size %s: %w", indexAsset, err)
	}
	if !g.MaxSize.IsZero() && nextSize.Gt(g.MaxSize) {
		return fmt.Errorf("global short size %s would be %s above cap %s: %w",
			indexAsset, nextSize, g.MaxSize, domain.ErrInvalidAmount)
	}
	g.AveragePrice = avg
	g.Size = nextSize
	return nil
}

func (ex *execution) increasePosition(o *IncreasePositionOp) (*Receipt, error) {
	if !ex.st.config.LeverageEnabled {
		return nil, fmt.Errorf("leverage: %w", domain.ErrDisabledFeature)
	}
	account, err := ex.resolveAccount(o.Account)
	if err != nil {
		return nil, err
	}
	if err := ex.validateTokenPair(o.CollateralAsset, o.IndexAsset, o.IsLong); err != nil {
		return nil, err
	}
	if o.SizeDelta == nil || o.CollateralAmount == nil {
		return nil, fmt.Errorf("missing amount: %w", domain.ErrInvalidAmount)
	}
	if _, err := ex.accrueFunding(o.CollateralAsset); err != nil {
		return nil, err
	}
	if o.IndexAsset != o.CollateralAsset {
		if _, err := ex.accrueFunding(o.IndexAsset); err != nil {
			return nil, err
		}
	}

	key := domain.PositionKey{Account: account, CollateralAsset: o.CollateralAsset, IndexAsset: o.IndexAsset, IsLong: o.IsLong}
	pos := ex.position(key)

	// Longs enter at the ask, shorts at the bid.
	var price *uint256.Int
	if o.IsLong {
		price, err = ex.maxPrice(o.IndexAsset)
	} else {
		price, err = ex.minPrice(o.IndexAsset)
	}
	if err != nil {
		return nil, err
	}

	if pos.Size.IsZero() {
		pos.AveragePrice = new(uint256.Int).Set(price)
	} else if !o.SizeDelta.IsZero() {
		avg, err := ex.nextAveragePrice(o.IndexAsset, pos, o.SizeDelta, price, o.IsLong)
		if err != nil {
			return nil, err
		}
		pos.AveragePrice = avg
	}

	feeUsd, feeTokens, err := ex.collectMarginFees(o.CollateralAsset, o.SizeDelta, pos.Size, pos.EntryFundingRate)
	if err != nil {
		return nil, err
	}
	collateralDeltaUsd, err := ex.tokenToUsdMin(o.CollateralAsset, o.CollateralAmount)
	if err != nil {
		return nil, err
	}

	collateral, err := safe.Add(pos.Collateral, collateralDeltaUsd)
	if err != nil {
		return nil, fmt.Errorf("collateral: %w", err)
	}
	if collateral.Lt(feeUsd) {
		return nil, fmt.Errorf("fees %s exceed collateral %s: %w", feeUsd, collateral, domain.ErrInvalidAmount)
	}
	pos.Collateral = new(uint256.Int).Sub(collateral, feeUsd)

	cp, err := ex.pool(o.CollateralAsset)
	if err != nil {
		return nil, err
	}
	pos.EntryFundingRate = new(uint256.Int).Set(cp.CumulativeFundingRate)
	pos.Size, err = safe.Add(pos.Size, o.SizeDelta)
	if err != nil {
		return nil, fmt.Errorf("position size: %w", err)
	}
	if pos.Size.IsZero() {
		return nil, fmt.Errorf("position size is zero: %w", domain.ErrInvalidAmount)
	}
	pos.LastIncreasedTime = ex.now

	if err := validatePosition(pos.Size, pos.Collateral); err != nil {
		return nil, err
	}
	if err := ex.ensureNotLiquidatable(key, pos); err != nil {
		return nil, err
	}

	// The full notional is reserved in collateral units at the favorable
	// price, so the pool can always cover the maximum payout.
	reserveDelta, err := ex.usdToTokenMax(o.CollateralAsset, o.SizeDelta)
	if err != nil {
		return nil, err
	}
	pos.ReserveAmount, err = safe.Add(pos.ReserveAmount, reserveDelta)
	if err != nil {
		return nil, fmt.Errorf("position reserve: %w", err)
	}
	if err := ex.increaseReserved(o.CollateralAsset, reserveDelta); err != nil {
		return nil, err
	}

	if o.IsLong {
		// The pool owes the position's full size beyond its collateral.
		// Fees come straight out of the deposited tokens.
		guaranteedDelta, err := safe.Add(o.SizeDelta, feeUsd)
		if err != nil {
			return nil, fmt.Errorf("guaranteed usd: %w", err)
		}
		if err := ex.increaseGuaranteedUsd(o.CollateralAsset, guaranteedDelta); err != nil {
			return nil, err
		}
		if err := ex.decreaseGuaranteedUsd(o.CollateralAsset, collateralDeltaUsd); err != nil {
			return nil, err
		}
		if err := ex.increasePool(o.CollateralAsset, o.CollateralAmount); err != nil {
			return nil, err
		}
		if err := ex.decreasePool(o.CollateralAsset, feeTokens); err != nil {
			return nil, err
		}
	} else {
		// The margin fee was already banked out of the deposit, so only
		// the net escrow joins the short collateral counter.
		if o.CollateralAmount.Gt(feeTokens) {
			escrow := new(uint256.Int).Sub(o.CollateralAmount, feeTokens)
			if err := ex.increaseShortCollateral(o.CollateralAsset, escrow); err != nil {
				return nil, err
			}
		} else {
			shortfall := new(uint256.Int).Sub(feeTokens, o.CollateralAmount)
			ex.decreaseShortCollateral(o.CollateralAsset, shortfall)
		}
		if err := ex.increaseGlobalShort(o.IndexAsset, o.SizeDelta, price); err != nil {
			return nil, err
		}
	}

	ex.emit(&event.IncreasePosition{
		Account:            account,
		CollateralAsset:    o.CollateralAsset,
		IndexAsset:         o.IndexAsset,
		IsLong:             o.IsLong,
		CollateralDeltaUsd: collateralDeltaUsd,
		SizeDelta:          new(uint256.Int).Set(o.SizeDelta),
		Price:              new(uint256.Int).Set(price),
		FeeUsd:             new(uint256.Int).Set(feeUsd),
	})
	ex.emitUpdatePosition(key, pos, price)

	r := ex.receipt()
	r.FeeUsd = feeUsd
	return r, nil
}

func (ex *execution) emitUpdatePosition(key domain.PositionKey, pos *domain.Position, markPrice *uint256.Int) {
	ex.emit(&event.UpdatePosition{
		Account:          key.Account,
		CollateralAsset:  key.CollateralAsset,
		IndexAsset:       key.IndexAsset,
		IsLong:           key.IsLong,
		Size:             new(uint256.Int).Set(pos.Size),
		Collateral:       new(uint256.Int).Set(pos.Collateral),
		AveragePrice:     new(uint256.Int).Set(pos.AveragePrice),
		EntryFundingRate: new(uint256.Int).Set(pos.EntryFundingRate),
		ReserveAmount:    new(uint256.Int).Set(pos.ReserveAmount),
		RealisedPnl:      new(big.Int).Set(pos.RealisedPnl),
		MarkPrice:        new(uint256.Int).Set(markPrice),
	})
}

func (ex *execution) decreasePosition(o *DecreasePositionOp) (*Receipt, error) {
	account, err := ex.resolveAccount(o.Account)
	if err != nil {
		return nil, err
	}
	collateralDelta := o.CollateralDelta
	if collateralDelta == nil {
		collateralDelta = new(uint256.Int)
	}
	if o.SizeDelta == nil {
		return nil, fmt.Errorf("missing size delta: %w", domain.ErrInvalidAmount)
	}
	receiver := o.Receiver
	if receiver == "" {
		receiver = account
	}
	key := domain.PositionKey{Account: account, CollateralAsset: o.CollateralAsset, IndexAsset: o.IndexAsset, IsLong: o.IsLong}
	amountOut, feeUsd, err := ex.reducePosition(key, collateralDelta, o.SizeDelta, receiver)
	if err != nil {
		return nil, err
	}
	r := ex.receipt()
	r.AmountOut = amountOut
	r.FeeUsd = feeUsd
	return r, nil
}

// reducePosition is the shared scale-down path behind DecreasePosition and
// max-leverage liquidations. It settles PnL and fees through the collateral
// pool, shrinks or closes the position, and pays out to receiver.
func (ex *execution) reducePosition(key domain.PositionKey, collateralDelta, sizeDelta *uint256.Int, receiver domain.AccountID) (*uint256.Int, *uint256.Int, error) {
	pos, ok := ex.st.positions[key]
	if !ok || !pos.IsOpen() {
		return nil, nil, fmt.Errorf("no open position for %s: %w", key.Account, domain.ErrInvalidAmount)
	}
	if sizeDelta.IsZero() {
		return nil, nil, fmt.Errorf("size delta is zero: %w", domain.ErrInvalidAmount)
	}
	if pos.Size.Lt(sizeDelta) {
		return nil, nil, fmt.Errorf("size delta %s above size %s: %w", sizeDelta, pos.Size, domain.ErrInvalidAmount)
	}
	if pos.Collateral.Lt(collateralDelta) {
		return nil, nil, fmt.Errorf("collateral delta %s above collateral %s: %w", collateralDelta, pos.Collateral, domain.ErrInvalidAmount)
	}
	if _, err := ex.accrueFunding(key.CollateralAsset); err != nil {
		return nil, nil, err
	}
	if key.IndexAsset != key.CollateralAsset {
		if _, err := ex.accrueFunding(key.IndexAsset); err != nil {
			return nil, nil, err
		}
	}

	prevCollateral := new(uint256.Int).Set(pos.Collateral)

	reserveDelta, err := safe.MulDiv(pos.ReserveAmount, sizeDelta, pos.Size)
	if err != nil {
		return nil, nil, fmt.Errorf("reserve delta: %w", err)
	}
	pos.ReserveAmount = new(uint256.Int).Sub(pos.ReserveAmount, reserveDelta)
	if err := ex.decreaseReserved(key.CollateralAsset, reserveDelta); err != nil {
		return nil, nil, err
	}

	red, err := ex.reduceCollateral(key, pos, collateralDelta, sizeDelta)
	if err != nil {
		return nil, nil, err
	}

	var markPrice *uint256.Int
	if key.IsLong {
		markPrice, err = ex.minPrice(key.IndexAsset)
	} else {
		markPrice, err = ex.maxPrice(key.IndexAsset)
	}
	if err != nil {
		return nil, nil, err
	}

	fullClose := pos.Size.Eq(sizeDelta)
	if !fullClose {
		cp, err := ex.pool(key.CollateralAsset)
		if err != nil {
			return nil, nil, err
		}
		pos.EntryFundingRate = new(uint256.Int).Set(cp.CumulativeFundingRate)
		pos.Size = new(uint256.Int).Sub(pos.Size, sizeDelta)

		if err := validatePosition(pos.Size, pos.Collateral); err != nil {
			return nil, nil, err
		}
		if err := ex.ensureNotLiquidatable(key, pos); err != nil {
			return nil, nil, err
		}
		if key.IsLong {
			collateralSpent := new(uint256.Int).Sub(prevCollateral, pos.Collateral)
			if err := ex.increaseGuaranteedUsd(key.CollateralAsset, collateralSpent); err != nil {
				return nil, nil, err
			}
			if err := ex.decreaseGuaranteedUsd(key.CollateralAsset, sizeDelta); err != nil {
				return nil, nil, err
			}
		}
	} else {
		if key.IsLong {
			if err := ex.increaseGuaranteedUsd(key.CollateralAsset, prevCollateral); err != nil {
				return nil, nil, err
			}
			if err := ex.decreaseGuaranteedUsd(key.CollateralAsset, sizeDelta); err != nil {
				return nil, nil, err
			}
		}
	}

	if !key.IsLong {
		// Everything that left the position's collateral (losses settled
		// to the pool, fees, withdrawals, the full-close sweep) is no
		// longer short margin.
		released := new(uint256.Int).Sub(prevCollateral, pos.Collateral)
		if !released.IsZero() {
			tokens, err := ex.usdToTokenMin(key.CollateralAsset, released)
			if err != nil {
				return nil, nil, err
			}
			ex.decreaseShortCollateral(key.CollateralAsset, tokens)
		}
		ex.decreaseGlobalShortSize(key.IndexAsset, sizeDelta)
	}

	ex.emit(&event.DecreasePosition{
		Account:            key.Account,
		CollateralAsset:    key.CollateralAsset,
		IndexAsset:         key.IndexAsset,
		IsLong:             key.IsLong,
		CollateralDeltaUsd: new(uint256.Int).Set(collateralDelta),
		SizeDelta:          new(uint256.Int).Set(sizeDelta),
		Price:              new(uint256.Int).Set(markPrice),
		FeeUsd:             new(uint256.Int).Set(red.feeUsd),
		UsdOut:             new(uint256.Int).Set(red.usdOut),
		RealisedPnl:        new(big.Int).Set(red.realised),
	})
	if fullClose {
		ex.emit(&event.ClosePosition{
			Account:          key.Account,
			CollateralAsset:  key.CollateralAsset,
			IndexAsset:       key.IndexAsset,
			IsLong:           key.IsLong,
			Size:             new(uint256.Int).Set(sizeDelta),
			Collateral:       new(uint256.Int).Set(prevCollateral),
			AveragePrice:     new(uint256.Int).Set(pos.AveragePrice),
			EntryFundingRate: new(uint256.Int).Set(pos.EntryFundingRate),
			ReserveAmount:    new(uint256.Int).Set(pos.ReserveAmount),
			RealisedPnl:      new(big.Int).Set(pos.RealisedPnl),
		})
		zeroPosition(pos)
	} else {
		ex.emitUpdatePosition(key, pos, markPrice)
	}

	if red.usdOut.IsZero() {
		return new(uint256.Int), red.feeUsd, nil
	}
	// Long collateral and profits both live inside the pool counter; the
	// whole payout leaves it. Short payouts come from custody directly.
	if key.IsLong {
		poolDelta, err := ex.usdToTokenMin(key.CollateralAsset, red.usdOut)
		if err != nil {
			return nil, nil, err
		}
		if err := ex.decreasePool(key.CollateralAsset, poolDelta); err != nil {
			return nil, nil, err
		}
	}
	amountOut, err := ex.usdToTokenMin(key.CollateralAsset, red.usdOutAfterFee)
	if err != nil {
		return nil, nil, err
	}
	ex.payOut(key.CollateralAsset, receiver, amountOut)
	return amountOut, red.feeUsd, nil
}

// zeroPosition empties a position in place, keeping lifetime realised PnL.
func zeroPosition(pos *domain.Position) {
	pos.Size = new(uint256.Int)
	pos.Collateral = new(uint256.Int)
	pos.AveragePrice = new(uint256.Int)
	pos.EntryFundingRate = new(uint256.Int)
	pos.ReserveAmount = new(uint256.Int)
	pos.LastIncreasedTime = 0
}

// collateralReduction is the settled outcome of reduceCollateral.
type collateralReduction struct {
	usdOut         *uint256.Int
	usdOutAfterFee *uint256.Int
	feeUsd         *uint256.Int
	// realised is the signed PnL this reduction moved into RealisedPnl.
	realised *big.Int
}

// reduceCollateral settles fees and the proportional share of unrealized
// PnL for a size reduction, then releases the requested collateral. Short
// PnL settles against the pool counter here; long PnL is implicit in
// guaranteed USD and settles at payout.
func (ex *execution) reduceCollateral(key domain.PositionKey, pos *domain.Position, collateralDelta, sizeDelta *uint256.Int) (*collateralReduction, error) {
	feeUsd, feeTokens, err := ex.collectMarginFees(key.CollateralAsset, sizeDelta, pos.Size, pos.EntryFundingRate)
	if err != nil {
		return nil, err
	}

	hasProfit, delta, err := ex.positionDelta(key.IndexAsset, pos.Size, pos.AveragePrice, key.IsLong, pos.LastIncreasedTime)
	if err != nil {
		return nil, err
	}
	adjustedDelta, err := safe.MulDiv(sizeDelta, delta, pos.Size)
	if err != nil {
		return nil, fmt.Errorf("adjusted delta: %w", err)
	}

	usdOut := new(uint256.Int)
	realised := new(big.Int)

	if !adjustedDelta.IsZero() {
		if hasProfit {
			usdOut.Set(adjustedDelta)
			realised.Set(adjustedDelta.ToBig())
			pos.RealisedPnl = new(big.Int).Add(pos.RealisedPnl, realised)
			if !key.IsLong {
				tokens, err := ex.usdToTokenMin(key.CollateralAsset, adjustedDelta)
				if err != nil {
					return nil, err
				}
				if err := ex.decreasePool(key.CollateralAsset, tokens); err != nil {
					return nil, err
				}
			}
		} else {
			if pos.Collateral.Lt(adjustedDelta) {
				return nil, fmt.Errorf("loss %s above collateral %s: %w", adjustedDelta, pos.Collateral, domain.ErrInvalidAmount)
			}
			pos.Collateral = new(uint256.Int).Sub(pos.Collateral, adjustedDelta)
			realised.Neg(adjustedDelta.ToBig())
			pos.RealisedPnl = new(big.Int).Add(pos.RealisedPnl, realised)
			if !key.IsLong {
				tokens, err := ex.usdToTokenMin(key.CollateralAsset, adjustedDelta)
				if err != nil {
					return nil, err
				}
				if err := ex.increasePool(key.CollateralAsset, tokens); err != nil {
					return nil, err
				}
			}
		}
	}

	if !collateralDelta.IsZero() {
		usdOut, err = safe.Add(usdOut, collateralDelta)
		if err != nil {
			return nil, fmt.Errorf("usd out: %w", err)
		}
		pos.Collateral = new(uint256.Int).Sub(pos.Collateral, collateralDelta)
	}

	if pos.Size.Eq(sizeDelta) {
		usdOut, err = safe.Add(usdOut, pos.Collateral)
		if err != nil {
			return nil, fmt.Errorf("usd out: %w", err)
		}
		pos.Collateral = new(uint256.Int)
	}

	usdOutAfterFee := new(uint256.Int).Set(usdOut)
	if usdOut.Gt(feeUsd) {
		usdOutAfterFee.Sub(usdOut, feeUsd)
	} else {
		// No payout covers the fee: charge it to remaining collateral.
		if pos.Collateral.Lt(feeUsd) {
			return nil, fmt.Errorf("fee %s above collateral %s: %w", feeUsd, pos.Collateral, domain.ErrInvalidAmount)
		}
		pos.Collateral = new(uint256.Int).Sub(pos.Collateral, feeUsd)
		if key.IsLong {
			if err := ex.decreasePool(key.CollateralAsset, feeTokens); err != nil {
				return nil, err
			}
		}
	}

	return &collateralReduction{
		usdOut:         usdOut,
		usdOutAfterFee: usdOutAfterFee,
		feeUsd:         feeUsd,
		realised:       realised,
	}, nil
}
