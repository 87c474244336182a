package engine

import (
	"fmt"

	"github.com/holiman/uint256"

	"vault_go/internal/domain"
	"vault_go/internal/event"
	"vault_go/pkg/fixed"
	"vault_go/pkg/safe"
)

// accrueFunding advances the cumulative funding index for one asset.
//
// State machine: Uninitialized until the first call, which records the
// caller-supplied time without moving the index. Within an interval the
// call is a no-op outcome: changed == false, never an error. Past the
// interval, whole elapsed intervals accrue at once and the timestamp snaps
// to the interval boundary, so accrual is idempotent within an interval and
// deterministic under replay.
func (ex *execution) accrueFunding(asset domain.AssetID) (bool, error) {
	p, err := ex.pool(asset)
	if err != nil {
		return false, err
	}
	interval := ex.st.config.FundingInterval

	if !p.FundingAccruing {
		p.FundingAccruing = true
		p.LastFundingTime = ex.now
		return false, nil
	}

	if p.LastFundingTime+interval > ex.now {
		return false, nil
	}

	rate, err := ex.nextFundingRate(asset, p)
	if err != nil {
		return false, err
	}

	next, err := safe.Add(p.CumulativeFundingRate, rate)
	if err != nil {
		return false, fmt.Errorf("funding index %s: %w", asset, err)
	}
	p.CumulativeFundingRate = next
	p.LastFundingTime = (ex.now / interval) * interval

	ex.emit(&event.UpdateFundingRate{
		Asset:                 asset,
		CumulativeFundingRate: new(uint256.Int).Set(p.CumulativeFundingRate),
	})
	return true, nil
}

// nextFundingRate computes factor * reservedAmount * intervals / poolAmount,
// zero when the pool is empty. The factor is the stable or standard one
// depending on the asset's stability flag.
func (ex *execution) nextFundingRate(asset domain.AssetID, p *domain.PoolState) (*uint256.Int, error) {
	if p.PoolAmount.IsZero() {
		return new(uint256.Int), nil
	}
	t, err := ex.token(asset)
	if err != nil {
		return nil, err
	}
	cfg := ex.st.config

	factor := cfg.FundingRateFactor
	if t.IsStable {
		factor = cfg.StableFundingRateFactor
	}
	intervals := (ex.now - p.LastFundingTime) / cfg.FundingInterval

	num, err := safe.Mul(uint256.NewInt(factor), p.ReservedAmount)
	if err != nil {
		return nil, fmt.Errorf("funding rate %s: %w", asset, err)
	}
	return safe.MulDiv(num, uint256.NewInt(intervals), p.PoolAmount)
}

// fundingFeeUsd is a position's outstanding funding charge:
// size * (cumulativeIndex - entryIndex) / fundingPrecision.
func (ex *execution) fundingFeeUsd(asset domain.AssetID, size, entryFundingRate *uint256.Int) (*uint256.Int, error) {
	if size.IsZero() {
		return new(uint256.Int), nil
	}
	p, err := ex.pool(asset)
	if err != nil {
		return nil, err
	}
	accrued, err := safe.Sub(p.CumulativeFundingRate, entryFundingRate)
	if err != nil {
		// The entry snapshot can never exceed the monotonic index.
		return nil, fmt.Errorf("funding index %s behind entry snapshot: %w", asset, domain.ErrInvariantBroken)
	}
	if accrued.IsZero() {
		return new(uint256.Int), nil
	}
	return safe.MulDiv(size, accrued, fixed.FundingRatePrecision)
}

func (ex *execution) accrueFundingOp(o *AccrueFundingOp) (*Receipt, error) {
	changed, err := ex.accrueFunding(o.Asset)
	if err != nil {
		return nil, err
	}
	r := ex.receipt()
	r.FundingUpdated = changed
	return r, nil
}
