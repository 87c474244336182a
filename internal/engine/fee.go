package engine

import (
	"fmt"

	"github.com/holiman/uint256"

	"vault_go/internal/domain"
	"vault_go/internal/event"
	"vault_go/pkg/fixed"
	"vault_go/pkg/safe"
)

// positionFeeUsd is the margin fee on a size delta, at price precision.
// Computed as the complement of the after-fee amount so rounding always
// favors the fee reserve.
func (ex *execution) positionFeeUsd(sizeDelta *uint256.Int) (*uint256.Int, error) {
	if sizeDelta.IsZero() {
		return new(uint256.Int), nil
	}
	marginBps := ex.st.config.MarginFeeBps
	afterFee, err := safe.MulDiv(sizeDelta, uint256.NewInt(fixed.BasisPointsDivisor-marginBps), fixed.BpsDivisor)
	if err != nil {
		return nil, fmt.Errorf("position fee: %w", err)
	}
	return new(uint256.Int).Sub(sizeDelta, afterFee), nil
}

// collectMarginFees charges the margin fee on sizeDelta plus the position's
// outstanding funding fee. The fee lands in the collateral asset's fee
// reserve; both the USD fee and its token conversion are returned so the
// caller never re-derives either.
func (ex *execution) collectMarginFees(collateralAsset domain.AssetID, sizeDelta, size, entryFundingRate *uint256.Int) (feeUsd, feeTokens *uint256.Int, err error) {
	feeUsd, err = ex.positionFeeUsd(sizeDelta)
	if err != nil {
		return nil, nil, err
	}
	fundingFee, err := ex.fundingFeeUsd(collateralAsset, size, entryFundingRate)
	if err != nil {
		return nil, nil, err
	}
	feeUsd, err = safe.Add(feeUsd, fundingFee)
	if err != nil {
		return nil, nil, fmt.Errorf("margin fee %s: %w", collateralAsset, err)
	}

	feeTokens, err = ex.usdToTokenMin(collateralAsset, feeUsd)
	if err != nil {
		return nil, nil, err
	}
	p, err := ex.pool(collateralAsset)
	if err != nil {
		return nil, nil, err
	}
	next, err := safe.Add(p.FeeReserve, feeTokens)
	if err != nil {
		return nil, nil, fmt.Errorf("fee reserve %s: %w", collateralAsset, err)
	}
	p.FeeReserve = next

	ex.emit(&event.CollectMarginFees{
		Asset:     collateralAsset,
		FeeUsd:    new(uint256.Int).Set(feeUsd),
		FeeTokens: new(uint256.Int).Set(feeTokens),
	})
	return feeUsd, feeTokens, nil
}

// collectSwapFees takes feeBps out of amount in asset units, banks the cut in
// the fee reserve and returns the remainder.
func (ex *execution) collectSwapFees(asset domain.AssetID, amount *uint256.Int, feeBps uint64) (*uint256.Int, error) {
	afterFee, err := safe.MulDiv(amount, uint256.NewInt(fixed.BasisPointsDivisor-feeBps), fixed.BpsDivisor)
	if err != nil {
		return nil, fmt.Errorf("swap fee %s: %w", asset, err)
	}
	feeTokens := new(uint256.Int).Sub(amount, afterFee)
	feeUsd, err := ex.tokenToUsdMin(asset, feeTokens)
	if err != nil {
		return nil, err
	}

	p, err := ex.pool(asset)
	if err != nil {
		return nil, err
	}
	next, err := safe.Add(p.FeeReserve, feeTokens)
	if err != nil {
		return nil, fmt.Errorf("fee reserve %s: %w", asset, err)
	}
	p.FeeReserve = next

	ex.emit(&event.CollectSwapFees{
		Asset:     asset,
		FeeUsd:    feeUsd,
		FeeTokens: new(uint256.Int).Set(feeTokens),
	})
	return afterFee, nil
}

// totalSyntheticIssued sums issuance over the whitelist in listing order.
func (ex *execution) totalSyntheticIssued() (*uint256.Int, error) {
	total := new(uint256.Int)
	for _, asset := range ex.st.whitelist {
		p, err := ex.pool(asset)
		if err != nil {
			return nil, err
		}
		total, err = safe.Add(total, p.SyntheticIssued)
		if err != nil {
			return nil, fmt.Errorf("total synthetic issued: %w", err)
		}
	}
	return total, nil
}

// targetSyntheticAmount is the asset's weight-proportional share of total
// synthetic issuance.
func (ex *execution) targetSyntheticAmount(asset domain.AssetID) (*uint256.Int, error) {
	t, err := ex.token(asset)
	if err != nil {
		return nil, err
	}
	if ex.st.totalTokenWeights == 0 {
		return new(uint256.Int), nil
	}
	total, err := ex.totalSyntheticIssued()
	if err != nil {
		return nil, err
	}
	return safe.MulDiv(total, uint256.NewInt(t.Weight), uint256.NewInt(ex.st.totalTokenWeights))
}

// feeBasisPoints applies the dynamic fee curve: moves that pull an asset's
// synthetic issuance toward its weight target earn a rebate on baseBps,
// moves that push it away pay a surcharge scaled by taxBps. With dynamic
// fees off it is just baseBps.
func (ex *execution) feeBasisPoints(asset domain.AssetID, syntheticDelta *uint256.Int, baseBps, taxBps uint64, increment bool) (uint64, error) {
	if !ex.st.config.HasDynamicFees {
		return baseBps, nil
	}
	p, err := ex.pool(asset)
	if err != nil {
		return 0, err
	}
	target, err := ex.targetSyntheticAmount(asset)
	if err != nil {
		return 0, err
	}
	if target.IsZero() {
		return baseBps, nil
	}

	initial := p.SyntheticIssued
	var next *uint256.Int
	if increment {
		next, err = safe.Add(initial, syntheticDelta)
		if err != nil {
			return 0, fmt.Errorf("fee basis points %s: %w", asset, err)
		}
	} else if initial.Gt(syntheticDelta) {
		next = new(uint256.Int).Sub(initial, syntheticDelta)
	} else {
		next = new(uint256.Int)
	}

	initialDiff := absDiff(initial, target)
	nextDiff := absDiff(next, target)

	// Moving toward the target: rebate proportional to how far off the
	// asset currently is, capped at the whole base fee.
	if nextDiff.Lt(initialDiff) {
		rebate, err := safe.MulDiv(uint256.NewInt(taxBps), initialDiff, target)
		if err != nil {
			return 0, fmt.Errorf("fee basis points %s: %w", asset, err)
		}
		if !rebate.Lt(uint256.NewInt(baseBps)) {
			return 0, nil
		}
		return baseBps - rebate.Uint64(), nil
	}

	avgDiff := new(uint256.Int).Add(initialDiff, nextDiff)
	avgDiff.Rsh(avgDiff, 1)
	if avgDiff.Gt(target) {
		avgDiff = target
	}
	surcharge, err := safe.MulDiv(uint256.NewInt(taxBps), avgDiff, target)
	if err != nil {
		return 0, fmt.Errorf("fee basis points %s: %w", asset, err)
	}
	// avgDiff <= target keeps the surcharge at or under taxBps.
	return baseBps + surcharge.Uint64(), nil
}

// swapFeeBasisPoints rates a swap leg pair: the stable schedule applies only
// when both legs are stable, and the worse of the two legs' dynamic fees
// wins.
func (ex *execution) swapFeeBasisPoints(assetIn, assetOut domain.AssetID, syntheticDelta *uint256.Int) (uint64, error) {
	tIn, err := ex.token(assetIn)
	if err != nil {
		return 0, err
	}
	tOut, err := ex.token(assetOut)
	if err != nil {
		return 0, err
	}
	cfg := ex.st.config

	baseBps, taxBps := cfg.SwapFeeBps, cfg.TaxBps
	if tIn.IsStable && tOut.IsStable {
		baseBps, taxBps = cfg.StableSwapBps, cfg.StableTaxBps
	}

	feesIn, err := ex.feeBasisPoints(assetIn, syntheticDelta, baseBps, taxBps, true)
	if err != nil {
		return 0, err
	}
	feesOut, err := ex.feeBasisPoints(assetOut, syntheticDelta, baseBps, taxBps, false)
	if err != nil {
		return 0, err
	}
	if feesIn > feesOut {
		return feesIn, nil
	}
	return feesOut, nil
}

func absDiff(a, b *uint256.Int) *uint256.Int {
	if a.Gt(b) {
		return new(uint256.Int).Sub(a, b)
	}
	return new(uint256.Int).Sub(b, a)
}
