package engine

import (
	"fmt"

	"github.com/holiman/uint256"

	"vault_go/internal/domain"
	"vault_go/internal/event"
	"vault_go/pkg/fixed"
	"vault_go/pkg/safe"
)

func (ex *execution) swap(o *SwapOp) (*Receipt, error) {
	if !ex.st.config.SwapEnabled {
		return nil, fmt.Errorf("swap: %w", domain.ErrDisabledFeature)
	}
	if o.AssetIn == o.AssetOut {
		return nil, fmt.Errorf("swap %s into itself: %w", o.AssetIn, domain.ErrInvalidAsset)
	}
	if o.AmountIn == nil || o.AmountIn.IsZero() {
		return nil, fmt.Errorf("swap amount is zero: %w", domain.ErrInvalidAmount)
	}
	if _, err := ex.accrueFunding(o.AssetIn); err != nil {
		return nil, err
	}
	if _, err := ex.accrueFunding(o.AssetOut); err != nil {
		return nil, err
	}

	priceIn, err := ex.minPrice(o.AssetIn)
	if err != nil {
		return nil, err
	}
	priceOut, err := ex.maxPrice(o.AssetOut)
	if err != nil {
		return nil, err
	}

	raw, err := safe.MulDiv(o.AmountIn, priceIn, priceOut)
	if err != nil {
		return nil, fmt.Errorf("swap amount out: %w", err)
	}
	amountOut, err := ex.rebaseBetween(raw, o.AssetIn, o.AssetOut)
	if err != nil {
		return nil, err
	}

	// The issuance counters shift by the USD value of the leg, expressed
	// in synthetic units, so the dynamic fee curve sees the flow.
	syntheticRaw, err := safe.MulDiv(o.AmountIn, priceIn, fixed.PricePrecision)
	if err != nil {
		return nil, fmt.Errorf("swap synthetic delta: %w", err)
	}
	syntheticDelta, err := ex.rebaseBetween(syntheticRaw, o.AssetIn, ex.st.config.SyntheticAsset)
	if err != nil {
		return nil, err
	}

	feeBps, err := ex.swapFeeBasisPoints(o.AssetIn, o.AssetOut, syntheticDelta)
	if err != nil {
		return nil, err
	}
	amountOutAfterFees, err := ex.collectSwapFees(o.AssetOut, amountOut, feeBps)
	if err != nil {
		return nil, err
	}

	if err := ex.increaseSyntheticIssued(o.AssetIn, syntheticDelta); err != nil {
		return nil, err
	}
	if err := ex.decreaseSyntheticIssued(o.AssetOut, syntheticDelta); err != nil {
		return nil, err
	}
	if err := ex.increasePool(o.AssetIn, o.AmountIn); err != nil {
		return nil, err
	}
	if err := ex.decreasePool(o.AssetOut, amountOut); err != nil {
		return nil, err
	}

	outPool, err := ex.pool(o.AssetOut)
	if err != nil {
		return nil, err
	}
	if outPool.PoolAmount.Lt(outPool.BufferAmount) {
		return nil, fmt.Errorf("pool %s would drain to %s below buffer %s: %w",
			o.AssetOut, outPool.PoolAmount, outPool.BufferAmount, domain.ErrInvalidAmount)
	}

	receiver := o.Receiver
	if receiver == "" {
		receiver = ex.caller
	}
	ex.emit(&event.Swap{
		Account:            receiver,
		AssetIn:            o.AssetIn,
		AssetOut:           o.AssetOut,
		AmountIn:           new(uint256.Int).Set(o.AmountIn),
		AmountOut:          new(uint256.Int).Set(amountOut),
		AmountOutAfterFees: new(uint256.Int).Set(amountOutAfterFees),
		FeeBps:             feeBps,
	})
	ex.payOut(o.AssetOut, receiver, amountOutAfterFees)

	r := ex.receipt()
	r.AmountOut = amountOutAfterFees
	return r, nil
}

// mintSynthetic deposits a whitelisted asset into the pool and mints the
// USD-pegged synthetic against its value at the bid.
func (ex *execution) mintSynthetic(o *MintSyntheticOp) (*Receipt, error) {
	if err := ex.requireManager(); err != nil {
		return nil, err
	}
	if o.AmountIn == nil || o.AmountIn.IsZero() {
		return nil, fmt.Errorf("mint amount is zero: %w", domain.ErrInvalidAmount)
	}
	if _, err := ex.accrueFunding(o.Asset); err != nil {
		return nil, err
	}

	price, err := ex.minPrice(o.Asset)
	if err != nil {
		return nil, err
	}
	syntheticRaw, err := safe.MulDiv(o.AmountIn, price, fixed.PricePrecision)
	if err != nil {
		return nil, fmt.Errorf("mint value: %w", err)
	}
	syntheticValue, err := ex.rebaseBetween(syntheticRaw, o.Asset, ex.st.config.SyntheticAsset)
	if err != nil {
		return nil, err
	}
	if syntheticValue.IsZero() {
		return nil, fmt.Errorf("mint value rounds to zero: %w", domain.ErrInvalidAmount)
	}

	feeBps, err := ex.feeBasisPoints(o.Asset, syntheticValue, ex.st.config.MintBurnFeeBps, ex.st.config.TaxBps, true)
	if err != nil {
		return nil, err
	}
	amountAfterFees, err := ex.collectSwapFees(o.Asset, o.AmountIn, feeBps)
	if err != nil {
		return nil, err
	}
	mintRaw, err := safe.MulDiv(amountAfterFees, price, fixed.PricePrecision)
	if err != nil {
		return nil, fmt.Errorf("mint amount: %w", err)
	}
	mintAmount, err := ex.rebaseBetween(mintRaw, o.Asset, ex.st.config.SyntheticAsset)
	if err != nil {
		return nil, err
	}

	if err := ex.increaseSyntheticIssued(o.Asset, mintAmount); err != nil {
		return nil, err
	}
	if err := ex.increasePool(o.Asset, amountAfterFees); err != nil {
		return nil, err
	}

	receiver := o.Receiver
	if receiver == "" {
		receiver = ex.caller
	}
	ex.emit(&event.MintSynthetic{
		Account:    receiver,
		Asset:      o.Asset,
		AmountIn:   new(uint256.Int).Set(o.AmountIn),
		MintAmount: new(uint256.Int).Set(mintAmount),
		FeeBps:     feeBps,
	})
	ex.payOut(ex.st.config.SyntheticAsset, receiver, mintAmount)

	r := ex.receipt()
	r.MintAmount = mintAmount
	return r, nil
}

// redeemSynthetic burns synthetic units and releases the backing asset at
// the ask. The synthetic must be escrowed with custody before the call.
func (ex *execution) redeemSynthetic(o *RedeemSyntheticOp) (*Receipt, error) {
	if err := ex.requireManager(); err != nil {
		return nil, err
	}
	if o.BurnAmount == nil || o.BurnAmount.IsZero() {
		return nil, fmt.Errorf("burn amount is zero: %w", domain.ErrInvalidAmount)
	}
	if _, err := ex.accrueFunding(o.Asset); err != nil {
		return nil, err
	}

	price, err := ex.maxPrice(o.Asset)
	if err != nil {
		return nil, err
	}
	redemptionRaw, err := safe.MulDiv(o.BurnAmount, fixed.PricePrecision, price)
	if err != nil {
		return nil, fmt.Errorf("redemption amount: %w", err)
	}
	redemption, err := ex.rebaseBetween(redemptionRaw, ex.st.config.SyntheticAsset, o.Asset)
	if err != nil {
		return nil, err
	}
	if redemption.IsZero() {
		return nil, fmt.Errorf("redemption rounds to zero: %w", domain.ErrInvalidAmount)
	}

	if err := ex.decreaseSyntheticIssued(o.Asset, o.BurnAmount); err != nil {
		return nil, err
	}
	if err := ex.decreasePool(o.Asset, redemption); err != nil {
		return nil, err
	}

	feeBps, err := ex.feeBasisPoints(o.Asset, o.BurnAmount, ex.st.config.MintBurnFeeBps, ex.st.config.TaxBps, false)
	if err != nil {
		return nil, err
	}
	amountOut, err := ex.collectSwapFees(o.Asset, redemption, feeBps)
	if err != nil {
		return nil, err
	}
	if amountOut.IsZero() {
		return nil, fmt.Errorf("redemption payout rounds to zero: %w", domain.ErrInvalidAmount)
	}

	receiver := o.Receiver
	if receiver == "" {
		receiver = ex.caller
	}
	ex.emit(&event.RedeemSynthetic{
		Account:    receiver,
		Asset:      o.Asset,
		BurnAmount: new(uint256.Int).Set(o.BurnAmount),
		AmountOut:  new(uint256.Int).Set(amountOut),
		FeeBps:     feeBps,
	})
	ex.payOut(o.Asset, receiver, amountOut)

	r := ex.receipt()
	r.AmountOut = amountOut
	return r, nil
}

// directPoolDeposit credits escrowed units to the pool with nothing minted
// in return, a plain donation to pool depth.
func (ex *execution) directPoolDeposit(o *DirectPoolDepositOp) (*Receipt, error) {
	if o.Amount == nil || o.Amount.IsZero() {
		return nil, fmt.Errorf("deposit amount is zero: %w", domain.ErrInvalidAmount)
	}
	if !ex.st.isWhitelisted(o.Asset) {
		return nil, fmt.Errorf("asset %s not whitelisted: %w", o.Asset, domain.ErrInvalidAsset)
	}
	if err := ex.increasePool(o.Asset, o.Amount); err != nil {
		return nil, err
	}
	ex.emit(&event.DirectPoolDeposit{Asset: o.Asset, Amount: new(uint256.Int).Set(o.Amount)})
	return ex.receipt(), nil
}

// requireManager gates the mint/redeem surface when manager mode is on.
func (ex *execution) requireManager() error {
	if !ex.st.config.ManagerMode {
		return nil
	}
	if !ex.v.auth.HasRole(ex.caller, domain.RoleManager) {
		return fmt.Errorf("manager mode: caller %s: %w", ex.caller, domain.ErrUnauthorized)
	}
	return nil
}
