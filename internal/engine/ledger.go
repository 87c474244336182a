package engine

import (
	"fmt"

	"github.com/holiman/uint256"

	"vault_go/internal/domain"
	"vault_go/internal/event"
	"vault_go/pkg/safe"
)

// pool returns the ledger entry for a whitelisted asset.
func (ex *execution) pool(asset domain.AssetID) (*domain.PoolState, error) {
	p, ok := ex.st.pools[asset]
	if !ok {
		return nil, fmt.Errorf("asset %s not whitelisted: %w", asset, domain.ErrInvalidAsset)
	}
	return p, nil
}

func (ex *execution) token(asset domain.AssetID) (*domain.TokenConfig, error) {
	t, ok := ex.st.tokens[asset]
	if !ok {
		return nil, fmt.Errorf("asset %s not whitelisted: %w", asset, domain.ErrInvalidAsset)
	}
	return t, nil
}

func (ex *execution) emitPoolDelta(asset domain.AssetID, counter event.PoolCounter, increase bool, amount *uint256.Int) {
	ex.emit(&event.PoolDelta{Asset: asset, Counter: counter, Increase: increase, Amount: new(uint256.Int).Set(amount)})
}

// increasePool credits asset units to the pool, then confirms against the
// custody collaborator that the units are actually held. Crediting funds
// that never arrived fails with BalanceMismatch.
func (ex *execution) increasePool(asset domain.AssetID, amount *uint256.Int) error {
	p, err := ex.pool(asset)
	if err != nil {
		return err
	}
	next, err := safe.Add(p.PoolAmount, amount)
	if err != nil {
		return fmt.Errorf("pool %s: %w", asset, err)
	}
	balance, err := ex.v.custody.Balance(asset)
	if err != nil {
		return fmt.Errorf("custody balance %s: %w", asset, err)
	}
	if balance.Lt(next) {
		return fmt.Errorf("pool %s would be %s with only %s held: %w", asset, next, balance, domain.ErrBalanceMismatch)
	}
	p.PoolAmount = next
	ex.emitPoolDelta(asset, event.CounterPool, true, amount)
	return nil
}

// decreasePool debits asset units; the result may never fall below the
// reserved amount.
func (ex *execution) decreasePool(asset domain.AssetID, amount *uint256.Int) error {
	p, err := ex.pool(asset)
	if err != nil {
		return err
	}
	next, err := safe.Sub(p.PoolAmount, amount)
	if err != nil {
		return fmt.Errorf("pool %s: %w", asset, err)
	}
	if next.Lt(p.ReservedAmount) {
		return fmt.Errorf("pool %s would fall to %s below reserve %s: %w",
			asset, next, p.ReservedAmount, domain.ErrInvalidAmount)
	}
	p.PoolAmount = next
	ex.emitPoolDelta(asset, event.CounterPool, false, amount)
	return nil
}

func (ex *execution) increaseReserved(asset domain.AssetID, amount *uint256.Int) error {
	p, err := ex.pool(asset)
	if err != nil {
		return err
	}
	next, err := safe.Add(p.ReservedAmount, amount)
	if err != nil {
		return fmt.Errorf("reserve %s: %w", asset, err)
	}
	if next.Gt(p.PoolAmount) {
		return fmt.Errorf("reserve %s would be %s above pool %s: %w",
			asset, next, p.PoolAmount, domain.ErrInvalidAmount)
	}
	p.ReservedAmount = next
	ex.emitPoolDelta(asset, event.CounterReserved, true, amount)
	return nil
}

// decreaseReserved hard-fails on underflow: a reserve going negative is an
// arithmetic fault, never a clamp.
func (ex *execution) decreaseReserved(asset domain.AssetID, amount *uint256.Int) error {
	p, err := ex.pool(asset)
	if err != nil {
		return err
	}
	next, err := safe.Sub(p.ReservedAmount, amount)
	if err != nil {
		return fmt.Errorf("reserve %s: %w", asset, err)
	}
	p.ReservedAmount = next
	ex.emitPoolDelta(asset, event.CounterReserved, false, amount)
	return nil
}

func (ex *execution) increaseGuaranteedUsd(asset domain.AssetID, usd *uint256.Int) error {
	p, err := ex.pool(asset)
	if err != nil {
		return err
	}
	next, err := safe.Add(p.GuaranteedUsd, usd)
	if err != nil {
		return fmt.Errorf("guaranteed usd %s: %w", asset, err)
	}
	p.GuaranteedUsd = next
	ex.emitPoolDelta(asset, event.CounterGuaranteed, true, usd)
	return nil
}

func (ex *execution) decreaseGuaranteedUsd(asset domain.AssetID, usd *uint256.Int) error {
	p, err := ex.pool(asset)
	if err != nil {
		return err
	}
	next, err := safe.Sub(p.GuaranteedUsd, usd)
	if err != nil {
		return fmt.Errorf("guaranteed usd %s: %w", asset, err)
	}
	p.GuaranteedUsd = next
	ex.emitPoolDelta(asset, event.CounterGuaranteed, false, usd)
	return nil
}

// increaseSyntheticIssued mints against the per-asset cap (zero = uncapped).
// increaseShortCollateral credits escrowed short margin. The pool counter,
// the fee reserve and all short collateral together must be backed by
// custody, which is what makes an unescrowed short pay-in detectable.
func (ex *execution) increaseShortCollateral(asset domain.AssetID, amount *uint256.Int) error {
	p, err := ex.pool(asset)
	if err != nil {
		return err
	}
	next, err := safe.Add(p.ShortCollateral, amount)
	if err != nil {
		return fmt.Errorf("short collateral %s: %w", asset, err)
	}
	held, err := safe.Add(p.PoolAmount, p.FeeReserve)
	if err != nil {
		return fmt.Errorf("short collateral %s: %w", asset, err)
	}
	held, err = safe.Add(held, next)
	if err != nil {
		return fmt.Errorf("short collateral %s: %w", asset, err)
	}
	balance, err := ex.v.custody.Balance(asset)
	if err != nil {
		return fmt.Errorf("custody balance %s: %w", asset, err)
	}
	if balance.Lt(held) {
		return fmt.Errorf("short collateral %s would need %s held with only %s: %w",
			asset, held, balance, domain.ErrBalanceMismatch)
	}
	p.ShortCollateral = next
	return nil
}

// decreaseShortCollateral floors at zero, tolerant of the price drift
// between deposit-time and release-time conversions.
func (ex *execution) decreaseShortCollateral(asset domain.AssetID, amount *uint256.Int) {
	p, ok := ex.st.pools[asset]
	if !ok {
		return
	}
	if p.ShortCollateral.Lt(amount) {
		p.ShortCollateral = new(uint256.Int)
		return
	}
	p.ShortCollateral = new(uint256.Int).Sub(p.ShortCollateral, amount)
}

func (ex *execution) increaseSyntheticIssued(asset domain.AssetID, amount *uint256.Int) error {
	p, err := ex.pool(asset)
	if err != nil {
		return err
	}
	t, err := ex.token(asset)
	if err != nil {
		return err
	}
	next, err := safe.Add(p.SyntheticIssued, amount)
	if err != nil {
		return fmt.Errorf("synthetic issued %s: %w", asset, err)
	}
	if !t.MaxSyntheticIssuance.IsZero() && next.Gt(t.MaxSyntheticIssuance) {
		return fmt.Errorf("synthetic issuance %s would be %s above cap %s: %w",
			asset, next, t.MaxSyntheticIssuance, domain.ErrInvalidAmount)
	}
	p.SyntheticIssued = next
	ex.emitPoolDelta(asset, event.CounterSynthetic, true, amount)
	return nil
}

// decreaseSyntheticIssued floors at zero. The issuance counter tolerates
// rounding drift from repeated mint/redeem cycles; this is the one counter
// where clamping is the documented behavior.
func (ex *execution) decreaseSyntheticIssued(asset domain.AssetID, amount *uint256.Int) error {
	p, err := ex.pool(asset)
	if err != nil {
		return err
	}
	if p.SyntheticIssued.Lt(amount) {
		p.SyntheticIssued = new(uint256.Int)
	} else {
		p.SyntheticIssued = new(uint256.Int).Sub(p.SyntheticIssued, amount)
	}
	ex.emitPoolDelta(asset, event.CounterSynthetic, false, amount)
	return nil
}

// decreaseGlobalShortSize floors at zero, tolerant of rounding drift in the
// blended aggregate.
func (ex *execution) decreaseGlobalShortSize(asset domain.AssetID, usd *uint256.Int) {
	g, ok := ex.st.shorts[asset]
	if !ok {
		return
	}
	if g.Size.Lt(usd) {
		g.Size = new(uint256.Int)
		return
	}
	g.Size = new(uint256.Int).Sub(g.Size, usd)
}
