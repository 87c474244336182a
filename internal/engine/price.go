package engine

import (
	"fmt"

	"github.com/holiman/uint256"

	"vault_go/internal/domain"
	"vault_go/pkg/fixed"
	"vault_go/pkg/safe"
)

// minPrice queries the oracle's bid for an asset. A zero price is refused:
// every conversion divides or multiplies by it.
func (ex *execution) minPrice(asset domain.AssetID) (*uint256.Int, error) {
	p, err := ex.v.oracle.MinPrice(asset)
	if err != nil {
		return nil, fmt.Errorf("oracle min price %s: %w", asset, err)
	}
	if p.IsZero() {
		return nil, fmt.Errorf("oracle min price %s is zero: %w", asset, domain.ErrInvalidAsset)
	}
	return p, nil
}

func (ex *execution) maxPrice(asset domain.AssetID) (*uint256.Int, error) {
	p, err := ex.v.oracle.MaxPrice(asset)
	if err != nil {
		return nil, fmt.Errorf("oracle max price %s: %w", asset, err)
	}
	if p.IsZero() {
		return nil, fmt.Errorf("oracle max price %s is zero: %w", asset, domain.ErrInvalidAsset)
	}
	return p, nil
}

// decimalsOf resolves an asset's decimal count; the synthetic stable asset
// is not in the registry and always uses the fixed synthetic base.
func (ex *execution) decimalsOf(asset domain.AssetID) (uint32, error) {
	if asset == ex.st.config.SyntheticAsset {
		return fixed.SyntheticDecimals, nil
	}
	t, err := ex.token(asset)
	if err != nil {
		return 0, err
	}
	return t.Decimals, nil
}

// tokenToUsd values token units at the given price: amount * price / 10^dec.
func (ex *execution) tokenToUsd(asset domain.AssetID, amount, price *uint256.Int) (*uint256.Int, error) {
	if amount.IsZero() {
		return new(uint256.Int), nil
	}
	dec, err := ex.decimalsOf(asset)
	if err != nil {
		return nil, err
	}
	return safe.MulDiv(amount, price, fixed.Pow10(dec))
}

// tokenToUsdMin values token units at the unfavorable (min) price.
func (ex *execution) tokenToUsdMin(asset domain.AssetID, amount *uint256.Int) (*uint256.Int, error) {
	price, err := ex.minPrice(asset)
	if err != nil {
		return nil, err
	}
	return ex.tokenToUsd(asset, amount, price)
}

// usdToToken converts USD at price precision to token units: usd * 10^dec / price.
func (ex *execution) usdToToken(asset domain.AssetID, usd, price *uint256.Int) (*uint256.Int, error) {
	if usd.IsZero() {
		return new(uint256.Int), nil
	}
	dec, err := ex.decimalsOf(asset)
	if err != nil {
		return nil, err
	}
	return safe.MulDiv(usd, fixed.Pow10(dec), price)
}

// usdToTokenMax converts at the min price, yielding the most token units.
func (ex *execution) usdToTokenMax(asset domain.AssetID, usd *uint256.Int) (*uint256.Int, error) {
	price, err := ex.minPrice(asset)
	if err != nil {
		return nil, err
	}
	return ex.usdToToken(asset, usd, price)
}

// usdToTokenMin converts at the max price, yielding the fewest token units.
func (ex *execution) usdToTokenMin(asset domain.AssetID, usd *uint256.Int) (*uint256.Int, error) {
	price, err := ex.maxPrice(asset)
	if err != nil {
		return nil, err
	}
	return ex.usdToToken(asset, usd, price)
}

// rebaseBetween rescales an amount from one asset's decimal base to
// another's. Applied on every leg of a swap or mint/burn.
func (ex *execution) rebaseBetween(amount *uint256.Int, from, to domain.AssetID) (*uint256.Int, error) {
	fromDec, err := ex.decimalsOf(from)
	if err != nil {
		return nil, err
	}
	toDec, err := ex.decimalsOf(to)
	if err != nil {
		return nil, err
	}
	return fixed.Rebase(amount, fromDec, toDec), nil
}
