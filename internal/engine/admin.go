package engine

import (
	"fmt"

	"github.com/holiman/uint256"

	"vault_go/internal/domain"
	"vault_go/internal/event"
	"vault_go/pkg/fixed"
)

// Governance bounds. Fee rates are capped well under the basis-point
// divisor and the funding interval cannot be tightened into a drain.
const (
	maxFeeBps            = 500
	maxLiquidationFeeUsd = 100
	minFundingInterval   = 3600
	maxFundingRateFactor = 10000
)

func (ex *execution) requireAuthority() error {
	if ex.caller == ex.st.config.Authority || ex.v.auth.HasRole(ex.caller, domain.RoleAuthority) {
		return nil
	}
	return fmt.Errorf("admin op by %s: %w", ex.caller, domain.ErrUnauthorized)
}

// setTokenConfig whitelists an asset or updates a listed one. Weights feed
// the dynamic fee targets, so the aggregate is maintained here.
func (ex *execution) setTokenConfig(o *SetTokenConfigOp) (*Receipt, error) {
	if err := ex.requireAuthority(); err != nil {
		return nil, err
	}
	if o.Asset == "" || o.Asset == ex.st.config.SyntheticAsset {
		return nil, fmt.Errorf("asset %s cannot be listed: %w", o.Asset, domain.ErrInvalidAsset)
	}
	if o.Decimals == 0 || o.Decimals > fixed.PriceDecimals {
		return nil, fmt.Errorf("asset %s decimals %d out of range: %w", o.Asset, o.Decimals, domain.ErrInvalidAmount)
	}

	maxIssuance := o.MaxSyntheticIssuance
	if maxIssuance == nil {
		maxIssuance = new(uint256.Int)
	}

	if existing, ok := ex.st.tokens[o.Asset]; ok {
		ex.st.totalTokenWeights -= existing.Weight
	} else {
		ex.st.whitelist = append(ex.st.whitelist, o.Asset)
		ex.st.pools[o.Asset] = domain.NewPoolState()
		ex.st.shorts[o.Asset] = domain.NewGlobalShortState()
	}
	ex.st.tokens[o.Asset] = &domain.TokenConfig{
		Decimals:             o.Decimals,
		Weight:               o.Weight,
		MinProfitBps:         o.MinProfitBps,
		MaxSyntheticIssuance: new(uint256.Int).Set(maxIssuance),
		IsStable:             o.IsStable,
		IsShortable:          o.IsShortable,
	}
	ex.st.totalTokenWeights += o.Weight

	return ex.receipt(), nil
}

// clearTokenConfig delists an asset. Its pool counters stay behind so funds
// already custodied remain accounted for.
func (ex *execution) clearTokenConfig(o *ClearTokenConfigOp) (*Receipt, error) {
	if err := ex.requireAuthority(); err != nil {
		return nil, err
	}
	existing, ok := ex.st.tokens[o.Asset]
	if !ok {
		return nil, fmt.Errorf("asset %s not whitelisted: %w", o.Asset, domain.ErrInvalidAsset)
	}
	ex.st.totalTokenWeights -= existing.Weight
	delete(ex.st.tokens, o.Asset)
	for i, id := range ex.st.whitelist {
		if id == o.Asset {
			ex.st.whitelist = append(ex.st.whitelist[:i], ex.st.whitelist[i+1:]...)
			break
		}
	}
	return ex.receipt(), nil
}

func (ex *execution) setFees(o *SetFeesOp) (*Receipt, error) {
	if err := ex.requireAuthority(); err != nil {
		return nil, err
	}
	for _, bps := range []uint64{o.TaxBps, o.StableTaxBps, o.MintBurnFeeBps, o.SwapFeeBps, o.StableSwapBps, o.MarginFeeBps} {
		if bps > maxFeeBps {
			return nil, fmt.Errorf("fee rate %d above cap %d: %w", bps, maxFeeBps, domain.ErrInvalidAmount)
		}
	}
	if o.LiquidationFeeUsd == nil {
		return nil, fmt.Errorf("missing liquidation fee: %w", domain.ErrInvalidAmount)
	}
	maxLiqFee := new(uint256.Int).Mul(uint256.NewInt(maxLiquidationFeeUsd), fixed.PricePrecision)
	if o.LiquidationFeeUsd.Gt(maxLiqFee) {
		return nil, fmt.Errorf("liquidation fee %s above cap %s: %w", o.LiquidationFeeUsd, maxLiqFee, domain.ErrInvalidAmount)
	}

	cfg := ex.st.config
	cfg.TaxBps = o.TaxBps
	cfg.StableTaxBps = o.StableTaxBps
	cfg.MintBurnFeeBps = o.MintBurnFeeBps
	cfg.SwapFeeBps = o.SwapFeeBps
	cfg.StableSwapBps = o.StableSwapBps
	cfg.MarginFeeBps = o.MarginFeeBps
	cfg.LiquidationFeeUsd = new(uint256.Int).Set(o.LiquidationFeeUsd)
	cfg.MinProfitTime = o.MinProfitTime
	cfg.HasDynamicFees = o.HasDynamicFees
	return ex.receipt(), nil
}

func (ex *execution) setFundingRate(o *SetFundingRateOp) (*Receipt, error) {
	if err := ex.requireAuthority(); err != nil {
		return nil, err
	}
	if o.FundingInterval < minFundingInterval {
		return nil, fmt.Errorf("funding interval %d below minimum %d: %w", o.FundingInterval, minFundingInterval, domain.ErrInvalidAmount)
	}
	if o.FundingRateFactor > maxFundingRateFactor || o.StableFundingRateFactor > maxFundingRateFactor {
		return nil, fmt.Errorf("funding rate factor above cap %d: %w", maxFundingRateFactor, domain.ErrInvalidAmount)
	}
	cfg := ex.st.config
	cfg.FundingInterval = o.FundingInterval
	cfg.FundingRateFactor = o.FundingRateFactor
	cfg.StableFundingRateFactor = o.StableFundingRateFactor
	return ex.receipt(), nil
}

func (ex *execution) setBufferAmount(o *SetBufferAmountOp) (*Receipt, error) {
	if err := ex.requireAuthority(); err != nil {
		return nil, err
	}
	p, err := ex.pool(o.Asset)
	if err != nil {
		return nil, err
	}
	if o.Amount == nil {
		return nil, fmt.Errorf("missing buffer amount: %w", domain.ErrInvalidAmount)
	}
	p.BufferAmount = new(uint256.Int).Set(o.Amount)
	return ex.receipt(), nil
}

func (ex *execution) setMaxGlobalShortSize(o *SetMaxGlobalShortSizeOp) (*Receipt, error) {
	if err := ex.requireAuthority(); err != nil {
		return nil, err
	}
	g, ok := ex.st.shorts[o.Asset]
	if !ok {
		return nil, fmt.Errorf("asset %s not whitelisted: %w", o.Asset, domain.ErrInvalidAsset)
	}
	if o.Amount == nil {
		return nil, fmt.Errorf("missing short size cap: %w", domain.ErrInvalidAmount)
	}
	g.MaxSize = new(uint256.Int).Set(o.Amount)
	return ex.receipt(), nil
}

func (ex *execution) setFeature(o *SetFeatureOp) (*Receipt, error) {
	if err := ex.requireAuthority(); err != nil {
		return nil, err
	}
	cfg := ex.st.config
	switch o.Feature {
	case FeatureSwap:
		cfg.SwapEnabled = o.Enabled
	case FeatureLeverage:
		cfg.LeverageEnabled = o.Enabled
	case FeatureManagerMode:
		cfg.ManagerMode = o.Enabled
	case FeaturePrivateLiquidation:
		cfg.PrivateLiquidationMode = o.Enabled
	default:
		return nil, fmt.Errorf("unknown feature %q: %w", o.Feature, domain.ErrInvalidAmount)
	}
	return ex.receipt(), nil
}

// withdrawFees drains the accumulated fee reserve of one asset.
func (ex *execution) withdrawFees(o *WithdrawFeesOp) (*Receipt, error) {
	if err := ex.requireAuthority(); err != nil {
		return nil, err
	}
	p, err := ex.pool(o.Asset)
	if err != nil {
		return nil, err
	}
	amount := p.FeeReserve
	if amount.IsZero() {
		r := ex.receipt()
		r.AmountOut = new(uint256.Int)
		return r, nil
	}
	p.FeeReserve = new(uint256.Int)

	receiver := o.Receiver
	if receiver == "" {
		receiver = ex.caller
	}
	ex.emit(&event.WithdrawFees{
		Asset:    o.Asset,
		Amount:   new(uint256.Int).Set(amount),
		Receiver: receiver,
	})
	ex.payOut(o.Asset, receiver, amount)

	r := ex.receipt()
	r.AmountOut = amount
	return r, nil
}
