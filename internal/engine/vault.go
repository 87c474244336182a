// Package engine implements the pool/position accounting and risk core:
// pool reserve bookkeeping, funding accrual, position lifecycle, PnL
// realization, liquidation decisioning and the swap/bridge legs.
//
// The engine executes one operation at a time to completion. Time is always
// an operation field, never a clock read, so a journal of operations replays
// to an identical state.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/holiman/uint256"

	"vault_go/internal/domain"
	"vault_go/internal/event"
	"vault_go/pkg/safe"
)

// Receipt is the success result of one operation: the numeric outputs the
// caller consumes plus the notifications the operation emitted.
type Receipt struct {
	Seq uint64
	// AmountOut is token units paid out (swap, redeem, decrease payout).
	AmountOut *uint256.Int
	// FeeUsd is the margin or swap fee charged, at price precision.
	FeeUsd *uint256.Int
	// MintAmount is synthetic stable minted, at synthetic decimals.
	MintAmount *uint256.Int
	// FundingUpdated reports whether an accrual call moved the index;
	// false within an interval is the documented no-op outcome.
	FundingUpdated bool
	Events         []event.Notification
}

// Vault owns the ledger state and dispatches the operation union.
type Vault struct {
	// mu guards state for external reads; execution itself is
	// single-threaded under the write lock.
	mu      sync.RWMutex
	st      *ledgerState
	nextSeq uint64

	oracle  Oracle
	custody Custody
	auth    Authorizer
	journal Journal
}

// New creates an initialized, empty vault from the starting configuration.
func New(cfg *domain.VaultConfig, oracle Oracle, custody Custody, auth Authorizer, journal Journal) (*Vault, error) {
	if cfg == nil || cfg.LiquidationFeeUsd == nil {
		return nil, fmt.Errorf("vault config incomplete: %w", domain.ErrInvalidAmount)
	}
	if cfg.FundingInterval == 0 {
		return nil, fmt.Errorf("funding interval must be positive: %w", domain.ErrInvalidAmount)
	}
	if oracle == nil || custody == nil || auth == nil {
		return nil, fmt.Errorf("missing collaborator: %w", domain.ErrInvalidAmount)
	}
	return &Vault{
		st:      newLedgerState(cfg),
		nextSeq: 1,
		oracle:  oracle,
		custody: custody,
		auth:    auth,
		journal: journal,
	}, nil
}

// pendingTransfer is a custody payout buffered until every ledger check of
// the operation has passed.
type pendingTransfer struct {
	asset     domain.AssetID
	recipient domain.AccountID
	amount    *uint256.Int
}

// execution is the per-operation context: the cloned state, the operation's
// externally supplied time, and the buffered side effects.
type execution struct {
	v      *Vault
	st     *ledgerState
	now    uint64
	caller domain.AccountID

	events    []event.Notification
	transfers []pendingTransfer
}

func (ex *execution) emit(n event.Notification) {
	ex.events = append(ex.events, n)
}

func (ex *execution) payOut(asset domain.AssetID, recipient domain.AccountID, amount *uint256.Int) {
	if amount.IsZero() {
		return
	}
	ex.transfers = append(ex.transfers, pendingTransfer{asset: asset, recipient: recipient, amount: amount})
}

// Execute runs one operation atomically: on any failure the live state is
// untouched; on success the mutated copy is committed, notifications are
// stamped, and the operation is journaled.
func (v *Vault) Execute(ctx context.Context, op Op) (*Receipt, error) {
	return v.execute(ctx, op, true)
}

// Replay re-executes a journaled operation without re-journaling it.
func (v *Vault) Replay(ctx context.Context, op Op) (*Receipt, error) {
	return v.execute(ctx, op, false)
}

func (v *Vault) execute(ctx context.Context, op Op, journaled bool) (*Receipt, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ex := &execution{v: v, st: v.st.clone(), now: op.At(), caller: op.Caller()}

	receipt, err := ex.apply(op)
	if err != nil {
		return nil, err
	}

	// Custody must already cover every buffered payout here, so that once
	// the operation is journaled nothing can abort it and funds only move
	// for operations that commit.
	if err := v.checkTransfers(ex); err != nil {
		return nil, err
	}

	seq := v.nextSeq
	for _, n := range receipt.Events {
		if s, ok := n.(event.Stampable); ok {
			s.SetMeta(seq, op.At())
		}
	}

	if journaled && v.journal != nil {
		payload, err := EncodeOp(op)
		if err != nil {
			return nil, fmt.Errorf("encode op for journal: %w", err)
		}
		if err := v.journal.Append(ctx, seq, op.At(), op.Kind(), payload); err != nil {
			return nil, fmt.Errorf("journal append: %w", err)
		}
	}

	// Balances were verified above and execution is single-threaded under
	// the lock, so a refusal here means custody diverged from the ledger
	// outside the vault's control.
	for _, tr := range ex.transfers {
		if err := v.custody.PayOut(tr.asset, tr.recipient, tr.amount); err != nil {
			return nil, fmt.Errorf("pay out %s %s to %s: %w", tr.amount, tr.asset, tr.recipient, err)
		}
	}

	v.st = ex.st
	v.nextSeq = seq + 1
	receipt.Seq = seq

	slog.Debug("op committed", "seq", seq, "kind", op.Kind(), "ts", op.At(), "events", len(receipt.Events))
	return receipt, nil
}

// checkTransfers verifies custody holds enough of every asset the buffered
// payouts will release. The synthetic stable is minted on the way out and
// needs no backing.
func (v *Vault) checkTransfers(ex *execution) error {
	if len(ex.transfers) == 0 {
		return nil
	}
	needed := make(map[domain.AssetID]*uint256.Int)
	for _, tr := range ex.transfers {
		if tr.asset == ex.st.config.SyntheticAsset {
			continue
		}
		cur, ok := needed[tr.asset]
		if !ok {
			cur = new(uint256.Int)
		}
		total, err := safe.Add(cur, tr.amount)
		if err != nil {
			return fmt.Errorf("payout total %s: %w", tr.asset, err)
		}
		needed[tr.asset] = total
	}
	for asset, total := range needed {
		balance, err := v.custody.Balance(asset)
		if err != nil {
			return fmt.Errorf("custody balance %s: %w", asset, err)
		}
		if balance.Lt(total) {
			return fmt.Errorf("payout of %s %s exceeds custody %s: %w", total, asset, balance, domain.ErrBalanceMismatch)
		}
	}
	return nil
}

// apply dispatches over the operation union. One case per operation.
func (ex *execution) apply(op Op) (*Receipt, error) {
	switch o := op.(type) {
	case *IncreasePositionOp:
		return ex.increasePosition(o)
	case *DecreasePositionOp:
		return ex.decreasePosition(o)
	case *LiquidatePositionOp:
		return ex.liquidatePosition(o)
	case *SwapOp:
		return ex.swap(o)
	case *MintSyntheticOp:
		return ex.mintSynthetic(o)
	case *RedeemSyntheticOp:
		return ex.redeemSynthetic(o)
	case *DirectPoolDepositOp:
		return ex.directPoolDeposit(o)
	case *AccrueFundingOp:
		return ex.accrueFundingOp(o)
	case *SetTokenConfigOp:
		return ex.setTokenConfig(o)
	case *ClearTokenConfigOp:
		return ex.clearTokenConfig(o)
	case *SetFeesOp:
		return ex.setFees(o)
	case *SetFundingRateOp:
		return ex.setFundingRate(o)
	case *SetBufferAmountOp:
		return ex.setBufferAmount(o)
	case *SetMaxGlobalShortSizeOp:
		return ex.setMaxGlobalShortSize(o)
	case *SetFeatureOp:
		return ex.setFeature(o)
	case *WithdrawFeesOp:
		return ex.withdrawFees(o)
	default:
		return nil, fmt.Errorf("unsupported operation %T", op)
	}
}

func (ex *execution) receipt() *Receipt {
	return &Receipt{Events: ex.events}
}

// --- read-only projections ---

// Position returns a copy of the position for key, zero-valued when the
// position has never been opened.
func (v *Vault) Position(key domain.PositionKey) *domain.Position {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if p, ok := v.st.positions[key]; ok {
		return p.Clone()
	}
	return domain.NewPosition()
}

// TokenConfig returns the static config for a whitelisted asset.
func (v *Vault) TokenConfig(asset domain.AssetID) (*domain.TokenConfig, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	t, ok := v.st.tokens[asset]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// PoolState returns a copy of the per-asset ledger counters.
func (v *Vault) PoolState(asset domain.AssetID) (*domain.PoolState, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	p, ok := v.st.pools[asset]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// GlobalShort returns a copy of the aggregate short state for an index asset.
func (v *Vault) GlobalShort(asset domain.AssetID) (*domain.GlobalShortState, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	g, ok := v.st.shorts[asset]
	if !ok {
		return nil, false
	}
	return g.Clone(), true
}

// Config returns a copy of the current vault configuration.
func (v *Vault) Config() *domain.VaultConfig {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.st.config.Clone()
}

// WhitelistedAssets returns asset ids in listing order.
func (v *Vault) WhitelistedAssets() []domain.AssetID {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]domain.AssetID(nil), v.st.whitelist...)
}

// NextSeq returns the sequence number the next committed operation will get.
func (v *Vault) NextSeq() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.nextSeq
}

// RedemptionCollateral reports the token units actually available to back
// synthetic redemptions of an asset: for stables the pool itself, otherwise
// the long exposure owed by the pool plus unreserved pool depth.
func (v *Vault) RedemptionCollateral(asset domain.AssetID) (*uint256.Int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	ex := &execution{v: v, st: v.st}
	t, err := ex.token(asset)
	if err != nil {
		return nil, err
	}
	p, err := ex.pool(asset)
	if err != nil {
		return nil, err
	}
	if t.IsStable {
		return new(uint256.Int).Set(p.PoolAmount), nil
	}
	guaranteed, err := ex.usdToTokenMin(asset, p.GuaranteedUsd)
	if err != nil {
		return nil, err
	}
	collateral := new(uint256.Int).Add(guaranteed, p.PoolAmount)
	if collateral.Lt(p.ReservedAmount) {
		return nil, fmt.Errorf("redemption collateral %s below reserve: %w", asset, domain.ErrInvariantBroken)
	}
	return collateral.Sub(collateral, p.ReservedAmount), nil
}

// RedemptionCollateralUsd is RedemptionCollateral valued at the bid.
func (v *Vault) RedemptionCollateralUsd(asset domain.AssetID) (*uint256.Int, error) {
	collateral, err := v.RedemptionCollateral(asset)
	if err != nil {
		return nil, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	ex := &execution{v: v, st: v.st}
	return ex.tokenToUsdMin(asset, collateral)
}
