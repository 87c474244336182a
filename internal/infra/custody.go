package infra

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"vault_go/internal/domain"
)

// Bank is an in-memory custody ledger: per-asset units the vault holds.
// PayIn models a deposit landing before an operation is submitted; the
// engine checks Balance before crediting its pool counter.
//
// The synthetic stable is a vault liability, not a held token: paying it
// out mints, so no balance backs it.
type Bank struct {
	synthetic domain.AssetID

	mu       sync.RWMutex
	balances map[domain.AssetID]*uint256.Int
}

func NewBank(synthetic domain.AssetID) *Bank {
	return &Bank{
		synthetic: synthetic,
		balances:  make(map[domain.AssetID]*uint256.Int),
	}
}

// PayIn credits units to the vault's custody.
func (b *Bank) PayIn(asset domain.AssetID, amount *uint256.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur, ok := b.balances[asset]
	if !ok {
		cur = new(uint256.Int)
	}
	b.balances[asset] = new(uint256.Int).Add(cur, amount)
}

// Balance reports the units currently custodied for an asset.
func (b *Bank) Balance(asset domain.AssetID) (*uint256.Int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	cur, ok := b.balances[asset]
	if !ok {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Set(cur), nil
}

// PayOut releases units to a recipient, refusing to go below zero.
func (b *Bank) PayOut(asset domain.AssetID, recipient domain.AccountID, amount *uint256.Int) error {
	if asset == b.synthetic {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	cur, ok := b.balances[asset]
	if !ok || cur.Lt(amount) {
		return fmt.Errorf("custody %s cannot pay %s to %s: %w", asset, amount, recipient, domain.ErrBalanceMismatch)
	}
	b.balances[asset] = new(uint256.Int).Sub(cur, amount)
	return nil
}
