package infra

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"vault_go/internal/domain"
)

// PriceBook is an in-memory oracle fed either statically (tests, backtests)
// or by the websocket feed worker. Min is the bid side, max the ask.
type PriceBook struct {
	mu     sync.RWMutex
	quotes map[domain.AssetID]quote
}

type quote struct {
	min *uint256.Int
	max *uint256.Int
}

func NewPriceBook() *PriceBook {
	return &PriceBook{quotes: make(map[domain.AssetID]quote)}
}

// SetPrice records both sides of an asset's quote at price precision.
func (b *PriceBook) SetPrice(asset domain.AssetID, min, max *uint256.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes[asset] = quote{
		min: new(uint256.Int).Set(min),
		max: new(uint256.Int).Set(max),
	}
}

func (b *PriceBook) MinPrice(asset domain.AssetID) (*uint256.Int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quotes[asset]
	if !ok {
		return nil, fmt.Errorf("no quote for %s: %w", asset, domain.ErrInvalidAsset)
	}
	return new(uint256.Int).Set(q.min), nil
}

func (b *PriceBook) MaxPrice(asset domain.AssetID) (*uint256.Int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quotes[asset]
	if !ok {
		return nil, fmt.Errorf("no quote for %s: %w", asset, domain.ErrInvalidAsset)
	}
	return new(uint256.Int).Set(q.max), nil
}
