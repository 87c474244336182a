package domain

import "github.com/holiman/uint256"

// TokenConfig is the static per-asset configuration consulted by every
// engine component. Mutated only through admin operations.
type TokenConfig struct {
	Decimals     uint32
	Weight       uint64
	MinProfitBps uint64
	// MaxSyntheticIssuance caps SyntheticIssued for this asset; zero means
	// uncapped.
	MaxSyntheticIssuance *uint256.Int
	IsStable             bool
	IsShortable          bool
}

func (t *TokenConfig) Clone() *TokenConfig {
	c := *t
	c.MaxSyntheticIssuance = new(uint256.Int).Set(t.MaxSyntheticIssuance)
	return &c
}
