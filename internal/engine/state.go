package engine

import (
	"vault_go/internal/domain"
)

// ledgerState is the whole mutable world of the vault. Operations execute
// against a deep copy; the copy replaces the live state only when every
// check has passed, which gives each operation all-or-nothing semantics
// across every counter it touches.
type ledgerState struct {
	config *domain.VaultConfig

	tokens map[domain.AssetID]*domain.TokenConfig
	// whitelist preserves listing order so aggregate iteration is
	// deterministic under replay.
	whitelist         []domain.AssetID
	totalTokenWeights uint64

	pools     map[domain.AssetID]*domain.PoolState
	shorts    map[domain.AssetID]*domain.GlobalShortState
	positions map[domain.PositionKey]*domain.Position
}

func newLedgerState(cfg *domain.VaultConfig) *ledgerState {
	return &ledgerState{
		config:    cfg.Clone(),
		tokens:    make(map[domain.AssetID]*domain.TokenConfig),
		pools:     make(map[domain.AssetID]*domain.PoolState),
		shorts:    make(map[domain.AssetID]*domain.GlobalShortState),
		positions: make(map[domain.PositionKey]*domain.Position),
	}
}

func (s *ledgerState) clone() *ledgerState {
	n := &ledgerState{
		config:            s.config.Clone(),
		tokens:            make(map[domain.AssetID]*domain.TokenConfig, len(s.tokens)),
		whitelist:         append([]domain.AssetID(nil), s.whitelist...),
		totalTokenWeights: s.totalTokenWeights,
		pools:             make(map[domain.AssetID]*domain.PoolState, len(s.pools)),
		shorts:            make(map[domain.AssetID]*domain.GlobalShortState, len(s.shorts)),
		positions:         make(map[domain.PositionKey]*domain.Position, len(s.positions)),
	}
	for id, t := range s.tokens {
		n.tokens[id] = t.Clone()
	}
	for id, p := range s.pools {
		n.pools[id] = p.Clone()
	}
	for id, g := range s.shorts {
		n.shorts[id] = g.Clone()
	}
	for k, p := range s.positions {
		n.positions[k] = p.Clone()
	}
	return n
}

func (s *ledgerState) isWhitelisted(asset domain.AssetID) bool {
	_, ok := s.tokens[asset]
	return ok
}
