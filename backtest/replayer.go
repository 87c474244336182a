// Package backtest re-executes the operation journal against a fresh vault.
// Replay is the recovery path and the determinism check in one: the same
// journal through the same collaborators must land on the same state.
package backtest

import (
	"context"
	"fmt"
	"log/slog"

	"vault_go/internal/engine"
	"vault_go/internal/storage"
)

// Replayer feeds journaled operations back into a vault.
type Replayer struct {
	store *storage.OpStore
}

// NewReplayer wraps an open journal store.
func NewReplayer(store *storage.OpStore) *Replayer {
	return &Replayer{store: store}
}

// Run replays every journaled operation from fromSeq into the vault in
// sequence order. The vault must have been created with a nil journal or
// one pointed elsewhere, otherwise replay would re-append.
func (r *Replayer) Run(ctx context.Context, v *engine.Vault, fromSeq uint64) (uint64, error) {
	records, err := r.store.LoadOps(ctx, fromSeq)
	if err != nil {
		return 0, fmt.Errorf("load journal: %w", err)
	}

	var replayed uint64
	for _, rec := range records {
		op, err := engine.DecodeOp(rec.Kind, rec.Payload)
		if err != nil {
			return replayed, fmt.Errorf("decode op %d: %w", rec.Seq, err)
		}
		if _, err := v.Replay(ctx, op); err != nil {
			return replayed, fmt.Errorf("replay op %d: %w", rec.Seq, err)
		}
		replayed++
	}

	slog.Info("journal replayed", "ops", replayed, "from_seq", fromSeq)
	return replayed, nil
}
