package engine

import (
	"context"

	"github.com/holiman/uint256"

	"vault_go/internal/domain"
)

// Oracle supplies bid/ask prices per asset at price precision. It must not
// mutate engine state, and the engine never assumes min == max.
type Oracle interface {
	MinPrice(asset domain.AssetID) (*uint256.Int, error)
	MaxPrice(asset domain.AssetID) (*uint256.Int, error)
}

// Custody is the token-custody collaborator. The engine reads balances
// before crediting the pool (so it never credits funds that were not
// deposited) and releases funds through PayOut. Escrowing inbound funds is
// the caller's duty before an operation is submitted.
type Custody interface {
	Balance(asset domain.AssetID) (*uint256.Int, error)
	PayOut(asset domain.AssetID, recipient domain.AccountID, amount *uint256.Int) error
}

// Authorizer answers capability checks against stored identities.
type Authorizer interface {
	HasRole(account domain.AccountID, role domain.Role) bool
}

// Journal receives every committed operation in sequence order. A nil
// journal disables persistence (used during replay).
type Journal interface {
	Append(ctx context.Context, seq, ts uint64, kind OpKind, payload []byte) error
}
