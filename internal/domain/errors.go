package domain

import (
	"errors"

	"vault_go/pkg/safe"
)

// Failure taxonomy for the vault core. Business-rule violations are ordinary
// recoverable errors wrapped with asset/amount context; ErrInvariantBroken is
// the one fatal class, raised only when a structurally impossible state is
// observed.
var (
	ErrUnauthorized       = errors.New("caller lacks required role")
	ErrInvalidAsset       = errors.New("invalid asset")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrDisabledFeature    = errors.New("feature disabled")
	ErrBalanceMismatch    = errors.New("custody balance below ledger expectation")
	ErrArithmeticFailure  = safe.ErrArithmetic
	ErrInvariantBroken    = errors.New("internal invariant broken")
	ErrPositionLiquidated = errors.New("position breaches maintenance margin")
)
