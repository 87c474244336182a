// Package safe wraps uint256 arithmetic with explicit overflow reporting.
// Every balance mutation in the vault routes through these helpers; a
// silently wrapping subtraction on a reserve counter is a ledger corruption,
// not a rounding detail.
package safe

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// ErrArithmetic is returned on any overflow, underflow or division by zero.
var ErrArithmetic = errors.New("arithmetic overflow or underflow")

// Add returns a+b or ErrArithmetic on 256-bit overflow.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("add %s + %s: %w", a, b, ErrArithmetic)
	}
	return z, nil
}

// Sub returns a-b or ErrArithmetic when b > a.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, fmt.Errorf("sub %s - %s: %w", a, b, ErrArithmetic)
	}
	return z, nil
}

// Mul returns a*b or ErrArithmetic on 256-bit overflow.
func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("mul %s * %s: %w", a, b, ErrArithmetic)
	}
	return z, nil
}

// Div returns a/b (integer floor) or ErrArithmetic when b is zero.
func Div(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, fmt.Errorf("div %s by zero: %w", a, ErrArithmetic)
	}
	return new(uint256.Int).Div(a, b), nil
}

// MulDiv returns a*b/d with a 512-bit intermediate product, so the usual
// price-precision products never overflow mid-expression. Fails when d is
// zero or the final quotient exceeds 256 bits.
func MulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, fmt.Errorf("muldiv %s * %s by zero: %w", a, b, ErrArithmetic)
	}
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, d)
	if overflow {
		return nil, fmt.Errorf("muldiv %s * %s / %s: %w", a, b, d, ErrArithmetic)
	}
	return z, nil
}
