// Package fixed holds the vault's fixed-point conventions.
//
// Prices are USD-per-unit scaled by 10^30, funding indices by 10^6, fee
// rates are plain basis points. All internal math is integer; float64 never
// enters the core (boundary parsers included).
package fixed

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

const (
	// PriceDecimals scales oracle prices and all USD notionals.
	PriceDecimals = 30
	// SyntheticDecimals is the decimal count of the synthetic stable asset.
	SyntheticDecimals = 18
	// FundingRateDecimals scales the cumulative funding index.
	FundingRateDecimals = 6
	// BasisPointsDivisor is the fee-rate denominator.
	BasisPointsDivisor = 10000
)

// Shared constants. Operands only; uint256 ops never mutate their arguments.
var (
	PricePrecision       = Pow10(PriceDecimals)
	FundingRatePrecision = Pow10(FundingRateDecimals)
	BpsDivisor           = uint256.NewInt(BasisPointsDivisor)
)

// Pow10 returns 10^n as a uint256.
func Pow10(n uint32) *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(n)))
}

// Rebase converts an amount between two decimal bases: amount * 10^to / 10^from.
// Applied on every leg of a swap or mint/burn so the scaling stays uniform.
func Rebase(amount *uint256.Int, from, to uint32) *uint256.Int {
	if from == to {
		return new(uint256.Int).Set(amount)
	}
	if to > from {
		return new(uint256.Int).Mul(amount, Pow10(to-from))
	}
	return new(uint256.Int).Div(amount, Pow10(from-to))
}

// ParseDecimal parses a non-negative decimal string into an integer scaled by
// 10^decimals, without going through float64. Excess fractional digits are
// truncated.
func ParseDecimal(s string, decimals uint32) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("parse fixed: empty input")
	}
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("parse fixed: negative value %q", s)
	}

	intPart := s
	fracPart := ""
	if dot := strings.IndexByte(s, '.'); dot != -1 {
		intPart, fracPart = s[:dot], s[dot+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	if uint32(len(fracPart)) > decimals {
		fracPart = fracPart[:decimals]
	}

	z, err := uint256.FromDecimal(intPart)
	if err != nil {
		return nil, fmt.Errorf("parse fixed %q: %w", s, err)
	}
	z.Mul(z, Pow10(decimals))

	if fracPart != "" {
		frac, err := uint256.FromDecimal(fracPart)
		if err != nil {
			return nil, fmt.Errorf("parse fixed %q: %w", s, err)
		}
		frac.Mul(frac, Pow10(decimals-uint32(len(fracPart))))
		z.Add(z, frac)
	}
	return z, nil
}

// Format renders a scaled integer back as a decimal string, for logs and
// projections. Trailing fractional zeros are kept.
func Format(x *uint256.Int, decimals uint32) string {
	scale := Pow10(decimals)
	whole := new(uint256.Int).Div(x, scale)
	frac := new(uint256.Int).Mod(x, scale)
	if decimals == 0 {
		return whole.Dec()
	}
	fracStr := frac.Dec()
	if pad := int(decimals) - len(fracStr); pad > 0 {
		fracStr = strings.Repeat("0", pad) + fracStr
	}
	return whole.Dec() + "." + fracStr
}
