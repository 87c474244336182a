package safe

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func maxU256() *uint256.Int {
	z := new(uint256.Int)
	z.SetAllOne()
	return z
}

func TestSafeMath(t *testing.T) {
	tests := []struct {
		name string
		got  func() (*uint256.Int, error)
		want uint64
	}{
		{"Normal Add", func() (*uint256.Int, error) { return Add(u(10), u(20)) }, 30},
		{"Normal Sub", func() (*uint256.Int, error) { return Sub(u(30), u(10)) }, 20},
		{"Sub To Zero", func() (*uint256.Int, error) { return Sub(u(30), u(30)) }, 0},
		{"Normal Mul", func() (*uint256.Int, error) { return Mul(u(5), u(6)) }, 30},
		{"Normal Div", func() (*uint256.Int, error) { return Div(u(100), u(4)) }, 25},
		{"Div Floors", func() (*uint256.Int, error) { return Div(u(7), u(2)) }, 3},
		{"MulDiv", func() (*uint256.Int, error) { return MulDiv(u(100), u(30), u(7)) }, 428},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.got()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Eq(u(tt.want)) {
				t.Errorf("got %s, want %d", got, tt.want)
			}
		})
	}
}

func TestSafeMathFailures(t *testing.T) {
	tests := []struct {
		name string
		got  func() (*uint256.Int, error)
	}{
		{"Add Overflow", func() (*uint256.Int, error) { return Add(maxU256(), u(1)) }},
		{"Sub Underflow", func() (*uint256.Int, error) { return Sub(u(1), u(2)) }},
		{"Mul Overflow", func() (*uint256.Int, error) { return Mul(maxU256(), u(2)) }},
		{"Div By Zero", func() (*uint256.Int, error) { return Div(u(10), u(0)) }},
		{"MulDiv By Zero", func() (*uint256.Int, error) { return MulDiv(u(10), u(10), u(0)) }},
		{"MulDiv Overflow", func() (*uint256.Int, error) { return MulDiv(maxU256(), u(2), u(1)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.got(); !errors.Is(err, ErrArithmetic) {
				t.Errorf("want ErrArithmetic, got %v", err)
			}
		})
	}
}

// MulDiv must survive intermediate products beyond 256 bits as long as the
// quotient fits. This is the price-precision hotpath shape: x * 10^30 / p.
func TestMulDivWideIntermediate(t *testing.T) {
	big := new(uint256.Int).Lsh(u(1), 200)
	got, err := MulDiv(big, big, big)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Eq(big) {
		t.Errorf("got %s, want %s", got, big)
	}
}
