package fixed

import (
	"testing"

	"github.com/holiman/uint256"
)

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		decimals uint32
		want     string
		wantErr  bool
	}{
		{"Whole", "1", 6, "1000000", false},
		{"Fraction", "1.23", 6, "1230000", false},
		{"Fraction Only", ".5", 6, "500000", false},
		{"Truncates Excess", "1.1234567", 6, "1123456", false},
		{"Zero Decimals", "42", 0, "42", false},
		{"Large", "1000000", 30, "1000000000000000000000000000000000000", false},
		{"Empty", "", 6, "", true},
		{"Negative", "-1", 6, "", true},
		{"Garbage", "abc", 6, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDecimal(tt.in, tt.decimals)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDecimal(%q) expected error, got %s", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDecimal(%q) error: %v", tt.in, err)
			}
			want, _ := uint256.FromDecimal(tt.want)
			if !got.Eq(want) {
				t.Errorf("ParseDecimal(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestRebase(t *testing.T) {
	tests := []struct {
		name     string
		amount   uint64
		from, to uint32
		want     uint64
	}{
		{"Up", 5, 6, 18, 5000000000000},
		{"Down", 5000000000000, 18, 6, 5},
		{"Same", 77, 18, 18, 77},
		{"Down Truncates", 1999, 3, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Rebase(uint256.NewInt(tt.amount), tt.from, tt.to)
			if !got.Eq(uint256.NewInt(tt.want)) {
				t.Errorf("Rebase(%d, %d, %d) = %s, want %d", tt.amount, tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		in       uint64
		decimals uint32
		want     string
	}{
		{"Plain", 1230000, 6, "1.230000"},
		{"Leading Frac Zeros", 1000001, 6, "1.000001"},
		{"Sub One", 5, 6, "0.000005"},
		{"No Decimals", 42, 0, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(uint256.NewInt(tt.in), tt.decimals); got != tt.want {
				t.Errorf("Format(%d, %d) = %q, want %q", tt.in, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, s := range []string{"0.000001", "1.500000", "123456.789000"} {
		v, err := ParseDecimal(s, 6)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if got := Format(v, 6); got != s {
			t.Errorf("round trip %q -> %q", s, got)
		}
	}
}
