package fixed

import (
	"strings"
	"testing"
)

// FuzzParseDecimal checks the no-float parser never panics and that every
// accepted input survives a format/parse round trip at the same scale.
func FuzzParseDecimal(f *testing.F) {
	seeds := []string{"0", "1", "1.5", ".5", "123456789.123456", "999999999999999999", "1.", "abc", "-3", ""}
	for _, s := range seeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, s string) {
		v, err := ParseDecimal(s, 6)
		if err != nil {
			return
		}
		out := Format(v, 6)
		v2, err := ParseDecimal(out, 6)
		if err != nil {
			t.Fatalf("format output %q not parseable: %v", out, err)
		}
		if !v.Eq(v2) {
			t.Fatalf("round trip mismatch: %q -> %s -> %s", s, v, v2)
		}
		if strings.HasPrefix(strings.TrimSpace(s), "-") {
			t.Fatalf("negative input %q accepted", s)
		}
	})
}
