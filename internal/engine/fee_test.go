package engine

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
)

func TestPositionFeeUsd(t *testing.T) {
	f := newFixture(t)
	ex := &execution{v: f.vault, st: f.vault.st}

	tests := []struct {
		name      string
		sizeDelta string
		want      string
	}{
		{"zero size", "0", "0"},
		{"round size", "15000", "15"},
		{"fractional fee", "7500", "7.5"},
		// Rounding favors the fee reserve: a single raw unit is kept whole.
		{"dust", "0.000000000000000000000000000001", "0.000000000000000000000000000001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ex.positionFeeUsd(usd(t, tt.sizeDelta))
			if err != nil {
				t.Fatalf("positionFeeUsd: %v", err)
			}
			if want := usd(t, tt.want); !got.Eq(want) {
				t.Errorf("fee = %s, want %s", got, want)
			}
		})
	}
}

func TestFeeBasisPointsFlatWithoutDynamicFees(t *testing.T) {
	f := newFixture(t)
	ex := &execution{v: f.vault, st: f.vault.st}

	got, err := ex.feeBasisPoints(assetETH, amt(t, "100", 18), 30, 50, true)
	if err != nil {
		t.Fatalf("feeBasisPoints: %v", err)
	}
	if got != 30 {
		t.Errorf("fee bps = %d, want flat 30", got)
	}
}

func TestFeeBasisPointsDynamicCurve(t *testing.T) {
	f := newFixture(t)
	f.vault.st.config.HasDynamicFees = true

	// Equal weights: each asset targets half the total issuance.
	f.vault.st.pools[assetETH].SyntheticIssued = amt(t, "1000", 18)
	f.vault.st.pools[assetUSDC].SyntheticIssued = amt(t, "1000", 18)
	ex := &execution{v: f.vault, st: f.vault.st}

	// Pushing away from the target pays a surcharge:
	// avgDiff = 50, tax 50 * 50 / 1000 = 2.
	got, err := ex.feeBasisPoints(assetETH, amt(t, "100", 18), 30, 50, true)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if got != 32 {
		t.Errorf("surcharge fee = %d, want 32", got)
	}

	// Pulling toward the target earns a rebate:
	// eth overweight by 200, rebate = 50 * 200 / 1000 = 10.
	f.vault.st.pools[assetETH].SyntheticIssued = amt(t, "1200", 18)
	f.vault.st.pools[assetUSDC].SyntheticIssued = amt(t, "800", 18)
	got, err = ex.feeBasisPoints(assetETH, amt(t, "100", 18), 30, 50, false)
	if err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if got != 20 {
		t.Errorf("rebate fee = %d, want 20", got)
	}

	// A rebate larger than the base fee floors at zero.
	f.vault.st.pools[assetETH].SyntheticIssued = amt(t, "1900", 18)
	f.vault.st.pools[assetUSDC].SyntheticIssued = amt(t, "100", 18)
	got, err = ex.feeBasisPoints(assetETH, amt(t, "100", 18), 30, 50, false)
	if err != nil {
		t.Fatalf("floored rebate: %v", err)
	}
	if got != 0 {
		t.Errorf("floored fee = %d, want 0", got)
	}
}

func TestSwapFeeBasisPointsStablePair(t *testing.T) {
	f := newFixture(t)
	// List a second stable so a stable<->stable pair exists.
	_, err := f.vault.Execute(context.Background(), &SetTokenConfigOp{
		OpBase:               OpBase{Time: 0, Sender: govern},
		Asset:                "usdt",
		Decimals:             6,
		Weight:               10000,
		MaxSyntheticIssuance: new(uint256.Int),
		IsStable:             true,
	})
	if err != nil {
		t.Fatalf("list usdt: %v", err)
	}
	ex := &execution{v: f.vault, st: f.vault.st}

	got, err := ex.swapFeeBasisPoints(assetUSDC, "usdt", amt(t, "100", 18))
	if err != nil {
		t.Fatalf("stable pair: %v", err)
	}
	if got != 4 {
		t.Errorf("stable swap fee = %d, want 4", got)
	}

	got, err = ex.swapFeeBasisPoints(assetETH, assetUSDC, amt(t, "100", 18))
	if err != nil {
		t.Fatalf("mixed pair: %v", err)
	}
	if got != 30 {
		t.Errorf("mixed swap fee = %d, want 30", got)
	}
}

func TestCollectSwapFeesBanksTheCut(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, assetETH, amt(t, "10", 18), 0)
	ex := &execution{v: f.vault, st: f.vault.st.clone()}

	after, err := ex.collectSwapFees(assetETH, amt(t, "1", 18), 30)
	if err != nil {
		t.Fatalf("collectSwapFees: %v", err)
	}
	if want := amt(t, "0.997", 18); !after.Eq(want) {
		t.Errorf("after-fee = %s, want %s", after, want)
	}
	p := ex.st.pools[assetETH]
	if want := amt(t, "0.003", 18); !p.FeeReserve.Eq(want) {
		t.Errorf("fee reserve = %s, want %s", p.FeeReserve, want)
	}
}
