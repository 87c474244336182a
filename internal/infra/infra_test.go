package infra

import (
	"testing"
	"time"

	"github.com/holiman/uint256"

	"vault_go/internal/domain"
)

func TestPriceBook(t *testing.T) {
	book := NewPriceBook()
	if _, err := book.MinPrice("eth"); err == nil {
		t.Fatal("expected an error for an unquoted asset")
	}

	bid := uint256.NewInt(1499)
	ask := uint256.NewInt(1501)
	book.SetPrice("eth", bid, ask)

	min, err := book.MinPrice("eth")
	if err != nil {
		t.Fatalf("min price: %v", err)
	}
	if !min.Eq(bid) {
		t.Errorf("min = %s, want %s", min, bid)
	}
	max, err := book.MaxPrice("eth")
	if err != nil {
		t.Fatalf("max price: %v", err)
	}
	if !max.Eq(ask) {
		t.Errorf("max = %s, want %s", max, ask)
	}

	// Mutating the stored values must not leak back into the book.
	bid.SetUint64(1)
	min, _ = book.MinPrice("eth")
	if !min.Eq(uint256.NewInt(1499)) {
		t.Error("book aliased the caller's value")
	}
}

func TestBankPayOut(t *testing.T) {
	bank := NewBank("usdg")
	bank.PayIn("eth", uint256.NewInt(100))

	if err := bank.PayOut("eth", "alice", uint256.NewInt(60)); err != nil {
		t.Fatalf("pay out: %v", err)
	}
	bal, _ := bank.Balance("eth")
	if !bal.Eq(uint256.NewInt(40)) {
		t.Errorf("balance = %s, want 40", bal)
	}

	if err := bank.PayOut("eth", "alice", uint256.NewInt(41)); err == nil {
		t.Fatal("overdraft allowed")
	}

	// The synthetic stable is minted on the way out, never held.
	if err := bank.PayOut("usdg", "alice", uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("synthetic payout: %v", err)
	}
	bal, _ = bank.Balance("usdg")
	if !bal.IsZero() {
		t.Errorf("synthetic balance = %s, want 0", bal)
	}
}

func TestParseQuote(t *testing.T) {
	tests := []struct {
		name    string
		bid     string
		ask     string
		wantErr bool
	}{
		{"valid", "1499.5", "1500.5", false},
		{"equal sides", "1500", "1500", false},
		{"inverted", "1501", "1500", true},
		{"zero bid", "0", "1500", true},
		{"negative ask", "1500", "-1", true},
		{"garbage", "abc", "1500", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bid, ask, err := ParseQuote(tt.bid, tt.ask)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseQuote: %v", err)
			}
			if bid.IsZero() || ask.Lt(bid) {
				t.Errorf("bad quote %s/%s", bid, ask)
			}
		})
	}
}

func TestParseQuoteScaling(t *testing.T) {
	bid, _, err := ParseQuote("1.5", "1.5")
	if err != nil {
		t.Fatalf("ParseQuote: %v", err)
	}
	want := new(uint256.Int).Mul(uint256.NewInt(15), newPow10(29))
	if !bid.Eq(want) {
		t.Errorf("scaled bid = %s, want %s", bid, want)
	}
}

func newPow10(n int) *uint256.Int {
	p := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := 0; i < n; i++ {
		p.Mul(p, ten)
	}
	return p
}

func TestCalculateBackoff(t *testing.T) {
	if got := CalculateBackoff(0); got != time.Second {
		t.Errorf("retry 0 = %v, want 1s", got)
	}
	if got := CalculateBackoff(3); got != 8*time.Second {
		t.Errorf("retry 3 = %v, want 8s", got)
	}
	if got := CalculateBackoff(20); got != 60*time.Second {
		t.Errorf("retry 20 = %v, want capped 60s", got)
	}
}

func TestRoleStore(t *testing.T) {
	roles := NewRoleStore()
	if roles.HasRole("alice", domain.RoleManager) {
		t.Fatal("empty store granted a role")
	}
	roles.Grant("alice", domain.RoleManager)
	if !roles.HasRole("alice", domain.RoleManager) {
		t.Fatal("granted role not visible")
	}
	if roles.HasRole("alice", domain.RoleLiquidator) {
		t.Fatal("role leaked across kinds")
	}
	roles.Revoke("alice", domain.RoleManager)
	if roles.HasRole("alice", domain.RoleManager) {
		t.Fatal("revoked role still visible")
	}
}
