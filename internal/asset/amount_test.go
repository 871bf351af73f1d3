package asset_test

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/fd1az/chain-wallet/internal/asset"
)

func mustAsset(t *testing.T, chain, symbol string, decimals int) *asset.Asset {
	t.Helper()
	a, err := asset.NewAsset(chain, symbol, decimals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return a
}

func TestAmount_Basic(t *testing.T) {
	dot := mustAsset(t, "polkadot", "DOT", 10)

	// 1 DOT = 1e10 planck
	oneDOT := asset.NewAmount(dot, uint256.NewInt(1e10))

	if oneDOT.IsZero() {
		t.Error("expected non-zero amount")
	}
	if !oneDOT.ToDecimal().Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected 1, got %s", oneDOT.ToDecimal().String())
	}
	if oneDOT.String() != "1 DOT" {
		t.Errorf("expected '1 DOT', got '%s'", oneDOT.String())
	}
	if got := asset.Zero(dot).StringFixed(2); got != "0.00 DOT" {
		t.Errorf("expected '0.00 DOT', got '%s'", got)
	}
}

func TestAmount_NoSymbol(t *testing.T) {
	a := mustAsset(t, "dev", "", 12)
	if got := asset.NewAmount(a, uint256.NewInt(2_500_000_000_000)).String(); got != "2.5" {
		t.Errorf("expected '2.5', got '%s'", got)
	}
}

func TestAmount_AddSub(t *testing.T) {
	eth := mustAsset(t, "mainnet", "ETH", 18)
	one := asset.NewAmount(eth, uint256.NewInt(1e18))
	three := asset.NewAmount(eth, uint256.NewInt(3e18))

	sum, err := one.Add(three)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sum.ToDecimal().Equal(decimal.NewFromInt(4)) {
		t.Errorf("expected 4, got %s", sum.ToDecimal().String())
	}

	diff, err := three.Sub(one)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !diff.ToDecimal().Equal(decimal.NewFromInt(2)) {
		t.Errorf("expected 2, got %s", diff.ToDecimal().String())
	}

	if _, err := one.Sub(three); !errors.Is(err, asset.ErrNegativeResult) {
		t.Errorf("expected ErrNegativeResult, got %v", err)
	}

	max := asset.NewAmount(eth, new(uint256.Int).SetAllOne())
	if _, err := max.Add(one); !errors.Is(err, asset.ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestAmount_CannotMixAssets(t *testing.T) {
	dot := asset.NewAmount(mustAsset(t, "polkadot", "DOT", 10), uint256.NewInt(1))
	ksm := asset.NewAmount(mustAsset(t, "kusama", "KSM", 12), uint256.NewInt(1))

	if _, err := dot.Add(ksm); !errors.Is(err, asset.ErrAssetMismatch) {
		t.Errorf("expected ErrAssetMismatch, got %v", err)
	}
	if _, err := dot.Cmp(ksm); err == nil {
		t.Error("expected error when comparing different assets")
	}
}

func TestParseString(t *testing.T) {
	ksm := mustAsset(t, "kusama", "KSM", 12)

	amount, err := asset.ParseString(ksm, "1.5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if amount.Raw().Uint64() != 1_500_000_000_000 {
		t.Errorf("expected 1500000000000, got %s", amount.Raw().Dec())
	}

	if _, err := asset.ParseString(ksm, "0.0000000000001"); !errors.Is(err, asset.ErrTooManyDecimals) {
		t.Errorf("expected ErrTooManyDecimals, got %v", err)
	}
	if _, err := asset.ParseString(ksm, "-1"); !errors.Is(err, asset.ErrNegativeAmount) {
		t.Errorf("expected ErrNegativeAmount, got %v", err)
	}
	if _, err := asset.ParseString(ksm, "lots"); err == nil {
		t.Error("expected error for invalid input")
	}
}

func TestNewAsset_Decimals(t *testing.T) {
	if _, err := asset.NewAsset("x", "X", asset.MaxDecimals+1); err == nil {
		t.Error("expected error for decimals above max")
	}
	if _, err := asset.NewAsset("x", "X", -1); err == nil {
		t.Error("expected error for negative decimals")
	}
}
