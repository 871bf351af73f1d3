package asset

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Common errors
var (
	ErrNilAsset        = errors.New("asset: nil asset")
	ErrNegativeAmount  = errors.New("asset: negative amount")
	ErrAssetMismatch   = errors.New("asset: cannot operate on different assets")
	ErrNegativeResult  = errors.New("asset: operation would result in negative amount")
	ErrOverflow        = errors.New("asset: amount overflows 256 bits")
	ErrTooManyDecimals = errors.New("asset: too many decimal places for asset")
)

// Amount is an immutable quantity of an asset.
// The raw value is always in the smallest unit (planck, wei).
type Amount struct {
	raw   uint256.Int
	asset *Asset
}

// NewAmount creates an Amount from a raw value. A nil raw is zero.
func NewAmount(a *Asset, raw *uint256.Int) Amount {
	if a == nil {
		panic(ErrNilAsset)
	}
	amt := Amount{asset: a}
	if raw != nil {
		amt.raw.Set(raw)
	}
	return amt
}

// Zero creates a zero Amount for the given asset.
func Zero(a *Asset) Amount {
	return NewAmount(a, nil)
}

// Raw returns a copy of the raw value.
func (a Amount) Raw() *uint256.Int {
	return new(uint256.Int).Set(&a.raw)
}

// Asset returns the asset this amount is denominated in.
func (a Amount) Asset() *Asset {
	return a.asset
}

// IsZero returns true if the amount is zero.
func (a Amount) IsZero() bool {
	return a.raw.IsZero()
}

// Add adds two amounts of the same asset.
func (a Amount) Add(b Amount) (Amount, error) {
	if err := a.checkSameAsset(b); err != nil {
		return Amount{}, err
	}
	sum, overflow := new(uint256.Int).AddOverflow(&a.raw, &b.raw)
	if overflow {
		return Amount{}, ErrOverflow
	}
	return NewAmount(a.asset, sum), nil
}

// Sub subtracts b from a (same asset only).
func (a Amount) Sub(b Amount) (Amount, error) {
	if err := a.checkSameAsset(b); err != nil {
		return Amount{}, err
	}
	if a.raw.Lt(&b.raw) {
		return Amount{}, ErrNegativeResult
	}
	return NewAmount(a.asset, new(uint256.Int).Sub(&a.raw, &b.raw)), nil
}

// Cmp compares two amounts of the same asset.
// Returns -1 if a < b, 0 if a == b, 1 if a > b.
func (a Amount) Cmp(b Amount) (int, error) {
	if err := a.checkSameAsset(b); err != nil {
		return 0, err
	}
	return a.raw.Cmp(&b.raw), nil
}

// ToDecimal converts the amount to whole units for display.
func (a Amount) ToDecimal() decimal.Decimal {
	if a.asset == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(a.raw.ToBig(), -int32(a.asset.decimals))
}

// ParseDecimal creates an Amount from whole units.
func ParseDecimal(a *Asset, d decimal.Decimal) (Amount, error) {
	if a == nil {
		return Amount{}, ErrNilAsset
	}
	if d.IsNegative() {
		return Amount{}, ErrNegativeAmount
	}

	scaled := d.Shift(int32(a.decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return Amount{}, ErrTooManyDecimals
	}

	raw, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return Amount{}, ErrOverflow
	}
	return NewAmount(a, raw), nil
}

// ParseString creates an Amount from user input such as "1.5".
func ParseString(a *Asset, s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("asset: invalid decimal string: %w", err)
	}
	return ParseDecimal(a, d)
}

// String returns a human-readable representation (e.g., "1.5 DOT").
func (a Amount) String() string {
	if a.asset == nil {
		return "0"
	}
	if a.asset.symbol == "" {
		return a.ToDecimal().String()
	}
	return a.ToDecimal().String() + " " + a.asset.symbol
}

// StringFixed returns a string with fixed decimal places.
func (a Amount) StringFixed(places int32) string {
	if a.asset == nil {
		return "0"
	}
	s := a.ToDecimal().StringFixed(places)
	if a.asset.symbol == "" {
		return s
	}
	return s + " " + a.asset.symbol
}

func (a Amount) checkSameAsset(b Amount) error {
	if a.asset == nil || b.asset == nil {
		return ErrNilAsset
	}
	if !a.asset.Equals(b.asset) {
		return fmt.Errorf("%w: %s vs %s", ErrAssetMismatch, a.asset, b.asset)
	}
	return nil
}
