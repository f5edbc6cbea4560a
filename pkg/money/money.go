// Package money represents currency amounts as integer micro-units so that
// sub-cent rewards can be stored and compared exactly in SQL.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places held by an Amount.
const Scale = 6

// Amount is a quantity of a currency expressed in 10^-6 units.
type Amount int64

var hundred = decimal.NewFromInt(100)

// FromDecimal rounds d to Scale places.
func FromDecimal(d decimal.Decimal) Amount {
	return Amount(d.Shift(Scale).Round(0).IntPart())
}

// FromFloat converts a float using its shortest decimal representation, so
// FromFloat(0.0003) is exactly 300 micro-units.
func FromFloat(f float64) Amount {
	return FromDecimal(decimal.NewFromFloat(f))
}

// Units returns a whole number of currency units.
func Units(n int64) Amount {
	return Amount(n * 1_000_000)
}

// Parse reads a decimal string such as "20" or "0.0003".
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -Scale)
}

// MinorUnits returns the amount in cents, rounding half away from zero.
func (a Amount) MinorUnits() int64 {
	return a.Decimal().Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits converts cents back to an Amount.
func FromMinorUnits(cents int64) Amount {
	return FromDecimal(decimal.New(cents, -2))
}

func (a Amount) Mul(d decimal.Decimal) Amount {
	return FromDecimal(a.Decimal().Mul(d))
}

// Div returns how many whole times b fits into a.
func (a Amount) Div(b Amount) int64 {
	if b <= 0 {
		return 0
	}
	return int64(a) / int64(b)
}

func (a Amount) IsPositive() bool { return a > 0 }

func (a Amount) String() string {
	return a.Decimal().String()
}

// StringFixed renders the amount with two decimals, for messages.
func (a Amount) StringFixed() string {
	return a.Decimal().StringFixed(2)
}

func (a Amount) Float64() float64 {
	f, _ := a.Decimal().Float64()
	return f
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal().String()), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	*a = FromDecimal(d)
	return nil
}
