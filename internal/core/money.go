// Package core provides money parsing and handling utilities.
//
// Amounts are decimal.Decimal in the domain and integer cents in storage,
// so aggregate sums stay exact.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MaxScale is the number of fractional digits an amount may carry.
const MaxScale = 2

var hundred = decimal.NewFromInt(100)

// MaxAmount is the largest magnitude an amount may have. It keeps every
// stored value, and the sum of many of them, well inside int64 cents.
var MaxAmount = decimal.RequireFromString("999999999999.99")

// ParseAmount converts a decimal string to an amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Signs
// and more than two fractional digits are rejected rather than rounded.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("12.345") -> error
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if err := ValidateScale(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ParseDecimalToCents converts a decimal string to positive cents.
func ParseDecimalToCents(s string) (int64, error) {
	d, err := ParseAmount(s)
	if err != nil {
		return 0, err
	}
	if err := ValidatePositiveAmount(d); err != nil {
		return 0, err
	}
	return ToCents(d), nil
}

// ToCents returns the amount in minor units. Callers validate the amount
// with ValidateScale first; excess digits are truncated and amounts beyond
// MaxAmount are not representable.
func ToCents(d decimal.Decimal) int64 {
	return d.Mul(hundred).IntPart()
}

// FromCents builds an amount from minor units.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -MaxScale)
}

// FormatAmount renders an amount with exactly two fractional digits.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(MaxScale)
}
