package stock

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

// Places is the number of decimal places kept for every persisted quantity and price.
const Places int32 = 2

// RoundingMode selects how values are rounded to Places.
type RoundingMode string

const (
	// RoundHalfUp rounds ties away from zero (2.345 -> 2.35).
	RoundHalfUp RoundingMode = "half_up"
	// RoundHalfEven is banker's rounding (2.345 -> 2.34, 2.355 -> 2.36).
	RoundHalfEven RoundingMode = "bank"
)

// IsValid checks if the rounding mode is supported
func (m RoundingMode) IsValid() bool {
	return m == RoundHalfUp || m == RoundHalfEven
}

var roundingMode atomic.Value

func init() {
	roundingMode.Store(RoundHalfUp)
}

// SetRoundingMode changes the process-wide rounding mode. It is meant to be
// called once at startup from configuration.
func SetRoundingMode(mode RoundingMode) error {
	if !mode.IsValid() {
		return fmt.Errorf("unsupported rounding mode %q", mode)
	}
	roundingMode.Store(mode)
	return nil
}

// CurrentRoundingMode returns the active rounding mode
func CurrentRoundingMode() RoundingMode {
	return roundingMode.Load().(RoundingMode)
}

// RoundWith rounds d to Places using the given mode.
func RoundWith(d decimal.Decimal, mode RoundingMode) decimal.Decimal {
	if mode == RoundHalfEven {
		return d.RoundBank(Places)
	}
	return d.Round(Places)
}

// Round rounds d to Places using the active mode.
func Round(d decimal.Decimal) decimal.Decimal {
	return RoundWith(d, CurrentRoundingMode())
}

// Normalize rounds d and clamps negative results to zero. Every value written
// to a quantity bucket or destination record goes through Normalize.
func Normalize(d decimal.Decimal) decimal.Decimal {
	r := Round(d)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// Format renders a quantity with exactly Places decimals ("3.00").
func Format(d decimal.Decimal) string {
	return d.StringFixed(Places)
}

// ValidateAmount rounds a requested movement amount and rejects values that are
// not strictly positive after rounding.
func ValidateAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	rounded := Round(amount)
	if !rounded.IsPositive() {
		return decimal.Zero, NewInvalidAmountError(amount.String())
	}
	return rounded, nil
}

// ParseAmount parses a textual amount (as typed by an operator) and validates it.
func ParseAmount(raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, NewInvalidAmountError(raw)
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, NewInvalidAmountError(raw)
	}
	return ValidateAmount(d)
}

// ParseNonNegative parses a textual quantity or price that may be zero.
func ParseNonNegative(field, raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, NewInvalidAmountError(raw).WithDetail("field", field)
	}
	if d.IsNegative() {
		return decimal.Zero, NewInvalidAmountError(raw).WithDetail("field", field)
	}
	return Round(d), nil
}
