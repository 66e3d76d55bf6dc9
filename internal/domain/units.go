package domain

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// maxAmountDigits is the number of decimal digits in the largest uint256.
const maxAmountDigits = 78

// Named multiples of wei, as decimal exponents.
var unitExponents = map[string]int32{
	"wei":    0,
	"gwei":   9,
	"szabo":  12,
	"finney": 15,
	"ether":  18,
}

// ParseAmount converts a decimal string denominated in unit into wei.
// An empty unit means wei. Values finer than one wei, negative values
// and values beyond 256 bits are rejected.
func ParseAmount(value, unit string) (uint256.Int, error) {
	var out uint256.Int
	if unit == "" {
		unit = "wei"
	}
	exp, ok := unitExponents[unit]
	if !ok {
		return out, &ValidationError{
			Message: fmt.Sprintf("Unknown unit: %s. Must be one of: wei, gwei, szabo, finney, ether", unit),
		}
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return out, &ValidationError{Message: fmt.Sprintf("amount must be a decimal number, got %q", value)}
	}
	if d.IsNegative() {
		return out, &ValidationError{Message: "amount must not be negative"}
	}
	if d.IsZero() {
		return out, nil
	}
	// Bound the scaled exponent before any big-integer work.
	digits := int64(d.NumDigits())
	e := int64(d.Exponent()) + int64(exp)
	if digits+e > maxAmountDigits {
		return out, ErrInvalidAmount
	}
	if -e >= digits {
		return out, &ValidationError{Message: fmt.Sprintf("amount %s %s is not a whole number of wei", value, unit)}
	}
	scaled := d.Shift(exp)
	if !scaled.Equal(scaled.Truncate(0)) {
		return out, &ValidationError{Message: fmt.Sprintf("amount %s %s is not a whole number of wei", value, unit)}
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return out, ErrInvalidAmount
	}
	return *v, nil
}

// FormatAmount renders a wei amount in unit without trailing zeros.
// Unknown units fall back to wei.
func FormatAmount(amount *uint256.Int, unit string) string {
	exp := unitExponents[unit]
	return decimal.NewFromBigInt(amount.ToBig(), -exp).String()
}

// Notional returns price × volume, failing with ErrInvalidAmount when
// the product does not fit in 256 bits.
func Notional(price, volume *uint256.Int) (uint256.Int, error) {
	var out uint256.Int
	if _, overflow := out.MulOverflow(price, volume); overflow {
		return uint256.Int{}, ErrInvalidAmount
	}
	return out, nil
}
