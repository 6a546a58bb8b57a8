// Package units converts between integer base units, which all settlement
// arithmetic uses, and decimal display amounts.
package units

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// ErrPrecision is returned when a display amount has more fractional digits
// than the asset supports.
var ErrPrecision = errors.New("units: amount finer than asset precision")

var maxUint64 = decimal.RequireFromString(strconv.FormatUint(math.MaxUint64, 10))

// Decimal returns base as a decimal scaled down by decimals.
func Decimal(base uint64, decimals int32) decimal.Decimal {
	return decimal.RequireFromString(strconv.FormatUint(base, 10)).Shift(-decimals)
}

// Format renders base units as a display amount with exactly decimals
// fractional digits, e.g. Format(1500000, 6) = "1.500000".
func Format(base uint64, decimals int32) string {
	if decimals <= 0 {
		return strconv.FormatUint(base, 10)
	}
	return Decimal(base, decimals).StringFixed(decimals)
}

// Parse converts a display amount into base units. It rejects negative
// values, values beyond uint64 and values with more precision than the
// asset carries.
func Parse(amount string, decimals int32) (uint64, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, fmt.Errorf("units: parse %q: %w", amount, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("units: negative amount %q", amount)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("units: %q with %d decimals: %w", amount, decimals, ErrPrecision)
	}
	if scaled.GreaterThan(maxUint64) {
		return 0, fmt.Errorf("units: %q overflows", amount)
	}
	return strconv.ParseUint(scaled.String(), 10, 64)
}
