/*
This file contains the shared fixed-point arithmetic used by the position
adapters: wad (18 decimals) and ray (27 decimals) scales, basis-point
fractions, and decimal rescaling between token precisions.
*/

package fixedpoint

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrDivisionByZero   = errors.New("division by zero")
)

const (
	// WadDecimals is the scale of 18-decimal fixed-point values.
	WadDecimals = 18
	// RayDecimals is the scale of 27-decimal fixed-point values.
	RayDecimals = 27
	// BasisPointsDenominator is the number of basis points in the unit.
	BasisPointsDenominator = 10_000
)

// Wad returns the wad unit (10^18).
func Wad() sdkmath.Int {
	return pow10(WadDecimals)
}

// Ray returns the ray unit (10^27).
func Ray() sdkmath.Int {
	return pow10(RayDecimals)
}

func pow10(n int) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(1, n)
}

// BasisPoints converts a count of basis points into a wad-scaled fraction,
// e.g. 20 bps -> 0.002 * 10^18.
func BasisPoints(bps uint64) sdkmath.Int {
	return sdkmath.NewIntFromUint64(bps).Mul(pow10(WadDecimals - 4))
}

// MulDiv computes a*b/c with truncating division, the rounding mode used
// throughout the adapters.
func MulDiv(a, b, c sdkmath.Int) (sdkmath.Int, error) {
	if a.IsNil() || b.IsNil() || c.IsNil() {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	if c.IsZero() {
		return sdkmath.ZeroInt(), ErrDivisionByZero
	}
	return a.Mul(b).Quo(c), nil
}

// Rescale converts an amount between token precisions, truncating when
// scaling down.
func Rescale(amount sdkmath.Int, fromDecimals, toDecimals int) (sdkmath.Int, error) {
	if fromDecimals < 0 || fromDecimals > 27 || toDecimals < 0 || toDecimals > 27 {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: from=%d to=%d", ErrInvalidPrecision, fromDecimals, toDecimals)
	}
	if amount.IsNil() {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	switch {
	case fromDecimals == toDecimals:
		return amount, nil
	case fromDecimals < toDecimals:
		return amount.Mul(pow10(toDecimals - fromDecimals)), nil
	default:
		return amount.Quo(pow10(fromDecimals - toDecimals)), nil
	}
}

// SlippageFloor lowers an amount by the given basis points, producing the
// minimum acceptable output for a sized operation.
func SlippageFloor(amount sdkmath.Int, bps uint64) (sdkmath.Int, error) {
	if amount.IsNil() {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	if amount.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	if bps >= BasisPointsDenominator {
		return sdkmath.ZeroInt(), nil
	}
	keep := sdkmath.NewIntFromUint64(BasisPointsDenominator - bps)
	return amount.Mul(keep).Quo(sdkmath.NewInt(BasisPointsDenominator)), nil
}

// IntToFloat64 converts a fixed-point integer to float64 for logging and
// metrics. Not for sizing decisions.
func IntToFloat64(amount sdkmath.Int, decimals int) (float64, error) {
	if decimals < 0 || decimals > 27 {
		return 0, fmt.Errorf("%w: %d (must be between 0 and 27)", ErrInvalidPrecision, decimals)
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}

	dec := sdkmath.LegacyNewDecFromBigIntWithPrec(amount.BigInt(), int64(min(decimals, 18)))
	if decimals > 18 {
		dec = dec.QuoInt(pow10(decimals - 18))
	}
	result, err := dec.Float64()
	if err != nil {
		return 0, err
	}
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, result)
	}
	return result, nil
}

// LogFloat is IntToFloat64 with failures collapsed to zero. Only for
// log and metric values, never for sizing decisions.
func LogFloat(amount sdkmath.Int, decimals int) float64 {
	result, err := IntToFloat64(amount, decimals)
	if err != nil {
		return 0
	}
	return result
}
