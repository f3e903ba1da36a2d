// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package famount defines the native-token Amount type and the small set of
// conversion and arithmetic helpers built around it, adapted from the typed
// int64-amount idiom exccd uses in dcrutil (Amount, ToCoin, round) but
// renamed to this network's native FRA unit (1 FRA = 1e6 atoms).
package famount

import (
	"errors"
	"math"
	"strconv"

	"github.com/franode/abcid/chaincfg"
)

// Amount represents a quantity of FRA, in atoms, the smallest unit the
// network represents.
type Amount int64

// ErrAmountOverflow is returned when converting a floating point FRA value
// that would not round-trip through an Amount without losing precision or
// overflowing int64.
var ErrAmountOverflow = errors.New("famount: amount out of range")

// round converts a floating point value to the nearest integer, rounding
// half away from zero, matching dcrutil's rounding rule for NewAmount.
func round(f float64) Amount {
	if f < 0 {
		return Amount(f - 0.5)
	}
	return Amount(f + 0.5)
}

// NewAmount creates an Amount from a floating point FRA value, rounding to
// the nearest atom. It returns ErrAmountOverflow if fra is NaN, infinite, or
// out of int64 range once converted to atoms.
func NewAmount(fra float64) (Amount, error) {
	if math.IsNaN(fra) || math.IsInf(fra, 0) {
		return 0, ErrAmountOverflow
	}

	f := fra * chaincfg.AtomsPerFRA
	if f >= math.MaxInt64 || f <= math.MinInt64 {
		return 0, ErrAmountOverflow
	}
	atoms := round(f)
	if fra > 0 && atoms < 0 {
		return 0, ErrAmountOverflow
	}
	if fra < 0 && atoms > 0 {
		return 0, ErrAmountOverflow
	}
	return atoms, nil
}

// ToFRA returns the amount as a floating point number of FRA.
func (a Amount) ToFRA() float64 {
	return float64(a) / chaincfg.AtomsPerFRA
}

// String returns a fixed-point, 6-decimal FRA representation followed by
// the unit suffix, e.g. "32.000000 FRA".
func (a Amount) String() string {
	return strconv.FormatFloat(a.ToFRA(), 'f', 6, 64) + " FRA"
}

// SaturatingAdd adds b to a, clamping to math.MaxInt64 or math.MinInt64
// instead of wrapping on overflow, and reports false when it clamped.
// SaturatingAdd exists for the CoinBase distribution-plan accumulation,
// which fails loudly on overflow rather than silently wrap.
func (a Amount) SaturatingAdd(b Amount) (Amount, bool) {
	sum := a + b
	overflowed := (b > 0 && sum < a) || (b < 0 && sum > a)
	if overflowed {
		if b > 0 {
			return math.MaxInt64, false
		}
		return math.MinInt64, false
	}
	return sum, true
}
