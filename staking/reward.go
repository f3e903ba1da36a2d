// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package staking

import (
	"math"
	"math/big"

	"github.com/franode/abcid/chaincfg"
)

// RewardRateFor returns the (numerator, denominator) annual return rate for
// the given total-bonded ratio, expressed as a percentage of
// chaincfg.FRATotalAmount. If no band matches, it returns the last band's
// rate.
func RewardRateFor(totalBonded int64) (num, den int64) {
	pct := bondedPercent(totalBonded)
	for _, band := range chaincfg.RewardBands {
		if pct >= band.LowPct && pct < band.HighPct {
			return band.AnnualReturnPctNum, band.AnnualReturnPctDen
		}
	}
	// Total bonded can exceed the supply constant in pathological test
	// setups; fall back to the lowest rate rather than panicking, since
	// reward math treats overflow as fatal but an out-of-table band is a
	// configuration smell, not an arithmetic one.
	last := chaincfg.RewardBands[len(chaincfg.RewardBands)-1]
	return last.AnnualReturnPctNum, last.AnnualReturnPctDen
}

// bondedPercent computes totalBonded / FRATotalAmount * 100, truncated to
// an integer percent, using a big.Int intermediate so the multiplication
// by 100 cannot silently overflow int64 for reasonable supply values.
func bondedPercent(totalBonded int64) int64 {
	num := new(big.Int).Mul(big.NewInt(totalBonded), big.NewInt(100))
	den := big.NewInt(chaincfg.FRATotalAmount)
	return new(big.Int).Div(num, den).Int64()
}

// ProposerBonusFor returns the (numerator, denominator) extra annual rate
// for a proposer whose last-block vote power is votePower out of totalPower.
func ProposerBonusFor(votePower, totalPower int64) (num, den int64) {
	if totalPower <= 0 {
		return 0, 1
	}
	permille := new(big.Int).Div(
		new(big.Int).Mul(big.NewInt(votePower), big.NewInt(1000)),
		big.NewInt(totalPower),
	).Int64()

	for _, band := range chaincfg.ProposerBonusBands {
		if permille >= band.LowPermille && permille < band.HighPermille {
			return band.ExtraRatePctNum, band.ExtraRatePctDen
		}
	}
	return 0, 1
}

// PerBlockReward computes a single block's reward for a delegation with
// principal+accrued totaling `base`, at annual rate num/den, using a
// 128-bit-equivalent big.Int intermediate to avoid overflow: reward = base *
// num * blockIntervalSeconds / (den * 365 * 24 * 3600) It returns (0,
// ErrRewardOverflow) if the result does not fit in an int64; callers treat
// this as fatal rather than silently truncating a reward.
func PerBlockReward(base int64, num, den int64) (int64, error) {
	if base <= 0 || num <= 0 {
		return 0, nil
	}

	const secondsPerYear = int64(365 * 24 * 3600)

	numerator := new(big.Int).Mul(big.NewInt(base), big.NewInt(num))
	numerator.Mul(numerator, big.NewInt(chaincfg.BlockIntervalSeconds))
	denominator := new(big.Int).Mul(big.NewInt(den), big.NewInt(secondsPerYear))

	result := new(big.Int).Div(numerator, denominator)
	if !result.IsInt64() {
		return 0, ruleErrorf(ErrRewardOverflow, "reward: per-block reward for base %d overflows int64", base)
	}

	r := result.Int64()
	if r < 0 || r > math.MaxInt64 {
		return 0, ruleErrorf(ErrRewardOverflow, "reward: per-block reward %d out of range", r)
	}
	return r, nil
}
