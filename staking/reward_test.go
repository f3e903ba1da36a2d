// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package staking

import (
	"testing"

	"github.com/franode/abcid/chaincfg"
)

// TestRewardRateStrictlyDecreasesWithBondedRatio checks that the reward
// rate is a strictly decreasing step function of the total-bonded ratio.
func TestRewardRateStrictlyDecreasesWithBondedRatio(t *testing.T) {
	samplePct := []int64{0, 15, 25, 35, 45, 55, 65, 90}

	var prevRate float64 = 1 << 30
	for _, pct := range samplePct {
		bonded := chaincfg.FRATotalAmount / 100 * pct
		num, den := RewardRateFor(bonded)
		rate := float64(num) / float64(den)
		if rate >= prevRate {
			t.Fatalf("pct=%d: rate %d/%d = %f not strictly less than previous %f", pct, num, den, rate, prevRate)
		}
		prevRate = rate
	}
}

func TestRewardRateBandBoundaries(t *testing.T) {
	num, den := RewardRateFor(0)
	if num != 20 || den != 100 {
		t.Fatalf("0%% bonded: got %d/%d, want 20/100", num, den)
	}

	allBonded := chaincfg.FRATotalAmount
	num, den = RewardRateFor(allBonded)
	if num != 1 || den != 100 {
		t.Fatalf("100%% bonded: got %d/%d, want 1/100", num, den)
	}
}

// TestProposerBonusBands checks that the proposer bonus climbs in discrete
// steps as vote share increases toward unanimity.
func TestProposerBonusBands(t *testing.T) {
	cases := []struct {
		vote, total int64
		wantNum     int64
	}{
		{50, 100, 0},
		{700, 1000, 1},
		{800, 1000, 2},
		{900, 1000, 3},
		{950, 1000, 4},
		{1000, 1000, 5},
	}
	for _, c := range cases {
		num, _ := ProposerBonusFor(c.vote, c.total)
		if num != c.wantNum {
			t.Fatalf("ProposerBonusFor(%d, %d) = %d, want %d", c.vote, c.total, num, c.wantNum)
		}
	}
}

func TestProposerBonusZeroTotalPower(t *testing.T) {
	num, den := ProposerBonusFor(0, 0)
	if num != 0 || den != 1 {
		t.Fatalf("ProposerBonusFor(0, 0) = %d/%d, want 0/1", num, den)
	}
}

func TestPerBlockRewardBasicAndZero(t *testing.T) {
	// 100 FRA at 20% over one 16s block is about 10 atoms; a 1 FRA bond
	// earns less than one atom per block and rounds down to 0.
	r, err := PerBlockReward(100*chaincfg.AtomsPerFRA, 20, 100)
	if err != nil {
		t.Fatalf("PerBlockReward: %v", err)
	}
	if r <= 0 {
		t.Fatalf("expected a positive per-block reward for a 100 FRA delegation at the top rate, got %d", r)
	}

	if r, err := PerBlockReward(0, 20, 100); r != 0 || err != nil {
		t.Fatalf("PerBlockReward(0, ...) = (%d, %v), want (0, nil)", r, err)
	}
	if r, err := PerBlockReward(chaincfg.MinDelegationAmount, 0, 100); r != 0 || err != nil {
		t.Fatalf("PerBlockReward(_, 0, _) = (%d, %v), want (0, nil)", r, err)
	}
}

func TestPerBlockRewardOverflow(t *testing.T) {
	_, err := PerBlockReward(chaincfg.FRATotalAmount, 1<<62, 1)
	if !isErrorCode(err, ErrRewardOverflow) {
		t.Fatalf("expected ErrRewardOverflow, got %v", err)
	}
}
