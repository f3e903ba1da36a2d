// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package staking

import (
	"testing"

	"github.com/franode/abcid/crypto"
)

func singleValidatorSnapshot(appKey, consKey crypto.PubKey, power int64) ValidatorData {
	num, den := DefaultThreshold()
	return ValidatorData{
		Validators: map[crypto.PubKey]ValidatorEntry{
			appKey: {ConsensusPubKey: consKey, Power: power, CommissionDen: 1},
		},
		Rule: RuleSpec{
			Weights:      []WeightEntry{{Key: appKey, Weight: 1}},
			ThresholdNum: num,
			ThresholdDen: den,
		},
	}
}

func TestValidatorRegistrySetAtHeightInsertOnly(t *testing.T) {
	reg := NewValidatorRegistry()
	v1 := testKeyPair(t, 1)

	data := singleValidatorSnapshot(v1.Public, v1.Public, 100)
	if err := reg.SetAtHeight(2, data); err != nil {
		t.Fatalf("first SetAtHeight: %v", err)
	}
	if err := reg.SetAtHeight(2, data); !isErrorCode(err, ErrSnapshotExists) {
		t.Fatalf("expected ErrSnapshotExists, got %v", err)
	}
}

func TestValidatorRegistryEffectiveAt(t *testing.T) {
	reg := NewValidatorRegistry()
	v1 := testKeyPair(t, 1)

	if err := reg.SetAtHeight(2, singleValidatorSnapshot(v1.Public, v1.Public, 100)); err != nil {
		t.Fatalf("SetAtHeight(2): %v", err)
	}
	if err := reg.SetAtHeight(10, singleValidatorSnapshot(v1.Public, v1.Public, 200)); err != nil {
		t.Fatalf("SetAtHeight(10): %v", err)
	}

	if v, ok := reg.Validator(1, v1.Public); ok {
		t.Fatalf("expected no effective snapshot before height 2, got %+v", v)
	}
	v, ok := reg.Validator(5, v1.Public)
	if !ok || v.Power != 100 {
		t.Fatalf("expected power 100 at height 5, got %+v, ok=%v", v, ok)
	}
	v, ok = reg.Validator(15, v1.Public)
	if !ok || v.Power != 200 {
		t.Fatalf("expected power 200 at height 15, got %+v, ok=%v", v, ok)
	}
}

func TestValidatorRegistryChangePowerShareCap(t *testing.T) {
	reg := NewValidatorRegistry()
	vs := make(map[crypto.PubKey]ValidatorEntry)
	var keys []crypto.PubKey
	for i := byte(1); i <= 6; i++ {
		kp := testKeyPair(t, i)
		keys = append(keys, kp.Public)
		vs[kp.Public] = ValidatorEntry{ConsensusPubKey: kp.Public, Power: 100, CommissionDen: 1}
	}
	num, den := DefaultThreshold()
	weights := make([]WeightEntry, 0, len(keys))
	for _, k := range keys {
		weights = append(weights, WeightEntry{Key: k, Weight: 1})
	}
	data := ValidatorData{Validators: vs, Rule: RuleSpec{Weights: weights, ThresholdNum: num, ThresholdDen: den}}

	if err := reg.SetAtHeight(2, data); err != nil {
		t.Fatalf("SetAtHeight: %v", err)
	}

	// Total power is 600; 20% cap is 120. Adding 220 to one validator would
	// put it at 320/820, well above 20%, and must be rejected.
	err := reg.ChangePower(2, keys[0], 220)
	if !isErrorCode(err, ErrPowerExceedsShareCap) {
		t.Fatalf("expected ErrPowerExceedsShareCap, got %v", err)
	}

	total := reg.TotalPower(2)
	if total != 600 {
		t.Fatalf("expected total power unchanged at 600, got %d", total)
	}
}

func TestValidatorRegistryApplyCurrentRetiresMissingValidators(t *testing.T) {
	reg := NewValidatorRegistry()
	v1 := testKeyPair(t, 1)
	v2 := testKeyPair(t, 2)

	num, den := DefaultThreshold()
	gen0 := ValidatorData{
		Validators: map[crypto.PubKey]ValidatorEntry{
			v1.Public: {ConsensusPubKey: v1.Public, Power: 100, CommissionDen: 1},
			v2.Public: {ConsensusPubKey: v2.Public, Power: 100, CommissionDen: 1},
		},
		Rule: RuleSpec{
			Weights:      []WeightEntry{{Key: v1.Public, Weight: 1}, {Key: v2.Public, Weight: 1}},
			ThresholdNum: num, ThresholdDen: den,
		},
	}
	if err := reg.SetAtHeight(2, gen0); err != nil {
		t.Fatalf("SetAtHeight(2): %v", err)
	}

	// v2 is retired by being absent from the height-10 snapshot.
	gen1 := singleValidatorSnapshot(v1.Public, v1.Public, 0)
	if err := reg.SetAtHeight(10, gen1); err != nil {
		t.Fatalf("SetAtHeight(10): %v", err)
	}

	deltas := reg.ApplyCurrent(10)
	if len(deltas) != 1 || deltas[0].Power != 0 {
		t.Fatalf("expected a single power-zero delta for v2, got %+v", deltas)
	}

	// v1 is present in both snapshots, so it inherits its power from the
	// previous one.
	v, ok := reg.Validator(10, v1.Public)
	if !ok || v.Power != 100 {
		t.Fatalf("expected v1 to inherit power 100, got %+v, ok=%v", v, ok)
	}
}

func TestValidatorRegistryTopByPowerCap(t *testing.T) {
	reg := NewValidatorRegistry()
	vs := make(map[crypto.PubKey]ValidatorEntry)
	var weights []WeightEntry
	for i := byte(1); i <= 5; i++ {
		kp := testKeyPair(t, i)
		vs[kp.Public] = ValidatorEntry{ConsensusPubKey: kp.Public, Power: int64(i) * 10, CommissionDen: 1}
		weights = append(weights, WeightEntry{Key: kp.Public, Weight: 1})
	}
	num, den := DefaultThreshold()
	if err := reg.SetAtHeight(2, ValidatorData{Validators: vs, Rule: RuleSpec{Weights: weights, ThresholdNum: num, ThresholdDen: den}}); err != nil {
		t.Fatalf("SetAtHeight: %v", err)
	}

	top := reg.TopByPower(2, 3)
	if len(top) != 3 {
		t.Fatalf("expected 3 validators, got %d", len(top))
	}
	if top[0].Power < top[1].Power || top[1].Power < top[2].Power {
		t.Fatalf("expected descending power order, got %+v", top)
	}
}
