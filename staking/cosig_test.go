// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package staking

import (
	"testing"

	"github.com/franode/abcid/crypto"
)

func testKeyPair(t *testing.T, seedByte byte) crypto.KeyPair {
	t.Helper()
	var seed [32]byte
	seed[0] = seedByte
	return crypto.GenerateKeyPair(seed)
}

func TestCoSigOpVerifySufficientWeight(t *testing.T) {
	k1 := testKeyPair(t, 1)
	k2 := testKeyPair(t, 2)
	k3 := testKeyPair(t, 3)

	rule, err := NewCoSigRule(map[crypto.PubKey]int64{
		k1.Public: 1,
		k2.Public: 1,
		k3.Public: 1,
	}, 2, 3)
	if err != nil {
		t.Fatalf("NewCoSigRule: %v", err)
	}

	payload := GovernanceData{Validator: k1.Public, SlashNum: 5, SlashDen: 100}
	op := NewCoSigOp[GovernanceData](payload, 1)
	if err := op.BatchSign([]crypto.KeyPair{k1, k2}); err != nil {
		t.Fatalf("BatchSign: %v", err)
	}

	if err := op.Verify(rule); err != nil {
		t.Fatalf("expected 2/3 weight to satisfy 2/3 threshold, got: %v", err)
	}
}

func TestCoSigOpVerifyInsufficientWeight(t *testing.T) {
	k1 := testKeyPair(t, 1)
	k2 := testKeyPair(t, 2)
	k3 := testKeyPair(t, 3)

	rule, err := NewCoSigRule(map[crypto.PubKey]int64{
		k1.Public: 1,
		k2.Public: 1,
		k3.Public: 1,
	}, 2, 3)
	if err != nil {
		t.Fatalf("NewCoSigRule: %v", err)
	}

	payload := GovernanceData{Validator: k1.Public, SlashNum: 5, SlashDen: 100}
	op := NewCoSigOp[GovernanceData](payload, 1)
	if err := op.Sign(k1); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	err = op.Verify(rule)
	if err == nil {
		t.Fatal("expected 1/3 weight to fail 2/3 threshold")
	}
	if !isErrorCode(err, ErrWeightInsufficient) {
		t.Fatalf("expected ErrWeightInsufficient, got %v", err)
	}
}

func TestCoSigOpVerifyUnknownSigner(t *testing.T) {
	k1 := testKeyPair(t, 1)
	stranger := testKeyPair(t, 9)

	rule, err := NewCoSigRule(map[crypto.PubKey]int64{k1.Public: 1}, 1, 1)
	if err != nil {
		t.Fatalf("NewCoSigRule: %v", err)
	}

	payload := GovernanceData{Validator: k1.Public, SlashNum: 5, SlashDen: 100}
	op := NewCoSigOp[GovernanceData](payload, 1)
	if err := op.Sign(stranger); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	err = op.Verify(rule)
	if !isErrorCode(err, ErrKeyUnknown) {
		t.Fatalf("expected ErrKeyUnknown, got %v", err)
	}
}

func TestCoSigOpVerifyTamperedSignature(t *testing.T) {
	k1 := testKeyPair(t, 1)

	rule, err := NewCoSigRule(map[crypto.PubKey]int64{k1.Public: 1}, 1, 1)
	if err != nil {
		t.Fatalf("NewCoSigRule: %v", err)
	}

	payload := GovernanceData{Validator: k1.Public, SlashNum: 5, SlashDen: 100}
	op := NewCoSigOp[GovernanceData](payload, 1)
	if err := op.Sign(k1); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	sig := op.Sigs[k1.Public]
	sig.Sig[0] ^= 0xff
	op.Sigs[k1.Public] = sig

	err = op.Verify(rule)
	if !isErrorCode(err, ErrSigInvalid) {
		t.Fatalf("expected ErrSigInvalid, got %v", err)
	}
}

func TestVerifyCacheRoundTrip(t *testing.T) {
	cache, err := NewVerifyCache(4)
	if err != nil {
		t.Fatalf("NewVerifyCache: %v", err)
	}
	k1 := testKeyPair(t, 1)
	msg := []byte("some signed bytes")

	if cache.Exists(msg, k1.Public) {
		t.Fatal("expected empty cache miss")
	}
	cache.Add(msg, k1.Public, k1.Sign(msg))
	if !cache.Exists(msg, k1.Public) {
		t.Fatal("expected cache hit after Add")
	}
}

func isErrorCode(err error, code ErrorCode) bool {
	re, ok := err.(RuleError)
	return ok && re.ErrorCode == code
}
