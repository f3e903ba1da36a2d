// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package staking

import (
	"testing"

	"github.com/franode/abcid/crypto"
)

func TestConfigFraDistributionDuplicateRejected(t *testing.T) {
	cb := NewCoinBase()
	a := testKeyPair(t, 1).Public
	b := testKeyPair(t, 2).Public

	data := FraDistributionData{Recipients: []DistributionEntry{
		{Recipient: a, Amount: 10},
		{Recipient: b, Amount: 20},
	}}
	opHash := [32]byte{0xaa}

	if err := cb.ConfigFraDistribution(opHash, data); err != nil {
		t.Fatalf("first ConfigFraDistribution: %v", err)
	}
	if cb.PlanFor(a) != 10 || cb.PlanFor(b) != 20 {
		t.Fatalf("plan = %v, want a=10 b=20", cb.Plan())
	}

	err := cb.ConfigFraDistribution(opHash, data)
	if !isErrorCode(err, ErrDuplicateDistribution) {
		t.Fatalf("expected ErrDuplicateDistribution on replay, got %v", err)
	}
	// Balances (the plan) must be unchanged after the rejected replay.
	if cb.PlanFor(a) != 10 || cb.PlanFor(b) != 20 {
		t.Fatalf("plan mutated by rejected replay: %v", cb.Plan())
	}
}

func TestCheckAndPayValidatesRecipientsAndAmounts(t *testing.T) {
	cb := NewCoinBase()
	recipient := testKeyPair(t, 1).Public
	opHash := [32]byte{0xbb}
	if err := cb.ConfigFraDistribution(opHash, FraDistributionData{
		Recipients: []DistributionEntry{{Recipient: recipient, Amount: 100}},
	}); err != nil {
		t.Fatalf("ConfigFraDistribution: %v", err)
	}

	tx := Tx{
		Inputs:  []TxInput{{Owner: cb.Rewards.Public, AssetType: NativeAssetType}},
		Outputs: []TxOutput{{Recipient: recipient, Amount: 100, AssetType: NativeAssetType}},
	}

	marked := false
	handled, err := cb.CheckAndPay(tx, nil, 50, func(crypto.PubKey) { marked = true })
	if !handled || err != nil {
		t.Fatalf("CheckAndPay: handled=%v err=%v", handled, err)
	}
	if marked {
		t.Fatal("markPaid should only be called for Free-delegation recipients, not plan payouts")
	}
	if cb.PlanFor(recipient) != 0 {
		t.Fatalf("expected plan entry cleared after payment, got %d", cb.PlanFor(recipient))
	}
}

func TestCheckAndPayRejectsWrongAmount(t *testing.T) {
	cb := NewCoinBase()
	recipient := testKeyPair(t, 1).Public
	if err := cb.ConfigFraDistribution([32]byte{0x01}, FraDistributionData{
		Recipients: []DistributionEntry{{Recipient: recipient, Amount: 100}},
	}); err != nil {
		t.Fatalf("ConfigFraDistribution: %v", err)
	}

	tx := Tx{
		Inputs:  []TxInput{{Owner: cb.Rewards.Public, AssetType: NativeAssetType}},
		Outputs: []TxOutput{{Recipient: recipient, Amount: 999, AssetType: NativeAssetType}},
	}
	_, err := cb.CheckAndPay(tx, nil, 1, func(crypto.PubKey) {})
	if !isErrorCode(err, ErrCoinBaseOutputInvalid) {
		t.Fatalf("expected ErrCoinBaseOutputInvalid, got %v", err)
	}
}

func TestCheckAndPayIgnoresNonCoinBaseTx(t *testing.T) {
	cb := NewCoinBase()
	alice := testKeyPair(t, 5).Public
	bob := testKeyPair(t, 6).Public
	tx := Tx{
		Inputs:  []TxInput{{Owner: alice, AssetType: NativeAssetType}},
		Outputs: []TxOutput{{Recipient: bob, Amount: 5, AssetType: NativeAssetType}},
	}
	handled, err := cb.CheckAndPay(tx, nil, 1, func(crypto.PubKey) {})
	if handled || err != nil {
		t.Fatalf("expected (false, nil) for an ordinary transfer, got (%v, %v)", handled, err)
	}
}

func TestCheckAndPayFreeDelegationPrincipalAndReward(t *testing.T) {
	cb := NewCoinBase()
	delegator := testKeyPair(t, 1).Public
	freeDelegations := map[crypto.PubKey]Delegation{
		delegator: {Owner: delegator, Amount: 32_000_000, RewardAmount: 500, State: Free},
	}

	tx := Tx{
		Inputs: []TxInput{{Owner: cb.Principal.Public, AssetType: NativeAssetType}},
		Outputs: []TxOutput{
			{Recipient: delegator, Amount: 32_000_500, AssetType: NativeAssetType},
		},
	}

	var markedOwner crypto.PubKey
	handled, err := cb.CheckAndPay(tx, freeDelegations, 200, func(owner crypto.PubKey) { markedOwner = owner })
	if !handled || err != nil {
		t.Fatalf("CheckAndPay: handled=%v err=%v", handled, err)
	}
	if markedOwner != delegator {
		t.Fatalf("expected markPaid to be called for %s, got %s", delegator, markedOwner)
	}
	if cb.PaidAtHeight()[delegator] != 200 {
		t.Fatalf("expected paidAt height 200, got %d", cb.PaidAtHeight()[delegator])
	}
}
