// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package accountstate

import (
	"testing"

	"github.com/franode/abcid/crypto"
)

func testKey(t *testing.T, b byte) crypto.PubKey {
	t.Helper()
	var seed [32]byte
	seed[0] = b
	return crypto.GenerateKeyPair(seed).Public
}

func openTestState(t *testing.T) *State {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDeliverUpdatesBalancesAndNonce(t *testing.T) {
	s := openTestState(t)
	alice := testKey(t, 1)
	bob := testKey(t, 2)

	if err := s.Credit(alice, 1000); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	s.OpenBlock()

	if err := s.Deliver(UnsignedTx{Sender: alice, Nonce: 0, Recipient: bob, Value: 300, Fee: 10}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if _, err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if got := s.Balance(alice); got != 1000-300-10 {
		t.Fatalf("alice balance = %d, want %d", got, 1000-300-10)
	}
	if got := s.Balance(bob); got != 300 {
		t.Fatalf("bob balance = %d, want 300", got)
	}
	if got := s.Nonce(alice); got != 1 {
		t.Fatalf("alice nonce = %d, want 1", got)
	}
}

func TestDeliverRejectsWrongNonce(t *testing.T) {
	s := openTestState(t)
	alice := testKey(t, 1)
	bob := testKey(t, 2)
	s.Credit(alice, 1000)
	s.OpenBlock()

	err := s.Deliver(UnsignedTx{Sender: alice, Nonce: 5, Recipient: bob, Value: 100})
	if err == nil {
		t.Fatal("expected an error for a mismatched nonce")
	}
}

func TestDeliverRejectsInsufficientBalance(t *testing.T) {
	s := openTestState(t)
	alice := testKey(t, 1)
	bob := testKey(t, 2)
	s.Credit(alice, 100)
	s.OpenBlock()

	err := s.Deliver(UnsignedTx{Sender: alice, Nonce: 0, Recipient: bob, Value: 50, Fee: 100})
	if err == nil {
		t.Fatal("expected an error when balance cannot cover value+fee")
	}
}

func TestValidateUnsignedDoesNotMutateState(t *testing.T) {
	s := openTestState(t)
	alice := testKey(t, 1)
	bob := testKey(t, 2)
	s.Credit(alice, 1000)

	if err := s.ValidateUnsigned(UnsignedTx{Sender: alice, Nonce: 0, Recipient: bob, Value: 300}); err != nil {
		t.Fatalf("ValidateUnsigned: %v", err)
	}
	if got := s.Balance(alice); got != 1000 {
		t.Fatalf("ValidateUnsigned mutated balance: got %d, want 1000 unchanged", got)
	}
	if got := s.Nonce(alice); got != 0 {
		t.Fatalf("ValidateUnsigned mutated nonce: got %d, want 0 unchanged", got)
	}
}

func TestRootHashChangesAcrossCommits(t *testing.T) {
	s := openTestState(t)
	alice := testKey(t, 1)
	root0 := s.RootHash()

	s.Credit(alice, 500)
	s.OpenBlock()
	if err := s.Deliver(UnsignedTx{Sender: alice, Nonce: 0, Recipient: testKey(t, 2), Value: 50}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	root1, err := s.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if root0 == root1 {
		t.Fatal("expected root hash to change after a committed transfer")
	}
}
