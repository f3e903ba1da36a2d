// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package accountstate implements the account/EVM module's deliver_tx and
// commit side: account nonce and balance bookkeeping backed by goleveldb,
// running alongside the legacy UTXO ledger in ledgerstate. A full EVM
// interpreter is out of this module's scope; this package implements the
// account bookkeeping an EVM execution layer would sit on top of, which is
// the part the staking core and ABCI dispatcher actually need to drive.
package accountstate

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/franode/abcid/crypto"
)

// account is the persisted per-address record.
type account struct {
	Nonce   uint64
	Balance int64
}

func accountKey(addr crypto.PubKey) []byte {
	b := make([]byte, 1+crypto.PubKeySize)
	b[0] = 'a'
	copy(b[1:], addr[:])
	return b
}

func (a account) encode() []byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], a.Nonce)
	binary.BigEndian.PutUint64(b[8:16], uint64(a.Balance))
	return b[:]
}

func decodeAccount(b []byte) (account, error) {
	if len(b) != 16 {
		return account{}, fmt.Errorf("accountstate: malformed account record (%d bytes)", len(b))
	}
	return account{
		Nonce:   binary.BigEndian.Uint64(b[0:8]),
		Balance: int64(binary.BigEndian.Uint64(b[8:16])),
	}, nil
}

// UnsignedTx is the minimal shape of an account-module transaction this
// package validates before it is applied: a sender, the nonce it claims, a
// native-asset value transfer to recipient, and a flat per-transaction fee.
type UnsignedTx struct {
	Sender    crypto.PubKey
	Nonce     uint64
	Recipient crypto.PubKey
	Value     int64
	Fee       int64
}

// State is the account/EVM module facade.
type State struct {
	mtx sync.Mutex
	db  *leveldb.DB

	pendingDelta map[crypto.PubKey]account
	open         bool
}

// Open creates or reopens an account State backed by a goleveldb database
// at dir.
func Open(dir string) (*State, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, err
	}
	return &State{db: db}, nil
}

// Close releases the underlying database handle.
func (s *State) Close() error {
	return s.db.Close()
}

// get returns addr's current account, applying any pending delta from
// this block. Callers must hold s.mtx.
func (s *State) get(addr crypto.PubKey) account {
	if a, ok := s.pendingDelta[addr]; ok {
		return a
	}
	b, err := s.db.Get(accountKey(addr), nil)
	if err != nil {
		return account{}
	}
	a, err := decodeAccount(b)
	if err != nil {
		return account{}
	}
	return a
}

// Nonce returns addr's current account nonce.
func (s *State) Nonce(addr crypto.PubKey) uint64 {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.get(addr).Nonce
}

// Balance returns addr's current native-asset balance.
func (s *State) Balance(addr crypto.PubKey) int64 {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.get(addr).Balance
}

// Credit increases addr's balance by amount outside of the normal
// deliver_tx path. Unlike Deliver, Credit writes straight through to the
// database rather than staging into the current block's pending delta, so
// it takes effect whether or not a block is open and is not undone by the
// next OpenBlock.
func (s *State) Credit(addr crypto.PubKey, amount int64) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	a := s.get(addr)
	a.Balance += amount
	if err := s.db.Put(accountKey(addr), a.encode(), nil); err != nil {
		return err
	}
	// Drop any stale pending delta for addr left over from the last block's
	// staged-but-already-committed state, so a subsequent get() within this
	// same block sees the credit instead of the pre-credit staged value.
	delete(s.pendingDelta, addr)
	return nil
}

// ValidateUnsigned checks tx against the current state without mutating it:
// the nonce must exactly match the account's current nonce, the balance must
// cover value+fee, and value/fee must be non-negative.
func (s *State) ValidateUnsigned(tx UnsignedTx) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if tx.Value < 0 || tx.Fee < 0 {
		return fmt.Errorf("accountstate: negative value or fee")
	}
	a := s.get(tx.Sender)
	if tx.Nonce != a.Nonce {
		return fmt.Errorf("accountstate: nonce %d does not match account nonce %d", tx.Nonce, a.Nonce)
	}
	if a.Balance < tx.Value+tx.Fee {
		return fmt.Errorf("accountstate: balance %d insufficient for value %d + fee %d", a.Balance, tx.Value, tx.Fee)
	}
	return nil
}

// Deliver applies tx: validates it exactly as ValidateUnsigned does, then
// debits the sender (value + fee) and credits the recipient, and increments
// the sender's nonce. It stages the change in memory; Commit persists it.
func (s *State) Deliver(tx UnsignedTx) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if !s.open {
		return fmt.Errorf("accountstate: Deliver called outside an open block")
	}
	if tx.Value < 0 || tx.Fee < 0 {
		return fmt.Errorf("accountstate: negative value or fee")
	}
	sender := s.get(tx.Sender)
	if tx.Nonce != sender.Nonce {
		return fmt.Errorf("accountstate: nonce %d does not match account nonce %d", tx.Nonce, sender.Nonce)
	}
	if sender.Balance < tx.Value+tx.Fee {
		return fmt.Errorf("accountstate: balance %d insufficient for value %d + fee %d", sender.Balance, tx.Value, tx.Fee)
	}

	sender.Balance -= tx.Value + tx.Fee
	sender.Nonce++
	s.stage(tx.Sender, sender)

	recipient := s.get(tx.Recipient)
	recipient.Balance += tx.Value
	s.stage(tx.Recipient, recipient)

	return nil
}

// stage records a's new value in the pending-delta set. Callers must hold
// s.mtx.
func (s *State) stage(addr crypto.PubKey, a account) {
	if s.pendingDelta == nil {
		s.pendingDelta = make(map[crypto.PubKey]account)
	}
	s.pendingDelta[addr] = a
}

// OpenBlock begins a new block, clearing any leftover pending state from a
// block that never reached Commit.
func (s *State) OpenBlock() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.pendingDelta = make(map[crypto.PubKey]account)
	s.open = true
}

// Commit writes the block's staged account deltas to the database in a
// single batch and returns the module's root hash contribution to the ABCI
// app_hash.
func (s *State) Commit() ([32]byte, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if !s.open {
		return [32]byte{}, fmt.Errorf("accountstate: Commit called without an open block")
	}

	batch := new(leveldb.Batch)
	for addr, a := range s.pendingDelta {
		batch.Put(accountKey(addr), a.encode())
	}
	if err := s.db.Write(batch, nil); err != nil {
		return [32]byte{}, err
	}

	root := s.rootHashLocked()
	s.open = false
	log.Infof("accountstate: committed %d account deltas", len(s.pendingDelta))
	return root, nil
}

// rootHashLocked computes a deterministic digest over every persisted
// account record in key order. Callers must hold s.mtx.
func (s *State) rootHashLocked() [32]byte {
	h := sha256.New()
	iter := s.db.NewIterator(util.BytesPrefix([]byte{'a'}), nil)
	defer iter.Release()
	for iter.Next() {
		h.Write(iter.Key())
		h.Write(iter.Value())
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// RootHash returns the current committed root hash without opening a new
// block, used by the query RPC surface.
func (s *State) RootHash() [32]byte {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.rootHashLocked()
}
