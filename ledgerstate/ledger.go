// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package ledgerstate implements the legacy UTXO ledger module deliver_tx
// and commit drive alongside the account/EVM module. It is a minimal
// confidential-UTXO facade: enough bookkeeping to validate inputs/outputs,
// notify the staking CoinBase of spends, and produce a root hash for the
// ABCI app_hash, without reimplementing a full zero-knowledge transaction
// format.
package ledgerstate

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/franode/abcid/crypto"
	"github.com/franode/abcid/famount"
	"github.com/franode/abcid/staking"
)

// Output identifies an unspent transaction output by its owning
// transaction hash and output index.
type Output struct {
	TxHash [32]byte
	Index  uint32
}

// utxoKey builds the leveldb key for an Output: a "u" prefix followed by
// the 32-byte hash and 4-byte big-endian index, grouping all UTXO entries
// under a single iterable prefix for prefix-scoped cursor iteration.
func utxoKey(o Output) []byte {
	b := make([]byte, 1+32+4)
	b[0] = 'u'
	copy(b[1:33], o.TxHash[:])
	binary.BigEndian.PutUint32(b[33:37], o.Index)
	return b
}

// utxoEntry is the leveldb value stored for each unspent output.
type utxoEntry struct {
	Owner     crypto.PubKey
	Amount    int64
	AssetType string
}

func (e utxoEntry) encode() []byte {
	var buf bytes.Buffer
	buf.Write(e.Owner[:])
	var amt [8]byte
	binary.BigEndian.PutUint64(amt[:], uint64(e.Amount))
	buf.Write(amt[:])
	buf.WriteString(e.AssetType)
	return buf.Bytes()
}

func decodeUTXOEntry(b []byte) (utxoEntry, error) {
	if len(b) < crypto.PubKeySize+8 {
		return utxoEntry{}, fmt.Errorf("ledgerstate: short utxo entry (%d bytes)", len(b))
	}
	var e utxoEntry
	copy(e.Owner[:], b[:crypto.PubKeySize])
	e.Amount = int64(binary.BigEndian.Uint64(b[crypto.PubKeySize : crypto.PubKeySize+8]))
	e.AssetType = string(b[crypto.PubKeySize+8:])
	return e, nil
}

// Ledger is the legacy UTXO ledger facade: a goleveldb-backed unspent-output
// set plus the in-progress block state (spent/created outputs) between
// OpenBlock and CloseBlock.
type Ledger struct {
	mtx sync.Mutex
	db  *leveldb.DB

	// pending accumulates this block's created and spent outputs until
	// CloseBlock commits them, so a failed deliver_tx mid-block never
	// partially mutates the committed set.
	pendingCreate map[Output]utxoEntry
	pendingSpend  []Output
	height        int64
	open          bool
}

// Open creates or reopens a Ledger backed by a goleveldb database at dir.
func Open(dir string) (*Ledger, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, err
	}
	return &Ledger{db: db}, nil
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// OpenBlock begins a new block at height h, clearing any leftover pending
// state from a block that never reached CloseBlock.
func (l *Ledger) OpenBlock(h int64) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.height = h
	l.pendingCreate = make(map[Output]utxoEntry)
	l.pendingSpend = l.pendingSpend[:0]
	l.open = true
}

// ApplyTransfer validates and stages an ordinary (non-CoinBase) ledger
// transfer: every input must reference a UTXO this ledger currently
// considers unspent (committed or created earlier this block) and owned by
// the claimed owner, and the transaction's total input amount per asset type
// must equal its total output amount. It returns the staking.Tx shape so the
// caller can also run it through staking.CoinBase.CheckAndPay.
func (l *Ledger) ApplyTransfer(txHash [32]byte, inputs []staking.TxInput, inputRefs []Output, outputs []staking.TxOutput) (staking.Tx, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	if !l.open {
		return staking.Tx{}, fmt.Errorf("ledgerstate: ApplyTransfer called outside an open block")
	}
	if len(inputs) != len(inputRefs) {
		return staking.Tx{}, fmt.Errorf("ledgerstate: %d inputs but %d input refs", len(inputs), len(inputRefs))
	}

	balances := make(map[string]int64)
	for i, ref := range inputRefs {
		entry, ok := l.lookup(ref)
		if !ok {
			return staking.Tx{}, fmt.Errorf("ledgerstate: input %v is not an unspent output", ref)
		}
		if entry.Owner != inputs[i].Owner {
			return staking.Tx{}, fmt.Errorf("ledgerstate: input %v owner mismatch", ref)
		}
		balances[entry.AssetType] += entry.Amount
	}
	for _, out := range outputs {
		balances[out.AssetType] -= out.Amount
	}
	// A transaction with no inputs at all mints its outputs rather than
	// transferring existing value: the balance check only applies once there is
	// something to balance against.
	if len(inputs) > 0 {
		for asset, diff := range balances {
			if diff != 0 {
				return staking.Tx{}, fmt.Errorf("ledgerstate: asset %q inputs/outputs differ by %d", asset, diff)
			}
		}
	}

	for _, ref := range inputRefs {
		l.pendingSpend = append(l.pendingSpend, ref)
		delete(l.pendingCreate, ref)
	}
	for idx, out := range outputs {
		o := Output{TxHash: txHash, Index: uint32(idx)}
		l.pendingCreate[o] = utxoEntry{Owner: out.Recipient, Amount: out.Amount, AssetType: out.AssetType}
	}

	return staking.Tx{Hash: txHash, Inputs: inputs, Outputs: outputs}, nil
}

// lookup treats an output already spent this block as absent, then checks
// pending creations, then the committed database. Callers must hold l.mtx.
func (l *Ledger) lookup(o Output) (utxoEntry, bool) {
	for _, spent := range l.pendingSpend {
		if spent == o {
			return utxoEntry{}, false
		}
	}
	if e, ok := l.pendingCreate[o]; ok {
		return e, true
	}
	b, err := l.db.Get(utxoKey(o), nil)
	if err != nil {
		return utxoEntry{}, false
	}
	e, err := decodeUTXOEntry(b)
	if err != nil {
		return utxoEntry{}, false
	}
	return e, true
}

// CloseBlock commits the block's pending spends and creations to the
// database in a single leveldb batch, reports the list of spent outputs (for
// staking.CoinBase.CleanSpent) and created outputs owned by coinbase-
// relevant accounts (for staking.CoinBase.AddUTXO, left to the caller to
// filter), and returns the block's root hash.
func (l *Ledger) CloseBlock() (spent []Output, created []Output, rootHash [32]byte, err error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	if !l.open {
		return nil, nil, rootHash, fmt.Errorf("ledgerstate: CloseBlock called without an open block")
	}

	batch := new(leveldb.Batch)
	for _, o := range l.pendingSpend {
		batch.Delete(utxoKey(o))
	}
	for o, e := range l.pendingCreate {
		batch.Put(utxoKey(o), e.encode())
		created = append(created, o)
	}
	if err := l.db.Write(batch, nil); err != nil {
		return nil, nil, rootHash, err
	}

	spent = append(spent, l.pendingSpend...)
	rootHash = l.rootHashLocked()

	l.open = false
	log.Infof("ledgerstate: closed block %d: %d spent, %d created", l.height, len(spent), len(created))
	return spent, created, rootHash, nil
}

// rootHashLocked computes a deterministic digest of the entire unspent-
// output set by iterating the database in key order and hashing each entry
// in sequence, serving as the ledger module's contribution to the ABCI
// app_hash. Callers must hold l.mtx.
func (l *Ledger) rootHashLocked() [32]byte {
	h := sha256.New()
	iter := l.db.NewIterator(util.BytesPrefix([]byte{'u'}), nil)
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
func (l *Ledger) RootHash() [32]byte {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.rootHashLocked()
}

// Owner returns the current owner of output o, if it is unspent.
func (l *Ledger) Owner(o Output) (crypto.PubKey, bool) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	e, ok := l.lookup(o)
	return e.Owner, ok
}

// BalanceOf sums every unspent native-asset output owned by key, used for
// diagnostics and the query RPC surface; it is O(n) in the UTXO set size
// and is not on any consensus-critical path.
func (l *Ledger) BalanceOf(key crypto.PubKey) famount.Amount {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	var total int64
	iter := l.db.NewIterator(util.BytesPrefix([]byte{'u'}), nil)
	defer iter.Release()
	for iter.Next() {
		e, err := decodeUTXOEntry(iter.Value())
		if err != nil || e.Owner != key || e.AssetType != staking.NativeAssetType {
			continue
		}
		total += e.Amount
	}
	return famount.Amount(total)
}

// sortOutputs returns outs sorted by (TxHash, Index), used by tests to keep
// output deterministic.
func sortOutputs(outs []Output) []Output {
	sorted := append([]Output(nil), outs...)
	sort.Slice(sorted, func(i, j int) bool {
		if c := bytes.Compare(sorted[i].TxHash[:], sorted[j].TxHash[:]); c != 0 {
			return c < 0
		}
		return sorted[i].Index < sorted[j].Index
	})
	return sorted
}
