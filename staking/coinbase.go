// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package staking

import (
	"sync"

	"github.com/franode/abcid/crypto"
	"github.com/franode/abcid/famount"
)

// CoinBaseRewardsSeed and CoinBaseConversionSeed are the process-wide, fixed
// seeds the two CoinBase keypairs are derived from at startup. Each default
// is a short ASCII label, zero-padded to 32 bytes.
var (
	CoinBaseRewardsSeed    = [32]byte{0x52, 0x65, 0x77, 0x61, 0x72, 0x64, 0x73}    // "Rewards"
	CoinBaseConversionSeed = [32]byte{0x50, 0x72, 0x69, 0x6e, 0x63, 0x69, 0x70, 0x61, 0x6c} // "Principal"
)

// Output identifies a UTXO the CoinBase currently owns, as reported by the
// ledger facade.
type Output struct {
	TxHash [32]byte
	Index  uint32
}

// TxInput and TxOutput are the minimal shape of a ledger transaction's
// input/output the CoinBase payment validator needs to inspect. Real ledger
// transactions carry considerably more (script, asset commitments); the
// ledgerstate package translates to/from this shape at its boundary with the
// staking package.
type TxInput struct {
	Owner       crypto.PubKey
	Confidential bool
	AssetType   string
}

type TxOutput struct {
	Recipient    crypto.PubKey
	Amount       int64
	Confidential bool
	AssetType    string
}

// Tx is the minimal transaction shape check_and_pay inspects.
type Tx struct {
	Hash    [32]byte
	Inputs  []TxInput
	Outputs []TxOutput
}

// NativeAssetType is the sentinel asset-type string identifying the
// network's native FRA token, as opposed to a user-issued asset.
const NativeAssetType = "FRA"

// CoinBase holds the two protocol-owned accounts (rewards, principal) that
// mint reward payouts and return unbonded principal.
type CoinBase struct {
	mtx sync.Mutex

	Rewards   crypto.KeyPair
	Principal crypto.KeyPair

	unspent map[crypto.PubKey]map[Output]struct{}

	// plan is the pending distribution obligation per recipient.
	plan map[crypto.PubKey]int64

	// history holds the hash of every FraDistribution operation processed,
	// for the idempotence invariant I7. A map is a faithful, simple stand-in
	// for the age-partitioned bloom filter the corpus's container/apbf
	// package implements; see DESIGN.md for why that package was not
	// adopted (the retrieval pack carried no source for it to adapt).
	history map[[32]byte]struct{}

	// paidAt records the height each delegation reached Paid, consumed by
	// DelegationRegistry.RemovePaid.
	paidAt map[crypto.PubKey]int64
}

// NewCoinBase derives the two CoinBase keypairs from their fixed seeds and
// returns an empty CoinBase.
func NewCoinBase() *CoinBase {
	cb := &CoinBase{
		Rewards:   crypto.GenerateKeyPair(CoinBaseRewardsSeed),
		Principal: crypto.GenerateKeyPair(CoinBaseConversionSeed),
		unspent:   make(map[crypto.PubKey]map[Output]struct{}),
		plan:      make(map[crypto.PubKey]int64),
		history:   make(map[[32]byte]struct{}),
		paidAt:    make(map[crypto.PubKey]int64),
	}
	cb.unspent[cb.Rewards.Public] = make(map[Output]struct{})
	cb.unspent[cb.Principal.Public] = make(map[Output]struct{})
	return cb
}

// IsCoinBase reports whether key is one of the two protocol-owned accounts.
func (cb *CoinBase) IsCoinBase(key crypto.PubKey) bool {
	return key == cb.Rewards.Public || key == cb.Principal.Public
}

// AddUTXO records that the CoinBase account owns a new unspent output.
func (cb *CoinBase) AddUTXO(account crypto.PubKey, out Output) {
	cb.mtx.Lock()
	defer cb.mtx.Unlock()
	if _, ok := cb.unspent[account]; !ok {
		cb.unspent[account] = make(map[Output]struct{})
	}
	cb.unspent[account][out] = struct{}{}
}

// CleanSpent removes outputs the ledger reports as consumed.
func (cb *CoinBase) CleanSpent(spent []Output) {
	cb.mtx.Lock()
	defer cb.mtx.Unlock()
	for _, out := range spent {
		for _, set := range cb.unspent {
			delete(set, out)
		}
	}
}

// ConfigFraDistribution inserts op's hash into history (failing on a
// duplicate) and adds each recipient/amount pair into the plan with a
// saturating add, failing on overflow.
func (cb *CoinBase) ConfigFraDistribution(opHash [32]byte, data FraDistributionData) error {
	cb.mtx.Lock()
	defer cb.mtx.Unlock()

	if _, dup := cb.history[opHash]; dup {
		return ruleErrorf(ErrDuplicateDistribution, "coinbase: distribution op %x already processed", opHash)
	}

	// Validate every entry before mutating the plan, so a failing op
	// leaves the plan untouched.
	next := make(map[crypto.PubKey]int64, len(cb.plan))
	for k, v := range cb.plan {
		next[k] = v
	}
	for _, entry := range data.Recipients {
		sum, ok := famount.Amount(next[entry.Recipient]).SaturatingAdd(famount.Amount(entry.Amount))
		if !ok {
			return ruleErrorf(ErrDistributionOverflow,
				"coinbase: distribution to %s overflows plan", entry.Recipient)
		}
		next[entry.Recipient] = int64(sum)
	}

	cb.history[opHash] = struct{}{}
	cb.plan = next
	log.Infof("coinbase: recorded distribution op %x for %d recipients", opHash, len(data.Recipients))
	return nil
}

// PlanFor returns the pending distribution amount owed to key.
func (cb *CoinBase) PlanFor(key crypto.PubKey) int64 {
	cb.mtx.Lock()
	defer cb.mtx.Unlock()
	return cb.plan[key]
}

// Plan returns a snapshot of the full distribution plan.
func (cb *CoinBase) Plan() map[crypto.PubKey]int64 {
	cb.mtx.Lock()
	defer cb.mtx.Unlock()
	out := make(map[crypto.PubKey]int64, len(cb.plan))
	for k, v := range cb.plan {
		out[k] = v
	}
	return out
}

// validatePayment implements the CoinBase payment validator: every input
// must be owned by the same CoinBase account; every input and output must be
// non-confidential native-asset; every output recipient must be a CoinBase
// account (change), a planned recipient, or a Free delegation; and output
// amounts must exactly match the planned amount or the delegation's owed
// principal/reward.
func (cb *CoinBase) validatePayment(tx Tx, freeDelegations map[crypto.PubKey]Delegation) (crypto.PubKey, error) {
	if len(tx.Inputs) == 0 {
		return crypto.PubKey{}, ruleError(ErrCoinBaseInputMixed, "coinbase: payment has no inputs")
	}
	payer := tx.Inputs[0].Owner
	if !cb.IsCoinBase(payer) {
		return crypto.PubKey{}, ruleErrorf(ErrCoinBaseInputMixed, "coinbase: input owner %s is not a CoinBase account", payer)
	}
	for _, in := range tx.Inputs {
		if in.Owner != payer || in.Confidential || in.AssetType != NativeAssetType {
			return crypto.PubKey{}, ruleError(ErrCoinBaseInputMixed, "coinbase: mixed or confidential/non-native input")
		}
	}

	for _, out := range tx.Outputs {
		if out.Confidential || out.AssetType != NativeAssetType {
			return crypto.PubKey{}, ruleError(ErrCoinBaseOutputInvalid, "coinbase: confidential or non-native output")
		}
		if cb.IsCoinBase(out.Recipient) {
			continue // change
		}
		if planned, ok := cb.plan[out.Recipient]; ok {
			if out.Amount == planned {
				continue
			}
			return crypto.PubKey{}, ruleErrorf(ErrCoinBaseOutputInvalid,
				"coinbase: output to %s is %d, plan owes %d", out.Recipient, out.Amount, planned)
		}
		if d, ok := freeDelegations[out.Recipient]; ok {
			owed := d.Amount + d.RewardAmount
			if out.Amount == owed {
				continue
			}
			return crypto.PubKey{}, ruleErrorf(ErrCoinBaseOutputInvalid,
				"coinbase: output to %s is %d, owed %d", out.Recipient, out.Amount, owed)
		}
		return crypto.PubKey{}, ruleErrorf(ErrCoinBaseOutputInvalid,
			"coinbase: %s is not a CoinBase account, planned recipient, or Free delegation", out.Recipient)
	}
	return payer, nil
}

// CheckAndPay validates tx as a CoinBase payment if any of its inputs are
// CoinBase-owned, and on success zeroes the paid plan entries and marks the
// corresponding delegations Paid. It returns (false, nil) for a transaction
// with no CoinBase-owned input, since such a transaction is not a CoinBase
// payment at all and is outside this function's concern.
func (cb *CoinBase) CheckAndPay(tx Tx, freeDelegations map[crypto.PubKey]Delegation, currentHeight int64, markPaid func(owner crypto.PubKey)) (bool, error) {
	hasCoinBaseInput := false
	for _, in := range tx.Inputs {
		if cb.IsCoinBase(in.Owner) {
			hasCoinBaseInput = true
			break
		}
	}
	if !hasCoinBaseInput {
		return false, nil
	}

	cb.mtx.Lock()
	defer cb.mtx.Unlock()

	if _, err := cb.validatePayment(tx, freeDelegations); err != nil {
		return true, err
	}

	for _, out := range tx.Outputs {
		if cb.IsCoinBase(out.Recipient) {
			continue
		}
		if _, ok := cb.plan[out.Recipient]; ok {
			delete(cb.plan, out.Recipient)
			continue
		}
		if _, ok := freeDelegations[out.Recipient]; ok {
			cb.paidAt[out.Recipient] = currentHeight
			markPaid(out.Recipient)
		}
	}
	return true, nil
}

// PaidAtHeight returns the height at which owner's delegation was marked
// Paid, for DelegationRegistry.RemovePaid.
func (cb *CoinBase) PaidAtHeight() map[crypto.PubKey]int64 {
	cb.mtx.Lock()
	defer cb.mtx.Unlock()
	out := make(map[crypto.PubKey]int64, len(cb.paidAt))
	for k, v := range cb.paidAt {
		out[k] = v
	}
	return out
}
