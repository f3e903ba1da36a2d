// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package staking

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/franode/abcid/crypto"
)

// ValidatorData is the payload of a validator-set-update CoSigOp: a snapshot
// of the validator set effective from a given height plus the co-signature
// rule that will govern the *next* update.
type ValidatorData struct {
	Validators map[crypto.PubKey]ValidatorEntry
	Rule       RuleSpec
}

// ValidatorEntry is the portion of a Validator record carried inside a
// ValidatorData payload: just enough to reconstruct voting power and
// identity, without the runtime bookkeeping fields (LastBlockSigned) that
// belong to the live registry.
type ValidatorEntry struct {
	ConsensusPubKey crypto.PubKey
	Power           int64
	Memo            string
	CommissionNum   int64
	CommissionDen   int64
}

// RuleSpec is the wire-friendly form of a CoSigRule: a weight list instead
// of a map, so it serializes deterministically.
type RuleSpec struct {
	Weights      []WeightEntry
	ThresholdNum int64
	ThresholdDen int64
}

// WeightEntry pairs a signer key with its weight in a RuleSpec.
type WeightEntry struct {
	Key    crypto.PubKey
	Weight int64
}

// ToCoSigRule builds a runtime CoSigRule from a RuleSpec.
func (r RuleSpec) ToCoSigRule() (*CoSigRule, error) {
	weights := make(map[crypto.PubKey]int64, len(r.Weights))
	for _, w := range r.Weights {
		if _, dup := weights[w.Key]; dup {
			return nil, ruleErrorf(ErrDuplicateWeightKey, "cosig: duplicate weight for key %s", w.Key)
		}
		weights[w.Key] = w.Weight
	}
	return NewCoSigRule(weights, r.ThresholdNum, r.ThresholdDen)
}

// MarshalSigningBytes deterministically encodes the payload for signing.
// Validators and weights are sorted by key so the same logical snapshot
// always produces the same bytes regardless of map iteration order.
func (v ValidatorData) MarshalSigningBytes() ([]byte, error) {
	var buf bytes.Buffer

	keys := make([]crypto.PubKey, 0, len(v.Validators))
	for k := range v.Validators {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })

	writeUint64(&buf, uint64(len(keys)))
	for _, k := range keys {
		entry := v.Validators[k]
		buf.Write(k[:])
		buf.Write(entry.ConsensusPubKey[:])
		writeInt64(&buf, entry.Power)
		writeInt64(&buf, entry.CommissionNum)
		writeInt64(&buf, entry.CommissionDen)
		buf.WriteString(entry.Memo)
	}

	weights := append([]WeightEntry(nil), v.Rule.Weights...)
	sort.Slice(weights, func(i, j int) bool { return bytes.Compare(weights[i].Key[:], weights[j].Key[:]) < 0 })
	writeUint64(&buf, uint64(len(weights)))
	for _, w := range weights {
		buf.Write(w.Key[:])
		writeInt64(&buf, w.Weight)
	}
	writeInt64(&buf, v.Rule.ThresholdNum)
	writeInt64(&buf, v.Rule.ThresholdDen)

	return buf.Bytes(), nil
}

// FraDistributionData is the payload of a supply-distribution CoSigOp: a
// plan mapping recipients to owed amounts.
type FraDistributionData struct {
	Recipients []DistributionEntry
}

// DistributionEntry pairs a recipient key with an owed amount, in atoms.
type DistributionEntry struct {
	Recipient crypto.PubKey
	Amount    int64
}

// MarshalSigningBytes deterministically encodes the distribution plan.
func (d FraDistributionData) MarshalSigningBytes() ([]byte, error) {
	var buf bytes.Buffer
	writeUint64(&buf, uint64(len(d.Recipients)))
	for _, e := range d.Recipients {
		buf.Write(e.Recipient[:])
		writeInt64(&buf, e.Amount)
	}
	return buf.Bytes(), nil
}

// GovernanceData is the payload of a governance-penalty CoSigOp: a validator
// to penalize and the slash fraction to apply.
type GovernanceData struct {
	Validator crypto.PubKey
	SlashNum  int64
	SlashDen  int64
	Reason    string
}

// MarshalSigningBytes deterministically encodes the governance action.
func (g GovernanceData) MarshalSigningBytes() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(g.Validator[:])
	writeInt64(&buf, g.SlashNum)
	writeInt64(&buf, g.SlashDen)
	buf.WriteString(g.Reason)
	return buf.Bytes(), nil
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeInt64(buf *bytes.Buffer, v int64) {
	writeUint64(buf, uint64(v))
}
