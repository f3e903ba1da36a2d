// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package staking

import (
	"sort"
	"sync"

	"github.com/franode/abcid/chaincfg"
	"github.com/franode/abcid/crypto"
)

// Validator is a record keyed by an application public key.
type Validator struct {
	AppKey          crypto.PubKey
	ConsensusPubKey crypto.PubKey
	Power           int64
	Memo            string
	CommissionNum   int64
	CommissionDen   int64
	// SignedLastBlock marks whether this validator signed the previous block,
	// as reported in LastCommitInfo.
	SignedLastBlock bool
}

// snapshot is the registry's internal representation of a ValidatorData
// effective at a given height: the validator set plus the co-signature
// rule governing the *next* update.
type snapshot struct {
	height     int64
	validators map[crypto.PubKey]*Validator
	rule       *CoSigRule
}

// ValidatorRegistry stores an ordered sequence of snapshots keyed by block
// height and the address<->application-key mapping used to resolve
// consensus-visible records back to staking state.
type ValidatorRegistry struct {
	mtx          sync.RWMutex
	heights      []int64 // sorted ascending
	snapshots    map[int64]*snapshot
	addrToAppKey map[crypto.ConsAddress]crypto.PubKey
}

// NewValidatorRegistry creates an empty registry.
func NewValidatorRegistry() *ValidatorRegistry {
	return &ValidatorRegistry{
		snapshots:    make(map[int64]*snapshot),
		addrToAppKey: make(map[crypto.ConsAddress]crypto.PubKey),
	}
}

// SetAtHeight inserts a new snapshot at height h, built from data. It fails
// if a snapshot already exists at exactly h.
func (r *ValidatorRegistry) SetAtHeight(h int64, data ValidatorData) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if _, exists := r.snapshots[h]; exists {
		return ruleErrorf(ErrSnapshotExists, "validator: snapshot already exists at height %d", h)
	}

	rule, err := data.Rule.ToCoSigRule()
	if err != nil {
		return err
	}

	vs := make(map[crypto.PubKey]*Validator, len(data.Validators))
	for appKey, entry := range data.Validators {
		v := &Validator{
			AppKey:          appKey,
			ConsensusPubKey: entry.ConsensusPubKey,
			Power:           entry.Power,
			Memo:            entry.Memo,
			CommissionNum:   entry.CommissionNum,
			CommissionDen:   entry.CommissionDen,
		}
		vs[appKey] = v
		r.addrToAppKey[crypto.DeriveConsAddress(entry.ConsensusPubKey)] = appKey
	}

	r.snapshots[h] = &snapshot{height: h, validators: vs, rule: rule}
	r.heights = append(r.heights, h)
	sort.Slice(r.heights, func(i, j int) bool { return r.heights[i] < r.heights[j] })

	log.Infof("validator: recorded snapshot at height %d with %d validators", h, len(vs))
	return nil
}

// effectiveIndex returns the index into r.heights of the greatest height
// <= h, or -1 if none exists. Callers must hold r.mtx.
func (r *ValidatorRegistry) effectiveIndex(h int64) int {
	idx := -1
	for i, height := range r.heights {
		if height <= h {
			idx = i
		} else {
			break
		}
	}
	return idx
}

// effectiveAt returns the snapshot with the greatest height <= h, or nil if
// no snapshot exists at or before h.
func (r *ValidatorRegistry) effectiveAt(h int64) *snapshot {
	idx := r.effectiveIndex(h)
	if idx < 0 {
		return nil
	}
	return r.snapshots[r.heights[idx]]
}

// Validators returns a copy of the validator map effective at height h.
func (r *ValidatorRegistry) Validators(h int64) map[crypto.PubKey]Validator {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	snap := r.effectiveAt(h)
	if snap == nil {
		return nil
	}
	out := make(map[crypto.PubKey]Validator, len(snap.validators))
	for k, v := range snap.validators {
		out[k] = *v
	}
	return out
}

// Rule returns the co-signature rule effective at height h.
func (r *ValidatorRegistry) Rule(h int64) *CoSigRule {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	snap := r.effectiveAt(h)
	if snap == nil {
		return nil
	}
	return snap.rule
}

// Validator returns the validator record for appKey effective at height h.
func (r *ValidatorRegistry) Validator(h int64, appKey crypto.PubKey) (Validator, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	snap := r.effectiveAt(h)
	if snap == nil {
		return Validator{}, false
	}
	v, ok := snap.validators[appKey]
	if !ok {
		return Validator{}, false
	}
	return *v, true
}

// AppKeyForConsAddress resolves a consensus address (as seen in ABCI
// headers, evidence, and LastCommitInfo) back to the application public key
// used to key the Validator and Delegation registries.
func (r *ValidatorRegistry) AppKeyForConsAddress(addr crypto.ConsAddress) (crypto.PubKey, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	k, ok := r.addrToAppKey[addr]
	return k, ok
}

// TotalPower returns the sum of voting power across the snapshot effective
// at height h.
func (r *ValidatorRegistry) TotalPower(h int64) int64 {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	snap := r.effectiveAt(h)
	if snap == nil {
		return 0
	}
	var total int64
	for _, v := range snap.validators {
		total += v.Power
	}
	return total
}

// ChangePower adjusts a validator's voting power by delta at height h,
// clamping the result to >= 0, and rejects the change if it would push total
// power above chaincfg.MaxTotalPower or the validator's own share above 20%.
func (r *ValidatorRegistry) ChangePower(h int64, appKey crypto.PubKey, delta int64) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	snap := r.effectiveAt(h)
	if snap == nil {
		return ruleErrorf(ErrValidatorNotFound, "validator: no snapshot effective at height %d", h)
	}
	v, ok := snap.validators[appKey]
	if !ok {
		return ruleErrorf(ErrValidatorNotFound, "validator: %s not found", appKey)
	}

	newPower := v.Power + delta
	if newPower < 0 {
		newPower = 0
	}

	var totalOthers int64
	for k, other := range snap.validators {
		if k == appKey {
			continue
		}
		totalOthers += other.Power
	}
	newTotal := totalOthers + newPower

	if newTotal > chaincfg.MaxTotalPower {
		return ruleErrorf(ErrPowerExceedsTotalCap,
			"validator: total power %d would exceed cap %d", newTotal, chaincfg.MaxTotalPower)
	}
	if newPower*chaincfg.MaxValidatorPowerShareDen > chaincfg.MaxValidatorPowerShareNum*newTotal && newTotal > 0 {
		return ruleErrorf(ErrPowerExceedsShareCap,
			"validator: %s power %d would exceed %d/%d of total %d",
			appKey, newPower, chaincfg.MaxValidatorPowerShareNum, chaincfg.MaxValidatorPowerShareDen, newTotal)
	}

	v.Power = newPower
	return nil
}

// MarkSigned records whether appKey's validator signed the previous block
// in its SignedLastBlock flag. The flag is only recorded: neither
// Engine.SetLastBlockRewards nor Engine.SystemGovernance reads it, and no
// offline punishment is derived from it.
func (r *ValidatorRegistry) MarkSigned(h int64, appKey crypto.PubKey, signed bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	snap := r.effectiveAt(h)
	if snap == nil {
		return
	}
	if v, ok := snap.validators[appKey]; ok {
		v.SignedLastBlock = signed
	}
}

// ValidatorDelta is an ABCI-facing power update: a consensus public key and
// its new voting power. Power 0 deletes the validator.
type ValidatorDelta struct {
	ConsensusPubKey crypto.PubKey
	Power           int64
}

// ApplyCurrent inherits voting power from the previous snapshot into a
// newly-inserted one for keys common to both, emits a power-zero delta for
// keys present only in the previous snapshot, and garbage-collects snapshots
// older than chaincfg.ValidatorSnapshotRetention heights.
func (r *ValidatorRegistry) ApplyCurrent(h int64) []ValidatorDelta {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	cur, ok := r.snapshots[h]
	if !ok {
		return nil
	}

	prevIdx := r.effectiveIndex(h - 1)
	var deltas []ValidatorDelta
	if prevIdx >= 0 {
		prev := r.snapshots[r.heights[prevIdx]]
		for appKey, prevV := range prev.validators {
			if curV, stillPresent := cur.validators[appKey]; stillPresent {
				curV.Power = prevV.Power
			} else {
				deltas = append(deltas, ValidatorDelta{ConsensusPubKey: prevV.ConsensusPubKey, Power: 0})
			}
		}
	}

	r.gcOlderThan(h - chaincfg.ValidatorSnapshotRetention)
	return deltas
}

// gcOlderThan drops snapshots strictly older than minHeight. Callers must
// hold r.mtx for writes.
func (r *ValidatorRegistry) gcOlderThan(minHeight int64) {
	kept := r.heights[:0:0]
	for _, h := range r.heights {
		if h < minHeight {
			delete(r.snapshots, h)
			continue
		}
		kept = append(kept, h)
	}
	r.heights = kept
}

// TopByPower returns up to limit validators (all of them when limit <= 0)
// from the snapshot effective at h, sorted by descending power, for use by
// the ABCI dispatcher's validator-set-update emission.
func (r *ValidatorRegistry) TopByPower(h int64, limit int) []Validator {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	snap := r.effectiveAt(h)
	if snap == nil {
		return nil
	}

	all := make([]Validator, 0, len(snap.validators))
	for _, v := range snap.validators {
		all = append(all, *v)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Power != all[j].Power {
			return all[i].Power > all[j].Power
		}
		return all[i].AppKey.String() < all[j].AppKey.String()
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}
