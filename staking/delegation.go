// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package staking

import (
	"math"
	"sync"

	"github.com/franode/abcid/chaincfg"
	"github.com/franode/abcid/crypto"
)

// DelegationState is the lifecycle state of a Delegation.
type DelegationState int

const (
	// Bond is the state of an active, earning delegation.
	Bond DelegationState = iota
	// UnBond is the state between undelegate() (or end_height) and the
	// unbond period elapsing.
	UnBond
	// Free is the state once the unbond period has elapsed; principal and
	// any accrued rewards are payable.
	Free
	// Paid is the terminal state once the CoinBase has paid out principal
	// and rewards.
	Paid
)

// String implements fmt.Stringer for logging and test failure messages.
func (s DelegationState) String() string {
	switch s {
	case Bond:
		return "Bond"
	case UnBond:
		return "UnBond"
	case Free:
		return "Free"
	case Paid:
		return "Paid"
	default:
		return "Unknown"
	}
}

// InfiniteEndHeight marks a delegation with no scheduled end, i.e. one that
// only ends via an explicit undelegate call.
const InfiniteEndHeight = math.MaxInt64

// Delegation is a record keyed by delegator application public key.
type Delegation struct {
	Owner          crypto.PubKey
	Validator      crypto.PubKey
	RewardRecipient crypto.PubKey
	Amount         int64
	StartHeight    int64
	EndHeight      int64
	State          DelegationState
	RewardAmount   int64
}

// DelegationRegistry maintains the address-to-Delegation map and the end-
// height buckets used for batch expiration.
type DelegationRegistry struct {
	mtx         sync.RWMutex
	byOwner     map[crypto.PubKey]*Delegation
	byEndHeight map[int64]map[crypto.PubKey]struct{}
}

// NewDelegationRegistry creates an empty registry.
func NewDelegationRegistry() *DelegationRegistry {
	return &DelegationRegistry{
		byOwner:     make(map[crypto.PubKey]*Delegation),
		byEndHeight: make(map[int64]map[crypto.PubKey]struct{}),
	}
}

// bucketAdd/bucketRemove move an owner key between end-height buckets.
// Callers must hold r.mtx for writes.
func (r *DelegationRegistry) bucketAdd(endHeight int64, owner crypto.PubKey) {
	b, ok := r.byEndHeight[endHeight]
	if !ok {
		b = make(map[crypto.PubKey]struct{})
		r.byEndHeight[endHeight] = b
	}
	b[owner] = struct{}{}
}

func (r *DelegationRegistry) bucketRemove(endHeight int64, owner crypto.PubKey) {
	b, ok := r.byEndHeight[endHeight]
	if !ok {
		return
	}
	delete(b, owner)
	if len(b) == 0 {
		delete(r.byEndHeight, endHeight)
	}
}

// Delegate creates or extends a bond from owner to validatorAddr. The amount
// must lie within [MinDelegationAmount, MaxDelegationAmount]; delegating to
// a CoinBase account is forbidden; delegating to any validator other than
// the owner itself requires that the validator already hold a Bond self-
// delegation (I2); and an owner already bonded must target the same
// validator as their existing bond (I3).
func (r *DelegationRegistry) Delegate(owner, validatorAddr crypto.PubKey, amount, startHeight int64, isSelf bool, isCoinBase func(crypto.PubKey) bool, hasSelfBond func(crypto.PubKey) bool) error {
	if amount < chaincfg.MinDelegationAmount || amount > chaincfg.MaxDelegationAmount {
		return ruleErrorf(ErrAmountOutOfRange,
			"delegation: amount %d out of range [%d, %d]", amount, chaincfg.MinDelegationAmount, chaincfg.MaxDelegationAmount)
	}
	if isCoinBase(validatorAddr) {
		return ruleError(ErrDelegateToCoinBase, "delegation: cannot delegate to a CoinBase account")
	}
	if !isSelf && !hasSelfBond(validatorAddr) {
		return ruleErrorf(ErrNoSelfDelegation,
			"delegation: validator %s has no active self-delegation", validatorAddr)
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()

	existing, ok := r.byOwner[owner]
	if ok {
		if existing.Validator != validatorAddr {
			return ruleErrorf(ErrDoubleBinding,
				"delegation: %s already bonded to %s, cannot bond to %s", owner, existing.Validator, validatorAddr)
		}
		existing.Amount += amount
		log.Infof("delegation: %s increased bond to %s by %d (total %d)", owner, validatorAddr, amount, existing.Amount)
		return nil
	}

	d := &Delegation{
		Owner:           owner,
		Validator:       validatorAddr,
		RewardRecipient: owner,
		Amount:          amount,
		StartHeight:     startHeight,
		EndHeight:       InfiniteEndHeight,
		State:           Bond,
	}
	r.byOwner[owner] = d
	log.Infof("delegation: %s bonded %d to %s", owner, amount, validatorAddr)
	return nil
}

// Undelegate transitions owner's delegation from Bond to UnBond, setting
// end_height to the current height. It is forbidden for validator self-
// delegations.
func (r *DelegationRegistry) Undelegate(owner crypto.PubKey, currentHeight int64, isSelf bool) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	d, ok := r.byOwner[owner]
	if !ok {
		return ruleErrorf(ErrDelegationNotFound, "delegation: %s has no delegation", owner)
	}
	if isSelf {
		return ruleError(ErrSelfUndelegateForbidden, "delegation: cannot undelegate a validator self-delegation")
	}
	if d.State != Bond {
		return ruleErrorf(ErrDelegationWrongState, "delegation: %s is in state %s, want Bond", owner, d.State)
	}

	oldEnd := d.EndHeight
	d.State = UnBond
	d.EndHeight = currentHeight
	r.bucketRemove(oldEnd, owner)
	r.bucketAdd(currentHeight, owner)

	log.Infof("delegation: %s undelegated %d from %s at height %d", owner, d.Amount, d.Validator, currentHeight)
	return nil
}

// Extend moves owner's end height forward to newEndHeight, which must exceed
// the current end height.
func (r *DelegationRegistry) Extend(owner crypto.PubKey, newEndHeight int64) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	d, ok := r.byOwner[owner]
	if !ok {
		return ruleErrorf(ErrDelegationNotFound, "delegation: %s has no delegation", owner)
	}
	if newEndHeight <= d.EndHeight {
		return ruleErrorf(ErrNonMonotonicExtend,
			"delegation: new end height %d does not exceed current %d", newEndHeight, d.EndHeight)
	}

	oldEnd := d.EndHeight
	r.bucketRemove(oldEnd, owner)
	d.EndHeight = newEndHeight
	r.bucketAdd(newEndHeight, owner)
	return nil
}

// Get returns a copy of owner's delegation, if any.
func (r *DelegationRegistry) Get(owner crypto.PubKey) (Delegation, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	d, ok := r.byOwner[owner]
	if !ok {
		return Delegation{}, false
	}
	return *d, true
}

// Process advances expired UnBond delegations to Free and removes Paid
// delegations from the end-height buckets, called once per block.
func (r *DelegationRegistry) Process(currentHeight, unbondBlockCnt int64) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	for owner, d := range r.byOwner {
		switch d.State {
		case UnBond:
			if d.EndHeight+unbondBlockCnt <= currentHeight {
				d.State = Free
				log.Infof("delegation: %s freed at height %d", owner, currentHeight)
			}
		case Paid:
			r.bucketRemove(d.EndHeight, owner)
		}
	}
}

// RemovePaid deletes delegations that reached Paid at least extraBlocks
// blocks ago, completing the lifecycle's final step. paidAtHeight tracks
// when each delegation transitioned to Paid.
func (r *DelegationRegistry) RemovePaid(currentHeight int64, paidAtHeight map[crypto.PubKey]int64, extraBlocks int64) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	for owner, d := range r.byOwner {
		if d.State != Paid {
			continue
		}
		paidHeight, ok := paidAtHeight[owner]
		if !ok {
			continue
		}
		if paidHeight+extraBlocks <= currentHeight {
			delete(r.byOwner, owner)
			r.bucketRemove(d.EndHeight, owner)
		}
	}
}

// RewardsView returns delegations in state Free with a positive accrued
// reward, as a materialized slice. Nothing in this module builds CoinBase
// payments from it.
func (r *DelegationRegistry) RewardsView() []Delegation {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	var out []Delegation
	for _, d := range r.byOwner {
		if d.State == Free && d.RewardAmount > 0 {
			out = append(out, *d)
		}
	}
	return out
}

// PrincipalView returns delegations in state Free with a positive bonded
// amount, as a materialized slice. Nothing in this module builds CoinBase
// payments from it.
func (r *DelegationRegistry) PrincipalView() []Delegation {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	var out []Delegation
	for _, d := range r.byOwner {
		if d.State == Free && d.Amount > 0 {
			out = append(out, *d)
		}
	}
	return out
}

// AllBond returns every delegation currently in state Bond, used by the
// reward scheduler.
func (r *DelegationRegistry) AllBond() []Delegation {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	var out []Delegation
	for _, d := range r.byOwner {
		if d.State == Bond {
			out = append(out, *d)
		}
	}
	return out
}

// BondByValidator returns every Bond delegation targeting validatorAddr.
func (r *DelegationRegistry) BondByValidator(validatorAddr crypto.PubKey) []Delegation {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	var out []Delegation
	for _, d := range r.byOwner {
		if d.State == Bond && d.Validator == validatorAddr {
			out = append(out, *d)
		}
	}
	return out
}

// TotalBonded sums the Amount of every delegation in a non-terminal,
// principal-bearing state (Bond, UnBond, Free), matching invariant I1's
// left-hand side.
func (r *DelegationRegistry) TotalBonded() int64 {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	var total int64
	for _, d := range r.byOwner {
		if d.State == Bond || d.State == UnBond || d.State == Free {
			total += d.Amount
		}
	}
	return total
}

// MarkPaid transitions owner's delegation to the terminal Paid state, the
// callback the CoinBase's CheckAndPay invokes once a Free delegation's
// principal and reward have been paid out.
func (r *DelegationRegistry) MarkPaid(owner crypto.PubKey) {
	r.mutate(owner, func(d *Delegation) {
		d.State = Paid
	})
}

// mutate applies fn to owner's delegation under the write lock, used by
// the reward scheduler and governance-penalty logic in engine.go which
// need read-modify-write access without re-deriving the full contract
// checks Delegate/Undelegate enforce.
func (r *DelegationRegistry) mutate(owner crypto.PubKey, fn func(*Delegation)) bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	d, ok := r.byOwner[owner]
	if !ok {
		return false
	}
	fn(d)
	return true
}
