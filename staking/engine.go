// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package staking

import (
	"github.com/franode/abcid/chaincfg"
	"github.com/franode/abcid/crypto"
	"github.com/franode/abcid/famount"
)

// PaidRetentionBlocks is how many blocks a Paid delegation is kept in the
// registry before RemovePaid erases it.
const PaidRetentionBlocks = 4

// Engine composes the validator registry, delegation registry, and CoinBase
// into the single façade the ABCI dispatcher drives each block. It owns no
// locks of its own: each composed registry already serializes its own state,
// and the dispatcher is responsible for the cross-registry lock ordering.
type Engine struct {
	Validators  *ValidatorRegistry
	Delegations *DelegationRegistry
	CoinBase    *CoinBase
	VerifyCache *VerifyCache

	unbondBlockCnt      int64
	paidRetentionBlocks int64
}

// NewEngine builds an Engine for the given network parameters.
func NewEngine(params *chaincfg.Params) (*Engine, error) {
	cache, err := NewVerifyCache(4096)
	if err != nil {
		return nil, err
	}
	return &Engine{
		Validators:          NewValidatorRegistry(),
		Delegations:         NewDelegationRegistry(),
		CoinBase:            NewCoinBase(),
		VerifyCache:         cache,
		unbondBlockCnt:      params.UnbondBlockCnt,
		paidRetentionBlocks: PaidRetentionBlocks,
	}, nil
}

// hasSelfBond reports whether validatorAddr holds an active Bond self-
// delegation, the precondition delegate checks for any delegator bonding to
// a validator other than themselves.
func (e *Engine) hasSelfBond(validatorAddr crypto.PubKey) bool {
	d, ok := e.Delegations.Get(validatorAddr)
	return ok && d.Validator == validatorAddr && d.State == Bond
}

// Delegate bonds amount from owner to validatorAddr at the given height.
func (e *Engine) Delegate(owner, validatorAddr crypto.PubKey, amount, height int64) error {
	isSelf := owner == validatorAddr
	return e.Delegations.Delegate(owner, validatorAddr, amount, height, isSelf, e.CoinBase.IsCoinBase, e.hasSelfBond)
}

// Undelegate begins unbonding owner's delegation at the given height.
func (e *Engine) Undelegate(owner crypto.PubKey, height int64) error {
	d, ok := e.Delegations.Get(owner)
	if !ok {
		return ruleErrorf(ErrDelegationNotFound, "engine: %s has no delegation", owner)
	}
	isSelf := d.Validator == owner
	return e.Delegations.Undelegate(owner, height, isSelf)
}

// Extend pushes owner's delegation end height forward.
func (e *Engine) Extend(owner crypto.PubKey, newEndHeight int64) error {
	return e.Delegations.Extend(owner, newEndHeight)
}

// Claim withdraws amount from owner's accrued reward without waiting for
// the delegation to unbond: it adds amount to owner's entry in the CoinBase
// distribution plan and debits the registry's bookkeeping by the same
// amount. A claim that would overflow the plan entry is rejected before
// either side changes.
func (e *Engine) Claim(owner crypto.PubKey, amount int64) error {
	d, ok := e.Delegations.Get(owner)
	if !ok {
		return ruleErrorf(ErrDelegationNotFound, "engine: %s has no delegation", owner)
	}
	if amount <= 0 || amount > d.RewardAmount {
		return ruleErrorf(ErrClaimExceedsAccrued,
			"engine: claim %d exceeds accrued reward %d for %s", amount, d.RewardAmount, owner)
	}
	cb := e.CoinBase
	cb.mtx.Lock()
	sum, ok := famount.Amount(cb.plan[owner]).SaturatingAdd(famount.Amount(amount))
	if !ok {
		cb.mtx.Unlock()
		return ruleErrorf(ErrDistributionOverflow,
			"engine: claim %d overflows the distribution plan for %s", amount, owner)
	}
	cb.plan[owner] = int64(sum)
	cb.mtx.Unlock()
	e.Delegations.mutate(owner, func(d *Delegation) {
		d.RewardAmount -= amount
	})
	return nil
}

// SetLastBlockRewards settles one block's delegation rewards across every
// Bond delegation, and adds the proposer bonus to delegations bonded to the
// block's proposer. It is fatal only on arithmetic overflow; an empty bonded
// set is not an error.
func (e *Engine) SetLastBlockRewards(proposerAppKey crypto.PubKey, votePower, totalPower int64) error {
	totalBonded := e.Delegations.TotalBonded()
	rateNum, rateDen := RewardRateFor(totalBonded)
	bonusNum, bonusDen := ProposerBonusFor(votePower, totalPower)

	for _, d := range e.Delegations.AllBond() {
		base := d.Amount + d.RewardAmount
		reward, err := PerBlockReward(base, rateNum, rateDen)
		if err != nil {
			return err
		}
		if d.Validator == proposerAppKey {
			bonus, err := PerBlockReward(base, bonusNum, bonusDen)
			if err != nil {
				return err
			}
			reward += bonus
		}
		if reward == 0 {
			continue
		}
		owner := d.Owner
		e.Delegations.mutate(owner, func(d *Delegation) {
			d.RewardAmount += reward
		})
	}
	return nil
}

// governancePowerSlashNum/Den is the fixed fraction of voting power a
// governance penalty removes, independent of the per-kind [num,den] table:
// every recognized byzantine kind leaves a validator at one-third of its
// prior power.
const (
	governancePowerSlashNum = 2
	governancePowerSlashDen = 3
)

// externalDelegationSlashDenMultiplier scales down the per-kind penalty
// fraction for delegations that are not the validator's own self-bond: an
// external delegator's power was never attested to by the byzantine
// evidence, so its principal is slashed at one-tenth the self-delegation
// rate.
const externalDelegationSlashDenMultiplier = 10

// SystemGovernance applies a byzantine-evidence penalty to validatorAddr:
// its voting power is reduced by a fixed two-thirds, and the bonded
// principal of every delegation targeting it is reduced by the penalty
// fraction chaincfg.GovernancePenaltyTable maps kind to — at one-tenth that
// fraction for delegations other than the validator's own self-bond. An
// unrecognized kind is logged and skipped rather than treated as fatal.
func (e *Engine) SystemGovernance(height int64, validatorAddr crypto.PubKey, kind string) error {
	penalty, ok := chaincfg.GovernancePenaltyTable[kind]
	if !ok {
		log.Warnf("engine: unrecognized byzantine kind %q for %s, skipping penalty", kind, validatorAddr)
		return nil
	}

	v, ok := e.Validators.Validator(height, validatorAddr)
	if !ok {
		return ruleErrorf(ErrValidatorNotFound, "engine: %s not found for governance penalty", validatorAddr)
	}
	powerSlash := v.Power * governancePowerSlashNum / governancePowerSlashDen
	if powerSlash > 0 {
		if err := e.Validators.ChangePower(height, validatorAddr, -powerSlash); err != nil {
			return err
		}
	}

	for _, d := range e.Delegations.BondByValidator(validatorAddr) {
		num, den := penalty.Num, penalty.Den
		if d.Owner != validatorAddr {
			den *= externalDelegationSlashDenMultiplier
		}
		slash := d.Amount * num / den
		if slash <= 0 {
			continue
		}
		owner := d.Owner
		e.Delegations.mutate(owner, func(d *Delegation) {
			d.Amount -= slash
		})
	}

	log.Infof("engine: applied power slash %d/%d and principal penalty %d/%d to %s for %s at height %d",
		governancePowerSlashNum, governancePowerSlashDen, penalty.Num, penalty.Den, validatorAddr, kind, height)
	return nil
}

// Process performs the per-block housekeeping that falls outside of explicit
// user operations: advancing expired UnBond delegations to Free, and erasing
// delegations that have sat in Paid for at least paidRetentionBlocks
// blocks.
func (e *Engine) Process(height int64) {
	e.Delegations.Process(height, e.unbondBlockCnt)
	e.Delegations.RemovePaid(height, e.CoinBase.PaidAtHeight(), e.paidRetentionBlocks)
}

// Summary returns the engine's aggregate state at height, for the
// read-only query RPC surface.
func (e *Engine) Summary(height int64) StakingSummary {
	rateNum, rateDen := RewardRateFor(e.Delegations.TotalBonded())
	return StakingSummary{
		Height:           height,
		TotalBonded:      e.Delegations.TotalBonded(),
		TotalVotingPower: e.Validators.TotalPower(height),
		RewardRateNum:    rateNum,
		RewardRateDen:    rateDen,
	}
}
