// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chaincfg defines the network-wide parameters used throughout the
// staking and ABCI core: the FRA supply constants, the unbonding and
// validator-set-update schedules, the co-signature threshold defaults, and
// the reward-rate tables from which the reward scheduler derives a block's
// APY band.
//
// It plays the same role for this module that chaincfg plays for exccd:
// a single place that pins down the magic numbers a node must agree on with
// its peers to stay on the same chain.
package chaincfg

// AtomsPerFRA is the number of smallest integer units ("atoms") in one FRA,
// the network's native token.
const AtomsPerFRA = 1_000_000

// Amount bounds and schedule constants referenced throughout the staking
// package (C2-C8 of the component design).
const (
	// MinDelegationAmount is the smallest bond, in atoms, that delegate may
	// accept.
	MinDelegationAmount = 1 * AtomsPerFRA

	// MaxDelegationAmount is the largest bond, in atoms, that delegate may
	// accept for a single delegation.
	MaxDelegationAmount = 5_000_000 * AtomsPerFRA

	// FRATotalAmount is the total FRA supply, in atoms, used as the
	// denominator when computing the total-bonded ratio for the reward
	// scheduler's band lookup.
	FRATotalAmount = 2_100_000_000 * AtomsPerFRA

	// UnbondBlockCnt is the number of blocks a delegation spends in the
	// UnBond state, counted from its end_height, before it becomes Free.
	UnbondBlockCnt = 3 * 24 * 3600 / 16 // ~3 days at a 16s block interval

	// ValidatorUpdateBlockItv is the cadence, in blocks, at which the ABCI
	// dispatcher emits a full validator-set snapshot to the consensus
	// engine.
	ValidatorUpdateBlockItv = 3

	// MaxValidatorSetSize caps the number of validators emitted with their
	// power in a single full validator-update response; validators beyond
	// the cap are emitted with power 0.
	MaxValidatorSetSize = 50

	// MaxTotalPower is the consensus engine's hard ceiling on the sum of all
	// validator voting power.
	MaxTotalPower = int64(1) << 60 // MaxInt64 / 8, rounded to a clean shift

	// MaxValidatorPowerShareNum/Den bound a single validator's share of
	// total voting power at 20%.
	MaxValidatorPowerShareNum = 1
	MaxValidatorPowerShareDen = 5

	// TxFeeMin is the minimum transaction fee, in atoms, charged by the
	// legacy ledger facade.
	TxFeeMin = 1_000_000

	// BlockIntervalSeconds is the nominal spacing between blocks used by the
	// reward scheduler's per-block rate conversion.
	BlockIntervalSeconds = 16

	// DefaultCoSigThresholdNum/Den is the default weighted-signature
	// threshold (2/3) applied to governance and validator-set-update
	// operations when a rule does not specify its own.
	DefaultCoSigThresholdNum = 2
	DefaultCoSigThresholdDen = 3

	// MaxCoSigWeightSum is the ceiling on the sum of weights in a CoSigRule,
	// a MaxInt64/8 bound on threshold denominators that leaves ample room
	// for Σweight*den to not overflow int64 in CoSigOp.Verify.
	MaxCoSigWeightSum = int64(1) << 60

	// ValidatorSnapshotRetention is how many past block heights of
	// ValidatorData snapshots the registry keeps before garbage collecting
	// older ones.
	ValidatorSnapshotRetention = 8
)

// RewardBand is one row of the delegation-reward-rate table keyed by the
// percentage of total supply currently bonded.
type RewardBand struct {
	// LowPct and HighPct bound the band as [LowPct, HighPct) in percent of
	// FRATotalAmount bonded. HighPct is exclusive except for the final row.
	LowPct, HighPct int64

	// AnnualReturnPctNum/Den is the annual return rate for the band,
	// expressed as a fraction to avoid floating point.
	AnnualReturnPctNum, AnnualReturnPctDen int64
}

// RewardBands is the delegation-reward-rate step table, ordered by
// increasing bonded ratio. The annual return strictly decreases band over
// band.
var RewardBands = []RewardBand{
	{0, 10, 20, 100},
	{10, 20, 17, 100},
	{20, 30, 14, 100},
	{30, 40, 11, 100},
	{40, 50, 8, 100},
	{50, 60, 5, 100},
	{60, 67, 2, 100},
	{67, 101, 1, 100},
}

// ProposerBonusBand is one row of the proposer-bonus table keyed by the
// ratio of the proposer's last-block vote power to total voting power.
type ProposerBonusBand struct {
	// LowPermille and HighPermille bound the band in per-mille (parts per
	// thousand) of vote_power/total_power, expressing the 66.6667% and
	// 83.3333% breakpoints without floating point.
	LowPermille, HighPermille int64

	// ExtraRatePctNum/Den is the additional annual-rate fraction added to
	// the proposer's own delegation reward for the block.
	ExtraRatePctNum, ExtraRatePctDen int64
}

// ProposerBonusBands is the proposer-bonus step table. The last row,
// [1000, 1001), matches only the exact 100% case, distinct from the band
// below it.
var ProposerBonusBands = []ProposerBonusBand{
	{0, 667, 0, 100},
	{667, 750, 1, 100},
	{750, 833, 2, 100},
	{833, 917, 3, 100},
	{917, 1000, 4, 100},
	{1000, 1001, 5, 100},
}

// GovernancePenalty maps an application-visible byzantine kind to the
// fraction of a validator's bonded principal that is slashed.
type GovernancePenalty struct {
	Num, Den int64
}

// GovernancePenaltyTable is the rule table consulted by
// staking.Engine.SystemGovernance.
var GovernancePenaltyTable = map[string]GovernancePenalty{
	"DUPLICATE_VOTE":      {5, 100},
	"LIGHT_CLIENT_ATTACK":  {10, 100},
	"OFF_LINE":            {1, 1000},
	"UNKNOWN":             {1, 100},
}

// Params groups the network-specific values a franode deployment must agree
// upon, analogous to exccd's chaincfg.Params. Only MainNet is defined in
// detail; TestNet and SimNet keep its amount bounds but shorten the
// unbonding period (SimNet also emits a validator update every block) so
// integration tests and local networks do not need to wait days for a
// delegation to unbond.
type Params struct {
	Name                string
	ChainID             string
	MinDelegationAmount int64
	MaxDelegationAmount int64
	UnbondBlockCnt      int64
	ValidatorUpdateItv  int64
}

// MainNetParams returns the production network parameters.
func MainNetParams() *Params {
	return &Params{
		Name:                "mainnet",
		ChainID:             "franode",
		MinDelegationAmount: MinDelegationAmount,
		MaxDelegationAmount: MaxDelegationAmount,
		UnbondBlockCnt:      UnbondBlockCnt,
		ValidatorUpdateItv:  ValidatorUpdateBlockItv,
	}
}

// TestNetParams returns parameters for the public test network. Bond limits
// stay the same as mainnet, but the unbond wait is shortened so testnet
// delegators are not locked out for days.
func TestNetParams() *Params {
	p := MainNetParams()
	p.Name = "testnet"
	p.ChainID = "franode-testnet"
	p.UnbondBlockCnt = 60
	return p
}

// SimNetParams returns parameters for a local, single-process simulation
// network used by integration tests.
func SimNetParams() *Params {
	p := MainNetParams()
	p.Name = "simnet"
	p.ChainID = "franode-simnet"
	p.UnbondBlockCnt = 8
	p.ValidatorUpdateItv = 1
	return p
}
