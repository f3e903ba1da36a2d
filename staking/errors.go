// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package staking

import "fmt"

// ErrorCode identifies a specific kind of error returned by the staking
// package, following the sentinel-code convention exccd/blockchain uses for
// its RuleError (ruleError(code, str)): a small closed enum plus a
// human-readable description, so callers can match on the code with
// errors.Is while logs keep the free-form string.
type ErrorCode int

const (
	// ErrUnknown is the default code for errors not otherwise classified.
	ErrUnknown ErrorCode = iota

	// ErrAmountOutOfRange signals a delegation amount outside
	// [MinDelegationAmount, MaxDelegationAmount].
	ErrAmountOutOfRange

	// ErrDelegateToCoinBase signals an attempt to delegate to a CoinBase
	// account.
	ErrDelegateToCoinBase

	// ErrNoSelfDelegation signals a delegation to a validator with no existing
	// self-delegation.
	ErrNoSelfDelegation

	// ErrDoubleBinding signals a delegator attempting to bond to a second,
	// different validator while an existing bond is active.
	ErrDoubleBinding

	// ErrSelfUndelegateForbidden signals an attempt to undelegate a validator's
	// own self-delegation.
	ErrSelfUndelegateForbidden

	// ErrDelegationNotFound signals an operation referencing a delegation
	// that does not exist.
	ErrDelegationNotFound

	// ErrDelegationWrongState signals an operation that requires the delegation
	// to be in a specific lifecycle state.
	ErrDelegationWrongState

	// ErrNonMonotonicExtend signals an extend call whose new end height does
	// not exceed the current one.
	ErrNonMonotonicExtend

	// ErrSnapshotExists signals set_at_height called for a height that already
	// has a snapshot.
	ErrSnapshotExists

	// ErrValidatorNotFound signals an operation referencing a validator key
	// absent from the effective snapshot.
	ErrValidatorNotFound

	// ErrPowerExceedsTotalCap signals that applying a power delta would push
	// total voting power above chaincfg.MaxTotalPower.
	ErrPowerExceedsTotalCap

	// ErrPowerExceedsShareCap signals that applying a power delta would give a
	// single validator more than 20% of total voting power.
	ErrPowerExceedsShareCap

	// ErrKeyUnknown signals a CoSigOp signer key absent from the CoSigRule.
	ErrKeyUnknown

	// ErrSigInvalid signals a CoSigOp signature that fails to verify against
	// its claimed signer key.
	ErrSigInvalid

	// ErrWeightInsufficient signals a CoSigOp whose signer weights do not reach
	// the rule's threshold.
	ErrWeightInsufficient

	// ErrDuplicateWeightKey signals a CoSigRule built with two entries for the
	// same key.
	ErrDuplicateWeightKey

	// ErrThresholdOutOfRange signals a CoSigRule threshold with numerator
	// greater than denominator, or a denominator above
	// chaincfg.MaxCoSigWeightSum.
	ErrThresholdOutOfRange

	// ErrDuplicateDistribution signals a FraDistribution operation whose hash
	// already appears in CoinBase history.
	ErrDuplicateDistribution

	// ErrDistributionOverflow signals a distribution plan addition that would
	// overflow its accumulator.
	ErrDistributionOverflow

	// ErrCoinBaseInputMixed signals a payment transaction whose inputs are not
	// all owned by the same CoinBase account.
	ErrCoinBaseInputMixed

	// ErrCoinBaseOutputInvalid signals a payment transaction output that is not
	// a valid recipient/amount under the CoinBase payment validator.
	ErrCoinBaseOutputInvalid

	// ErrClaimExceedsAccrued signals a claim call for more than the
	// delegation's accrued reward.
	ErrClaimExceedsAccrued

	// ErrRewardOverflow signals an arithmetic overflow while settling rewards;
	// treated as fatal rather than clamped.
	ErrRewardOverflow

	// ErrUnknownByzantineKind signals an evidence record whose Type does not
	// appear in chaincfg.GovernancePenaltyTable; logged and skipped, never
	// fatal.
	ErrUnknownByzantineKind
)

// errorCodeStrings maps each ErrorCode to its stringer output, in the style
// of exccjson's ErrorCode.String (see exccjson/error_test.go).
var errorCodeStrings = map[ErrorCode]string{
	ErrUnknown:                 "ErrUnknown",
	ErrAmountOutOfRange:        "ErrAmountOutOfRange",
	ErrDelegateToCoinBase:      "ErrDelegateToCoinBase",
	ErrNoSelfDelegation:        "ErrNoSelfDelegation",
	ErrDoubleBinding:           "ErrDoubleBinding",
	ErrSelfUndelegateForbidden: "ErrSelfUndelegateForbidden",
	ErrDelegationNotFound:      "ErrDelegationNotFound",
	ErrDelegationWrongState:    "ErrDelegationWrongState",
	ErrNonMonotonicExtend:      "ErrNonMonotonicExtend",
	ErrSnapshotExists:          "ErrSnapshotExists",
	ErrValidatorNotFound:       "ErrValidatorNotFound",
	ErrPowerExceedsTotalCap:    "ErrPowerExceedsTotalCap",
	ErrPowerExceedsShareCap:    "ErrPowerExceedsShareCap",
	ErrKeyUnknown:              "ErrKeyUnknown",
	ErrSigInvalid:              "ErrSigInvalid",
	ErrWeightInsufficient:      "ErrWeightInsufficient",
	ErrDuplicateWeightKey:      "ErrDuplicateWeightKey",
	ErrThresholdOutOfRange:     "ErrThresholdOutOfRange",
	ErrDuplicateDistribution:   "ErrDuplicateDistribution",
	ErrDistributionOverflow:    "ErrDistributionOverflow",
	ErrCoinBaseInputMixed:      "ErrCoinBaseInputMixed",
	ErrCoinBaseOutputInvalid:   "ErrCoinBaseOutputInvalid",
	ErrClaimExceedsAccrued:     "ErrClaimExceedsAccrued",
	ErrRewardOverflow:          "ErrRewardOverflow",
	ErrUnknownByzantineKind:    "ErrUnknownByzantineKind",
}

// String returns the stringer name for the error code, or a generic
// "Unknown ErrorCode" message for an out-of-range value.
func (e ErrorCode) String() string {
	if s, ok := errorCodeStrings[e]; ok {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// RuleError identifies an invalid-operation or co-signature failure, as
// distinguished from a Go error returned by an I/O boundary. It is the type
// exposed by every staking package operation that can reject its input.
type RuleError struct {
	ErrorCode   ErrorCode
	Description string
}

// Error implements the error interface.
func (e RuleError) Error() string {
	return e.Description
}

// Is reports whether target is a RuleError with the same ErrorCode,
// allowing callers to write errors.Is(err, staking.RuleError{ErrorCode:
// staking.ErrDoubleBinding}).
func (e RuleError) Is(target error) bool {
	t, ok := target.(RuleError)
	if !ok {
		return false
	}
	return e.ErrorCode == t.ErrorCode
}

// ruleError creates a RuleError given a set of arguments.
func ruleError(c ErrorCode, desc string) RuleError {
	return RuleError{ErrorCode: c, Description: desc}
}

// ruleErrorf is ruleError with fmt.Sprintf-style formatting.
func ruleErrorf(c ErrorCode, format string, args ...interface{}) RuleError {
	return RuleError{ErrorCode: c, Description: fmt.Sprintf(format, args...)}
}
