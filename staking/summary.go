// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package staking

// StakingSummary is a point-in-time snapshot of the staking engine's
// aggregate state, returned by Engine.Summary for the query RPC surface.
type StakingSummary struct {
	Height           int64
	TotalBonded      int64
	TotalVotingPower int64
	RewardRateNum    int64
	RewardRateDen    int64
}
