// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package abci

import (
	abcitypes "github.com/tendermint/tendermint/abci/types"
	tmprotocrypto "github.com/tendermint/tendermint/proto/tendermint/crypto"

	"github.com/franode/abcid/chaincfg"
	"github.com/franode/abcid/crypto"
	"github.com/franode/abcid/staking"
)

// markSignatures records, for every vote in info, whether the corresponding
// validator signed the previous block.
func markSignatures(registry *staking.ValidatorRegistry, height int64, info abcitypes.LastCommitInfo) {
	for _, vote := range info.Votes {
		addr, err := crypto.ConsAddressFromBytes(vote.Validator.Address)
		if err != nil {
			log.Warnf("abci: malformed validator address in LastCommitInfo: %v", err)
			continue
		}
		appKey, ok := registry.AppKeyForConsAddress(addr)
		if !ok {
			continue
		}
		registry.MarkSigned(height, appKey, vote.SignedLastBlock)
	}
}

// proposerVotePower returns (summed power of the validators that signed the
// last block, total power of all listed validators) from info, used by
// Engine.SetLastBlockRewards's proposer-bonus lookup.
func proposerVotePower(info abcitypes.LastCommitInfo) (votePower, totalPower int64) {
	for _, vote := range info.Votes {
		totalPower += vote.Validator.Power
		if vote.SignedLastBlock {
			votePower += vote.Validator.Power
		}
	}
	return votePower, totalPower
}

// pubKeyToABCI converts a staking consensus public key into the protobuf
// shape ABCI's ValidatorUpdate carries.
func pubKeyToABCI(pub crypto.PubKey) tmprotocrypto.PublicKey {
	return tmprotocrypto.PublicKey{
		Sum: &tmprotocrypto.PublicKey_Ed25519{Ed25519: append([]byte(nil), pub[:]...)},
	}
}

// validatorUpdatesForBlock builds the ABCI ValidatorUpdate slice for
// end_block: power deltas from ApplyCurrent (including the power-zero deltas
// that remove a retired validator) plus, on the configured cadence, the full
// set ordered by power: the top chaincfg.MaxValidatorSetSize keep their
// power and every validator beyond the cap is sent with power 0.
func validatorUpdatesForBlock(registry *staking.ValidatorRegistry, height int64, updateItv int64) []abcitypes.ValidatorUpdate {
	deltas := registry.ApplyCurrent(height)

	var updates []abcitypes.ValidatorUpdate
	for _, d := range deltas {
		updates = append(updates, abcitypes.ValidatorUpdate{
			PubKey: pubKeyToABCI(d.ConsensusPubKey),
			Power:  d.Power,
		})
	}

	if updateItv <= 0 {
		updateItv = chaincfg.ValidatorUpdateBlockItv
	}
	if height%updateItv != 0 {
		return updates
	}

	all := registry.TopByPower(height, 0)
	for i, v := range all {
		power := v.Power
		if i >= chaincfg.MaxValidatorSetSize {
			power = 0
		}
		updates = append(updates, abcitypes.ValidatorUpdate{
			PubKey: pubKeyToABCI(v.ConsensusPubKey),
			Power:  power,
		})
	}
	return updates
}

// byzantineKindString maps ABCI's evidence type enum to the string keys
// chaincfg.GovernancePenaltyTable is keyed by.
func byzantineKindString(t abcitypes.EvidenceType) string {
	switch t {
	case abcitypes.EvidenceType_DUPLICATE_VOTE:
		return "DUPLICATE_VOTE"
	case abcitypes.EvidenceType_LIGHT_CLIENT_ATTACK:
		return "LIGHT_CLIENT_ATTACK"
	default:
		return "UNKNOWN"
	}
}
