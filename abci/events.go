// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package abci

import (
	"strconv"

	abcitypes "github.com/tendermint/tendermint/abci/types"

	"github.com/franode/abcid/crypto"
)

// attr builds one ABCI event attribute.
func attr(key, value string) abcitypes.EventAttribute {
	return abcitypes.EventAttribute{Key: []byte(key), Value: []byte(value), Index: true}
}

// delegateEvent reports a successful delegate operation.
func delegateEvent(owner, validator crypto.PubKey, amount int64) abcitypes.Event {
	return abcitypes.Event{
		Type: "staking.delegate",
		Attributes: []abcitypes.EventAttribute{
			attr("owner", owner.String()),
			attr("validator", validator.String()),
			attr("amount", amountString(amount)),
		},
	}
}

// undelegateEvent reports a successful undelegate() operation.
func undelegateEvent(owner crypto.PubKey, height int64) abcitypes.Event {
	return abcitypes.Event{
		Type: "staking.undelegate",
		Attributes: []abcitypes.EventAttribute{
			attr("owner", owner.String()),
			attr("height", amountString(height)),
		},
	}
}

// extendEvent reports a successful extend() operation.
func extendEvent(owner crypto.PubKey, newEndHeight int64) abcitypes.Event {
	return abcitypes.Event{
		Type: "staking.extend",
		Attributes: []abcitypes.EventAttribute{
			attr("owner", owner.String()),
			attr("new_end_height", amountString(newEndHeight)),
		},
	}
}

// claimEvent reports a successful claim() operation.
func claimEvent(owner crypto.PubKey, amount int64) abcitypes.Event {
	return abcitypes.Event{
		Type: "staking.claim",
		Attributes: []abcitypes.EventAttribute{
			attr("owner", owner.String()),
			attr("amount", amountString(amount)),
		},
	}
}

// governancePenaltyEvent reports a system_governance slashing action.
func governancePenaltyEvent(validator crypto.PubKey, kind string) abcitypes.Event {
	return abcitypes.Event{
		Type: "staking.governance_penalty",
		Attributes: []abcitypes.EventAttribute{
			attr("validator", validator.String()),
			attr("kind", kind),
		},
	}
}

// coinBasePaymentEvent reports a CoinBase payout clearing a plan entry or a
// Free delegation's principal/reward.
func coinBasePaymentEvent(recipient crypto.PubKey, amount int64) abcitypes.Event {
	return abcitypes.Event{
		Type: "staking.coinbase_payment",
		Attributes: []abcitypes.EventAttribute{
			attr("recipient", recipient.String()),
			attr("amount", amountString(amount)),
		},
	}
}

// validatorSetUpdateEvent reports a validator power change emitted to the
// consensus engine at end_block.
func validatorSetUpdateEvent(consensusKey crypto.PubKey, power int64) abcitypes.Event {
	return abcitypes.Event{
		Type: "staking.validator_update",
		Attributes: []abcitypes.EventAttribute{
			attr("consensus_key", consensusKey.String()),
			attr("power", amountString(power)),
		},
	}
}

func amountString(v int64) string {
	return strconv.FormatInt(v, 10)
}
