// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package abci wires the staking engine and the two parallel state machines
// (the legacy UTXO ledger in ledgerstate, the account/EVM module in
// accountstate) behind the real Tendermint ABCI Application interface. It
// implements all six callbacks explicitly: info, check_tx, begin_block,
// deliver_tx, end_block, commit.
package abci

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"

	abcitypes "github.com/tendermint/tendermint/abci/types"

	"github.com/franode/abcid/accountstate"
	"github.com/franode/abcid/chaincfg"
	"github.com/franode/abcid/crypto"
	"github.com/franode/abcid/ledgerstate"
	"github.com/franode/abcid/pulsecache"
	"github.com/franode/abcid/staking"
)

// txKind identifies the operation an envelope carries. The wire format is a
// JSON envelope rather than a binary/protobuf one: the ledger/account
// modules each own their exact transaction encoding, and the staking core's
// own operations (delegate, undelegate, governance, etc.) have no
// externally-mandated binary layout, so JSON keeps this boundary legible
// without inventing an unneeded schema. Tx bytes submitted over the ABCI
// socket are this envelope's JSON encoding.
type txKind string

const (
	txDelegate           txKind = "delegate"
	txUndelegate         txKind = "undelegate"
	txExtend             txKind = "extend"
	txClaim              txKind = "claim"
	txFraDistribution    txKind = "fra_distribution"
	txValidatorUpdate    txKind = "validator_update"
	txLedgerTransfer     txKind = "ledger_transfer"
	txAccount            txKind = "account_tx"
)

// envelope is the decoded shape of a submitted transaction. Only the
// fields relevant to Kind are populated; unused fields are left zero.
type envelope struct {
	Kind txKind `json:"kind"`

	// delegate / undelegate / extend / claim
	Owner         crypto.PubKey `json:"owner,omitempty"`
	Validator     crypto.PubKey `json:"validator,omitempty"`
	Amount        int64         `json:"amount,omitempty"`
	Height        int64         `json:"height,omitempty"`
	NewEndHeight  int64         `json:"new_end_height,omitempty"`

	// fra_distribution / validator_update (co-signed operations)
	FraDistribution *staking.CoSigOp[staking.FraDistributionData] `json:"fra_distribution,omitempty"`
	ValidatorUpdate *staking.CoSigOp[staking.ValidatorData]        `json:"validator_update_op,omitempty"`

	// ledger_transfer
	LedgerInputs    []staking.TxInput    `json:"ledger_inputs,omitempty"`
	LedgerInputRefs []ledgerstate.Output `json:"ledger_input_refs,omitempty"`
	LedgerOutputs   []staking.TxOutput   `json:"ledger_outputs,omitempty"`

	// account_tx
	Account *accountstate.UnsignedTx `json:"account_tx,omitempty"`
}

// App implements abcitypes.Application, composing the legacy ledger, the
// account/EVM module, and the staking engine behind Tendermint's six ABCI
// callbacks. It embeds BaseApplication for the snapshot-sync methods
// (ListSnapshots/OfferSnapshot/...), which this module does not implement.
type App struct {
	abcitypes.BaseApplication

	mtx sync.Mutex

	Ledger   *ledgerstate.Ledger
	Accounts *accountstate.State
	Engine   *staking.Engine
	Pulse    *pulsecache.Store
	Params   *chaincfg.Params

	height             int64
	pulse              uint64
	appHash            [32]byte
	blockProposerAppKey crypto.PubKey
	blockVotePower      int64
	blockTotalPower     int64
}

// NewApp constructs an App, loading the last committed height and pulse
// counter from persistence.
func NewApp(ledger *ledgerstate.Ledger, accounts *accountstate.State, engine *staking.Engine, pulse *pulsecache.Store, params *chaincfg.Params) (*App, error) {
	h, err := pulse.LoadHeight()
	if err != nil {
		return nil, err
	}
	p, err := pulse.LoadPulse()
	if err != nil {
		return nil, err
	}
	return &App{
		Ledger:   ledger,
		Accounts: accounts,
		Engine:   engine,
		Pulse:    pulse,
		Params:   params,
		height:   h,
		pulse:    p,
	}, nil
}

// Height reports the last committed block height, letting callers outside
// the ABCI socket connection (the query surface in rpcserver) read the
// node's current height without holding a reference to Tendermint itself.
func (a *App) Height() int64 {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return a.height
}

// Info reports the application's last committed state to Tendermint at
// handshake time.
func (a *App) Info(req abcitypes.RequestInfo) abcitypes.ResponseInfo {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return abcitypes.ResponseInfo{
		Data:             "abcid",
		Version:          req.Version,
		AppVersion:       1,
		LastBlockHeight:  a.height,
		LastBlockAppHash: append([]byte(nil), a.appHash[:]...),
	}
}

// checkEnvelope is the shared validation CheckTx and DeliverTx both run:
// tx must decode, and any co-signed operation must verify against the
// rule effective at the current height.
func (a *App) checkEnvelope(tx []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(tx, &env); err != nil {
		return envelope{}, fmt.Errorf("abci: malformed tx: %w", err)
	}

	switch env.Kind {
	case txFraDistribution:
		if env.FraDistribution == nil {
			return envelope{}, fmt.Errorf("abci: fra_distribution tx missing payload")
		}
		rule := a.Engine.Validators.Rule(a.height)
		if rule == nil {
			return envelope{}, fmt.Errorf("abci: no co-signature rule effective at height %d", a.height)
		}
		if err := env.FraDistribution.Verify(rule); err != nil {
			return envelope{}, fmt.Errorf("abci: fra_distribution co-signature verification failed: %w", err)
		}
	case txValidatorUpdate:
		if env.ValidatorUpdate == nil {
			return envelope{}, fmt.Errorf("abci: validator_update tx missing payload")
		}
		rule := a.Engine.Validators.Rule(a.height)
		if rule == nil {
			return envelope{}, fmt.Errorf("abci: no co-signature rule effective at height %d", a.height)
		}
		if err := env.ValidatorUpdate.Verify(rule); err != nil {
			return envelope{}, fmt.Errorf("abci: validator_update co-signature verification failed: %w", err)
		}
	case txAccount:
		if env.Account == nil {
			return envelope{}, fmt.Errorf("abci: account_tx missing payload")
		}
		if err := a.Accounts.ValidateUnsigned(*env.Account); err != nil {
			return envelope{}, err
		}
	case txDelegate, txUndelegate, txExtend, txClaim, txLedgerTransfer:
		// Full validation happens in deliver_tx, which has exclusive
		// access to the mutating registries; check_tx only confirms the
		// envelope decodes and, for co-signed kinds above, that the
		// signature set is valid.
	default:
		return envelope{}, fmt.Errorf("abci: unknown tx kind %q", env.Kind)
	}

	return env, nil
}

// CheckTx validates a transaction for mempool admission without mutating any
// module state.
func (a *App) CheckTx(req abcitypes.RequestCheckTx) abcitypes.ResponseCheckTx {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	if _, err := a.checkEnvelope(req.Tx); err != nil {
		return abcitypes.ResponseCheckTx{Code: 1, Log: err.Error()}
	}
	return abcitypes.ResponseCheckTx{Code: 0}
}

// BeginBlock opens both state machines' per-block staging areas, records the
// proposer and vote-power totals from LastCommitInfo for the end_block
// reward settlement, marks each validator's signing status, and applies a
// governance penalty for every byzantine evidence record.
func (a *App) BeginBlock(req abcitypes.RequestBeginBlock) abcitypes.ResponseBeginBlock {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	a.height = req.Header.Height
	a.pulse++

	a.Ledger.OpenBlock(a.height)
	a.Accounts.OpenBlock()

	markSignatures(a.Engine.Validators, a.height, req.LastCommitInfo)
	a.blockVotePower, a.blockTotalPower = proposerVotePower(req.LastCommitInfo)

	proposerAddr, err := crypto.ConsAddressFromBytes(req.Header.ProposerAddress)
	if err == nil {
		if appKey, ok := a.Engine.Validators.AppKeyForConsAddress(proposerAddr); ok {
			a.blockProposerAppKey = appKey
		}
	}

	var events []abcitypes.Event
	for _, ev := range req.ByzantineValidators {
		addr, err := crypto.ConsAddressFromBytes(ev.Validator.Address)
		if err != nil {
			continue
		}
		appKey, ok := a.Engine.Validators.AppKeyForConsAddress(addr)
		if !ok {
			continue
		}
		kind := byzantineKindString(ev.Type)
		if err := a.Engine.SystemGovernance(a.height, appKey, kind); err != nil {
			log.Errorf("abci: system_governance for %s failed: %v", appKey, err)
			continue
		}
		events = append(events, governancePenaltyEvent(appKey, kind))
	}

	return abcitypes.ResponseBeginBlock{Events: events}
}

// DeliverTx applies one transaction's effects to whichever module(s) its
// envelope kind targets.
func (a *App) DeliverTx(req abcitypes.RequestDeliverTx) abcitypes.ResponseDeliverTx {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	env, err := a.checkEnvelope(req.Tx)
	if err != nil {
		return abcitypes.ResponseDeliverTx{Code: 1, Log: err.Error()}
	}

	var events []abcitypes.Event
	switch env.Kind {
	case txDelegate:
		if err := a.Engine.Delegate(env.Owner, env.Validator, env.Amount, a.height); err != nil {
			return abcitypes.ResponseDeliverTx{Code: 1, Log: err.Error()}
		}
		events = append(events, delegateEvent(env.Owner, env.Validator, env.Amount))
	case txUndelegate:
		if err := a.Engine.Undelegate(env.Owner, a.height); err != nil {
			return abcitypes.ResponseDeliverTx{Code: 1, Log: err.Error()}
		}
		events = append(events, undelegateEvent(env.Owner, a.height))
	case txExtend:
		if err := a.Engine.Extend(env.Owner, env.NewEndHeight); err != nil {
			return abcitypes.ResponseDeliverTx{Code: 1, Log: err.Error()}
		}
		events = append(events, extendEvent(env.Owner, env.NewEndHeight))
	case txClaim:
		if err := a.Engine.Claim(env.Owner, env.Amount); err != nil {
			return abcitypes.ResponseDeliverTx{Code: 1, Log: err.Error()}
		}
		events = append(events, claimEvent(env.Owner, env.Amount))
	case txFraDistribution:
		opHash := sha256.Sum256(req.Tx)
		if err := a.Engine.CoinBase.ConfigFraDistribution(opHash, env.FraDistribution.Payload); err != nil {
			return abcitypes.ResponseDeliverTx{Code: 1, Log: err.Error()}
		}
	case txValidatorUpdate:
		if err := a.Engine.Validators.SetAtHeight(a.height, env.ValidatorUpdate.Payload); err != nil {
			return abcitypes.ResponseDeliverTx{Code: 1, Log: err.Error()}
		}
	case txLedgerTransfer:
		txHash := sha256.Sum256(req.Tx)
		stakingTx, err := a.Ledger.ApplyTransfer(txHash, env.LedgerInputs, env.LedgerInputRefs, env.LedgerOutputs)
		if err != nil {
			return abcitypes.ResponseDeliverTx{Code: 1, Log: err.Error()}
		}
		free := freeDelegationsByOwner(a.Engine.Delegations, env.LedgerOutputs)
		paid, err := a.Engine.CoinBase.CheckAndPay(stakingTx, free, a.height, func(owner crypto.PubKey) {
			a.Engine.Delegations.MarkPaid(owner)
		})
		if err != nil {
			return abcitypes.ResponseDeliverTx{Code: 1, Log: err.Error()}
		}
		if paid {
			for _, out := range env.LedgerOutputs {
				events = append(events, coinBasePaymentEvent(out.Recipient, out.Amount))
			}
		}
	case txAccount:
		if err := a.Accounts.Deliver(*env.Account); err != nil {
			return abcitypes.ResponseDeliverTx{Code: 1, Log: err.Error()}
		}
	}

	return abcitypes.ResponseDeliverTx{Code: 0, Events: events}
}

// freeDelegationsByOwner narrows the full Free-state view to exactly the
// owners a ledger transfer's outputs target, so CheckAndPay's payment
// validator does not need to scan the whole registry per transaction.
func freeDelegationsByOwner(registry *staking.DelegationRegistry, outputs []staking.TxOutput) map[crypto.PubKey]staking.Delegation {
	out := make(map[crypto.PubKey]staking.Delegation, len(outputs))
	for _, o := range outputs {
		if d, ok := registry.Get(o.Recipient); ok && d.State == staking.Free {
			out[o.Recipient] = d
		}
	}
	return out
}

// EndBlock settles the block's delegation rewards (including the proposer
// bonus), advances expired delegations, and emits any validator power
// updates due this height.
func (a *App) EndBlock(req abcitypes.RequestEndBlock) abcitypes.ResponseEndBlock {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	if err := a.Engine.SetLastBlockRewards(a.blockProposerAppKey, a.blockVotePower, a.blockTotalPower); err != nil {
		log.Criticalf("abci: SetLastBlockRewards failed at height %d: %v", a.height, err)
	}
	a.Engine.Process(a.height)

	updates := validatorUpdatesForBlock(a.Engine.Validators, a.height, a.Params.ValidatorUpdateItv)

	var events []abcitypes.Event
	for _, u := range updates {
		if u.PubKey.GetEd25519() != nil {
			var pub crypto.PubKey
			copy(pub[:], u.PubKey.GetEd25519())
			events = append(events, validatorSetUpdateEvent(pub, u.Power))
		}
	}

	return abcitypes.ResponseEndBlock{ValidatorUpdates: updates, Events: events}
}

// Commit closes both state machines' per-block staging areas, combines their
// root hashes into the application hash Tendermint records for this height,
// and persists height/pulse/staking-snapshot to pulsecache.
func (a *App) Commit() abcitypes.ResponseCommit {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	_, _, ledgerRoot, err := a.Ledger.CloseBlock()
	if err != nil {
		log.Criticalf("abci: ledger CloseBlock failed at height %d: %v", a.height, err)
	}
	accountRoot, err := a.Accounts.Commit()
	if err != nil {
		log.Criticalf("abci: account Commit failed at height %d: %v", a.height, err)
	}

	h := sha256.New()
	h.Write(ledgerRoot[:])
	h.Write(accountRoot[:])
	copy(a.appHash[:], h.Sum(nil))

	if err := a.Pulse.SaveHeight(a.height); err != nil {
		log.Errorf("abci: SaveHeight failed: %v", err)
	}
	if err := a.Pulse.SavePulse(a.pulse); err != nil {
		log.Errorf("abci: SavePulse failed: %v", err)
	}
	if err := a.Pulse.SaveStaking(a.Engine.Summary(a.height)); err != nil {
		log.Errorf("abci: SaveStaking failed: %v", err)
	}

	return abcitypes.ResponseCommit{Data: append([]byte(nil), a.appHash[:]...)}
}
