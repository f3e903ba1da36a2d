// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package abci

import (
	"encoding/json"
	"testing"

	abcitypes "github.com/tendermint/tendermint/abci/types"

	"github.com/franode/abcid/accountstate"
	"github.com/franode/abcid/chaincfg"
	"github.com/franode/abcid/crypto"
	"github.com/franode/abcid/ledgerstate"
	"github.com/franode/abcid/pulsecache"
	"github.com/franode/abcid/staking"
)

func testPubKey(t *testing.T, b byte) crypto.PubKey {
	t.Helper()
	var seed [32]byte
	seed[0] = b
	return crypto.GenerateKeyPair(seed).Public
}

func newTestApp(t *testing.T) *App {
	t.Helper()

	ledger, err := ledgerstate.Open(t.TempDir())
	if err != nil {
		t.Fatalf("ledgerstate.Open: %v", err)
	}
	t.Cleanup(func() { ledger.Close() })

	accounts, err := accountstate.Open(t.TempDir())
	if err != nil {
		t.Fatalf("accountstate.Open: %v", err)
	}
	t.Cleanup(func() { accounts.Close() })

	engine, err := staking.NewEngine(chaincfg.SimNetParams())
	if err != nil {
		t.Fatalf("staking.NewEngine: %v", err)
	}

	pulse, err := pulsecache.Open(t.TempDir())
	if err != nil {
		t.Fatalf("pulsecache.Open: %v", err)
	}

	app, err := NewApp(ledger, accounts, engine, pulse, chaincfg.SimNetParams())
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	return app
}

func envelopeBytes(t *testing.T, env envelope) []byte {
	t.Helper()
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("json.Marshal(envelope): %v", err)
	}
	return b
}

// runBlock drives one full height through begin_block/deliver_tx*/
// end_block/commit, failing the test on any non-zero DeliverTx code.
func runBlock(t *testing.T, app *App, height int64, envs ...envelope) {
	t.Helper()
	app.BeginBlock(abcitypes.RequestBeginBlock{Header: abcitypes.Header{Height: height}})
	for _, env := range envs {
		resp := app.DeliverTx(abcitypes.RequestDeliverTx{Tx: envelopeBytes(t, env)})
		if resp.Code != 0 {
			t.Fatalf("DeliverTx at height %d failed: %s", height, resp.Log)
		}
	}
	app.EndBlock(abcitypes.RequestEndBlock{Height: height})
	app.Commit()
}

func TestAppInfoReportsPersistedHeight(t *testing.T) {
	app := newTestApp(t)
	resp := app.Info(abcitypes.RequestInfo{Version: "0.34.24"})
	if resp.LastBlockHeight != 0 {
		t.Fatalf("LastBlockHeight = %d, want 0 on a fresh app", resp.LastBlockHeight)
	}
}

func TestAppCheckTxRejectsMalformedEnvelope(t *testing.T) {
	app := newTestApp(t)
	resp := app.CheckTx(abcitypes.RequestCheckTx{Tx: []byte("not json")})
	if resp.Code == 0 {
		t.Fatal("expected CheckTx to reject malformed tx bytes")
	}
}

func TestAppCheckTxRejectsUnknownKind(t *testing.T) {
	app := newTestApp(t)
	resp := app.CheckTx(abcitypes.RequestCheckTx{Tx: envelopeBytes(t, envelope{Kind: "not_a_real_kind"})})
	if resp.Code == 0 {
		t.Fatal("expected CheckTx to reject an unrecognized tx kind")
	}
}

func TestAppCheckTxAcceptsWellFormedDelegate(t *testing.T) {
	app := newTestApp(t)
	alice := testPubKey(t, 1)
	resp := app.CheckTx(abcitypes.RequestCheckTx{Tx: envelopeBytes(t, envelope{
		Kind:      txDelegate,
		Owner:     alice,
		Validator: alice,
		Amount:    chaincfg.MinDelegationAmount,
	})})
	if resp.Code != 0 {
		t.Fatalf("CheckTx rejected a well-formed delegate tx: %s", resp.Log)
	}
}

// TestAppLedgerTransferMintsAndDelegateBonds drives a genesis-style mint (a
// ledger_transfer with no inputs) followed by a self-delegation in the same
// block, then checks the staking summary and ledger balance after commit.
func TestAppLedgerTransferMintsAndDelegateBonds(t *testing.T) {
	app := newTestApp(t)
	alice := testPubKey(t, 1)

	mint := envelope{
		Kind:          txLedgerTransfer,
		LedgerOutputs: []staking.TxOutput{{Recipient: alice, Amount: 10 * chaincfg.AtomsPerFRA, AssetType: staking.NativeAssetType}},
	}
	delegate := envelope{
		Kind:      txDelegate,
		Owner:     alice,
		Validator: alice,
		Amount:    2 * chaincfg.AtomsPerFRA,
	}

	runBlock(t, app, 1, mint, delegate)

	if got := app.Ledger.BalanceOf(alice); got != 10*chaincfg.AtomsPerFRA {
		t.Fatalf("alice ledger balance = %d, want %d", got, 10*chaincfg.AtomsPerFRA)
	}

	d, ok := app.Engine.Delegations.Get(alice)
	if !ok {
		t.Fatal("expected alice to have a delegation after delivering a delegate tx")
	}
	if d.Amount != 2*chaincfg.AtomsPerFRA || d.State != staking.Bond {
		t.Fatalf("alice delegation = %+v, want Amount=%d State=Bond", d, 2*chaincfg.AtomsPerFRA)
	}

	summary := app.Engine.Summary(app.height)
	if summary.TotalBonded != 2*chaincfg.AtomsPerFRA {
		t.Fatalf("summary.TotalBonded = %d, want %d", summary.TotalBonded, 2*chaincfg.AtomsPerFRA)
	}

	if app.appHash == ([32]byte{}) {
		t.Fatal("expected a non-zero app hash after commit")
	}
	if reloadedHeight, err := app.Pulse.LoadHeight(); err != nil || reloadedHeight != 1 {
		t.Fatalf("Pulse.LoadHeight() = (%d, %v), want (1, nil)", reloadedHeight, err)
	}
}

// TestAppUndelegateLifecycleReachesFree drives an external delegation
// (self-delegations cannot be undelegated) through Bond -> UnBond -> Free
// across the unbond window.
func TestAppUndelegateLifecycleReachesFree(t *testing.T) {
	app := newTestApp(t)
	alice := testPubKey(t, 1)
	bob := testPubKey(t, 2)

	runBlock(t, app, 1, envelope{
		Kind:      txDelegate,
		Owner:     alice,
		Validator: alice,
		Amount:    2 * chaincfg.AtomsPerFRA,
	}, envelope{
		Kind:      txDelegate,
		Owner:     bob,
		Validator: alice,
		Amount:    2 * chaincfg.AtomsPerFRA,
	})
	runBlock(t, app, 2, envelope{Kind: txUndelegate, Owner: bob})

	d, _ := app.Engine.Delegations.Get(bob)
	if d.State != staking.UnBond {
		t.Fatalf("delegation state after undelegate = %s, want UnBond", d.State)
	}

	// SimNetParams sets UnbondBlockCnt=8; EndHeight was recorded as 2, so
	// the delegation becomes Free once current height >= 2+8.
	for h := int64(3); h <= 10; h++ {
		runBlock(t, app, h)
	}

	d, _ = app.Engine.Delegations.Get(bob)
	if d.State != staking.Free {
		t.Fatalf("delegation state after unbond window = %s, want Free", d.State)
	}
}

func TestAppBeginBlockAppliesGovernancePenaltyForByzantineEvidence(t *testing.T) {
	app := newTestApp(t)
	appKey := testPubKey(t, 1)
	consKey := testPubKey(t, 2)
	consAddr := crypto.DeriveConsAddress(consKey)

	// The peer keeps the penalized validator's post-slash share (334 of
	// 4334) under the 20% cap ChangePower enforces.
	if err := app.Engine.Validators.SetAtHeight(0, staking.ValidatorData{
		Validators: map[crypto.PubKey]staking.ValidatorEntry{
			appKey:           {ConsensusPubKey: consKey, Power: 1000},
			testPubKey(t, 3): {ConsensusPubKey: testPubKey(t, 4), Power: 4000},
		},
		Rule: staking.RuleSpec{
			Weights:      []staking.WeightEntry{{Key: appKey, Weight: 1}},
			ThresholdNum: 2,
			ThresholdDen: 3,
		},
	}); err != nil {
		t.Fatalf("SetAtHeight: %v", err)
	}

	app.BeginBlock(abcitypes.RequestBeginBlock{
		Header: abcitypes.Header{Height: 1},
		ByzantineValidators: []abcitypes.Evidence{
			{
				Type:      abcitypes.EvidenceType_DUPLICATE_VOTE,
				Validator: abcitypes.Validator{Address: consAddr[:], Power: 1000},
			},
		},
	})
	app.EndBlock(abcitypes.RequestEndBlock{Height: 1})
	app.Commit()

	v, ok := app.Engine.Validators.Validator(1, appKey)
	if !ok {
		t.Fatal("expected validator to still exist after a duplicate-vote penalty")
	}
	if v.Power != 334 {
		t.Fatalf("validator power after duplicate-vote slash = %d, want 334 (one-third of 1000)", v.Power)
	}
}

func TestAppDeliverTxAccountTransfer(t *testing.T) {
	app := newTestApp(t)
	alice := testPubKey(t, 1)
	bob := testPubKey(t, 2)

	if err := app.Accounts.Credit(alice, 1000); err != nil {
		t.Fatalf("Credit: %v", err)
	}

	runBlock(t, app, 1, envelope{
		Kind: txAccount,
		Account: &accountstate.UnsignedTx{
			Sender:    alice,
			Nonce:     0,
			Recipient: bob,
			Value:     400,
			Fee:       0,
		},
	})

	if got := app.Accounts.Balance(bob); got != 400 {
		t.Fatalf("bob balance = %d, want 400", got)
	}
	if got := app.Accounts.Balance(alice); got != 600 {
		t.Fatalf("alice balance = %d, want 600", got)
	}
	if got := app.Accounts.Nonce(alice); got != 1 {
		t.Fatalf("alice nonce = %d, want 1", got)
	}
}

func TestAppDeliverTxRejectsInvalidDelegateAmount(t *testing.T) {
	app := newTestApp(t)
	alice := testPubKey(t, 1)

	app.BeginBlock(abcitypes.RequestBeginBlock{Header: abcitypes.Header{Height: 1}})
	resp := app.DeliverTx(abcitypes.RequestDeliverTx{Tx: envelopeBytes(t, envelope{
		Kind:      txDelegate,
		Owner:     alice,
		Validator: alice,
		Amount:    1, // far below chaincfg.MinDelegationAmount
	})})
	if resp.Code == 0 {
		t.Fatal("expected DeliverTx to reject a delegation amount below the minimum")
	}
}
