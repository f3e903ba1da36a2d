// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package rpcserver implements a read-only staking query surface served
// over a long-lived websocket connection. The server answers each request
// it reads with one response; it sends no unsolicited updates and has no
// subscriptions. Its command shapes follow exccd's own chain-server websocket
// command convention (rpc/jsonrpc/types/chainsvrwscmds.go): a plain struct
// per command plus a New*Cmd constructor, dispatched by name through a
// single registry.
package rpcserver

import (
	"encoding/json"

	"github.com/franode/abcid/crypto"
)

// GetValidatorsCmd requests the validator set effective at Height. A zero
// Height means "the latest committed height".
type GetValidatorsCmd struct {
	Height int64 `json:"height"`
}

// NewGetValidatorsCmd returns a new instance which can be used to issue a
// getvalidators command.
func NewGetValidatorsCmd(height int64) *GetValidatorsCmd {
	return &GetValidatorsCmd{Height: height}
}

// GetDelegationCmd requests a single delegator's delegation record.
type GetDelegationCmd struct {
	Owner crypto.PubKey `json:"owner"`
}

// NewGetDelegationCmd returns a new instance which can be used to issue a
// getdelegation command.
func NewGetDelegationCmd(owner crypto.PubKey) *GetDelegationCmd {
	return &GetDelegationCmd{Owner: owner}
}

// GetStakingSummaryCmd requests the engine's aggregate staking summary at
// the latest committed height.
type GetStakingSummaryCmd struct{}

// NewGetStakingSummaryCmd returns a new instance which can be used to
// issue a getstakingsummary command.
func NewGetStakingSummaryCmd() *GetStakingSummaryCmd {
	return &GetStakingSummaryCmd{}
}

// GetCoSigRuleCmd requests the co-signature rule effective at Height.
type GetCoSigRuleCmd struct {
	Height int64 `json:"height"`
}

// NewGetCoSigRuleCmd returns a new instance which can be used to issue a
// getcosigrule command.
func NewGetCoSigRuleCmd(height int64) *GetCoSigRuleCmd {
	return &GetCoSigRuleCmd{Height: height}
}

// request is the envelope a client sends over the websocket connection:
// a command name plus its raw parameters, mirroring dcrjson's
// marshal/unmarshal-by-method-name dispatch.
type request struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// response is the envelope returned for a request: Result is populated on
// success, Error on failure, mirroring dcrjson's Response shape.
type response struct {
	ID     uint64      `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Method name constants, the registry keys both the client and Server
// dispatch on.
const (
	MethodGetValidators     = "getvalidators"
	MethodGetDelegation     = "getdelegation"
	MethodGetStakingSummary = "getstakingsummary"
	MethodGetCoSigRule      = "getcosigrule"
)
