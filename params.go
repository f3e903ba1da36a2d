// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import "github.com/franode/abcid/chaincfg"

// activeNetParams is a pointer to the parameters specific to the currently
// active franode network.
var activeNetParams = mainNetParams

// netParams wraps a chaincfg.Params selection, following the shape of
// exccd's own params.go wrapper; it adds no fields of its own.
type netParams struct {
	*chaincfg.Params
}

var (
	mainNetParams = &netParams{Params: chaincfg.MainNetParams()}
	testNetParams = &netParams{Params: chaincfg.TestNetParams()}
	simNetParams  = &netParams{Params: chaincfg.SimNetParams()}
)

// netParamsByName resolves one of "mainnet", "testnet", or "simnet" to its
// parameters, returning false if name names none of them.
func netParamsByName(name string) (*netParams, bool) {
	switch name {
	case "mainnet", "":
		return mainNetParams, true
	case "testnet":
		return testNetParams, true
	case "simnet":
		return simNetParams, true
	default:
		return nil, false
	}
}
