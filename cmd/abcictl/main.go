// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// abcictl is a minimal CLI for talking to a running franode node: "status"
// reports the paired Tendermint node's sync state, and "submit" broadcasts a
// JSON transaction envelope read from a file (or stdin) and waits for it to
// commit. It is deliberately thin — no wallet, no key management, no
// mnemonic derivation.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jessevdk/go-flags"
	rpchttp "github.com/tendermint/tendermint/rpc/client/http"
)

type options struct {
	TendermintAddr string `long:"tendermint" env:"TENDERMINT_ADDR" default:"tcp://localhost:26657" description:"Tendermint RPC endpoint this node is paired with"`

	Args struct {
		Command string   `positional-arg-name:"command" description:"status | submit"`
		Rest    []string `positional-arg-name:"args"`
	} `positional-args:"yes"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		return err
	}

	client, err := rpchttp.New(opts.TendermintAddr, "/websocket")
	if err != nil {
		return fmt.Errorf("abcictl: connecting to %s: %w", opts.TendermintAddr, err)
	}

	switch opts.Args.Command {
	case "status":
		return runStatus(client)
	case "submit":
		var path string
		if len(opts.Args.Rest) > 0 {
			path = opts.Args.Rest[0]
		}
		return runSubmit(client, path)
	default:
		return fmt.Errorf("abcictl: unknown command %q (want status or submit)", opts.Args.Command)
	}
}

func runStatus(client *rpchttp.HTTP) error {
	status, err := client.Status(context.Background())
	if err != nil {
		return fmt.Errorf("abcictl: status: %w", err)
	}
	fmt.Printf("node: %s\n", status.NodeInfo.Moniker)
	fmt.Printf("chain_id: %s\n", status.NodeInfo.Network)
	fmt.Printf("latest_block_height: %d\n", status.SyncInfo.LatestBlockHeight)
	fmt.Printf("latest_app_hash: %x\n", status.SyncInfo.LatestAppHash)
	fmt.Printf("catching_up: %v\n", status.SyncInfo.CatchingUp)
	return nil
}

func runSubmit(client *rpchttp.HTTP, path string) error {
	var r io.Reader = os.Stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("abcictl: opening %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	tx, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("abcictl: reading tx envelope: %w", err)
	}

	result, err := client.BroadcastTxCommit(context.Background(), tx)
	if err != nil {
		return fmt.Errorf("abcictl: broadcast_tx_commit: %w", err)
	}
	if result.CheckTx.Code != 0 {
		return fmt.Errorf("abcictl: rejected at check_tx: %s", result.CheckTx.Log)
	}
	if result.DeliverTx.Code != 0 {
		return fmt.Errorf("abcictl: rejected at deliver_tx: %s", result.DeliverTx.Log)
	}
	fmt.Printf("committed at height %d, hash %X\n", result.Height, result.Hash)
	return nil
}
