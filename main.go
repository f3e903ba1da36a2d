// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	abciserver "github.com/tendermint/tendermint/abci/server"

	"github.com/franode/abcid/abci"
	"github.com/franode/abcid/accountstate"
	"github.com/franode/abcid/config"
	"github.com/franode/abcid/ledgerstate"
	"github.com/franode/abcid/pulsecache"
	"github.com/franode/abcid/rpcserver"
	"github.com/franode/abcid/staking"
)

// homeDir is the node's first positional argument: the base directory
// holding the abci.toml file and, unless overridden, the ledger/account/
// pulse databases.
func homeDir() string {
	if len(os.Args) > 1 && os.Args[1] != "" && os.Args[1][0] != '-' {
		return os.Args[1]
	}
	return "."
}

func main() {
	if err := run(); err != nil {
		mainLog.Errorf("%v", err)
		os.Exit(1)
	}
}

func run() error {
	home := homeDir()
	cfg, err := config.LoadConfig(home, os.Args[1:])
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := initLogRotator(filepath.Join(home, "logs", "abcid.log")); err != nil {
		return err
	}
	useLogger()
	setLogLevels("info")
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	netParams, ok := netParamsByName(os.Getenv("FRANODE_NETWORK"))
	if !ok {
		return fmt.Errorf("unknown network %q", os.Getenv("FRANODE_NETWORK"))
	}
	activeNetParams = netParams
	mainLog.Infof("active network: %s", activeNetParams.Name)

	// An unset LEDGER_DIR means an in-memory test ledger is used. There is
	// no bespoke in-memory storage backend for ledgerstate/
	// accountstate/pulsecache (all three are goleveldb- or file-backed), so
	// an ephemeral temp directory stands in for one: it behaves like an
	// in-memory store from the operator's perspective (nothing survives
	// past this process) without a second storage code path to maintain.
	ledgerDir := cfg.LedgerDir
	if ledgerDir == "" {
		tmp, err := os.MkdirTemp("", "abcid-testledger-*")
		if err != nil {
			return fmt.Errorf("creating in-memory test ledger dir: %w", err)
		}
		ledgerDir = tmp
		mainLog.Infof("LEDGER_DIR unset; using ephemeral test ledger at %s", ledgerDir)
	}

	ledger, err := ledgerstate.Open(filepath.Join(ledgerDir, "ledger"))
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	accounts, err := accountstate.Open(filepath.Join(ledgerDir, "accounts"))
	if err != nil {
		return fmt.Errorf("opening accounts: %w", err)
	}
	pulse, err := pulsecache.Open(filepath.Join(ledgerDir, "pulse"))
	if err != nil {
		return fmt.Errorf("opening pulse cache: %w", err)
	}

	engine, err := staking.NewEngine(activeNetParams.Params)
	if err != nil {
		return fmt.Errorf("building staking engine: %w", err)
	}

	app, err := abci.NewApp(ledger, accounts, engine, pulse, activeNetParams.Params)
	if err != nil {
		return fmt.Errorf("building ABCI app: %w", err)
	}

	srv, err := abciserver.NewServer("tcp://"+cfg.ABCIListenAddr(), "socket", app)
	if err != nil {
		return fmt.Errorf("building ABCI server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting ABCI server: %w", err)
	}
	defer srv.Stop()
	mainLog.Infof("ABCI server listening on %s (paired with Tendermint at %s)", cfg.ABCIListenAddr(), cfg.TendermintAddr())

	if cfg.EnableQueryService {
		query := rpcserver.NewServer(engine, ledger, app.Height)
		mux := http.NewServeMux()
		mux.Handle("/", query)
		addr := ":" + cfg.QueryPort
		go func() {
			mainLog.Infof("query service listening on %s", addr)
			if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
				mainLog.Errorf("query service: %v", err)
			}
		}()
	}

	if cfg.EnableLedgerService {
		mainLog.Infof("ledger service requested on port %s, but the query surface serves no ledger commands", cfg.LedgerPort)
	}
	if cfg.EnableEthAPIService {
		mainLog.Infof("account/EVM-compatible service requested on port %s, but no EVM-compatible JSON-RPC surface is implemented yet", cfg.EVMAPIPort)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	mainLog.Infof("shutting down")
	return nil
}
