// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package config loads the node's runtime configuration from environment
// variables and an optional TOML file, the way exccd's own config.go loads
// EXCCD_*-prefixed variables via go-flags' `env` struct tag: each field is
// both a command-line flag and an environment variable, with the TOML file
// (when present) providing the base values a flag or env var can still
// override.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
	"github.com/pelletier/go-toml/v2"
)

// Default listener addresses.
const (
	DefaultABCIHost       = "0.0.0.0"
	DefaultABCIPort       = "26658"
	DefaultTendermintHost = "localhost"
	DefaultTendermintPort = "26657"
)

// Config groups every configuration variable this node recognizes. Field
// names map 1:1 onto named environment variables via each field's `env`
// tag, the same convention exccd's config.go uses for its own `EXCCD_*`
// variables.
type Config struct {
	LedgerDir string `long:"ledgerdir" env:"LEDGER_DIR" description:"Base directory for ledger/account/pulse persistence; if empty, an in-memory test ledger is used"`

	EnableLedgerService bool `long:"enableledgerservice" env:"ENABLE_LEDGER_SERVICE" description:"Serve the legacy ledger query surface"`
	EnableQueryService  bool `long:"enablequeryservice" env:"ENABLE_QUERY_SERVICE" description:"Serve the staking/validator read-only query surface"`
	EnableEthAPIService bool `long:"enableethapiservice" env:"ENABLE_ETH_API_SERVICE" description:"Serve the account/EVM-compatible query surface"`

	ABCIHost string `long:"abcihost" env:"ABCI_HOST" description:"Listen host for the consensus engine's ABCI connection"`
	ABCIPort string `long:"abciport" env:"ABCI_PORT" description:"Listen port for the consensus engine's ABCI connection"`

	TendermintHost string `long:"tenderminthost" env:"TENDERMINT_HOST" description:"Host of the Tendermint node this app pairs with"`
	TendermintPort string `long:"tendermintport" env:"TENDERMINT_PORT" description:"Port of the Tendermint node this app pairs with"`

	SubmissionPort string `long:"submissionport" env:"SUBMISSION_PORT" description:"Port accepting raw transaction submission"`
	LedgerPort     string `long:"ledgerport" env:"LEDGER_PORT" description:"Port serving the ledger query surface"`
	QueryPort      string `long:"queryport" env:"QUERY_PORT" description:"Port serving the staking query surface"`
	EVMAPIPort     string `long:"evmapiport" env:"EVM_API_PORT" description:"Port serving the account/EVM-compatible query surface"`

	TDNodeSelfAddr string `long:"tdnodeselfaddr" env:"TD_NODE_SELF_ADDR" description:"20-byte hex consensus address of this node, used to decide whether to mint CoinBase payments"`
}

// defaults returns a Config populated with this node's built-in defaults.
func defaults() *Config {
	return &Config{
		ABCIHost:       DefaultABCIHost,
		ABCIPort:       DefaultABCIPort,
		TendermintHost: DefaultTendermintHost,
		TendermintPort: DefaultTendermintPort,
	}
}

// tomlFileName is the node's TOML configuration file path, relative to
// homeDir (the node's first positional argument).
func tomlFileName(homeDir string) string {
	return filepath.Join(homeDir, "abci", "abci.toml")
}

// LoadConfig builds a Config from, in increasing priority: built-in
// defaults, the TOML file at $1/abci/abci.toml if homeDir is non-empty and
// the file exists, environment variables, and finally command-line flags in
// args.
func LoadConfig(homeDir string, args []string) (*Config, error) {
	cfg := defaults()

	if homeDir != "" {
		path := tomlFileName(homeDir)
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parsing %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// No TOML file; defaults plus env/flags below stand.
		default:
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ABCIListenAddr returns the host:port the ABCI server should listen on.
func (c *Config) ABCIListenAddr() string {
	return c.ABCIHost + ":" + c.ABCIPort
}

// TendermintAddr returns the host:port of the paired Tendermint node.
func (c *Config) TendermintAddr() string {
	return c.TendermintHost + ":" + c.TendermintPort
}
