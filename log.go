// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"

	"github.com/franode/abcid/abci"
	"github.com/franode/abcid/accountstate"
	"github.com/franode/abcid/ledgerstate"
	"github.com/franode/abcid/rpcserver"
	"github.com/franode/abcid/staking"
)

// logWriter implements io.Writer by tee-ing every write to both stdout and
// the active log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

var (
	backendLog = slog.NewBackend(logWriter{})
	logRotator *rotator.Rotator

	abciLog = backendLog.Logger("ABCI")
	ldgrLog = backendLog.Logger("LDGR")
	actLog  = backendLog.Logger("ACCT")
	stkLog  = backendLog.Logger("STAK")
	rpcsLog = backendLog.Logger("RPCS")
	mainLog = backendLog.Logger("MAIN")
)

// subsystemLoggers maps each subsystem tag to its logger, mirroring exccd's
// own per-subsystem log-level configuration table.
var subsystemLoggers = map[string]slog.Logger{
	"ABCI": abciLog,
	"LDGR": ldgrLog,
	"ACCT": actLog,
	"STAK": stkLog,
	"RPCS": rpcsLog,
	"MAIN": mainLog,
}

// initLogRotator creates a rotating log file at logFile, rolling once it
// exceeds 10 MiB and keeping the 3 most recent rolls.
func initLogRotator(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}
	logRotator = r
	return nil
}

// useLogger wires up every subsystem's package-level logger, following
// exccd's own UseLogger-per-package convention.
func useLogger() {
	abci.UseLogger(abciLog)
	ledgerstate.UseLogger(ldgrLog)
	accountstate.UseLogger(actLog)
	staking.UseLogger(stkLog)
	rpcserver.UseLogger(rpcsLog)
}

// setLogLevels sets every subsystem logger in subsystemLoggers to logLevel
// (e.g. "info", "debug"); it creates no new loggers.
func setLogLevels(logLevel string) {
	level, _ := slog.LevelFromString(logLevel)
	for _, logger := range subsystemLoggers {
		logger.SetLevel(level)
	}
}
