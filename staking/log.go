// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package staking

import "github.com/decred/slog"

// log is the package-wide subsystem logger. It defaults to a disabled
// backend so the package is silent when imported by a binary that never
// calls UseLogger, following exccd's per-package logging convention.
var log = slog.Disabled

// UseLogger sets the subsystem logger used by this package. Called from the
// top-level binary's log.go once the logging backend is constructed (spec
// full 2, C10).
func UseLogger(logger slog.Logger) {
	log = logger
}
