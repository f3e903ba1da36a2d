// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package pulsecache implements the crash-safe persistence of the ABCI
// dispatcher's own process state across restarts: the last committed height,
// a JSON staking snapshot whose shape the caller chooses, and a monotonic
// block-pulse counter. The package only stores and loads these values; it
// does not compare the pulse counter against the height.
package pulsecache

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// These file names are fixed: every franode node must use these exact names
// so an operator inspecting a data directory recognizes them.
const (
	HeightFileName  = ".__tendermint_height__"
	StakingFileName = ".____staking____"
	PulseFileName   = ".____block_pulse____"
)

// Store persists the three files under a single data directory.
type Store struct {
	dir string
}

// Open returns a Store rooted at dir, creating dir if it does not exist.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("pulsecache: create data dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// writeAtomic writes data to name under s.dir via a temp-file-then-rename,
// so a crash mid-write never leaves a torn file behind for the next
// restart to load.
func (s *Store) writeAtomic(name string, data []byte) error {
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("pulsecache: write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("pulsecache: rename %s: %w", name, err)
	}
	return nil
}

// SaveHeight persists the last committed height as an 8-byte native-endian
// integer.
func (s *Store) SaveHeight(height int64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(height))
	return s.writeAtomic(HeightFileName, b[:])
}

// LoadHeight reads the last committed height, returning (0, nil) if the
// file does not yet exist (a fresh node with no prior commits).
func (s *Store) LoadHeight() (int64, error) {
	b, err := os.ReadFile(filepath.Join(s.dir, HeightFileName))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("pulsecache: read height: %w", err)
	}
	if len(b) != 8 {
		return 0, fmt.Errorf("pulsecache: malformed height file (%d bytes)", len(b))
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

// SaveStaking persists an arbitrary JSON-encodable staking engine snapshot.
// The caller decides the snapshot's shape; this package only owns the file's
// crash-safety, not the staking registries' encoding.
func (s *Store) SaveStaking(snapshot interface{}) error {
	b, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("pulsecache: marshal staking snapshot: %w", err)
	}
	return s.writeAtomic(StakingFileName, b)
}

// LoadStaking decodes the persisted staking snapshot into out. It is a
// no-op returning (false, nil) if no snapshot file exists yet.
func (s *Store) LoadStaking(out interface{}) (bool, error) {
	b, err := os.ReadFile(filepath.Join(s.dir, StakingFileName))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pulsecache: read staking snapshot: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, fmt.Errorf("pulsecache: unmarshal staking snapshot: %w", err)
	}
	return true, nil
}

// SavePulse persists the block-pulse counter: a count incremented once per
// begin_block call, independent of height.
func (s *Store) SavePulse(pulse uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], pulse)
	return s.writeAtomic(PulseFileName, b[:])
}

// LoadPulse reads the persisted block-pulse counter, returning (0, nil) if
// the file does not yet exist.
func (s *Store) LoadPulse() (uint64, error) {
	b, err := os.ReadFile(filepath.Join(s.dir, PulseFileName))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("pulsecache: read pulse: %w", err)
	}
	if len(b) != 8 {
		return 0, fmt.Errorf("pulsecache: malformed pulse file (%d bytes)", len(b))
	}
	return binary.LittleEndian.Uint64(b), nil
}
