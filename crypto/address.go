// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package crypto wraps the key and address primitives shared by the staking
// core and the ABCI dispatcher. It plays the same narrow role that
// exccd/dcrec plays for its consensus code: a small, dependency-light layer
// over a standard curve, rather than a general-purpose crypto library.
// Consensus keys are ed25519, so this package wraps the standard library's
// crypto/ed25519 instead of adopting a third-party curve implementation; see
// DESIGN.md for why no pack dependency was a better fit than the standard
// primitive here.
package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// ConsAddrSize is the length, in bytes, of a consensus address: the leading
// 20 bytes of SHA-256(consensus public key).
const ConsAddrSize = 20

// ConsAddress is the stable 20-byte identifier derived from a validator's
// consensus public key. It is the value carried in ABCI headers, evidence
// records, and LastCommitInfo votes.
type ConsAddress [ConsAddrSize]byte

// String renders the address as lowercase hex. The spec does not mandate a
// bech32 or other human-readable encoding for consensus addresses, so this
// stays a plain hex dump.
func (a ConsAddress) String() string {
	return hex.EncodeToString(a[:])
}

// IsZero reports whether the address is the all-zero value, used as a
// sentinel for "no validator".
func (a ConsAddress) IsZero() bool {
	return a == ConsAddress{}
}

// MarshalJSON renders the address as a hex string, matching the format
// used on every other wire boundary in this package.
func (a ConsAddress) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON parses a hex string produced by MarshalJSON.
func (a *ConsAddress) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("crypto: invalid address hex: %w", err)
	}
	addr, err := ConsAddressFromBytes(b)
	if err != nil {
		return err
	}
	*a = addr
	return nil
}

// ConsAddressFromBytes builds a ConsAddress from a byte slice, as produced
// by an ABCI Validator.Address field. It returns an error if len(b) is not
// ConsAddrSize.
func ConsAddressFromBytes(b []byte) (ConsAddress, error) {
	var addr ConsAddress
	if len(b) != ConsAddrSize {
		return addr, errors.New("crypto: wrong address length")
	}
	copy(addr[:], b)
	return addr, nil
}

// PubKeySize is the length, in bytes, of an ed25519 public key, used both
// for validator consensus keys and for delegator/application keys.
const PubKeySize = ed25519.PublicKeySize

// PubKey is a fixed-size wrapper around an ed25519 public key, used as a map
// key throughout the staking registries (Validator, Delegation).
type PubKey [PubKeySize]byte

// Bytes returns the key as an ed25519.PublicKey for verification.
func (k PubKey) Bytes() ed25519.PublicKey {
	return ed25519.PublicKey(k[:])
}

// String renders the key as lowercase hex.
func (k PubKey) String() string {
	return hex.EncodeToString(k[:])
}

// PubKeyFromBytes builds a PubKey from a byte slice.
func PubKeyFromBytes(b []byte) (PubKey, error) {
	var k PubKey
	if len(b) != PubKeySize {
		return k, errors.New("crypto: wrong public key length")
	}
	copy(k[:], b)
	return k, nil
}

// MarshalJSON renders the key as a hex string, so ABCI tx envelopes and
// pulsecache staking snapshots carry readable keys rather than raw byte
// arrays.
func (k PubKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON parses a hex string produced by MarshalJSON. An empty
// string unmarshals to the zero key, so omitempty envelope fields round
// trip cleanly.
func (k *PubKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*k = PubKey{}
		return nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("crypto: invalid public key hex: %w", err)
	}
	pub, err := PubKeyFromBytes(b)
	if err != nil {
		return err
	}
	*k = pub
	return nil
}

// DeriveConsAddress computes the consensus address for a public key: the
// leading ConsAddrSize bytes of SHA-256(pubkey).
func DeriveConsAddress(pub PubKey) ConsAddress {
	sum := sha256.Sum256(pub[:])
	var addr ConsAddress
	copy(addr[:], sum[:ConsAddrSize])
	return addr
}

// KeyPair is a consensus or delegator keypair. The two CoinBase accounts are
// the only KeyPairs that exist as process-wide constants rather than user-
// supplied material.
type KeyPair struct {
	Public  PubKey
	Private ed25519.PrivateKey
}

// Sign signs msg and returns the raw ed25519 signature.
func (k KeyPair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.Private, msg)
}

// Verify reports whether sig is a valid ed25519 signature over msg for pub.
func Verify(pub PubKey, msg, sig []byte) bool {
	return ed25519.Verify(pub.Bytes(), msg, sig)
}

// GenerateKeyPair deterministically derives a KeyPair from a 32-byte seed.
// The CoinBase rewards and principal accounts are derived this way from
// fixed, process-wide seeds at startup; ordinary delegator and validator
// keys are supplied externally and are never generated here.
func GenerateKeyPair(seed [32]byte) KeyPair {
	priv := ed25519.NewKeyFromSeed(seed[:])
	pub, _ := PubKeyFromBytes(priv.Public().(ed25519.PublicKey))
	return KeyPair{Public: pub, Private: priv}
}
