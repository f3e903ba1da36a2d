// Copyright (c) 2024 The franode developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package staking

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"sort"
	"sync"

	"github.com/dchest/siphash"

	"github.com/franode/abcid/chaincfg"
	"github.com/franode/abcid/crypto"
)

// Payload is the capability required of a CoSigOp's payload type: a
// deterministic byte encoding to sign over. ValidatorData,
// FraDistributionData, and GovernanceData all implement it; see payload.go.
type Payload interface {
	MarshalSigningBytes() ([]byte, error)
}

// CoSigSignature is one signer's contribution to a CoSigOp.
type CoSigSignature struct {
	Key crypto.PubKey
	Sig []byte
}

// CoSigOp is a generic container carrying a payload plus a set of multi-
// party signatures over (nonce, payload).
type CoSigOp[T Payload] struct {
	Payload T
	Nonce   uint64
	Sigs    map[crypto.PubKey]CoSigSignature
}

// NewCoSigOp creates an unsigned CoSigOp around payload with the given
// nonce. Replay protection for FraDistribution operations hashes the
// submitted transaction bytes, which carry the nonce, so two otherwise-
// identical payloads submitted with different nonces hash differently.
func NewCoSigOp[T Payload](payload T, nonce uint64) *CoSigOp[T] {
	return &CoSigOp[T]{
		Payload: payload,
		Nonce:   nonce,
		Sigs:    make(map[crypto.PubKey]CoSigSignature),
	}
}

// signingBytes serializes (nonce, payload) deterministically: the 8-byte
// big-endian nonce followed by the payload's own deterministic encoding.
func (op *CoSigOp[T]) signingBytes() ([]byte, error) {
	payloadBytes, err := op.Payload.MarshalSigningBytes()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 8, 8+len(payloadBytes))
	binary.BigEndian.PutUint64(buf, op.Nonce)
	return append(buf, payloadBytes...), nil
}

// Sign appends kp's signature over (nonce, payload) to the op.
func (op *CoSigOp[T]) Sign(kp crypto.KeyPair) error {
	msg, err := op.signingBytes()
	if err != nil {
		return err
	}
	op.Sigs[kp.Public] = CoSigSignature{Key: kp.Public, Sig: kp.Sign(msg)}
	return nil
}

// BatchSign signs the op with every keypair in kps, in order. It is a
// convenience wrapper used by validator-set-update and governance flows
// that collect signatures from several signers at once.
func (op *CoSigOp[T]) BatchSign(kps []crypto.KeyPair) error {
	for _, kp := range kps {
		if err := op.Sign(kp); err != nil {
			return err
		}
	}
	return nil
}

// CoSigRule is a weighted-key threshold scheme. Weights must be unique per
// key (no two entries for the same key); the threshold fraction bounds
// numerator <= denominator <= chaincfg.MaxCoSigWeightSum.
type CoSigRule struct {
	Weights        map[crypto.PubKey]int64
	ThresholdNum   int64
	ThresholdDen   int64
	totalWeight    int64
}

// NewCoSigRule builds a CoSigRule from a weight map and threshold fraction,
// validating CoSigRule's own well-formedness constraints.
func NewCoSigRule(weights map[crypto.PubKey]int64, num, den int64) (*CoSigRule, error) {
	if num <= 0 || den <= 0 || num > den {
		return nil, ruleErrorf(ErrThresholdOutOfRange,
			"cosig: invalid threshold %d/%d", num, den)
	}
	if den > chaincfg.MaxCoSigWeightSum {
		return nil, ruleErrorf(ErrThresholdOutOfRange,
			"cosig: threshold denominator %d exceeds max %d", den, chaincfg.MaxCoSigWeightSum)
	}

	w := make(map[crypto.PubKey]int64, len(weights))
	var total int64
	for k, v := range weights {
		w[k] = v
		total += v
	}

	return &CoSigRule{Weights: w, ThresholdNum: num, ThresholdDen: den, totalWeight: total}, nil
}

// DefaultThreshold returns the network's default 2/3 threshold applied to
// governance and validator-set-update operations.
func DefaultThreshold() (int64, int64) {
	return chaincfg.DefaultCoSigThresholdNum, chaincfg.DefaultCoSigThresholdDen
}

// weight returns the weight assigned to key, or 0 if key is not part of the
// rule.
func (r *CoSigRule) weight(key crypto.PubKey) (int64, bool) {
	w, ok := r.Weights[key]
	return w, ok
}

// Verify checks that every signer key in op is present in r, that every
// signature verifies against (nonce, payload), and that the weighted sum of
// valid signers meets the rule's threshold: Σ weight(signer) * den >= num *
// Σ weight(rule)
func (op *CoSigOp[T]) Verify(r *CoSigRule) error {
	msg, err := op.signingBytes()
	if err != nil {
		return err
	}

	var weightSum int64
	for key, sig := range op.Sigs {
		w, ok := r.weight(key)
		if !ok {
			return ruleErrorf(ErrKeyUnknown, "cosig: signer %s not in rule", key)
		}
		if !crypto.Verify(key, msg, sig.Sig) {
			return ruleErrorf(ErrSigInvalid, "cosig: invalid signature from %s", key)
		}
		weightSum += w
	}

	// Σ weight(signer) * den >= num * Σ weight(rule)
	if weightSum*r.ThresholdDen < r.ThresholdNum*r.totalWeight {
		return ruleErrorf(ErrWeightInsufficient,
			"cosig: signer weight %d/%d below threshold %d/%d",
			weightSum, r.totalWeight, r.ThresholdNum, r.ThresholdDen)
	}
	return nil
}

// SortedKeys returns the op's signer keys in a deterministic order, used by
// tests and by event/log formatting.
func (op *CoSigOp[T]) SortedKeys() []crypto.PubKey {
	keys := make([]crypto.PubKey, 0, len(op.Sigs))
	for k := range op.Sigs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
	return keys
}

// verifyCacheEntry mirrors exccd/txscript's SigCache entry: the full
// signature and key are kept so a cache hit can be confirmed instead of
// trusted blindly on a short-hash collision (txscript/sigcache.go).
type verifyCacheEntry struct {
	key crypto.PubKey
	sig []byte
}

// VerifyCache is a signature verification cache for CoSigOp, adapted line-
// for-line in spirit from exccd/txscript.SigCache: a SipHash-2-4 keyed
// short hash indexes entries, and only previously-valid signatures are ever
// cached, so a cache hit always implies a valid signature. CoSigOp.Verify
// and the ABCI check_tx path do not consult it; they always re-run ed25519
// verification.
type VerifyCache struct {
	mtx        sync.RWMutex
	valid      map[uint64]verifyCacheEntry
	maxEntries uint
	k0, k1     uint64
}

// NewVerifyCache creates a cache holding at most maxEntries signatures.
func NewVerifyCache(maxEntries uint) (*VerifyCache, error) {
	var keyBytes [16]byte
	if _, err := rand.Read(keyBytes[:]); err != nil {
		return nil, err
	}
	return &VerifyCache{
		valid:      make(map[uint64]verifyCacheEntry, maxEntries),
		maxEntries: maxEntries,
		k0:         binary.LittleEndian.Uint64(keyBytes[0:8]),
		k1:         binary.LittleEndian.Uint64(keyBytes[8:16]),
	}, nil
}

func (c *VerifyCache) shortHash(msg []byte) uint64 {
	return siphash.Hash(c.k0, c.k1, msg)
}

// Exists reports whether (msg, key) was previously confirmed valid and
// added to the cache.
func (c *VerifyCache) Exists(msg []byte, key crypto.PubKey) bool {
	h := c.shortHash(msg)
	c.mtx.RLock()
	entry, ok := c.valid[h]
	c.mtx.RUnlock()
	return ok && entry.key == key
}

// Add records (msg, key, sig) as valid. If the cache is full, a random
// entry is evicted, following exccd's reasoning that iteration order over a
// Go map is not attacker-steerable without a hash preimage.
func (c *VerifyCache) Add(msg []byte, key crypto.PubKey, sig []byte) {
	if c.maxEntries == 0 {
		return
	}
	h := c.shortHash(msg)

	c.mtx.Lock()
	defer c.mtx.Unlock()
	if uint(len(c.valid)+1) > c.maxEntries {
		for k := range c.valid {
			delete(c.valid, k)
			break
		}
	}
	c.valid[h] = verifyCacheEntry{key: key, sig: sig}
}
