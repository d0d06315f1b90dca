// Package core implements the chain engine: blocks, the chain itself,
// proof-of-work mining, and the mempool collaborator that supplies
// block payloads.
package core

import (
	"fmt"

	"chainnode/digest"
)

// Block is an immutable record in the chain, identified by its hash.
// Construction must refuse a block that fails IsValid; there is no
// implicit recomputation of hashes on deserialization.
type Block struct {
	Index     int64         `json:"index"`
	PrevHash  string        `json:"prev_hash"`
	Timestamp int64         `json:"timestamp"`
	Data      string        `json:"data"`
	Nonce     uint64        `json:"nonce"`
	Target    digest.Digest `json:"target"`
	Hash      digest.Digest `json:"hash"`
}

// calculateHash computes the canonical hash of a block's fields. Pure.
func calculateHash(index int64, prevHash string, timestamp int64, data string, nonce uint64, target digest.Digest) digest.Digest {
	return digest.Sum(digest.Preimage(index, prevHash, timestamp, data, nonce, string(target)))
}

// validateDifficulty reports whether hash satisfies the proof-of-work
// target.
func validateDifficulty(hash, target digest.Digest) bool {
	return hash.LessOrEqual(target)
}

// IsValid reports whether the block's stored hash matches its
// recomputed hash and satisfies its own target.
func (b *Block) IsValid() bool {
	if !digest.Valid(string(b.Target)) || !digest.Valid(string(b.Hash)) {
		return false
	}
	if calculateHash(b.Index, b.PrevHash, b.Timestamp, b.Data, b.Nonce, b.Target) != b.Hash {
		return false
	}
	return validateDifficulty(b.Hash, b.Target)
}

// newBlock builds and validates a block from freshly mined fields. It
// panics if the fields don't satisfy the difficulty target, which would
// indicate a miner bug rather than a reachable runtime condition.
func newBlock(index int64, prevHash string, timestamp int64, data string, nonce uint64, target digest.Digest) *Block {
	hash := calculateHash(index, prevHash, timestamp, data, nonce, target)
	b := &Block{
		Index:     index,
		PrevHash:  prevHash,
		Timestamp: timestamp,
		Data:      data,
		Nonce:     nonce,
		Target:    target,
		Hash:      hash,
	}
	if !b.IsValid() {
		panic("core: mined block failed its own validity check")
	}
	return b
}

// Serialize converts the block to the wire/storage map of its seven
// named fields.
func (b *Block) Serialize() map[string]interface{} {
	return map[string]interface{}{
		"index":     b.Index,
		"prev_hash": b.PrevHash,
		"timestamp": b.Timestamp,
		"data":      b.Data,
		"nonce":     b.Nonce,
		"target":    string(b.Target),
		"hash":      string(b.Hash),
	}
}

// DeserializeBlock rebuilds a Block from its wire map. The stored hash
// is re-verified; it is never recomputed implicitly.
func DeserializeBlock(m map[string]interface{}) (*Block, error) {
	index, err := toInt64(m["index"])
	if err != nil {
		return nil, fmt.Errorf("core: block index: %w", err)
	}
	timestamp, err := toInt64(m["timestamp"])
	if err != nil {
		return nil, fmt.Errorf("core: block timestamp: %w", err)
	}
	nonce, err := toUint64(m["nonce"])
	if err != nil {
		return nil, fmt.Errorf("core: block nonce: %w", err)
	}
	prevHash, _ := m["prev_hash"].(string)
	data, _ := m["data"].(string)
	target, _ := m["target"].(string)
	hash, _ := m["hash"].(string)

	b := &Block{
		Index:     index,
		PrevHash:  prevHash,
		Timestamp: timestamp,
		Data:      data,
		Nonce:     nonce,
		Target:    digest.Digest(target),
		Hash:      digest.Digest(hash),
	}
	if !b.IsValid() {
		return nil, fmt.Errorf("core: deserialized block %d is invalid", b.Index)
	}
	return b, nil
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func toUint64(v interface{}) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case int64:
		return uint64(n), nil
	case int:
		return uint64(n), nil
	case float64:
		return uint64(n), nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
