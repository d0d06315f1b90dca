// Package digest implements the node's content-addressing scheme: a
// 256-bit BLAKE2s hash rendered as 64 lowercase hex characters, ordered
// numerically for proof-of-work difficulty comparison.
package digest

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/blake2s"
)

// Digest is a 256-bit hash in canonical 64-hex-character form.
type Digest string

// HexLen is the length of a canonical digest string.
const HexLen = 64

// GenesisSentinel is the literal prev_hash value used by the genesis
// block. It is not a valid Digest and must never be parsed as one.
const GenesisSentinel = "0"

// InitialTarget is the genesis block's fixed proof-of-work target,
// approximately difficulty 1 for this scheme.
const InitialTarget Digest = "00000ffff0000000000000000000000000000000000000000000000000000000"

// Sum computes the canonical digest of an arbitrary byte string.
func Sum(data []byte) Digest {
	sum := blake2s.Sum256(data)
	return Digest(hex.EncodeToString(sum[:]))
}

// Valid reports whether s is syntactically a canonical digest: exactly
// HexLen lowercase hex characters.
func Valid(s string) bool {
	if len(s) != HexLen {
		return false
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9') && !(r >= 'a' && r <= 'f') {
			return false
		}
	}
	return true
}

// Int returns d's value as an unsigned 256-bit integer.
func (d Digest) Int() *big.Int {
	n := new(big.Int)
	n.SetString(string(d), 16)
	return n
}

// LessOrEqual reports whether d, interpreted as a big-endian integer,
// is numerically less than or equal to target. This is the proof-of-work
// acceptance test.
func (d Digest) LessOrEqual(target Digest) bool {
	return d.Int().Cmp(target.Int()) <= 0
}

// String returns the lowercase hex form.
func (d Digest) String() string {
	return string(d)
}

// FromBigInt renders n as a zero-padded, lowercase, HexLen-character
// Digest. n must fit in 256 bits; callers are expected to have already
// clamped it (as the retarget formula does).
func FromBigInt(n *big.Int) Digest {
	s := n.Text(16)
	if len(s) > HexLen {
		s = s[len(s)-HexLen:]
	}
	return Digest(strings.Repeat("0", HexLen-len(s)) + s)
}

// Preimage renders the exact canonical concatenation a block hashes:
// index || prev_hash || timestamp || data || nonce || target, with no
// separators and base-10 integers. This format is preserved verbatim
// from the reference implementation for wire interoperability — see
// SPEC_FULL.md §11.1.
func Preimage(index int64, prevHash string, timestamp int64, data string, nonce uint64, target string) []byte {
	return []byte(fmt.Sprintf("%d%s%d%s%d%s", index, prevHash, timestamp, data, nonce, target))
}
