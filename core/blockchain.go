package core

import (
	"math/big"

	"chainnode/digest"
)

// DefaultInterval is the expected number of seconds between blocks.
const DefaultInterval = 5

// RetargetWindow is the number of blocks between difficulty
// retargets (N in spec.md §4.2).
const RetargetWindow = 10

// RetargetMaxRatio bounds how much the target may change in a single
// retarget step, in either direction (R in spec.md §4.2).
const RetargetMaxRatio = 4

// GenesisTimestamp is a fixed, network-wide Unix timestamp used for the
// genesis block. Using wall-clock time here (as the reference
// implementation does) would give every independently started node a
// different genesis hash, and they would never converge; spec.md §9
// calls this a correctness bug, not a behavior to port. Any value works
// as long as every node agrees on it.
const GenesisTimestamp int64 = 1700000000

// GenesisData is the fixed payload of the genesis block.
const GenesisData = "Genesis Block"

// Blockchain is a non-empty, ordered sequence of blocks linked by
// prev_hash. It is mutated only by AddBlock (extension) or Replace
// (wholesale substitution) — blocks are never edited or removed
// individually.
type Blockchain struct {
	Blocks   []*Block
	Interval int64

	// RetargetWindow and RetargetMaxRatio parameterize retarget (spec.md
	// §4.2's N and R). Zero-valued here (e.g. a chain rebuilt from a
	// wire message predating these fields, or an empty struct literal)
	// falls back to the package constants via their accessor methods,
	// so a caller that never sets them gets the original fixed behavior.
	RetargetWindow   int64
	RetargetMaxRatio int64
}

// NewBlockchain builds a chain containing only a freshly mined genesis
// block, using the default block interval and retarget parameters.
func NewBlockchain() *Blockchain {
	return NewBlockchainWithParams(DefaultInterval, RetargetWindow, RetargetMaxRatio)
}

// NewBlockchainWithInterval is NewBlockchain with a caller-supplied
// target block interval, for callers (such as network.Node) whose
// interval comes from configuration rather than the spec's default. The
// retarget window and ratio remain the package defaults.
func NewBlockchainWithInterval(interval int64) *Blockchain {
	return NewBlockchainWithParams(interval, RetargetWindow, RetargetMaxRatio)
}

// NewBlockchainWithParams is NewBlockchain with caller-supplied interval
// and retarget parameters, for callers (such as network.Node) whose
// configuration may override spec.md §4.2's defaults. A zero
// retargetWindow or retargetMaxRatio falls back to the package default.
func NewBlockchainWithParams(interval, retargetWindow, retargetMaxRatio int64) *Blockchain {
	return &Blockchain{
		Blocks:           []*Block{mineGenesis()},
		Interval:         interval,
		RetargetWindow:   retargetWindow,
		RetargetMaxRatio: retargetMaxRatio,
	}
}

// retargetWindow returns bc.RetargetWindow, or the package default if
// unset.
func (bc *Blockchain) retargetWindow() int64 {
	if bc.RetargetWindow == 0 {
		return RetargetWindow
	}
	return bc.RetargetWindow
}

// retargetMaxRatio returns bc.RetargetMaxRatio, or the package default
// if unset.
func (bc *Blockchain) retargetMaxRatio() int64 {
	if bc.RetargetMaxRatio == 0 {
		return RetargetMaxRatio
	}
	return bc.RetargetMaxRatio
}

// mineGenesis searches for the nonce that satisfies InitialTarget
// against the fixed genesis fields.
func mineGenesis() *Block {
	var nonce uint64
	for {
		hash := calculateHash(0, digest.GenesisSentinel, GenesisTimestamp, GenesisData, nonce, digest.InitialTarget)
		if validateDifficulty(hash, digest.InitialTarget) {
			return newBlock(0, digest.GenesisSentinel, GenesisTimestamp, GenesisData, nonce, digest.InitialTarget)
		}
		nonce++
	}
}

// Tip returns the chain's highest-index block.
func (bc *Blockchain) Tip() *Block {
	return bc.Blocks[len(bc.Blocks)-1]
}

// Length returns the number of blocks in the chain.
func (bc *Blockchain) Length() int {
	return len(bc.Blocks)
}

// AreAdjacent reports whether block can directly extend prev: block's
// validity, index continuity, and hash linkage.
func (bc *Blockchain) AreAdjacent(block, prev *Block) bool {
	return block.IsValid() &&
		block.Index == prev.Index+1 &&
		block.PrevHash == string(prev.Hash)
}

// ValidateRange reports whether every block in [l, r] is individually
// valid and every adjacent pair within it links correctly. Used for
// audits; requires 0 <= l < r < Length().
func (bc *Blockchain) ValidateRange(l, r int) bool {
	if !(0 <= l && l < r && r < bc.Length()) {
		return false
	}
	for i := l; i <= r; i++ {
		if !bc.Blocks[i].IsValid() {
			return false
		}
	}
	for i := l + 1; i <= r; i++ {
		if !bc.AreAdjacent(bc.Blocks[i], bc.Blocks[i-1]) {
			return false
		}
	}
	return true
}

// IsValidChain reports whether the whole chain is internally
// consistent: a valid genesis, and every adjacent pair linked and
// valid.
func (bc *Blockchain) IsValidChain() bool {
	if bc.Length() == 0 {
		return false
	}
	if !bc.Blocks[0].IsValid() || bc.Blocks[0].Index != 0 || bc.Blocks[0].PrevHash != digest.GenesisSentinel {
		return false
	}
	if bc.Length() == 1 {
		return true
	}
	return bc.ValidateRange(0, bc.Length()-1)
}

// AddBlock appends block if it validly extends the current tip. It
// never panics or returns an error: rejection is reported only via the
// boolean return, per spec.md §4.2's "no exceptions" clause.
func (bc *Blockchain) AddBlock(block *Block) bool {
	if !bc.AreAdjacent(block, bc.Tip()) {
		return false
	}
	bc.Blocks = append(bc.Blocks, block)
	return true
}

// Replace substitutes the entire block sequence with other's if other
// is a strictly longer valid chain. Equal-length chains are never
// replaced — ties are broken by local preference, per spec.md §4.2.
func (bc *Blockchain) Replace(other *Blockchain) bool {
	if !other.IsValidChain() || other.Length() <= bc.Length() {
		return false
	}
	bc.Blocks = other.Blocks
	return true
}

// retarget computes the target to use for the next block, per spec.md
// §4.2: reused unchanged except every RetargetWindow blocks, when it is
// recomputed from the actual timespan of the last window, clamped to
// [1/RetargetMaxRatio, RetargetMaxRatio] of the expected timespan.
func (bc *Blockchain) retarget() digest.Digest {
	tip := bc.Tip()
	window := bc.retargetWindow()
	maxRatio := bc.retargetMaxRatio()

	if int64(bc.Length())%window != 0 {
		return tip.Target
	}

	expectedTimespan := big.NewInt(window * bc.Interval)
	windowStart := bc.Blocks[int64(bc.Length())-window]
	actual := tip.Timestamp - windowStart.Timestamp

	maxTimespan := new(big.Int).Mul(expectedTimespan, big.NewInt(maxRatio))

	// The lower bound is tested as actual*maxRatio < expected so that
	// expected/maxRatio is never truncated; below it the target scales
	// by exactly 1/maxRatio.
	clamped := big.NewInt(actual)
	if new(big.Int).Mul(clamped, big.NewInt(maxRatio)).Cmp(expectedTimespan) < 0 {
		return digest.FromBigInt(new(big.Int).Div(tip.Target.Int(), big.NewInt(maxRatio)))
	}
	if clamped.Cmp(maxTimespan) > 0 {
		clamped = maxTimespan
	}

	newTarget := new(big.Int).Mul(tip.Target.Int(), clamped)
	newTarget.Div(newTarget, expectedTimespan)
	return digest.FromBigInt(newTarget)
}

// NextTarget exposes the retarget computation that would apply to the
// next block, without running a search — used by callers (such as a
// cancellable worker-pool miner) that need the target ahead of time to
// take a tip snapshot outside the chain's lock.
func (bc *Blockchain) NextTarget() digest.Digest {
	return bc.retarget()
}

// GenerateNext searches for the next block's nonce sequentially,
// starting from 0, against a timestamp captured once at the start of
// the search and the current retarget result. It does not mutate the
// chain.
func (bc *Blockchain) GenerateNext(data string, timestamp int64) *Block {
	tip := bc.Tip()
	index := tip.Index + 1
	prevHash := string(tip.Hash)
	target := bc.retarget()

	var nonce uint64
	for {
		hash := calculateHash(index, prevHash, timestamp, data, nonce, target)
		if validateDifficulty(hash, target) {
			return newBlock(index, prevHash, timestamp, data, nonce, target)
		}
		nonce++
	}
}

// Mine generates the next block and appends it. It returns false only
// if the tip advanced (via a concurrently accepted peer block) between
// the start of the search and the append attempt.
func (bc *Blockchain) Mine(data string, timestamp int64) bool {
	next := bc.GenerateNext(data, timestamp)
	return bc.AddBlock(next)
}
