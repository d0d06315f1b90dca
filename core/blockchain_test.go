package core

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"chainnode/digest"
)

func TestNewBlockchain_Genesis(t *testing.T) {
	bc := NewBlockchain()
	assert.Equal(t, 1, bc.Length())
	assert.EqualValues(t, 0, bc.Tip().Index)
	assert.Equal(t, digest.GenesisSentinel, bc.Tip().PrevHash)
	assert.Equal(t, GenesisData, bc.Tip().Data)
	assert.True(t, bc.IsValidChain())
}

func TestBlockchain_MineTen(t *testing.T) {
	bc := NewBlockchain()
	ts := GenesisTimestamp
	for i := 0; i < 10; i++ {
		ts++
		ok := bc.Mine("a", ts)
		assert.True(t, ok)
	}
	assert.Equal(t, 11, bc.Length())
	assert.True(t, bc.ValidateRange(0, 10))
	assert.EqualValues(t, 10, bc.Tip().Index)
}

func TestBlockchain_RejectNonAdjacent(t *testing.T) {
	bc := NewBlockchain()
	for i := 0; i < 3; i++ {
		assert.True(t, bc.Mine("a", GenesisTimestamp+int64(i)+1))
	}
	assert.Equal(t, 4, bc.Length())

	bogus := &Block{
		Index:     5,
		PrevHash:  string(bc.Tip().Hash),
		Timestamp: GenesisTimestamp + 100,
		Data:      "x",
		Nonce:     0,
		Target:    digest.InitialTarget,
	}
	bogus.Hash = calculateHash(bogus.Index, bogus.PrevHash, bogus.Timestamp, bogus.Data, bogus.Nonce, bogus.Target)

	ok := bc.AddBlock(bogus)
	assert.False(t, ok)
	assert.Equal(t, 4, bc.Length())
}

func mineChain(t *testing.T, n int) *Blockchain {
	t.Helper()
	bc := NewBlockchain()
	ts := GenesisTimestamp
	for i := 0; i < n; i++ {
		ts++
		if !bc.Mine("payload", ts) {
			t.Fatalf("mine failed at block %d", i)
		}
	}
	return bc
}

func TestBlockchain_ReplaceLongestWins(t *testing.T) {
	a := mineChain(t, 5) // length 6
	b := mineChain(t, 7) // length 8

	assert.True(t, a.Replace(b))
	assert.Equal(t, b.Length(), a.Length())
	assert.Equal(t, b.Tip().Hash, a.Tip().Hash)

	assert.False(t, b.Replace(a))
}

func TestBlockchain_ReplaceEqualLengthTie(t *testing.T) {
	a := mineChain(t, 6) // length 7
	b := mineChain(t, 6) // length 7

	assert.False(t, a.Replace(b))
	assert.False(t, b.Replace(a))
}

func TestBlockchain_TamperDetection(t *testing.T) {
	bc := mineChain(t, 5)
	bc.Blocks[3].Hash = digest.Digest("f" + string(bc.Blocks[3].Hash)[1:])

	assert.False(t, bc.IsValidChain())
}

func TestBlockchain_RetargetStepAfterTenBlocks(t *testing.T) {
	bc := NewBlockchain()
	initial := bc.Tip().Target

	ts := GenesisTimestamp
	for i := 0; i < 9; i++ {
		ts++
		assert.True(t, bc.Mine("a", ts))
		// Target is reused for every block before the 10th retarget window.
		assert.Equal(t, initial, bc.Tip().Target)
	}

	ts++
	assert.True(t, bc.Mine("a", ts))
	assert.Equal(t, 11, bc.Length())

	newTarget := bc.Tip().Target
	assert.NotEqual(t, initial, newTarget, "the 11th block should have triggered a retarget")

	// Ratio must stay within the bounded adjustment window, modulo the
	// same integer-division truncation the implementation performs.
	ratioNum := new(big.Int).Mul(newTarget.Int(), big.NewInt(RetargetMaxRatio))
	assert.True(t, ratioNum.Cmp(initial.Int()) >= 0, "retarget decreased difficulty beyond the max ratio")
	maxAllowed := new(big.Int).Mul(initial.Int(), big.NewInt(RetargetMaxRatio))
	assert.True(t, newTarget.Int().Cmp(maxAllowed) <= 0, "retarget increased difficulty beyond the max ratio")
}

func TestBlockchain_CustomRetargetParamsOverrideDefaults(t *testing.T) {
	bc := NewBlockchainWithParams(DefaultInterval, 3, RetargetMaxRatio)
	initial := bc.Tip().Target

	ts := GenesisTimestamp
	for i := 0; i < 2; i++ {
		ts++
		assert.True(t, bc.Mine("a", ts))
		assert.Equal(t, initial, bc.Tip().Target)
	}

	// A 4-block chain with RetargetWindow=3 retargets on block 3, unlike
	// the package default of 10.
	ts++
	assert.True(t, bc.Mine("a", ts))
	assert.NotEqual(t, initial, bc.Tip().Target)
}

func TestBlockchain_ZeroRetargetParamsFallBackToPackageDefaults(t *testing.T) {
	bc := &Blockchain{Blocks: []*Block{mineGenesis()}, Interval: DefaultInterval}
	assert.EqualValues(t, RetargetWindow, bc.retargetWindow())
	assert.EqualValues(t, RetargetMaxRatio, bc.retargetMaxRatio())
}
