package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewMerkleTree_SingleLeaf(t *testing.T) {
	tree := NewMerkleTree([][]byte{[]byte("only")})
	assert.Equal(t, tree.Leaves[0].Hash, tree.Root.Hash)
}

func TestNewMerkleTree_EvenLeaves(t *testing.T) {
	entries := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")}
	tree := NewMerkleTree(entries)
	assert.Len(t, tree.Leaves, 4)
	assert.NotEqual(t, "", string(tree.Root.Hash))
}

func TestNewMerkleTree_OddLeavesDuplicatesLast(t *testing.T) {
	entries := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	tree := NewMerkleTree(entries)

	withDuplicate := NewMerkleTree([][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("c")})
	assert.Equal(t, withDuplicate.Root.Hash, tree.Root.Hash)
}

func TestMerkleTree_ProofValidatesForEveryLeaf(t *testing.T) {
	entries := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d"), []byte("e")}
	tree := NewMerkleTree(entries)

	for i, entry := range entries {
		proof := tree.GenerateMerkleProof(i)
		assert.True(t, ValidateMerkleProof(entry, tree.Root.Hash, proof), "leaf %d should validate", i)
	}
}

func TestMerkleTree_ProofRejectsTamperedEntry(t *testing.T) {
	entries := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")}
	tree := NewMerkleTree(entries)

	proof := tree.GenerateMerkleProof(1)
	assert.False(t, ValidateMerkleProof([]byte("tampered"), tree.Root.Hash, proof))
}

func TestMerkleTree_ProofRejectsWrongRoot(t *testing.T) {
	entries := [][]byte{[]byte("a"), []byte("b")}
	tree := NewMerkleTree(entries)
	other := NewMerkleTree([][]byte{[]byte("x"), []byte("y")})

	proof := tree.GenerateMerkleProof(0)
	assert.False(t, ValidateMerkleProof(entries[0], other.Root.Hash, proof))
}
