package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"chainnode/digest"
)

func TestCalculateHash_Deterministic(t *testing.T) {
	h1 := calculateHash(1, "abc", 1000, "hello", 7, digest.InitialTarget)
	h2 := calculateHash(1, "abc", 1000, "hello", 7, digest.InitialTarget)
	assert.Equal(t, h1, h2)

	h3 := calculateHash(1, "abc", 1000, "hello", 8, digest.InitialTarget)
	assert.NotEqual(t, h1, h3)
}

func TestBlock_IsValid(t *testing.T) {
	bc := NewBlockchain()
	next := bc.GenerateNext("payload", GenesisTimestamp+10)
	assert.True(t, next.IsValid())

	tampered := *next
	tampered.Data = "tampered"
	assert.False(t, tampered.IsValid())
}

func TestBlock_SerializeRoundTrip(t *testing.T) {
	bc := NewBlockchain()
	next := bc.GenerateNext("payload", GenesisTimestamp+10)

	m := next.Serialize()
	restored, err := DeserializeBlock(m)
	assert.NoError(t, err)
	assert.Equal(t, next.Hash, restored.Hash)
	assert.Equal(t, next.Index, restored.Index)
	assert.Equal(t, next.Nonce, restored.Nonce)
}

func TestDeserializeBlock_RejectsTamperedHash(t *testing.T) {
	bc := NewBlockchain()
	next := bc.GenerateNext("payload", GenesisTimestamp+10)

	m := next.Serialize()
	hash := m["hash"].(string)
	m["hash"] = "f" + hash[1:]

	_, err := DeserializeBlock(m)
	assert.Error(t, err)
}
