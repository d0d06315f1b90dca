package core

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkedFileStore_SaveLoadRoundTrip(t *testing.T) {
	bc := mineChain(t, 3)
	path := filepath.Join(t.TempDir(), "chain.json")
	store := &ChunkedFileStore{Path: path, ChunkSize: 8} // tiny chunks to exercise the loop

	assert.NoError(t, store.Save(bc))

	loaded, err := store.Load()
	assert.NoError(t, err)
	assert.Equal(t, bc.Length(), loaded.Length())
	assert.Equal(t, bc.Tip().Hash, loaded.Tip().Hash)
	assert.True(t, loaded.IsValidChain())
}

func TestChunkedFileStore_SaveLoadRoundTripsRetargetParams(t *testing.T) {
	bc := NewBlockchainWithParams(DefaultInterval, 3, 2)
	path := filepath.Join(t.TempDir(), "chain.json")
	store := &ChunkedFileStore{Path: path}

	assert.NoError(t, store.Save(bc))

	loaded, err := store.Load()
	assert.NoError(t, err)
	assert.EqualValues(t, 3, loaded.RetargetWindow)
	assert.EqualValues(t, 2, loaded.RetargetMaxRatio)
}

func TestChunkedFileStore_LoadDefaultsZeroRetargetParams(t *testing.T) {
	// A snapshot predating the retarget fields (or saved with a zero
	// Blockchain literal) must load with the package defaults, not
	// zero values.
	bc := &Blockchain{Blocks: []*Block{mineGenesis()}, Interval: DefaultInterval}
	path := filepath.Join(t.TempDir(), "chain.json")
	store := &ChunkedFileStore{Path: path}

	assert.NoError(t, store.Save(bc))

	loaded, err := store.Load()
	assert.NoError(t, err)
	assert.EqualValues(t, RetargetWindow, loaded.RetargetWindow)
	assert.EqualValues(t, RetargetMaxRatio, loaded.RetargetMaxRatio)
}

func TestChunkedFileStore_LoadMissingFileErrors(t *testing.T) {
	store := &ChunkedFileStore{Path: filepath.Join(t.TempDir(), "missing.json")}
	_, err := store.Load()
	assert.Error(t, err)
}

func TestChunkedFileStore_DefaultChunkSize(t *testing.T) {
	store := &ChunkedFileStore{}
	assert.Equal(t, defaultChunkSize, store.chunkSize())

	store.ChunkSize = 1024
	assert.Equal(t, 1024, store.chunkSize())
}
