package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"chainnode/digest"
)

// easyTarget accepts almost any hash, keeping these tests fast without
// weakening what they actually exercise: the search/cancellation
// machinery, not BLAKE2s's real difficulty curve.
const easyTarget digest.Digest = "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"

func TestMiner_SearchFindsValidBlock(t *testing.T) {
	m := NewMiner(4)
	ctx := context.Background()

	block, ok := m.Search(ctx, 1, digest.GenesisSentinel, GenesisTimestamp, "payload", easyTarget)
	assert.True(t, ok)
	assert.NotNil(t, block)
	assert.True(t, block.IsValid())
	assert.True(t, block.Hash.LessOrEqual(easyTarget))
}

func TestMiner_SearchRespectsContextCancellation(t *testing.T) {
	m := NewMiner(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	block, ok := m.Search(ctx, 1, digest.GenesisSentinel, GenesisTimestamp, "payload", digest.InitialTarget)
	assert.False(t, ok)
	assert.Nil(t, block)
}

func TestMiner_CancelStopsInFlightSearch(t *testing.T) {
	m := NewMiner(2)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// InitialTarget is hard enough that this search would otherwise
		// run far longer than Cancel takes to land.
		m.Search(ctx, 1, digest.GenesisSentinel, GenesisTimestamp, "payload", digest.InitialTarget)
	}()

	time.Sleep(20 * time.Millisecond)
	m.Cancel()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Search did not return promptly after Cancel")
	}
}
