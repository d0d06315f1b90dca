package network

import (
	"bufio"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	libp2pnetwork "github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"github.com/rs/zerolog"

	"chainnode/chainlog"
	"chainnode/config"
	"chainnode/core"
	"chainnode/digest"
)

// Node owns the Chain and Mempool behind a single mutex and schedules
// mining, sync, and peer-table refresh — spec.md §4.3's orchestrator,
// generalizing the teacher's StartNode function into a long-lived type
// with an explicit Stop.
//
// Spec.md §5 calls for a single-threaded event loop serialising all
// chain mutation; this is the idiomatic Go substitution it explicitly
// permits: several goroutines (stream handlers, timers, mine loop) all
// funnel chain mutation through chainMu instead of a single goroutine.
type Node struct {
	cfg   config.Config
	mine  bool
	store core.SnapshotStore

	host    host.Host
	dht     *dht.IpfsDHT
	overlay Overlay

	chainMu sync.Mutex
	chain   *core.Blockchain

	mempool *core.Mempool
	miner   *core.Miner

	logNode     zerolog.Logger
	logMiner    zerolog.Logger
	logProtocol zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNode builds a Node ready to Listen. store may be nil, in which case
// the chain is purely in-memory (spec.md §1's default).
func NewNode(cfg config.Config, mine bool, store core.SnapshotStore) *Node {
	return &Node{
		cfg:         cfg,
		mine:        mine,
		store:       store,
		mempool:     core.NewMempool(cfg.DefaultMempoolPayload),
		miner:       core.NewMiner(cfg.MineWorkers),
		logNode:     chainlog.New(chainlog.Node),
		logMiner:    chainlog.New(chainlog.Miner),
		logProtocol: chainlog.New(chainlog.Protocol),
	}
}

// Listen binds the node's libp2p host on iface:port, restores a
// persisted chain if a store was configured (falling back to a freshly
// mined genesis), and starts the sync, refresh, and (if enabled) mine
// loops. It is idempotent across a prior Stop.
func (n *Node) Listen(ctx context.Context, iface string, port int) error {
	if n.store != nil {
		if chain, err := n.store.Load(); err == nil {
			n.chain = chain
		}
	}
	if n.chain == nil {
		n.chain = core.NewBlockchainWithParams(n.cfg.Interval, n.cfg.RetargetWindow, n.cfg.RetargetMaxRatio)
	}

	priv, _, err := crypto.GenerateKeyPair(crypto.Ed25519, -1)
	if err != nil {
		return fmt.Errorf("network: generate identity: %w", err)
	}

	h, err := libp2p.New(
		libp2p.ListenAddrStrings(fmt.Sprintf("/ip4/%s/tcp/%d", iface, port)),
		libp2p.Identity(priv),
	)
	if err != nil {
		return fmt.Errorf("network: create host: %w", err)
	}
	n.host = h
	h.SetStreamHandler(protocolID, n.handleStream)

	kadDHT, err := dht.New(ctx, h, dht.Mode(dht.ModeServer), dht.BucketSize(n.cfg.Ksize))
	if err != nil {
		return fmt.Errorf("network: create dht: %w", err)
	}
	n.dht = kadDHT
	n.overlay = NewDHTOverlay(h, kadDHT)

	loopCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	n.wg.Add(2)
	go n.syncLoop(loopCtx)
	go n.refreshLoop(loopCtx)

	if n.mine {
		n.wg.Add(1)
		go n.mineLoop(loopCtx)
	}

	n.logNode.Info().Str("addr", fmt.Sprintf("%s:%d", iface, port)).Msg("node listening")
	return nil
}

// Stop cancels all scheduled work, aborts any in-flight mining search,
// and closes the listening host. It blocks until every loop goroutine
// has returned.
func (n *Node) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	n.miner.Cancel()
	if n.host != nil {
		_ = n.host.Close()
	}
	n.wg.Wait()
	n.logNode.Info().Msg("node stopped")
}

// Bootstrap joins the overlay via known seed multiaddrs.
func (n *Node) Bootstrap(ctx context.Context, seeds []string) error {
	infos := make([]peer.AddrInfo, 0, len(seeds))
	for _, s := range seeds {
		addr, err := multiaddr.NewMultiaddr(s)
		if err != nil {
			return fmt.Errorf("network: parse bootstrap addr %q: %w", s, err)
		}
		info, err := peer.AddrInfoFromP2pAddr(addr)
		if err != nil {
			return fmt.Errorf("network: resolve bootstrap addr %q: %w", s, err)
		}
		infos = append(infos, *info)
	}
	return n.overlay.Bootstrap(ctx, infos)
}

// tipSnapshot holds the fields mineLoop needs to run a search without
// holding the chain lock for the search's duration.
type tipSnapshot struct {
	index     int64
	prevHash  string
	target    string
	data      string
}

func (n *Node) snapshotForMining() tipSnapshot {
	n.chainMu.Lock()
	defer n.chainMu.Unlock()

	tip := n.chain.Tip()
	return tipSnapshot{
		index:    tip.Index + 1,
		prevHash: string(tip.Hash),
		target:   string(n.chain.NextTarget()),
		data:     n.mempool.Snapshot(),
	}
}

// mineLoop repeatedly snapshots the mempool and tip, runs a cancellable
// search, and either broadcasts the result or, if the search was
// preempted by a concurrently accepted block, immediately retries
// against the new tip. Per spec.md §4.3/§9.
func (n *Node) mineLoop(ctx context.Context) {
	defer n.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		snap := n.snapshotForMining()
		timestamp := time.Now().Unix()

		block, ok := n.miner.Search(ctx, snap.index, snap.prevHash, timestamp, snap.data, digest.Digest(snap.target))
		if !ok {
			if ctx.Err() != nil {
				return
			}
			// Preempted by a concurrently accepted block; retry against
			// the fresh tip with no backoff.
			continue
		}

		if n.tryAppend(block) {
			n.logMiner.Info().Int64("index", block.Index).Msg("mined block")
			_ = n.Broadcast(ctx, newReceiveLatestBlockMessage(block))
			continue
		}

		// The tip advanced between the snapshot and the append attempt:
		// the mined block is stale. Ask peers for the current chain and
		// back off before retrying.
		n.logMiner.Debug().Msg("mined block went stale before append")
		_ = n.Broadcast(ctx, newRequestBlockchainMessage())
		select {
		case <-time.After(n.cfg.MineRetryBackoff):
		case <-ctx.Done():
			return
		}
	}
}

// tryAppend appends block under the chain lock, cancels any in-flight
// mining search (it's now racing a stale tip), and persists the chain
// if a store is configured. Returns whether the append succeeded.
//
// Persistence runs outside the lock, against a cloned block slice taken
// while still holding it: core.Blockchain.Blocks is mutated in place by
// AddBlock/Replace from other goroutines (mineLoop, concurrent stream
// handlers), so handing the live slice to a file-I/O call after
// unlocking would race with a concurrent append.
func (n *Node) tryAppend(block *core.Block) bool {
	n.chainMu.Lock()
	ok := n.chain.AddBlock(block)
	var snapshot *core.Blockchain
	if ok {
		snapshot = cloneChain(n.chain)
	}
	n.chainMu.Unlock()

	if ok {
		n.miner.Cancel()
		n.persist(snapshot)
	}
	return ok
}

// tryReplace swaps in other if it is a strictly longer valid chain. See
// tryAppend for why persistence uses a cloned snapshot taken under the
// lock rather than the live chain.
func (n *Node) tryReplace(other *core.Blockchain) bool {
	n.chainMu.Lock()
	ok := n.chain.Replace(other)
	var snapshot *core.Blockchain
	if ok {
		snapshot = cloneChain(n.chain)
	}
	n.chainMu.Unlock()

	if ok {
		n.miner.Cancel()
		n.persist(snapshot)
	}
	return ok
}

// cloneChain copies bc's block slice into a fresh backing array so the
// result is safe to read after the caller's lock is released. Blocks
// themselves are never mutated after construction, so copying the
// pointers (not deep-copying each Block) is sufficient.
func cloneChain(bc *core.Blockchain) *core.Blockchain {
	blocks := make([]*core.Block, len(bc.Blocks))
	copy(blocks, bc.Blocks)
	return &core.Blockchain{
		Blocks:           blocks,
		Interval:         bc.Interval,
		RetargetWindow:   bc.RetargetWindow,
		RetargetMaxRatio: bc.RetargetMaxRatio,
	}
}

func (n *Node) persist(bc *core.Blockchain) {
	if n.store == nil {
		return
	}
	if err := n.store.Save(bc); err != nil {
		n.logNode.Warn().Err(err).Msg("failed to persist chain snapshot")
	}
}

// syncLoop broadcasts REQUEST_LATEST_BLOCK every SyncTickPeriod.
func (n *Node) syncLoop(ctx context.Context) {
	defer n.wg.Done()

	ticker := time.NewTicker(n.cfg.SyncTickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = n.Broadcast(ctx, newRequestLatestBlockMessage())
		}
	}
}

// refreshLoop runs refreshRandomThird every RefreshTickPeriod. That
// calls Overlay.RefreshBucket once per started third of the routing
// table's peer count (at least once), each with a random ID below that
// count; the DHT overlay refreshes its whole table on every such call,
// so no individual k-bucket is selected.
func (n *Node) refreshLoop(ctx context.Context) {
	defer n.wg.Done()

	ticker := time.NewTicker(n.cfg.RefreshTickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.refreshRandomThird(ctx)
		}
	}
}

func (n *Node) refreshRandomThird(ctx context.Context) {
	if n.dht == nil {
		return
	}
	buckets := n.dht.RoutingTable().Size()
	count := (buckets + 2) / 3
	if count < 1 {
		count = 1
	}
	for i := 0; i < count; i++ {
		if err := n.overlay.RefreshBucket(ctx, randomBucketID(buckets)); err != nil {
			n.logNode.Debug().Err(err).Msg("bucket refresh failed")
		}
	}
}

// Broadcast sends msg to up to Alpha neighbours found via the overlay,
// encoding it separately onto each peer's stream. Peer connect
// failures are logged and swallowed: broadcasts are best-effort, per spec.md §5.
func (n *Node) Broadcast(ctx context.Context, msg Message) error {
	if n.host == nil || n.overlay == nil {
		return fmt.Errorf("network: node not listening")
	}

	peers := n.overlay.FindNeighbors(n.host.ID(), n.cfg.Alpha)
	for _, p := range peers {
		go n.sendTo(ctx, p, msg)
	}
	return nil
}

func (n *Node) sendTo(ctx context.Context, p peer.AddrInfo, msg Message) {
	stream, err := n.host.NewStream(ctx, p.ID, protocolID)
	if err != nil {
		n.logProtocol.Debug().Err(err).Str("peer", p.ID.String()).Msg("connect failed, dropping broadcast")
		return
	}
	defer stream.Close()

	if err := encodeMessage(stream, msg); err != nil {
		n.logProtocol.Debug().Err(err).Msg("failed to send message")
	}
}

// handleStream is the registered libp2p stream handler: one message per
// connection, per spec.md §4.4/§6.2.
func (n *Node) handleStream(stream libp2pnetwork.Stream) {
	go n.serveStream(stream)
}

func (n *Node) serveStream(stream libp2pnetwork.Stream) {
	defer stream.Close()

	traceID := uuid.NewString()
	log := n.logProtocol.With().Str("trace_id", traceID).Str("peer", stream.Conn().RemotePeer().String()).Logger()

	r := bufio.NewReader(stream)
	msg, err := decodeMessage(r)
	if err != nil {
		log.Debug().Err(err).Msg("dropping undecodable message")
		return
	}
	log.Debug().Int("type", int(msg.Type)).Msg("handling inbound message")

	switch msg.Type {
	case RequestLatestBlock:
		n.handleRequestLatestBlock(stream)
	case ReceiveLatestBlock:
		n.handleReceiveLatestBlock(msg)
	case RequestBlockchain:
		n.handleRequestBlockchain(stream)
	case ReceiveBlockchain:
		n.handleReceiveBlockchain(msg)
	default:
		log.Debug().Int("type", int(msg.Type)).Msg("unknown message type, dropping")
	}
}

func (n *Node) handleRequestLatestBlock(stream libp2pnetwork.Stream) {
	n.chainMu.Lock()
	tip := n.chain.Tip()
	n.chainMu.Unlock()

	if err := encodeMessage(stream, newReceiveLatestBlockMessage(tip)); err != nil {
		n.logProtocol.Debug().Err(err).Msg("failed to reply with latest block")
	}
}

func (n *Node) handleReceiveLatestBlock(msg Message) {
	if msg.Block == nil {
		return
	}
	block, err := wireToBlock(*msg.Block)
	if err != nil {
		n.logProtocol.Debug().Err(err).Msg("dropping invalid block")
		return
	}

	if n.tryAppend(block) {
		_ = n.Broadcast(context.Background(), newReceiveLatestBlockMessage(block))
		return
	}

	n.chainMu.Lock()
	behind := block.Index > n.chain.Tip().Index
	n.chainMu.Unlock()

	if behind {
		_ = n.Broadcast(context.Background(), newRequestBlockchainMessage())
	}
}

func (n *Node) handleRequestBlockchain(stream libp2pnetwork.Stream) {
	// chainToWire copies every block's fields into plain value types, so
	// building the message under the lock (rather than just copying the
	// *core.Blockchain pointer and converting after unlocking) keeps the
	// I/O below outside the critical section while still reading Blocks
	// before a concurrent AddBlock/Replace can mutate it.
	n.chainMu.Lock()
	msg := newReceiveBlockchainMessage(n.chain)
	n.chainMu.Unlock()

	if err := encodeMessage(stream, msg); err != nil {
		n.logProtocol.Debug().Err(err).Msg("failed to reply with blockchain")
	}
}

func (n *Node) handleReceiveBlockchain(msg Message) {
	if msg.Blockchain == nil {
		return
	}
	chain, err := wireToChain(*msg.Blockchain)
	if err != nil {
		n.logProtocol.Debug().Err(err).Msg("dropping invalid chain")
		return
	}
	n.tryReplace(chain)
}
