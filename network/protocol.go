package network

import (
	"fmt"
	"io"

	"github.com/ugorji/go/codec"

	"chainnode/core"
)

// protocolID names the libp2p stream protocol the node registers its
// handler under, generalizing the teacher's single-constant-protocol
// idiom (originally "blockchain-storage") to this wire format.
const protocolID = "/chain/pow/1.0.0"

// msgpackHandle is shared by every encoder/decoder the package
// constructs; a configured codec.Handle is safe for concurrent use.
var msgpackHandle = &codec.MsgpackHandle{}

// MessageType is the tagged integer identifying a wire message's shape,
// matching spec.md §6.2's wire table exactly.
type MessageType int

const (
	RequestLatestBlock MessageType = 1
	ReceiveLatestBlock MessageType = 2
	RequestBlockchain  MessageType = 3
	ReceiveBlockchain  MessageType = 4
)

// BlockWire is the serialised block map spec.md §6.2 specifies:
// index, prev_hash, timestamp, data, nonce, target, hash.
type BlockWire struct {
	Index     int64  `codec:"index"`
	PrevHash  string `codec:"prev_hash"`
	Timestamp int64  `codec:"timestamp"`
	Data      string `codec:"data"`
	Nonce     uint64 `codec:"nonce"`
	Target    string `codec:"target"`
	Hash      string `codec:"hash"`
}

// BlockchainWire is the RECEIVE_BLOCKCHAIN payload shape: {blocks: [...]}.
type BlockchainWire struct {
	Blocks []BlockWire `codec:"blocks"`
}

// Message is the tagged-map wire message: an integer type field plus
// whichever of the two optional payload fields that type uses.
type Message struct {
	Type       MessageType     `codec:"type"`
	Block      *BlockWire      `codec:"block,omitempty"`
	Blockchain *BlockchainWire `codec:"blockchain,omitempty"`
}

// blockToWire converts a core.Block to its wire representation.
func blockToWire(b *core.Block) BlockWire {
	return BlockWire{
		Index:     b.Index,
		PrevHash:  b.PrevHash,
		Timestamp: b.Timestamp,
		Data:      b.Data,
		Nonce:     b.Nonce,
		Target:    string(b.Target),
		Hash:      string(b.Hash),
	}
}

// wireToBlock reconstructs a core.Block from its wire form, re-verifying
// validity rather than trusting the sender — the same discipline
// core.DeserializeBlock applies on the JSON persistence path.
func wireToBlock(w BlockWire) (*core.Block, error) {
	m := map[string]interface{}{
		"index":     w.Index,
		"prev_hash": w.PrevHash,
		"timestamp": w.Timestamp,
		"data":      w.Data,
		"nonce":     w.Nonce,
		"target":    w.Target,
		"hash":      w.Hash,
	}
	return core.DeserializeBlock(m)
}

func chainToWire(bc *core.Blockchain) BlockchainWire {
	blocks := make([]BlockWire, len(bc.Blocks))
	for i, b := range bc.Blocks {
		blocks[i] = blockToWire(b)
	}
	return BlockchainWire{Blocks: blocks}
}

func wireToChain(w BlockchainWire) (*core.Blockchain, error) {
	blocks := make([]*core.Block, len(w.Blocks))
	for i, bw := range w.Blocks {
		b, err := wireToBlock(bw)
		if err != nil {
			return nil, fmt.Errorf("network: block %d in received chain: %w", i, err)
		}
		blocks[i] = b
	}
	return &core.Blockchain{Blocks: blocks, Interval: core.DefaultInterval}, nil
}

// newRequestLatestBlockMessage builds a REQUEST_LATEST_BLOCK message.
func newRequestLatestBlockMessage() Message {
	return Message{Type: RequestLatestBlock}
}

// newReceiveLatestBlockMessage builds a RECEIVE_LATEST_BLOCK message.
func newReceiveLatestBlockMessage(b *core.Block) Message {
	wire := blockToWire(b)
	return Message{Type: ReceiveLatestBlock, Block: &wire}
}

// newRequestBlockchainMessage builds a REQUEST_BLOCKCHAIN message.
func newRequestBlockchainMessage() Message {
	return Message{Type: RequestBlockchain}
}

// newReceiveBlockchainMessage builds a RECEIVE_BLOCKCHAIN message.
func newReceiveBlockchainMessage(bc *core.Blockchain) Message {
	wire := chainToWire(bc)
	return Message{Type: ReceiveBlockchain, Blockchain: &wire}
}

// encodeMessage writes msg to w using the MessagePack handle, a single
// tagged map per spec.md §6.2.
func encodeMessage(w io.Writer, msg Message) error {
	enc := codec.NewEncoder(w, msgpackHandle)
	if err := enc.Encode(msg); err != nil {
		return fmt.Errorf("network: encode message: %w", err)
	}
	return nil
}

// decodeMessage reads a single tagged-map message from r.
func decodeMessage(r io.Reader) (Message, error) {
	var msg Message
	dec := codec.NewDecoder(r, msgpackHandle)
	if err := dec.Decode(&msg); err != nil {
		return Message{}, fmt.Errorf("network: decode message: %w", err)
	}
	return msg, nil
}
