package chordctl

import (
	"context"
	"fmt"
	"time"

	"chordring/internal/chordid"
	"chordring/internal/wire"
)

// NodeView mirrors wire.NodeView with addresses rendered as dialable
// strings (empty when absent) instead of the wire Addr shape.
type NodeView struct {
	Hash            chordid.Hash
	SuccessorAddr   string
	PredecessorAddr string
}

func addrString(a wire.Addr) string {
	if a.Host == "" && a.Port == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

func decodeNodeView(sp chordid.Space, env wire.Envelope) (NodeView, error) {
	v, err := wire.DecodeNodeView(sp.HashLen, env.Payload)
	if err != nil {
		return NodeView{}, err
	}
	hash, err := sp.FromBytes(v.NodeHash)
	if err != nil {
		return NodeView{}, err
	}
	return NodeView{
		Hash:            hash,
		SuccessorAddr:   addrString(v.SuccessorAddr),
		PredecessorAddr: addrString(v.PredecessorAddr),
	}, nil
}

// Info sends INFO_REQ and returns the node's self/successor/predecessor
// view without mutating its state (unlike NOTIFY_REQ).
func Info(ctx context.Context, c *Client, sp chordid.Space) (NodeView, time.Duration, error) {
	start := time.Now()
	env, err := c.request(ctx, wire.TypeInfoReq, nil)
	if err != nil {
		return NodeView{}, time.Since(start), err
	}
	v, err := decodeNodeView(sp, env)
	return v, time.Since(start), err
}

// Ping sends PING and waits for PONG, returning the round-trip latency.
func Ping(ctx context.Context, c *Client) (time.Duration, error) {
	start := time.Now()
	_, err := c.request(ctx, wire.TypePing, nil)
	return time.Since(start), err
}

// Find resolves target's successor by issuing FIND_SUCCESSOR_REQ with a
// full hop budget (the same bound chordnode.FindSuccessor uses for its
// own outbound hops), so the reply already reflects the whole multi-hop
// walk rather than a single local step.
func Find(ctx context.Context, c *Client, sp chordid.Space, target chordid.Hash) (chordid.Hash, string, time.Duration, error) {
	start := time.Now()
	hops := sp.Bits
	if hops > 255 {
		hops = 255
	}
	payload := wire.EncodeFindSuccessorReq(wire.FindSuccessorReq{
		Target:        target.Bytes(),
		HopsRemaining: uint8(hops),
	})
	env, err := c.request(ctx, wire.TypeFindSuccessorReq, payload)
	if err != nil {
		return chordid.Hash{}, "", time.Since(start), err
	}
	resp, err := wire.DecodeFindSuccessorResp(sp.HashLen, env.Payload)
	if err != nil {
		return chordid.Hash{}, "", time.Since(start), err
	}
	hash, err := sp.FromBytes(resp.NodeHash)
	if err != nil {
		return chordid.Hash{}, "", time.Since(start), err
	}
	return hash, addrString(resp.ListenAddr), time.Since(start), nil
}

// FingerEntry is one row of a Fingers dump: the arc start this slot is
// responsible for, and the node currently resolved as its owner.
type FingerEntry struct {
	Start      chordid.Hash
	NodeHash   chordid.Hash
	ListenAddr string
}

// Fingers reconstructs up to count finger-table rows for the connected
// node by resolving, for each i, FIND_SUCCESSOR_REQ(self.hash + 2^i) —
// the same query the node's own fix_fingers() issues against itself,
// run here from the outside since the wire protocol has no bulk
// finger-table dump message, only point queries. self is
// the node's own hash, from a prior Info call.
func Fingers(ctx context.Context, c *Client, sp chordid.Space, self chordid.Hash, count int) ([]FingerEntry, error) {
	if count > sp.Bits {
		count = sp.Bits
	}
	out := make([]FingerEntry, 0, count)
	for i := 0; i < count; i++ {
		start := self.AddPow2(sp, i)
		hash, addr, _, err := Find(ctx, c, sp, start)
		if err != nil {
			return out, fmt.Errorf("chordctl: finger %d: %w", i, err)
		}
		out = append(out, FingerEntry{Start: start, NodeHash: hash, ListenAddr: addr})
	}
	return out, nil
}
