package chordnode

import (
	"context"
	"errors"
	"fmt"

	"chordring/internal/correlator"
	"chordring/internal/logger"
	"chordring/internal/peer"
	"chordring/internal/wire"
)

// Join attaches this node to an existing ring through entryAddr. Its
// preconditions — at most one real node in the table and no predecessor
// yet — hold only for a node that
// hasn't yet joined any ring; a second Join call on an already-joined
// node is a programmer error, distinct from a JOIN_REQ the state machine
// might still legitimately answer from any other node at any time.
func (n *LocalNode) Join(ctx context.Context, entryAddr string) error {
	n.mu.Lock()
	already := n.rt.RealLength() > 1 || n.predecessor != nil
	n.mu.Unlock()
	if already {
		return ErrAlreadyJoined
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.JoinTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "chordnode.join")
	defer span.End()

	entryRN, err := n.dial(ctx, entryAddr)
	if err != nil {
		return fmt.Errorf("chordnode: join: dial entry %s: %w", entryAddr, err)
	}

	payload := wire.EncodeJoinReq(wire.JoinReq{ListenAddr: toWireAddr(n.listenAddr)})
	env, err := entryRN.Correlator().Request(ctx, wire.TypeJoinReq, payload)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, correlator.ErrTimeout) {
			return fmt.Errorf("%w: %v", ErrJoinTimeout, err)
		}
		return fmt.Errorf("chordnode: join: %w", err)
	}
	// The entry now knows our listener address (from JOIN_REQ's payload)
	// and has had a chance to adopt us as a peer; no separate identity
	// round trip is needed on this connection again.
	n.mu.Lock()
	n.introduced[entryRN] = true
	n.mu.Unlock()

	resp, err := wire.DecodeJoinResp(n.space.HashLen, env.Payload)
	if err != nil {
		return fmt.Errorf("chordnode: join: decode JOIN_RESP: %w", err)
	}
	succHash, err := n.space.FromBytes(resp.NodeHash)
	if err != nil {
		return fmt.Errorf("chordnode: join: %w", err)
	}
	succAddr := fromWireAddr(resp.ListenAddr)
	if succAddr == "" {
		return fmt.Errorf("%w: JOIN_RESP named no successor address", ErrJoinRefused)
	}

	var succRN *peer.RemoteNode
	if succAddr == entryAddr {
		succRN = entryRN
	} else {
		succRN, err = n.dial(ctx, succAddr)
		if err != nil {
			return fmt.Errorf("chordnode: join: dial successor %s: %w", succAddr, err)
		}
	}
	succRN.SetHash(succHash)
	succRN.SetListenAddr(succAddr)

	n.mu.Lock()
	n.rt.Insert(succRN)
	n.mu.Unlock()

	n.logger.Info("joined ring",
		logger.F("entry", entryAddr),
		logger.FHash("successor", succHash),
		logger.F("successor_addr", succAddr),
	)
	return nil
}
