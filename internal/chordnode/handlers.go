package chordnode

import (
	"context"

	"chordring/internal/chordid"
	"chordring/internal/correlator"
	"chordring/internal/logger"
	"chordring/internal/peer"
	"chordring/internal/ringnode"
	"chordring/internal/wire"
)

// wireHandlers registers every unsolicited-message handler against one
// connection's correlator. Handlers close over rn, the RemoteNode this
// particular connection represents to us, so e.g. the NOTIFY_REQ handler
// always knows which peer sent it without needing the (empty) payload to
// say so.
func (n *LocalNode) wireHandlers(rn *peer.RemoteNode) {
	c := rn.Correlator()
	c.Handle(wire.TypeJoinReq, n.handleJoinReq(rn))
	c.Handle(wire.TypeNotifyReq, n.handleNotifyReq(rn))
	c.Handle(wire.TypeInfoReq, n.handleInfoReq())
	c.Handle(wire.TypePing, n.handlePing())
	c.Handle(wire.TypeFindSuccessorReq, n.handleFindSuccessorReq())
}

// handleJoinReq answers JOIN_REQ, the only message that
// carries the sender's listener address unconditionally, which is what
// lets the accepting side derive the sender's identifier at all. Beyond
// that, JOIN_REQ has no precondition on the responder — unlike the Join
// operation itself, which may only be called by a node that hasn't
// already joined — so it happily serves both a genuine join and any
// other dial that just wants to introduce itself (see ensureIntroduced).
func (n *LocalNode) handleJoinReq(rn *peer.RemoteNode) correlator.HandlerFunc {
	return func(env wire.Envelope) (wire.MessageType, []byte, bool) {
		req, err := wire.DecodeJoinReq(env.Payload)
		if err != nil {
			n.logger.Warn("malformed JOIN_REQ", logger.F("err", err))
			return 0, nil, false
		}
		addr := fromWireAddr(req.ListenAddr)
		if addr == "" {
			n.logger.Warn("JOIN_REQ with empty listen address")
			return 0, nil, false
		}
		peerHash := n.hashOf(addr)
		rn.SetListenAddr(addr)
		rn.SetHash(peerHash)

		n.mu.Lock()
		n.rt.Insert(rn)

		if n.predecessor == nil || chordid.NewInterval(n.space, n.predecessor.Hash(), n.hash).WithinOpen(peerHash) {
			n.predecessor = rn
		}

		succ := n.rt.Successor()
		var respHash chordid.Hash
		var respAddr string
		if succ == nil || ringnode.Equal(succ, n) || succ.ListenAddr() == addr {
			respHash, respAddr = n.hash, n.listenAddr
		} else {
			respHash, respAddr = succ.Hash(), succ.ListenAddr()
		}
		n.mu.Unlock()

		payload, err := wire.EncodeJoinResp(n.space.HashLen, wire.JoinResp{
			NodeHash:   respHash.Bytes(),
			ListenAddr: toWireAddr(respAddr),
		})
		if err != nil {
			n.logger.Error("failed to encode JOIN_RESP", logger.F("err", err))
			return 0, nil, false
		}
		return wire.TypeJoinResp, payload, true
	}
}

// handleNotifyReq answers NOTIFY_REQ. It relies on rn's
// identity already being known: the notifying side always calls
// ensureIntroduced before sending NOTIFY_REQ, so by the time this runs,
// an earlier JOIN_REQ on the very same connection has already resolved
// rn's hash via handleJoinReq above.
func (n *LocalNode) handleNotifyReq(rn *peer.RemoteNode) correlator.HandlerFunc {
	return func(env wire.Envelope) (wire.MessageType, []byte, bool) {
		if !rn.HashKnown() {
			n.logger.Warn("NOTIFY_REQ from peer with unresolved identity, dropping")
			return 0, nil, false
		}

		n.mu.Lock()
		if ringnode.Equal(rn, n) {
			n.mu.Unlock()
			n.logger.Error("invariant violated: notify from self")
			return 0, nil, false
		}
		n.rt.Insert(rn)
		if n.predecessor == nil || chordid.NewInterval(n.space, n.predecessor.Hash(), n.hash).WithinOpen(rn.Hash()) {
			n.predecessor = rn
		}
		payload := n.nodeViewLocked()
		n.mu.Unlock()

		return wire.TypeNotifyResp, payload, true
	}
}

// handleInfoReq answers INFO_REQ with the same response shape
// as NOTIFY_RESP, but purely a read — stabilize() uses it to see a
// peer's predecessor view without implying a notify.
func (n *LocalNode) handleInfoReq() correlator.HandlerFunc {
	return func(env wire.Envelope) (wire.MessageType, []byte, bool) {
		n.mu.Lock()
		payload := n.nodeViewLocked()
		n.mu.Unlock()
		return wire.TypeInfoResp, payload, true
	}
}

func (n *LocalNode) handlePing() correlator.HandlerFunc {
	return func(env wire.Envelope) (wire.MessageType, []byte, bool) {
		return wire.TypePong, nil, true
	}
}

// handleFindSuccessorReq answers FIND_SUCCESSOR_REQ: run one local
// find_predecessor step, and if that isn't final, continue the
// walk ourselves (recursively, bounded by HopsRemaining) before replying
// — so the whole multi-hop chain is one round trip from the original
// caller's point of view.
func (n *LocalNode) handleFindSuccessorReq() correlator.HandlerFunc {
	return func(env wire.Envelope) (wire.MessageType, []byte, bool) {
		req, err := wire.DecodeFindSuccessorReq(n.space.HashLen, env.Payload)
		if err != nil {
			n.logger.Warn("malformed FIND_SUCCESSOR_REQ", logger.F("err", err))
			return 0, nil, false
		}
		target, err := n.space.FromBytes(req.Target)
		if err != nil {
			n.logger.Warn("FIND_SUCCESSOR_REQ: bad target", logger.F("err", err))
			return 0, nil, false
		}

		ctx, cancel := context.WithTimeout(context.Background(), n.cfg.RequestTimeout)
		defer cancel()
		hash, addr, err := n.findSuccessor(ctx, target, req.HopsRemaining)
		if err != nil {
			n.logger.Warn("FIND_SUCCESSOR_REQ: resolution failed", logger.F("err", err))
			return 0, nil, false
		}

		payload := wire.EncodeFindSuccessorResp(wire.FindSuccessorResp{
			NodeHash:   hash.Bytes(),
			ListenAddr: toWireAddr(addr),
		})
		return wire.TypeFindSuccessorResp, payload, true
	}
}

// nodeViewLocked builds the NOTIFY_RESP/INFO_RESP payload shape. mu must
// be held.
func (n *LocalNode) nodeViewLocked() []byte {
	succ := n.rt.Successor()
	var succAddr string
	if succ != nil {
		succAddr = succ.ListenAddr()
	}
	var predAddr string
	if n.predecessor != nil {
		predAddr = n.predecessor.ListenAddr()
	}
	return wire.EncodeNodeView(wire.NodeView{
		NodeHash:        n.hash.Bytes(),
		SuccessorAddr:   toWireAddr(succAddr),
		PredecessorAddr: toWireAddr(predAddr),
	})
}
