package chordnode

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/trace"

	"chordring/internal/chordid"
	"chordring/internal/logger"
	"chordring/internal/peer"
	"chordring/internal/ringnode"
	"chordring/internal/telemetry"
	"chordring/internal/telemetry/lookuptrace"
	nodetrace "chordring/internal/trace"
	"chordring/internal/wire"
)

func (n *LocalNode) stabilizeLoop(ctx context.Context) {
	defer n.wg.Done()
	t := time.NewTicker(n.cfg.StabilizeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n.stabilize(ctx)
		}
	}
}

func (n *LocalNode) fixFingersLoop(ctx context.Context) {
	defer n.wg.Done()
	t := time.NewTicker(n.cfg.FixFingersInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n.fixFingers(ctx)
		}
	}
}

// stabilize is the periodic successor-repair pass: ask
// the successor for its own predecessor view via a correlated INFO_REQ,
// adopt it as our new successor if it lies strictly between us and our
// current successor, then notify whoever ends up as our successor.
func (n *LocalNode) stabilize(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "chordnode.stabilize")
	defer span.End()

	n.mu.Lock()
	succ := n.rt.Successor()
	n.mu.Unlock()
	if succ == nil || ringnode.Equal(succ, n) {
		return
	}
	succRN, ok := succ.(*peer.RemoteNode)
	if !ok {
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, n.cfg.RequestTimeout)
	env, err := succRN.Correlator().Request(reqCtx, wire.TypeInfoReq, nil)
	cancel()
	if err != nil {
		n.logger.Warn("stabilize: INFO_REQ to successor failed", logger.F("err", err))
		return
	}
	view, err := wire.DecodeNodeView(n.space.HashLen, env.Payload)
	if err != nil {
		n.logger.Warn("stabilize: malformed INFO_RESP", logger.F("err", err))
		return
	}
	predAddr := fromWireAddr(view.PredecessorAddr)

	next := succRN
	if predAddr != "" && predAddr != n.listenAddr {
		x, err := n.resolvedNode(ctx, n.hashOf(predAddr), predAddr)
		if err != nil {
			n.logger.Warn("stabilize: resolving successor's predecessor failed", logger.F("err", err))
		} else if chordid.NewInterval(n.space, n.hash, succ.Hash()).WithinOpen(x.Hash()) {
			n.mu.Lock()
			n.rt.SetSuccessor(x)
			n.mu.Unlock()
			if xRN, ok := x.(*peer.RemoteNode); ok {
				next = xRN
			}
		}
	}

	n.sendNotify(ctx, next)
}

// sendNotify is the caller side of notify. NOTIFY_REQ
// itself carries no payload, so the target can only learn our identity
// if it was already established on this connection; ensureIntroduced
// sends a JOIN_REQ first, exactly once per connection, to guarantee that.
func (n *LocalNode) sendNotify(ctx context.Context, target *peer.RemoteNode) {
	if ringnode.Equal(target, n) {
		return
	}
	if err := n.ensureIntroduced(ctx, target); err != nil {
		n.logger.Warn("notify: introduction failed", logger.F("err", err))
		return
	}
	reqCtx, cancel := context.WithTimeout(ctx, n.cfg.RequestTimeout)
	defer cancel()
	if _, err := target.Correlator().Request(reqCtx, wire.TypeNotifyReq, nil); err != nil {
		n.logger.Warn("notify: NOTIFY_REQ failed", logger.F("err", err))
	}
}

// ensureIntroduced sends a JOIN_REQ on target's connection the first
// time we ever address it without the target already knowing who we
// are. It is idempotent per connection: once the target has seen our
// listener address, there is nothing further to establish.
func (n *LocalNode) ensureIntroduced(ctx context.Context, target *peer.RemoteNode) error {
	n.mu.Lock()
	if n.introduced[target] {
		n.mu.Unlock()
		return nil
	}
	n.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, n.cfg.RequestTimeout)
	defer cancel()
	payload := wire.EncodeJoinReq(wire.JoinReq{ListenAddr: toWireAddr(n.listenAddr)})
	if _, err := target.Correlator().Request(reqCtx, wire.TypeJoinReq, payload); err != nil {
		return err
	}

	n.mu.Lock()
	n.introduced[target] = true
	n.mu.Unlock()
	return nil
}

// fixFingers is the periodic finger-refresh pass: pick one
// non-successor entry at random and re-resolve it via find_successor,
// which may leave the local table and hop over the wire.
func (n *LocalNode) fixFingers(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "chordnode.fix_fingers")
	defer span.End()

	if n.space.Bits <= 1 {
		return
	}
	i := 1 + rand.Intn(n.space.Bits-1)

	n.mu.Lock()
	entry := n.rt.Finger(i)
	empty := entry.Node() == nil
	start := entry.Start()
	n.mu.Unlock()
	if empty {
		return
	}

	hash, addr, err := n.findSuccessor(ctx, start, n.hopBudget())
	if err != nil {
		n.logger.Warn("fix_fingers: lookup failed", logger.F("index", i), logger.F("err", err))
		return
	}
	node, err := n.resolvedNode(ctx, hash, addr)
	if err != nil {
		n.logger.Warn("fix_fingers: resolve failed", logger.F("index", i), logger.F("err", err))
		return
	}

	n.mu.Lock()
	if cur := entry.Node(); cur == nil || !cur.Hash().Equal(node.Hash()) {
		entry.Set(node)
	}
	n.mu.Unlock()
}

func (n *LocalNode) hopBudget() uint8 { return n.cfg.HopBudget }

// FindSuccessor is the exported entry point for resolving an arbitrary
// identifier to its ring successor. It marks the whole chain as one
// lookup for tracing purposes. fix_fingers and the FIND_SUCCESSOR_REQ
// handler call the unexported findSuccessor directly, so their hops are
// not marked.
func (n *LocalNode) FindSuccessor(ctx context.Context, target chordid.Hash) (hash chordid.Hash, listenAddr string, err error) {
	ctx = lookuptrace.WithLookup(ctx)
	ctx, traceID := nodetrace.AttachTraceID(ctx, n.hash)
	ctx, span := tracer.Start(ctx, "chordnode.find_successor",
		trace.WithAttributes(telemetry.HashAttributes("target", target)...))
	defer span.End()
	n.logger.Debug("find_successor",
		logger.F("trace_id", traceID),
		logger.FHash("target", target))
	return n.findSuccessor(ctx, target, n.hopBudget())
}

// findSuccessor performs one local find_predecessor step and, if that
// isn't final, continues the walk with an outbound
// FIND_SUCCESSOR_REQ to the closer candidate, bounded by hopsRemaining.
func (n *LocalNode) findSuccessor(ctx context.Context, v chordid.Hash, hopsRemaining uint8) (chordid.Hash, string, error) {
	ctx, span := lookuptrace.StartHop(ctx, "chordnode.find_successor.hop")
	defer span.End()

	n.mu.Lock()
	candidate, final := n.rt.FindSuccessor(v)
	n.mu.Unlock()
	if candidate == nil {
		return chordid.Hash{}, "", errors.New("chordnode: find_successor: no successor known")
	}
	if final || hopsRemaining == 0 {
		return candidate.Hash(), candidate.ListenAddr(), nil
	}

	rn, err := n.remoteFor(ctx, candidate)
	if err != nil {
		return chordid.Hash{}, "", fmt.Errorf("chordnode: find_successor: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, n.cfg.RequestTimeout)
	defer cancel()
	payload := wire.EncodeFindSuccessorReq(wire.FindSuccessorReq{Target: v.Bytes(), HopsRemaining: hopsRemaining - 1})
	env, err := rn.Correlator().Request(reqCtx, wire.TypeFindSuccessorReq, payload)
	if err != nil {
		return chordid.Hash{}, "", fmt.Errorf("chordnode: find_successor: remote hop: %w", err)
	}
	resp, err := wire.DecodeFindSuccessorResp(n.space.HashLen, env.Payload)
	if err != nil {
		return chordid.Hash{}, "", fmt.Errorf("chordnode: find_successor: %w", err)
	}
	h, err := n.space.FromBytes(resp.NodeHash)
	if err != nil {
		return chordid.Hash{}, "", fmt.Errorf("chordnode: find_successor: %w", err)
	}
	return h, fromWireAddr(resp.ListenAddr), nil
}

// Ping round-trips a PING/PONG against addr, dialing it if it isn't
// already a connected peer, and reports the observed latency.
func (n *LocalNode) Ping(ctx context.Context, addr string) (time.Duration, error) {
	rn, err := n.peerByAddr(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("chordnode: ping: %w", err)
	}
	reqCtx, cancel := context.WithTimeout(ctx, n.cfg.RequestTimeout)
	defer cancel()
	start := time.Now()
	if _, err := rn.Correlator().Request(reqCtx, wire.TypePing, nil); err != nil {
		return 0, fmt.Errorf("chordnode: ping: %w", err)
	}
	return time.Since(start), nil
}
