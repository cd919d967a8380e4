// Package chordnode implements the Chord state machine: the LocalNode
// that owns a routing table, a peer registry and a correlator per
// connection, and drives join, stabilize, notify and fix-fingers per the
// component design. It is the one package that knows how the wire
// protocol, the routing table and the peer registry fit together.
package chordnode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"

	"chordring/internal/chordid"
	"chordring/internal/logger"
	"chordring/internal/peer"
	"chordring/internal/ringnode"
	"chordring/internal/routingtable"
	"chordring/internal/transport"
	"chordring/internal/wire"
)

const tracerName = "chordring/chordnode"

var tracer = otel.Tracer(tracerName)

// LocalNode is a ChordNode backed by live in-memory state: a bound
// listener, a routing table rooted at itself, a peer registry of every
// open connection, and the one predecessor reference the table doesn't
// carry. The routing table, registry and predecessor field are mutated
// under a single exclusive lock (mu), per the shared state discipline.
type LocalNode struct {
	space      chordid.Space
	hash       chordid.Hash
	listenAddr string
	cfg        Params

	mu          sync.Mutex
	rt          *routingtable.RoutingTable
	registry    *peer.Registry
	predecessor *peer.RemoteNode
	introduced  map[*peer.RemoteNode]bool

	logger   logger.Logger
	listener *transport.Listener

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// New builds a LocalNode bound to listenAddr (not yet listening; call
// Run to start accepting connections and driving the periodic protocol).
// The node's identifier is hash(listenAddr), the standard Chord
// convention used throughout this package: any peer that learns another
// node's listener address can derive its identifier locally, without a
// dedicated identity-exchange message, for every wire message that
// already carries a listener address.
func New(listenAddr string, p Params, opts ...Option) (*LocalNode, error) {
	if _, _, err := net.SplitHostPort(listenAddr); err != nil {
		return nil, fmt.Errorf("chordnode: invalid listen address %q: %w", listenAddr, err)
	}
	p = p.withDefaults()

	n := &LocalNode{
		space:      p.Space,
		listenAddr: listenAddr,
		cfg:        p,
		registry:   peer.NewRegistry(),
		introduced: make(map[*peer.RemoteNode]bool),
		logger:     &logger.NopLogger{},
	}
	n.hash = n.hashOf(listenAddr)

	for _, opt := range opts {
		opt(n)
	}

	n.rt = routingtable.New(n, p.Space, p.RouteFallbackK, routingtable.WithLogger(n.logger.Named("routingtable")))
	// A freshly constructed node is its own successor. The table never
	// seeds this itself; the single-node ring is the state machine's to
	// enforce.
	n.rt.SetSuccessor(n)

	return n, nil
}

// Hash implements ringnode.ChordNode.
func (n *LocalNode) Hash() chordid.Hash { return n.hash }

// ListenAddr implements ringnode.ChordNode.
func (n *LocalNode) ListenAddr() string { return n.listenAddr }

// Space returns the identifier space this node operates in.
func (n *LocalNode) Space() chordid.Space { return n.space }

// Successor returns the node's current successor (finger 0). New seeds
// it with the node itself, so it is self until a join or stabilize
// replaces it.
func (n *LocalNode) Successor() ringnode.ChordNode {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rt.Successor()
}

// Predecessor returns the node's current predecessor, or nil.
func (n *LocalNode) Predecessor() ringnode.ChordNode {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.predecessor == nil {
		return nil
	}
	return n.predecessor
}

// FingerInfo is a read-only snapshot of one routing table entry, for
// diagnostics (cmd/chordctl's "fingers" command, tests).
type FingerInfo struct {
	Index int
	Start chordid.Hash
	End   chordid.Hash
	Node  ringnode.ChordNode // nil if the entry is currently empty
}

// Fingers returns a snapshot of every routing table entry.
func (n *LocalNode) Fingers() []FingerInfo {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]FingerInfo, n.rt.Len())
	for i := 0; i < n.rt.Len(); i++ {
		e := n.rt.Finger(i)
		out[i] = FingerInfo{Index: i, Start: e.Start(), End: e.End(), Node: e.Node()}
	}
	return out
}

// PeerCount reports the number of live connections in the registry.
func (n *LocalNode) PeerCount() int { return n.registry.Len() }

// RealLength reports the number of distinct nodes referenced by the
// routing table, for tests asserting join preconditions/postconditions.
func (n *LocalNode) RealLength() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rt.RealLength()
}

// CheckInvariants validates the state machine invariants that must hold
// between operations: predecessor is never self, and a node that
// has seen any other peer always has a successor. It returns the first
// violation found, as an *ErrInvariant distinguishable from protocol and
// timeout errors via errors.As.
func (n *LocalNode) CheckInvariants() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.predecessor != nil && ringnode.Equal(n.predecessor, n) {
		return &ErrInvariant{What: "predecessor == self"}
	}
	if n.rt.RealLength() >= 1 && n.rt.Successor() == nil {
		return &ErrInvariant{What: "successor is nil despite a non-empty table"}
	}
	return nil
}

// Run binds the listener and starts the accept loop and the periodic
// stabilize/fix-fingers tickers. It returns once the listener is bound;
// the loops run until ctx is canceled or Shutdown is called.
func (n *LocalNode) Run(ctx context.Context) error {
	if !n.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	lis, err := transport.Listen(n.listenAddr, n.logger.Named("transport"))
	if err != nil {
		n.running.Store(false)
		return fmt.Errorf("chordnode: listen: %w", err)
	}
	n.listener = lis

	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	n.wg.Add(3)
	go func() {
		defer n.wg.Done()
		if err := lis.Serve(runCtx, n.onAccept); err != nil {
			n.logger.Error("chordnode: listener stopped", logger.F("err", err))
		}
	}()
	go n.stabilizeLoop(runCtx)
	go n.fixFingersLoop(runCtx)

	n.logger.Info("node started", logger.FHash("hash", n.hash), logger.F("addr", n.listenAddr))
	return nil
}

// Shutdown stops the accept loop and periodic tickers, closes every
// connection, and waits for all goroutines to exit or ctx to expire,
// whichever is first.
func (n *LocalNode) Shutdown(ctx context.Context) error {
	if !n.running.CompareAndSwap(true, false) {
		return ErrNotRunning
	}
	n.cancel()
	if n.listener != nil {
		_ = n.listener.Close()
	}
	n.registry.CloseAll()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		n.logger.Info("node stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// onAccept wraps a freshly accepted connection as a RemoteNode with
// unknown identity (resolved lazily by whichever handler first learns
// its listener address) and starts its read loop.
func (n *LocalNode) onAccept(remoteAddr string, conn net.Conn) {
	rn := peer.New(conn, n.cfg.MaxPendingPerConn)
	n.wireHandlers(rn)
	n.registry.Add(rn)
	n.wg.Add(1)
	go n.readLoop(rn)
	n.logger.Debug("accepted connection", logger.F("remote", remoteAddr))
}

// dial opens an outbound connection to addr and wraps it as a
// RemoteNode. Because the dialer already knows the address it dialed,
// the identifier (hash(addr)) and listener address are both known
// immediately — no wire exchange is needed for the dialer to know who
// it is talking to; only the accepting side needs a message carrying the
// dialer's own address to complete the same derivation in reverse (see
// ensureIntroduced).
func (n *LocalNode) dial(ctx context.Context, addr string) (*peer.RemoteNode, error) {
	conn, err := transport.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	rn := peer.New(conn, n.cfg.MaxPendingPerConn)
	rn.SetListenAddr(addr)
	rn.SetHash(n.hashOf(addr))
	n.wireHandlers(rn)
	n.registry.Add(rn)
	n.wg.Add(1)
	go n.readLoop(rn)
	return rn, nil
}

func (n *LocalNode) readLoop(rn *peer.RemoteNode) {
	defer n.wg.Done()
	defer func() {
		n.handleConnClosed(rn)
		_ = rn.Close()
	}()
	for {
		env, err := wire.ReadEnvelope(rn.Conn())
		if err != nil {
			if !errors.Is(err, io.EOF) {
				n.logger.Debug("connection closed", logger.F("err", err))
			}
			return
		}
		rn.Correlator().DispatchIncoming(env)
	}
}

// handleConnClosed runs once per RemoteNode, when its read loop exits
// for any reason: framing error, protocol error, or a clean peer close.
// None of these are fatal to the process; the peer is simply
// dropped from the registry and, if its identity was ever resolved,
// from the routing table.
func (n *LocalNode) handleConnClosed(rn *peer.RemoteNode) {
	n.registry.Remove(rn)

	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.introduced, rn)
	if !rn.HashKnown() {
		return
	}
	n.removeNodeLocked(rn)
}

// removeNodeLocked is remove_node's thin wrapper: it drops node from the
// table and, if it had been occupying the successor or predecessor role,
// re-derives a replacement from whatever local knowledge remains. mu
// must be held.
func (n *LocalNode) removeNodeLocked(node ringnode.ChordNode) {
	wasSuccessor := ringnode.Equal(n.rt.Successor(), node)
	wasPredecessor := n.predecessor != nil && ringnode.Equal(n.predecessor, node)
	removedHash := node.Hash()

	n.rt.Remove(node)

	if wasSuccessor {
		if succ, _ := n.rt.FindSuccessor(removedHash.AddUint64(n.space, 1)); succ != nil {
			n.rt.SetSuccessor(succ)
		}
	}
	if wasPredecessor {
		n.predecessor = nil
		if pred, _ := n.rt.FindPredecessor(removedHash.SubUint64(n.space, 1)); pred != nil && !ringnode.Equal(pred, n) {
			if predRN, ok := pred.(*peer.RemoteNode); ok {
				n.predecessor = predRN
			}
		}
	}
}

// resolvedNode maps a (hash, listenAddr) pair learned from a remote
// reply back to a live ChordNode: itself, an already-registered peer
// reused by identity, or a freshly dialed connection.
func (n *LocalNode) resolvedNode(ctx context.Context, hash chordid.Hash, addr string) (ringnode.ChordNode, error) {
	if hash.Equal(n.hash) {
		return n, nil
	}
	n.mu.Lock()
	known := n.registry.ByHash(hash)
	n.mu.Unlock()
	if known != nil {
		return known, nil
	}
	return n.dial(ctx, addr)
}

// peerByAddr resolves addr to a live RemoteNode, reusing a registered
// connection when one already exists for that identity.
func (n *LocalNode) peerByAddr(ctx context.Context, addr string) (*peer.RemoteNode, error) {
	hash := n.hashOf(addr)
	n.mu.Lock()
	known := n.registry.ByHash(hash)
	n.mu.Unlock()
	if known != nil {
		return known, nil
	}
	return n.dial(ctx, addr)
}

// remoteFor adapts a ChordNode the routing table handed back (always a
// *peer.RemoteNode in this implementation's closed world, since the
// table never holds anything but root and dialed/accepted peers) into a
// live connection to issue a request on, re-dialing only in the
// defensive case that the connection backing it has since closed.
func (n *LocalNode) remoteFor(ctx context.Context, node ringnode.ChordNode) (*peer.RemoteNode, error) {
	if rn, ok := node.(*peer.RemoteNode); ok && !rn.Complete() {
		return rn, nil
	}
	return n.dial(ctx, node.ListenAddr())
}

// hashOf derives the identifier a node listening on addr would carry.
func (n *LocalNode) hashOf(addr string) chordid.Hash {
	return n.space.Hash([]byte(addr))
}

func toWireAddr(addr string) wire.Addr {
	if addr == "" {
		return wire.Addr{}
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return wire.Addr{}
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return wire.Addr{}
	}
	return wire.Addr{Host: host, Port: uint16(port)}
}

func fromWireAddr(a wire.Addr) string {
	if a.Host == "" && a.Port == 0 {
		return ""
	}
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}
