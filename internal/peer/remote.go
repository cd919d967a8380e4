// Package peer implements RemoteNode, the state a LocalNode keeps about
// one other participant reachable over a connection, and Registry, the
// collection of all such peers.
package peer

import (
	"net"
	"sync"
	"sync/atomic"

	"chordring/internal/chordid"
	"chordring/internal/correlator"
	"chordring/internal/wire"
)

// RemoteNode is a ChordNode backed by one owned connection. Its identity
// may be provisionally unknown immediately after an outbound connect,
// before the first JOIN/NOTIFY exchange establishes it; HashKnown
// reports whether it has been resolved yet.
type RemoteNode struct {
	conn net.Conn
	corr *correlator.Correlator

	writeMu sync.Mutex

	mu          sync.Mutex
	hash        chordid.Hash
	hashKnown   bool
	listenAddr  string
	complete    atomic.Bool
	closeOnce   sync.Once
}

// New wraps conn as a RemoteNode. maxPending bounds the connection's
// outstanding-request table.
func New(conn net.Conn, maxPending int) *RemoteNode {
	rn := &RemoteNode{conn: conn}
	rn.corr = correlator.New(rn.writeEnvelope, maxPending)
	return rn
}

func (rn *RemoteNode) writeEnvelope(env wire.Envelope) error {
	rn.writeMu.Lock()
	defer rn.writeMu.Unlock()
	return wire.WriteEnvelope(rn.conn, env)
}

// Conn returns the underlying connection.
func (rn *RemoteNode) Conn() net.Conn { return rn.conn }

// Correlator returns the per-connection request/response correlator.
func (rn *RemoteNode) Correlator() *correlator.Correlator { return rn.corr }

// Hash implements ringnode.ChordNode. Before the identifier is
// established it returns the zero Hash value; callers must check
// HashKnown first (the state machine only ever exposes a RemoteNode to
// the routing table after resolving its identity).
func (rn *RemoteNode) Hash() chordid.Hash {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return rn.hash
}

// HashKnown reports whether SetHash has been called yet.
func (rn *RemoteNode) HashKnown() bool {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return rn.hashKnown
}

// SetHash establishes (or updates) the remote identifier.
func (rn *RemoteNode) SetHash(h chordid.Hash) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	rn.hash = h
	rn.hashKnown = true
}

// ListenAddr implements ringnode.ChordNode.
func (rn *RemoteNode) ListenAddr() string {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return rn.listenAddr
}

// SetListenAddr records the remote side's dialable listener address,
// distinct from the connection's ephemeral remote address.
func (rn *RemoteNode) SetListenAddr(addr string) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	rn.listenAddr = addr
}

// Complete reports whether the connection has closed.
func (rn *RemoteNode) Complete() bool { return rn.complete.Load() }

// Close closes the connection and the correlator exactly once,
// transitioning Complete to true monotonically.
func (rn *RemoteNode) Close() error {
	var err error
	rn.closeOnce.Do(func() {
		rn.complete.Store(true)
		rn.corr.Close()
		err = rn.conn.Close()
	})
	return err
}
