package peer

import (
	"sync"

	"chordring/internal/chordid"
)

// Registry is the set of connections a node currently holds open, keyed by
// the RemoteNode wrapping each one. It is the one place that knows about
// every live connection regardless of whether the peer's identity (and
// thus its routing-table membership) has been resolved yet.
type Registry struct {
	mu    sync.Mutex
	peers map[*RemoteNode]struct{}
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{peers: make(map[*RemoteNode]struct{})}
}

// Add registers rn as a live connection.
func (r *Registry) Add(rn *RemoteNode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[rn] = struct{}{}
}

// Remove drops rn from the registry. It does not close the connection;
// callers that want both call rn.Close() themselves.
func (r *Registry) Remove(rn *RemoteNode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, rn)
}

// Contains reports whether rn is currently registered.
func (r *Registry) Contains(rn *RemoteNode) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.peers[rn]
	return ok
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// Each calls fn once per registered peer. fn must not call back into the
// registry (Add/Remove/CloseAll): the lock is held for the duration of
// the iteration.
func (r *Registry) Each(fn func(rn *RemoteNode)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for rn := range r.peers {
		fn(rn)
	}
}

// ByHash returns a registered peer whose identity is known and equal to
// hash, or nil if none matches. The registry keeps no order, so when
// several peers match, which one is returned is not defined.
func (r *Registry) ByHash(hash chordid.Hash) *RemoteNode {
	r.mu.Lock()
	defer r.mu.Unlock()
	for rn := range r.peers {
		if rn.HashKnown() && rn.Hash().Equal(hash) {
			return rn
		}
	}
	return nil
}

// CloseAll closes and unregisters every peer, for shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	peers := make([]*RemoteNode, 0, len(r.peers))
	for rn := range r.peers {
		peers = append(peers, rn)
	}
	r.peers = make(map[*RemoteNode]struct{})
	r.mu.Unlock()

	for _, rn := range peers {
		_ = rn.Close()
	}
}
