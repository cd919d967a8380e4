// Package routingtable implements a node's finger table: the classic
// Chord routing structure of B entries, each covering a doubling arc of
// the identifier ring, plus the membership set and local-entry
// bookkeeping described by the data model.
//
// A RoutingTable is not internally synchronized: predecessor, successor,
// table and registry are all mutated under one exclusive lock held by the
// owning state machine, which is responsible for serializing all calls
// into a table.
package routingtable

import (
	"chordring/internal/chordid"
	"chordring/internal/logger"
	"chordring/internal/ringnode"
)

// Route is a single finger-table entry: the modular arc it is
// responsible for, plus a short history of candidate nodes (bounded to
// K entries) of which the most recently set is current.
type Route struct {
	start, end chordid.Hash
	k          int
	nodes      []ringnode.ChordNode
}

func newRoute(start, end chordid.Hash, k int) *Route {
	return &Route{start: start, end: end, k: k}
}

// Node returns the entry's current candidate, or nil if empty.
func (r *Route) Node() ringnode.ChordNode {
	if len(r.nodes) == 0 {
		return nil
	}
	return r.nodes[len(r.nodes)-1]
}

// Set pushes n as the new current candidate, evicting the oldest
// candidate once the list exceeds K entries.
func (r *Route) Set(n ringnode.ChordNode) {
	r.nodes = append(r.nodes, n)
	if len(r.nodes) > r.k {
		r.nodes = r.nodes[len(r.nodes)-r.k:]
	}
}

// Remove pops the current candidate, falling back to the previous one.
func (r *Route) Remove() {
	if len(r.nodes) > 0 {
		r.nodes = r.nodes[:len(r.nodes)-1]
	}
}

// Start returns the arc's start identifier.
func (r *Route) Start() chordid.Hash { return r.start }

// End returns the arc's end identifier.
func (r *Route) End() chordid.Hash { return r.end }

// Candidates returns the entry's fallback history, oldest first, current
// last. The returned slice is a copy.
func (r *Route) Candidates() []ringnode.ChordNode {
	out := make([]ringnode.ChordNode, len(r.nodes))
	copy(out, r.nodes)
	return out
}

// RoutingTable is the finger table owned by a single root node.
type RoutingTable struct {
	space chordid.Space
	k     int
	root  ringnode.ChordNode

	entries []*Route // len == space.Bits; entries[0] is the successor slot
	local   *Route   // synthetic self-entry, [end of last finger, root.hash]

	seen   map[string]ringnode.ChordNode
	logger logger.Logger
}

// Option configures a RoutingTable at construction.
type Option func(*RoutingTable)

// WithLogger attaches a structured logger to the routing table.
func WithLogger(l logger.Logger) Option {
	return func(rt *RoutingTable) { rt.logger = l }
}

// New builds the B-entry finger table for root in the given identifier
// space, with each entry's fallback list bounded to k candidates.
func New(root ringnode.ChordNode, space chordid.Space, k int, opts ...Option) *RoutingTable {
	rt := &RoutingTable{
		space:  space,
		k:      k,
		root:   root,
		seen:   make(map[string]ringnode.ChordNode),
		logger: &logger.NopLogger{},
	}

	h := root.Hash()
	rt.entries = make([]*Route, space.Bits)
	for i := 0; i < space.Bits; i++ {
		start := h.AddPow2(space, i)
		end := h.AddPow2(space, i+1)
		rt.entries[i] = newRoute(start, end, k)
	}
	lastEnd := rt.entries[space.Bits-1].End() // == h, since 2^Bits mod M == 0
	rt.local = newRoute(lastEnd, h, k)
	rt.local.Set(root)

	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Insert adds node to the membership set and, for every entry it is a
// strictly closer candidate for than the entry's current node, replaces
// the entry. A no-op when node is the table's own root (seen_nodes never
// contains root).
func (rt *RoutingTable) Insert(node ringnode.ChordNode) {
	if ringnode.Equal(node, rt.root) {
		return
	}
	rt.seen[node.Hash().ToHexString()] = node
	for _, e := range rt.entries {
		cur := e.Node()
		if cur == nil || chordid.Less(rt.space, e.Start(), node.Hash(), cur.Hash()) {
			e.Set(node)
		}
	}
}

// Remove drops node from the membership set and from every entry it
// currently occupies, attempting to refill each vacated entry from local
// knowledge (may leave it empty if no local candidate suffices). A refill
// resolving to root itself is skipped, matching Insert's no-op on root,
// so an insert followed by a remove leaves the entries as they were.
func (rt *RoutingTable) Remove(node ringnode.ChordNode) {
	delete(rt.seen, node.Hash().ToHexString())
	var touched []int
	for i, e := range rt.entries {
		if cur := e.Node(); cur != nil && cur.Hash().Equal(node.Hash()) {
			e.Remove()
			touched = append(touched, i)
		}
	}
	for _, i := range touched {
		repl, final := rt.FindSuccessor(rt.entries[i].Start())
		if final && repl != nil && !ringnode.Equal(repl, rt.root) {
			rt.entries[i].Set(repl)
		}
	}
}

// FindPredecessor performs one local step toward resolving v: the arc
// (root.hash, successor.hash] already contains v (final=true, node is
// root itself), or lookup_preceding names a strictly closer finger
// (final=false) that the caller (the Chord state machine) must continue
// the search at remotely — the recursion boundary of the component
// design. When no successor is known yet (a brand-new, unjoined node),
// root is trivially both predecessor and successor of everything.
func (rt *RoutingTable) FindPredecessor(v chordid.Hash) (node ringnode.ChordNode, final bool) {
	succ := rt.Successor()
	if succ == nil {
		return rt.root, true
	}
	iv := chordid.NewInterval(rt.space, rt.root.Hash(), succ.Hash())
	if iv.WithinOpen(v) || v.Equal(succ.Hash()) {
		return rt.root, true
	}
	candidate := rt.LookupPreceding(v)
	if ringnode.Equal(candidate, rt.root) {
		return rt.root, true
	}
	return candidate, false
}

// FindSuccessor is find_predecessor(v).successor, subject to the same
// recursion boundary: final=false means the caller must resolve the rest
// remotely and has only a next hop, not an answer, in node.
func (rt *RoutingTable) FindSuccessor(v chordid.Hash) (node ringnode.ChordNode, final bool) {
	pred, final := rt.FindPredecessor(v)
	if !final {
		return pred, false
	}
	succ := rt.Successor()
	if succ == nil {
		return rt.root, true
	}
	return succ, true
}

// LookupPreceding scans entries from the widest arc to the narrowest and
// returns the first whose current node lies strictly between root and v;
// falls back to root itself.
func (rt *RoutingTable) LookupPreceding(v chordid.Hash) ringnode.ChordNode {
	iv := chordid.NewInterval(rt.space, rt.root.Hash(), v)
	for i := len(rt.entries) - 1; i >= 0; i-- {
		n := rt.entries[i].Node()
		if n == nil {
			continue
		}
		if iv.WithinOpen(n.Hash()) {
			return n
		}
	}
	return rt.root
}

// Finger returns entry i (0-indexed, entry 0 is the successor slot).
func (rt *RoutingTable) Finger(i int) *Route { return rt.entries[i] }

// Len returns the number of entries (== space.Bits).
func (rt *RoutingTable) Len() int { return len(rt.entries) }

// Successor returns finger(0)'s current node, or nil if unset.
func (rt *RoutingTable) Successor() ringnode.ChordNode { return rt.entries[0].Node() }

// SetSuccessor overwrites finger(0) directly, bypassing Insert's
// distance comparison. Used by the state machine to seed a fresh node's
// self-successor and by stabilize() to adopt a verified closer successor.
func (rt *RoutingTable) SetSuccessor(n ringnode.ChordNode) { rt.entries[0].Set(n) }

// RealLength returns the number of distinct nodes currently referenced
// across all entries, the synthetic local entry included — a fresh
// single-node table reports 1, and any table that has adopted another
// node reports at least 2.
func (rt *RoutingTable) RealLength() int {
	distinct := make(map[string]struct{})
	distinct[rt.root.Hash().ToHexString()] = struct{}{}
	for _, e := range rt.entries {
		if n := e.Node(); n != nil {
			distinct[n.Hash().ToHexString()] = struct{}{}
		}
	}
	return len(distinct)
}

// SeenNodes returns every node ever inserted and not since fully removed.
func (rt *RoutingTable) SeenNodes() []ringnode.ChordNode {
	out := make([]ringnode.ChordNode, 0, len(rt.seen))
	for _, n := range rt.seen {
		out = append(out, n)
	}
	return out
}

// Local returns the synthetic self-entry.
func (rt *RoutingTable) Local() *Route { return rt.local }

// Root returns the table's owning node.
func (rt *RoutingTable) Root() ringnode.ChordNode { return rt.root }

// Space returns the identifier space the table operates in.
func (rt *RoutingTable) Space() chordid.Space { return rt.space }
