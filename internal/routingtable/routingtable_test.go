package routingtable

import (
	"testing"

	"chordring/internal/chordid"
	"chordring/internal/ringnode"
)

// staticNode is a fixed (hash, addr) pair satisfying ringnode.ChordNode,
// used throughout these tests in place of a real LocalNode/RemoteNode.
type staticNode struct {
	hash chordid.Hash
	addr string
}

func (n staticNode) Hash() chordid.Hash { return n.hash }
func (n staticNode) ListenAddr() string { return n.addr }

func node(sp chordid.Space, v uint64, addr string) staticNode {
	return staticNode{hash: sp.FromUint64(v), addr: addr}
}

func TestSingleNodeRealLength(t *testing.T) {
	sp, _ := chordid.NewSpace(8)
	root := node(sp, 1, "root")
	rt := New(root, sp, 5)
	rt.SetSuccessor(root)
	if rt.RealLength() != 1 {
		t.Fatalf("RealLength = %d, want 1", rt.RealLength())
	}
	if !ringnode.Equal(rt.Successor(), root) {
		t.Fatalf("Successor should be root for a fresh single-node table")
	}
}

func TestInsertThenRemoveRestoresState(t *testing.T) {
	sp, _ := chordid.NewSpace(8)
	root := node(sp, 1, "root")
	rt := New(root, sp, 5)
	rt.SetSuccessor(root)

	before := snapshotEntries(rt)

	n := node(sp, 100, "n")
	rt.Insert(n)
	rt.Remove(n)

	after := snapshotEntries(rt)
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("entry %d changed after insert+remove: before=%v after=%v", i, before[i], after[i])
		}
	}
}

func snapshotEntries(rt *RoutingTable) []string {
	out := make([]string, rt.Len())
	for i := 0; i < rt.Len(); i++ {
		if n := rt.Finger(i).Node(); n != nil {
			out[i] = n.Hash().ToHexString()
		}
	}
	return out
}

func TestInsertKeepsCloserOrTiedCandidate(t *testing.T) {
	sp, _ := chordid.NewSpace(8)
	root := node(sp, 0, "root")
	rt := New(root, sp, 5)
	rt.SetSuccessor(root)

	n1 := node(sp, 50, "n1")
	rt.Insert(n1)
	for i := 0; i < rt.Len(); i++ {
		e := rt.Finger(i)
		got := e.Node()
		if got == nil {
			continue
		}
		if !(got.Hash().Equal(n1.hash) || !chordid.Less(sp, e.Start(), n1.hash, got.Hash())) {
			t.Fatalf("entry %d: %v is not n1 and is not at-least-as-close as n1", i, got)
		}
	}
}

func TestInsertNoOpOnRoot(t *testing.T) {
	sp, _ := chordid.NewSpace(8)
	root := node(sp, 5, "root")
	rt := New(root, sp, 5)
	rt.Insert(root)
	if len(rt.SeenNodes()) != 0 {
		t.Fatalf("inserting root must not add it to seen_nodes")
	}
}

func TestTieBreakPrefersEarlierInsert(t *testing.T) {
	sp, _ := chordid.NewSpace(8) // M=256
	root := node(sp, 0, "root")
	rt := New(root, sp, 5)

	// Entry 3 covers [8,16). Distinct hashes never share a forward distance
	// from start=8, so the tie is built from two nodes with the same hash 11,
	// told apart only by their addresses, both inserted through Insert.
	first := node(sp, 11, "first")
	second := node(sp, 11, "second") // identical hash, different identity marker only by addr
	rt.Insert(first)
	rt.Insert(second) // same distance (equal hash) as first: strictly-less fails, keeps first
	e := rt.Finger(3)
	if e.Node().ListenAddr() != "first" {
		t.Fatalf("tie-break should keep earlier-inserted candidate, got %v", e.Node())
	}
}

func TestFindSuccessorAcrossTables(t *testing.T) {
	// B=6, M=64, nodes at 1, 8, 14, 21, 32, 42.
	sp6 := chordid.Space{Bits: 6, HashLen: 1}
	sp6.HashFunc = func(b []byte) chordid.Hash { h, _ := sp6.FromBytes(b); return h }

	ids := []uint64{1, 8, 14, 21, 32, 42}
	nodes := make([]staticNode, len(ids))
	for i, v := range ids {
		nodes[i] = node(sp6, v, "n")
	}

	tables := make([]*RoutingTable, len(nodes))
	for i, n := range nodes {
		rt := New(n, sp6, 5)
		for _, other := range nodes {
			if other.hash.Equal(n.hash) {
				continue
			}
			rt.Insert(other)
		}
		tables[i] = rt
	}

	findSuccessor := func(from int, target uint64) uint64 {
		v := sp6.FromUint64(target)
		rt := tables[from]
		cur := rt
		visited := 0
		for {
			n, final := cur.FindSuccessor(v)
			if final {
				return n.Hash().Int().Uint64()
			}
			// hop to the candidate's own table (all tables are in-memory here)
			idx := indexOf(nodes, n)
			cur = tables[idx]
			visited++
			if visited > len(nodes)+1 {
				t.Fatalf("find_successor did not converge")
			}
		}
	}

	for from := range nodes {
		if got := findSuccessor(from, 15); got != 21 {
			t.Errorf("from node %d: find_successor(15) = %d, want 21", nodes[from].hash.Int().Uint64(), got)
		}
		if got := findSuccessor(from, 42); got != 42 {
			t.Errorf("from node %d: find_successor(42) = %d, want 42", nodes[from].hash.Int().Uint64(), got)
		}
		if got := findSuccessor(from, 43); got != 1 {
			t.Errorf("from node %d: find_successor(43) = %d, want 1", nodes[from].hash.Int().Uint64(), got)
		}
	}
}

func indexOf(nodes []staticNode, n ringnode.ChordNode) int {
	for i, c := range nodes {
		if c.Hash().Equal(n.Hash()) {
			return i
		}
	}
	return -1
}
