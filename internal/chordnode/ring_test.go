package chordnode_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"chordring/internal/chordid"
	"chordring/internal/chordnode"
	"chordring/internal/ringnode"
)

// fixedHashSpace builds an identifier space whose HashFunc looks up the
// literal value assigned to each address in table, instead of hashing
// the address bytes for real. Constructing the Space directly (rather
// than via NewSpace) allows a bitcount that is not byte-aligned, so a
// tiny ring like M=64 stays readable in these tests.
func fixedHashSpace(t *testing.T, bits int, table map[string]uint64) chordid.Space {
	t.Helper()
	sp := chordid.Space{Bits: bits, HashLen: (bits + 7) / 8}
	sp.HashFunc = func(data []byte) chordid.Hash {
		v, ok := table[string(data)]
		if !ok {
			t.Errorf("fixedHashSpace: no literal hash assigned for address %q", data)
			return sp.FromUint64(0)
		}
		return sp.FromUint64(v)
	}
	return sp
}

func hashEquals(h chordid.Hash, sp chordid.Space, v uint64) bool {
	return h.Equal(sp.FromUint64(v))
}

// Three nodes joined in order A(10), B(20), C(30) via a shared entry
// converge, under stabilization, to the expected ring ordering.
func TestThreeNodeOrderingConverges(t *testing.T) {
	const base = 23100
	addrs := map[uint64]string{
		10: fmt.Sprintf("127.0.0.1:%d", base+10),
		20: fmt.Sprintf("127.0.0.1:%d", base+20),
		30: fmt.Sprintf("127.0.0.1:%d", base+30),
	}
	table := map[string]uint64{}
	for v, a := range addrs {
		table[a] = v
	}
	sp := fixedHashSpace(t, 6, table)
	p := testParams(sp)

	a := mustStart(t, addrs[10], p)
	b := mustStart(t, addrs[20], p)
	c := mustStart(t, addrs[30], p)

	ctx, cancel := context.WithTimeout(context.Background(), p.JoinTimeout)
	defer cancel()
	if err := b.Join(ctx, addrs[10]); err != nil {
		t.Fatalf("B join: %v", err)
	}
	if err := c.Join(ctx, addrs[10]); err != nil {
		t.Fatalf("C join: %v", err)
	}

	waitFor(t, 3*time.Second, func() bool {
		return ringnode.Equal(a.Successor(), b) && ringnode.Equal(b.Successor(), c) && ringnode.Equal(c.Successor(), a) &&
			ringnode.Equal(a.Predecessor(), c) && ringnode.Equal(b.Predecessor(), a) && ringnode.Equal(c.Predecessor(), b)
	})
}

// With the three-node steady state reached, closing C's connections is
// detected by both remaining nodes, which repair successor/predecessor
// back to a consistent two-node ring without C.
func TestNodeDepartureRepairsRing(t *testing.T) {
	const base = 23200
	addrs := map[uint64]string{
		10: fmt.Sprintf("127.0.0.1:%d", base+10),
		20: fmt.Sprintf("127.0.0.1:%d", base+20),
		30: fmt.Sprintf("127.0.0.1:%d", base+30),
	}
	table := map[string]uint64{}
	for v, a := range addrs {
		table[a] = v
	}
	sp := fixedHashSpace(t, 6, table)
	p := testParams(sp)

	a := mustStart(t, addrs[10], p)
	b := mustStart(t, addrs[20], p)
	c, err := chordnode.New(addrs[30], p)
	if err != nil {
		t.Fatal(err)
	}
	cCtx, cCancel := context.WithCancel(context.Background())
	if err := c.Run(cCtx); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.JoinTimeout)
	defer cancel()
	if err := b.Join(ctx, addrs[10]); err != nil {
		t.Fatalf("B join: %v", err)
	}
	if err := c.Join(ctx, addrs[10]); err != nil {
		t.Fatalf("C join: %v", err)
	}

	waitFor(t, 3*time.Second, func() bool {
		return ringnode.Equal(a.Successor(), b) && ringnode.Equal(b.Successor(), c) && ringnode.Equal(c.Successor(), a)
	})

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
	_ = c.Shutdown(shutdownCtx)
	shutdownCancel()
	cCancel()

	waitFor(t, 5*time.Second, func() bool {
		as, bs := a.Successor(), b.Successor()
		ap, bp := a.Predecessor(), b.Predecessor()
		return as != nil && bs != nil && ap != nil && bp != nil &&
			ringnode.Equal(as, b) && ringnode.Equal(bs, a) &&
			ringnode.Equal(ap, b) && ringnode.Equal(bp, a)
	})

	for _, n := range a.Fingers() {
		if n.Node != nil && hashEquals(n.Node.Hash(), sp, 30) {
			t.Fatalf("A's table still references departed node C at entry %d", n.Index)
		}
	}
	for _, n := range b.Fingers() {
		if n.Node != nil && hashEquals(n.Node.Hash(), sp, 30) {
			t.Fatalf("B's table still references departed node C at entry %d", n.Index)
		}
	}
}

// On a 6-node ring in a 6-bit space, find_successor resolves an
// arbitrary target to the correct next-present node, including the
// wraparound case.
func TestFindSuccessorFingerCorrectness(t *testing.T) {
	const base = 23300
	values := []uint64{1, 8, 14, 21, 32, 42}
	addrs := map[uint64]string{}
	table := map[string]uint64{}
	for _, v := range values {
		addr := fmt.Sprintf("127.0.0.1:%d", base+int(v))
		addrs[v] = addr
		table[addr] = v
	}
	sp := fixedHashSpace(t, 6, table)
	p := testParams(sp)
	p.FixFingersInterval = 10 * time.Millisecond
	p.StabilizeInterval = 10 * time.Millisecond

	nodes := make(map[uint64]*chordnode.LocalNode, len(values))
	for _, v := range values {
		nodes[v] = mustStart(t, addrs[v], p)
	}

	entry := addrs[1]
	ctx, cancel := context.WithTimeout(context.Background(), p.JoinTimeout)
	defer cancel()
	for _, v := range values[1:] {
		if err := nodes[v].Join(ctx, entry); err != nil {
			t.Fatalf("node %d join: %v", v, err)
		}
	}

	ring := []uint64{1, 8, 14, 21, 32, 42}
	waitFor(t, 5*time.Second, func() bool {
		for i, v := range ring {
			next := ring[(i+1)%len(ring)]
			if !ringnode.Equal(nodes[v].Successor(), nodes[next]) {
				return false
			}
		}
		return true
	})

	cases := []struct {
		target uint64
		want   uint64
	}{
		{15, 21},
		{42, 42},
		{43, 1},
	}
	for _, tc := range cases {
		lookupCtx, lookupCancel := context.WithTimeout(context.Background(), p.RequestTimeout)
		hash, _, err := nodes[1].FindSuccessor(lookupCtx, sp.FromUint64(tc.target))
		lookupCancel()
		if err != nil {
			t.Fatalf("FindSuccessor(%d): %v", tc.target, err)
		}
		if !hashEquals(hash, sp, tc.want) {
			t.Fatalf("FindSuccessor(%d) = %s, want hash of %d", tc.target, hash, tc.want)
		}
	}
}
