package chordnode_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"chordring/internal/chordid"
	"chordring/internal/chordnode"
	"chordring/internal/correlator"
	"chordring/internal/ringnode"
)

func testParams(sp chordid.Space) chordnode.Params {
	return chordnode.Params{
		Space:              sp,
		RouteFallbackK:     5,
		StabilizeInterval:  20 * time.Millisecond,
		FixFingersInterval: 30 * time.Millisecond,
		JoinTimeout:        2 * time.Second,
		RequestTimeout:     500 * time.Millisecond,
	}
}

func mustStart(t *testing.T, addr string, p chordnode.Params) *chordnode.LocalNode {
	t.Helper()
	n, err := chordnode.New(addr, p)
	if err != nil {
		t.Fatalf("New(%s): %v", addr, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := n.Run(ctx); err != nil {
		cancel()
		t.Fatalf("Run(%s): %v", addr, err)
	}
	t.Cleanup(func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
		defer shutdownCancel()
		_ = n.Shutdown(shutdownCtx)
		cancel()
	})
	return n
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %s", timeout)
	}
}

// A single node's successor is itself, it has no predecessor, and
// its table reports exactly one real node.
func TestSingleNodeRing(t *testing.T) {
	sp, err := chordid.NewSpace(16)
	if err != nil {
		t.Fatal(err)
	}
	n, err := chordnode.New("127.0.0.1:23011", testParams(sp))
	if err != nil {
		t.Fatal(err)
	}

	if !ringnode.Equal(n.Successor(), n) {
		t.Fatalf("single-node successor should be self")
	}
	if n.Predecessor() != nil {
		t.Fatalf("single-node predecessor should be nil, got %v", n.Predecessor())
	}
	if got := n.RealLength(); got != 1 {
		t.Fatalf("RealLength = %d, want 1", got)
	}
	if err := n.CheckInvariants(); err != nil {
		t.Fatalf("CheckInvariants: %v", err)
	}
}

// A second node joining a one-node ring converges, within a few
// stabilize periods, to each node seeing the other as both successor and
// predecessor.
func TestTwoNodeJoinConverges(t *testing.T) {
	sp, err := chordid.NewSpace(16)
	if err != nil {
		t.Fatal(err)
	}
	p := testParams(sp)

	a := mustStart(t, "127.0.0.1:23021", p)
	b := mustStart(t, "127.0.0.1:23022", p)

	ctx, cancel := context.WithTimeout(context.Background(), p.JoinTimeout)
	defer cancel()
	if err := b.Join(ctx, "127.0.0.1:23021"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		as, ap := a.Successor(), a.Predecessor()
		bs, bp := b.Successor(), b.Predecessor()
		return as != nil && ap != nil && bs != nil && bp != nil &&
			ringnode.Equal(as, b) && ringnode.Equal(ap, b) &&
			ringnode.Equal(bs, a) && ringnode.Equal(bp, a)
	})

	if err := a.CheckInvariants(); err != nil {
		t.Fatalf("a: CheckInvariants: %v", err)
	}
	if err := b.CheckInvariants(); err != nil {
		t.Fatalf("b: CheckInvariants: %v", err)
	}
}

// A second Join call on an already-joined node must fail fast on the
// precondition rather than attempt another handshake.
func TestJoinPreconditionRejectsSecondCall(t *testing.T) {
	sp, err := chordid.NewSpace(16)
	if err != nil {
		t.Fatal(err)
	}
	p := testParams(sp)

	_ = mustStart(t, "127.0.0.1:23031", p)
	b := mustStart(t, "127.0.0.1:23032", p)

	ctx, cancel := context.WithTimeout(context.Background(), p.JoinTimeout)
	defer cancel()
	if err := b.Join(ctx, "127.0.0.1:23031"); err != nil {
		t.Fatalf("first Join: %v", err)
	}

	if err := b.Join(ctx, "127.0.0.1:23031"); !errors.Is(err, chordnode.ErrAlreadyJoined) {
		t.Fatalf("second Join: got %v, want ErrAlreadyJoined", err)
	}
}

// A request against a peer that accepts the connection but never
// replies fails with a timeout error within the expected window.
func TestRequestTimesOutAgainstSilentPeer(t *testing.T) {
	sp, err := chordid.NewSpace(16)
	if err != nil {
		t.Fatal(err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	n, err := chordnode.New("127.0.0.1:23041", testParams(sp))
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err = n.Ping(ctx, ln.Addr().String())
	elapsed := time.Since(start)

	if err == nil {
		t.Fatalf("expected timeout error, got nil")
	}
	if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, correlator.ErrTimeout) {
		t.Fatalf("expected a timeout-flavored error, got %v", err)
	}
	if elapsed < 150*time.Millisecond || elapsed > time.Second {
		t.Fatalf("timeout fired outside expected window: %s", elapsed)
	}

	select {
	case conn := <-accepted:
		conn.Close()
	default:
	}
}
