package peer

import (
	"net"
	"testing"
	"time"

	"chordring/internal/chordid"
)

func pipeNode() (*RemoteNode, *RemoteNode) {
	a, b := net.Pipe()
	return New(a, 8), New(b, 8)
}

func TestRegistryAddRemoveContains(t *testing.T) {
	reg := NewRegistry()
	rn, other := pipeNode()
	defer rn.Close()
	defer other.Close()

	if reg.Contains(rn) {
		t.Fatalf("fresh registry should not contain rn")
	}
	reg.Add(rn)
	if !reg.Contains(rn) || reg.Len() != 1 {
		t.Fatalf("Add did not register rn")
	}
	reg.Remove(rn)
	if reg.Contains(rn) || reg.Len() != 0 {
		t.Fatalf("Remove did not drop rn")
	}
}

func TestRegistryByHash(t *testing.T) {
	sp, _ := chordid.NewSpace(8)
	reg := NewRegistry()
	rn, other := pipeNode()
	defer other.Close()

	reg.Add(rn)
	if got := reg.ByHash(sp.FromUint64(7)); got != nil {
		t.Fatalf("unresolved peer must not match ByHash")
	}
	rn.SetHash(sp.FromUint64(7))
	if got := reg.ByHash(sp.FromUint64(7)); got != rn {
		t.Fatalf("ByHash did not find resolved peer")
	}
}

func TestRegistryCloseAllClosesAndEmpties(t *testing.T) {
	reg := NewRegistry()
	rn, other := pipeNode()
	defer other.Close()
	reg.Add(rn)

	reg.CloseAll()
	if reg.Len() != 0 {
		t.Fatalf("CloseAll did not empty the registry")
	}
	if !rn.Complete() {
		t.Fatalf("CloseAll did not close the peer connection")
	}
}

func TestRemoteNodeCloseIsIdempotent(t *testing.T) {
	rn, other := pipeNode()
	defer other.Close()
	done := make(chan struct{})
	go func() {
		_ = rn.Close()
		_ = rn.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("double Close did not return")
	}
	if !rn.Complete() {
		t.Fatalf("Complete should be true after Close")
	}
}
