// Package chordctl implements the operator-facing client side of the
// wire protocol: a single connection to one Chord node, wrapped the same
// way chordnode wraps an outbound dial (peer.RemoteNode plus a read loop
// feeding its correlator), but driven interactively instead of by the
// state machine.
package chordctl

import (
	"context"
	"errors"
	"fmt"
	"io"

	"chordring/internal/peer"
	"chordring/internal/transport"
	"chordring/internal/wire"
)

// ErrConnectionClosed is returned by a pending query when the
// connection's read loop exits before a response arrives.
var ErrConnectionClosed = errors.New("chordctl: connection closed")

// Client is one operator session against one Chord node's listener
// address. Commands that reconnect elsewhere ("use <addr>") discard the
// old Client and Connect a new one; a Client itself never migrates
// addresses.
type Client struct {
	addr string
	rn   *peer.RemoteNode
	done chan struct{}
}

// Connect dials addr and starts the connection's read loop. The
// returned Client's identifier is unknown until the first query
// resolves it (INFO_REQ's response carries the remote's own hash).
func Connect(ctx context.Context, addr string, maxPending int) (*Client, error) {
	conn, err := transport.Dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("chordctl: connect %s: %w", addr, err)
	}
	rn := peer.New(conn, maxPending)
	rn.SetListenAddr(addr)
	c := &Client{addr: addr, rn: rn, done: make(chan struct{})}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer c.rn.Close()
	for {
		env, err := wire.ReadEnvelope(c.rn.Conn())
		if err != nil {
			if !errors.Is(err, io.EOF) {
				// Surfaced to the operator only as a failed in-flight
				// query (Correlator.Close wakes every waiter below);
				// this is a CLI, not a long-lived peer, so there is no
				// routing table to evict the dead connection from.
				_ = err
			}
			return
		}
		c.rn.Correlator().DispatchIncoming(env)
	}
}

// Addr returns the address this Client is connected to.
func (c *Client) Addr() string { return c.addr }

// Closed reports whether the connection's read loop has exited.
func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.rn.Close() }

// request is the shared request/response plumbing every query in
// query.go builds on: write msg, wait for its matching response or
// ctx's deadline, whichever comes first (Correlator.Request already
// implements this; Client just owns the connection it runs against).
func (c *Client) request(ctx context.Context, msgType wire.MessageType, payload []byte) (wire.Envelope, error) {
	return c.rn.Correlator().Request(ctx, msgType, payload)
}
