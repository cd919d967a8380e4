// Package correlator matches response frames to outstanding requests by
// correlation id on a single connection, and routes anything that isn't a
// matching response to a per-message-type handler. Waiting for a reply is
// a blocking call: the caller's goroutine parks on a channel receive
// until the response, a timeout, or Close wakes it.
package correlator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"chordring/internal/wire"
)

// ErrTimeout is returned by Request when no response arrives before the
// deadline. The pending slot is reclaimed and any later response with the
// same correlation id is silently dropped by DispatchIncoming.
var ErrTimeout = errors.New("correlator: request timed out")

// ErrTooManyPending is returned by Request when the per-connection
// outstanding-request bound would be exceeded.
var ErrTooManyPending = errors.New("correlator: too many outstanding requests")

// ErrClosed is returned to any caller blocked in Request when Close runs.
var ErrClosed = errors.New("correlator: closed")

// Sender writes an encoded envelope to the underlying connection. It must
// serialize concurrent writes itself (the correlator does not assume
// single-writer usage).
type Sender func(env wire.Envelope) error

// HandlerFunc processes an unsolicited (non-reply) incoming envelope and
// optionally produces a reply payload to send back correlated to it.
type HandlerFunc func(env wire.Envelope) (replyType wire.MessageType, replyPayload []byte, ok bool)

// Correlator owns the outstanding-request table for one connection.
type Correlator struct {
	send       Sender
	maxPending int

	mu      sync.Mutex
	pending map[uint32]chan result
	nextID  uint32
	closed  bool

	handlersMu sync.Mutex
	handlers   map[wire.MessageType]HandlerFunc
}

type result struct {
	env wire.Envelope
	err error
}

// New builds a Correlator that writes outgoing frames via send and
// accepts up to maxPending concurrent outstanding requests.
func New(send Sender, maxPending int) *Correlator {
	if maxPending <= 0 {
		maxPending = 64
	}
	return &Correlator{
		send:       send,
		maxPending: maxPending,
		pending:    make(map[uint32]chan result),
		handlers:   make(map[wire.MessageType]HandlerFunc),
	}
}

// Handle registers the handler invoked for unsolicited envelopes of the
// given type. Must be called before DispatchIncoming starts running
// concurrently with further Handle calls.
func (c *Correlator) Handle(t wire.MessageType, h HandlerFunc) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[t] = h
}

// Request writes msg (assigning a fresh correlation id) and blocks until a
// matching response arrives, ctx is done, or timeout elapses, whichever
// is first. It returns exactly one of {response, error}, never both and
// never zero.
func (c *Correlator) Request(ctx context.Context, msgType wire.MessageType, payload []byte) (wire.Envelope, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return wire.Envelope{}, ErrClosed
	}
	if len(c.pending) >= c.maxPending {
		c.mu.Unlock()
		return wire.Envelope{}, ErrTooManyPending
	}
	c.nextID++
	id := c.nextID
	ch := make(chan result, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	cleanup := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}

	if err := c.send(wire.Envelope{Type: msgType, CorrID: id, Payload: payload}); err != nil {
		cleanup()
		return wire.Envelope{}, fmt.Errorf("correlator: send: %w", err)
	}

	select {
	case r := <-ch:
		return r.env, r.err
	case <-ctx.Done():
		cleanup()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return wire.Envelope{}, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		}
		return wire.Envelope{}, ctx.Err()
	}
}

// Respond writes a reply payload correlated to a received request's id.
func (c *Correlator) Respond(corrID uint32, replyType wire.MessageType, payload []byte) error {
	return c.send(wire.Envelope{Type: replyType, CorrID: corrID, Payload: payload})
}

// DispatchIncoming routes one envelope read off the connection: if it is
// a response whose correlation id matches an outstanding request, that
// request's waiter is woken with env; otherwise it is routed to the
// registered handler for env.Type, which may itself write a correlated
// reply via Respond (or return a reply from HandlerFunc, which
// DispatchIncoming then writes via Respond). The response-type check matters
// because ids are fresh per direction: the peer's own request stream may
// reuse an id we also have outstanding.
func (c *Correlator) DispatchIncoming(env wire.Envelope) {
	if env.Type.IsResponse() {
		c.mu.Lock()
		ch, ok := c.pending[env.CorrID]
		if ok {
			delete(c.pending, env.CorrID)
		}
		c.mu.Unlock()

		if ok {
			ch <- result{env: env}
		}
		// A response matching nothing is late (its request already timed
		// out) and is dropped.
		return
	}

	c.handlersMu.Lock()
	h, ok := c.handlers[env.Type]
	c.handlersMu.Unlock()
	if !ok {
		return
	}
	replyType, replyPayload, hasReply := h(env)
	if hasReply {
		_ = c.Respond(env.CorrID, replyType, replyPayload)
	}
}

// Close fails every outstanding request with ErrClosed and prevents any
// further Request calls from succeeding. Idempotent.
func (c *Correlator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = make(map[uint32]chan result)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- result{err: ErrClosed}
	}
}

// PendingCount reports the number of outstanding requests, for tests and
// diagnostics.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
