package chordnode

import "errors"

// Join errors. join's preconditions (no more than one real entry in the
// table, no predecessor yet) are distinct from the timeout raised when
// the bootstrap peer never answers JOIN_REQ.
var (
	ErrAlreadyJoined  = errors.New("chordnode: join precondition violated: node already has peers")
	ErrJoinTimeout    = errors.New("chordnode: join timed out waiting for JOIN_RESP")
	ErrJoinRefused    = errors.New("chordnode: entry node refused join")
	ErrNotRunning     = errors.New("chordnode: node is not running")
	ErrAlreadyRunning = errors.New("chordnode: node is already running")
)

// ErrInvariant marks a violated local invariant (e.g. predecessor == self)
// as a programmer error distinguishable from a protocol or timeout error,
// per the error handling design: a deployment may choose to log-and-
// recover or abort, but it must be able to tell the difference.
type ErrInvariant struct {
	What string
}

func (e *ErrInvariant) Error() string { return "chordnode: invariant violated: " + e.What }
