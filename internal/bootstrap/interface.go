// Package bootstrap supplies the set of addresses a node dials when it
// first joins a ring, and (for discovery backends that need it) keeps
// that set advertised for other nodes to find.
package bootstrap

import (
	"context"

	"chordring/internal/chordid"
)

// SelfInfo is the minimal self-description a Bootstrap implementation
// needs to advertise this node to others.
type SelfInfo struct {
	Hash chordid.Hash
	Addr string
}

// Bootstrap discovers candidate peer addresses to join through, and
// optionally advertises this node for others to discover.
type Bootstrap interface {
	// Discover returns a list of known peer addresses.
	Discover(ctx context.Context) ([]string, error)
	// Register advertises self (only meaningful for backends with a
	// registry to write to, e.g. Route53; the others are no-ops).
	Register(ctx context.Context, self SelfInfo) error
	// Deregister removes self's advertisement.
	Deregister(ctx context.Context, self SelfInfo) error
}
