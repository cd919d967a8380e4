package chordnode

import (
	"time"

	"chordring/internal/chordid"
	"chordring/internal/logger"
)

// Params bundles the ring parameters and timing knobs a LocalNode runs
// under; it is the chordnode-local projection of config.DHTConfig,
// decoupled from YAML so the package has no configuration-format
// dependency of its own.
type Params struct {
	Space chordid.Space

	// RouteFallbackK bounds each finger entry's candidate history.
	RouteFallbackK int

	StabilizeInterval  time.Duration
	FixFingersInterval time.Duration
	JoinTimeout        time.Duration
	RequestTimeout     time.Duration
	MaxPendingPerConn  int

	// HopBudget bounds a find_successor chain's worst-case remote hop
	// count. Zero defaults to Space.Bits (capped at 255, the largest value
	// the one-byte wire field carries), the value that guarantees
	// termination per the component design (every hop strictly reduces
	// distance to the target, and the ring has at most 2^Bits nodes).
	HopBudget uint8
}

func (p Params) withDefaults() Params {
	if p.RouteFallbackK <= 0 {
		p.RouteFallbackK = 5
	}
	if p.StabilizeInterval <= 0 {
		p.StabilizeInterval = time.Second
	}
	if p.FixFingersInterval <= 0 {
		p.FixFingersInterval = 5 * time.Second
	}
	if p.JoinTimeout <= 0 {
		p.JoinTimeout = 10 * time.Second
	}
	if p.RequestTimeout <= 0 {
		p.RequestTimeout = 10 * time.Second
	}
	if p.MaxPendingPerConn <= 0 {
		p.MaxPendingPerConn = 64
	}
	if p.HopBudget == 0 {
		if p.Space.Bits > 255 {
			p.HopBudget = 255
		} else {
			p.HopBudget = uint8(p.Space.Bits)
		}
	}
	return p
}

// Option configures a LocalNode at construction.
type Option func(*LocalNode)

// WithLogger attaches a structured logger, propagated to the node's
// routing table and transport listener as well.
func WithLogger(l logger.Logger) Option {
	return func(n *LocalNode) { n.logger = l }
}
