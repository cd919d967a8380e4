package chordid

// Interval represents a modular arc [a, b) on the identifier circle. When
// b < a (as integers) the arc wraps the modulus: it is the union of [a, M)
// and [0, b). All three membership predicates are total on the space.
type Interval struct {
	space Space
	a, b  Hash
}

// NewInterval builds the arc [a, b) mod space's modulus.
func NewInterval(space Space, a, b Hash) Interval {
	return Interval{space: space, a: a, b: b}
}

// Within reports half-open membership: x in [a, b).
//
// Equivalent to moddist(a, x) < moddist(a, b). When a == b this denotes
// the empty interval: moddist(a, a) == 0 and no forward distance is < 0,
// so the general formula already excludes every x, x == a included; the
// explicit a == b check only short-circuits that case.
func (iv Interval) Within(x Hash) bool {
	if iv.a.Equal(iv.b) {
		return false
	}
	dx := ModDist(iv.space, iv.a, x)
	db := ModDist(iv.space, iv.a, iv.b)
	return dx.Cmp(db) < 0
}

// WithinOpen reports open membership: x in (a, b), i.e. x != a, x != b,
// and x lies strictly between them going clockwise from a.
func (iv Interval) WithinOpen(x Hash) bool {
	if iv.a.Equal(iv.b) {
		// (a, a) wraps the entire ring minus the point a itself.
		return !x.Equal(iv.a)
	}
	if x.Equal(iv.a) || x.Equal(iv.b) {
		return false
	}
	dx := ModDist(iv.space, iv.a, x)
	db := ModDist(iv.space, iv.a, iv.b)
	return dx.Cmp(db) < 0
}

// WithinClosed reports closed membership: x in [a, b].
func (iv Interval) WithinClosed(x Hash) bool {
	if iv.a.Equal(iv.b) {
		// [a, a] is the singleton {a}.
		return x.Equal(iv.a)
	}
	if x.Equal(iv.b) {
		return true
	}
	return iv.Within(x)
}

// Start returns the arc's starting identifier.
func (iv Interval) Start() Hash { return iv.a }

// End returns the arc's (exclusive, for Within) ending identifier.
func (iv Interval) End() Hash { return iv.b }
