package chordid

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
)

// Common errors related to ring identifiers.
var (
	ErrInvalidID    = errors.New("chordid: invalid identifier")
	ErrInvalidBits  = errors.New("chordid: bitcount must be a positive multiple of 8")
	ErrWrongByteLen = errors.New("chordid: byte slice length does not match space HASHLEN")
)

// Space defines the identifier space of a Chord ring.
//
// The identifier space is the set of integers in [0, 2^Bits), with all
// ring arithmetic performed modulo M = 2^Bits. Identifiers are encoded
// as big-endian byte strings of HashLen = Bits/8 bytes.
type Space struct {
	Bits    int // number of bits in the identifier space (B)
	HashLen int // Bits/8, the digest length every Hash must carry

	// HashFunc computes the Hash of an arbitrary byte string. It is
	// injectable so tests can supply a deterministic short-hash stub
	// instead of fighting a real digest to hit literal values.
	HashFunc func(data []byte) Hash
}

// NewSpace builds a Space for the given bitcount, defaulting HashFunc to
// a SHA-256 digest truncated or expanded to fit HashLen bytes.
func NewSpace(bits int) (Space, error) {
	if bits <= 0 || bits%8 != 0 {
		return Space{}, ErrInvalidBits
	}
	sp := Space{Bits: bits, HashLen: bits / 8}
	sp.HashFunc = func(data []byte) Hash { return sp.defaultHash(data) }
	return sp, nil
}

// defaultHash implements the default digest: SHA-256 of data, folded (by
// truncation or big-endian zero extension) to exactly HashLen bytes.
func (sp Space) defaultHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	b := make([]byte, sp.HashLen)
	if sp.HashLen <= len(sum) {
		copy(b, sum[:sp.HashLen])
	} else {
		copy(b[sp.HashLen-len(sum):], sum[:])
	}
	pre := append([]byte(nil), data...)
	return Hash{b: b, preimage: pre, hasPreimage: true}
}

// Hash computes the identifier of data under this space.
func (sp Space) Hash(data []byte) Hash {
	return sp.HashFunc(data)
}

// Zero returns the identifier 0 in this space.
func (sp Space) Zero() Hash {
	return Hash{b: make([]byte, sp.HashLen)}
}

// FromBytes wraps an existing HashLen-byte big-endian identifier. Returns
// ErrWrongByteLen if b is not exactly HashLen bytes long.
func (sp Space) FromBytes(b []byte) (Hash, error) {
	if len(b) != sp.HashLen {
		return Hash{}, ErrWrongByteLen
	}
	cp := make([]byte, sp.HashLen)
	copy(cp, b)
	return Hash{b: cp}, nil
}

// FromUint64 builds the identifier for a small integer value, used
// pervasively by tests that want literal hash values.
func (sp Space) FromUint64(v uint64) Hash {
	bi := new(big.Int).SetUint64(v)
	return sp.FromBigInt(bi)
}

// FromBigInt reduces x modulo 2^Bits and encodes it as a Hash.
func (sp Space) FromBigInt(x *big.Int) Hash {
	m := sp.Modulus()
	r := new(big.Int).Mod(x, m)
	b := make([]byte, sp.HashLen)
	r.FillBytes(b)
	return Hash{b: b}
}

// Modulus returns 2^Bits as a big.Int.
func (sp Space) Modulus() *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), uint(sp.Bits))
}

// Hash is an opaque, fixed-width identifier on the ring. Two Hashes are
// equal iff their integer values are equal; the preimage (if known) is
// carried for diagnostics only and never affects identity or ordering.
type Hash struct {
	b           []byte
	preimage    []byte
	hasPreimage bool
}

// Bytes returns the big-endian byte encoding of h. The returned slice must
// not be mutated by the caller.
func (h Hash) Bytes() []byte { return h.b }

// Int returns the integer value of h.
func (h Hash) Int() *big.Int {
	return new(big.Int).SetBytes(h.b)
}

// Preimage returns the bytes that were hashed to produce h, if known.
func (h Hash) Preimage() ([]byte, bool) { return h.preimage, h.hasPreimage }

// Equal reports whether h and o denote the same integer value.
func (h Hash) Equal(o Hash) bool { return bytes.Equal(h.b, o.b) }

// IsZero reports whether h is the all-zero identifier.
func (h Hash) IsZero() bool {
	for _, c := range h.b {
		if c != 0 {
			return false
		}
	}
	return true
}

// ToHexString renders h as a lowercase hex string.
func (h Hash) ToHexString() string { return hex.EncodeToString(h.b) }

func (h Hash) String() string { return h.ToHexString() }

// AddUint64 returns h + n mod M, the space's modulus.
func (h Hash) AddUint64(sp Space, n uint64) Hash {
	sum := new(big.Int).Add(h.Int(), new(big.Int).SetUint64(n))
	return sp.FromBigInt(sum)
}

// SubUint64 returns h - n mod M.
func (h Hash) SubUint64(sp Space, n uint64) Hash {
	diff := new(big.Int).Sub(h.Int(), new(big.Int).SetUint64(n))
	return sp.FromBigInt(diff)
}

// AddPow2 returns h + 2^i mod M, used to compute finger-table start points.
func (h Hash) AddPow2(sp Space, i int) Hash {
	delta := new(big.Int).Lsh(big.NewInt(1), uint(i))
	sum := new(big.Int).Add(h.Int(), delta)
	return sp.FromBigInt(sum)
}

// ModDist returns the forward (clockwise) distance from a to b on the ring:
// b - a if b >= a, else (M - a) + b. Always in [0, M).
func ModDist(sp Space, a, b Hash) *big.Int {
	ai, bi := a.Int(), b.Int()
	if bi.Cmp(ai) >= 0 {
		return new(big.Int).Sub(bi, ai)
	}
	m := sp.Modulus()
	d := new(big.Int).Sub(m, ai)
	return d.Add(d, bi)
}

// Less reports whether a's forward distance from origin is strictly less
// than b's, i.e. moddist(origin, a) < moddist(origin, b). Used by the
// routing table's tie-break comparisons.
func Less(sp Space, origin, a, b Hash) bool {
	da := ModDist(sp, origin, a)
	db := ModDist(sp, origin, b)
	return da.Cmp(db) < 0
}

func (sp Space) validate(h Hash) error {
	if len(h.b) != sp.HashLen {
		return fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidID, sp.HashLen, len(h.b))
	}
	return nil
}
