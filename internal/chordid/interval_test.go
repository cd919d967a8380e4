package chordid

import "testing"

func TestIntervalWithinMatchesModDistFormula(t *testing.T) {
	sp, _ := NewSpace(8) // M = 256
	a, b := sp.FromUint64(10), sp.FromUint64(20)
	iv := NewInterval(sp, a, b)

	for x := uint64(0); x < 256; x++ {
		xh := sp.FromUint64(x)
		want := ModDist(sp, a, xh).Cmp(ModDist(sp, a, b)) < 0
		got := iv.Within(xh)
		if got != want {
			t.Fatalf("Within(%d) = %v, want %v", x, got, want)
		}
	}
}

func TestIntervalEmptyWhenEqual(t *testing.T) {
	sp, _ := NewSpace(8)
	a := sp.FromUint64(5)
	iv := NewInterval(sp, a, a)
	for x := uint64(0); x < 256; x++ {
		if iv.Within(sp.FromUint64(x)) {
			t.Fatalf("Within(%d) true for degenerate interval [5,5)", x)
		}
	}
}

func TestIntervalClosedSingletonWhenEqual(t *testing.T) {
	sp, _ := NewSpace(8)
	a := sp.FromUint64(5)
	iv := NewInterval(sp, a, a)
	if !iv.WithinClosed(a) {
		t.Fatalf("WithinClosed(5) false for singleton [5,5]")
	}
	if iv.WithinClosed(sp.FromUint64(6)) {
		t.Fatalf("WithinClosed(6) true for singleton [5,5]")
	}
}

func TestIntervalOpenExcludesEndpoints(t *testing.T) {
	sp, _ := NewSpace(8)
	a, b := sp.FromUint64(10), sp.FromUint64(20)
	iv := NewInterval(sp, a, b)
	if iv.WithinOpen(a) || iv.WithinOpen(b) {
		t.Fatalf("WithinOpen must exclude both endpoints")
	}
	if !iv.WithinOpen(sp.FromUint64(15)) {
		t.Fatalf("WithinOpen(15) should be true for (10,20)")
	}
}

func TestIntervalWraparound(t *testing.T) {
	sp, _ := NewSpace(8) // M = 256
	a, b := sp.FromUint64(250), sp.FromUint64(5)
	iv := NewInterval(sp, a, b)
	for _, x := range []uint64{252, 255, 0, 4} {
		if !iv.Within(sp.FromUint64(x)) {
			t.Errorf("Within(%d) should be true in wrapping interval [250,5)", x)
		}
	}
	if iv.Within(sp.FromUint64(100)) {
		t.Errorf("Within(100) should be false in wrapping interval [250,5)")
	}
}

func TestIntervalClosedOpenWrapDegenerate(t *testing.T) {
	sp, _ := NewSpace(8)
	a := sp.FromUint64(7)
	iv := NewInterval(sp, a, a)
	// (a, a) denotes the whole ring minus {a}.
	for x := uint64(0); x < 256; x++ {
		want := x != 7
		if got := iv.WithinOpen(sp.FromUint64(x)); got != want {
			t.Errorf("WithinOpen(%d) = %v, want %v", x, got, want)
		}
	}
}
