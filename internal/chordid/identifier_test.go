package chordid

import "testing"

func TestRoundTripBytesInt(t *testing.T) {
	sp, err := NewSpace(64)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	for _, v := range []uint64{0, 1, 42, 1<<63 - 1} {
		h := sp.FromUint64(v)
		if len(h.Bytes()) != sp.HashLen {
			t.Fatalf("FromUint64(%d): byte length = %d, want %d", v, len(h.Bytes()), sp.HashLen)
		}
		back, err := sp.FromBytes(h.Bytes())
		if err != nil {
			t.Fatalf("FromBytes: %v", err)
		}
		if !back.Equal(h) {
			t.Fatalf("round trip mismatch for %d", v)
		}
		if h.Int().Uint64() != v {
			t.Fatalf("Int() = %d, want %d", h.Int().Uint64(), v)
		}
	}
}

func TestNewSpaceRejectsBadBits(t *testing.T) {
	for _, bits := range []int{0, -8, 7, 13} {
		if _, err := NewSpace(bits); err == nil {
			t.Fatalf("NewSpace(%d): expected error", bits)
		}
	}
}

func TestModDist(t *testing.T) {
	sp, _ := NewSpace(8) // M = 256
	tests := []struct {
		a, b uint64
		want uint64
	}{
		{0, 0, 0},
		{0, 10, 10},
		{10, 0, 246},
		{250, 5, 11},
		{5, 250, 245},
	}
	for _, tt := range tests {
		got := ModDist(sp, sp.FromUint64(tt.a), sp.FromUint64(tt.b))
		if got.Uint64() != tt.want {
			t.Errorf("ModDist(%d,%d) = %d, want %d", tt.a, tt.b, got.Uint64(), tt.want)
		}
	}
}

func TestAddPow2(t *testing.T) {
	sp, _ := NewSpace(8) // M = 256
	h := sp.FromUint64(250)
	got := h.AddPow2(sp, 3) // 250 + 8 = 258 mod 256 = 2
	if got.Int().Uint64() != 2 {
		t.Errorf("AddPow2 = %d, want 2", got.Int().Uint64())
	}
}

func TestHashFuncInjectable(t *testing.T) {
	sp, _ := NewSpace(16)
	calls := 0
	sp.HashFunc = func(data []byte) Hash {
		calls++
		return sp.FromUint64(uint64(len(data)))
	}
	h := sp.Hash([]byte("abc"))
	if calls != 1 {
		t.Fatalf("injected HashFunc not invoked")
	}
	if h.Int().Uint64() != 3 {
		t.Fatalf("injected HashFunc result = %d, want 3", h.Int().Uint64())
	}
}
