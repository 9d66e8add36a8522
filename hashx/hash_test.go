package hashx

import "testing"

func TestDivideByIdentity(t *testing.T) {
	h := Sum([]byte("target"))
	if got := DivideBy(h, 1.0); got != h {
		t.Errorf("DivideBy(h, 1.0) = %s, want identity %s", got, h)
	}
}

func TestDivideByMonotonic(t *testing.T) {
	h := Sum([]byte("target"))
	prev := h
	for _, r := range []float64{1, 2, 4, 8, 16} {
		got := DivideBy(h, r)
		if got.Cmp(prev) > 0 {
			t.Errorf("DivideBy(h, %v) = %s should not exceed previous ratio result %s", r, got, prev)
		}
		prev = got
	}
}

func TestLessOrEqual(t *testing.T) {
	small, _ := FromHex("0000000000000000000000000000000000000000000000000000000000000001")
	big, _ := FromHex("00000000000000000000000000000000000000000000000000000000000000ff")
	if !small.LessOrEqual(big) {
		t.Error("small should be <= big")
	}
	if big.LessOrEqual(small) {
		t.Error("big should not be <= small")
	}
	if !small.LessOrEqual(small) {
		t.Error("a value must be <= itself")
	}
}

func TestHashRoundTrip(t *testing.T) {
	h := Sum([]byte("round trip"))
	parsed, err := FromHex(h.String())
	if err != nil {
		t.Fatalf("FromHex: %v", err)
	}
	if parsed != h {
		t.Errorf("round trip mismatch: got %s want %s", parsed, h)
	}
}
