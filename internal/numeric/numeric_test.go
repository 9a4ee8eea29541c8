package numeric

import (
	"math"
	"testing"
)

func TestClamp(t *testing.T) {
	if got := Clamp(5, 0, 3); got != 3 {
		t.Fatalf("Clamp int high: got %d", got)
	}
	if got := Clamp(-0.5, 0.0, 1.0); got != 0 {
		t.Fatalf("Clamp float low: got %v", got)
	}
	if got := Unit(math.NaN()); got != 0 {
		t.Fatalf("Unit(NaN): got %v", got)
	}
}

func TestSafeDiv(t *testing.T) {
	cases := []struct {
		a, b, want float64
	}{
		{10, 4, 2.5},
		{10, 0, 0},
		{0, 0, 0},
		{math.Inf(1), 1, 0},
	}
	for _, c := range cases {
		if got := SafeDiv(c.a, c.b); got != c.want {
			t.Errorf("SafeDiv(%v, %v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
