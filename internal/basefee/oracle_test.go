package basefee

import (
	"math/big"
	"testing"
)

func TestEstimateNextEmptyWindow(t *testing.T) {
	o := New(10)
	got := o.EstimateNext()
	if got.Cmp(big.NewInt(defaultEstimate)) != 0 {
		t.Fatalf("expected default estimate, got %s", got)
	}
}

func TestEstimateNextRisingTrend(t *testing.T) {
	o := New(10)
	o.Observe(big.NewInt(100))
	o.Observe(big.NewInt(120))

	got := o.EstimateNext()
	// last=120, trend>0 -> next = 120 + 120*0.125 = 135
	want := big.NewInt(135)
	if got.Cmp(want) != 0 {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestEstimateNextFallingTrend(t *testing.T) {
	o := New(10)
	o.Observe(big.NewInt(120))
	o.Observe(big.NewInt(100))

	got := o.EstimateNext()
	// last=100, trend<0 -> next = 100 - 100*0.125 = 87
	want := big.NewInt(87)
	if got.Cmp(want) != 0 {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestWindowEvictsOldest(t *testing.T) {
	o := New(2)
	o.Observe(big.NewInt(1))
	o.Observe(big.NewInt(2))
	o.Observe(big.NewInt(3))

	w := o.Window()
	if len(w) != 2 {
		t.Fatalf("expected window size 2, got %d", len(w))
	}
	if w[0].Cmp(big.NewInt(2)) != 0 || w[1].Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("expected [2,3], got %v", w)
	}
}

func TestResetClearsWindow(t *testing.T) {
	o := New(10)
	o.Observe(big.NewInt(5))
	o.Reset()
	if got := o.EstimateNext(); got.Cmp(big.NewInt(defaultEstimate)) != 0 {
		t.Fatalf("expected default estimate after reset, got %s", got)
	}
}
