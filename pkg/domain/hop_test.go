package domain

import "testing"

func TestHopBudget(t *testing.T) {
	b := NewHopBudget(2)
	if b.Exhausted() {
		t.Fatal("fresh budget should not be exhausted")
	}

	b.Spend()
	if b.Remaining() != 1 || b.Used() != 1 {
		t.Fatalf("after one spend: remaining=%d used=%d", b.Remaining(), b.Used())
	}

	b.Spend()
	b.Spend()
	if !b.Exhausted() || b.Remaining() != 0 {
		t.Fatalf("expected exhausted budget, remaining=%d", b.Remaining())
	}
	if b.Used() != 2 {
		t.Errorf("used should cap at max, got %d", b.Used())
	}
}

func TestHopBudget_Default(t *testing.T) {
	if got := NewHopBudget(0).Max(); got != DefaultMaxHops {
		t.Errorf("expected default %d, got %d", DefaultMaxHops, got)
	}
}
