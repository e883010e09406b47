package domain

// DefaultMaxHops is the number of tool-bearing round trips allowed per query.
const DefaultMaxHops = 4

// HopBudget counts the tool-bearing round trips left for one query.
type HopBudget struct {
	max       int
	remaining int
}

// NewHopBudget creates a budget of max hops. Non-positive values fall back to DefaultMaxHops.
func NewHopBudget(max int) HopBudget {
	if max <= 0 {
		max = DefaultMaxHops
	}
	return HopBudget{max: max, remaining: max}
}

// Spend consumes one hop. It is a no-op once the budget is exhausted.
func (b *HopBudget) Spend() {
	if b.remaining > 0 {
		b.remaining--
	}
}

// Remaining returns the hops left.
func (b HopBudget) Remaining() int {
	return b.remaining
}

// Used returns the hops consumed so far.
func (b HopBudget) Used() int {
	return b.max - b.remaining
}

// Max returns the initial budget.
func (b HopBudget) Max() int {
	return b.max
}

// Exhausted reports whether no tool-bearing round trips are left.
func (b HopBudget) Exhausted() bool {
	return b.remaining == 0
}
