package unifiedllm

import "sync"

// Budget accumulates the dollar cost of completions against an optional
// total. A zero total means unlimited.
type Budget struct {
	mu          sync.Mutex
	total       float64
	cost        float64
	usage       Usage
	completions int
}

// NewBudget creates a Budget with the given total in dollars.
func NewBudget(total float64) *Budget {
	return &Budget{total: total}
}

// Record adds the cost of one completion.
func (b *Budget) Record(model string, usage Usage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cost += CostOf(model, usage)
	b.usage = b.usage.Add(usage)
	b.completions++
}

// Total returns the configured budget.
func (b *Budget) Total() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Cost returns the accumulated cost.
func (b *Budget) Cost() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cost
}

// Remaining returns the unspent budget, floored at zero. It is only
// meaningful when Total is positive.
func (b *Budget) Remaining() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cost >= b.total {
		return 0
	}
	return b.total - b.cost
}

// Usage returns the summed token usage and the number of completions recorded.
func (b *Budget) Usage() (Usage, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.usage, b.completions
}
