package resilience

import (
	"sync/atomic"

	"github.com/seva/axon/internal/domain"
)

// Budget is a monotonic token counter with an optional ceiling. A ceiling
// of zero disables enforcement and the budget only accumulates for
// observability.
type Budget struct {
	consumed atomic.Int64
	ceiling  int64
}

// NewBudget creates a budget. ceiling <= 0 means unlimited.
func NewBudget(ceiling int64) *Budget {
	return &Budget{ceiling: ceiling}
}

// Track accumulates consumed tokens.
func (b *Budget) Track(tokens int) {
	if tokens > 0 {
		b.consumed.Add(int64(tokens))
	}
}

// Consumed returns the total tokens tracked so far.
func (b *Budget) Consumed() int64 {
	return b.consumed.Load()
}

// WouldExceed reports whether tracking the given tokens would push the
// total past the ceiling. Always false with no ceiling configured.
func (b *Budget) WouldExceed(tokens int) bool {
	if b.ceiling <= 0 {
		return false
	}
	return b.consumed.Load()+int64(tokens) > b.ceiling
}

// Check returns ErrBudgetExceeded when the given spend would exceed the
// ceiling. Consulted before dispatching new work.
func (b *Budget) Check(tokens int) error {
	if b.WouldExceed(tokens) {
		return domain.ErrBudgetExceeded
	}
	return nil
}

// Remaining returns tokens left under the ceiling, or -1 when unlimited.
func (b *Budget) Remaining() int64 {
	if b.ceiling <= 0 {
		return -1
	}
	left := b.ceiling - b.consumed.Load()
	if left < 0 {
		return 0
	}
	return left
}
