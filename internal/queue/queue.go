// Package queue implements the priority intake queue that buffers raw work
// items before dispatch. Items are drained High→Normal→Low with FIFO order
// preserved inside each tier.
package queue

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seva/axon/internal/domain"
)

// bypassPrefixes mark inputs that are latency-sensitive direct commands and
// may skip queuing entirely.
var bypassPrefixes = []string{"/", "!", "@"}

// Queue is a tiered FIFO intake queue. Three sub-queues, one per priority
// tier, so ordering stays stable regardless of queue length.
type Queue struct {
	mu     sync.Mutex
	high   []domain.QueuedInput
	normal []domain.QueuedInput
	low    []domain.QueuedInput

	bypass bool
	logger *zap.Logger
}

// New creates an empty intake queue.
func New(logger *zap.Logger) *Queue {
	return &Queue{logger: logger.Named("queue")}
}

// Enqueue inserts a new input at the tail of its priority tier and returns
// the generated input ID.
func (q *Queue) Enqueue(content string, priority domain.Priority, source string) string {
	in := domain.QueuedInput{
		ID:         uuid.NewString(),
		Content:    content,
		Priority:   priority,
		Source:     source,
		EnqueuedAt: time.Now().UTC(),
	}

	q.mu.Lock()
	switch priority {
	case domain.PriorityHigh:
		q.high = append(q.high, in)
	case domain.PriorityLow:
		q.low = append(q.low, in)
	default:
		q.normal = append(q.normal, in)
	}
	depth := len(q.high) + len(q.normal) + len(q.low)
	q.mu.Unlock()

	q.logger.Debug("input enqueued",
		zap.String("id", in.ID),
		zap.String("priority", string(priority)),
		zap.Int("depth", depth))
	return in.ID
}

// Dequeue removes and returns the next input to process, or nil when empty.
// High-tier items are served before Normal, Normal before Low.
func (q *Queue) Dequeue() *domain.QueuedInput {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch {
	case len(q.high) > 0:
		in := q.high[0]
		q.high = q.high[1:]
		return &in
	case len(q.normal) > 0:
		in := q.normal[0]
		q.normal = q.normal[1:]
		return &in
	case len(q.low) > 0:
		in := q.low[0]
		q.low = q.low[1:]
		return &in
	}
	return nil
}

// Size returns the total number of buffered inputs across all tiers.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.high) + len(q.normal) + len(q.low)
}

// Sizes returns the buffered input count per priority tier.
func (q *Queue) Sizes() (high, normal, low int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.high), len(q.normal), len(q.low)
}

// Clear drops all buffered inputs.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.high = nil
	q.normal = nil
	q.low = nil
	q.mu.Unlock()
}

// SetBypass toggles process-wide queue bypass for interactive sessions.
func (q *Queue) SetBypass(on bool) {
	q.mu.Lock()
	q.bypass = on
	q.mu.Unlock()
}

// ShouldQueue reports whether the given input should pass through the queue.
// Returns false when bypass is enabled or the text starts with a command or
// mention sigil.
func (q *Queue) ShouldQueue(text string) bool {
	q.mu.Lock()
	bypass := q.bypass
	q.mu.Unlock()
	if bypass {
		return false
	}

	trimmed := strings.TrimSpace(text)
	for _, p := range bypassPrefixes {
		if strings.HasPrefix(trimmed, p) {
			return false
		}
	}
	return true
}
