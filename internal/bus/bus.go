// Package bus publishes orchestration progress events to external
// subscribers (UI, logs). Publishing is fire-and-forget: a slow or dead
// subscriber loses events, it never blocks the pipeline.
package bus

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/seva/axon/internal/domain"
)

// Bus fan-outs events to subscriber channels.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]chan domain.Event
	nextID  int
	dropped atomic.Int64
	onDrop  func()
	logger  *zap.Logger
}

// OnDrop installs a hook invoked once per dropped event, for metrics.
// Must be called before the first Publish.
func (b *Bus) OnDrop(fn func()) {
	b.onDrop = fn
}

// New creates an event bus.
func New(logger *zap.Logger) *Bus {
	return &Bus{
		subs:   make(map[int]chan domain.Event),
		logger: logger.Named("bus"),
	}
}

// Subscribe registers a buffered subscriber channel. The returned cancel
// function removes the subscription and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan domain.Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan domain.Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking. Full
// subscriber buffers drop the event; the drop is logged, not propagated.
func (b *Bus) Publish(event domain.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
			if b.onDrop != nil {
				b.onDrop()
			}
			b.logger.Debug("event dropped, subscriber buffer full",
				zap.String("type", string(event.Type)))
		}
	}
}

// Emit builds and publishes a lifecycle event.
func (b *Bus) Emit(eventType domain.EventType, taskID, planID string, payload map[string]any) {
	b.Publish(domain.Event{
		Type:    eventType,
		TaskID:  taskID,
		PlanID:  planID,
		Payload: payload,
	})
}

// Subscribers returns the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many events were lost to full subscriber buffers.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}
