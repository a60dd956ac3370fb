package sandbox

import (
	"context"
	"strings"
	"sync"

	"qinfinity/ports"
)

// EventBusPort is an in-process, synchronous EventBusPort, generalized from
// the teacher's core/events Emitter/NoopEmitter pair into a topic-pattern
// publish/subscribe bus. Delivery is at-least-once and handlers run
// synchronously on the Publish goroutine, matching the teacher's emitter
// which invoked listeners inline rather than through a queue.
type EventBusPort struct {
	mu            sync.RWMutex
	subscriptions map[uint64]subscription
	nextID        uint64
	totalEvents   uint64
}

type subscription struct {
	pattern string
	handler ports.Handler
}

// NewEventBusPort constructs an empty sandbox EventBusPort.
func NewEventBusPort() *EventBusPort {
	return &EventBusPort{subscriptions: make(map[uint64]subscription)}
}

// Publish implements ports.EventBusPort. Every subscription whose pattern
// matches topic is invoked, one after another and in no particular order;
// the first handler error is returned but remaining handlers still run, so
// one failing consumer does not stop delivery to the others.
func (b *EventBusPort) Publish(ctx context.Context, topic string, env ports.Envelope) error {
	env.Topic = topic
	b.mu.Lock()
	b.totalEvents++
	matched := make([]ports.Handler, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		if topicMatches(sub.pattern, topic) {
			matched = append(matched, sub.handler)
		}
	}
	b.mu.Unlock()

	var firstErr error
	for _, handler := range matched {
		if err := handler(ctx, env); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Subscribe implements ports.EventBusPort. topicPattern matches exactly
// unless it ends with ".*", in which case it matches any topic sharing the
// prefix before ".*", or is the bare wildcard "*", which matches every
// topic.
func (b *EventBusPort) Subscribe(_ context.Context, topicPattern string, handler ports.Handler) (func(), error) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscriptions[id] = subscription{pattern: topicPattern, handler: handler}
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subscriptions, id)
		b.mu.Unlock()
	}, nil
}

// TotalEvents reports how many events have been published, for integrity
// validation's event-bus coherence check.
func (b *EventBusPort) TotalEvents() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return int(b.totalEvents)
}

// ActiveSubscriptions reports how many subscriptions are currently live.
func (b *EventBusPort) ActiveSubscriptions() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

func topicMatches(pattern, topic string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, ".*")
		return topic == prefix || strings.HasPrefix(topic, prefix+".")
	}
	return pattern == topic
}
