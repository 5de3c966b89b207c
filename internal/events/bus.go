package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Event is anything published on the bus.
type Event interface {
	Topic() string
}

// Handler receives events of the topics it subscribed to.
type Handler func(ctx context.Context, event Event) error

// Publisher is the write side of the bus.
type Publisher interface {
	Publish(ctx context.Context, events ...Event)
}

// Subscriber is the read side of the bus.
type Subscriber interface {
	Subscribe(topic string, handler Handler) (unsubscribe func())
}

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is an in-process publish/subscribe channel. Delivery is synchronous
// and in subscription order; a failing or panicking handler does not stop
// delivery to the others.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscription
	logger *zap.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subs:   make(map[string][]subscription),
		logger: logger,
	}
}

// Subscribe registers handler for topic. After unsubscribe returns the
// handler is never called again.
func (b *Bus) Subscribe(topic string, handler Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: handler})
	b.mu.Unlock()

	b.logger.Debug("handler subscribed", zap.String("topic", topic))

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subs[topic]
			for i, s := range subs {
				if s.id == id {
					b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers every event to the current subscribers of its topic.
func (b *Bus) Publish(ctx context.Context, events ...Event) {
	for _, event := range events {
		b.mu.RLock()
		subs := append([]subscription(nil), b.subs[event.Topic()]...)
		b.mu.RUnlock()

		for _, s := range subs {
			if !b.active(event.Topic(), s.id) {
				continue
			}
			if err := b.dispatch(ctx, s.handler, event); err != nil {
				b.logger.Error("handler failed to process event",
					zap.String("topic", event.Topic()),
					zap.Error(err),
				)
			}
		}
	}
}

// SubscriberCount returns the number of handlers on topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// active reports whether the subscription still exists. A handler may
// unsubscribe another one during delivery.
func (b *Bus) active(topic string, id uint64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs[topic] {
		if s.id == id {
			return true
		}
	}
	return false
}

func (b *Bus) dispatch(ctx context.Context, handler Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked",
				zap.String("topic", event.Topic()),
				zap.Any("panic", r),
			)
		}
	}()
	return handler(ctx, event)
}

var (
	_ Publisher  = (*Bus)(nil)
	_ Subscriber = (*Bus)(nil)
)
