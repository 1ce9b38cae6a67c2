package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LocalBus is the in-process bus used when Redis is not configured. Events
// are fanned out to buffered subscriber channels; an event is dropped for a
// subscriber whose buffer is full rather than blocking the publisher.
type LocalBus struct {
	mu          sync.Mutex
	subscribers map[int]chan Event
	nextID      int
	bufferSize  int
	logger      *zap.Logger
}

func NewLocalBus(bufferSize int, logger *zap.Logger) *LocalBus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalBus{
		subscribers: make(map[int]chan Event),
		bufferSize:  bufferSize,
		logger:      logger,
	}
}

func (b *LocalBus) Publish(_ context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.logger.Warn("event dropped for slow subscriber",
				zap.Int("subscriber", id),
				zap.String("kind", string(event.Kind)),
			)
		}
	}
	return nil
}

func (b *LocalBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.bufferSize)
	b.subscribers[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(existing)
		}
	}
	return ch, cancel
}
