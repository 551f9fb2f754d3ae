package events

import (
	"context"
	"log/slog"
	"sync"
)

// Publisher is the narrow interface domain services emit through.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Bus fans events out to in-process subscribers. Publish never blocks: when a
// subscriber's buffer is full the event is dropped for that subscriber and
// counted, keeping the feed outside the transactional boundary.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
	logger *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used to report dropped events.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[int]chan Event),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a buffered subscription and returns the channel plus a
// cancel function. The channel is closed on cancel or bus close.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	sid := b.nextID
	b.nextID++
	b.subs[sid] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[sid]; ok {
			delete(b.subs, sid)
			close(c)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking.
func (b *Bus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.logger.WarnContext(ctx, "event dropped: subscriber buffer full",
				"kind", event.Kind,
				"record_id", event.RecordID,
			)
		}
	}
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sid, ch := range b.subs {
		delete(b.subs, sid)
		close(ch)
	}
}
