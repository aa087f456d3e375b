package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"labelcheck/internal/notify/metrics"
)

const defaultBufferSize = 64

// Bus fans notifications out to subscribers, each with its own buffered
// channel. Publish never blocks: a full subscriber buffer drops the
// notification for that subscriber only.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	nextID  uint64
	closed  bool
	buffer  int
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Bus)

func WithBufferSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bus) {
		b.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Bus) {
		b.now = now
	}
}

func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[uint64]*Subscription),
		buffer: defaultBufferSize,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscription is one live observer. Read from C until it is closed.
type Subscription struct {
	id     uint64
	bus    *Bus
	filter Filter
	ch     chan Notification
	once   sync.Once
}

// C returns the delivery channel.
func (s *Subscription) C() <-chan Notification {
	return s.ch
}

// Close detaches the subscription and closes its channel. Safe to call twice.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}

// Subscribe registers an observer. The first delivered notification is always
// a fresh "connected" notification; nothing published earlier is replayed.
func (b *Bus) Subscribe(filter Filter) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		id:     b.nextID,
		bus:    b,
		filter: filter,
		ch:     make(chan Notification, b.buffer),
	}
	b.nextID++
	if b.closed {
		sub.once.Do(func() { close(sub.ch) })
		return sub
	}
	sub.ch <- b.stamp(Notification{Type: TypeConnected, Scope: ScopeSystem})
	b.subs[sub.id] = sub
	b.metrics.SetSubscribers(len(b.subs))
	return sub
}

// Publish delivers n to every matching subscriber without waiting.
func (b *Bus) Publish(n Notification) {
	n = b.stamp(n)
	b.metrics.IncPublished(string(n.Type))

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !sub.filter.matches(n) {
			continue
		}
		select {
		case sub.ch <- n:
		default:
			b.metrics.IncDropped()
			if b.logger != nil {
				b.logger.Debug("notification dropped for slow subscriber",
					"subscriber", sub.id,
					"type", n.Type,
				)
			}
		}
	}
}

// SubscriberCount returns the number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close detaches all subscribers. Later subscriptions are born closed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		sub.once.Do(func() { close(sub.ch) })
	}
	b.metrics.SetSubscribers(0)
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; ok {
		delete(b.subs, sub.id)
		b.metrics.SetSubscribers(len(b.subs))
	}
	sub.once.Do(func() { close(sub.ch) })
}

func (b *Bus) stamp(n Notification) Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = b.now().UTC()
	}
	return n
}
