package events

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultMailboxSize bounds each subscriber's backlog.
const DefaultMailboxSize = 1024

// Logger defines the logging interface used by the bus.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Handler processes one event. Returned errors are logged by the bus.
type Handler func(ctx context.Context, ev Event) error

// Publisher is the publishing side of a Bus.
type Publisher interface {
	Publish(ev Event)
}

// Subscription identifies a registered handler.
type Subscription struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Bus is the subscriber registry and dispatcher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*subscriber
	closed bool
	logger Logger

	mailboxSize int
	seq         atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Bus.
type Option func(*Bus)

// WithMailboxSize sets the per-subscriber backlog limit. When a mailbox is
// full the oldest pending event is dropped.
func WithMailboxSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.mailboxSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBus creates a bus with no subscribers.
func NewBus(opts ...Option) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		subs:        make(map[string]*subscriber),
		logger:      noopLogger{},
		mailboxSize: DefaultMailboxSize,
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetLogger sets the logger for the bus.
func (b *Bus) SetLogger(l Logger) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if l != nil {
		b.logger = l
	}
}

func (b *Bus) log() Logger {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.logger
}

// Subscribe registers h and starts its dispatch goroutine. name is used
// in logs only. Subscribing to a closed bus returns a Subscription whose
// handler never runs.
func (b *Bus) Subscribe(name string, h Handler) Subscription {
	sub := &subscriber{
		id:      uuid.NewString(),
		name:    name,
		handler: h,
		limit:   b.mailboxSize,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Subscription{ID: sub.id, Name: name}
	}
	b.subs[sub.id] = sub

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		sub.run(b.ctx, b.log)
	}()

	b.logger.Debug("event subscriber added", "subscriber", name, "id", sub.id)
	return Subscription{ID: sub.id, Name: name}
}

// Unsubscribe removes a subscriber. Pending events for it are discarded.
// It reports whether the subscription existed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()

	if ok {
		sub.close()
	}
	return ok
}

// Subscriptions lists the current subscribers sorted by name.
func (b *Bus) Subscriptions() []Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		out = append(out, Subscription{ID: s.id, Name: s.name})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Publish queues ev for every subscriber and returns immediately.
func (b *Bus) Publish(ev Event) {
	ev.Seq = b.seq.Add(1)
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if dropped, ok := sub.enqueue(ev); ok {
			b.logger.Warn("event mailbox full, dropped oldest event",
				"subscriber", sub.name,
				"dropped_type", dropped.Type,
				"dropped_device", dropped.DeviceID,
				"dropped_seq", dropped.Seq,
			)
		}
	}
}

// Close stops every dispatch goroutine and waits for them to exit.
// In-flight handlers see their context cancelled.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[string]*subscriber)
	b.mu.Unlock()

	b.cancel()
	for _, sub := range subs {
		sub.close()
	}
	b.wg.Wait()
}

// subscriber is one mailbox plus its dispatch loop.
type subscriber struct {
	id      string
	name    string
	handler Handler
	limit   int

	mu      sync.Mutex
	pending []Event

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// enqueue appends ev, dropping the oldest pending event when the mailbox
// is full. It returns the dropped event, if any.
func (s *subscriber) enqueue(ev Event) (Event, bool) {
	s.mu.Lock()
	var dropped Event
	overflow := len(s.pending) >= s.limit
	if overflow {
		dropped = s.pending[0]
		s.pending = s.pending[1:]
	}
	s.pending = append(s.pending, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return dropped, overflow
}

func (s *subscriber) take() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.pending
	s.pending = nil
	return batch
}

func (s *subscriber) close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *subscriber) run(ctx context.Context, logger func() Logger) {
	for {
		select {
		case <-s.stop:
			return
		case <-s.wake:
		}

		for _, ev := range s.take() {
			select {
			case <-s.stop:
				return
			default:
			}
			s.deliver(ctx, logger(), ev)
		}
	}
}

func (s *subscriber) deliver(ctx context.Context, logger Logger, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event handler panicked",
				"subscriber", s.name,
				"event", ev.Type,
				"device_id", ev.DeviceID,
				"panic", fmt.Sprint(r),
			)
		}
	}()

	if err := s.handler(ctx, ev); err != nil {
		logger.Warn("event handler failed",
			"subscriber", s.name,
			"event", ev.Type,
			"device_id", ev.DeviceID,
			"error", err,
		)
	}
}
