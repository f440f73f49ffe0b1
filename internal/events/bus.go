package events

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/observability"
)

const DefaultQueueSize = 64

// Handler consumes one committed event. Errors are logged and counted; the
// event is not redelivered.
type Handler func(ctx context.Context, ev models.AttendanceEvent) error

type subscriber struct {
	name  string
	kinds []models.EventKind
	queue chan models.AttendanceEvent
	fn    Handler
}

func (s *subscriber) wants(k models.EventKind) bool {
	return len(s.kinds) == 0 || slices.Contains(s.kinds, k)
}

// Bus fans committed ledger events out to subscribers. Every subscriber has
// its own goroutine and bounded queue; Publish never blocks, and a full
// queue drops the event for that subscriber only.
type Bus struct {
	mu        sync.RWMutex
	subs      []*subscriber
	closed    bool
	queueSize int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBus(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{queueSize: queueSize, ctx: ctx, cancel: cancel}
}

// Subscribe registers fn for the given kinds, or for all kinds when none
// are given.
func (b *Bus) Subscribe(name string, fn Handler, kinds ...models.EventKind) {
	s := &subscriber{
		name:  name,
		kinds: kinds,
		queue: make(chan models.AttendanceEvent, b.queueSize),
		fn:    fn,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.subs = append(b.subs, s)
	b.wg.Add(1)
	go b.run(s)
	slog.Info("event subscriber registered", "subscriber", name)
}

func (b *Bus) Publish(ev models.AttendanceEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		if !s.wants(ev.Kind) {
			continue
		}
		select {
		case s.queue <- ev:
		default:
			observability.SubscriberDropped.WithLabelValues(s.name).Inc()
			slog.Warn("subscriber queue full, event dropped",
				"subscriber", s.name, "identity", ev.Identity, "kind", ev.Kind)
		}
	}
}

func (b *Bus) run(s *subscriber) {
	defer b.wg.Done()
	for ev := range s.queue {
		b.deliver(s, ev)
	}
}

func (b *Bus) deliver(s *subscriber, ev models.AttendanceEvent) {
	defer func() {
		if r := recover(); r != nil {
			observability.NotificationFailures.WithLabelValues(s.name).Inc()
			slog.Error("subscriber panicked", "subscriber", s.name, "panic", fmt.Sprint(r))
		}
	}()
	if err := s.fn(b.ctx, ev); err != nil {
		observability.NotificationFailures.WithLabelValues(s.name).Inc()
		slog.Error("subscriber failed", "subscriber", s.name, "identity", ev.Identity, "kind", ev.Kind, "error", err)
	}
}

// Close stops accepting events and waits for queued ones to be handled, or
// until ctx is done, in which case in-flight handlers see a cancelled
// context.
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, s := range b.subs {
		close(s.queue)
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.cancel()
		return nil
	case <-ctx.Done():
		b.cancel()
		<-done
		return ctx.Err()
	}
}
