package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/your-org/attendance/internal/observability"
)

type State int32

const (
	Idle State = iota
	Capturing
	Dispatched
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case Dispatched:
		return "dispatched"
	}
	return "unknown"
}

const (
	DefaultTick        = 20 * time.Millisecond
	defaultReadTimeout = 2 * time.Second
	// Only every Nth consecutive read failure is logged.
	failureLogEvery = 250
)

// Loop reads a frame every tick, publishes it to the slot and offers it to
// the dispatcher. Read failures never stop the loop.
type Loop struct {
	source      Source
	slot        *FrameSlot
	dispatcher  *Dispatcher
	tick        time.Duration
	readTimeout time.Duration
	now         func() time.Time

	state    atomic.Int32
	failures int
}

func NewLoop(source Source, slot *FrameSlot, dispatcher *Dispatcher, tick time.Duration) *Loop {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Loop{
		source:      source,
		slot:        slot,
		dispatcher:  dispatcher,
		tick:        tick,
		readTimeout: defaultReadTimeout,
		now:         time.Now,
	}
}

func (l *Loop) State() State {
	return State(l.state.Load())
}

// Run blocks until ctx is cancelled, then waits for the in-flight task.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()
	defer l.dispatcher.Wait()

	slog.Info("capture loop started", "tick", l.tick)
	for {
		select {
		case <-ctx.Done():
			slog.Info("capture loop stopped", "frames", l.slot.Version())
			return nil
		case <-ticker.C:
			l.step(ctx)
		}
	}
}

func (l *Loop) step(ctx context.Context) {
	l.state.Store(int32(Capturing))
	defer l.state.Store(int32(Idle))

	readCtx, cancel := context.WithTimeout(ctx, l.readTimeout)
	data, err := l.read(readCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		observability.CaptureErrors.Inc()
		l.failures++
		if l.failures == 1 || l.failures%failureLogEvery == 0 {
			slog.Warn("camera read failed", "error", err, "consecutive_failures", l.failures)
		}
		return
	}
	if l.failures > 0 {
		slog.Info("camera read recovered", "after_failures", l.failures)
		l.failures = 0
	}

	f := l.slot.Store(data.Data, data.CapturedAt)
	observability.FramesCaptured.Inc()

	l.state.Store(int32(Dispatched))
	l.dispatcher.TryDispatch(ctx, f)
}

func (l *Loop) read(ctx context.Context) (*Frame, error) {
	f, err := l.source.Read(ctx)
	if err != nil {
		return nil, err
	}
	if f == nil || len(f.Data) == 0 {
		return nil, errors.New("empty frame")
	}
	if f.CapturedAt.IsZero() {
		f.CapturedAt = l.now()
	}
	return f, nil
}
