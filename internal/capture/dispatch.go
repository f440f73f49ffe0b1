package capture

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/your-org/attendance/internal/observability"
)

// Task processes one frame. Its outcome is reported by the task itself.
type Task func(ctx context.Context, f *Frame)

// Dispatcher runs at most one Task at a time. A frame offered while a task
// is running is dropped, never queued.
type Dispatcher struct {
	sem  chan struct{}
	task Task
	wg   sync.WaitGroup
}

func NewDispatcher(task Task) *Dispatcher {
	return &Dispatcher{sem: make(chan struct{}, 1), task: task}
}

// TryDispatch starts task on f in a new goroutine if the slot is free.
func (d *Dispatcher) TryDispatch(ctx context.Context, f *Frame) bool {
	select {
	case d.sem <- struct{}{}:
	default:
		observability.DispatchSkipped.Inc()
		return false
	}

	d.wg.Add(1)
	observability.RecognitionInFlight.Inc()
	go d.run(ctx, f)
	return true
}

func (d *Dispatcher) run(ctx context.Context, f *Frame) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("recognition task panicked", "seq", f.Seq, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
		observability.RecognitionInFlight.Dec()
		<-d.sem
		d.wg.Done()
	}()
	d.task(ctx, f)
}

// Busy reports whether a task currently holds the slot.
func (d *Dispatcher) Busy() bool {
	return len(d.sem) > 0
}

// Wait blocks until the running task, if any, has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
