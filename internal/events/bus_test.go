package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/attendance/internal/models"
)

func event(kind models.EventKind, who string) models.AttendanceEvent {
	return models.NewEvent(kind, who, "", time.Now())
}

func TestBus_DeliversToMatchingSubscribers(t *testing.T) {
	bus := NewBus(8)

	var mu sync.Mutex
	got := map[string][]string{}
	record := func(name string) Handler {
		return func(_ context.Context, ev models.AttendanceEvent) error {
			mu.Lock()
			got[name] = append(got[name], ev.Identity)
			mu.Unlock()
			return nil
		}
	}
	bus.Subscribe("all", record("all"))
	bus.Subscribe("welcome", record("welcome"), models.KindAttendance)
	bus.Subscribe("goodbye", record("goodbye"), models.KindLeave)

	bus.Publish(event(models.KindAttendance, "alice"))
	bus.Publish(event(models.KindLeave, "bob"))
	require.NoError(t, bus.Close(context.Background()))

	assert.Equal(t, []string{"alice", "bob"}, got["all"])
	assert.Equal(t, []string{"alice"}, got["welcome"])
	assert.Equal(t, []string{"bob"}, got["goodbye"])
}

func TestBus_SlowSubscriberDoesNotBlockPublishOrOthers(t *testing.T) {
	bus := NewBus(1)
	release := make(chan struct{})
	var fast atomic.Int32

	bus.Subscribe("slow", func(context.Context, models.AttendanceEvent) error {
		<-release
		return nil
	})
	bus.Subscribe("fast", func(context.Context, models.AttendanceEvent) error {
		fast.Add(1)
		return nil
	})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			bus.Publish(event(models.KindAttendance, "x"))
			time.Sleep(time.Millisecond)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	close(release)
	require.NoError(t, bus.Close(context.Background()))
	assert.Positive(t, fast.Load())
}

func TestBus_HandlerErrorsAndPanicsAreContained(t *testing.T) {
	bus := NewBus(4)
	var calls atomic.Int32
	bus.Subscribe("flaky", func(_ context.Context, ev models.AttendanceEvent) error {
		switch calls.Add(1) {
		case 1:
			return errors.New("smtp down")
		case 2:
			panic("tts crashed")
		}
		return nil
	})

	for i := 0; i < 3; i++ {
		bus.Publish(event(models.KindAttendance, "alice"))
	}
	require.NoError(t, bus.Close(context.Background()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestBus_PublishAfterCloseIsDropped(t *testing.T) {
	bus := NewBus(4)
	var calls atomic.Int32
	bus.Subscribe("s", func(context.Context, models.AttendanceEvent) error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, bus.Close(context.Background()))
	require.NoError(t, bus.Close(context.Background()))

	bus.Publish(event(models.KindAttendance, "alice"))
	assert.Zero(t, calls.Load())
}

func TestBus_CloseDeadlineCancelsHandlers(t *testing.T) {
	bus := NewBus(4)
	bus.Subscribe("stuck", func(ctx context.Context, _ models.AttendanceEvent) error {
		<-ctx.Done()
		return ctx.Err()
	})
	bus.Publish(event(models.KindAttendance, "alice"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := bus.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
