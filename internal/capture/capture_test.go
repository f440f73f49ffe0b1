package capture

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameSlot_CopyOnStore(t *testing.T) {
	var slot FrameSlot
	_, ok := slot.Latest()
	assert.False(t, ok)
	assert.Equal(t, uint64(0), slot.Version())

	buf := []byte{1, 2, 3}
	f1 := slot.Store(buf, time.Unix(100, 0))
	buf[0] = 9

	got, ok := slot.Latest()
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, got.Data, "stored frame does not alias the caller's buffer")
	assert.Equal(t, uint64(1), got.Seq)

	f2 := slot.Store([]byte{4}, time.Unix(101, 0))
	assert.Equal(t, uint64(2), f2.Seq)
	assert.Equal(t, []byte{1, 2, 3}, f1.Data, "earlier snapshot is unchanged")
	assert.Equal(t, uint64(2), slot.Version())
}

func TestDispatcher_SingleInFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 4)
	var runs atomic.Int32

	d := NewDispatcher(func(ctx context.Context, f *Frame) {
		runs.Add(1)
		started <- struct{}{}
		<-release
	})

	ctx := context.Background()
	require.True(t, d.TryDispatch(ctx, &Frame{Seq: 1}))
	<-started
	assert.True(t, d.Busy())

	assert.False(t, d.TryDispatch(ctx, &Frame{Seq: 2}))
	assert.False(t, d.TryDispatch(ctx, &Frame{Seq: 3}))

	close(release)
	d.Wait()
	assert.False(t, d.Busy())
	assert.Equal(t, int32(1), runs.Load())

	require.True(t, d.TryDispatch(ctx, &Frame{Seq: 4}))
	d.Wait()
	assert.Equal(t, int32(2), runs.Load())
}

func TestDispatcher_ReleasesAfterPanic(t *testing.T) {
	var calls atomic.Int32
	d := NewDispatcher(func(ctx context.Context, f *Frame) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
	})

	require.True(t, d.TryDispatch(context.Background(), &Frame{Seq: 1}))
	d.Wait()
	require.True(t, d.TryDispatch(context.Background(), &Frame{Seq: 2}))
	d.Wait()
	assert.Equal(t, int32(2), calls.Load())
}

// scriptedSource fails every other read.
type scriptedSource struct {
	mu    sync.Mutex
	reads int
}

func (s *scriptedSource) Read(ctx context.Context) (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.reads%2 == 0 {
		return nil, errors.New("transient camera error")
	}
	return &Frame{Data: []byte{0xFF, 0xD8, byte(s.reads), 0xFF, 0xD9}}, nil
}

func (s *scriptedSource) Close() error { return nil }

func TestLoop_SkipsFailedReadsAndKeepsRunning(t *testing.T) {
	src := &scriptedSource{}
	var slot FrameSlot
	var tasks atomic.Int32
	d := NewDispatcher(func(ctx context.Context, f *Frame) {
		tasks.Add(1)
	})
	loop := NewLoop(src, &slot, d, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	require.Eventually(t, func() bool { return slot.Version() >= 5 }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, Idle, loop.State())
	assert.Positive(t, tasks.Load())
	f, ok := slot.Latest()
	require.True(t, ok)
	assert.NotZero(t, f.CapturedAt, "loop stamps frames without a capture time")
}

func TestLoop_DropsFramesWhileBusy(t *testing.T) {
	src := &scriptedSource{}
	var slot FrameSlot
	release := make(chan struct{})
	var tasks atomic.Int32
	d := NewDispatcher(func(ctx context.Context, f *Frame) {
		tasks.Add(1)
		<-release
	})
	loop := NewLoop(src, &slot, d, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	require.Eventually(t, func() bool { return slot.Version() >= 10 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, int32(1), tasks.Load(), "frames captured while a task runs are not queued")

	close(release)
	cancel()
	require.NoError(t, <-done)
}

func TestReadJPEGFrames(t *testing.T) {
	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0x11})                   // leading garbage
	stream.Write([]byte{0xFF, 0xD8, 1, 2, 0xFF, 0xD9}) // frame 1
	stream.Write([]byte{0xFF, 0xFF, 0xD8, 3, 0xFF, 0x00, 4, 0xFF, 0xD9})
	stream.Write([]byte{0xFF, 0xD8, 5}) // truncated

	var frames [][]byte
	err := readJPEGFrames(context.Background(), &stream, func(b []byte) {
		frames = append(frames, b)
	})
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, []byte{0xFF, 0xD8, 1, 2, 0xFF, 0xD9}, frames[0])
	assert.Equal(t, []byte{0xFF, 0xD8, 3, 0xFF, 0x00, 4, 0xFF, 0xD9}, frames[1])
}

func TestFFmpegSource_PublishKeepsNewest(t *testing.T) {
	s := &FFmpegSource{frames: make(chan []byte, 1)}
	s.publish([]byte{1})
	s.publish([]byte{2})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f, err := s.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, f.Data)
}

func TestFFmpegSource_Args(t *testing.T) {
	s := &FFmpegSource{cfg: FFmpegConfig{Input: "rtsp://cam/stream", FPS: 10, Width: 640}}
	args := s.args()
	assert.Contains(t, args, "-rtsp_transport")
	assert.Contains(t, args, "fps=10,scale=640:-1")
	assert.Equal(t, "pipe:1", args[len(args)-1])

	s = &FFmpegSource{cfg: FFmpegConfig{Input: "/dev/video0", Format: "v4l2", FPS: 5}}
	args = s.args()
	assert.Contains(t, args, "v4l2")
	assert.Contains(t, args, "fps=5")
}
