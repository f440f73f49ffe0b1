package capture

import (
	"context"
	"sync/atomic"
	"time"
)

// Frame is an immutable camera frame. Data holds one JPEG image and must not
// be modified after the frame has been stored in a FrameSlot.
type Frame struct {
	Seq        uint64
	CapturedAt time.Time
	Data       []byte
}

// Source produces frames. Read blocks until a frame is available, the
// source fails, or ctx is done. Implementations are driven by a single
// goroutine.
type Source interface {
	Read(ctx context.Context) (*Frame, error)
	Close() error
}

// FrameSlot holds the most recent frame. It has a single writer; readers
// get a snapshot that later writes never mutate.
type FrameSlot struct {
	latest atomic.Pointer[Frame]
	seq    atomic.Uint64
}

// Store copies data into a new frame, assigns it the next sequence number
// and publishes it.
func (s *FrameSlot) Store(data []byte, at time.Time) *Frame {
	buf := make([]byte, len(data))
	copy(buf, data)
	f := &Frame{Seq: s.seq.Add(1), CapturedAt: at, Data: buf}
	s.latest.Store(f)
	return f
}

// Latest returns the current frame, or false before the first Store.
func (s *FrameSlot) Latest() (*Frame, bool) {
	f := s.latest.Load()
	return f, f != nil
}

// Version is the sequence number of the latest frame, 0 if none.
func (s *FrameSlot) Version() uint64 {
	return s.seq.Load()
}
