//go:build linux

package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blackjack/webcam"

	"github.com/your-org/attendance/internal/models"
)

// V4L2_PIX_FMT_MJPEG
const pixFmtMJPEG webcam.PixelFormat = 0x47504A4D

// V4L2Source reads MJPEG frames straight from a V4L2 device. The device is
// opened lazily and reopened after a hard read error, so an unplugged
// camera surfaces as read errors rather than a dead loop.
type V4L2Source struct {
	device string
	width  uint32
	height uint32

	cam *webcam.Webcam
}

func NewV4L2Source(device string, width, height int) *V4L2Source {
	return &V4L2Source{device: device, width: uint32(width), height: uint32(height)}
}

func (s *V4L2Source) open() error {
	cam, err := webcam.Open(s.device)
	if err != nil {
		return fmt.Errorf("open %s: %w: %w", s.device, models.ErrCameraUnavailable, err)
	}

	formats := cam.GetSupportedFormats()
	if _, ok := formats[pixFmtMJPEG]; !ok {
		cam.Close()
		return fmt.Errorf("%s does not support MJPEG: %w", s.device, models.ErrCameraUnavailable)
	}
	_, w, h, err := cam.SetImageFormat(pixFmtMJPEG, s.width, s.height)
	if err != nil {
		cam.Close()
		return fmt.Errorf("set format on %s: %w: %w", s.device, models.ErrCameraUnavailable, err)
	}
	slog.Info("camera opened", "device", s.device, "width", w, "height", h)
	if err := cam.SetBufferCount(2); err != nil {
		slog.Warn("cannot set camera buffer count", "device", s.device, "error", err)
	}
	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return fmt.Errorf("start streaming %s: %w: %w", s.device, models.ErrCameraUnavailable, err)
	}
	s.cam = cam
	return nil
}

// Read waits for the next frame. The driver reuses its mmap buffers, so the
// frame is copied before returning.
func (s *V4L2Source) Read(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.cam == nil {
		if err := s.open(); err != nil {
			return nil, err
		}
	}

	timeout := uint32(1)
	if dl, ok := ctx.Deadline(); ok {
		if secs := time.Until(dl).Seconds(); secs >= 2 {
			timeout = uint32(secs)
		}
	}

	err := s.cam.WaitForFrame(timeout)
	var timeoutErr *webcam.Timeout
	switch {
	case err == nil:
	case errors.As(err, &timeoutErr):
		return nil, fmt.Errorf("wait for frame: %w", models.ErrCameraUnavailable)
	default:
		s.reset()
		return nil, fmt.Errorf("wait for frame: %w: %w", models.ErrCameraUnavailable, err)
	}

	buf, err := s.cam.ReadFrame()
	if err != nil {
		s.reset()
		return nil, fmt.Errorf("read frame: %w: %w", models.ErrCameraUnavailable, err)
	}
	if len(buf) == 0 {
		return nil, errors.New("empty frame")
	}

	data := make([]byte, len(buf))
	copy(data, buf)
	return &Frame{CapturedAt: time.Now(), Data: data}, nil
}

func (s *V4L2Source) reset() {
	if s.cam != nil {
		_ = s.cam.Close()
		s.cam = nil
	}
}

func (s *V4L2Source) Close() error {
	if s.cam == nil {
		return nil
	}
	err := s.cam.Close()
	s.cam = nil
	return err
}
