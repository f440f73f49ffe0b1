//go:build !linux

package capture

import (
	"context"
	"fmt"

	"github.com/your-org/attendance/internal/models"
)

// V4L2Source is only available on Linux; use the ffmpeg source elsewhere.
type V4L2Source struct {
	device string
}

func NewV4L2Source(device string, _, _ int) *V4L2Source {
	return &V4L2Source{device: device}
}

func (s *V4L2Source) Read(context.Context) (*Frame, error) {
	return nil, fmt.Errorf("v4l2 %s: %w: not supported on this platform", s.device, models.ErrCameraUnavailable)
}

func (s *V4L2Source) Close() error { return nil }
