package capture

import (
	"github.com/your-org/attendance/internal/config"
)

// OpenSource builds the frame source selected in cfg.
func OpenSource(cfg config.CameraConfig) Source {
	if cfg.Source == "ffmpeg" {
		input := cfg.Input
		if input == "" {
			input = cfg.Device
		}
		return NewFFmpegSource(FFmpegConfig{
			Binary:     cfg.FFmpegPath,
			Input:      input,
			Format:     cfg.InputFormat,
			FPS:        cfg.FPS,
			Width:      cfg.Width,
			RetryDelay: cfg.RetryDelay,
		})
	}
	return NewV4L2Source(cfg.Device, cfg.Width, cfg.Height)
}
