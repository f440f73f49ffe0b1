package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/your-org/attendance/internal/models"
)

const maxJPEGSize = 10 * 1024 * 1024

// FFmpegConfig describes an ffmpeg input. Input is a device path or URL;
// Format is passed as -f when set (for example "v4l2" or "avfoundation").
type FFmpegConfig struct {
	Binary     string
	Input      string
	Format     string
	FPS        int
	Width      int
	RetryDelay time.Duration
}

// FFmpegSource decodes any ffmpeg-readable input into a stream of JPEG
// frames. The ffmpeg process runs in the background and is restarted after
// RetryDelay when it exits. Read returns the newest frame; older unread
// frames are discarded.
type FFmpegSource struct {
	cfg    FFmpegConfig
	frames chan []byte

	mu      sync.Mutex
	lastErr error

	cancel context.CancelFunc
	done   chan struct{}
}

func NewFFmpegSource(cfg FFmpegConfig) *FFmpegSource {
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 15
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &FFmpegSource{
		cfg:    cfg,
		frames: make(chan []byte, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.supervise(ctx)
	return s
}

func (s *FFmpegSource) Read(ctx context.Context) (*Frame, error) {
	select {
	case data := <-s.frames:
		return &Frame{CapturedAt: time.Now(), Data: data}, nil
	case <-ctx.Done():
		s.mu.Lock()
		lastErr := s.lastErr
		s.mu.Unlock()
		if lastErr != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrCameraUnavailable, lastErr)
		}
		return nil, fmt.Errorf("%w: %w", models.ErrCameraUnavailable, ctx.Err())
	}
}

func (s *FFmpegSource) Close() error {
	s.cancel()
	<-s.done
	return nil
}

func (s *FFmpegSource) supervise(ctx context.Context) {
	defer close(s.done)
	for {
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = errors.New("ffmpeg exited")
		}
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		slog.Warn("ffmpeg source stopped, restarting", "input", s.cfg.Input, "error", err, "delay", s.cfg.RetryDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.RetryDelay):
		}
	}
}

func (s *FFmpegSource) args() []string {
	args := []string{"-hide_banner", "-loglevel", "warning"}

	input := s.cfg.Input
	switch {
	case strings.HasPrefix(input, "rtsp://") || strings.HasPrefix(input, "rtsps://"):
		args = append(args, "-rtsp_transport", "tcp", "-timeout", "5000000")
	case strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://"):
		args = append(args, "-reconnect", "1", "-reconnect_streamed", "1", "-reconnect_delay_max", "5")
	}
	if s.cfg.Format != "" {
		args = append(args, "-f", s.cfg.Format)
	}

	filter := fmt.Sprintf("fps=%d", s.cfg.FPS)
	if s.cfg.Width > 0 {
		filter += fmt.Sprintf(",scale=%d:-1", s.cfg.Width)
	}
	return append(args,
		"-i", input,
		"-vf", filter,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	)
}

func (s *FFmpegSource) runOnce(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, s.cfg.Binary, s.args()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			slog.Warn("ffmpeg stderr", "output", scanner.Text())
		}
	}()

	readErr := readJPEGFrames(ctx, stdout, s.publish)
	waitErr := cmd.Wait()
	if readErr != nil {
		return fmt.Errorf("read frames: %w", readErr)
	}
	return waitErr
}

// publish keeps only the newest frame in the buffer.
func (s *FFmpegSource) publish(frame []byte) {
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()
	for {
		select {
		case s.frames <- frame:
			return
		default:
		}
		select {
		case <-s.frames:
		default:
		}
	}
}

// readJPEGFrames splits a stream of concatenated JPEG images on the SOI/EOI
// markers and hands each image to emit.
func readJPEGFrames(ctx context.Context, r io.Reader, emit func([]byte)) error {
	reader := bufio.NewReaderSize(r, 512*1024)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := findJPEGStart(reader); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		frame, err := readUntilJPEGEnd(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		emit(frame)
	}
}

func findJPEGStart(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b != 0xFF {
			continue
		}
		b, err = r.ReadByte()
		if err != nil {
			return err
		}
		if b == 0xD8 {
			return nil
		}
		if b == 0xFF {
			_ = r.UnreadByte()
		}
	}
}

func readUntilJPEGEnd(r *bufio.Reader) ([]byte, error) {
	data := []byte{0xFF, 0xD8}
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		data = append(data, b)

		if b == 0xFF {
			next, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			data = append(data, next)
			if next == 0xD9 {
				return data, nil
			}
		}

		if len(data) > maxJPEGSize {
			return nil, fmt.Errorf("jpeg frame too large: %d bytes", len(data))
		}
	}
}
