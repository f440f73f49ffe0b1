package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/your-org/attendance/internal/models"
)

const commandTimeout = 30 * time.Second

// Runner executes an external command and waits for it.
type Runner func(ctx context.Context, name string, args ...string) error

func ExecRunner(ctx context.Context, name string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func GreetingText(kind models.EventKind, identity string) string {
	if kind == models.KindLeave {
		return "See you again " + identity
	}
	return "Welcome " + identity
}

// Speaker says the greeting for an event through a text-to-speech command.
// The text is appended as the last argument.
type Speaker struct {
	command []string
	run     Runner
}

func NewSpeaker(command []string, run Runner) *Speaker {
	if run == nil {
		run = ExecRunner
	}
	return &Speaker{command: command, run: run}
}

func (s *Speaker) HandleEvent(ctx context.Context, ev models.AttendanceEvent) error {
	if len(s.command) == 0 {
		return nil
	}
	args := append(slices.Clone(s.command[1:]), GreetingText(ev.Kind, ev.Identity))
	if err := s.run(ctx, s.command[0], args...); err != nil {
		return fmt.Errorf("speak: %w", err)
	}
	return nil
}

// SoundPlayer plays the welcome sound for attendance events.
type SoundPlayer struct {
	command []string
	file    string
	run     Runner
}

func NewSoundPlayer(command []string, file string, run Runner) *SoundPlayer {
	if run == nil {
		run = ExecRunner
	}
	return &SoundPlayer{command: command, file: file, run: run}
}

func (p *SoundPlayer) HandleEvent(ctx context.Context, ev models.AttendanceEvent) error {
	if ev.Kind != models.KindAttendance || len(p.command) == 0 || p.file == "" {
		return nil
	}
	if _, err := os.Stat(p.file); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("sound file not found", "path", p.file)
			return nil
		}
		return fmt.Errorf("stat sound file: %w", err)
	}
	args := append(slices.Clone(p.command[1:]), p.file)
	if err := p.run(ctx, p.command[0], args...); err != nil {
		return fmt.Errorf("play sound: %w", err)
	}
	return nil
}
