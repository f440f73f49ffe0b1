package recognition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/your-org/attendance/internal/models"
)

type Outcome string

const (
	Welcome         Outcome = "welcome"
	Goodbye         Outcome = "goodbye"
	AlreadyRecorded Outcome = "already_recorded"
	Unknown         Outcome = "unknown"
	NoFace          Outcome = "no_face"
	Spoof           Outcome = "spoof"
)

type SessionResult struct {
	Outcome  Outcome
	Identity string
	Event    *models.AttendanceEvent
}

// Message is the operator-facing text for the result.
func (r SessionResult) Message() string {
	switch r.Outcome {
	case Welcome:
		return "Welcome, " + r.Identity + "."
	case Goodbye:
		return "See you again " + r.Identity + "."
	case AlreadyRecorded:
		return "Attendance for " + r.Identity + " is already recorded today."
	case Unknown:
		return "Unknown user. Please register new user or try again."
	case NoFace:
		return "No face found. Please try again."
	case Spoof:
		return "Photo or spoof detected."
	}
	return ""
}

// Login resolves the person in the latest frame and records attendance.
func (p *Pipeline) Login(ctx context.Context) (SessionResult, error) {
	return p.session(ctx, models.KindAttendance)
}

// Logout resolves the person in the latest frame and records a leave.
func (p *Pipeline) Logout(ctx context.Context) (SessionResult, error) {
	return p.session(ctx, models.KindLeave)
}

func (p *Pipeline) session(ctx context.Context, kind models.EventKind) (SessionResult, error) {
	if p.Frames == nil {
		return SessionResult{}, models.ErrCameraUnavailable
	}
	f, ok := p.Frames.Latest()
	if !ok {
		return SessionResult{}, models.ErrCameraUnavailable
	}
	img, err := decode(f.Data)
	if err != nil {
		return SessionResult{}, err
	}

	a, err := p.analyse(ctx, img)
	if err != nil {
		return SessionResult{}, err
	}
	switch {
	case len(a.faces) == 0:
		return SessionResult{Outcome: NoFace}, nil
	case !a.live:
		return SessionResult{Outcome: Spoof}, nil
	}

	// Sessions act on the first detected face only.
	if len(a.results) == 0 || !a.results[0].Resolved() {
		return SessionResult{Outcome: Unknown}, nil
	}
	identity := a.results[0].Identity
	p.audit(ctx, identity, kind)

	if kind == models.KindLeave {
		ev, err := p.commitLeave(ctx, identity, f.Data)
		if err != nil {
			return SessionResult{}, fmt.Errorf("commit leave: %w", err)
		}
		return SessionResult{Outcome: Goodbye, Identity: identity, Event: &ev}, nil
	}

	ev, err := p.commitAttendance(ctx, identity, f.Data)
	switch {
	case errors.Is(err, models.ErrAlreadyRecordedToday):
		return SessionResult{Outcome: AlreadyRecorded, Identity: identity}, nil
	case err != nil:
		return SessionResult{}, fmt.Errorf("commit attendance: %w", err)
	}
	return SessionResult{Outcome: Welcome, Identity: identity, Event: &ev}, nil
}

func (p *Pipeline) audit(ctx context.Context, identity string, kind models.EventKind) {
	if p.Audit == nil {
		return
	}
	if err := p.Audit.Record(ctx, identity, kind, p.Now()); err != nil {
		slog.Warn("session audit failed", "identity", identity, "kind", kind, "err", err)
	}
}
