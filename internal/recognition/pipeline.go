package recognition

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"time"

	"github.com/your-org/attendance/internal/capture"
	"github.com/your-org/attendance/internal/gallery"
	"github.com/your-org/attendance/internal/match"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/observability"
)

type (
	FaceDetector = gallery.FaceDetector
	FaceEncoder  = gallery.FaceEncoder
)

const EvidencePrefix = "evidence/"

// Gallery yields the entries the matcher compares against.
type Gallery interface {
	Snapshot(ctx context.Context) ([]gallery.Entry, error)
}

type Gate interface {
	Evaluate(img image.Image, faces []models.Face) bool
}

type Matcher interface {
	MatchFrame(probes []models.Embedding, entries []gallery.Entry) []match.Result
}

type Ledger interface {
	AttendedToday(ctx context.Context, identity string) (bool, error)
	CommitAttendance(ctx context.Context, identity, evidenceRef string) (models.AttendanceEvent, error)
	CommitLeave(ctx context.Context, identity, evidenceRef string) (models.LeaveEvent, error)
}

type EvidenceStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	DeleteObject(ctx context.Context, key string) error
}

// SessionAudit receives one line per resolved login or logout.
type SessionAudit interface {
	Record(ctx context.Context, identity string, kind models.EventKind, at time.Time) error
}

// FrameSource hands out the most recent captured frame.
type FrameSource interface {
	Latest() (*capture.Frame, bool)
}

type Deps struct {
	Detector FaceDetector
	Encoder  FaceEncoder
	Gate     Gate
	Gallery  Gallery
	Matcher  Matcher
	Ledger   Ledger
	Evidence EvidenceStore
	Frames   FrameSource
	Audit    SessionAudit
	Now      func() time.Time
}

// Pipeline turns frames into ledger commits. ProcessFrame serves the
// continuous capture loop; Login and Logout serve interactive sessions.
type Pipeline struct {
	Deps
}

func New(d Deps) (*Pipeline, error) {
	switch {
	case d.Detector == nil, d.Encoder == nil:
		return nil, errors.New("recognition: detector and encoder are required")
	case d.Gate == nil, d.Gallery == nil, d.Matcher == nil, d.Ledger == nil:
		return nil, errors.New("recognition: gate, gallery, matcher and ledger are required")
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Pipeline{Deps: d}, nil
}

// analysis is what one frame yields before any commit.
type analysis struct {
	faces   []models.Face
	live    bool
	results []match.Result
}

func (p *Pipeline) analyse(ctx context.Context, img image.Image) (analysis, error) {
	var a analysis

	faces, err := p.Detector.Detect(ctx, img)
	if err != nil {
		return a, fmt.Errorf("detect faces: %w", err)
	}
	a.faces = faces
	if len(faces) == 0 {
		a.live = true
		a.results = p.Matcher.MatchFrame(nil, nil)
		observability.MatchResults.WithLabelValues(models.NoPersonsFound).Inc()
		return a, nil
	}

	if !p.Gate.Evaluate(img, faces) {
		observability.SpoofRejected.Inc()
		return a, nil
	}
	a.live = true

	// probes[i] belongs to faces[i]. A face that fails to encode keeps a nil
	// probe, which the matcher reports as unknown_person.
	probes := make([]models.Embedding, len(faces))
	for i, f := range faces {
		emb, err := p.Encoder.Encode(ctx, img, f)
		if err != nil {
			slog.Warn("encode face", "face", i, "error", err)
			continue
		}
		probes[i] = emb
	}

	entries, err := p.Gallery.Snapshot(ctx)
	if err != nil {
		return a, fmt.Errorf("gallery snapshot: %w", err)
	}

	start := time.Now()
	a.results = p.Matcher.MatchFrame(probes, entries)
	observability.InferenceDuration.WithLabelValues("match").Observe(time.Since(start).Seconds())

	for _, r := range a.results {
		outcome := r.Identity
		if r.Resolved() {
			outcome = "matched"
		}
		observability.MatchResults.WithLabelValues(outcome).Inc()
	}
	return a, nil
}

// HandleFrame is the capture.Task run for every dispatched frame.
func (p *Pipeline) HandleFrame(ctx context.Context, f *capture.Frame) {
	committed, err := p.ProcessFrame(ctx, f)
	if err != nil {
		slog.Warn("process frame", "seq", f.Seq, "error", err)
		return
	}
	for _, ev := range committed {
		slog.Debug("frame produced attendance", "seq", f.Seq, "identity", ev.Identity)
	}
}

// ProcessFrame commits attendance for every identity resolved in f that has
// not attended today.
func (p *Pipeline) ProcessFrame(ctx context.Context, f *capture.Frame) ([]models.AttendanceEvent, error) {
	img, err := decode(f.Data)
	if err != nil {
		return nil, err
	}
	a, err := p.analyse(ctx, img)
	if err != nil {
		return nil, err
	}
	if !a.live {
		return nil, nil
	}

	var committed []models.AttendanceEvent
	seen := make(map[string]bool)
	for _, r := range a.results {
		if !r.Resolved() || seen[r.Identity] {
			continue
		}
		seen[r.Identity] = true

		ev, err := p.commitAttendance(ctx, r.Identity, f.Data)
		switch {
		case err == nil:
			committed = append(committed, ev)
		case errors.Is(err, models.ErrAlreadyRecordedToday):
		default:
			slog.Error("commit attendance", "identity", r.Identity, "error", err)
		}
	}
	return committed, nil
}

func (p *Pipeline) commitAttendance(ctx context.Context, identity string, frame []byte) (models.AttendanceEvent, error) {
	attended, err := p.Ledger.AttendedToday(ctx, identity)
	if err != nil {
		return models.AttendanceEvent{}, err
	}
	if attended {
		return models.AttendanceEvent{}, models.ErrAlreadyRecordedToday
	}

	ref := p.saveEvidence(ctx, identity, frame)
	ev, err := p.Ledger.CommitAttendance(ctx, identity, ref)
	if err != nil {
		p.dropEvidence(ctx, ref)
		return models.AttendanceEvent{}, err
	}
	return ev, nil
}

func (p *Pipeline) commitLeave(ctx context.Context, identity string, frame []byte) (models.LeaveEvent, error) {
	ref := p.saveEvidence(ctx, identity, frame)
	ev, err := p.Ledger.CommitLeave(ctx, identity, ref)
	if err != nil {
		p.dropEvidence(ctx, ref)
		return models.LeaveEvent{}, err
	}
	return ev, nil
}

// saveEvidence stores the frame and returns its key, or "" when evidence is
// disabled or the write failed. A failed write never blocks the commit.
func (p *Pipeline) saveEvidence(ctx context.Context, identity string, frame []byte) string {
	if p.Evidence == nil || len(frame) == 0 {
		return ""
	}
	key := EvidencePrefix + models.EvidenceKey(identity, p.Now())
	if err := p.Evidence.PutObject(ctx, key, frame, "image/jpeg"); err != nil {
		slog.Warn("save evidence", "identity", identity, "key", key, "error", err)
		return ""
	}
	return key
}

func (p *Pipeline) dropEvidence(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := p.Evidence.DeleteObject(ctx, key); err != nil {
		slog.Warn("delete evidence", "key", key, "error", err)
	}
}

func decode(data []byte) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}
