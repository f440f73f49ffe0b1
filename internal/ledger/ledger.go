package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/observability"
)

// Header is the canonical column set of both ledgers.
var Header = []string{"Name", "Time", "Date", "Image"}

// Filter narrows a ledger listing. Dates are inclusive YYYY-MM-DD bounds;
// empty fields match everything.
type Filter struct {
	Identity string
	From     string
	To       string
}

func (f Filter) Match(ev models.AttendanceEvent) bool {
	if f.Identity != "" && ev.Identity != f.Identity {
		return false
	}
	if f.From != "" && ev.Date < f.From {
		return false
	}
	if f.To != "" && ev.Date > f.To {
		return false
	}
	return true
}

// Store is durable ledger storage. AppendAttendance must enforce one row
// per (identity, date) on its own and report a duplicate by returning
// inserted=false without writing. Appends are durable when they return.
type Store interface {
	AppendAttendance(ctx context.Context, ev models.AttendanceEvent) (inserted bool, err error)
	AppendLeave(ctx context.Context, ev models.LeaveEvent) error
	HasAttendance(ctx context.Context, identity, date string) (bool, error)
	Attendance(ctx context.Context, f Filter) ([]models.AttendanceEvent, error)
	Leaves(ctx context.Context, f Filter) ([]models.LeaveEvent, error)
	Close() error
}

// Publisher receives every committed event. Publish must not block.
type Publisher interface {
	Publish(ev models.AttendanceEvent)
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithPublisher(p Publisher) Option {
	return func(l *Ledger) { l.pub = p }
}

// Ledger serialises commits to a Store. It also keeps the attendance log,
// an in-memory identity -> last seen map that starts empty on every run.
type Ledger struct {
	mu    sync.Mutex
	store Store
	now   func() time.Time
	pub   Publisher
	seen  map[string]time.Time
}

func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		now:   time.Now,
		seen:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func storageErr(op string, err error) error {
	if errors.Is(err, models.ErrStorageIO) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, models.ErrStorageIO, err)
}

// AttendedToday is the cheap pre-check used before saving evidence. The
// authoritative check happens inside CommitAttendance.
func (l *Ledger) AttendedToday(ctx context.Context, identity string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	today := l.now().Format(models.DateLayout)
	if last, ok := l.seen[identity]; ok && last.Format(models.DateLayout) == today {
		return true, nil
	}
	ok, err := l.store.HasAttendance(ctx, identity, today)
	if err != nil {
		return false, storageErr("check attendance", err)
	}
	if ok {
		l.seen[identity] = l.now()
	}
	return ok, nil
}

// CommitAttendance records identity as present today. A second commit for
// the same identity and day returns models.ErrAlreadyRecordedToday and
// writes nothing.
func (l *Ledger) CommitAttendance(ctx context.Context, identity, evidenceRef string) (models.AttendanceEvent, error) {
	if !models.IsResolved(identity) {
		return models.AttendanceEvent{}, fmt.Errorf("%q: %w", identity, models.ErrInvalidIdentity)
	}

	l.mu.Lock()
	now := l.now()
	ev := models.NewEvent(models.KindAttendance, identity, evidenceRef, now)
	inserted, err := l.store.AppendAttendance(ctx, ev)
	if err != nil {
		l.mu.Unlock()
		observability.Commits.WithLabelValues(string(models.KindAttendance), "error").Inc()
		return models.AttendanceEvent{}, storageErr("append attendance", err)
	}
	l.seen[identity] = now
	l.mu.Unlock()

	if !inserted {
		observability.Commits.WithLabelValues(string(models.KindAttendance), "duplicate").Inc()
		return models.AttendanceEvent{}, models.ErrAlreadyRecordedToday
	}

	observability.Commits.WithLabelValues(string(models.KindAttendance), "ok").Inc()
	slog.Info("attendance committed", "identity", identity, "date", ev.Date, "time", ev.Clock())
	if l.pub != nil {
		l.pub.Publish(ev)
	}
	return ev, nil
}

// CommitLeave appends a leave row. Leaves are never deduplicated.
func (l *Ledger) CommitLeave(ctx context.Context, identity, evidenceRef string) (models.LeaveEvent, error) {
	if !models.IsResolved(identity) {
		return models.LeaveEvent{}, fmt.Errorf("%q: %w", identity, models.ErrInvalidIdentity)
	}

	l.mu.Lock()
	ev := models.NewEvent(models.KindLeave, identity, evidenceRef, l.now())
	err := l.store.AppendLeave(ctx, ev)
	l.mu.Unlock()
	if err != nil {
		observability.Commits.WithLabelValues(string(models.KindLeave), "error").Inc()
		return models.LeaveEvent{}, storageErr("append leave", err)
	}

	observability.Commits.WithLabelValues(string(models.KindLeave), "ok").Inc()
	slog.Info("leave committed", "identity", identity, "date", ev.Date, "time", ev.Clock())
	if l.pub != nil {
		l.pub.Publish(ev)
	}
	return ev, nil
}

// LastSeen reports the attendance log entry for identity.
func (l *Ledger) LastSeen(identity string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.seen[identity]
	return t, ok
}

func (l *Ledger) Attendance(ctx context.Context, f Filter) ([]models.AttendanceEvent, error) {
	evs, err := l.store.Attendance(ctx, f)
	if err != nil {
		return nil, storageErr("list attendance", err)
	}
	return evs, nil
}

func (l *Ledger) Leaves(ctx context.Context, f Filter) ([]models.LeaveEvent, error) {
	evs, err := l.store.Leaves(ctx, f)
	if err != nil {
		return nil, storageErr("list leaves", err)
	}
	return evs, nil
}

// Snapshot writes the full attendance ledger as CSV with the canonical
// header.
func (l *Ledger) Snapshot(ctx context.Context, w io.Writer) error {
	evs, err := l.Attendance(ctx, Filter{})
	if err != nil {
		return err
	}
	return WriteCSV(w, evs)
}

func (l *Ledger) Close() error {
	return l.store.Close()
}

// WriteCSV renders events with the canonical header.
func WriteCSV(w io.Writer, evs []models.AttendanceEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, ev := range evs {
		if err := cw.Write(toRow(ev)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func toRow(ev models.AttendanceEvent) []string {
	return []string{ev.Identity, ev.Clock(), ev.Date, ev.EvidenceRef}
}
