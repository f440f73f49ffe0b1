package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/storage"
)

var _ Store = (*CSVStore)(nil)

// rowNamespace derives stable IDs for rows read back from CSV, which has no
// ID column.
var rowNamespace = uuid.MustParse("6f1d7f0e-4c1b-4a53-9a55-6a7f0c0b2d11")

type dayKey struct {
	identity string
	date     string
}

// CSVStore appends to two CSV files, one per ledger. The (identity, date)
// index is built from the attendance file at open and updated in lockstep
// with every append.
type CSVStore struct {
	mu         sync.Mutex
	attendance appendFile
	leaves     appendFile
	index      map[dayKey]struct{}
}

// appendFile is the part of *os.File an append needs, including what it
// takes to roll a failed append back.
type appendFile interface {
	io.Writer
	Sync() error
	Stat() (fs.FileInfo, error)
	Truncate(size int64) error
	Name() string
	Close() error
}

func OpenCSVStore(attendancePath, leavePath string) (*CSVStore, error) {
	att, rows, err := openLedgerFile(attendancePath)
	if err != nil {
		return nil, fmt.Errorf("open attendance ledger: %w", err)
	}
	leave, _, err := openLedgerFile(leavePath)
	if err != nil {
		att.Close()
		return nil, fmt.Errorf("open leave ledger: %w", err)
	}

	s := &CSVStore{attendance: att, leaves: leave, index: make(map[dayKey]struct{}, len(rows))}
	for _, ev := range rows {
		s.index[dayKey{ev.Identity, ev.Date}] = struct{}{}
	}
	slog.Info("csv ledger opened", "attendance", attendancePath, "rows", len(rows), "leave", leavePath)
	return s, nil
}

// openLedgerFile makes sure path exists with the canonical header, rewriting
// legacy layouts, and returns an append handle plus the existing rows.
func openLedgerFile(path string) (*os.File, []models.AttendanceEvent, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, nil, err
	}

	var rows []models.AttendanceEvent
	if len(bytes.TrimSpace(data)) == 0 {
		var buf bytes.Buffer
		if err := WriteCSV(&buf, nil); err != nil {
			return nil, nil, err
		}
		if err := storage.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
			return nil, nil, err
		}
	} else {
		var canonical bool
		rows, canonical, err = parseLedger(data)
		if err != nil {
			return nil, nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if !canonical || !bytes.HasSuffix(data, []byte("\n")) {
			slog.Warn("rewriting ledger with canonical header", "path", path, "rows", len(rows))
			var buf bytes.Buffer
			if err := WriteCSV(&buf, rows); err != nil {
				return nil, nil, err
			}
			if err := storage.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
				return nil, nil, err
			}
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return f, rows, nil
}

// parseLedger reads a ledger in any historical layout. Columns are matched
// by header name; a file whose first row is not a header is read as
// Name,Time,Date[,Image].
func parseLedger(data []byte) ([]models.AttendanceEvent, bool, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, false, err
	}
	if len(records) == 0 {
		return nil, false, nil
	}

	cols := map[string]int{"name": 0, "time": 1, "date": 2, "image": 3}
	body := records
	canonical := false

	first := records[0]
	if slices.ContainsFunc(first, func(c string) bool { return strings.EqualFold(strings.TrimSpace(c), "name") }) {
		cols = map[string]int{"name": -1, "time": -1, "date": -1, "image": -1}
		for i, c := range first {
			key := strings.ToLower(strings.TrimSpace(c))
			if _, ok := cols[key]; ok {
				cols[key] = i
			}
		}
		canonical = slices.Equal(first, Header)
		body = records[1:]
	}

	field := func(rec []string, name string) string {
		i := cols[name]
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	rows := make([]models.AttendanceEvent, 0, len(body))
	for _, rec := range body {
		if len(rec) == 1 && rec[0] == "" {
			continue
		}
		ev := models.AttendanceEvent{
			Identity:    field(rec, "name"),
			Date:        field(rec, "date"),
			EvidenceRef: field(rec, "image"),
		}
		clock := field(rec, "time")
		if ts, err := time.ParseInLocation(models.DateLayout+" "+models.ClockLayout, ev.Date+" "+clock, time.Local); err == nil {
			ev.Timestamp = ts
		}
		ev.ID = uuid.NewSHA1(rowNamespace, []byte(ev.Identity+"\x00"+ev.Date+"\x00"+clock))
		rows = append(rows, ev)
	}
	return rows, canonical, nil
}

// appendRow writes one row and syncs it. On any failure the file is cut
// back to its previous size, so a failed append leaves neither a partial
// line nor an unacknowledged row behind.
func appendRow(f appendFile, ev models.AttendanceEvent) error {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(toRow(ev)); err != nil {
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}

	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()

	if _, err := f.Write(buf.Bytes()); err != nil {
		return rollback(f, size, err)
	}
	if err := f.Sync(); err != nil {
		return rollback(f, size, err)
	}
	return nil
}

func rollback(f appendFile, size int64, cause error) error {
	if err := f.Truncate(size); err != nil {
		slog.Error("ledger rollback failed", "path", f.Name(), "size", size, "error", err)
		return errors.Join(cause, fmt.Errorf("truncate: %w", err))
	}
	if err := f.Sync(); err != nil {
		slog.Error("ledger rollback sync failed", "path", f.Name(), "error", err)
		return errors.Join(cause, fmt.Errorf("sync after truncate: %w", err))
	}
	return cause
}

func (s *CSVStore) AppendAttendance(_ context.Context, ev models.AttendanceEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dayKey{ev.Identity, ev.Date}
	if _, ok := s.index[key]; ok {
		return false, nil
	}
	if err := appendRow(s.attendance, ev); err != nil {
		return false, fmt.Errorf("%w: %w", models.ErrStorageIO, err)
	}
	s.index[key] = struct{}{}
	return true, nil
}

func (s *CSVStore) AppendLeave(_ context.Context, ev models.LeaveEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := appendRow(s.leaves, ev); err != nil {
		return fmt.Errorf("%w: %w", models.ErrStorageIO, err)
	}
	return nil
}

func (s *CSVStore) HasAttendance(_ context.Context, identity, date string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[dayKey{identity, date}]
	return ok, nil
}

func (s *CSVStore) Attendance(_ context.Context, f Filter) ([]models.AttendanceEvent, error) {
	return s.list(s.attendance.Name(), models.KindAttendance, f)
}

func (s *CSVStore) Leaves(_ context.Context, f Filter) ([]models.LeaveEvent, error) {
	return s.list(s.leaves.Name(), models.KindLeave, f)
}

func (s *CSVStore) list(path string, kind models.EventKind, f Filter) ([]models.AttendanceEvent, error) {
	s.mu.Lock()
	data, err := os.ReadFile(path)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStorageIO, err)
	}

	rows, _, err := parseLedger(data)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", models.ErrStorageIO, path, err)
	}
	out := rows[:0]
	for _, ev := range rows {
		ev.Kind = kind
		if f.Match(ev) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *CSVStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.attendance.Close(), s.leaves.Close())
}
