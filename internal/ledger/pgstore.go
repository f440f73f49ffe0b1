package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/your-org/attendance/internal/models"
)

// DB is the subset of *pgxpool.Pool used by PostgresStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Store = (*PostgresStore)(nil)

// PostgresStore relies on the UNIQUE (identity, event_date) constraint of
// attendance_events for deduplication across processes.
type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) AppendAttendance(ctx context.Context, ev models.AttendanceEvent) (bool, error) {
	var id uuid.UUID
	err := s.db.QueryRow(ctx,
		`INSERT INTO attendance_events (id, identity, event_time, event_date, evidence_ref)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (identity, event_date) DO NOTHING
		 RETURNING id`,
		ev.ID, ev.Identity, ev.Timestamp, ev.Date, ev.EvidenceRef,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert attendance: %w: %w", models.ErrStorageIO, err)
	}
	return true, nil
}

func (s *PostgresStore) AppendLeave(ctx context.Context, ev models.LeaveEvent) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO leave_events (id, identity, event_time, event_date, evidence_ref)
		 VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.Identity, ev.Timestamp, ev.Date, ev.EvidenceRef)
	if err != nil {
		return fmt.Errorf("insert leave: %w: %w", models.ErrStorageIO, err)
	}
	return nil
}

func (s *PostgresStore) HasAttendance(ctx context.Context, identity, date string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM attendance_events WHERE identity = $1 AND event_date = $2)`,
		identity, date,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check attendance: %w: %w", models.ErrStorageIO, err)
	}
	return exists, nil
}

func (s *PostgresStore) Attendance(ctx context.Context, f Filter) ([]models.AttendanceEvent, error) {
	return s.list(ctx, "attendance_events", models.KindAttendance, f)
}

func (s *PostgresStore) Leaves(ctx context.Context, f Filter) ([]models.LeaveEvent, error) {
	return s.list(ctx, "leave_events", models.KindLeave, f)
}

func (s *PostgresStore) list(ctx context.Context, table string, kind models.EventKind, f Filter) ([]models.AttendanceEvent, error) {
	where := "WHERE TRUE"
	var args []any
	argIdx := 1

	if f.Identity != "" {
		where += fmt.Sprintf(" AND identity = $%d", argIdx)
		args = append(args, f.Identity)
		argIdx++
	}
	if f.From != "" {
		where += fmt.Sprintf(" AND event_date >= $%d", argIdx)
		args = append(args, f.From)
		argIdx++
	}
	if f.To != "" {
		where += fmt.Sprintf(" AND event_date <= $%d", argIdx)
		args = append(args, f.To)
	}

	query := fmt.Sprintf(
		`SELECT id, identity, event_time, to_char(event_date, 'YYYY-MM-DD'), evidence_ref
		 FROM %s %s ORDER BY event_time`, table, where)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w: %w", table, models.ErrStorageIO, err)
	}
	defer rows.Close()

	var evs []models.AttendanceEvent
	for rows.Next() {
		ev := models.AttendanceEvent{Kind: kind}
		var ts time.Time
		if err := rows.Scan(&ev.ID, &ev.Identity, &ts, &ev.Date, &ev.EvidenceRef); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		ev.Timestamp = ts.Local()
		evs = append(evs, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w: %w", table, models.ErrStorageIO, err)
	}
	return evs, nil
}

// Close is a no-op; the pool belongs to the caller.
func (s *PostgresStore) Close() error {
	return nil
}
