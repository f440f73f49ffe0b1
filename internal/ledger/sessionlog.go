package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/your-org/attendance/internal/models"
)

// SessionStampLayout is the timestamp column of the session log.
const SessionStampLayout = "2006-01-02 15:04:05.000000"

// SessionLog is the login/logout audit trail: one "name,timestamp,in|out"
// line per recognised session, written whether or not a ledger row
// follows. It has no header and is never deduplicated.
type SessionLog struct {
	mu sync.Mutex
	f  appendFile
}

func OpenSessionLog(path string) (*SessionLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("open session log: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}
	return &SessionLog{f: f}, nil
}

func direction(kind models.EventKind) string {
	if kind == models.KindLeave {
		return "out"
	}
	return "in"
}

func (l *SessionLog) Record(_ context.Context, identity string, kind models.EventKind, at time.Time) error {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write([]string{identity, at.Format(SessionStampLayout), direction(kind)}); err != nil {
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	info, err := l.f.Stat()
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrStorageIO, err)
	}
	if _, err := l.f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("%w: %w", models.ErrStorageIO, rollback(l.f, info.Size(), err))
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("%w: %w", models.ErrStorageIO, rollback(l.f, info.Size(), err))
	}
	return nil
}

func (l *SessionLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
