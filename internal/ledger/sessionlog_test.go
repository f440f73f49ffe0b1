package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/attendance/internal/models"
)

func TestSessionLog_Record(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "log.txt")
	l, err := OpenSessionLog(path)
	require.NoError(t, err)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 9, 5, 7, 250000000, time.Local)

	require.NoError(t, l.Record(ctx, "alice", models.KindAttendance, at))
	require.NoError(t, l.Record(ctx, "alice", models.KindAttendance, at))
	require.NoError(t, l.Record(ctx, "alice", models.KindLeave, at.Add(time.Hour)))
	require.NoError(t, l.Close())

	assert.Equal(t, []string{
		"alice,2024-03-01 09:05:07.250000,in",
		"alice,2024-03-01 09:05:07.250000,in",
		"alice,2024-03-01 10:05:07.250000,out",
	}, readLines(t, path))

	// Reopening appends.
	l, err = OpenSessionLog(path)
	require.NoError(t, err)
	require.NoError(t, l.Record(ctx, "bob", models.KindLeave, at))
	require.NoError(t, l.Close())
	assert.Len(t, readLines(t, path), 4)
}

func TestSessionLog_FailedWriteIsRolledBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	l, err := OpenSessionLog(path)
	require.NoError(t, err)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.Local)

	file := l.f.(*os.File)
	l.f = &faultyFile{File: file, partialWrite: true}
	err = l.Record(ctx, "alice", models.KindAttendance, at)
	require.ErrorIs(t, err, models.ErrStorageIO)

	require.NoError(t, l.Record(ctx, "bob", models.KindAttendance, at))
	l.f = file
	require.NoError(t, l.Close())
	assert.Equal(t, []string{"bob,2024-03-01 09:00:00.000000,in"}, readLines(t, path))
}
