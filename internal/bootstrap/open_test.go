package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/models"
)

func TestNeedsPostgres(t *testing.T) {
	cfg := config.Default()
	assert.False(t, NeedsPostgres(cfg))

	cfg.Ledger.Backend = "postgres"
	assert.True(t, NeedsPostgres(cfg))
}

func TestOpenPool_NotNeeded(t *testing.T) {
	pool, err := OpenPool(context.Background(), config.Default())
	require.NoError(t, err)
	assert.Nil(t, pool)
}

func TestOpenGallery_FSWithEncryption(t *testing.T) {
	dir := t.TempDir()
	cfg := config.GalleryConfig{
		Backend: "fs",
		Dir:     filepath.Join(dir, "db"),
		Encrypt: true,
		KeyFile: filepath.Join(dir, "db", "key.key"),
	}

	g, err := OpenGallery(cfg, nil)
	require.NoError(t, err)

	entry, err := g.Put(context.Background(), "alice", models.Embedding{1, 2}, "")
	require.NoError(t, err)
	assert.True(t, entry.Encrypted)

	_, err = os.Stat(cfg.KeyFile)
	assert.NoError(t, err)
}

func TestOpenStores_PostgresWithoutPool(t *testing.T) {
	_, err := OpenGallery(config.GalleryConfig{Backend: "postgres"}, nil)
	assert.Error(t, err)
	_, err = OpenLedger(config.LedgerConfig{Backend: "postgres"}, nil)
	assert.Error(t, err)
}

func TestOpenLedger_CSV(t *testing.T) {
	dir := t.TempDir()
	l, err := OpenLedger(config.LedgerConfig{
		Backend:        "csv",
		AttendancePath: filepath.Join(dir, "attendance.csv"),
		LeavePath:      filepath.Join(dir, "leave.csv"),
	}, nil)
	require.NoError(t, err)
	defer l.Close()

	_, err = l.CommitAttendance(context.Background(), "alice", "")
	require.NoError(t, err)
}

func TestOpenObjectStore_Dir(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Dir = filepath.Join(t.TempDir(), "images")

	store, err := OpenObjectStore(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, store.PutObject(context.Background(), "evidence/a.jpg", []byte("x"), "image/jpeg"))
}
