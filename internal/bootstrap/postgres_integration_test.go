//go:build integration

package bootstrap

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/ledger"
	"github.com/your-org/attendance/internal/models"
)

func postgresConfig(t *testing.T) *config.Config {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "pgvector/pgvector:pg16",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "attendance",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil || container == nil {
		t.Skipf("docker not available, skipping integration test: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	p, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Gallery.Backend = "postgres"
	cfg.Ledger.Backend = "postgres"
	cfg.Database = config.DatabaseConfig{
		Host: host, Port: p, Name: "attendance", User: "test", Password: "test", MaxConns: 8,
	}
	return cfg
}

func TestPostgresBackends(t *testing.T) {
	cfg := postgresConfig(t)
	ctx := context.Background()

	pool, err := OpenPool(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, pool)
	defer pool.Close()

	// Migrations are idempotent.
	_, err = OpenPool(ctx, cfg)
	require.NoError(t, err)

	g, err := OpenGallery(cfg.Gallery, pool)
	require.NoError(t, err)
	_, err = g.Put(ctx, "alice", models.Embedding{0.6, 0.8}, "alice@example.com")
	require.NoError(t, err)
	name, err := g.Rename(ctx, "alice", "alicia")
	require.NoError(t, err)
	entry, err := g.Load(ctx, name)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, []float32(entry.Embedding), 1e-6)
	assert.Equal(t, "alice@example.com", entry.Contact)
	_, err = g.Load(ctx, "alice")
	assert.ErrorIs(t, err, models.ErrIdentityNotFound)

	l, err := OpenLedger(cfg.Ledger, pool)
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.CommitAttendance(ctx, "alicia", "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				inserted++
			case !errors.Is(err, models.ErrAlreadyRecordedToday):
				t.Errorf("unexpected commit error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, inserted)

	evs, err := l.Attendance(ctx, ledger.Filter{Identity: "alicia"})
	require.NoError(t, err)
	assert.Len(t, evs, 1)
}
