// Package bootstrap opens the stores shared by attendd and attendctl
// according to the configured backends.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/gallery"
	"github.com/your-org/attendance/internal/ledger"
	"github.com/your-org/attendance/internal/storage"
)

// NeedsPostgres reports whether any backend is configured as postgres.
func NeedsPostgres(cfg *config.Config) bool {
	return cfg.Gallery.Backend == "postgres" || cfg.Ledger.Backend == "postgres"
}

// OpenPool connects and migrates when a postgres backend is configured, and
// returns nil otherwise.
func OpenPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if !NeedsPostgres(cfg) {
		return nil, nil
	}
	pool, err := storage.OpenPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := storage.Migrate(ctx, cfg.Database); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func OpenGallery(cfg config.GalleryConfig, pool *pgxpool.Pool, opts ...gallery.Option) (*gallery.Gallery, error) {
	var store gallery.Store
	switch cfg.Backend {
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("gallery backend postgres: no database pool")
		}
		store = gallery.NewPostgresStore(pool)
	default:
		fs, err := gallery.NewFSStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		store = fs
	}

	if cfg.Encrypt || cfg.KeyFile != "" {
		cipher, err := gallery.LoadOrCreateKey(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("gallery key: %w", err)
		}
		opts = append(opts, gallery.WithCipher(cipher, cfg.Encrypt))
	}

	slog.Info("gallery opened", "backend", cfg.Backend, "encrypt", cfg.Encrypt)
	return gallery.New(store, opts...), nil
}

func OpenLedger(cfg config.LedgerConfig, pool *pgxpool.Pool, opts ...ledger.Option) (*ledger.Ledger, error) {
	var store ledger.Store
	switch cfg.Backend {
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("ledger backend postgres: no database pool")
		}
		store = ledger.NewPostgresStore(pool)
	default:
		csv, err := ledger.OpenCSVStore(cfg.AttendancePath, cfg.LeavePath)
		if err != nil {
			return nil, err
		}
		store = csv
	}
	slog.Info("ledger opened", "backend", cfg.Backend)
	return ledger.New(store, opts...), nil
}

// OpenObjectStore returns the evidence/backup store.
func OpenObjectStore(ctx context.Context, cfg *config.Config) (storage.ObjectStore, error) {
	if cfg.Storage.Backend == "minio" {
		m, err := storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			return nil, err
		}
		if err := m.EnsureBucket(ctx); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
		return m, nil
	}
	return storage.NewDirStore(cfg.Storage.Dir)
}
