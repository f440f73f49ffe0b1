package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

const (
	DefaultInterval = time.Hour
	DefaultPrefix   = "backups/"
)

// Snapshotter writes the current attendance ledger as CSV.
type Snapshotter interface {
	Snapshot(ctx context.Context, w io.Writer) error
}

type ObjectWriter interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

// Backup periodically copies the attendance ledger into object storage as
// <prefix>attendance_<YYYYmmdd_HHMMSS>.csv. It runs as a background
// goroutine stopped by its context or Stop.
type Backup struct {
	ledger   Snapshotter
	store    ObjectWriter
	interval time.Duration
	prefix   string
	now      func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func New(ledger Snapshotter, store ObjectWriter, interval time.Duration, prefix string) *Backup {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Backup{
		ledger:   ledger,
		store:    store,
		interval: interval,
		prefix:   prefix,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Start launches the loop. A backup is taken immediately, then every
// interval.
func (b *Backup) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	go b.loop(ctx)
	slog.Info("ledger backup started", "interval", b.interval, "prefix", b.prefix)
}

// Stop signals the loop to exit and waits for it.
func (b *Backup) Stop() {
	if b.cancel == nil {
		return
	}
	b.cancel()
	<-b.done
}

func (b *Backup) loop(ctx context.Context) {
	defer close(b.done)

	b.tick(ctx)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.tick(ctx)
		}
	}
}

func (b *Backup) tick(ctx context.Context) {
	if _, err := b.RunOnce(ctx); err != nil {
		slog.Error("ledger backup failed", "error", err)
	}
}

// Key returns the object key for a backup taken at t.
func (b *Backup) Key(t time.Time) string {
	return b.prefix + "attendance_" + t.Format("20060102_150405") + ".csv"
}

// RunOnce writes one backup and returns its key.
func (b *Backup) RunOnce(ctx context.Context) (string, error) {
	var buf bytes.Buffer
	if err := b.ledger.Snapshot(ctx, &buf); err != nil {
		return "", fmt.Errorf("snapshot ledger: %w", err)
	}

	key := b.Key(b.now())
	if err := b.store.PutObject(ctx, key, buf.Bytes(), "text/csv"); err != nil {
		return "", fmt.Errorf("store backup %s: %w", key, err)
	}
	slog.Info("ledger backed up", "key", key, "bytes", buf.Len())
	return key, nil
}
