package storage

import "context"

// ObjectStore keeps opaque blobs (evidence images, ledger backups) by key.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	DeleteObject(ctx context.Context, key string) error
	ListObjects(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
}
