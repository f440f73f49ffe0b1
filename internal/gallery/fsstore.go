package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/storage"
)

const recordExt = ".face"

var _ Store = (*FSStore)(nil)

// FSStore keeps one JSON record per identity in a directory. The file name
// is the identity, so rename and delete are single filesystem operations.
type FSStore struct {
	dir string
}

type fileRecord struct {
	Version   int       `json:"version"`
	Encrypted bool      `json:"encrypted"`
	Embedding []float32 `json:"embedding,omitempty"`
	Sealed    []byte    `json:"sealed,omitempty"`
	Contact   string    `json:"contact,omitempty"`
}

func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create gallery dir: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) path(identity string) (string, error) {
	if identity == "" || identity == "." || identity == ".." || strings.ContainsAny(identity, `/\`) {
		return "", fmt.Errorf("%q: %w", identity, models.ErrInvalidIdentity)
	}
	return filepath.Join(s.dir, identity+recordExt), nil
}

func ioErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, models.ErrStorageIO, err)
}

func (s *FSStore) Put(_ context.Context, rec Record) error {
	p, err := s.path(rec.Identity)
	if err != nil {
		return err
	}
	data, err := json.Marshal(fileRecord{
		Version:   1,
		Encrypted: rec.Encrypted,
		Embedding: rec.Embedding,
		Sealed:    rec.Sealed,
		Contact:   rec.Contact,
	})
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := storage.WriteFileAtomic(p, data, 0o600); err != nil {
		return ioErr("write record", err)
	}
	return nil
}

func (s *FSStore) Get(_ context.Context, identity string) (Record, error) {
	p, err := s.path(identity)
	if err != nil {
		return Record{}, models.ErrIdentityNotFound
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, models.ErrIdentityNotFound
	}
	if err != nil {
		return Record{}, ioErr("read record", err)
	}

	var fr fileRecord
	if err := json.Unmarshal(data, &fr); err != nil {
		return Record{}, ioErr("decode record "+identity, err)
	}
	return Record{
		Identity:  identity,
		Embedding: fr.Embedding,
		Sealed:    fr.Sealed,
		Contact:   fr.Contact,
		Encrypted: fr.Encrypted,
	}, nil
}

func (s *FSStore) Delete(_ context.Context, identity string) error {
	p, err := s.path(identity)
	if err != nil {
		return models.ErrIdentityNotFound
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.ErrIdentityNotFound
		}
		return ioErr("remove record", err)
	}
	if err := storage.SyncDir(s.dir); err != nil {
		return ioErr("sync gallery dir", err)
	}
	return nil
}

func (s *FSStore) Rename(_ context.Context, from, to string) (bool, error) {
	src, err := s.path(from)
	if err != nil {
		return false, models.ErrIdentityNotFound
	}
	dst, err := s.path(to)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, models.ErrIdentityNotFound
		}
		return false, ioErr("stat record", err)
	}
	_, statErr := os.Stat(dst)
	replaced := statErr == nil

	if err := os.Rename(src, dst); err != nil {
		return false, ioErr("rename record", err)
	}
	if err := storage.SyncDir(s.dir); err != nil {
		return replaced, ioErr("sync gallery dir", err)
	}
	return replaced, nil
}

// Identities returns the enrolled names sorted lexically.
func (s *FSStore) Identities(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, ioErr("read gallery dir", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), recordExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), recordExt))
	}
	sort.Strings(names)
	return names, nil
}

// All reads every record in the directory. Records that fail to read or
// decode are logged and left out.
func (s *FSStore) All(ctx context.Context) ([]Record, error) {
	names, err := s.Identities(ctx)
	if err != nil {
		return nil, err
	}
	recs := make([]Record, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := s.Get(ctx, name)
		if err != nil {
			slog.Warn("skipping unreadable gallery entry", "identity", name, "error", err)
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
