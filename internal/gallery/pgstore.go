package gallery

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/attendance/internal/models"
)

// DB is the subset of *pgxpool.Pool used by the PostgreSQL stores.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ Store = (*PostgresStore)(nil)

// PostgresStore keeps gallery records in the gallery_entries table. Plain
// embeddings go to a pgvector column, sealed ones to a bytea column.
type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Put(ctx context.Context, rec Record) error {
	var vec *pgvector.Vector
	if !rec.Encrypted && len(rec.Embedding) > 0 {
		v := pgvector.NewVector(rec.Embedding)
		vec = &v
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO gallery_entries (identity, embedding, sealed, contact, encrypted, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (identity) DO UPDATE
		 SET embedding = EXCLUDED.embedding, sealed = EXCLUDED.sealed, contact = EXCLUDED.contact,
		     encrypted = EXCLUDED.encrypted, updated_at = now()`,
		rec.Identity, vec, rec.Sealed, rec.Contact, rec.Encrypted)
	if err != nil {
		return fmt.Errorf("upsert gallery entry: %w: %w", models.ErrStorageIO, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, identity string) (Record, error) {
	rec := Record{Identity: identity}
	var vec *pgvector.Vector
	err := s.db.QueryRow(ctx,
		`SELECT embedding, sealed, contact, encrypted FROM gallery_entries WHERE identity = $1`, identity,
	).Scan(&vec, &rec.Sealed, &rec.Contact, &rec.Encrypted)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, models.ErrIdentityNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get gallery entry: %w: %w", models.ErrStorageIO, err)
	}
	if vec != nil {
		rec.Embedding = vec.Slice()
	}
	return rec, nil
}

func (s *PostgresStore) Delete(ctx context.Context, identity string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM gallery_entries WHERE identity = $1`, identity)
	if err != nil {
		return fmt.Errorf("delete gallery entry: %w: %w", models.ErrStorageIO, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrIdentityNotFound
	}
	return nil
}

func (s *PostgresStore) Rename(ctx context.Context, from, to string) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin rename: %w: %w", models.ErrStorageIO, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM gallery_entries WHERE identity = $1)`, from,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check gallery entry: %w: %w", models.ErrStorageIO, err)
	}
	if !exists {
		return false, models.ErrIdentityNotFound
	}

	tag, err := tx.Exec(ctx, `DELETE FROM gallery_entries WHERE identity = $1`, to)
	if err != nil {
		return false, fmt.Errorf("replace gallery entry: %w: %w", models.ErrStorageIO, err)
	}
	replaced := tag.RowsAffected() > 0

	if _, err := tx.Exec(ctx,
		`UPDATE gallery_entries SET identity = $2, updated_at = now() WHERE identity = $1`, from, to,
	); err != nil {
		return false, fmt.Errorf("rename gallery entry: %w: %w", models.ErrStorageIO, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit rename: %w: %w", models.ErrStorageIO, err)
	}
	return replaced, nil
}

func (s *PostgresStore) Identities(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT identity FROM gallery_entries`)
	if err != nil {
		return nil, fmt.Errorf("list gallery entries: %w: %w", models.ErrStorageIO, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan gallery entry: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list gallery entries: %w: %w", models.ErrStorageIO, err)
	}
	// Sorted here rather than in SQL so the order does not depend on the
	// database collation.
	sort.Strings(names)
	return names, nil
}

func (s *PostgresStore) All(ctx context.Context) ([]Record, error) {
	rows, err := s.db.Query(ctx,
		`SELECT identity, embedding, sealed, contact, encrypted FROM gallery_entries
		 ORDER BY identity COLLATE "C"`)
	if err != nil {
		return nil, fmt.Errorf("read gallery entries: %w: %w", models.ErrStorageIO, err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var (
			rec Record
			vec *pgvector.Vector
		)
		if err := rows.Scan(&rec.Identity, &vec, &rec.Sealed, &rec.Contact, &rec.Encrypted); err != nil {
			return nil, fmt.Errorf("scan gallery entry: %w", err)
		}
		if vec != nil {
			rec.Embedding = vec.Slice()
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read gallery entries: %w: %w", models.ErrStorageIO, err)
	}
	return recs, nil
}
