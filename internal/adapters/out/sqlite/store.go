// Package sqlite persists the catalog and the digest cache in a SQLite
// database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/bnema/catalogd/internal/boundaries/out"
	"github.com/bnema/catalogd/internal/domain"
)

var (
	_ out.EntryStore  = (*Store)(nil)
	_ out.DigestCache = (*Store)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    kind       TEXT NOT NULL,
    source     TEXT NOT NULL,
    file_type  TEXT NOT NULL DEFAULT '',
    size       INTEGER NOT NULL DEFAULT 0,
    created_by TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS digests (
    entry_id    TEXT PRIMARY KEY,
    md5         TEXT NOT NULL DEFAULT '',
    sha256      TEXT NOT NULL DEFAULT '',
    source_path TEXT NOT NULL DEFAULT '',
    size        INTEGER NOT NULL DEFAULT 0,
    mtime       INTEGER NOT NULL DEFAULT 0,
    computed_at INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_entries_created_at ON entries (created_at);
`

// Store implements the catalog and the digest cache on SQLite.
type Store struct {
	db  *sql.DB
	log zerowrap.Logger
	now func() time.Time
}

// Open opens (and creates when missing) the database at path and applies the
// schema.
func Open(ctx context.Context, path string, log zerowrap.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	log.Debug().
		Str(zerowrap.FieldLayer, "adapter").
		Str(zerowrap.FieldAdapter, "sqlite").
		Str(zerowrap.FieldPath, path).
		Msg("database ready")

	return &Store{db: db, log: log, now: time.Now}, nil
}

// dsn builds a file URI so that '?' or '#' in path stay part of the name.
func dsn(path string) string {
	u := url.URL{
		Scheme:   "file",
		Opaque:   (&url.URL{Path: path}).EscapedPath(),
		RawQuery: "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
	}
	return u.String()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetEntry(ctx context.Context, id string) (*domain.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, kind, source, file_type, size, created_by, created_at
		 FROM entries WHERE id = ?`, id)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return entry, nil
}

func (s *Store) AddEntry(ctx context.Context, entry *domain.Entry) (string, error) {
	id := entry.ID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO entries (id, name, kind, source, file_type, size, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		id, entry.Name, string(entry.Kind), entry.Source, entry.FileType, entry.Size, entry.CreatedBy, createdAt.UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to add entry: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return "", domain.ErrEntryExists
	}
	return id, nil
}

func (s *Store) DeleteEntry(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM digests WHERE entry_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete digests: %w", err)
	}
	return tx.Commit()
}

func (s *Store) ListEntries(ctx context.Context) ([]*domain.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, kind, source, file_type, size, created_by, created_at
		 FROM entries ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var list []*domain.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		list = append(list, entry)
	}
	return list, rows.Err()
}

func (s *Store) Lookup(ctx context.Context, entryID string) (domain.CacheEntry, bool, error) {
	var (
		c                   domain.CacheEntry
		mtime, computedAtNs int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT md5, sha256, source_path, size, mtime, computed_at
		 FROM digests WHERE entry_id = ?`, entryID).
		Scan(&c.Digests.MD5, &c.Digests.SHA256, &c.SourcePath, &c.Size, &mtime, &computedAtNs)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CacheEntry{}, false, nil
	}
	if err != nil {
		return domain.CacheEntry{}, false, fmt.Errorf("failed to look up digests: %w", err)
	}

	c.ModTime = fromUnixNano(mtime)
	c.ComputedAt = fromUnixNano(computedAtNs)
	return c, true, nil
}

// Store writes the digests of an entry in a single statement so a reader
// never sees one digest without the other.
func (s *Store) Store(ctx context.Context, entryID string, c domain.CacheEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO digests (entry_id, md5, sha256, source_path, size, mtime, computed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(entry_id) DO UPDATE SET
		     md5 = excluded.md5,
		     sha256 = excluded.sha256,
		     source_path = excluded.source_path,
		     size = excluded.size,
		     mtime = excluded.mtime,
		     computed_at = excluded.computed_at`,
		entryID, c.Digests.MD5, c.Digests.SHA256, c.SourcePath, c.Size, toUnixNano(c.ModTime), toUnixNano(c.ComputedAt))
	if err != nil {
		return fmt.Errorf("failed to store digests: %w", err)
	}
	return nil
}

func (s *Store) Invalidate(ctx context.Context, entryID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM digests WHERE entry_id = ?`, entryID); err != nil {
		return fmt.Errorf("failed to invalidate digests: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*domain.Entry, error) {
	var (
		e         domain.Entry
		kind      string
		createdAt int64
	)
	if err := row.Scan(&e.ID, &e.Name, &kind, &e.Source, &e.FileType, &e.Size, &e.CreatedBy, &createdAt); err != nil {
		return nil, err
	}
	e.Kind = domain.StorageKind(kind)
	e.CreatedAt = fromUnixNano(createdAt)
	return &e, nil
}

func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
