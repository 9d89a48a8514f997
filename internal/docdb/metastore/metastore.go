// Package metastore persists per-document bookkeeping (which sub-DB a
// document currently lives in, its last-seen serial number) in a local
// SQLite database. The document DB writes this mapping; its startup does
// not read it back and still replays the transaction log from serial zero.
package metastore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one document's meta-store entry.
type Record struct {
	DocumentID string
	SubDB      string
	Serial     uint64
	UpdatedAt  time.Time
}

// Store is a SQLite-backed document-meta-store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the meta-store database at path, in WAL
// journal mode with a bounded pool sized for a single-node writer.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("metastore: path cannot be empty")
	}
	if strings.Contains(path, "..") {
		return nil, fmt.Errorf("metastore: invalid path contains '..': %s", path)
	}
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("metastore: create directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("metastore: open: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("metastore: ping: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS doc_meta (
	document_id TEXT PRIMARY KEY,
	subdb       TEXT NOT NULL,
	serial      INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_doc_meta_subdb ON doc_meta(subdb);
CREATE TABLE IF NOT EXISTS flush_state (
	subdb          TEXT PRIMARY KEY,
	oldest_flushed INTEGER NOT NULL,
	newest_flushed INTEGER NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("metastore: init schema: %w", err)
	}
	return nil
}

// Upsert records id's current sub-DB and serial.
func (s *Store) Upsert(ctx context.Context, id, subdb string, serial uint64) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO doc_meta (document_id, subdb, serial, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(document_id) DO UPDATE SET subdb = excluded.subdb, serial = excluded.serial, updated_at = excluded.updated_at
`, id, subdb, serial, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("metastore: upsert %s: %w", id, err)
	}
	return nil
}

// Delete removes id's meta-store entry entirely.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM doc_meta WHERE document_id = ?`, id); err != nil {
		return fmt.Errorf("metastore: delete %s: %w", id, err)
	}
	return nil
}

// Get returns the stored record for id.
func (s *Store) Get(ctx context.Context, id string) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT document_id, subdb, serial, updated_at FROM doc_meta WHERE document_id = ?`, id)
	var rec Record
	var updatedUnix int64
	if err := row.Scan(&rec.DocumentID, &rec.SubDB, &rec.Serial, &updatedUnix); err != nil {
		if err == sql.ErrNoRows {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("metastore: get %s: %w", id, err)
	}
	rec.UpdatedAt = time.Unix(updatedUnix, 0)
	return rec, true, nil
}

// CountBySubDB returns the number of records currently attributed to
// subdb.
func (s *Store) CountBySubDB(ctx context.Context, subdb string) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM doc_meta WHERE subdb = ?`, subdb)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("metastore: count %s: %w", subdb, err)
	}
	return n, nil
}

// SetFlushState records the oldest/newest flushed serial for subdb.
// DB.FlushTargets writes it on every call; nothing reads it back into
// FlushTargets.
func (s *Store) SetFlushState(ctx context.Context, subdb string, oldest, newest uint64) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO flush_state (subdb, oldest_flushed, newest_flushed)
VALUES (?, ?, ?)
ON CONFLICT(subdb) DO UPDATE SET oldest_flushed = excluded.oldest_flushed, newest_flushed = excluded.newest_flushed
`, subdb, oldest, newest)
	if err != nil {
		return fmt.Errorf("metastore: set flush state %s: %w", subdb, err)
	}
	return nil
}

// FlushState returns the oldest/newest flushed serial recorded for
// subdb, or zeros if none recorded yet.
func (s *Store) FlushState(ctx context.Context, subdb string) (oldest, newest uint64, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT oldest_flushed, newest_flushed FROM flush_state WHERE subdb = ?`, subdb)
	if scanErr := row.Scan(&oldest, &newest); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("metastore: flush state %s: %w", subdb, scanErr)
	}
	return oldest, newest, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
