package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"camliup/internal/blobref"
	"camliup/internal/config"
)

// Store journals pending Files in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Entry is a journaled File with the time it was accepted.
type Entry struct {
	File
	QueuedAt time.Time `json:"queued_at"`
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the journal named by cfg.
func Open(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("queue store requires config")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.JournalPath())
}

// OpenPath opens the journal at dbPath, creating the schema when absent.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Add records f. Recording a Ref that is already journaled is a no-op.
func (s *Store) Add(ctx context.Context, f File) error {
	if !f.Ref.Valid() {
		return fmt.Errorf("journal file: %w", blobref.ErrInvalid)
	}
	_, err := s.execWithRetry(ctx,
		"INSERT OR IGNORE INTO pending_files (blobref, handle, size, queued_at) VALUES (?, ?, ?, ?)",
		f.Ref.String(), f.Handle, f.Size, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("journal file: %w", err)
	}
	return nil
}

// Remove deletes ref from the journal. Missing rows are not an error.
func (s *Store) Remove(ctx context.Context, ref blobref.Ref) error {
	if _, err := s.execWithRetry(ctx, "DELETE FROM pending_files WHERE blobref = ?", ref.String()); err != nil {
		return fmt.Errorf("remove journaled file: %w", err)
	}
	return nil
}

// List returns journaled entries in the order they were accepted.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT blobref, handle, size, queued_at FROM pending_files ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			rawRef    string
			handle    string
			size      int64
			queuedRaw string
		)
		if err := rows.Scan(&rawRef, &handle, &size, &queuedRaw); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		ref, err := blobref.Parse(rawRef)
		if err != nil {
			return nil, fmt.Errorf("journal row %q: %w", rawRef, err)
		}
		queuedAt, err := time.Parse(time.RFC3339Nano, queuedRaw)
		if err != nil {
			return nil, fmt.Errorf("journal row %q queued_at: %w", rawRef, err)
		}
		entries = append(entries, Entry{
			File:     File{Ref: ref, Handle: handle, Size: size},
			QueuedAt: queuedAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return entries, nil
}

// Count returns the number of journaled files.
func (s *Store) Count(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM pending_files").Scan(&count); err != nil {
		return 0, fmt.Errorf("count journal: %w", err)
	}
	return count, nil
}

// Clear removes every journaled file and reports how many were dropped.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, "DELETE FROM pending_files")
	if err != nil {
		return 0, fmt.Errorf("clear journal: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear journal rows affected: %w", err)
	}
	return affected, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}
