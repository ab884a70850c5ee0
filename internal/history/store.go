// Package history keeps an optional SQLite ledger of upload attempts so a
// user can see what was sent, when, and why it failed.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// Attempt statuses.
const (
	StatusUploaded = "uploaded"
	StatusFailed   = "failed"
)

// maxErrorLen caps the stored error text.
const maxErrorLen = 500

// dbDirPerms is used when creating the database's parent directory.
const dbDirPerms = 0o700

const (
	sqlInsertAttempt = `INSERT INTO upload_attempts
		(id, run_id, fit_path, file_size, attempt, status, upload_id, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlListAttempts = `SELECT id, run_id, fit_path, file_size, attempt, status,
		upload_id, error, started_at, finished_at
		FROM upload_attempts
		ORDER BY started_at DESC, attempt DESC
		LIMIT ?`
)

// Attempt is one row of the ledger.
type Attempt struct {
	ID         string
	RunID      string
	FitPath    string
	FileSize   int64
	Attempt    int
	Status     string
	UploadID   int64
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Store is the ledger handle. It is the sole writer to its database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the SQLite database at dbPath and applies
// pending migrations.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), dbDirPerms); err != nil {
		return nil, fmt.Errorf("history: creating directory for %s: %w", dbPath, err)
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: opening database %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("history store opened", slog.String("db_path", dbPath))

	return &Store{db: db, logger: logger}, nil
}

// Record inserts a into the ledger. An empty ID is filled with a new UUID;
// the error text is truncated.
func (s *Store) Record(ctx context.Context, a Attempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx, sqlInsertAttempt,
		a.ID, a.RunID, a.FitPath, nullInt64(a.FileSize), a.Attempt, a.Status,
		nullInt64(a.UploadID), nullString(truncate(a.Error, maxErrorLen)),
		a.StartedAt.UnixNano(), a.FinishedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("history: recording attempt %d of run %s: %w", a.Attempt, a.RunID, err)
	}

	return nil
}

// List returns up to limit attempts, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx, sqlListAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("history: listing attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt

	for rows.Next() {
		var (
			a                   Attempt
			size, uploadID      sql.NullInt64
			errText             sql.NullString
			startedAt, finished int64
		)

		if err := rows.Scan(&a.ID, &a.RunID, &a.FitPath, &size, &a.Attempt, &a.Status,
			&uploadID, &errText, &startedAt, &finished); err != nil {
			return nil, fmt.Errorf("history: scanning attempt: %w", err)
		}

		a.FileSize = size.Int64
		a.UploadID = uploadID.Int64
		a.Error = errText.String
		a.StartedAt = time.Unix(0, startedAt)
		a.FinishedAt = time.Unix(0, finished)

		out = append(out, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating attempts: %w", err)
	}

	return out, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}

	return string(r[:n])
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}

	return sql.NullString{String: s, Valid: true}
}

func nullInt64(n int64) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}

	return sql.NullInt64{Int64: n, Valid: true}
}
