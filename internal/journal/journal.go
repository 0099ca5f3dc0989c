// Package journal keeps a history of capture events in SQLite so past runs
// can be inspected after the process exits.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MeKo-Tech/qrharvest/internal/pipeline"
)

// DefaultFile is the journal name used inside an output location.
const DefaultFile = ".qr_history.db"

const schema = `
CREATE TABLE IF NOT EXISTS capture_events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    recorded_at TEXT NOT NULL,
    session_id  TEXT NOT NULL,
    source      TEXT,
    sequence    INTEGER NOT NULL,
    idx         INTEGER NOT NULL,
    decision    TEXT NOT NULL,
    kind        TEXT NOT NULL,
    content     TEXT NOT NULL,
    reason      TEXT,
    saved_path  TEXT,
    output_dir  TEXT,
    error       TEXT
);
CREATE INDEX IF NOT EXISTS idx_capture_events_session ON capture_events(session_id);
CREATE INDEX IF NOT EXISTS idx_capture_events_content ON capture_events(content);
`

// Entry is one recorded capture event.
type Entry struct {
	ID         int64     `json:"id"`
	RecordedAt time.Time `json:"recorded_at"`
	SessionID  string    `json:"session_id"`
	Source     string    `json:"source,omitempty"`
	Sequence   int       `json:"sequence"`
	Index      int       `json:"index"`
	Decision   string    `json:"decision"`
	Kind       string    `json:"kind"`
	Content    string    `json:"content"`
	Reason     string    `json:"reason,omitempty"`
	SavedPath  string    `json:"saved_path,omitempty"`
	OutputDir  string    `json:"output_dir,omitempty"`
	Error      string    `json:"error,omitempty"`
}

var _ pipeline.EventSink = (*Journal)(nil)

// Journal records capture events.
type Journal struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Journal.
type Option func(*Journal)

// WithLogger sets the logger used when recording fails inside Consume.
func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) {
		if l != nil {
			j.logger = l
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) {
		if now != nil {
			j.now = now
		}
	}
}

// Open creates or opens the journal database at path.
func Open(path string, opts ...Option) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection keeps writes ordered and avoids SQLITE_BUSY between
	// our own goroutines.
	db.SetMaxOpenConns(1)

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
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	j := &Journal{db: db, path: path, logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(j)
	}
	return j, nil
}

// Path returns the database file location.
func (j *Journal) Path() string { return j.path }

// Close closes the database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record stores every event of res in one transaction.
func (j *Journal) Record(ctx context.Context, res *pipeline.FrameResult) error {
	if res == nil || len(res.Events) == 0 {
		return nil
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO capture_events (
            recorded_at, session_id, source, sequence, idx, decision, kind,
            content, reason, saved_path, output_dir, error
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	stamp := j.now().UTC().Format(time.RFC3339Nano)
	for _, e := range res.Events {
		if _, err := stmt.ExecContext(ctx,
			stamp,
			res.SessionID,
			nullableString(res.Source),
			res.Sequence,
			e.Index,
			e.Decision.String(),
			e.Kind,
			e.Content,
			nullableString(e.Reason),
			nullableString(e.SavedPath),
			nullableString(res.OutputDir),
			nullableString(e.Error),
		); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Consume implements pipeline.EventSink. Failures are logged; the capture
// itself is not affected.
func (j *Journal) Consume(ctx context.Context, res *pipeline.FrameResult) {
	if err := j.Record(ctx, res); err != nil {
		j.logger.Warn("failed to record capture events", "path", j.path, "error", err)
	}
}

// Filter narrows Recent.
type Filter struct {
	SessionID string
	// Decision is "NEW" or "DUPLICATE"; empty matches both.
	Decision string
	Limit    int
}

// Recent returns the newest entries first.
func (j *Journal) Recent(ctx context.Context, f Filter) ([]Entry, error) {
	query := `SELECT id, recorded_at, session_id, source, sequence, idx, decision, kind,
            content, reason, saved_path, output_dir, error
        FROM capture_events WHERE 1=1`
	var args []any
	if f.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, f.SessionID)
	}
	if f.Decision != "" {
		query += " AND decision = ?"
		args = append(args, f.Decision)
	}
	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e                                         Entry
			recorded                                  string
			source, reason, saved, outputDir, errText sql.NullString
		)
		if err := rows.Scan(&e.ID, &recorded, &e.SessionID, &source, &e.Sequence, &e.Index,
			&e.Decision, &e.Kind, &e.Content, &reason, &saved, &outputDir, &errText); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, recorded); err == nil {
			e.RecordedAt = ts
		}
		e.Source = source.String
		e.Reason = reason.String
		e.SavedPath = saved.String
		e.OutputDir = outputDir.String
		e.Error = errText.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// Counts returns how many NEW and DUPLICATE events were recorded.
func (j *Journal) Counts(ctx context.Context) (newCount, duplicates int, err error) {
	row := j.db.QueryRowContext(ctx, `SELECT
            COALESCE(SUM(CASE WHEN decision = 'NEW' AND saved_path IS NOT NULL THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN decision = 'DUPLICATE' THEN 1 ELSE 0 END), 0)
        FROM capture_events`)
	if err := row.Scan(&newCount, &duplicates); err != nil {
		return 0, 0, fmt.Errorf("count events: %w", err)
	}
	return newCount, duplicates, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
