// Package store keeps a history of render runs in SQLite.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes.
const schemaVersion = 1

var (
	ErrSchemaMismatch = errors.New("store: schema version mismatch")
	ErrNotFound       = errors.New("store: run not found")
)

// Run is one render job.
type Run struct {
	ID             string
	Title          string
	InputPath      string
	OutDir         string
	FinalVideo     string
	Status         string
	SegmentsTotal  int
	SegmentsFailed int
	CharsPerSecond float64
	Error          string
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Segment is the outcome of one narration chunk within a run.
type Segment struct {
	Index        int
	Text         string
	CharCount    int
	AudioSeconds float64
	VideoSeconds float64
	Strategy     string
	SyncError    *float64
	SyncOK       *bool
	Status       string
	Error        string
}

type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the history database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory %q: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}
	s := &Store{db: db, path: path}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if exists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// SaveRun stores a run with its segments in one transaction and returns the
// run ID, generating one when run.ID is empty.
func (s *Store) SaveRun(ctx context.Context, run Run, segments []Segment) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin run tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (
            id, title, input_path, out_dir, final_video, status,
            segments_total, segments_failed, chars_per_second, error, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Title, run.InputPath, run.OutDir, nullableString(run.FinalVideo), run.Status,
		run.SegmentsTotal, run.SegmentsFailed, run.CharsPerSecond, nullableString(run.Error),
		formatTime(run.StartedAt), formatTime(run.FinishedAt),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO segments (
            run_id, idx, text, char_count, audio_seconds, video_seconds,
            strategy, sync_error, sync_ok, status, error
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare segment insert: %w", err)
	}
	defer stmt.Close()

	for _, seg := range segments {
		var syncOK any
		if seg.SyncOK != nil {
			syncOK = boolToInt(*seg.SyncOK)
		}
		var syncErr any
		if seg.SyncError != nil {
			syncErr = *seg.SyncError
		}
		if _, err := stmt.ExecContext(ctx,
			run.ID, seg.Index, seg.Text, seg.CharCount, seg.AudioSeconds, seg.VideoSeconds,
			nullableString(seg.Strategy), syncErr, syncOK, seg.Status, nullableString(seg.Error),
		); err != nil {
			return "", fmt.Errorf("insert segment %d: %w", seg.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run: %w", err)
	}
	return run.ID, nil
}

const runColumns = `id, title, input_path, out_dir, final_video, status,
    segments_total, segments_failed, chars_per_second, error, started_at, finished_at`

// ListRuns returns the most recent runs first. A non-positive limit means 20.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM runs ORDER BY started_at DESC, id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRun returns one run and its segments in index order.
func (s *Store) GetRun(ctx context.Context, id string) (Run, []Segment, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Run{}, nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, text, char_count, audio_seconds, video_seconds, strategy, sync_error, sync_ok, status, error
         FROM segments WHERE run_id = ? ORDER BY idx`, id)
	if err != nil {
		return Run{}, nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	var segs []Segment
	for rows.Next() {
		var (
			seg      Segment
			strategy sql.NullString
			syncErr  sql.NullFloat64
			syncOK   sql.NullInt64
			errText  sql.NullString
		)
		if err := rows.Scan(&seg.Index, &seg.Text, &seg.CharCount, &seg.AudioSeconds, &seg.VideoSeconds,
			&strategy, &syncErr, &syncOK, &seg.Status, &errText); err != nil {
			return Run{}, nil, fmt.Errorf("scan segment: %w", err)
		}
		seg.Strategy = strategy.String
		seg.Error = errText.String
		if syncErr.Valid {
			v := syncErr.Float64
			seg.SyncError = &v
		}
		if syncOK.Valid {
			v := syncOK.Int64 != 0
			seg.SyncOK = &v
		}
		segs = append(segs, seg)
	}
	return run, segs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r          Run
		finalVideo sql.NullString
		errText    sql.NullString
		started    string
		finished   string
	)
	err := sc.Scan(&r.ID, &r.Title, &r.InputPath, &r.OutDir, &finalVideo, &r.Status,
		&r.SegmentsTotal, &r.SegmentsFailed, &r.CharsPerSecond, &errText, &started, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	r.FinalVideo = finalVideo.String
	r.Error = errText.String
	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(finished)
	return r, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// timeLayout has a fixed-width fraction so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
