package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"cx-go/internal/cx"
	"cx-go/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase stores export history in SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

var _ cx.History = (*SQLiteDatabase)(nil)

// NewSQLiteDatabase opens path (or ":memory:") and migrates it to the
// latest schema.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate %s: %w", path, err)
	}
	if err := migrations.CheckDBMigrationStatus(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("history schema out of date: %w", err)
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Each new connection would see a fresh, empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return db, nil
}

// Path returns the database location.
func (s *SQLiteDatabase) Path() string {
	return s.path
}

func (s *SQLiteDatabase) CreateRun(run *cx.RunRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO export_runs (id, project, output_dir, formats, dry_run, status, saved, skipped, errored, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Project, run.OutputDir, joinFormats(run.Formats), run.DryRun, run.Status,
		run.Counter.Saved, run.Counter.Skipped, run.Counter.Errored, run.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", run.ID, err)
	}
	return nil
}

func (s *SQLiteDatabase) RecordExport(rec *cx.ExportRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO exports (run_id, file_id, file_name, version, format, destination, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.FileID, rec.FileName, rec.Version, string(rec.Format), rec.Destination,
		rec.Status, rec.Error, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record export of %s: %w", rec.FileID, err)
	}
	return nil
}

func (s *SQLiteDatabase) FinishRun(runID string, status string, counter cx.Counter, finishedAt time.Time) error {
	res, err := s.db.Exec(`
		UPDATE export_runs
		SET status = ?, saved = ?, skipped = ?, errored = ?, finished_at = ?
		WHERE id = ?`,
		status, counter.Saved, counter.Skipped, counter.Errored, finishedAt.UTC(), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if n == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *SQLiteDatabase) ListRuns(limit int) ([]*cx.RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT id, project, output_dir, formats, dry_run, status, saved, skipped, errored, started_at, finished_at
		FROM export_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*cx.RunRecord
	for rows.Next() {
		var (
			run      cx.RunRecord
			formats  string
			finished sql.NullTime
		)
		if err := rows.Scan(&run.ID, &run.Project, &run.OutputDir, &formats, &run.DryRun, &run.Status,
			&run.Counter.Saved, &run.Counter.Skipped, &run.Counter.Errored, &run.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Formats = splitFormats(formats)
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

func (s *SQLiteDatabase) ListExports(runID string) ([]*cx.ExportRecord, error) {
	rows, err := s.db.Query(`
		SELECT run_id, file_id, file_name, version, format, destination, status, error, created_at
		FROM exports
		WHERE run_id = ?
		ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list exports of %s: %w", runID, err)
	}
	defer rows.Close()

	var recs []*cx.ExportRecord
	for rows.Next() {
		var (
			rec    cx.ExportRecord
			format string
		)
		if err := rows.Scan(&rec.RunID, &rec.FileID, &rec.FileName, &rec.Version, &format,
			&rec.Destination, &rec.Status, &rec.Error, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan export: %w", err)
		}
		rec.Format = cx.Format(format)
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list exports of %s: %w", runID, err)
	}
	return recs, nil
}

func (s *SQLiteDatabase) Close() error {
	return s.db.Close()
}

func joinFormats(formats []cx.Format) string {
	tags := make([]string, len(formats))
	for i, f := range formats {
		tags[i] = string(f)
	}
	return strings.Join(tags, ",")
}

func splitFormats(s string) []cx.Format {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	formats := make([]cx.Format, len(parts))
	for i, p := range parts {
		formats[i] = cx.Format(p)
	}
	return formats
}
