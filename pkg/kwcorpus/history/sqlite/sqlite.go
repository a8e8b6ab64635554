package sqlite

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus/history"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/normalize"
)

// timeLayout sorts lexically in UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// sqliteStore implements history.Store using SQLite
type sqliteStore struct {
	db *sql.DB
}

// Open opens a SQLite ledger with WAL mode enabled, creating the schema
// if needed.
func Open(ctx context.Context, path string) (history.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	started_at TEXT NOT NULL,
	store_path TEXT,
	backup_path TEXT,
	written INTEGER NOT NULL DEFAULT 0,
	samples INTEGER NOT NULL DEFAULT 0,
	warnings INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS run_terms (
	run_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	category TEXT NOT NULL,
	tier TEXT NOT NULL,
	term TEXT NOT NULL,
	term_key TEXT NOT NULL,
	PRIMARY KEY(run_id, position),
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS run_terms_key ON run_terms(term_key);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// RecordRun inserts or replaces a run and its terms
func (s *sqliteStore) RecordRun(ctx context.Context, r history.Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
INSERT INTO runs (id, mode, started_at, store_path, backup_path, written, samples, warnings)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	mode=excluded.mode,
	started_at=excluded.started_at,
	store_path=excluded.store_path,
	backup_path=excluded.backup_path,
	written=excluded.written,
	samples=excluded.samples,
	warnings=excluded.warnings;
`, r.ID, r.Mode, r.StartedAt.UTC().Format(timeLayout), r.StorePath, r.BackupPath,
		boolInt(r.Written), r.Samples, r.Warnings)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_terms WHERE run_id=?`, r.ID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO run_terms (run_id, position, category, tier, term, term_key)
VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, t := range r.Terms {
		if _, err := stmt.ExecContext(ctx, r.ID, i, t.Category, t.Tier, t.Term, normalize.Fold(t.Term)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetRun loads one run with its terms.
func (s *sqliteStore) GetRun(ctx context.Context, id string) (history.Run, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, mode, started_at, store_path, backup_path, written, samples, warnings
FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return history.Run{}, false, nil
	}
	if err != nil {
		return history.Run{}, false, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT category, tier, term FROM run_terms WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return history.Run{}, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var t history.Term
		if err := rows.Scan(&t.Category, &t.Tier, &t.Term); err != nil {
			return history.Run{}, false, err
		}
		run.Terms = append(run.Terms, t)
	}
	if err := rows.Err(); err != nil {
		return history.Run{}, false, err
	}
	return run, true, nil
}

// ListRuns returns the most recent runs without their terms.
func (s *sqliteStore) ListRuns(ctx context.Context, k int) ([]history.Run, error) {
	if k <= 0 {
		k = history.DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, mode, started_at, store_path, backup_path, written, samples, warnings
FROM runs
ORDER BY started_at DESC, id DESC
LIMIT ?;
`, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []history.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// FindTerm looks a term up across all runs.
func (s *sqliteStore) FindTerm(ctx context.Context, term string) ([]history.TermRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT r.id, r.mode, r.started_at, t.category, t.tier, t.term
FROM run_terms t
JOIN runs r ON r.id = t.run_id
WHERE t.term_key = ?
ORDER BY r.started_at DESC, r.id DESC, t.position;
`, normalize.Fold(term))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []history.TermRecord
	for rows.Next() {
		var rec history.TermRecord
		var started string
		if err := rows.Scan(&rec.RunID, &rec.Mode, &started, &rec.Category, &rec.Tier, &rec.Term.Term); err != nil {
			return nil, err
		}
		if rec.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (history.Run, error) {
	var (
		run        history.Run
		started    string
		storePath  sql.NullString
		backupPath sql.NullString
		written    int
	)
	if err := sc.Scan(&run.ID, &run.Mode, &started, &storePath, &backupPath, &written, &run.Samples, &run.Warnings); err != nil {
		return history.Run{}, err
	}
	t, err := time.Parse(timeLayout, started)
	if err != nil {
		return history.Run{}, err
	}
	run.StartedAt = t
	run.StorePath = storePath.String
	run.BackupPath = backupPath.String
	run.Written = written != 0
	return run, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
