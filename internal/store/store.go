// Package store keeps the history of validation runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vanderlab/textstudy/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// ErrRunNotFound is returned when a run id has no stored run.
var ErrRunNotFound = errors.New("run not found")

// Store wraps SQLite access for run history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			input_dir TEXT NOT NULL,
			accepted INTEGER NOT NULL,
			rejected INTEGER NOT NULL,
			unparseable INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS outcomes (
			run_id TEXT NOT NULL,
			participant_id TEXT NOT NULL,
			source TEXT NOT NULL,
			accepted INTEGER NOT NULL,
			reasons TEXT NOT NULL,
			PRIMARY KEY (run_id, source)
		);`,
		dscoresTable,
		`CREATE INDEX IF NOT EXISTS idx_runs_ended_at ON runs(ended_at);`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_participant ON outcomes(participant_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return s.migrateDScoreSource()
}

// A participant can be accepted from more than one file in a run, so scores
// are keyed by source as well.
const dscoresTable = `CREATE TABLE IF NOT EXISTS dscores (
	run_id TEXT NOT NULL,
	source TEXT NOT NULL,
	participant_id TEXT NOT NULL,
	d_score REAL NOT NULL,
	mean_a REAL NOT NULL,
	mean_b REAL NOT NULL,
	n_a INTEGER NOT NULL,
	n_b INTEGER NOT NULL,
	PRIMARY KEY (run_id, source, participant_id)
);`

// migrateDScoreSource rebuilds a dscores table created without the source
// column. Existing rows keep an empty source.
func (s *Store) migrateDScoreSource() (err error) {
	var hasSource int
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info('dscores') WHERE name = 'source'`,
	).Scan(&hasSource); err != nil {
		return err
	}
	if hasSource > 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()
	stmts := []string{
		`ALTER TABLE dscores RENAME TO dscores_old;`,
		dscoresTable,
		`INSERT INTO dscores (run_id, source, participant_id, d_score, mean_a, mean_b, n_a, n_b)
		 SELECT run_id, '', participant_id, d_score, mean_a, mean_b, n_a, n_b FROM dscores_old;`,
		`DROP TABLE dscores_old;`,
	}
	for _, stmt := range stmts {
		if _, err = tx.Exec(stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

const reasonSep = "\n"

// RecordRun stores a run with its outcomes and D-scores in one transaction
// and returns the run id. A run without an id gets a fresh one.
func (s *Store) RecordRun(ctx context.Context, run model.RunSummary) (id string, err error) {
	id = run.ID
	if id == "" {
		id = uuid.NewString()
	} else if _, perr := uuid.Parse(id); perr != nil {
		return "", fmt.Errorf("invalid run id %q: %w", id, perr)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	accepted, rejected := run.Counts()
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, ended_at, input_dir, accepted, rejected, unparseable)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.EndedAt.UTC().Format(time.RFC3339Nano),
		run.InputDir,
		accepted,
		rejected,
		len(run.Unparseable),
	); err != nil {
		return "", err
	}

	for _, o := range run.Outcomes {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO outcomes (run_id, participant_id, source, accepted, reasons) VALUES (?, ?, ?, ?, ?)`,
			id, o.ParticipantID, o.Source, o.Accepted(), strings.Join(o.Reasons, reasonSep),
		); err != nil {
			return "", err
		}
	}
	for _, d := range run.DScores {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO dscores (run_id, source, participant_id, d_score, mean_a, mean_b, n_a, n_b) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, d.Source, d.ParticipantID, d.DScore, d.MeanA, d.MeanB, d.NA, d.NB,
		); err != nil {
			return "", err
		}
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// ListRuns returns the most recent runs, newest first. limit <= 0 lists all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]model.RunAggregate, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, ended_at, input_dir, accepted, rejected, unparseable
		 FROM runs
		 ORDER BY ended_at DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var runs []model.RunAggregate
	for rows.Next() {
		var agg model.RunAggregate
		var startedAt, endedAt string
		if err := rows.Scan(&agg.ID, &startedAt, &endedAt, &agg.InputDir, &agg.Accepted, &agg.Rejected, &agg.Unparseable); err != nil {
			return nil, err
		}
		if agg.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, err
		}
		if agg.EndedAt, err = time.Parse(time.RFC3339Nano, endedAt); err != nil {
			return nil, err
		}
		runs = append(runs, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// ListOutcomes returns the outcomes of one run ordered by source file.
func (s *Store) ListOutcomes(ctx context.Context, runID string) ([]model.Outcome, error) {
	if err := s.requireRun(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT participant_id, source, reasons FROM outcomes WHERE run_id = ? ORDER BY source`, runID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var outcomes []model.Outcome
	for rows.Next() {
		var o model.Outcome
		var reasons string
		if err := rows.Scan(&o.ParticipantID, &o.Source, &reasons); err != nil {
			return nil, err
		}
		if reasons != "" {
			o.Reasons = strings.Split(reasons, reasonSep)
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// ListDScores returns the D-scores recorded for one run ordered by participant
// and source.
func (s *Store) ListDScores(ctx context.Context, runID string) ([]model.DScore, error) {
	if err := s.requireRun(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT participant_id, source, d_score, mean_a, mean_b, n_a, n_b FROM dscores WHERE run_id = ? ORDER BY participant_id, source`, runID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var scores []model.DScore
	for rows.Next() {
		var d model.DScore
		if err := rows.Scan(&d.ParticipantID, &d.Source, &d.DScore, &d.MeanA, &d.MeanB, &d.NA, &d.NB); err != nil {
			return nil, err
		}
		scores = append(scores, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return scores, nil
}

func (s *Store) requireRun(ctx context.Context, runID string) error {
	var found int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, runID).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	return err
}
