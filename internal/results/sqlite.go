package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Run statuses recorded in the runs table.
const (
	RunStatusRunning  = "running"
	RunStatusComplete = "complete"
	RunStatusFailed   = "failed"
)

// SQLiteSink records each invocation in a runs table and every result row
// in ate_results, keyed by run id.
type SQLiteSink struct {
	db    *sql.DB
	runID string
}

// OpenSQLite opens a SQLite database at dsn, migrates it and registers run.
func OpenSQLite(ctx context.Context, dsn string, run RunInfo) (*SQLiteSink, error) {
	db, err := openDB(ctx, dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteSink{db: db, runID: run.ID}
	if err := s.insertRun(ctx, run); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// openDB opens dsn with the WAL pragmas and applies the schema.
func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteMigration); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite: migrate")
	}
	return db, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	distance_metric TEXT NOT NULL,
	tiles           INTEGER NOT NULL,
	points          INTEGER NOT NULL,
	grid            TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'running',
	started_at      DATETIME NOT NULL,
	finished_at     DATETIME
);

CREATE TABLE IF NOT EXISTS ate_results (
	run_id                 TEXT NOT NULL REFERENCES runs(id),
	neighborhood_min_dist  REAL NOT NULL,
	num_neighbors          INTEGER NOT NULL,
	window_radius          INTEGER NOT NULL,
	treatment_pct          REAL NOT NULL,
	control_pct            REAL NOT NULL,
	match_radius           REAL NOT NULL,
	treatment_count        INTEGER NOT NULL,
	control_count          INTEGER NOT NULL,
	ate                    REAL,
	ate_std                REAL,
	mean_match_distance    REAL,
	created_at             DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_ate_results_run_id ON ate_results(run_id);
`

func (s *SQLiteSink) insertRun(ctx context.Context, run RunInfo) error {
	grid, err := json.Marshal(run.Grid)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal grid")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, distance_metric, tiles, points, grid, status, started_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Metric, run.Tiles, run.Points, string(grid), RunStatusRunning, run.StartedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
}

// Write inserts one result row.
func (s *SQLiteSink) Write(ctx context.Context, row Row) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ate_results (
			run_id, neighborhood_min_dist, num_neighbors, window_radius, treatment_pct, control_pct,
			match_radius, treatment_count, control_count, ate, ate_std, mean_match_distance
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.runID, row.NeighborhoodMinDist, row.NumNeighbors, row.WindowRadius, row.TreatmentPct, row.ControlPct,
		row.MatchRadius, row.TreatmentCount, row.ControlCount,
		nullFloat(row.ATE), nullFloat(row.ATEStd), nullFloat(row.MeanDistance),
	)
	return eris.Wrap(err, "sqlite: insert result")
}

// Finish marks the run with its final status.
func (s *SQLiteSink) Finish(ctx context.Context, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`,
		status, time.Now().UTC(), s.runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", s.runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: run %s not found", s.runID)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// nullFloat stores NaN and infinities as NULL.
func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}
