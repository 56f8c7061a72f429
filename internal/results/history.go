package results

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/rotisserie/eris"
)

// ErrRunNotFound is returned when a run id is not in the database.
var ErrRunNotFound = eris.New("results: run not found")

// RunRecord is a row of the runs table with its result count.
type RunRecord struct {
	ID         string     `json:"run_id"`
	Metric     string     `json:"distance_metric"`
	Tiles      int        `json:"tiles"`
	Points     int        `json:"points"`
	Grid       string     `json:"grid"`
	Status     string     `json:"status"`
	Rows       int        `json:"rows"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// History reads past sweeps back out of a results database.
type History struct {
	db *sql.DB
}

// OpenHistory opens the results database at dsn.
func OpenHistory(ctx context.Context, dsn string) (*History, error) {
	db, err := openDB(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &History{db: db}, nil
}

// Close closes the database.
func (h *History) Close() error {
	return h.db.Close()
}

const runSelect = `
SELECT r.id, r.distance_metric, r.tiles, r.points, r.grid, r.status, r.started_at, r.finished_at,
       (SELECT COUNT(*) FROM ate_results a WHERE a.run_id = r.id)
FROM runs r`

func scanRun(row interface{ Scan(...any) error }) (RunRecord, error) {
	var (
		rec      RunRecord
		finished sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.Metric, &rec.Tiles, &rec.Points, &rec.Grid, &rec.Status,
		&rec.StartedAt, &finished, &rec.Rows)
	if err != nil {
		return RunRecord{}, err
	}
	if finished.Valid {
		t := finished.Time
		rec.FinishedAt = &t
	}
	return rec, nil
}

// ListRuns returns the most recent runs first. A limit <= 0 returns all.
func (h *History) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	q := runSelect + ` ORDER BY r.started_at DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := h.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "results: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "results: scan run")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "results: iterate runs")
}

// GetRun loads one run by id.
func (h *History) GetRun(ctx context.Context, id string) (RunRecord, error) {
	rec, err := scanRun(h.db.QueryRowContext(ctx, runSelect+` WHERE r.id = ?`, id))
	if eris.Is(err, sql.ErrNoRows) {
		return RunRecord{}, eris.Wrapf(ErrRunNotFound, "results: run %s", id)
	}
	if err != nil {
		return RunRecord{}, eris.Wrapf(err, "results: get run %s", id)
	}
	return rec, nil
}

// Results returns the rows written by a run in insertion order. NULL
// statistics come back as NaN.
func (h *History) Results(ctx context.Context, runID string) ([]Row, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT neighborhood_min_dist, num_neighbors, window_radius, treatment_pct, control_pct,
		       match_radius, treatment_count, control_count, ate, ate_std, mean_match_distance
		FROM ate_results WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "results: query rows for %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []Row
	for rows.Next() {
		var (
			r             Row
			ate, std, dst sql.NullFloat64
		)
		if err := rows.Scan(&r.NeighborhoodMinDist, &r.NumNeighbors, &r.WindowRadius, &r.TreatmentPct,
			&r.ControlPct, &r.MatchRadius, &r.TreatmentCount, &r.ControlCount, &ate, &std, &dst); err != nil {
			return nil, eris.Wrap(err, "results: scan row")
		}
		r.ATE, r.ATEStd, r.MeanDistance = fromNull(ate), fromNull(std), fromNull(dst)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "results: iterate rows")
}

func fromNull(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
