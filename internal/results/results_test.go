package results

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRow() Row {
	return Row{
		NeighborhoodMinDist: 550,
		NumNeighbors:        5,
		WindowRadius:        20,
		TreatmentPct:        0.6,
		ControlPct:          0.7,
		MatchRadius:         1.5,
		TreatmentCount:      12,
		ControlCount:        12,
		ATE:                 4,
		ATEStd:              1.25,
		MeanDistance:        0.031,
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestRowRecord(t *testing.T) {
	rec := sampleRow().Record()
	assert.Equal(t, []string{"550", "5", "20", "0.6", "0.7", "1.5", "12", "12", "4", "1.25", "0.031"}, rec)
	assert.Len(t, rec, len(Header))

	r := Row{ATE: math.NaN()}
	assert.Equal(t, "NaN", r.Record()[8])
}

func TestCSVWriter_HeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "ate_results.csv")

	w, err := CreateCSV(path)
	require.NoError(t, err)
	assert.Equal(t, path, w.Path())

	// Rows are visible before Close.
	require.NoError(t, w.Write(context.Background(), sampleRow()))
	records := readCSV(t, path)
	require.Len(t, records, 2)
	assert.Equal(t, Header, records[0])

	require.NoError(t, w.Write(context.Background(), sampleRow()))
	require.NoError(t, w.Close())
	assert.Len(t, readCSV(t, path), 3)
}

func TestCSVWriter_Truncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ate_results.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale,data\n1,2\n3,4\n"), 0o644))

	w, err := CreateCSV(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	records := readCSV(t, path)
	require.Len(t, records, 1)
	assert.Equal(t, Header, records[0])
}

type memSink struct {
	rows   []Row
	fail   bool
	closed bool
}

func (m *memSink) Write(_ context.Context, r Row) error {
	if m.fail {
		return errors.New("boom")
	}
	m.rows = append(m.rows, r)
	return nil
}

func (m *memSink) Close() error {
	m.closed = true
	if m.fail {
		return errors.New("close boom")
	}
	return nil
}

func TestMultiSink(t *testing.T) {
	a, b := &memSink{}, &memSink{}
	m := MultiSink{a, b}

	require.NoError(t, m.Write(context.Background(), sampleRow()))
	assert.Len(t, a.rows, 1)
	assert.Len(t, b.rows, 1)
	require.NoError(t, m.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)

	bad := MultiSink{&memSink{fail: true}, b}
	assert.Error(t, bad.Write(context.Background(), sampleRow()))
	assert.Len(t, b.rows, 1, "later sinks are skipped after a failure")
	assert.Error(t, bad.Close())
}

func TestLocked_ConcurrentWrites(t *testing.T) {
	inner := &memSink{}
	l := NewLocked(inner)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Write(context.Background(), sampleRow())
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, l.Rows())
	assert.Len(t, inner.rows, 50)
	require.NoError(t, l.Close())
}

func TestSQLiteSink(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "results.db")

	run := NewRunInfo("hamming")
	run.Tiles, run.Points = 10, 20
	run.Grid = map[string]any{"num_neighbors": []int{5, 10}}

	s, err := OpenSQLite(ctx, dsn, run)
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, sampleRow()))
	nan := sampleRow()
	nan.ATE = math.NaN()
	require.NoError(t, s.Write(ctx, nan))
	require.NoError(t, s.Finish(ctx, RunStatusComplete))
	require.NoError(t, s.Close())

	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db.Close()

	var status, metric string
	require.NoError(t, db.QueryRow(`SELECT status, distance_metric FROM runs WHERE id = ?`, run.ID).Scan(&status, &metric))
	assert.Equal(t, RunStatusComplete, status)
	assert.Equal(t, "hamming", metric)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM ate_results WHERE run_id = ?`, run.ID).Scan(&count))
	assert.Equal(t, 2, count)

	var nulls int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM ate_results WHERE ate IS NULL`).Scan(&nulls))
	assert.Equal(t, 1, nulls)
}

func TestManifestRoundTrip(t *testing.T) {
	path := ManifestPath(filepath.Join(t.TempDir(), "ate_results.csv"))
	assert.Equal(t, "ate_results.manifest.yaml", filepath.Base(path))

	run := NewRunInfo("jaccard")
	run.Tiles = 42
	m := Manifest{RunInfo: run, ResultsPath: "ate_results.csv", Status: RunStatusRunning}
	require.NoError(t, WriteManifest(path, m))

	got, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "jaccard", got.Metric)
	assert.Equal(t, 42, got.Tiles)
	assert.Equal(t, RunStatusRunning, got.Status)
	assert.Nil(t, got.FinishedAt)
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "results.db")

	first := NewRunInfo("hamming")
	first.Tiles, first.Points = 3, 9
	s, err := OpenSQLite(ctx, dsn, first)
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, sampleRow()))
	nan := sampleRow()
	nan.NumNeighbors = 10
	nan.ATE = math.NaN()
	require.NoError(t, s.Write(ctx, nan))
	require.NoError(t, s.Finish(ctx, RunStatusComplete))
	require.NoError(t, s.Close())

	second := NewRunInfo("jaccard")
	second.StartedAt = first.StartedAt.Add(time.Minute)
	s, err = OpenSQLite(ctx, dsn, second)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	h, err := OpenHistory(ctx, dsn)
	require.NoError(t, err)
	defer h.Close()

	runs, err := h.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID, "newest first")
	assert.Equal(t, RunStatusRunning, runs[0].Status)
	assert.Nil(t, runs[0].FinishedAt)
	assert.Equal(t, 2, runs[1].Rows)
	assert.NotNil(t, runs[1].FinishedAt)

	limited, err := h.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	got, err := h.GetRun(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "hamming", got.Metric)
	assert.Equal(t, 9, got.Points)

	_, err = h.GetRun(ctx, "missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))

	rows, err := h.Results(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, sampleRow(), rows[0])
	assert.Equal(t, 10, rows[1].NumNeighbors)
	assert.True(t, math.IsNaN(rows[1].ATE))
}
