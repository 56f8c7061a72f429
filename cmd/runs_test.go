package main

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/ate-cli/internal/results"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	done := now.Add(2 * time.Minute)
	runs := []results.RunRecord{
		{
			ID:         "abc12345-6789-0000-0000-000000000000",
			Metric:     "hamming",
			Status:     results.RunStatusComplete,
			Tiles:      1200,
			Rows:       960,
			StartedAt:  now,
			FinishedAt: &done,
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Metric:    "jaccard",
			Status:    results.RunStatusRunning,
			StartedAt: now.Add(-1 * time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "METRIC")
	assert.Contains(t, output, "hamming")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "960")
	assert.Contains(t, output, "2m0s")
	assert.Contains(t, output, "jaccard")
	assert.Contains(t, output, "running")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
}

func TestFormatTopRows(t *testing.T) {
	rows := []results.Row{
		{NumNeighbors: 5, TreatmentCount: 3, ATE: 1.5},
		{NumNeighbors: 10, TreatmentCount: 9, ATE: 2.25},
		{NumNeighbors: 15, TreatmentCount: 0, ATE: math.NaN()},
		{NumNeighbors: 20, TreatmentCount: 6, ATE: -0.5},
	}

	var buf bytes.Buffer
	formatTopRows(&buf, rows, 2)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], "PAIRS")
	assert.Contains(t, lines[1], "2.2500")
	assert.Contains(t, lines[2], "-0.5000")
	assert.NotContains(t, buf.String(), "NaN")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}
