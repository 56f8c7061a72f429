// Package results persists one row per sweep configuration.
package results

import (
	"context"
	"errors"
	"strconv"
	"sync"
)

// Header is the fixed column order of the results file.
var Header = []string{
	"Neighborhood min dist",
	"Num neighbors",
	"Treatment/Control Radius",
	"Treatment %",
	"Control %",
	"Match Radius",
	"Treatment Count",
	"Control Count",
	"ATE",
	"TE Std",
	"Average Match Distance",
}

// Row is the outcome of one configuration.
type Row struct {
	NeighborhoodMinDist float64
	NumNeighbors        int
	WindowRadius        int
	TreatmentPct        float64
	ControlPct          float64
	MatchRadius         float64
	TreatmentCount      int
	ControlCount        int
	ATE                 float64
	ATEStd              float64
	MeanDistance        float64
}

// Record renders r in Header order.
func (r Row) Record() []string {
	return []string{
		formatFloat(r.NeighborhoodMinDist),
		strconv.Itoa(r.NumNeighbors),
		strconv.Itoa(r.WindowRadius),
		formatFloat(r.TreatmentPct),
		formatFloat(r.ControlPct),
		formatFloat(r.MatchRadius),
		strconv.Itoa(r.TreatmentCount),
		strconv.Itoa(r.ControlCount),
		formatFloat(r.ATE),
		formatFloat(r.ATEStd),
		formatFloat(r.MeanDistance),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Sink receives result rows.
type Sink interface {
	Write(ctx context.Context, row Row) error
	Close() error
}

// MultiSink writes every row to each sink in order.
type MultiSink []Sink

// Write forwards row to every sink and stops at the first failure.
func (m MultiSink) Write(ctx context.Context, row Row) error {
	for _, s := range m {
		if err := s.Write(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and joins their errors.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Locked serializes access to a sink shared by concurrent writers.
type Locked struct {
	mu   sync.Mutex
	sink Sink
	rows int
}

// NewLocked wraps sink.
func NewLocked(sink Sink) *Locked {
	return &Locked{sink: sink}
}

// Write writes row while holding the lock.
func (l *Locked) Write(ctx context.Context, row Row) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.sink.Write(ctx, row); err != nil {
		return err
	}
	l.rows++
	return nil
}

// Rows returns how many rows were written successfully.
func (l *Locked) Rows() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rows
}

// Close closes the wrapped sink.
func (l *Locked) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sink.Close()
}
