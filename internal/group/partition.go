// Package group splits tiles into treatment and control groups by the land
// use at the center of each tile.
package group

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ate-cli/internal/tile"
)

// Candidate is a tile tagged with its covariate, ready for matching.
type Candidate struct {
	Tile      *tile.Tile
	Covariate float64
}

// Outcome returns the tile outcome.
func (c Candidate) Outcome() float64 { return c.Tile.Outcome }

// Window describes the central square and the coverage thresholds used to
// classify a tile. The square spans [center-Radius, center+Radius) on both
// axes, with center = dimension/2.
type Window struct {
	Radius           int
	TreatmentChannel int
	ControlChannel   int
	TreatmentPct     float64
	ControlPct       float64
}

// DefaultWindow returns a window using the concrete channel for treatment and
// the tree channel for control.
func DefaultWindow(radius int, treatmentPct, controlPct float64) Window {
	return Window{
		Radius:           radius,
		TreatmentChannel: tile.ChannelConcrete,
		ControlChannel:   tile.ChannelTree,
		TreatmentPct:     treatmentPct,
		ControlPct:       controlPct,
	}
}

// IsTreatment reports whether the treatment channel covers more than
// TreatmentPct of the central window.
func (w Window) IsTreatment(im tile.Image) bool {
	return CenterCoverage(im, w.Radius, w.TreatmentChannel) > w.TreatmentPct
}

// IsControl reports whether the control channel covers more than ControlPct
// of the central window. It is independent of IsTreatment: a tile may be both.
func (w Window) IsControl(im tile.Image) bool {
	return CenterCoverage(im, w.Radius, w.ControlChannel) > w.ControlPct
}

// CenterCoverage is the mean of channel over the central window. Window
// bounds follow slice semantics: a negative start counts from the end and
// the end is clamped, so an oversized radius shrinks the window instead of
// failing. An empty window has NaN coverage.
func CenterCoverage(im tile.Image, radius, channel int) float64 {
	if channel < 0 || channel >= im.Channels {
		return math.NaN()
	}
	y0, y1 := sliceBounds(im.Height/2-radius, im.Height/2+radius, im.Height)
	x0, x1 := sliceBounds(im.Width/2-radius, im.Width/2+radius, im.Width)

	n := (y1 - y0) * (x1 - x0)
	if n <= 0 {
		return math.NaN()
	}
	var sum float64
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			sum += im.At(y, x, channel)
		}
	}
	return sum / float64(n)
}

// sliceBounds resolves [start:end] against a length n the way sequence
// slicing does.
func sliceBounds(start, end, n int) (int, int) {
	clamp := func(i int) int {
		if i < 0 {
			i += n
			if i < 0 {
				i = 0
			}
		}
		if i > n {
			i = n
		}
		return i
	}
	s, e := clamp(start), clamp(end)
	if e < s {
		e = s
	}
	return s, e
}

// Partition classifies every tile. Both groups keep input order and may
// share tiles.
func Partition(tiles []*tile.Tile, covariates []float64, w Window) (treatment, control []Candidate, err error) {
	if len(tiles) != len(covariates) {
		return nil, nil, eris.Errorf("group: %d tiles but %d covariates", len(tiles), len(covariates))
	}
	for i, t := range tiles {
		c := Candidate{Tile: t, Covariate: covariates[i]}
		if w.IsTreatment(t.Image) {
			treatment = append(treatment, c)
		}
		if w.IsControl(t.Image) {
			control = append(control, c)
		}
	}
	return treatment, control, nil
}
