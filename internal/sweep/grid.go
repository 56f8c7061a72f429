// Package sweep runs the matching pipeline over a grid of parameters and
// reduces each configuration to an average treatment effect.
package sweep

import (
	"iter"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ate-cli/internal/covariate"
)

// Grid lists the values swept for each parameter. The first two drive the
// covariate computation and form the outer loop.
type Grid struct {
	MinDists      []float64 `yaml:"neighborhood_min_dist" json:"neighborhood_min_dist" mapstructure:"neighborhood_min_dist"`
	Neighbors     []int     `yaml:"num_neighbors" json:"num_neighbors" mapstructure:"num_neighbors"`
	WindowRadii   []int     `yaml:"window_radius" json:"window_radius" mapstructure:"window_radius"`
	TreatmentPcts []float64 `yaml:"treatment_pct" json:"treatment_pct" mapstructure:"treatment_pct"`
	ControlPcts   []float64 `yaml:"control_pct" json:"control_pct" mapstructure:"control_pct"`
	MatchRadii    []float64 `yaml:"match_radius" json:"match_radius" mapstructure:"match_radius"`
}

// DefaultGrid is the sweep used for the land-use study.
func DefaultGrid(minDist float64) Grid {
	return Grid{
		MinDists:      []float64{minDist},
		Neighbors:     []int{5, 10, 15, 20, 25},
		WindowRadii:   []int{20, 40, 80},
		TreatmentPcts: []float64{0.6, 0.7, 0.8, 0.9},
		ControlPcts:   []float64{0.6, 0.7, 0.8, 0.9},
		MatchRadii:    []float64{0.5, 1, 1.5, 2},
	}
}

// Validate checks every axis is non-empty and in range.
func (g Grid) Validate() error {
	switch {
	case len(g.MinDists) == 0:
		return eris.New("sweep: grid has no neighborhood min dist values")
	case len(g.Neighbors) == 0:
		return eris.New("sweep: grid has no num neighbors values")
	case len(g.WindowRadii) == 0:
		return eris.New("sweep: grid has no window radius values")
	case len(g.TreatmentPcts) == 0:
		return eris.New("sweep: grid has no treatment pct values")
	case len(g.ControlPcts) == 0:
		return eris.New("sweep: grid has no control pct values")
	case len(g.MatchRadii) == 0:
		return eris.New("sweep: grid has no match radius values")
	}
	for p := range g.Outer() {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	for _, r := range g.WindowRadii {
		if r < 0 {
			return eris.Errorf("sweep: window radius must be >= 0, got %d", r)
		}
	}
	for _, pct := range append(append([]float64{}, g.TreatmentPcts...), g.ControlPcts...) {
		if pct < 0 || pct > 1 {
			return eris.Errorf("sweep: coverage pct must be in [0,1], got %v", pct)
		}
	}
	for _, r := range g.MatchRadii {
		if r <= 0 {
			return eris.Errorf("sweep: match radius must be > 0, got %v", r)
		}
	}
	return nil
}

// Size is the number of configurations in the grid.
func (g Grid) Size() int {
	return g.OuterSize() * g.InnerSize()
}

// OuterSize is the number of distinct covariate computations.
func (g Grid) OuterSize() int {
	return len(g.MinDists) * len(g.Neighbors)
}

// InnerSize is the number of configurations per covariate computation.
func (g Grid) InnerSize() int {
	return len(g.WindowRadii) * len(g.TreatmentPcts) * len(g.ControlPcts) * len(g.MatchRadii)
}

// Inner holds the parameters that do not affect covariates.
type Inner struct {
	WindowRadius int
	TreatmentPct float64
	ControlPct   float64
	MatchRadius  float64
}

// Config is one full point of the grid.
type Config struct {
	Covariate covariate.Params
	Inner
}

// Outer yields the covariate parameters in sweep order.
func (g Grid) Outer() iter.Seq[covariate.Params] {
	return func(yield func(covariate.Params) bool) {
		for _, d := range g.MinDists {
			for _, k := range g.Neighbors {
				if !yield(covariate.Params{MinDist: d, Neighbors: k}) {
					return
				}
			}
		}
	}
}

// Inner yields the partition and matching parameters in sweep order.
func (g Grid) Inner() iter.Seq[Inner] {
	return func(yield func(Inner) bool) {
		for _, r := range g.WindowRadii {
			for _, tp := range g.TreatmentPcts {
				for _, cp := range g.ControlPcts {
					for _, mr := range g.MatchRadii {
						if !yield(Inner{WindowRadius: r, TreatmentPct: tp, ControlPct: cp, MatchRadius: mr}) {
							return
						}
					}
				}
			}
		}
	}
}

// All yields every configuration, outer parameters varying slowest.
func (g Grid) All() iter.Seq[Config] {
	return func(yield func(Config) bool) {
		for p := range g.Outer() {
			for in := range g.Inner() {
				if !yield(Config{Covariate: p, Inner: in}) {
					return
				}
			}
		}
	}
}
