// Package match pairs each treatment tile with its closest control tile.
package match

import (
	"math"

	"github.com/sells-group/ate-cli/internal/group"
	"github.com/sells-group/ate-cli/internal/metric"
)

// Result holds one entry per matched treatment candidate. The three slices
// are index-aligned.
type Result struct {
	TreatmentOutcomes []float64
	ControlOutcomes   []float64
	Distances         []float64
}

// Len returns the number of matched pairs.
func (r Result) Len() int { return len(r.TreatmentOutcomes) }

// Eligible returns the controls whose covariate lies strictly within radius
// of the treatment covariate, in control order.
func Eligible(t group.Candidate, controls []group.Candidate, radius float64) []group.Candidate {
	var out []group.Candidate
	for _, c := range controls {
		if math.Abs(t.Covariate-c.Covariate) < radius {
			out = append(out, c)
		}
	}
	return out
}

// Closest returns the control nearest to t under fn and the distance
// achieved. The first control wins ties. If no control scores below +Inf
// the first control is returned with its own distance. pool must not be
// empty.
func Closest(t group.Candidate, pool []group.Candidate, fn metric.Func) (group.Candidate, float64) {
	tFlat := t.Tile.Image.Flat()
	best := -1
	bestDist := math.Inf(1)
	var firstDist float64
	for i, c := range pool {
		d := fn(tFlat, c.Tile.Image.Flat())
		if i == 0 {
			firstDist = d
		}
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return pool[0], firstDist
	}
	return pool[best], bestDist
}

// Match pairs every treatment candidate with its closest eligible control.
// Controls may be reused. Treatment candidates without an eligible control
// are skipped and leave no trace in the result.
func Match(treatment, control []group.Candidate, radius float64, fn metric.Func) Result {
	var r Result
	for _, t := range treatment {
		pool := Eligible(t, control, radius)
		if len(pool) == 0 {
			continue
		}
		c, d := Closest(t, pool, fn)
		r.TreatmentOutcomes = append(r.TreatmentOutcomes, t.Outcome())
		r.ControlOutcomes = append(r.ControlOutcomes, c.Outcome())
		r.Distances = append(r.Distances, d)
	}
	return r
}
