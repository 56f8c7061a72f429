package sweep

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/ate-cli/internal/match"
)

// Estimate summarizes one matched configuration.
type Estimate struct {
	TreatmentCount int
	ControlCount   int
	// ATE is mean(treatment) - mean(control) over the matched outcomes.
	ATE float64
	// ATEStd is the population standard deviation of the paired differences
	// treatment[i] - control[i]. Unlike ATE it is computed per pair; both
	// forms are kept as-is so results stay comparable with earlier runs.
	ATEStd       float64
	MeanDistance float64
}

// Reduce computes the estimate for a match result. An empty result yields
// NaN statistics.
func Reduce(r match.Result) Estimate {
	e := Estimate{
		TreatmentCount: len(r.TreatmentOutcomes),
		ControlCount:   len(r.ControlOutcomes),
		ATE:            math.NaN(),
		ATEStd:         math.NaN(),
		MeanDistance:   math.NaN(),
	}
	if r.Len() == 0 {
		return e
	}

	e.ATE = stat.Mean(r.TreatmentOutcomes, nil) - stat.Mean(r.ControlOutcomes, nil)

	diff := make([]float64, len(r.TreatmentOutcomes))
	floats.SubTo(diff, r.TreatmentOutcomes, r.ControlOutcomes)
	e.ATEStd = stat.PopStdDev(diff, nil)

	e.MeanDistance = stat.Mean(r.Distances, nil)
	return e
}
