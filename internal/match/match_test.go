package match

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ate-cli/internal/group"
	"github.com/sells-group/ate-cli/internal/metric"
	"github.com/sells-group/ate-cli/internal/tile"
)

// candidate builds a 1x1 image candidate whose single pixel value is px.
func candidate(id string, px, covariate, outcome float64) group.Candidate {
	im := tile.NewImage(1, 1, 1)
	im.Data[0] = px
	return group.Candidate{
		Tile:      &tile.Tile{Image: im, Identifier: id, Outcome: outcome},
		Covariate: covariate,
	}
}

// absDiff is a toy metric over the single pixel.
func absDiff(a, b []float64) float64 { return math.Abs(a[0] - b[0]) }

func TestEligible_StrictRadius(t *testing.T) {
	tr := candidate("t_0", 0, 10, 0)
	controls := []group.Candidate{
		candidate("c_0", 0, 10.4, 0),
		candidate("c_1", 0, 9.3, 0),
		candidate("c_2", 0, 12, 0),
		candidate("c_3", 0, 11, 0),
	}

	got := Eligible(tr, controls, 1)
	require.Len(t, got, 2)
	assert.Equal(t, "c_0", got[0].Tile.Identifier)
	assert.Equal(t, "c_1", got[1].Tile.Identifier)
}

func TestMatch_PicksClosestEligible(t *testing.T) {
	treatment := []group.Candidate{candidate("t_0", 5, 10, 90)}
	controls := []group.Candidate{
		candidate("c_0", 1, 10.4, 80),
		candidate("c_1", 4, 9.3, 81),
		candidate("c_2", 5, 12, 82), // perfect image match, but outside the radius
	}

	r := Match(treatment, controls, 1, absDiff)
	require.Equal(t, 1, r.Len())
	assert.Equal(t, []float64{90}, r.TreatmentOutcomes)
	assert.Equal(t, []float64{81}, r.ControlOutcomes)
	assert.Equal(t, []float64{1}, r.Distances)
}

func TestMatch_SkipsWithoutEligibleControls(t *testing.T) {
	treatment := []group.Candidate{
		candidate("t_0", 0, 0, 90),
		candidate("t_1", 0, 50, 91),
		candidate("t_2", 0, 1, 92),
	}
	controls := []group.Candidate{candidate("c_0", 0, 0.5, 80)}

	r := Match(treatment, controls, 1, absDiff)
	assert.Equal(t, []float64{90, 92}, r.TreatmentOutcomes)
	assert.Equal(t, []float64{80, 80}, r.ControlOutcomes, "controls are matched with replacement")
	assert.Len(t, r.Distances, 2)
}

func TestMatch_TieGoesToFirstControl(t *testing.T) {
	treatment := []group.Candidate{candidate("t_0", 5, 0, 90)}
	controls := []group.Candidate{
		candidate("c_0", 7, 0, 80),
		candidate("c_1", 3, 0, 81),
	}

	r := Match(treatment, controls, 1, absDiff)
	assert.Equal(t, []float64{80}, r.ControlOutcomes)
	assert.Equal(t, []float64{2}, r.Distances)
}

func TestMatch_InfiniteDistancesKeepAlignment(t *testing.T) {
	inf := func(a, b []float64) float64 { return math.Inf(1) }
	treatment := []group.Candidate{candidate("t_0", 0, 0, 90)}
	controls := []group.Candidate{candidate("c_0", 0, 0, 80), candidate("c_1", 0, 0, 81)}

	r := Match(treatment, controls, 1, inf)
	assert.Equal(t, []float64{80}, r.ControlOutcomes)
	assert.True(t, math.IsInf(r.Distances[0], 1))
}

func TestMatch_Empty(t *testing.T) {
	r := Match(nil, []group.Candidate{candidate("c_0", 0, 0, 80)}, 1, absDiff)
	assert.Equal(t, 0, r.Len())

	r = Match([]group.Candidate{candidate("t_0", 0, 0, 80)}, nil, 1, absDiff)
	assert.Equal(t, 0, r.Len())
}

func TestMatch_WithHamming(t *testing.T) {
	fn, err := metric.Resolve(metric.Hamming, metric.Shape{Size: 1, Channels: 1})
	require.NoError(t, err)

	treatment := []group.Candidate{candidate("t_0", 1, 0, 90)}
	controls := []group.Candidate{candidate("c_0", 0, 0, 80), candidate("c_1", 1, 0, 85)}

	r := Match(treatment, controls, 1, fn)
	assert.Equal(t, []float64{85}, r.ControlOutcomes)
	assert.Equal(t, []float64{0}, r.Distances)
}
