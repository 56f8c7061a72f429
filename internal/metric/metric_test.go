package metric

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var smallShape = Shape{Size: 4, Channels: 2}

// oneHot builds a flattened HWC image where every pixel belongs to class.
func oneHot(shape Shape, class func(x, y int) int) []float64 {
	out := make([]float64, 0, shape.Len())
	for x := 0; x < shape.Size; x++ {
		for y := 0; y < shape.Size; y++ {
			c := class(x, y)
			for ch := 0; ch < shape.Channels; ch++ {
				if ch == c {
					out = append(out, 1)
				} else {
					out = append(out, 0)
				}
			}
		}
	}
	return out
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		name string
		want Kind
	}{
		{"hamming", Hamming},
		{"weighted_hamming", WeightedHamming},
		{"jensenshannon", JensenShannon},
		{"kl_divergence", KLDivergence},
		{"jaccard", Jaccard},
		{"  Hamming ", Hamming},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKind(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseKind_Unknown(t *testing.T) {
	_, err := ParseKind("cosine")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownMetric))
	assert.Contains(t, err.Error(), "cosine")

	_, err = Lookup("euclidean", DefaultShape)
	assert.True(t, errors.Is(err, ErrUnknownMetric))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "weighted_hamming", WeightedHamming.String())
	assert.Equal(t, "unknown", Kind(99).String())
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"hamming", "jaccard", "jensenshannon", "kl_divergence", "weighted_hamming"}, Names())
}

func TestResolve_InvalidShape(t *testing.T) {
	_, err := Resolve(Hamming, Shape{})
	assert.Error(t, err)
}

func TestHamming_IdentityAndSymmetry(t *testing.T) {
	a := []float64{1, 0, 0, 1, 1, 0}
	b := []float64{1, 1, 0, 0, 1, 0}

	assert.Equal(t, 0.0, HammingDistance(a, a, nil))
	assert.InDelta(t, 2.0/6.0, HammingDistance(a, b, nil), 1e-12)
	assert.Equal(t, HammingDistance(a, b, nil), HammingDistance(b, a, nil))
}

func TestHamming_Weighted(t *testing.T) {
	a := []float64{1, 0, 0}
	b := []float64{0, 0, 1}
	w := []float64{3, 1, 1}
	assert.InDelta(t, 4.0/5.0, HammingDistance(a, b, w), 1e-12)
}

func TestHamming_Empty(t *testing.T) {
	assert.True(t, math.IsNaN(HammingDistance(nil, nil, nil)))
}

func TestHamming_LengthMismatchPanics(t *testing.T) {
	assert.Panics(t, func() { HammingDistance([]float64{1}, []float64{1, 0}, nil) })
}

func TestCenterWeights(t *testing.T) {
	w := CenterWeights(smallShape)
	require.Len(t, w, smallShape.Len())

	// Pixel (2,2) is the center: weight 1 in both channels.
	center := (2*4 + 2) * 2
	assert.Equal(t, 1.0, w[center])
	assert.Equal(t, 1.0, w[center+1])

	// Pixel (0,0) is at distance sqrt(8).
	assert.InDelta(t, 1.0/9.0, w[0], 1e-12)
	assert.InDelta(t, 1.0/9.0, w[1], 1e-12)
}

func TestWeightedHamming_Identity(t *testing.T) {
	fn, err := Resolve(WeightedHamming, smallShape)
	require.NoError(t, err)

	a := oneHot(smallShape, func(x, y int) int { return (x + y) % 2 })
	assert.Equal(t, 0.0, fn(a, a))
}

func TestWeightedHamming_CenterDominates(t *testing.T) {
	fn, err := Resolve(WeightedHamming, smallShape)
	require.NoError(t, err)

	base := oneHot(smallShape, func(x, y int) int { return 0 })
	centerFlip := oneHot(smallShape, func(x, y int) int {
		if x == 2 && y == 2 {
			return 1
		}
		return 0
	})
	cornerFlip := oneHot(smallShape, func(x, y int) int {
		if x == 0 && y == 0 {
			return 1
		}
		return 0
	})

	assert.Greater(t, fn(base, centerFlip), fn(base, cornerFlip))
}

func TestJensenShannon(t *testing.T) {
	fn, err := Resolve(JensenShannon, smallShape)
	require.NoError(t, err)

	a := oneHot(smallShape, func(x, y int) int { return 0 })
	b := oneHot(smallShape, func(x, y int) int { return 1 })

	assert.InDelta(t, 0.0, fn(a, a), 1e-12)
	d := fn(a, b)
	assert.Greater(t, d, 0.0)
	assert.LessOrEqual(t, d, math.Sqrt(math.Ln2))
	assert.InDelta(t, d, fn(b, a), 1e-12)
}

func TestRowSoftmax(t *testing.T) {
	got := rowSoftmax([]float64{0, 0, 1, 1}, 2)
	assert.InDeltaSlice(t, []float64{0.5, 0.5, 0.5, 0.5}, got, 1e-12)

	got = rowSoftmax([]float64{1, 0}, 2)
	e := math.E
	assert.InDeltaSlice(t, []float64{e / (e + 1), 1 / (e + 1)}, got, 1e-12)
}

func TestChannelKL(t *testing.T) {
	fn, err := Resolve(KLDivergence, smallShape)
	require.NoError(t, err)

	// Three quarters class 0 versus one half class 0.
	a := oneHot(smallShape, func(x, y int) int {
		if x == 0 {
			return 1
		}
		return 0
	})
	b := oneHot(smallShape, func(x, y int) int {
		if x < 2 {
			return 1
		}
		return 0
	})

	want := 0.75*math.Log(0.75/0.5) + 0.25*math.Log(0.25/0.5)
	assert.InDelta(t, want, fn(a, b), 1e-12)
	assert.InDelta(t, 0.0, fn(a, a), 1e-12)
}

func TestChannelKL_MissingClassIsInfinite(t *testing.T) {
	a := oneHot(smallShape, func(x, y int) int { return x % 2 })
	b := oneHot(smallShape, func(x, y int) int { return 0 })
	assert.True(t, math.IsInf(ChannelKL(a, b, smallShape), 1))
}

func TestJaccard(t *testing.T) {
	a := []float64{1, 1, 0, 0}
	b := []float64{1, 0, 1, 0}

	assert.Equal(t, 0.0, JaccardDistance(a, a))
	assert.InDelta(t, 1-1.0/3.0, JaccardDistance(a, b), 1e-12)
	assert.Equal(t, JaccardDistance(a, b), JaccardDistance(b, a))
	assert.Equal(t, 1.0, JaccardDistance([]float64{0, 0}, []float64{0, 0}))
}
