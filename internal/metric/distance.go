package metric

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// HammingDistance returns the weighted fraction of positions where a and b
// differ. A nil weight slice weighs every position equally.
func HammingDistance(a, b, weights []float64) float64 {
	mustSameLen(a, b)
	if len(a) == 0 {
		return math.NaN()
	}
	if weights == nil {
		var diff int
		for i := range a {
			if a[i] != b[i] {
				diff++
			}
		}
		return float64(diff) / float64(len(a))
	}
	mustSameLen(a, weights)

	var diff float64
	for i := range a {
		if a[i] != b[i] {
			diff += weights[i]
		}
	}
	return diff / floats.Sum(weights)
}

// CenterWeights builds the flattened weight matrix for weighted hamming:
// each pixel weighs 1/(1+d²) where d is its distance from the image center,
// repeated across every channel.
func CenterWeights(shape Shape) []float64 {
	n, ch := shape.Size, shape.Channels
	center := n / 2
	w := make([]float64, 0, shape.Len())
	for x := 0; x < n; x++ {
		dx := float64(x - center)
		for y := 0; y < n; y++ {
			dy := float64(y - center)
			pw := 1 / (1 + dx*dx + dy*dy)
			for c := 0; c < ch; c++ {
				w = append(w, pw)
			}
		}
	}
	return w
}

// JensenShannonDistance reads both flat arrays as (channels, size, size),
// turns every run along the last axis into a softmax distribution and
// returns the Jensen-Shannon distance between the flattened results.
func JensenShannonDistance(a, b []float64, shape Shape) float64 {
	mustSameLen(a, b)
	p := rowSoftmax(a, shape.Size)
	q := rowSoftmax(b, shape.Size)
	if !normalize(p) || !normalize(q) {
		return math.NaN()
	}
	js := stat.JensenShannon(p, q)
	if js < 0 {
		js = 0
	}
	return math.Sqrt(js)
}

// ChannelKL reads both flat arrays as (size, size, channels), averages each
// channel over the image and returns KL(a || b) of the two class mixes.
func ChannelKL(a, b []float64, shape Shape) float64 {
	mustSameLen(a, b)
	p := channelMeans(a, shape.Channels)
	q := channelMeans(b, shape.Channels)
	if !normalize(p) || !normalize(q) {
		return math.NaN()
	}
	return stat.KullbackLeibler(p, q)
}

// JaccardDistance is 1 minus the Jaccard similarity of the non-zero sets of
// a and b. Two empty sets have similarity 0.
func JaccardDistance(a, b []float64) float64 {
	mustSameLen(a, b)
	var inter, union int
	for i := range a {
		x, y := a[i] != 0, b[i] != 0
		if x && y {
			inter++
		}
		if x || y {
			union++
		}
	}
	if union == 0 {
		return 1
	}
	return 1 - float64(inter)/float64(union)
}

// rowSoftmax applies softmax to every consecutive run of width values.
func rowSoftmax(v []float64, width int) []float64 {
	out := make([]float64, len(v))
	if width <= 0 {
		return out
	}
	for start := 0; start < len(v); start += width {
		end := min(start+width, len(v))
		row := out[start:end]
		mx := floats.Max(v[start:end])
		for i := range row {
			row[i] = math.Exp(v[start+i] - mx)
		}
		floats.Scale(1/floats.Sum(row), row)
	}
	return out
}

func channelMeans(v []float64, channels int) []float64 {
	means := make([]float64, channels)
	if channels <= 0 || len(v) == 0 {
		return means
	}
	for i, x := range v {
		means[i%channels] += x
	}
	floats.Scale(float64(channels)/float64(len(v)), means)
	return means
}

// normalize scales v in place to sum to one. It reports false when v has no
// mass to normalize.
func normalize(v []float64) bool {
	sum := floats.Sum(v)
	if sum == 0 || math.IsNaN(sum) {
		return false
	}
	floats.Scale(1/sum, v)
	return true
}
