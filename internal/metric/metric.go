// Package metric provides pairwise distances between flattened one-hot
// land-use tiles. Smaller values mean more similar tiles.
package metric

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrUnknownMetric is returned when a metric key is not recognized.
var ErrUnknownMetric = eris.New("metric: unknown distance metric")

// Kind identifies a distance metric.
type Kind int

// Supported metric kinds.
const (
	Hamming Kind = iota
	WeightedHamming
	JensenShannon
	KLDivergence
	Jaccard
)

var kindNames = map[Kind]string{
	Hamming:         "hamming",
	WeightedHamming: "weighted_hamming",
	JensenShannon:   "jensenshannon",
	KLDivergence:    "kl_divergence",
	Jaccard:         "jaccard",
}

// String returns the key used to select the metric.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind resolves a metric key such as "weighted_hamming".
func ParseKind(name string) (Kind, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == key {
			return k, nil
		}
	}
	return 0, eris.Wrapf(ErrUnknownMetric, "metric: %q", name)
}

// Names returns every metric key in sorted order.
func Names() []string {
	names := make([]string, 0, len(kindNames))
	for _, n := range kindNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Func computes the distance between two flattened images of equal length.
type Func func(a, b []float64) float64

// Shape is the spatial layout the shape-bound metrics assume: Size x Size
// pixels with Channels one-hot classes, flattened height-width-channel.
type Shape struct {
	Size     int
	Channels int
}

// DefaultShape matches the 256x256 four-class tiles of the land-use dataset.
var DefaultShape = Shape{Size: 256, Channels: 4}

// Len is the flattened length of an image with this shape.
func (s Shape) Len() int {
	return s.Size * s.Size * s.Channels
}

// Resolve returns the distance function for kind. Shape-dependent state such
// as the weighted hamming weight matrix is built once here.
func Resolve(kind Kind, shape Shape) (Func, error) {
	if shape.Size <= 0 || shape.Channels <= 0 {
		return nil, eris.Errorf("metric: invalid shape %dx%dx%d", shape.Size, shape.Size, shape.Channels)
	}
	switch kind {
	case Hamming:
		return func(a, b []float64) float64 { return HammingDistance(a, b, nil) }, nil
	case WeightedHamming:
		w := CenterWeights(shape)
		return func(a, b []float64) float64 { return HammingDistance(a, b, w) }, nil
	case JensenShannon:
		return func(a, b []float64) float64 { return JensenShannonDistance(a, b, shape) }, nil
	case KLDivergence:
		return func(a, b []float64) float64 { return ChannelKL(a, b, shape) }, nil
	case Jaccard:
		return JaccardDistance, nil
	default:
		return nil, eris.Wrapf(ErrUnknownMetric, "metric: kind %d", int(kind))
	}
}

// Lookup parses name and resolves it for shape in one step.
func Lookup(name string, shape Shape) (Func, error) {
	kind, err := ParseKind(name)
	if err != nil {
		return nil, err
	}
	return Resolve(kind, shape)
}

func mustSameLen(a, b []float64) {
	if len(a) != len(b) {
		panic("metric: slice length mismatch")
	}
}
