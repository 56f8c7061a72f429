package traverse

import (
	"math"
	"os"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
)

// readGeoJSON reads a FeatureCollection of Point features in file order.
func readGeoJSON(path, feature string) ([]Point, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "traverse: read %s", path)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, eris.Wrapf(err, "traverse: decode geojson %s", path)
	}

	points := make([]Point, 0, len(fc.Features))
	found := false
	for i, f := range fc.Features {
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			return nil, eris.Wrapf(ErrNonPointGeometry, "traverse: feature %d of %s", i, path)
		}
		v, present := propertyFloat(f.Properties, feature)
		found = found || present
		points = append(points, Point{X: pt.X(), Y: pt.Y(), Feature: v})
	}
	if len(points) > 0 && !found {
		return nil, eris.Wrapf(ErrFeatureNotFound, "traverse: %q in %s", feature, path)
	}
	return points, nil
}

// propertyFloat reads a numeric property. Strings are parsed; anything else
// is NaN. The second result reports whether the key exists.
func propertyFloat(props geojson.Properties, key string) (float64, bool) {
	raw, ok := props[key]
	if !ok {
		return math.NaN(), false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return math.NaN(), true
		}
		return f, true
	default:
		return math.NaN(), true
	}
}
