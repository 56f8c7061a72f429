// Package traverse loads the temperature traverse points that back the
// prognostic covariate, projected to EPSG:3857 so distances are in meters.
package traverse

import (
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Sentinel errors for point table loading.
var (
	ErrFeatureNotFound  = eris.New("traverse: feature column not found")
	ErrNonPointGeometry = eris.New("traverse: geometry is not a point")
	ErrUnsupportedCRS   = eris.New("traverse: unsupported coordinate reference system")
)

// Supported source coordinate reference systems.
const (
	CRSWGS84        = "EPSG:4326"
	CRSWebMercator  = "EPSG:3857"
	DefaultFeature  = "temp_f"
	crsAutoDetected = ""
)

// Point is one traverse sample in projected meters.
type Point struct {
	X       float64
	Y       float64
	Feature float64
}

// Coord returns the point as an orb.Point.
func (p Point) Coord() orb.Point {
	return orb.Point{p.X, p.Y}
}

// Table is an immutable, row-indexed set of traverse points. The row index
// is the point id referenced by tile identifiers.
type Table struct {
	Feature string
	Points  []Point
}

// Len returns the number of points.
func (t *Table) Len() int { return len(t.Points) }

// Options configures Load.
type Options struct {
	// Feature is the attribute holding the scalar value (default temp_f).
	Feature string
	// SourceCRS overrides the CRS detected from a .prj sidecar.
	SourceCRS string
}

// Load reads a point file (.shp, .geojson or .json) and reprojects it to
// EPSG:3857.
func Load(path string, opts Options) (*Table, error) {
	if opts.Feature == "" {
		opts.Feature = DefaultFeature
	}
	log := zap.L().With(zap.String("component", "traverse"), zap.String("path", path))

	var (
		raw []Point
		err error
		crs = opts.SourceCRS
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".shp":
		raw, err = readShapefile(path, opts.Feature)
		if err == nil && crs == crsAutoDetected {
			crs, err = detectPRJ(strings.TrimSuffix(path, filepath.Ext(path)) + ".prj")
		}
	case ".geojson", ".json":
		// RFC 7946 coordinates are always WGS84.
		raw, err = readGeoJSON(path, opts.Feature)
		if crs == crsAutoDetected {
			crs = CRSWGS84
		}
	default:
		return nil, eris.Errorf("traverse: unsupported file type %q", ext)
	}
	if err != nil {
		return nil, err
	}

	points, err := toWebMercator(raw, crs)
	if err != nil {
		return nil, eris.Wrapf(err, "traverse: project %s", path)
	}

	log.Info("traverse points loaded",
		zap.Int("points", len(points)),
		zap.String("source_crs", crs),
		zap.String("feature", opts.Feature),
	)
	return &Table{Feature: opts.Feature, Points: points}, nil
}

// toWebMercator reprojects points from crs into EPSG:3857.
func toWebMercator(points []Point, crs string) ([]Point, error) {
	switch strings.ToUpper(crs) {
	case CRSWebMercator:
		return points, nil
	case CRSWGS84:
		out := make([]Point, len(points))
		for i, p := range points {
			m := project.WGS84.ToMercator(p.Coord())
			out[i] = Point{X: m.X(), Y: m.Y(), Feature: p.Feature}
		}
		return out, nil
	default:
		return nil, eris.Wrapf(ErrUnsupportedCRS, "traverse: %q", crs)
	}
}

// detectPRJ inspects an ESRI .prj sidecar. A missing file is read as WGS84,
// which is what traverse exports carry in practice.
func detectPRJ(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			zap.L().Debug("traverse: no .prj sidecar, assuming WGS84", zap.String("path", path))
			return CRSWGS84, nil
		}
		return "", eris.Wrapf(err, "traverse: read %s", path)
	}
	wkt := strings.ToUpper(strings.TrimSpace(string(raw)))
	switch {
	case strings.HasPrefix(wkt, "GEOGCS") && strings.Contains(wkt, "WGS"):
		return CRSWGS84, nil
	case strings.HasPrefix(wkt, "PROJCS") && strings.Contains(wkt, "MERCATOR") &&
		(strings.Contains(wkt, "PSEUDO") || strings.Contains(wkt, "WEB_MERCATOR") || strings.Contains(wkt, "3857")):
		return CRSWebMercator, nil
	default:
		head := wkt
		if len(head) > 40 {
			head = head[:40]
		}
		return "", eris.Wrapf(ErrUnsupportedCRS, "traverse: prj %q", head)
	}
}

// parseFeature converts an attribute string to a float. Blank or
// unparsable values become NaN so they drop out of neighbor means.
func parseFeature(s string) float64 {
	s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
