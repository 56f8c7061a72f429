package traverse

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// readShapefile reads point records and the feature attribute of every row.
// Row order is preserved because it defines the point id.
func readShapefile(path, feature string) ([]Point, error) {
	dec, err := attributeDecoder(path)
	if err != nil {
		return nil, err
	}

	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "traverse: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	featureIdx := -1
	for i, f := range reader.Fields() {
		name := decodeAttr(dec, f.String())
		if strings.EqualFold(name, feature) {
			featureIdx = i
			break
		}
	}
	if featureIdx < 0 {
		return nil, eris.Wrapf(ErrFeatureNotFound, "traverse: %q in %s", feature, path)
	}

	var points []Point
	for reader.Next() {
		row, shape := reader.Shape()
		x, y, ok := pointXY(shape)
		if !ok {
			return nil, eris.Wrapf(ErrNonPointGeometry, "traverse: row %d of %s is %T", row, path, shape)
		}
		points = append(points, Point{
			X:       x,
			Y:       y,
			Feature: parseFeature(decodeAttr(dec, reader.Attribute(featureIdx))),
		})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "traverse: read shapefile %s", path)
	}
	return points, nil
}

func pointXY(shape shp.Shape) (float64, float64, bool) {
	switch s := shape.(type) {
	case *shp.Point:
		return s.X, s.Y, true
	case *shp.PointZ:
		return s.X, s.Y, true
	case *shp.PointM:
		return s.X, s.Y, true
	default:
		return 0, 0, false
	}
}

// attributeDecoder returns a decoder for the code page named in the .cpg
// sidecar, or nil when there is none.
func attributeDecoder(path string) (*encoding.Decoder, error) {
	cpg := strings.TrimSuffix(path, filepath.Ext(path)) + ".cpg"
	raw, err := os.ReadFile(cpg)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "traverse: read %s", cpg)
	}
	label := codePageLabel(string(raw))
	if label == "" {
		return nil, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, eris.Wrapf(err, "traverse: unsupported code page %q", label)
	}
	return enc.NewDecoder(), nil
}

// codePageLabel maps ESRI code page strings ("1252", "ANSI 1252") to WHATWG
// encoding labels.
func codePageLabel(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimPrefix(strings.ToUpper(s), "ANSI"))
	if s != "" && strings.Trim(s, "0123456789") == "" {
		return "windows-" + s
	}
	return strings.ToLower(s)
}

func decodeAttr(dec *encoding.Decoder, s string) string {
	s = strings.TrimRight(s, "\x00")
	if dec == nil {
		return s
	}
	out, err := dec.String(s)
	if err != nil {
		return s
	}
	return out
}
