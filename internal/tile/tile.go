// Package tile models one-hot land-use image tiles and loads them from disk.
package tile

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ate-cli/internal/metric"
)

// ErrMalformedIdentifier is returned when a tile identifier carries no
// trailing integer point id.
var ErrMalformedIdentifier = eris.New("tile: malformed identifier")

// Channel indices of the land-use one-hot encoding.
const (
	ChannelConcrete = 0
	ChannelTree     = 2
)

// Image is a height x width x channel array stored row-major (HWC).
type Image struct {
	Height   int
	Width    int
	Channels int
	Data     []float64
}

// NewImage allocates a zeroed image.
func NewImage(height, width, channels int) Image {
	return Image{
		Height:   height,
		Width:    width,
		Channels: channels,
		Data:     make([]float64, height*width*channels),
	}
}

// At returns the value at row y, column x, channel c.
func (im Image) At(y, x, c int) float64 {
	return im.Data[(y*im.Width+x)*im.Channels+c]
}

// Set stores v at row y, column x, channel c.
func (im Image) Set(y, x, c int, v float64) {
	im.Data[(y*im.Width+x)*im.Channels+c] = v
}

// Flat returns the flattened HWC data. The slice is shared, not copied.
func (im Image) Flat() []float64 {
	return im.Data
}

// Tile is one spatial sample: a land-use image, the file it came from and
// the measured outcome (temperature) at its location.
type Tile struct {
	Image      Image
	Identifier string
	Outcome    float64
}

// PointID returns the traverse point id encoded in the tile identifier:
// the integer after the final "_" and before the extension.
func PointID(identifier string) (int, error) {
	base := filepath.Base(identifier)
	idx := strings.LastIndex(base, "_")
	if idx < 0 {
		return 0, eris.Wrapf(ErrMalformedIdentifier, "tile: no '_' in %q", identifier)
	}
	tail := base[idx+1:]
	if dot := strings.Index(tail, "."); dot >= 0 {
		tail = tail[:dot]
	}
	id, err := strconv.Atoi(tail)
	if err != nil || id < 0 {
		return 0, eris.Wrapf(ErrMalformedIdentifier, "tile: no point id in %q", identifier)
	}
	return id, nil
}

// ValidateShape checks every tile against the square shape the distance
// metrics were resolved for.
func ValidateShape(tiles []*Tile, shape metric.Shape) error {
	for i, t := range tiles {
		im := t.Image
		if im.Height != shape.Size || im.Width != shape.Size || im.Channels != shape.Channels {
			return eris.Errorf("tile: %s (index %d) is %dx%dx%d, want %dx%dx%d",
				t.Identifier, i, im.Height, im.Width, im.Channels, shape.Size, shape.Size, shape.Channels)
		}
		if len(im.Data) != shape.Len() {
			return eris.Errorf("tile: %s has %d values, want %d", t.Identifier, len(im.Data), shape.Len())
		}
	}
	return nil
}
