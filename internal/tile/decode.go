package tile

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/sbinet/npyio"
	"golang.org/x/image/tiff"
)

// DecodeFile reads a tile image from path. Supported formats:
//   - .npy: height x width x channel array (float32, float64, uint8 or bool)
//   - .png, .tif, .tiff: single-band class-index raster, expanded to one-hot
//     with the given number of channels
func DecodeFile(path string, channels int) (Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return Image{}, eris.Wrapf(err, "tile: open %s", path)
	}
	defer func() { _ = f.Close() }()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".npy":
		return DecodeNPY(f)
	case ".png":
		img, err := png.Decode(f)
		if err != nil {
			return Image{}, eris.Wrapf(err, "tile: decode png %s", path)
		}
		return FromClassRaster(img, channels)
	case ".tif", ".tiff":
		img, err := tiff.Decode(f)
		if err != nil {
			return Image{}, eris.Wrapf(err, "tile: decode tiff %s", path)
		}
		return FromClassRaster(img, channels)
	default:
		return Image{}, eris.Errorf("tile: unsupported image format %q", ext)
	}
}

// DecodeNPY reads a 3-D numpy array laid out height x width x channel.
func DecodeNPY(r io.Reader) (Image, error) {
	nr, err := npyio.NewReader(r)
	if err != nil {
		return Image{}, eris.Wrap(err, "tile: read npy header")
	}
	shape := nr.Header.Descr.Shape
	if len(shape) != 3 {
		return Image{}, eris.Errorf("tile: npy array has shape %v, want 3 dimensions", shape)
	}
	if nr.Header.Descr.Fortran {
		return Image{}, eris.New("tile: fortran-ordered npy arrays are not supported")
	}

	im := NewImage(shape[0], shape[1], shape[2])
	switch typ := nr.Header.Descr.Type; typ {
	case "<f8":
		if err := nr.Read(&im.Data); err != nil {
			return Image{}, eris.Wrap(err, "tile: read npy float64")
		}
	case "<f4":
		raw := make([]float32, len(im.Data))
		if err := nr.Read(&raw); err != nil {
			return Image{}, eris.Wrap(err, "tile: read npy float32")
		}
		for i, v := range raw {
			im.Data[i] = float64(v)
		}
	case "|u1":
		raw := make([]uint8, len(im.Data))
		if err := nr.Read(&raw); err != nil {
			return Image{}, eris.Wrap(err, "tile: read npy uint8")
		}
		for i, v := range raw {
			im.Data[i] = float64(v)
		}
	case "|b1":
		raw := make([]bool, len(im.Data))
		if err := nr.Read(&raw); err != nil {
			return Image{}, eris.Wrap(err, "tile: read npy bool")
		}
		for i, v := range raw {
			if v {
				im.Data[i] = 1
			}
		}
	default:
		return Image{}, eris.Errorf("tile: unsupported npy dtype %q", typ)
	}
	return im, nil
}

// FromClassRaster expands a single-band raster whose pixel values are class
// indices into a one-hot image.
func FromClassRaster(src image.Image, channels int) (Image, error) {
	if channels <= 0 {
		return Image{}, eris.Errorf("tile: invalid channel count %d", channels)
	}
	b := src.Bounds()
	im := NewImage(b.Dy(), b.Dx(), channels)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			class := classAt(src, b.Min.X+x, b.Min.Y+y)
			if class >= channels {
				return Image{}, eris.Errorf("tile: pixel (%d,%d) has class %d, only %d channels", y, x, class, channels)
			}
			im.Set(y, x, class, 1)
		}
	}
	return im, nil
}

func classAt(src image.Image, x, y int) int {
	switch s := src.(type) {
	case *image.Paletted:
		return int(s.ColorIndexAt(x, y))
	case *image.Gray:
		return int(s.GrayAt(x, y).Y)
	case *image.Gray16:
		return int(s.Gray16At(x, y).Y)
	default:
		return int(color.GrayModel.Convert(src.At(x, y)).(color.Gray).Y)
	}
}
