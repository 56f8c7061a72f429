package tile

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultWorkers is the default size of the bulk loading pool.
const DefaultWorkers = 8

// Dataset is an indexable, length-known collection of tiles.
type Dataset interface {
	Len() int
	Tile(ctx context.Context, idx int) (*Tile, error)
}

// DirDataset reads tiles from a directory with the layout
//
//	<root>/img/<name>.<ext>
//	<root>/labels/<name>.txt
//
// where each label file holds the tile outcome as a single number.
type DirDataset struct {
	root     string
	files    []string
	channels int
}

var imageExts = map[string]bool{
	".npy":  true,
	".png":  true,
	".tif":  true,
	".tiff": true,
}

// OpenDir lists the image files under root/img. Files are sorted by name so
// indices are stable across runs.
func OpenDir(root string, channels int) (*DirDataset, error) {
	entries, err := os.ReadDir(filepath.Join(root, "img"))
	if err != nil {
		return nil, eris.Wrapf(err, "tile: list images in %s", root)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return &DirDataset{root: root, files: files, channels: channels}, nil
}

// Len returns the number of tiles.
func (d *DirDataset) Len() int { return len(d.files) }

// Tile loads the tile at idx.
func (d *DirDataset) Tile(_ context.Context, idx int) (*Tile, error) {
	if idx < 0 || idx >= len(d.files) {
		return nil, eris.Errorf("tile: index %d out of range [0,%d)", idx, len(d.files))
	}
	name := d.files[idx]

	im, err := DecodeFile(filepath.Join(d.root, "img", name), d.channels)
	if err != nil {
		return nil, err
	}

	stem := strings.TrimSuffix(name, filepath.Ext(name))
	outcome, err := readLabel(filepath.Join(d.root, "labels", stem+".txt"))
	if err != nil {
		return nil, err
	}

	return &Tile{Image: im, Identifier: name, Outcome: outcome}, nil
}

func readLabel(path string) (float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, eris.Wrapf(err, "tile: read label %s", path)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return 0, eris.Wrapf(err, "tile: parse label %s", path)
	}
	return v, nil
}

// LoadAll loads every tile of ds with a bounded worker pool. Completion order
// is arbitrary; the result is in index order.
func LoadAll(ctx context.Context, ds Dataset, workers int) ([]*Tile, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	log := zap.L().With(zap.String("component", "tile.loader"))

	n := ds.Len()
	tiles := make([]*Tile, n)
	var loaded atomic.Int64
	progress := rate.Sometimes{First: 1, Interval: 5 * time.Second}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			t, err := ds.Tile(gCtx, i)
			if err != nil {
				return eris.Wrapf(err, "tile: load index %d", i)
			}
			tiles[i] = t
			c := loaded.Add(1)
			progress.Do(func() {
				log.Debug("tiles loaded", zap.Int64("count", c), zap.Int("total", n))
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info("tiles loaded", zap.Int("count", n), zap.Int("workers", workers))
	return tiles, nil
}
