// Package covariate computes the prognostic score used to pair treatment and
// control tiles: the mean traverse value of nearby, but not too nearby,
// points.
package covariate

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ate-cli/internal/tile"
	"github.com/sells-group/ate-cli/internal/traverse"
)

// ErrPointOutOfRange is returned when a tile references a point id that is
// not in the traverse table.
var ErrPointOutOfRange = eris.New("covariate: point id out of range")

// Params selects the neighborhood a covariate is averaged over.
type Params struct {
	// MinDist excludes points within this many meters of the tile's own point.
	MinDist float64
	// Neighbors is how many of the closest remaining points are averaged.
	Neighbors int
}

// Validate checks that p describes a usable neighborhood.
func (p Params) Validate() error {
	if p.MinDist <= 0 || math.IsNaN(p.MinDist) {
		return eris.Errorf("covariate: neighborhood min dist must be > 0, got %v", p.MinDist)
	}
	if p.Neighbors < 1 {
		return eris.Errorf("covariate: num neighbors must be >= 1, got %d", p.Neighbors)
	}
	return nil
}

// Score returns one covariate per tile, index-aligned with tiles. Tiles are
// independent, so they are scored concurrently by up to workers goroutines.
// The table is only read.
func Score(ctx context.Context, tiles []*tile.Tile, table *traverse.Table, p Params, workers int) ([]float64, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = 1
	}

	out := make([]float64, len(tiles))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, t := range tiles {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			v, err := scoreTile(t.Identifier, table, p)
			if err != nil {
				return eris.Wrapf(err, "covariate: tile %d", i)
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

type neighbor struct {
	dist float64
	row  int
}

// scoreTile computes the covariate for a single tile identifier.
func scoreTile(identifier string, table *traverse.Table, p Params) (float64, error) {
	id, err := tile.PointID(identifier)
	if err != nil {
		return 0, err
	}
	if id >= table.Len() {
		return 0, eris.Wrapf(ErrPointOutOfRange, "covariate: point %d, table has %d rows", id, table.Len())
	}
	origin := table.Points[id].Coord()

	// Distances live in a local slice; the table is never mutated.
	candidates := make([]neighbor, 0, table.Len())
	for row, pt := range table.Points {
		d := planar.Distance(origin, pt.Coord())
		if d > p.MinDist {
			candidates = append(candidates, neighbor{dist: d, row: row})
		}
	}
	// Stable on row order so ties resolve the same way every run.
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].dist < candidates[b].dist
	})
	if len(candidates) > p.Neighbors {
		candidates = candidates[:p.Neighbors]
	}

	return nanMean(candidates, table), nil
}

// nanMean averages the feature of the selected rows, skipping NaN values.
// It returns NaN when nothing is left to average.
func nanMean(rows []neighbor, table *traverse.Table) float64 {
	var sum float64
	var n int
	for _, nb := range rows {
		v := table.Points[nb.row].Feature
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// Cache memoizes the covariates of the most recent Params. Asking for
// different Params replaces the cached array with a full recomputation.
type Cache struct {
	tiles   []*tile.Tile
	table   *traverse.Table
	workers int

	mu     sync.Mutex
	key    Params
	values []float64
	valid  bool
}

// NewCache creates a cache over a fixed tile set and point table.
func NewCache(tiles []*tile.Tile, table *traverse.Table, workers int) *Cache {
	return &Cache{tiles: tiles, table: table, workers: workers}
}

// Get returns the covariates for p, computing them if p differs from the
// cached key. The returned slice must be treated as read-only.
func (c *Cache) Get(ctx context.Context, p Params) ([]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid && c.key == p {
		return c.values, nil
	}

	zap.L().Info("computing covariates",
		zap.String("component", "covariate"),
		zap.Float64("neighborhood_min_dist", p.MinDist),
		zap.Int("num_neighbors", p.Neighbors),
		zap.Int("tiles", len(c.tiles)),
	)

	values, err := Score(ctx, c.tiles, c.table, p, c.workers)
	if err != nil {
		c.valid = false
		c.values = nil
		return nil, err
	}
	c.key, c.values, c.valid = p, values, true
	return values, nil
}
