package sweep

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ate-cli/internal/covariate"
	"github.com/sells-group/ate-cli/internal/group"
	"github.com/sells-group/ate-cli/internal/match"
	"github.com/sells-group/ate-cli/internal/metric"
	"github.com/sells-group/ate-cli/internal/results"
	"github.com/sells-group/ate-cli/internal/tile"
	"github.com/sells-group/ate-cli/internal/traverse"
)

// Runner wires the pipeline stages together for a full sweep.
type Runner struct {
	Tiles  []*tile.Tile
	Table  *traverse.Table
	Metric metric.Func
	Grid   Grid
	Sink   results.Sink

	// TreatmentChannel and ControlChannel select the land-use classes
	// compared in the central window.
	TreatmentChannel int
	ControlChannel   int

	// Workers bounds how many inner configurations run at once (default 1).
	Workers int
	// CovariateWorkers bounds concurrent per-tile covariate scoring (default 1).
	CovariateWorkers int
}

// Summary reports what a sweep did.
type Summary struct {
	Configs  int
	Rows     int
	Duration time.Duration
}

// Run executes every configuration in the grid and writes one row per
// configuration. The first failure aborts the sweep.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	if err := r.Grid.Validate(); err != nil {
		return Summary{}, err
	}
	if r.Metric == nil {
		return Summary{}, eris.New("sweep: no distance metric")
	}
	if r.Table == nil {
		return Summary{}, eris.New("sweep: no traverse table")
	}
	if r.Sink == nil {
		return Summary{}, eris.New("sweep: no result sink")
	}

	log := zap.L().With(zap.String("component", "sweep"))
	total := r.Grid.Size()
	log.Info("starting sweep",
		zap.Int("trials", total),
		zap.Int("tiles", len(r.Tiles)),
		zap.Int("points", r.Table.Len()),
		zap.Int("workers", max(r.Workers, 1)),
	)

	sink := results.NewLocked(r.Sink)
	cache := covariate.NewCache(r.Tiles, r.Table, r.CovariateWorkers)
	var counter atomic.Int64

	for p := range r.Grid.Outer() {
		log.Info("covariate parameters",
			zap.Float64("neighborhood_min_dist", p.MinDist),
			zap.Int("num_neighbors", p.Neighbors),
		)
		covs, err := cache.Get(ctx, p)
		if err != nil {
			return Summary{Configs: total, Rows: sink.Rows()}, eris.Wrap(err, "sweep: covariates")
		}

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(max(r.Workers, 1))
		for in := range r.Grid.Inner() {
			cfg := Config{Covariate: p, Inner: in}
			g.Go(func() error {
				if err := gCtx.Err(); err != nil {
					return err
				}
				n := counter.Add(1)
				row, err := r.runConfig(cfg, covs)
				if err != nil {
					return err
				}
				if err := sink.Write(gCtx, row); err != nil {
					return err
				}
				log.Info("trial complete",
					zap.Int64("trial", n),
					zap.Int("of", total),
					zap.Int("window_radius", cfg.WindowRadius),
					zap.Float64("treatment_pct", cfg.TreatmentPct),
					zap.Float64("control_pct", cfg.ControlPct),
					zap.Float64("match_radius", cfg.MatchRadius),
					zap.Int("matched", row.TreatmentCount),
					zap.Float64("ate", row.ATE),
				)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return Summary{Configs: total, Rows: sink.Rows()}, err
		}
	}

	s := Summary{Configs: total, Rows: sink.Rows(), Duration: time.Since(start)}
	log.Info("sweep complete", zap.Int("rows", s.Rows), zap.Duration("duration", s.Duration))
	return s, nil
}

// runConfig partitions, matches and reduces a single configuration.
func (r *Runner) runConfig(cfg Config, covs []float64) (results.Row, error) {
	w := group.Window{
		Radius:           cfg.WindowRadius,
		TreatmentChannel: r.TreatmentChannel,
		ControlChannel:   r.ControlChannel,
		TreatmentPct:     cfg.TreatmentPct,
		ControlPct:       cfg.ControlPct,
	}
	treatment, control, err := group.Partition(r.Tiles, covs, w)
	if err != nil {
		return results.Row{}, eris.Wrap(err, "sweep: partition")
	}
	zap.L().Debug("pre-matching group sizes",
		zap.Int("treatment", len(treatment)),
		zap.Int("control", len(control)),
	)

	est := Reduce(match.Match(treatment, control, cfg.MatchRadius, r.Metric))
	return RowFor(cfg, est), nil
}

// RowFor combines a configuration and its estimate into a result row.
func RowFor(cfg Config, est Estimate) results.Row {
	return results.Row{
		NeighborhoodMinDist: cfg.Covariate.MinDist,
		NumNeighbors:        cfg.Covariate.Neighbors,
		WindowRadius:        cfg.WindowRadius,
		TreatmentPct:        cfg.TreatmentPct,
		ControlPct:          cfg.ControlPct,
		MatchRadius:         cfg.MatchRadius,
		TreatmentCount:      est.TreatmentCount,
		ControlCount:        est.ControlCount,
		ATE:                 est.ATE,
		ATEStd:              est.ATEStd,
		MeanDistance:        est.MeanDistance,
	}
}
