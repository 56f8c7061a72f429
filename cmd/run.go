package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ate-cli/internal/config"
	"github.com/sells-group/ate-cli/internal/metric"
	"github.com/sells-group/ate-cli/internal/results"
	"github.com/sells-group/ate-cli/internal/sweep"
	"github.com/sells-group/ate-cli/internal/tile"
	"github.com/sells-group/ate-cli/internal/traverse"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ATE parameter sweep",
	Long: `Loads the tile dataset and the traverse points, then runs covariate scoring,
treatment/control partitioning and nearest-neighbor matching for every
configuration of the sweep grid. One CSV row is appended per configuration.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := applyRunFlags(cmd, cfg); err != nil {
			return err
		}

		sum, err := runSweep(ctx, cfg)
		if err != nil {
			return err
		}

		fmt.Printf("Wrote %d of %d configurations to %s in %s\n",
			sum.Rows, sum.Configs, resultsPath(cfg.Output), sum.Duration.Round(time.Millisecond))
		return nil
	},
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("traversal_data", "", "path to the traverse point file (.shp or .geojson)")
	f.String("tiles_dir", "", "tile dataset directory containing img/ and labels/")
	f.String("results_path", "", "CSV file for results (default: ./ate_results.csv)")
	f.String("results_dir", "", "directory for the results file, overrides the directory of --results_path")
	f.String("distance_metric", "", "image distance: "+strings.Join(metric.Names(), ", "))
	f.Int("neighborhood_min_dist", 550, "meters around a tile's point excluded from its covariate")
	f.Int("workers", 0, "concurrent configurations per covariate setting (default: from config or 1)")
	f.String("database", "", "optional SQLite file mirroring the results")
	f.String("feature", "", "traverse attribute holding the measured value (default: temp_f)")
}

// applyRunFlags copies explicitly set flags over the loaded configuration.
func applyRunFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	strFlags := map[string]*string{
		"traversal_data":  &c.Data.TraversalData,
		"tiles_dir":       &c.Data.TilesDir,
		"results_path":    &c.Output.ResultsPath,
		"results_dir":     &c.Output.ResultsDir,
		"distance_metric": &c.Metric.Name,
		"database":        &c.Output.Database,
		"feature":         &c.Data.Feature,
	}
	for name, dst := range strFlags {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetString(name)
		if err != nil {
			return eris.Wrapf(err, "run: flag --%s", name)
		}
		*dst = v
	}

	if flags.Changed("neighborhood_min_dist") {
		d, err := flags.GetInt("neighborhood_min_dist")
		if err != nil {
			return eris.Wrap(err, "run: flag --neighborhood_min_dist")
		}
		c.Sweep.MinDists = []float64{float64(d)}
	}
	if flags.Changed("workers") {
		w, err := flags.GetInt("workers")
		if err != nil {
			return eris.Wrap(err, "run: flag --workers")
		}
		c.Workers.Sweep = w
	}
	return nil
}

// resultsPath resolves the CSV location. A results_dir keeps the file name
// of results_path and replaces its directory.
func resultsPath(out config.OutputConfig) string {
	if out.ResultsDir == "" {
		return out.ResultsPath
	}
	return filepath.Join(out.ResultsDir, filepath.Base(out.ResultsPath))
}

// runSweep loads inputs, opens the sinks and executes the sweep. The metric is
// resolved before anything is read so a bad key fails fast.
func runSweep(ctx context.Context, c *config.Config) (sweep.Summary, error) {
	log := zap.L().With(zap.String("command", "run"))

	if err := c.Validate(); err != nil {
		return sweep.Summary{}, err
	}
	fn, err := metric.Lookup(c.Metric.Name, c.Shape())
	if err != nil {
		return sweep.Summary{}, eris.Wrap(err, "run: resolve metric")
	}

	table, err := traverse.Load(c.Data.TraversalData, traverse.Options{
		Feature:   c.Data.Feature,
		SourceCRS: c.Data.SourceCRS,
	})
	if err != nil {
		return sweep.Summary{}, eris.Wrap(err, "run: load traverse")
	}

	ds, err := tile.OpenDir(c.Data.TilesDir, c.Data.Channels)
	if err != nil {
		return sweep.Summary{}, eris.Wrap(err, "run: open tiles")
	}
	tiles, err := tile.LoadAll(ctx, ds, c.Workers.Load)
	if err != nil {
		return sweep.Summary{}, eris.Wrap(err, "run: load tiles")
	}
	if err := tile.ValidateShape(tiles, c.Shape()); err != nil {
		return sweep.Summary{}, err
	}

	path := resultsPath(c.Output)
	csvw, err := results.CreateCSV(path)
	if err != nil {
		return sweep.Summary{}, err
	}
	sinks := results.MultiSink{csvw}

	run := results.NewRunInfo(c.Metric.Name)
	run.TilesDir = c.Data.TilesDir
	run.TraversalData = c.Data.TraversalData
	run.Tiles = len(tiles)
	run.Points = table.Len()
	run.Configs = c.Sweep.Size()
	run.Grid = c.Sweep

	var db *results.SQLiteSink
	if c.Output.Database != "" {
		db, err = results.OpenSQLite(ctx, c.Output.Database, run)
		if err != nil {
			_ = sinks.Close()
			return sweep.Summary{}, err
		}
		sinks = append(sinks, db)
	}

	manifest := results.Manifest{RunInfo: run, ResultsPath: path, Status: results.RunStatusRunning}
	writeManifest := func() {
		if !c.Output.Manifest {
			return
		}
		if err := results.WriteManifest(results.ManifestPath(path), manifest); err != nil {
			log.Warn("manifest write failed", zap.Error(err))
		}
	}
	writeManifest()

	log.Info("run starting",
		zap.String("run_id", run.ID),
		zap.String("distance_metric", run.Metric),
		zap.String("results_path", path),
		zap.Int("tiles", run.Tiles),
		zap.Int("points", run.Points),
		zap.Int("configs", run.Configs),
	)

	runner := &sweep.Runner{
		Tiles:            tiles,
		Table:            table,
		Metric:           fn,
		Grid:             c.Sweep,
		Sink:             sinks,
		TreatmentChannel: c.Data.TreatmentChannel,
		ControlChannel:   c.Data.ControlChannel,
		Workers:          c.Workers.Sweep,
		CovariateWorkers: c.Workers.Covariate,
	}
	sum, runErr := runner.Run(ctx)

	status := results.RunStatusComplete
	if runErr != nil {
		status = results.RunStatusFailed
		manifest.Error = runErr.Error()
	}
	if db != nil {
		// The run context may already be cancelled.
		if err := db.Finish(context.WithoutCancel(ctx), status); err != nil {
			log.Warn("recording run status failed", zap.Error(err))
		}
	}
	finished := time.Now().UTC()
	manifest.Status = status
	manifest.RowsWritten = sum.Rows
	manifest.FinishedAt = &finished
	writeManifest()

	if err := sinks.Close(); err != nil && runErr == nil {
		runErr = eris.Wrap(err, "run: close results")
	}
	if runErr != nil {
		return sum, eris.Wrap(runErr, "run: sweep")
	}
	return sum, nil
}
