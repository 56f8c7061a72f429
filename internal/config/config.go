package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/ate-cli/internal/metric"
	"github.com/sells-group/ate-cli/internal/sweep"
	"github.com/sells-group/ate-cli/internal/tile"
	"github.com/sells-group/ate-cli/internal/traverse"
)

// Config holds the full application configuration.
type Config struct {
	Data    DataConfig    `yaml:"data" mapstructure:"data"`
	Sweep   sweep.Grid    `yaml:"sweep" mapstructure:"sweep"`
	Metric  MetricConfig  `yaml:"metric" mapstructure:"metric"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	Workers WorkersConfig `yaml:"workers" mapstructure:"workers"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// DataConfig locates the tile imagery and the traverse point table.
type DataConfig struct {
	TilesDir      string `yaml:"tiles_dir" mapstructure:"tiles_dir"`
	TraversalData string `yaml:"traversal_data" mapstructure:"traversal_data"`
	Feature       string `yaml:"feature" mapstructure:"feature"`
	// SourceCRS overrides .prj detection when set (EPSG:4326 or EPSG:3857).
	SourceCRS string `yaml:"source_crs" mapstructure:"source_crs"`
	Channels  int    `yaml:"channels" mapstructure:"channels"`
	ImageSize int    `yaml:"image_size" mapstructure:"image_size"`
	// TreatmentChannel and ControlChannel are the land-use classes compared
	// in the tile center.
	TreatmentChannel int `yaml:"treatment_channel" mapstructure:"treatment_channel"`
	ControlChannel   int `yaml:"control_channel" mapstructure:"control_channel"`
}

// MetricConfig selects the image distance.
type MetricConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
}

// OutputConfig controls where results are written.
type OutputConfig struct {
	ResultsPath string `yaml:"results_path" mapstructure:"results_path"`
	// ResultsDir, when set, replaces the directory part of ResultsPath.
	ResultsDir string `yaml:"results_dir" mapstructure:"results_dir"`
	// Database is an optional SQLite file that mirrors the CSV rows.
	Database string `yaml:"database" mapstructure:"database"`
	Manifest bool   `yaml:"manifest" mapstructure:"manifest"`
}

// WorkersConfig bounds the worker pools.
type WorkersConfig struct {
	Load      int `yaml:"load" mapstructure:"load"`
	Sweep     int `yaml:"sweep" mapstructure:"sweep"`
	Covariate int `yaml:"covariate" mapstructure:"covariate"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks that the configuration can drive a sweep.
func (c *Config) Validate() error {
	var errs []string

	if c.Data.TilesDir == "" {
		errs = append(errs, "data.tiles_dir is required")
	}
	if c.Data.TraversalData == "" {
		errs = append(errs, "data.traversal_data is required")
	}
	if c.Data.Channels <= 0 {
		errs = append(errs, "data.channels must be > 0")
	}
	if c.Data.ImageSize <= 0 {
		errs = append(errs, "data.image_size must be > 0")
	}
	for _, ch := range []int{c.Data.TreatmentChannel, c.Data.ControlChannel} {
		if ch < 0 || ch >= c.Data.Channels {
			errs = append(errs, "data.treatment_channel and data.control_channel must index a channel")
			break
		}
	}
	if c.Output.ResultsPath == "" {
		errs = append(errs, "output.results_path is required")
	}
	_, metricErr := metric.ParseKind(c.Metric.Name)
	if err := c.Sweep.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	// An unknown metric keeps its sentinel so callers can match it.
	if metricErr != nil {
		if len(errs) == 0 {
			return eris.Wrap(metricErr, "config validation failed")
		}
		return eris.Wrapf(metricErr, "config validation failed: %s", strings.Join(errs, "; "))
	}
	if len(errs) > 0 {
		return eris.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Shape is the tile geometry the metric is resolved for.
func (c *Config) Shape() metric.Shape {
	return metric.Shape{Size: c.Data.ImageSize, Channels: c.Data.Channels}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	grid := sweep.DefaultGrid(550)
	v.SetDefault("data.tiles_dir", "./data/tiles")
	v.SetDefault("data.traversal_data", "./data/traverses/pm_trav.shp")
	v.SetDefault("data.feature", traverse.DefaultFeature)
	v.SetDefault("data.source_crs", "")
	v.SetDefault("data.channels", metric.DefaultShape.Channels)
	v.SetDefault("data.image_size", metric.DefaultShape.Size)
	v.SetDefault("data.treatment_channel", tile.ChannelConcrete)
	v.SetDefault("data.control_channel", tile.ChannelTree)
	v.SetDefault("sweep.neighborhood_min_dist", grid.MinDists)
	v.SetDefault("sweep.num_neighbors", grid.Neighbors)
	v.SetDefault("sweep.window_radius", grid.WindowRadii)
	v.SetDefault("sweep.treatment_pct", grid.TreatmentPcts)
	v.SetDefault("sweep.control_pct", grid.ControlPcts)
	v.SetDefault("sweep.match_radius", grid.MatchRadii)
	v.SetDefault("metric.name", metric.Hamming.String())
	v.SetDefault("output.results_path", "./ate_results.csv")
	v.SetDefault("output.results_dir", "")
	v.SetDefault("output.database", "")
	v.SetDefault("output.manifest", true)
	v.SetDefault("workers.load", tile.DefaultWorkers)
	v.SetDefault("workers.sweep", 1)
	v.SetDefault("workers.covariate", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
