package results

import (
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// RunInfo describes one invocation of the sweep.
type RunInfo struct {
	ID            string    `yaml:"run_id" json:"run_id"`
	Metric        string    `yaml:"distance_metric" json:"distance_metric"`
	TilesDir      string    `yaml:"tiles_dir" json:"tiles_dir"`
	TraversalData string    `yaml:"traversal_data" json:"traversal_data"`
	Tiles         int       `yaml:"tiles" json:"tiles"`
	Points        int       `yaml:"points" json:"points"`
	Configs       int       `yaml:"configs" json:"configs"`
	Grid          any       `yaml:"grid" json:"grid"`
	StartedAt     time.Time `yaml:"started_at" json:"started_at"`
}

// NewRunInfo assigns a fresh run id.
func NewRunInfo(metric string) RunInfo {
	return RunInfo{
		ID:        uuid.New().String(),
		Metric:    metric,
		StartedAt: time.Now().UTC(),
	}
}

// Manifest is written next to the results file to record how it was made.
type Manifest struct {
	RunInfo     `yaml:",inline"`
	ResultsPath string     `yaml:"results_path"`
	Status      string     `yaml:"status"`
	RowsWritten int        `yaml:"rows_written"`
	FinishedAt  *time.Time `yaml:"finished_at,omitempty"`
	Error       string     `yaml:"error,omitempty"`
}

// ManifestPath returns the manifest location for a results file.
func ManifestPath(resultsPath string) string {
	base := strings.TrimSuffix(resultsPath, ".csv")
	return base + ".manifest.yaml"
}

// WriteManifest writes m as YAML, replacing any previous manifest.
func WriteManifest(path string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "results: marshal manifest")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "results: write manifest %s", path)
	}
	return nil
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "results: read manifest %s", path)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "results: parse manifest")
	}
	return &m, nil
}
