package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/ate-cli/internal/metric"
)

var metricDescriptions = map[string]string{
	"hamming":          "fraction of pixel-channel cells that differ",
	"weighted_hamming": "hamming weighted by 1/(1+d^2) from the tile center",
	"jensenshannon":    "Jensen-Shannon distance of row-softmaxed channel planes",
	"kl_divergence":    "KL divergence between per-channel mean coverage",
	"jaccard":          "1 - |A and B| / |A or B| over non-zero cells",
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "List the available distance metrics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		printMetrics(os.Stdout)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(metricsCmd)
}

func printMetrics(out io.Writer) {
	for _, name := range metric.Names() {
		_, _ = fmt.Fprintf(out, "%-18s %s\n", name, metricDescriptions[name])
	}
}
