// qmark benchmarks spatial index structures (quadtree, uniform grid,
// linear scan) under mixed insert/remove/query workloads and renders
// the results as charts.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

var rootCmd = &cobra.Command{
	Use:   "qmark",
	Short: "Spatial index benchmark harness",
}

var (
	benchOut   string
	benchScale int

	plotIn  string
	plotDir string
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run the benchmark suites and write a results CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBench(benchOut, benchScale)
	},
}

var plotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Render charts from a results CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		return renderCharts(plotIn, plotDir)
	},
}

func init() {
	benchCmd.Flags().StringVar(&benchOut, "out", "results.csv", "results CSV path")
	benchCmd.Flags().IntVar(&benchScale, "scale", 100000, "items per suite")

	plotCmd.Flags().StringVar(&plotIn, "in", "results.csv", "results CSV path")
	plotCmd.Flags().StringVar(&plotDir, "dir", "charts", "output directory for charts")

	rootCmd.AddCommand(benchCmd, plotCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("qmark failed")
		os.Exit(1)
	}
}
