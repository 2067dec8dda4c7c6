package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentic-research/tarim/internal/ingest"
	"github.com/agentic-research/tarim/internal/output"
	"github.com/agentic-research/tarim/internal/stats"
)

var statsFormat string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show statistics about cached inputs and materialized views",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		var rep stats.Report
		inv, err := stats.Scan(stats.Dirs{
			Raw:  cfg.RawDir,
			Tax:  cfg.TaxDir,
			Data: cfg.DataDir,
			Logs: cfg.LogDir,
		}, output.FlatFile, output.TreeFile)
		if err != nil {
			return err
		}
		rep.Inventory = &inv

		flat, _, err := ingest.LoadFlat(output.OpenDir(cfg.DataDir))
		switch {
		case err == nil:
			s := stats.Compute(flat)
			rep.Stats = &s
		case !errors.Is(err, ingest.ErrViewsMissing):
			return err
		}

		switch statsFormat {
		case "text":
			return stats.WriteText(cmd.OutOrStdout(), rep)
		case "yaml":
			return stats.WriteYAML(cmd.OutOrStdout(), rep)
		}
		return fmt.Errorf("unknown format %q (want text or yaml)", statsFormat)
	},
}

func init() {
	statsCmd.Flags().StringVarP(&statsFormat, "format", "f", "text", "Output format: text or yaml")
	rootCmd.AddCommand(statsCmd)
}
