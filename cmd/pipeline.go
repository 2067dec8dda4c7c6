package cmd

import (
	"github.com/spf13/cobra"

	"github.com/agentic-research/tarim/internal/ingest"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Materialize the flat and tree views from cached feed pages",
	Long: `Reads page_N.json files from the raw directory (or a SQLite results
table with --source-db), resolves every record's ancestry and writes
nomenclature_flat.json and nomenclature_tree.json into the data directory.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd, (*ingest.Engine).Build)
	},
}

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Merge cached tax payloads into the views of an earlier build",
	Long: `Reads the views written by "tarim build", attaches tax_info to every
entry whose NC code has a payload in the tax directory and writes the
*_with_tax.json files. Fails when the views are missing.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd, (*ingest.Engine).Enrich)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build and enrich in one pass",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd, (*ingest.Engine).Run)
	},
}

func init() {
	for _, c := range []*cobra.Command{buildCmd, enrichCmd, runCmd} {
		addOutputFlags(c)
		rootCmd.AddCommand(c)
	}
}
