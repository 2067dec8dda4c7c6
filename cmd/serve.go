package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentic-research/tarim/internal/ingest"
	"github.com/agentic-research/tarim/internal/logging"
	"github.com/agentic-research/tarim/internal/mcpserver"
	"github.com/agentic-research/tarim/internal/output"
	"github.com/agentic-research/tarim/internal/search"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve nomenclature search to agents over MCP (stdio)",
	Long: `Starts a Model Context Protocol server on stdin/stdout exposing the
search_nomenclature and lookup_code tools. The tax-enriched flat view is
used when present. Stdout carries the protocol; logs go to stderr and
the log file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log, err := logging.New(logging.Options{Dir: cfg.LogDir, Command: "serve", Stderr: cmd.ErrOrStderr()})
		if err != nil {
			return err
		}
		defer func() { _ = log.Close() }() // safe to ignore

		flat, name, err := ingest.LoadFlat(output.OpenDir(cfg.DataDir))
		if err != nil {
			return err
		}
		idx := search.NewIndex(flat)
		log.Info("serving", "view", name, "entries", idx.Len())

		if err := mcpserver.Serve(mcpserver.New(idx, Version)); err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
