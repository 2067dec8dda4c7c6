package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentic-research/tarim/api"
	"github.com/agentic-research/tarim/internal/ingest"
	"github.com/agentic-research/tarim/internal/output"
	"github.com/agentic-research/tarim/internal/search"
)

var (
	searchLang  string
	searchLimit int
	searchActs  bool
	searchCode  bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the nomenclature by name, path, description or NC code",
	Example: `  tarim search horses
  tarim search "cai vii" --lang ro --limit 5
  tarim search --code "0101 21 000"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		lang, err := api.ParseLang(searchLang)
		if err != nil {
			return err
		}
		flat, _, err := ingest.LoadFlat(output.OpenDir(cfg.DataDir))
		if err != nil {
			return err
		}
		idx := search.NewIndex(flat)

		query := strings.Join(args, " ")
		var results []*api.FlatEntry
		if searchCode {
			results = idx.Lookup(query)
		} else {
			results = idx.Search(query, lang, searchLimit)
		}

		w := cmd.OutOrStdout()
		if len(results) == 0 {
			fmt.Fprintf(w, "No results found for: %s\n", query)
			return nil
		}
		fmt.Fprintf(w, "Found %d results for: %s\n", len(results), query)
		for _, e := range results {
			search.Format(w, e, lang, searchActs)
		}
		return nil
	},
}

func init() {
	f := searchCmd.Flags()
	f.StringVarP(&searchLang, "lang", "l", "en", "Language: en, ro or ru")
	f.IntVarP(&searchLimit, "limit", "n", 10, "Maximum results (0 for all)")
	f.BoolVar(&searchActs, "acts", false, "Show regulatory act counts")
	f.BoolVar(&searchCode, "code", false, "Treat the query as an exact NC code")
	rootCmd.AddCommand(searchCmd)
}
