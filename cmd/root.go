package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentic-research/tarim/internal/anomaly"
	"github.com/agentic-research/tarim/internal/config"
	"github.com/agentic-research/tarim/internal/ingest"
	"github.com/agentic-research/tarim/internal/logging"
	"github.com/agentic-research/tarim/internal/metrics"
	"github.com/agentic-research/tarim/internal/output"
)

// Version is set at link time.
var Version = "dev"

var (
	configPath  string
	rawDir      string
	taxDir      string
	dataDir     string
	logDir      string
	sourceDB    string
	sqlitePath  string
	metricsFile string
	workers     int
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:           "tarim",
	Short:         "Materialize, enrich and serve the tariff nomenclature",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "Path to tarim.hcl (default ./tarim.hcl when present)")
	pf.StringVar(&rawDir, "raw-dir", "", "Directory of cached feed pages")
	pf.StringVar(&taxDir, "tax-dir", "", "Directory of cached tax payloads")
	pf.StringVarP(&dataDir, "data-dir", "d", "", "Output directory for views and run reports")
	pf.StringVar(&logDir, "log-dir", "", "Directory for run log files (\"-\" disables)")
	pf.StringVar(&sourceDB, "source-db", "", "Read records from a SQLite results table instead of --raw-dir")
	pf.IntVarP(&workers, "workers", "w", 0, "Parallel ancestry workers (default GOMAXPROCS)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

// loadConfig reads the config file and applies flags set on the command
// line on top of it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath, configPath != "")
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	override := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	override("raw-dir", &cfg.RawDir, rawDir)
	override("tax-dir", &cfg.TaxDir, taxDir)
	override("data-dir", &cfg.DataDir, dataDir)
	override("log-dir", &cfg.LogDir, logDir)
	override("source-db", &cfg.SourceDB, sourceDB)
	if flags.Lookup("sqlite") != nil {
		override("sqlite", &cfg.SQLitePath, sqlitePath)
	}
	if flags.Lookup("metrics-file") != nil {
		override("metrics-file", &cfg.MetricsFile, metricsFile)
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if cfg.LogDir == "-" {
		cfg.LogDir = ""
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setup loads the configuration and opens the command's log.
func setup(cmd *cobra.Command) (*config.Config, *logging.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log, err := logging.New(logging.Options{Dir: cfg.LogDir, Command: cmd.Name(), Level: level})
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// newEngine wires an ingest engine from cfg.
func newEngine(cfg *config.Config, log *slog.Logger, m *metrics.Metrics) *ingest.Engine {
	var src ingest.Source
	if cfg.SourceDB != "" {
		src = &ingest.SQLiteSource{Path: cfg.SourceDB, Log: log}
	} else {
		src = &ingest.PageDir{Dir: cfg.RawDir, Log: log}
	}
	return &ingest.Engine{
		Source:     src,
		TaxDir:     cfg.TaxDir,
		Out:        output.OpenDir(cfg.DataDir),
		Workers:    cfg.Workers,
		SQLitePath: cfg.SQLitePath,
		Metrics:    m,
		Anomalies:  anomaly.NewCollector(log),
	}
}

// pipelineFunc is one of Engine.Build, Engine.Enrich and Engine.Run.
type pipelineFunc func(e *ingest.Engine, ctx context.Context) (*ingest.Report, error)

// runPipeline is the shared body of build, enrich and run.
func runPipeline(cmd *cobra.Command, fn pipelineFunc) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }() // safe to ignore

	var m *metrics.Metrics
	if cfg.MetricsFile != "" {
		m = metrics.New()
	}
	e := newEngine(cfg, log.Logger, m)

	log.Info("starting", "command", cmd.Name(), "version", Version, "data_dir", cfg.DataDir, "source", e.Source.String())
	rep, err := fn(e, cmd.Context())
	if err != nil {
		log.Error("run failed", "command", cmd.Name(), "err", err)
		return err
	}
	if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
		log.Warn("metrics not written", "err", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s: %d flat entries, %d tree nodes", rep.Command, rep.FlatEntries, rep.TreeNodes)
	if rep.Command != "build" {
		fmt.Fprintf(w, ", %d/%d tax matches (flat/tree)", rep.FlatTaxMatches, rep.TreeTaxMatches)
	}
	fmt.Fprintf(w, ", %d anomalies\n", rep.Anomalies.Total)
	return nil
}

// addOutputFlags registers the optional exports of the pipeline commands.
func addOutputFlags(c *cobra.Command) {
	c.Flags().StringVar(&sqlitePath, "sqlite", "", "Also export the views to this SQLite file")
	c.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus textfile metrics here")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
