package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/agentic-research/tarim/api"
	"github.com/agentic-research/tarim/internal/anomaly"
	"github.com/agentic-research/tarim/internal/enrich"
	"github.com/agentic-research/tarim/internal/hierarchy"
	"github.com/agentic-research/tarim/internal/metrics"
	"github.com/agentic-research/tarim/internal/output"
)

var (
	// ErrNoSource is returned when no nomenclature source is configured.
	ErrNoSource = errors.New("no nomenclature source configured")

	// ErrViewsMissing is returned by Enrich when the flat and tree views of
	// an earlier build are not in the data directory.
	ErrViewsMissing = errors.New("flat/tree views not found; run build first")
)

// Engine drives a run: load records, materialize the views, merge tax data
// and publish the outputs into the data directory.
type Engine struct {
	Source     Source
	TaxDir     string
	Out        *output.Dir
	Workers    int
	SQLitePath string
	Metrics    *metrics.Metrics
	Anomalies  *anomaly.Collector

	now func() time.Time
}

// Views is the in-memory result of a build.
type Views struct {
	Flat    []api.FlatEntry
	Tree    []*api.TreeNode
	Records int
	Unique  int
}

// Report summarizes a run. It is written as run_report.json.
type Report struct {
	RunID            string            `json:"run_id"`
	Command          string            `json:"command"`
	StartedAt        time.Time         `json:"started_at"`
	FinishedAt       time.Time         `json:"finished_at"`
	Source           string            `json:"source,omitempty"`
	Records          int               `json:"records"`
	UniqueRecords    int               `json:"unique_records"`
	FlatEntries      int               `json:"flat_entries"`
	TreeNodes        int               `json:"tree_nodes"`
	TaxCodes         int               `json:"tax_codes"`
	TaxEmptyPayloads int               `json:"tax_empty_payloads"`
	FlatTaxMatches   int               `json:"flat_tax_matches"`
	TreeTaxMatches   int               `json:"tree_tax_matches"`
	Anomalies        anomaly.Summary   `json:"anomalies"`
	AnomalyList      []anomaly.Anomaly `json:"anomaly_list"`
	Files            []string          `json:"files"`
}

func (e *Engine) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now().UTC()
}

func (e *Engine) collector() *anomaly.Collector {
	if e.Anomalies == nil {
		e.Anomalies = anomaly.NewCollector(nil)
	}
	return e.Anomalies
}

func (e *Engine) newReport(command string) *Report {
	r := &Report{RunID: uuid.NewString(), Command: command, StartedAt: e.clock()}
	if e.Source != nil {
		r.Source = e.Source.String()
	}
	return r
}

// BuildViews loads the source and materializes both views in memory.
func (e *Engine) BuildViews(ctx context.Context) (*Views, error) {
	if e.Source == nil {
		return nil, ErrNoSource
	}
	an := e.collector()
	log := an.Logger()

	records, err := e.Source.Records(ctx)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load records from %s: %w", e.Source, err)
		}
		log.Warn("nomenclature source not found", "source", e.Source.String(), "err", err)
		records = nil
	}
	if len(records) == 0 {
		an.Record(anomaly.MissingRecords, e.Source.String(), "no records loaded; views will be empty")
	}

	store := hierarchy.Build(records, an)
	store.SetWorkers(e.Workers)

	v := &Views{
		Flat:    store.BuildFlat(records),
		Tree:    store.BuildTree(nil),
		Records: len(records),
		Unique:  store.Len(),
	}
	log.Info("built tree view", "roots", len(v.Tree), "nodes", hierarchy.CountNodes(v.Tree))
	return v, nil
}

// LoadTax indexes the tax payload directory. A missing or empty directory
// is reported as missing_tax_data and yields an empty index.
func (e *Engine) LoadTax() *enrich.Index {
	an := e.collector()
	idx := enrich.NewIndex(an)
	if e.TaxDir == "" {
		an.Record(anomaly.MissingTaxData, "tax_dir", "no tax directory configured")
		return idx
	}
	if err := idx.Load(e.TaxDir); err != nil {
		an.Record(anomaly.MissingTaxData, e.TaxDir, err.Error())
		return idx
	}
	if idx.Len() == 0 {
		an.Record(anomaly.MissingTaxData, e.TaxDir, "no tax payloads with a code")
	}
	return idx
}

// Build materializes the views and publishes them.
func (e *Engine) Build(ctx context.Context) (*Report, error) {
	rep := e.newReport("build")
	v, err := e.BuildViews(ctx)
	if err != nil {
		return nil, err
	}
	fillViews(rep, v)

	files := map[string]any{
		output.FlatFile: v.Flat,
		output.TreeFile: v.Tree,
	}
	if err := e.publish(rep, []string{output.FlatFile, output.TreeFile}, files, v); err != nil {
		return nil, err
	}
	return rep, nil
}

// Enrich merges tax data into the views of an earlier build. It fails with
// ErrViewsMissing, before writing anything, when those views are absent.
func (e *Engine) Enrich(ctx context.Context) (*Report, error) {
	if e.Out == nil || !e.Out.Exists(output.FlatFile) || !e.Out.Exists(output.TreeFile) {
		return nil, ErrViewsMissing
	}
	rep := e.newReport("enrich")
	log := e.collector().Logger()

	v := &Views{}
	if err := e.Out.ReadJSON(output.FlatFile, &v.Flat); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrViewsMissing, err)
	}
	if err := e.Out.ReadJSON(output.TreeFile, &v.Tree); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrViewsMissing, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Info("loaded views", "flat", len(v.Flat), "tree_nodes", hierarchy.CountNodes(v.Tree))
	fillViews(rep, v)

	e.enrich(rep, v)

	files := map[string]any{
		output.FlatWithTaxFile: v.Flat,
		output.TreeWithTaxFile: v.Tree,
	}
	if err := e.publish(rep, []string{output.FlatWithTaxFile, output.TreeWithTaxFile}, files, v); err != nil {
		return nil, err
	}
	return rep, nil
}

// Run builds and enriches in one pass without re-reading the views.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	rep := e.newReport("run")
	v, err := e.BuildViews(ctx)
	if err != nil {
		return nil, err
	}
	fillViews(rep, v)

	// The plain views are encoded before the merge attaches tax_info.
	if e.Out == nil {
		return nil, fmt.Errorf("no data directory configured")
	}
	st, err := e.Out.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = st.Abort() }()
	if err := st.WriteJSON(output.FlatFile, v.Flat); err != nil {
		return nil, err
	}
	if err := st.WriteJSON(output.TreeFile, v.Tree); err != nil {
		return nil, err
	}

	e.enrich(rep, v)
	if err := st.WriteJSON(output.FlatWithTaxFile, v.Flat); err != nil {
		return nil, err
	}
	if err := st.WriteJSON(output.TreeWithTaxFile, v.Tree); err != nil {
		return nil, err
	}
	if err := e.finish(rep, st, v); err != nil {
		return nil, err
	}
	return rep, nil
}

func (e *Engine) enrich(rep *Report, v *Views) {
	idx := e.LoadTax()
	rep.TaxCodes = idx.Len()
	rep.TaxEmptyPayloads = idx.Empty()
	rep.FlatTaxMatches = enrich.MergeFlat(v.Flat, idx)
	rep.TreeTaxMatches = enrich.MergeTree(v.Tree, idx)
	e.collector().Logger().Info("merged tax data",
		"codes", rep.TaxCodes, "flat_matches", rep.FlatTaxMatches, "tree_matches", rep.TreeTaxMatches)
}

func fillViews(rep *Report, v *Views) {
	rep.Records = v.Records
	rep.UniqueRecords = v.Unique
	rep.FlatEntries = len(v.Flat)
	rep.TreeNodes = hierarchy.CountNodes(v.Tree)
}

// publish stages files in order, then finishes the run.
func (e *Engine) publish(rep *Report, order []string, files map[string]any, v *Views) error {
	if e.Out == nil {
		return fmt.Errorf("no data directory configured")
	}
	st, err := e.Out.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = st.Abort() }()

	for _, name := range order {
		if err := st.WriteJSON(name, files[name]); err != nil {
			return err
		}
	}
	return e.finish(rep, st, v)
}

// finish builds the optional SQLite export, writes the report and commits
// the stage. The export replaces an earlier one only after the commit
// succeeded.
func (e *Engine) finish(rep *Report, st *output.Stage, v *Views) error {
	an := e.collector()
	log := an.Logger()

	var db *SQLiteWriter
	if e.SQLitePath != "" {
		var err error
		if db, err = ExportSQLite(e.SQLitePath, v.Flat, v.Tree); err != nil {
			return fmt.Errorf("sqlite export: %w", err)
		}
	}

	rep.FinishedAt = e.clock()
	rep.Anomalies = an.Summary()
	rep.AnomalyList = an.Anomalies()
	rep.Files = append(st.Files(), output.ReportFile)
	if err := st.WriteJSON(output.ReportFile, rep); err != nil {
		if db != nil {
			db.Discard()
		}
		return err
	}
	if err := st.Commit(); err != nil {
		if db != nil {
			db.Discard()
		}
		return err
	}
	if db != nil {
		if err := db.Publish(); err != nil {
			return fmt.Errorf("sqlite export: %w", err)
		}
		log.Info("exported sqlite", "path", e.SQLitePath)
	}

	e.recordMetrics(rep)
	an.LogSummary()
	log.Info("run complete", "run_id", rep.RunID, "command", rep.Command, "files", len(rep.Files),
		"duration", rep.FinishedAt.Sub(rep.StartedAt))
	return nil
}

func (e *Engine) recordMetrics(rep *Report) {
	m := e.Metrics
	if m == nil {
		return
	}
	m.SetRecords(rep.Records, rep.UniqueRecords)
	m.SetViewSize("flat", rep.FlatEntries)
	m.SetViewSize("tree", rep.TreeNodes)
	if rep.Command != "build" {
		m.SetTaxCodes(rep.TaxCodes)
		m.SetTaxMatches("flat", rep.FlatTaxMatches)
		m.SetTaxMatches("tree", rep.TreeTaxMatches)
	}
	byKind := make(map[string]int, len(rep.Anomalies.ByKind))
	for k, n := range rep.Anomalies.ByKind {
		byKind[string(k)] = n
	}
	m.SetAnomalies(byKind)
	m.ObserveRun(rep.Command, rep.FinishedAt.Sub(rep.StartedAt), rep.FinishedAt)
}
