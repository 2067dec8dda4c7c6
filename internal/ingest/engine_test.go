package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/tarim/api"
	"github.com/agentic-research/tarim/internal/anomaly"
	"github.com/agentic-research/tarim/internal/metrics"
	"github.com/agentic-research/tarim/internal/output"
)

type staticSource struct {
	records []api.RawRecord
	err     error
}

func (s *staticSource) Records(context.Context) ([]api.RawRecord, error) { return s.records, s.err }
func (s *staticSource) String() string                                    { return "static" }

func sampleRecords() []api.RawRecord {
	return []api.RawRecord{
		rec(1, nil, "01", 2, "Live animals"),
		rec(2, ptr(1), "0101", 0, "Horses"),
		rec(3, ptr(1), "", 0, "Other"),
		rec(4, nil, "02", 0, "Meat"),
	}
}

func writeTax(t *testing.T, dir, code, vat string) {
	t.Helper()
	body := `{"count":1,"results":[{"tarim":{"nc":"` + code + `"},"vat":"` + vat + `","excise":"0","taxvalues_set":[]}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, code+".json"), []byte(body), 0o644))
}

func newTestEngine(t *testing.T, src Source) (*Engine, *output.Dir) {
	t.Helper()
	out := output.NewDir(memfs.New(), "data")
	taxDir := t.TempDir()
	writeTax(t, taxDir, "0101", "20")
	writeTax(t, taxDir, "9999", "8")
	return &Engine{
		Source:    src,
		TaxDir:    taxDir,
		Out:       out,
		Workers:   2,
		Anomalies: anomaly.NewCollector(nil),
		now:       func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) },
	}, out
}

func TestEngine_Build(t *testing.T) {
	e, out := newTestEngine(t, &staticSource{records: sampleRecords()})

	rep, err := e.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "build", rep.Command)
	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, 4, rep.Records)
	assert.Equal(t, 4, rep.FlatEntries)
	assert.Equal(t, 4, rep.TreeNodes)
	assert.Equal(t, []string{output.FlatFile, output.TreeFile, output.ReportFile}, rep.Files)

	var flat []api.FlatEntry
	require.NoError(t, out.ReadJSON(output.FlatFile, &flat))
	codes := make([]string, len(flat))
	for i, f := range flat {
		codes[i] = f.NC
	}
	assert.Equal(t, []string{"", "01", "0101", "02"}, codes)
	assert.Equal(t, "Live animals > Horses", flat[2].PathEN)

	var tree []*api.TreeNode
	require.NoError(t, out.ReadJSON(output.TreeFile, &tree))
	require.Len(t, tree, 2)
	require.Len(t, tree[0].Children, 2)
	assert.Equal(t, "0101", tree[0].Children[0].NC)
	assert.Equal(t, "", tree[0].Children[1].NC)

	var report map[string]any
	require.NoError(t, out.ReadJSON(output.ReportFile, &report))
	assert.Equal(t, rep.RunID, report["run_id"])

	assert.False(t, out.Exists(output.FlatWithTaxFile))
}

func TestEngine_BuildIsDeterministic(t *testing.T) {
	records := append(sampleRecords(), rec(2, ptr(4), "0101", 0, "Horses again"))

	e1, out1 := newTestEngine(t, &staticSource{records: records})
	_, err := e1.Build(context.Background())
	require.NoError(t, err)
	e2, out2 := newTestEngine(t, &staticSource{records: records})
	e2.Workers = 1
	_, err = e2.Build(context.Background())
	require.NoError(t, err)

	for _, name := range []string{output.FlatFile, output.TreeFile} {
		a, err := out1.ReadFile(name)
		require.NoError(t, err)
		b, err := out2.ReadFile(name)
		require.NoError(t, err)
		assert.Equal(t, string(a), string(b), name)
	}
	assert.Equal(t, 1, e1.Anomalies.Count(anomaly.DuplicateID))
}

func TestEngine_EnrichRequiresViews(t *testing.T) {
	e, out := newTestEngine(t, &staticSource{records: sampleRecords()})

	_, err := e.Enrich(context.Background())
	require.ErrorIs(t, err, ErrViewsMissing)
	assert.False(t, out.Exists(output.FlatWithTaxFile))
	assert.False(t, out.Exists(output.ReportFile))
}

func TestEngine_BuildThenEnrich(t *testing.T) {
	e, out := newTestEngine(t, &staticSource{records: sampleRecords()})
	_, err := e.Build(context.Background())
	require.NoError(t, err)

	rep, err := e.Enrich(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.TaxCodes)
	assert.Equal(t, 1, rep.FlatTaxMatches)
	assert.Equal(t, 1, rep.TreeTaxMatches)

	var flat []api.FlatEntry
	require.NoError(t, out.ReadJSON(output.FlatWithTaxFile, &flat))
	for _, f := range flat {
		if f.NC == "0101" {
			require.NotNil(t, f.TaxInfo)
			assert.Equal(t, "20", f.TaxInfo.VAT)
		} else {
			assert.Nil(t, f.TaxInfo, f.NC)
		}
	}

	plain, err := out.ReadFile(output.FlatFile)
	require.NoError(t, err)
	assert.NotContains(t, string(plain), "tax_info", "enrichment never rewrites the plain view")
}

func TestEngine_Run(t *testing.T) {
	e, out := newTestEngine(t, &staticSource{records: sampleRecords()})
	e.Metrics = metrics.New()

	rep, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, rep.Files, 5)

	plain, err := out.ReadFile(output.TreeFile)
	require.NoError(t, err)
	assert.NotContains(t, string(plain), "tax_info")

	enriched, err := out.ReadFile(output.TreeWithTaxFile)
	require.NoError(t, err)
	assert.Contains(t, string(enriched), `"tax_info"`)

	path := filepath.Join(t.TempDir(), "tarim.prom")
	require.NoError(t, e.Metrics.WriteTextfile(path))
	text, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(text), `tarim_tax_matches{view="flat"} 1`)
}

func TestEngine_DegradedInput(t *testing.T) {
	t.Run("no records", func(t *testing.T) {
		e, out := newTestEngine(t, &PageDir{Dir: filepath.Join(t.TempDir(), "absent")})
		rep, err := e.Build(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, rep.FlatEntries)
		assert.Equal(t, 1, e.Anomalies.Count(anomaly.MissingRecords))

		data, err := out.ReadFile(output.FlatFile)
		require.NoError(t, err)
		assert.JSONEq(t, `[]`, string(data))
	})

	t.Run("no tax data", func(t *testing.T) {
		e, out := newTestEngine(t, &staticSource{records: sampleRecords()})
		e.TaxDir = filepath.Join(t.TempDir(), "absent")
		rep, err := e.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, rep.FlatTaxMatches)
		assert.Equal(t, 1, e.Anomalies.Count(anomaly.MissingTaxData))

		data, err := out.ReadFile(output.FlatWithTaxFile)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "tax_info")
	})

	t.Run("no source", func(t *testing.T) {
		e, out := newTestEngine(t, nil)
		_, err := e.Build(context.Background())
		assert.ErrorIs(t, err, ErrNoSource)
		assert.False(t, out.Exists(output.ReportFile))
	})

	t.Run("source failure keeps previous outputs", func(t *testing.T) {
		e, out := newTestEngine(t, &staticSource{records: sampleRecords()})
		_, err := e.Build(context.Background())
		require.NoError(t, err)
		before, err := out.ReadFile(output.FlatFile)
		require.NoError(t, err)

		e.Source = &staticSource{err: assert.AnError}
		_, err = e.Build(context.Background())
		require.ErrorIs(t, err, assert.AnError)

		after, err := out.ReadFile(output.FlatFile)
		require.NoError(t, err)
		assert.Equal(t, string(before), string(after))
	})
}

func TestEngine_SQLiteExport(t *testing.T) {
	e, _ := newTestEngine(t, &staticSource{records: sampleRecords()})
	e.SQLitePath = filepath.Join(t.TempDir(), "views.db")
	_, err := e.Run(context.Background())
	require.NoError(t, err)

	db, err := sql.Open("sqlite", e.SQLitePath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM entries").Scan(&n))
	assert.Equal(t, 4, n)

	var vat string
	require.NoError(t, db.QueryRow(`SELECT json_extract(tax_info, '$.vat') FROM entries WHERE nc = '0101'`).Scan(&vat))
	assert.Equal(t, "20", vat)

	var chain string
	require.NoError(t, db.QueryRow(`SELECT parent_chain FROM entries WHERE id = 2`).Scan(&chain))
	var ids []int64
	require.NoError(t, json.Unmarshal([]byte(chain), &ids))
	assert.Equal(t, []int64{1, 2}, ids)

	rows, err := db.Query(`SELECT child_id FROM edges WHERE parent_id = 1 ORDER BY position`)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()
	var kids []int64
	for rows.Next() {
		var id int64
		require.NoError(t, rows.Scan(&id))
		kids = append(kids, id)
	}
	assert.Equal(t, []int64{2, 3}, kids)

	var roots int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM edges WHERE parent_id IS NULL`).Scan(&roots))
	assert.Equal(t, 2, roots)

	_, err = os.Stat(e.SQLitePath + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestEngine_StagingLeavesNoDebris(t *testing.T) {
	fs := memfs.New()
	e, _ := newTestEngine(t, &staticSource{records: sampleRecords()})
	e.Out = output.NewDir(fs, "data")
	_, err := e.Run(context.Background())
	require.NoError(t, err)

	entries, err := fs.ReadDir("data")
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, en := range entries {
		names[i] = en.Name()
	}
	assert.ElementsMatch(t, []string{
		output.FlatFile, output.TreeFile, output.FlatWithTaxFile, output.TreeWithTaxFile, output.ReportFile,
	}, names)

	ok, err := util.Glob(fs, "data/.stage-*")
	require.NoError(t, err)
	assert.Empty(t, ok)
}

// noRenameFS refuses every rename, so a stage can never be committed.
type noRenameFS struct{ billy.Filesystem }

func (noRenameFS) Rename(string, string) error { return errors.New("rename refused") }

func TestEngine_FailedCommitKeepsSQLite(t *testing.T) {
	e, _ := newTestEngine(t, &staticSource{records: sampleRecords()})
	fs := noRenameFS{memfs.New()}
	e.Out = output.NewDir(fs, "data")
	e.SQLitePath = filepath.Join(t.TempDir(), "views.db")
	require.NoError(t, os.WriteFile(e.SQLitePath, []byte("previous run"), 0o644))

	_, err := e.Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rename refused")

	got, err := os.ReadFile(e.SQLitePath)
	require.NoError(t, err)
	assert.Equal(t, "previous run", string(got), "export is only published with the run")
	assert.NoFileExists(t, e.SQLitePath+".tmp")
	assert.False(t, e.Out.Exists(output.FlatFile))

	entries, err := fs.ReadDir("data")
	require.NoError(t, err)
	assert.Empty(t, entries, "staging dir is cleaned up")
}
