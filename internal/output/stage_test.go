package output

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStage_CommitReplacesPreviousRun(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "data/"+FlatFile, []byte("old"), 0o644))
	d := NewDir(fs, "data")

	st, err := d.Begin()
	require.NoError(t, err)
	require.NoError(t, st.WriteJSON(FlatFile, []map[string]string{{"name_ru": "Лошади", "info_en": "<p>a & b</p>"}}))
	require.NoError(t, st.WriteFile("extra.txt", []byte("x")))
	assert.Equal(t, []string{FlatFile, "extra.txt"}, st.Files())

	got, err := d.ReadFile(FlatFile)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got), "nothing is visible before commit")

	require.NoError(t, st.Commit())

	got, err = d.ReadFile(FlatFile)
	require.NoError(t, err)
	assert.Contains(t, string(got), "Лошади")
	assert.Contains(t, string(got), "<p>a & b</p>")
	assert.Contains(t, string(got), "\n  {", "output is indented")
	assert.True(t, d.Exists("extra.txt"))

	entries, err := fs.ReadDir("data")
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".stage-", "staging dir is removed")
	}

	assert.Error(t, st.WriteFile("late.txt", nil))
	assert.NoError(t, st.Abort(), "abort after commit is a no-op")
}

func TestStage_AbortKeepsPreviousRun(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "data/"+TreeFile, []byte("old"), 0o644))
	d := NewDir(fs, "data")

	st, err := d.Begin()
	require.NoError(t, err)
	require.NoError(t, st.WriteFile(TreeFile, []byte("new")))
	require.NoError(t, st.Abort())

	got, err := d.ReadFile(TreeFile)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))

	entries, err := fs.ReadDir("data")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// noRenameFS refuses every rename.
type noRenameFS struct{ billy.Filesystem }

func (noRenameFS) Rename(string, string) error { return errors.New("rename refused") }

func TestStage_CommitFailureRemovesStaging(t *testing.T) {
	fs := noRenameFS{memfs.New()}
	require.NoError(t, util.WriteFile(fs, "data/"+FlatFile, []byte("old"), 0o644))
	d := NewDir(fs, "data")

	st, err := d.Begin()
	require.NoError(t, err)
	require.NoError(t, st.WriteFile(FlatFile, []byte("new")))
	err = st.Commit()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rename refused")

	got, err := d.ReadFile(FlatFile)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))

	entries, err := fs.ReadDir("data")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, FlatFile, entries[0].Name())
	assert.NoError(t, st.Abort())
}

func TestDir_ReadJSON(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "out/r.json", []byte(`{"a":1}`), 0o644))
	require.NoError(t, util.WriteFile(fs, "out/bad.json", []byte(`{`), 0o644))
	d := NewDir(fs, "out")

	var v map[string]int
	require.NoError(t, d.ReadJSON("r.json", &v))
	assert.Equal(t, 1, v["a"])

	assert.Error(t, d.ReadJSON("bad.json", &v))
	assert.Error(t, d.ReadJSON("missing.json", &v))
	assert.False(t, d.Exists("missing.json"))
}

func TestOpenDir_HostFilesystem(t *testing.T) {
	root := filepath.Join(t.TempDir(), "data")
	d := OpenDir(root)

	st, err := d.Begin()
	require.NoError(t, err)
	require.NoError(t, st.WriteJSON(ReportFile, map[string]int{"records": 3}))
	require.NoError(t, st.Commit())

	data, err := os.ReadFile(filepath.Join(root, ReportFile))
	require.NoError(t, err)
	assert.JSONEq(t, `{"records":3}`, string(data))
}
