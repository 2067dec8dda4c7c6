package graph

import (
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/tarim/api"
)

func TestMemoryStore_AddRootAndGetNode(t *testing.T) {
	store := NewMemoryStore()
	store.AddRoot(&Node{
		ID:       "01_1",
		Mode:     fs.ModeDir,
		Children: []string{"01_1/name_en"},
	})
	store.AddNode(&Node{ID: "01_1/name_en", Data: []byte("Live animals\n")})

	node, err := store.GetNode("01_1")
	require.NoError(t, err)
	assert.True(t, node.Mode.IsDir())
	assert.Len(t, node.Children, 1)

	node, err = store.GetNode("/01_1/name_en")
	require.NoError(t, err, "leading slash is ignored")
	assert.Equal(t, int64(13), node.ContentSize())

	_, err = store.GetNode("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	roots, err := store.ListChildren("/")
	require.NoError(t, err)
	assert.Equal(t, []string{"01_1"}, roots)

	store.AddRoot(&Node{ID: "01_1", Mode: fs.ModeDir})
	roots, _ = store.ListChildren("")
	assert.Len(t, roots, 1, "re-adding a root does not duplicate it")
}

func TestMemoryStore_ReadContent(t *testing.T) {
	store := NewMemoryStore()
	store.AddNode(&Node{ID: "f", Data: []byte("hello world")})

	buf := make([]byte, 5)
	n, err := store.ReadContent("f", buf, 6)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf[:n]))

	n, err = store.ReadContent("f", buf, 100)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = store.ReadContent("nope", buf, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func sampleTree() []*api.TreeNode {
	leaf := &api.TreeNode{ID: 3, NC: "0101.21", NameEN: "Pure-bred", NameRO: "Rasă pură",
		TaxInfo: &api.TaxInfo{VAT: "20", TaxValues: []any{}}}
	agg := &api.TreeNode{ID: 4, NC: "", NameEN: "Other"}
	mid := &api.TreeNode{ID: 2, NC: "0101", NameEN: "Horses", InfoEN: "Live horses", Children: []*api.TreeNode{leaf, agg}}
	return []*api.TreeNode{
		{ID: 1, NC: "01", NameEN: "Live animals", Children: []*api.TreeNode{mid}},
		{ID: 9, NC: "02/03", NameEN: "Meat"},
	}
}

func TestProject(t *testing.T) {
	mod := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := Project(sampleTree(), mod)

	roots, err := s.ListChildren("")
	require.NoError(t, err)
	assert.Equal(t, []string{"01_1", "02-03_9"}, roots)

	kids, err := s.ListChildren("01_1/0101_2")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"01_1/0101_2/name_en", "01_1/0101_2/info_en", "01_1/0101_2/path_en",
		"01_1/0101_2/name_ro", "01_1/0101_2/name_ru",
		"01_1/0101_2/0101.21_3", "01_1/0101_2/4",
	}, kids)

	read := func(id string) string {
		n, err := s.GetNode(id)
		require.NoError(t, err, id)
		return string(n.Data)
	}
	assert.Equal(t, "Horses\n", read("01_1/0101_2/name_en"))
	assert.Equal(t, "Live horses\n", read("01_1/0101_2/info_en"))
	assert.Equal(t, "Live animals > Horses > Pure-bred\n", read("01_1/0101_2/0101.21_3/path_en"))
	assert.Equal(t, "Rasă pură\n", read("01_1/0101_2/0101.21_3/path_ro"), "unnamed ancestors are skipped")
	assert.Equal(t, "", read("01_1/0101_2/0101.21_3/name_ru"))
	assert.Contains(t, read("01_1/0101_2/0101.21_3/tax.json"), `"vat": "20"`)

	_, err = s.GetNode("01_1/0101_2/tax.json")
	assert.ErrorIs(t, err, ErrNotFound, "no tax file without tax data")
	_, err = s.GetNode("01_1/0101_2/path_ro")
	assert.ErrorIs(t, err, ErrNotFound, "empty paths are omitted")

	dir, err := s.GetNode("01_1/0101_2/4")
	require.NoError(t, err)
	assert.True(t, dir.Mode.IsDir())
	assert.Equal(t, mod, dir.ModTime)
}

func TestProject_DeepTree(t *testing.T) {
	root := &api.TreeNode{ID: 0, NameEN: "n"}
	cur := root
	for i := 1; i < 1000; i++ {
		next := &api.TreeNode{ID: int64(i), NameEN: "n"}
		cur.Children = []*api.TreeNode{next}
		cur = next
	}
	s := Project([]*api.TreeNode{root}, time.Time{})
	// each node: dir + name_en + path_en + name_ro + name_ru
	assert.Equal(t, 1000*5, s.Len())
}

func TestHotSwapGraph(t *testing.T) {
	a := Project(sampleTree(), time.Time{})
	b := Project([]*api.TreeNode{{ID: 7, NC: "99", NameEN: "New"}}, time.Time{})

	h := NewHotSwapGraph(a)
	_, err := h.GetNode("01_1")
	require.NoError(t, err)

	h.Swap(b)
	assert.Equal(t, 1, h.Swaps())
	_, err = h.GetNode("01_1")
	assert.ErrorIs(t, err, ErrNotFound)

	roots, err := h.ListChildren("/")
	require.NoError(t, err)
	assert.Equal(t, []string{"99_7"}, roots)

	buf := make([]byte, 16)
	n, err := h.ReadContent("99_7/name_en", buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "New\n", string(buf[:n]))
}
