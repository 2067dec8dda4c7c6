package search

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/tarim/api"
)

func entries() []api.FlatEntry {
	return []api.FlatEntry{
		{ID: 1, NC: "", NameEN: "Live animals", PathEN: "Live animals", NameRU: "Живые животные", PathRU: "Живые животные", ChildrenCount: 2},
		{ID: 2, NC: "0101", NameEN: "Horses", PathEN: "Live animals > Horses", NameRO: "Cai", InfoEN: "<p>Pure-bred <b>breeding</b> animals</p>"},
		{ID: 3, NC: "0101.21", NameEN: "Pure-bred", PathEN: "Live animals > Horses > Pure-bred",
			ImportActs: []json.RawMessage{json.RawMessage(`{}`), json.RawMessage(`{}`)}},
		{ID: 4, NC: "9403.50", NameEN: "Wooden beds", PathEN: "Furniture > Wooden beds", NameRO: "Mobilă din lemn"},
	}
}

func ids(es []*api.FlatEntry) []int64 {
	out := make([]int64, len(es))
	for i, e := range es {
		out[i] = e.ID
	}
	return out
}

// linear is the reference implementation the index must agree with.
func linear(es []api.FlatEntry, q string, lang api.Lang) []int64 {
	q = strings.ToLower(q)
	var out []int64
	for i := range es {
		e := &es[i]
		for _, f := range []string{e.Name(lang), e.Path(lang), StripHTML(e.Info(lang)), e.NC} {
			if strings.Contains(strings.ToLower(f), q) {
				out = append(out, e.ID)
				break
			}
		}
	}
	return out
}

func TestSearch(t *testing.T) {
	x := NewIndex(entries())
	assert.Equal(t, 4, x.Len())

	tests := []struct {
		name  string
		query string
		lang  api.Lang
		limit int
		want  []int64
	}{
		{"by name", "horses", api.LangEN, 0, []int64{2, 3}},
		{"case insensitive", "WOODEN", api.LangEN, 0, []int64{4}},
		{"by code prefix", "0101", api.LangEN, 0, []int64{2, 3}},
		{"by code with dot", "0101.2", api.LangEN, 0, []int64{3}},
		{"html stripped from info", "breeding animals", api.LangEN, 0, []int64{2}},
		{"no match on markup", "<b>", api.LangEN, 0, nil},
		{"limit", "animals", api.LangEN, 2, []int64{1, 2}},
		{"cyrillic", "животные", api.LangRU, 0, []int64{1}},
		{"romanian diacritics", "mobilă", api.LangRO, 0, []int64{4}},
		{"language scoped", "horses", api.LangRO, 0, nil},
		{"short query scans", "ca", api.LangRO, 0, []int64{2}},
		{"single rune", "9", api.LangEN, 0, []int64{4}},
		{"unknown trigram", "zebra", api.LangEN, 0, nil},
		{"empty query", "  ", api.LangEN, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := x.Search(tt.query, tt.lang, tt.limit)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestSearch_NoCrossFieldMatches(t *testing.T) {
	x := NewIndex([]api.FlatEntry{{ID: 1, NC: "0101", NameEN: "abc", PathEN: "def"}})
	assert.Empty(t, x.Search("cde", api.LangEN, 0))
	assert.Empty(t, x.Search("c0101", api.LangEN, 0))
}

func TestSearch_AgreesWithLinearScan(t *testing.T) {
	var es []api.FlatEntry
	words := []string{"horse", "bed", "wood", "animal", "meat", "fish", "cotton"}
	for i := 0; i < 300; i++ {
		es = append(es, api.FlatEntry{
			ID:     int64(i),
			NC:     fmt.Sprintf("%04d", i*7%1000),
			NameEN: words[i%len(words)] + " " + words[(i/3)%len(words)],
			PathEN: "root > " + words[(i/5)%len(words)],
		})
	}
	x := NewIndex(es)
	for _, q := range []string{"ho", "horse", "wood bed", "d > m", "007", "t", "fish cotton", "root > cot"} {
		want := linear(es, q, api.LangEN)
		got := ids(x.Search(q, api.LangEN, 0))
		if want == nil {
			assert.Empty(t, got, q)
			continue
		}
		assert.Equal(t, want, got, q)
	}
}

func TestLookup(t *testing.T) {
	es := append(entries(), api.FlatEntry{ID: 5, NC: "0101", NameEN: "Horses (dup)"})
	x := NewIndex(es)
	assert.Equal(t, []int64{2, 5}, ids(x.Lookup("0101")))
	assert.Equal(t, []int64{3}, ids(x.Lookup(" 0101.21 ")))
	assert.Empty(t, x.Lookup(""))
	assert.Empty(t, x.Lookup("1234"))
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "plain", StripHTML(" plain "))
	assert.Equal(t, "a bold move", StripHTML("<p>a <b>bold</b> move</p>"))
	assert.Equal(t, "Tom & Jerry", StripHTML("Tom &amp; Jerry"))
	assert.Equal(t, "", StripHTML(""))
}

func TestFormat(t *testing.T) {
	es := entries()
	var buf bytes.Buffer
	Format(&buf, &es[2], api.LangEN, true)
	out := buf.String()
	assert.Contains(t, out, "NC Code: 0101.21")
	assert.Contains(t, out, "Name: Pure-bred")
	assert.Contains(t, out, "Path: Live animals > Horses > Pure-bred")
	assert.Contains(t, out, "Import Acts: 2")
	assert.NotContains(t, out, "Export Acts")

	t.Run("root without code", func(t *testing.T) {
		var buf bytes.Buffer
		Format(&buf, &es[0], api.LangEN, false)
		assert.Contains(t, buf.String(), "NC Code: N/A")
		assert.NotContains(t, buf.String(), "Path:", "path equal to name is not repeated")
		assert.Contains(t, buf.String(), "Children: 2 subcategories")
	})

	t.Run("long info is truncated", func(t *testing.T) {
		e := api.FlatEntry{NameEN: "x", InfoEN: strings.Repeat("я", 250)}
		var buf bytes.Buffer
		Format(&buf, &e, api.LangEN, false)
		require.Contains(t, buf.String(), "...")
		assert.Contains(t, buf.String(), "Info: "+strings.Repeat("я", 200)+"...")
	})

	t.Run("tax info", func(t *testing.T) {
		e := api.FlatEntry{NameEN: "x", TaxInfo: &api.TaxInfo{VAT: "20", Excise: "0"}}
		var buf bytes.Buffer
		Format(&buf, &e, api.LangEN, false)
		assert.Contains(t, buf.String(), "VAT: 20  Excise: 0")
	})

	t.Run("numeric and null rates", func(t *testing.T) {
		e := api.FlatEntry{NameEN: "x", TaxInfo: &api.TaxInfo{VAT: float64(8)}}
		var buf bytes.Buffer
		Format(&buf, &e, api.LangEN, false)
		assert.Contains(t, buf.String(), "VAT: 8  Excise: \n")
	})
}
