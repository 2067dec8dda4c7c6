// Package search finds flat view entries by case-insensitive substring over
// the name, breadcrumb, descriptive text and code of an entry.
package search

import (
	"strings"
	"unicode/utf8"

	"github.com/RoaringBitmap/roaring"

	"github.com/agentic-research/tarim/api"
)

// fieldSep keeps trigrams from spanning two fields of the same entry.
const fieldSep = "\x00"

// Index is a trigram index over a flat view. Candidate entries come from
// intersecting the bitmaps of the query's trigrams and are confirmed with a
// plain substring check, so results match a linear scan exactly.
type Index struct {
	entries []api.FlatEntry
	docs    map[api.Lang][]string
	grams   map[api.Lang]map[string]*roaring.Bitmap
	byCode  map[string][]uint32
}

// NewIndex indexes entries. The slice must not be modified afterwards.
func NewIndex(entries []api.FlatEntry) *Index {
	x := &Index{
		entries: entries,
		docs:    make(map[api.Lang][]string, len(api.Languages)),
		grams:   make(map[api.Lang]map[string]*roaring.Bitmap, len(api.Languages)),
		byCode:  make(map[string][]uint32),
	}
	for _, lang := range api.Languages {
		docs := make([]string, len(entries))
		grams := make(map[string]*roaring.Bitmap)
		for i := range entries {
			doc := document(&entries[i], lang)
			docs[i] = doc
			for _, g := range trigrams(doc) {
				bm, ok := grams[g]
				if !ok {
					bm = roaring.New()
					grams[g] = bm
				}
				bm.Add(uint32(i))
			}
		}
		for _, bm := range grams {
			bm.RunOptimize()
		}
		x.docs[lang] = docs
		x.grams[lang] = grams
	}
	for i := range entries {
		if nc := entries[i].NC; nc != "" {
			x.byCode[nc] = append(x.byCode[nc], uint32(i))
		}
	}
	return x
}

// Len returns the number of indexed entries.
func (x *Index) Len() int { return len(x.entries) }

// document is the lowercased searchable text of e in lang.
func document(e *api.FlatEntry, lang api.Lang) string {
	return strings.ToLower(strings.Join([]string{
		e.Name(lang), e.Path(lang), StripHTML(e.Info(lang)), e.NC,
	}, fieldSep))
}

func trigrams(s string) []string {
	runes := []rune(s)
	if len(runes) < 3 {
		return nil
	}
	out := make([]string, 0, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		g := string(runes[i : i+3])
		if strings.Contains(g, fieldSep) {
			continue
		}
		out = append(out, g)
	}
	return out
}

// Search returns entries matching query in lang, in flat view order. A
// limit of zero or less returns every match. An empty query matches nothing.
func (x *Index) Search(query string, lang api.Lang, limit int) []*api.FlatEntry {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	docs := x.docs[lang]
	if docs == nil {
		return nil
	}

	var out []*api.FlatEntry
	match := func(i int) bool {
		if matches(docs[i], q) {
			out = append(out, &x.entries[i])
		}
		return limit > 0 && len(out) >= limit
	}

	if utf8.RuneCountInString(q) < 3 {
		for i := range docs {
			if match(i) {
				break
			}
		}
		return out
	}

	cand := x.candidates(q, lang)
	if cand == nil {
		return nil
	}
	it := cand.Iterator()
	for it.HasNext() {
		if match(int(it.Next())) {
			break
		}
	}
	return out
}

func (x *Index) candidates(q string, lang api.Lang) *roaring.Bitmap {
	grams := x.grams[lang]
	var bms []*roaring.Bitmap
	seen := make(map[string]struct{})
	for _, g := range trigrams(q) {
		if _, dup := seen[g]; dup {
			continue
		}
		seen[g] = struct{}{}
		bm, ok := grams[g]
		if !ok {
			return nil
		}
		bms = append(bms, bm)
	}
	if len(bms) == 0 {
		return nil
	}
	return roaring.FastAnd(bms...)
}

// matches checks q against each field separately.
func matches(doc, q string) bool {
	for _, field := range strings.Split(doc, fieldSep) {
		if strings.Contains(field, q) {
			return true
		}
	}
	return false
}

// Lookup returns the entries with exactly this code, in flat view order.
func (x *Index) Lookup(code string) []*api.FlatEntry {
	ids := x.byCode[strings.TrimSpace(code)]
	out := make([]*api.FlatEntry, len(ids))
	for i, id := range ids {
		out[i] = &x.entries[id]
	}
	return out
}
