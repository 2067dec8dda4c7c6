package enrich

import (
	"github.com/agentic-research/tarim/api"
	"github.com/agentic-research/tarim/internal/hierarchy"
)

// MergeFlat attaches tax_info to every entry whose code is indexed and
// returns how many entries matched. Entries without a match keep whatever
// they had, so running it twice gives the same result.
func MergeFlat(entries []api.FlatEntry, idx *Index) int {
	matched := 0
	for i := range entries {
		if t, ok := idx.Lookup(entries[i].NC); ok {
			entries[i].TaxInfo = clone(t)
			matched++
		}
	}
	return matched
}

// MergeTree does the same for every node of a tree view. Each node is
// visited once regardless of depth.
func MergeTree(nodes []*api.TreeNode, idx *Index) int {
	matched := 0
	hierarchy.Walk(nodes, func(n *api.TreeNode, _ int) {
		if t, ok := idx.Lookup(n.NC); ok {
			n.TaxInfo = clone(t)
			matched++
		}
	})
	return matched
}

// clone gives each view its own copy. tax_values items are shared and must
// not be mutated.
func clone(t *api.TaxInfo) *api.TaxInfo {
	c := *t
	return &c
}
