package hierarchy

import (
	"slices"
	"strings"

	"github.com/agentic-research/tarim/api"
	"github.com/agentic-research/tarim/internal/anomaly"
)

type treeFrame struct {
	node *api.TreeNode
	rec  *api.RawRecord
}

// BuildTree assembles the nested view below parent (nil for the roots).
//
// A record is expanded only when its children hint is positive; the hint
// wins over the grouping and any disagreement is reported as a
// child_count_mismatch. Each level is sorted with codes first and empty
// codes last, see CompareTreeCodes. The walk uses an explicit stack, so
// depth is bounded by memory only.
func (s *Store) BuildTree(parent *int64) []*api.TreeNode {
	top, frames := s.treeLevel(s.ChildrenOf(parent))

	expanded := make(map[int64]struct{})
	if parent != nil {
		expanded[*parent] = struct{}{}
	}

	stack := slices.Clone(frames)
	slices.Reverse(stack)
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		kids := s.children[f.rec.ID]
		if f.rec.Children <= 0 {
			if len(kids) > 0 {
				s.anomalies.RecordID(anomaly.ChildCountMismatch, f.rec.ID,
					"children hint is %d but %d records name it as parent; kept as leaf", f.rec.Children, len(kids))
			}
			continue
		}
		if len(kids) == 0 {
			s.anomalies.RecordID(anomaly.ChildCountMismatch, f.rec.ID,
				"children hint is %d but no loaded record names it as parent", f.rec.Children)
			continue
		}
		if _, again := expanded[f.rec.ID]; again {
			s.anomalies.RecordID(anomaly.Cycle, f.rec.ID, "record reached twice while building the tree")
			continue
		}
		expanded[f.rec.ID] = struct{}{}

		nodes, next := s.treeLevel(kids)
		f.node.Children = nodes
		for i := len(next) - 1; i >= 0; i-- {
			stack = append(stack, next[i])
		}
	}

	return top
}

// treeLevel creates the sorted sibling nodes for recs, paired with their
// records for further expansion.
func (s *Store) treeLevel(recs []*api.RawRecord) ([]*api.TreeNode, []treeFrame) {
	frames := make([]treeFrame, len(recs))
	for i, r := range recs {
		frames[i] = treeFrame{node: treeNode(r), rec: r}
	}
	slices.SortStableFunc(frames, func(a, b treeFrame) int {
		return CompareTreeCodes(a.node.NC, b.node.NC)
	})

	nodes := make([]*api.TreeNode, len(frames))
	for i, f := range frames {
		nodes[i] = f.node
	}
	return nodes, frames
}

// CompareTreeCodes orders sibling codes: non-empty codes lexicographically,
// then empty codes, which mark aggregation nodes closing their group.
func CompareTreeCodes(a, b string) int {
	switch {
	case a == "" && b != "":
		return 1
	case a != "" && b == "":
		return -1
	}
	return strings.Compare(a, b)
}

func treeNode(r *api.RawRecord) *api.TreeNode {
	return &api.TreeNode{
		ID:          r.ID,
		NC:          r.NC,
		NameEN:      r.I18n.EN.Name,
		NameRO:      r.I18n.RO.Name,
		NameRU:      r.I18n.RU.Name,
		InfoEN:      r.I18n.EN.Info,
		InfoRO:      r.I18n.RO.Info,
		InfoRU:      r.I18n.RU.Info,
		ImportActs:  acts(r.ImportActs),
		ExportActs:  acts(r.ExportActs),
		TransitActs: acts(r.TransitActs),
	}
}

// Walk visits every node of tree depth-first in document order, each once.
// fn receives the node and its depth (1 for the top level).
func Walk(tree []*api.TreeNode, fn func(n *api.TreeNode, depth int)) {
	type item struct {
		n     *api.TreeNode
		depth int
	}
	stack := make([]item, 0, len(tree))
	for i := len(tree) - 1; i >= 0; i-- {
		stack = append(stack, item{tree[i], 1})
	}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(it.n, it.depth)
		for i := len(it.n.Children) - 1; i >= 0; i-- {
			stack = append(stack, item{it.n.Children[i], it.depth + 1})
		}
	}
}

// CountNodes returns the number of nodes in tree.
func CountNodes(tree []*api.TreeNode) int {
	n := 0
	Walk(tree, func(*api.TreeNode, int) { n++ })
	return n
}
