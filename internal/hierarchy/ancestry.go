package hierarchy

import (
	"slices"
	"strconv"
	"strings"

	"github.com/agentic-research/tarim/internal/anomaly"
)

// Chain returns the identifiers from the root down to id, inclusive.
//
// The walk stops at a record without parent, at a parent missing from the
// store or when an identifier repeats. A missing parent is kept as the
// chain's root: it has no record, so Path skips it. Each identifier is
// visited at most once, so the chain holds at most one id beyond the store
// size. Unknown ids yield nil.
func (s *Store) Chain(id int64) []int64 {
	cur, ok := s.byID[id]
	if !ok {
		return nil
	}

	visited := make(map[int64]struct{})
	var chain []int64
	for {
		visited[cur.ID] = struct{}{}
		chain = append(chain, cur.ID)
		if cur.Parent == nil {
			break
		}
		pid := *cur.Parent
		if _, seen := visited[pid]; seen {
			s.reportCycle(chain, pid)
			break
		}
		parent, ok := s.byID[pid]
		if !ok {
			s.reportBrokenParent(cur)
			chain = append(chain, pid)
			break
		}
		cur = parent
	}

	slices.Reverse(chain)
	return chain
}

// reportCycle records the loop closed by pid. chain is leaf-first and ends
// with the record pointing back at pid. The smallest member identifies the
// loop and starts its description, so walks entering it from different
// records report it once and identically.
func (s *Store) reportCycle(chain []int64, pid int64) {
	start := slices.Index(chain, pid)
	loop := chain[start:]
	minID := slices.Min(loop)
	at := slices.Index(loop, minID)

	parts := make([]string, 0, len(loop)+1)
	for i := range loop {
		parts = append(parts, strconv.FormatInt(loop[(at+i)%len(loop)], 10))
	}
	parts = append(parts, parts[0])
	s.anomalies.RecordID(anomaly.Cycle, minID, "parent links loop through %s", strings.Join(parts, " -> "))
}

// Depth returns the length of id's chain, 0 for unknown ids.
func (s *Store) Depth(id int64) int {
	return len(s.Chain(id))
}
