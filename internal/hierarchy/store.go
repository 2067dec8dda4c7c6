// Package hierarchy materializes the flat and tree views of the nomenclature
// from an unordered set of records linked by parent identifiers.
package hierarchy

import (
	"github.com/agentic-research/tarim/api"
	"github.com/agentic-research/tarim/internal/anomaly"
)

// Store indexes the ingested records by identifier and groups them by
// parent. It is built once per run and read-only afterwards, so lookups
// are safe from many goroutines.
type Store struct {
	byID     map[int64]*api.RawRecord
	children map[int64][]*api.RawRecord
	roots    []*api.RawRecord

	replaced  int
	workers   int
	anomalies *anomaly.Collector
}

// Build indexes records. Duplicate identifiers keep the last record seen
// and are reported; the surviving copy takes the grouping position of its
// own input position, so a record is never grouped twice. Records whose
// parent is absent from the set are reported as broken references.
//
// The store keeps pointers into records; callers must not mutate the slice
// afterwards.
func Build(records []api.RawRecord, an *anomaly.Collector) *Store {
	if an == nil {
		an = anomaly.NewCollector(nil)
	}
	s := &Store{
		byID:      make(map[int64]*api.RawRecord, len(records)),
		children:  make(map[int64][]*api.RawRecord),
		workers:   1,
		anomalies: an,
	}

	winner := make(map[int64]int, len(records))
	for i := range records {
		id := records[i].ID
		if prev, dup := winner[id]; dup {
			s.replaced++
			an.RecordID(anomaly.DuplicateID, id, "input position %d replaced by position %d", prev, i)
		}
		winner[id] = i
	}

	for i := range records {
		r := &records[i]
		if winner[r.ID] != i {
			continue
		}
		s.byID[r.ID] = r
		if r.Parent == nil {
			s.roots = append(s.roots, r)
		} else {
			s.children[*r.Parent] = append(s.children[*r.Parent], r)
		}
	}

	for i := range records {
		r := &records[i]
		if winner[r.ID] != i || r.Parent == nil {
			continue
		}
		if _, ok := s.byID[*r.Parent]; !ok {
			s.reportBrokenParent(r)
		}
	}

	an.Logger().Info("indexed records",
		"unique", len(s.byID),
		"parents", len(s.children),
		"roots", len(s.roots),
		"replaced", s.replaced)
	return s
}

// SetWorkers bounds how many goroutines BuildFlat may use to resolve
// ancestry chains. Values below 1 mean sequential.
func (s *Store) SetWorkers(n int) {
	if n < 1 {
		n = 1
	}
	s.workers = n
}

// Anomalies returns the collector the store reports to.
func (s *Store) Anomalies() *anomaly.Collector {
	return s.anomalies
}

// Len returns the number of distinct records.
func (s *Store) Len() int {
	return len(s.byID)
}

// Replaced returns how many input records were discarded as duplicates.
func (s *Store) Replaced() int {
	return s.replaced
}

// Lookup returns the record stored under id.
func (s *Store) Lookup(id int64) (*api.RawRecord, bool) {
	r, ok := s.byID[id]
	return r, ok
}

// ChildrenOf returns the records grouped under parent in insertion order.
// A nil parent selects the roots. The returned slice must not be modified.
func (s *Store) ChildrenOf(parent *int64) []*api.RawRecord {
	if parent == nil {
		return s.roots
	}
	return s.children[*parent]
}

func (s *Store) reportBrokenParent(r *api.RawRecord) {
	s.anomalies.RecordID(anomaly.BrokenParent, r.ID, "parent %d not in the loaded set", *r.Parent)
}
