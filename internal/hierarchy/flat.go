package hierarchy

import (
	"encoding/json"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/agentic-research/tarim/api"
)

// BuildFlat produces one entry per input record, duplicates included, with
// its ancestry chain and a breadcrumb per language. Entries are sorted by
// classification code with a stable byte-wise comparison, so empty codes
// come first and equal codes keep their input order.
//
// Chains are resolved concurrently when SetWorkers allows it; the store is
// read-only at this point and entries are written by input index, which
// keeps the output identical to a sequential run.
func (s *Store) BuildFlat(records []api.RawRecord) []api.FlatEntry {
	entries := make([]api.FlatEntry, len(records))

	workers := min(s.workers, len(records))
	if workers <= 1 {
		for i := range records {
			entries[i] = s.flatEntry(&records[i])
		}
	} else {
		var g errgroup.Group
		g.SetLimit(workers)
		chunk := (len(records) + workers - 1) / workers
		for lo := 0; lo < len(records); lo += chunk {
			hi := min(lo+chunk, len(records))
			g.Go(func() error {
				for i := lo; i < hi; i++ {
					entries[i] = s.flatEntry(&records[i])
				}
				return nil
			})
		}
		_ = g.Wait() // workers never fail
	}

	SortFlat(entries)
	s.anomalies.Logger().Info("built flat view", "entries", len(entries))
	return entries
}

// SortFlat orders entries ascending by code, empty codes first, stable.
func SortFlat(entries []api.FlatEntry) {
	slices.SortStableFunc(entries, func(a, b api.FlatEntry) int {
		return strings.Compare(a.NC, b.NC)
	})
}

func (s *Store) flatEntry(r *api.RawRecord) api.FlatEntry {
	chain := s.Chain(r.ID)
	e := api.FlatEntry{
		ID:            r.ID,
		NC:            r.NC,
		ParentID:      r.Parent,
		ParentChain:   chain,
		NameEN:        r.I18n.EN.Name,
		NameRO:        r.I18n.RO.Name,
		NameRU:        r.I18n.RU.Name,
		InfoEN:        r.I18n.EN.Info,
		InfoRO:        r.I18n.RO.Info,
		InfoRU:        r.I18n.RU.Info,
		ChildrenCount: r.Children,
		ImportActs:    acts(r.ImportActs),
		ExportActs:    acts(r.ExportActs),
		TransitActs:   acts(r.TransitActs),
		ValidFrom:     r.ValidFrom,
		ValidTo:       r.ValidTo,
	}
	for _, lang := range api.Languages {
		e.SetPath(lang, s.Path(chain, lang))
	}
	return e
}

// acts normalizes a missing act list to an empty one so it encodes as [].
func acts(in []json.RawMessage) []json.RawMessage {
	if in == nil {
		return []json.RawMessage{}
	}
	return in
}
