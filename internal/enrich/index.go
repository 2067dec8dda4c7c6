// Package enrich merges tax attributes, keyed by classification code, into
// the flat and tree views.
package enrich

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ohler55/ojg/oj"

	"github.com/agentic-research/tarim/api"
	"github.com/agentic-research/tarim/internal/anomaly"
)

// Index maps classification codes to their tax sub-record.
type Index struct {
	byCode    map[string]*api.TaxInfo
	source    map[string]string
	empty     int
	anomalies *anomaly.Collector
}

// NewIndex returns an empty index reporting to an.
func NewIndex(an *anomaly.Collector) *Index {
	if an == nil {
		an = anomaly.NewCollector(nil)
	}
	return &Index{
		byCode:    make(map[string]*api.TaxInfo),
		source:    make(map[string]string),
		anomalies: an,
	}
}

// Add indexes one decoded payload. source names where it came from and is
// used in anomaly reports. A payload without results only counts as empty.
// A code seen before is replaced by this payload; callers feed payloads in a
// deterministic order so the surviving one is reproducible.
func (x *Index) Add(source string, payload any) bool {
	if !hasResults(payload) {
		x.empty++
		return false
	}
	code, ok := PayloadCode(payload)
	if !ok {
		x.anomalies.Record(anomaly.UnkeyedTaxPayload, source, "first result carries no tarim.nc")
		return false
	}
	if prev, dup := x.source[code]; dup {
		x.anomalies.Record(anomaly.DuplicateTaxCode, code,
			fmt.Sprintf("claimed by %s and %s; keeping %s", prev, source, source))
	}
	x.byCode[code] = Extract(payload)
	x.source[code] = source
	return true
}

// AddJSON parses data and indexes it.
func (x *Index) AddJSON(source string, data []byte) (bool, error) {
	payload, err := oj.Parse(data)
	if err != nil {
		return false, fmt.Errorf("parse tax payload %s: %w", source, err)
	}
	return x.Add(source, payload), nil
}

// Load indexes every *.json payload in dir, in file name order. Unreadable
// or malformed files are logged and skipped.
func (x *Index) Load(dir string) error {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read tax dir %s: %w", dir, err)
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	log := x.anomalies.Logger()
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Error("read tax payload", "file", name, "err", err)
			continue
		}
		if _, err := x.AddJSON(name, data); err != nil {
			log.Error("skip tax payload", "file", name, "err", err)
		}
	}
	log.Info("loaded tax data", "files", len(names), "codes", x.Len(), "empty", x.empty)
	return nil
}

// Lookup returns the sub-record for code.
func (x *Index) Lookup(code string) (*api.TaxInfo, bool) {
	if x == nil || code == "" {
		return nil, false
	}
	t, ok := x.byCode[code]
	return t, ok
}

// Len returns the number of indexed codes.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.byCode)
}

// Empty returns how many payloads carried no results.
func (x *Index) Empty() int { return x.empty }

// Codes returns the indexed codes in ascending order.
func (x *Index) Codes() []string {
	out := make([]string, 0, len(x.byCode))
	for c := range x.byCode {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
