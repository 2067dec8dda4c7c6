// Package anomaly accumulates data-integrity irregularities found while
// materializing the views. Anomalies are logged as they happen and summarized
// at the end of a run; none of them abort processing.
package anomaly

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Kind classifies an anomaly.
type Kind string

const (
	DuplicateID        Kind = "duplicate_id"
	BrokenParent       Kind = "broken_parent"
	Cycle              Kind = "cycle"
	ChildCountMismatch Kind = "child_count_mismatch"
	DuplicateTaxCode   Kind = "duplicate_tax_code"
	UnkeyedTaxPayload  Kind = "unkeyed_tax_payload"
	MissingRecords     Kind = "missing_records"
	MissingTaxData     Kind = "missing_tax_data"
)

// Anomaly is one recorded irregularity. Subject identifies what it is about:
// a record id, a classification code or an input file.
type Anomaly struct {
	Kind    Kind   `json:"kind"`
	Subject string `json:"subject"`
	Detail  string `json:"detail,omitempty"`
}

type key struct {
	kind    Kind
	subject string
}

// Collector records anomalies. It is safe for concurrent use; the same
// (kind, subject) pair is kept once, so walks that hit the same cycle from
// many records report it a single time.
type Collector struct {
	mu     sync.Mutex
	log    *slog.Logger
	seen   map[key]struct{}
	list   []Anomaly
	counts map[Kind]int
}

// NewCollector returns a collector that logs each new anomaly at WARN.
// A nil logger discards log output.
func NewCollector(log *slog.Logger) *Collector {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Collector{
		log:    log,
		seen:   make(map[key]struct{}),
		counts: make(map[Kind]int),
	}
}

// Logger returns the logger anomalies are reported through.
func (c *Collector) Logger() *slog.Logger {
	return c.log
}

// Record stores an anomaly. It reports whether the anomaly was new.
func (c *Collector) Record(kind Kind, subject, detail string) bool {
	c.mu.Lock()
	k := key{kind, subject}
	if _, dup := c.seen[k]; dup {
		c.mu.Unlock()
		return false
	}
	c.seen[k] = struct{}{}
	c.list = append(c.list, Anomaly{Kind: kind, Subject: subject, Detail: detail})
	c.counts[kind]++
	c.mu.Unlock()

	c.log.Warn("data anomaly", "kind", string(kind), "subject", subject, "detail", detail)
	return true
}

// RecordID is Record for anomalies about a record identifier.
func (c *Collector) RecordID(kind Kind, id int64, format string, args ...any) bool {
	return c.Record(kind, fmt.Sprintf("%d", id), fmt.Sprintf(format, args...))
}

// Count returns how many distinct anomalies of kind were recorded.
func (c *Collector) Count(kind Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[kind]
}

// Total returns the number of distinct anomalies recorded.
func (c *Collector) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.list)
}

// Anomalies returns a copy of the recorded anomalies ordered by kind then
// subject, independent of the order they were found in.
func (c *Collector) Anomalies() []Anomaly {
	c.mu.Lock()
	out := make([]Anomaly, len(c.list))
	copy(out, c.list)
	c.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Subject < out[j].Subject
	})
	return out
}

// Summary is the per-kind tally reported at the end of a run.
type Summary struct {
	Total  int          `json:"total"`
	ByKind map[Kind]int `json:"by_kind"`
}

// Summary returns the current tally.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	by := make(map[Kind]int, len(c.counts))
	for k, n := range c.counts {
		by[k] = n
	}
	return Summary{Total: len(c.list), ByKind: by}
}

// LogSummary writes the tally as one INFO line per kind, in a stable order.
func (c *Collector) LogSummary() {
	s := c.Summary()
	kinds := make([]string, 0, len(s.ByKind))
	for k := range s.ByKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	c.log.Info("anomaly summary", "total", s.Total)
	for _, k := range kinds {
		c.log.Info("anomaly summary", "kind", k, "count", s.ByKind[Kind(k)])
	}
}
