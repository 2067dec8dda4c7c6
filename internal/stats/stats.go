// Package stats summarizes a materialized flat view and the on-disk
// inputs and outputs around it.
package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/agentic-research/tarim/api"
)

// Stats describes the flat view.
type Stats struct {
	Total           int         `yaml:"total" json:"total"`
	Categories      int         `yaml:"categories" json:"categories"`
	Leaves          int         `yaml:"leaves" json:"leaves"`
	Roots           int         `yaml:"roots" json:"roots"`
	WithImportActs  int         `yaml:"with_import_acts" json:"with_import_acts"`
	WithExportActs  int         `yaml:"with_export_acts" json:"with_export_acts"`
	WithTransitActs int         `yaml:"with_transit_acts" json:"with_transit_acts"`
	WithTax         int         `yaml:"with_tax" json:"with_tax"`
	CodeLengths     map[int]int `yaml:"code_lengths" json:"code_lengths"`
	MaxDepth        int         `yaml:"max_depth" json:"max_depth"`
	Depths          map[int]int `yaml:"depths" json:"depths"`
}

// Compute derives Stats from flat entries. Depth is the length of the
// ancestry chain, so roots sit at depth 1. Entries without a code are left
// out of the code length distribution.
func Compute(entries []api.FlatEntry) Stats {
	s := Stats{
		Total:       len(entries),
		CodeLengths: make(map[int]int),
		Depths:      make(map[int]int),
	}
	for i := range entries {
		e := &entries[i]
		if e.ChildrenCount > 0 {
			s.Categories++
		}
		if e.ParentID == nil {
			s.Roots++
		}
		if len(e.ImportActs) > 0 {
			s.WithImportActs++
		}
		if len(e.ExportActs) > 0 {
			s.WithExportActs++
		}
		if len(e.TransitActs) > 0 {
			s.WithTransitActs++
		}
		if e.TaxInfo != nil {
			s.WithTax++
		}
		if e.NC != "" {
			s.CodeLengths[utf8.RuneCountInString(e.NC)]++
		}
		d := len(e.ParentChain)
		s.Depths[d]++
		if d > s.MaxDepth {
			s.MaxDepth = d
		}
	}
	s.Leaves = s.Total - s.Categories
	return s
}

// Inventory counts the files a pipeline run reads and writes.
type Inventory struct {
	RawFiles        int   `yaml:"raw_files" json:"raw_files"`
	RawItems        int   `yaml:"raw_items" json:"raw_items"`
	UnreadablePages int   `yaml:"unreadable_pages,omitempty" json:"unreadable_pages,omitempty"`
	TaxFiles        int   `yaml:"tax_files" json:"tax_files"`
	FlatBytes       int64 `yaml:"flat_bytes" json:"flat_bytes"`
	TreeBytes       int64 `yaml:"tree_bytes" json:"tree_bytes"`
	LogFiles        int   `yaml:"log_files" json:"log_files"`
}

// Dirs names the directories Scan looks at. Empty entries are skipped.
type Dirs struct {
	Raw  string
	Tax  string
	Data string
	Logs string
}

// Scan builds an Inventory. Missing directories count as empty; raw pages
// that cannot be decoded are counted separately instead of failing.
func Scan(d Dirs, flatFile, treeFile string) (Inventory, error) {
	var inv Inventory

	raw, err := glob(d.Raw, "*.json")
	if err != nil {
		return inv, err
	}
	inv.RawFiles = len(raw)
	for _, p := range raw {
		n, err := countResults(p)
		if err != nil {
			inv.UnreadablePages++
			continue
		}
		inv.RawItems += n
	}

	tax, err := glob(d.Tax, "*.json")
	if err != nil {
		return inv, err
	}
	inv.TaxFiles = len(tax)

	logs, err := glob(d.Logs, "*.log")
	if err != nil {
		return inv, err
	}
	inv.LogFiles = len(logs)

	if d.Data != "" {
		inv.FlatBytes = size(filepath.Join(d.Data, flatFile))
		inv.TreeBytes = size(filepath.Join(d.Data, treeFile))
	}
	return inv, nil
}

func glob(dir, pattern string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	m, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", dir, err)
	}
	return m, nil
}

func countResults(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var page struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(data, &page); err != nil {
		return 0, err
	}
	return len(page.Results), nil
}

func size(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

// Report is what `tarim stats` prints.
type Report struct {
	Stats     *Stats     `yaml:"view,omitempty" json:"view,omitempty"`
	Inventory *Inventory `yaml:"inventory,omitempty" json:"inventory,omitempty"`
}

// WriteYAML renders r as YAML.
func WriteYAML(w io.Writer, r Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	return enc.Close()
}

// textDepthLevels bounds the depth distribution in text output.
const textDepthLevels = 5

// WriteText renders r for a terminal.
func WriteText(w io.Writer, r Report) error {
	var b strings.Builder
	rule := strings.Repeat("=", 70)
	b.WriteString(rule + "\n")
	b.WriteString("Tariff Nomenclature - Data Statistics\n")
	b.WriteString(rule + "\n")

	if inv := r.Inventory; inv != nil {
		fmt.Fprintf(&b, "\nRaw responses: %d files\n", inv.RawFiles)
		fmt.Fprintf(&b, "   Total items in raw files: %d\n", inv.RawItems)
		if inv.UnreadablePages > 0 {
			fmt.Fprintf(&b, "   Unreadable files: %d\n", inv.UnreadablePages)
		}
		fmt.Fprintf(&b, "Tax responses: %d files\n", inv.TaxFiles)
	}

	if s := r.Stats; s != nil {
		fmt.Fprintf(&b, "\nProcessed data (flat): %d items\n", s.Total)
		fmt.Fprintf(&b, "   Categories (with children): %d\n", s.Categories)
		fmt.Fprintf(&b, "   Leaf items (no children): %d\n", s.Leaves)
		fmt.Fprintf(&b, "   Root level categories: %d\n", s.Roots)
		fmt.Fprintf(&b, "   Items with tax data: %d\n", s.WithTax)

		b.WriteString("\nRegulatory acts:\n")
		fmt.Fprintf(&b, "   Items with import acts: %d\n", s.WithImportActs)
		fmt.Fprintf(&b, "   Items with export acts: %d\n", s.WithExportActs)
		fmt.Fprintf(&b, "   Items with transit acts: %d\n", s.WithTransitActs)

		b.WriteString("\nNC code distribution:\n")
		for _, k := range sortedKeys(s.CodeLengths) {
			fmt.Fprintf(&b, "   %d digits: %d items\n", k, s.CodeLengths[k])
		}

		b.WriteString("\nHierarchy:\n")
		fmt.Fprintf(&b, "   Maximum depth: %d levels\n", s.MaxDepth)
		for i, k := range sortedKeys(s.Depths) {
			if i == textDepthLevels {
				break
			}
			fmt.Fprintf(&b, "   Level %d: %d items\n", k, s.Depths[k])
		}
	} else {
		b.WriteString("\nProcessed data: not found (run `tarim build` first)\n")
	}

	if inv := r.Inventory; inv != nil {
		if inv.FlatBytes > 0 {
			fmt.Fprintf(&b, "\nFile size: %s\n", megabytes(inv.FlatBytes))
		}
		if inv.TreeBytes > 0 {
			fmt.Fprintf(&b, "   Tree file: %s\n", megabytes(inv.TreeBytes))
		}
		fmt.Fprintf(&b, "\nLogs: %d files\n", inv.LogFiles)
	}
	b.WriteString("\n" + rule + "\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func sortedKeys(m map[int]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func megabytes(n int64) string {
	return fmt.Sprintf("%.2f MB", float64(n)/1024/1024)
}
