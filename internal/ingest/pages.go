package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/agentic-research/tarim/api"
)

var (
	pagePattern     = regexp.MustCompile(`^page_(\d+)\.json$`)
	rootPagePattern = regexp.MustCompile(`^root_page_(\d+)\.json$`)
)

// PageDir reads cached feed pages from a directory. Files are named
// page_N.json; directories written by older fetchers use root_page_N.json,
// which is only consulted when no page_N.json exists.
type PageDir struct {
	Dir string
	Log *slog.Logger
}

func (p *PageDir) String() string { return p.Dir }

type pageFile struct {
	name string
	n    int
}

// Pages returns the page file names in numeric page order.
func (p *PageDir) Pages() ([]string, error) {
	ents, err := os.ReadDir(p.Dir)
	if err != nil {
		return nil, fmt.Errorf("read pages dir %s: %w", p.Dir, err)
	}

	collect := func(re *regexp.Regexp) []pageFile {
		var out []pageFile
		for _, e := range ents {
			if !e.Type().IsRegular() {
				continue
			}
			m := re.FindStringSubmatch(e.Name())
			if m == nil {
				continue
			}
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			out = append(out, pageFile{name: e.Name(), n: n})
		}
		return out
	}

	files := collect(pagePattern)
	if len(files) == 0 {
		files = collect(rootPagePattern)
	}
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].n != files[j].n {
			return files[i].n < files[j].n
		}
		return files[i].name < files[j].name
	})

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.name
	}
	return names, nil
}

// Records concatenates the results of every page. A page that cannot be
// read or decoded is logged and skipped.
func (p *PageDir) Records(ctx context.Context) ([]api.RawRecord, error) {
	log := p.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	names, err := p.Pages()
	if err != nil {
		return nil, err
	}
	log.Info("found response files", "dir", p.Dir, "files", len(names))

	var records []api.RawRecord
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := readPage(filepath.Join(p.Dir, name))
		if err != nil {
			log.Error("skip page", "file", name, "err", err)
			continue
		}
		records = append(records, page.Results...)
	}
	log.Info("loaded records", "records", len(records))
	return records, nil
}

func readPage(path string) (*api.RawPage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var page api.RawPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return &page, nil
}
