// Package output writes run artifacts into a data directory. Files are staged
// in a temporary directory next to the target and moved into place only when
// the whole run succeeded, so readers never see a half-written set.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// Output file names.
const (
	FlatFile        = "nomenclature_flat.json"
	TreeFile        = "nomenclature_tree.json"
	FlatWithTaxFile = "nomenclature_flat_with_tax.json"
	TreeWithTaxFile = "nomenclature_tree_with_tax.json"
	ReportFile      = "run_report.json"
)

// Dir is a data directory on some filesystem.
type Dir struct {
	fs   billy.Filesystem
	root string
}

// OpenDir returns the data directory at dir on the host filesystem.
func OpenDir(dir string) *Dir {
	return &Dir{fs: osfs.New(dir), root: "."}
}

// NewDir returns a data directory rooted at root inside fs.
func NewDir(fs billy.Filesystem, root string) *Dir {
	if root == "" {
		root = "."
	}
	return &Dir{fs: fs, root: root}
}

// Exists reports whether name is present in the directory.
func (d *Dir) Exists(name string) bool {
	_, err := d.fs.Stat(path.Join(d.root, name))
	return err == nil
}

// ReadJSON decodes name into v.
func (d *Dir) ReadJSON(name string, v any) error {
	data, err := util.ReadFile(d.fs, path.Join(d.root, name))
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// ReadFile returns the raw content of name.
func (d *Dir) ReadFile(name string) ([]byte, error) {
	return util.ReadFile(d.fs, path.Join(d.root, name))
}

// Stage is an in-progress set of output files.
type Stage struct {
	dir   *Dir
	tmp   string
	files []string
	done  bool
}

// Begin creates a staging directory for a new run.
func (d *Dir) Begin() (*Stage, error) {
	if err := d.fs.MkdirAll(d.root, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	tmp, err := util.TempDir(d.fs, d.root, ".stage-")
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Stage{dir: d, tmp: tmp}, nil
}

// WriteJSON stages v as indented JSON. Non-ASCII text and HTML characters
// are written as-is.
func (s *Stage) WriteJSON(name string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return s.WriteFile(name, buf.Bytes())
}

// WriteFile stages raw bytes under name.
func (s *Stage) WriteFile(name string, data []byte) error {
	if s.done {
		return fmt.Errorf("stage already finished")
	}
	if err := util.WriteFile(s.dir.fs, path.Join(s.tmp, name), data, 0o644); err != nil {
		return fmt.Errorf("stage %s: %w", name, err)
	}
	s.files = append(s.files, name)
	return nil
}

// Files returns the names staged so far.
func (s *Stage) Files() []string {
	return append([]string(nil), s.files...)
}

// Commit moves every staged file into the data directory, replacing files
// of an earlier run, and removes the staging directory. The staging
// directory is removed even when a move fails.
func (s *Stage) Commit() error {
	if s.done {
		return fmt.Errorf("stage already finished")
	}
	s.done = true
	for _, name := range s.files {
		from := path.Join(s.tmp, name)
		to := path.Join(s.dir.root, name)
		if err := s.dir.fs.Rename(from, to); err != nil {
			_ = util.RemoveAll(s.dir.fs, s.tmp)
			return fmt.Errorf("publish %s: %w", name, err)
		}
	}
	if err := util.RemoveAll(s.dir.fs, s.tmp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove staging dir: %w", err)
	}
	return nil
}

// Abort discards the staged files. It is a no-op after Commit, so it can be
// deferred unconditionally.
func (s *Stage) Abort() error {
	if s.done {
		return nil
	}
	s.done = true
	return util.RemoveAll(s.dir.fs, s.tmp)
}
