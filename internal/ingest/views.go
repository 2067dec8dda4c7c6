package ingest

import (
	"fmt"

	"github.com/agentic-research/tarim/api"
	"github.com/agentic-research/tarim/internal/output"
)

// pick returns the first of names present in out.
func pick(out *output.Dir, names ...string) (string, error) {
	if out == nil {
		return "", ErrViewsMissing
	}
	for _, n := range names {
		if out.Exists(n) {
			return n, nil
		}
	}
	return "", ErrViewsMissing
}

// LoadFlat reads the flat view from out, preferring the tax-enriched file.
// It returns the name of the file it read.
func LoadFlat(out *output.Dir) ([]api.FlatEntry, string, error) {
	name, err := pick(out, output.FlatWithTaxFile, output.FlatFile)
	if err != nil {
		return nil, "", err
	}
	var flat []api.FlatEntry
	if err := out.ReadJSON(name, &flat); err != nil {
		return nil, name, fmt.Errorf("%w: %w", ErrViewsMissing, err)
	}
	return flat, name, nil
}

// LoadTree reads the tree view from out, preferring the tax-enriched file.
func LoadTree(out *output.Dir) ([]*api.TreeNode, string, error) {
	name, err := pick(out, output.TreeWithTaxFile, output.TreeFile)
	if err != nil {
		return nil, "", err
	}
	var tree []*api.TreeNode
	if err := out.ReadJSON(name, &tree); err != nil {
		return nil, name, fmt.Errorf("%w: %w", ErrViewsMissing, err)
	}
	return tree, name, nil
}
