package graph

import (
	"encoding/json"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/agentic-research/tarim/api"
	"github.com/agentic-research/tarim/internal/hierarchy"
)

const (
	dirMode  = fs.ModeDir | 0o555
	fileMode = fs.FileMode(0o444)
)

// DirName names the directory of a tree node: "<code>_<id>", or just the id
// for nodes without a code. The id keeps names unique among siblings.
func DirName(n *api.TreeNode) string {
	id := strconv.FormatInt(n.ID, 10)
	if n.NC == "" {
		return id
	}
	return strings.ReplaceAll(n.NC, "/", "-") + "_" + id
}

type projFrame struct {
	node   *api.TreeNode
	parent string // "" for top-level nodes
	crumbs [3][]string
}

// Project lays out a tree view as a file tree. Each node becomes a
// directory holding name_<lang>, info_<lang> and path_<lang> files, plus
// tax.json when the node carries tax data; child nodes follow as
// subdirectories in tree order. Empty info and path files are omitted.
func Project(tree []*api.TreeNode, modTime time.Time) *MemoryStore {
	s := NewMemoryStore()

	stack := make([]projFrame, 0, len(tree))
	for i := len(tree) - 1; i >= 0; i-- {
		stack = append(stack, projFrame{node: tree[i]})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := f.node

		id := DirName(n)
		if f.parent != "" {
			id = f.parent + "/" + id
		}
		dir := &Node{ID: id, Mode: dirMode, ModTime: modTime}

		var crumbs [3][]string
		for i, lang := range api.Languages {
			crumbs[i] = f.crumbs[i]
			if name := strings.TrimSpace(n.Name(lang)); name != "" {
				crumbs[i] = append(append([]string(nil), f.crumbs[i]...), name)
			}

			suffix := "_" + string(lang)
			addFile(s, dir, "name"+suffix, n.Name(lang), true, modTime)
			addFile(s, dir, "info"+suffix, n.Info(lang), false, modTime)
			addFile(s, dir, "path"+suffix, strings.Join(crumbs[i], hierarchy.PathSeparator), false, modTime)
		}
		if n.TaxInfo != nil {
			if data, err := json.MarshalIndent(n.TaxInfo, "", "  "); err == nil {
				addFile(s, dir, "tax.json", string(data), true, modTime)
			}
		}

		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, projFrame{node: n.Children[i], parent: id, crumbs: crumbs})
		}
		for _, c := range n.Children {
			dir.Children = append(dir.Children, id+"/"+DirName(c))
		}

		if f.parent == "" {
			s.AddRoot(dir)
		} else {
			s.AddNode(dir)
		}
	}
	return s
}

func addFile(s *MemoryStore, dir *Node, name, content string, always bool, modTime time.Time) {
	if content == "" && !always {
		return
	}
	data := []byte(content)
	if content != "" && !strings.HasSuffix(content, "\n") {
		data = append(data, '\n')
	}
	id := dir.ID + "/" + name
	s.AddNode(&Node{ID: id, Mode: fileMode, ModTime: modTime, Data: data})
	dir.Children = append(dir.Children, id)
}
