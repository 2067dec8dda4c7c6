// Package graph holds the file-tree projection of the nomenclature that the
// NFS mount serves: one directory per tree node, one small file per field.
package graph

import (
	"errors"
	"io/fs"
	"strings"
	"sync"
	"time"
)

var ErrNotFound = errors.New("node not found")

// Node is the universal primitive.
// The Mode field explicitly declares whether this is a file or directory.
type Node struct {
	ID       string
	Mode     fs.FileMode // fs.ModeDir for directories, 0 for regular files
	ModTime  time.Time
	Data     []byte   // file content, nil for directories
	Children []string // child node IDs (directories only), in listing order
}

// ContentSize returns the byte length of this node's content.
func (n *Node) ContentSize() int64 {
	return int64(len(n.Data))
}

// Graph is the read interface the mount layer works against.
type Graph interface {
	GetNode(id string) (*Node, error)
	ListChildren(id string) ([]string, error)
	ReadContent(id string, buf []byte, offset int64) (int, error)
}

// MemoryStore is an in-memory Graph. It is built once and then only read.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	roots []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]*Node),
		roots: []string{},
	}
}

// AddRoot registers a node as a top-level root and adds it to the store.
func (s *MemoryStore) AddRoot(n *Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.nodes[n.ID]; !exists {
		s.roots = append(s.roots, n.ID)
	}
	s.nodes[n.ID] = n
}

// AddNode adds a non-root node to the store.
func (s *MemoryStore) AddNode(n *Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.ID] = n
}

// Len returns the number of nodes, files included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// GetNode implements Graph.
func (s *MemoryStore) GetNode(id string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[strings.TrimPrefix(id, "/")]
	if !ok {
		return nil, ErrNotFound
	}
	return n, nil
}

// ListChildren implements Graph.
func (s *MemoryStore) ListChildren(id string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id == "" || id == "/" {
		return s.roots, nil
	}
	n, ok := s.nodes[strings.TrimPrefix(id, "/")]
	if !ok {
		return nil, ErrNotFound
	}
	return n.Children, nil
}

// ReadContent implements Graph.
func (s *MemoryStore) ReadContent(id string, buf []byte, offset int64) (int, error) {
	node, err := s.GetNode(id)
	if err != nil {
		return 0, err
	}
	data := node.Data
	if offset >= int64(len(data)) {
		return 0, nil
	}
	return copy(buf, data[offset:]), nil
}
