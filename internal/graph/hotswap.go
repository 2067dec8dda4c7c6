package graph

import (
	"sync"
)

// HotSwapGraph is a thread-safe wrapper that allows swapping the underlying
// graph while the mount keeps serving. Readers see either the old or the new
// projection, never a mix.
type HotSwapGraph struct {
	mu      sync.RWMutex
	current Graph
	swaps   int
}

func NewHotSwapGraph(initial Graph) *HotSwapGraph {
	return &HotSwapGraph{current: initial}
}

// Swap atomically replaces the current graph.
func (h *HotSwapGraph) Swap(newGraph Graph) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = newGraph
	h.swaps++
}

// Swaps returns how many times the graph was replaced.
func (h *HotSwapGraph) Swaps() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.swaps
}

// GetNode delegates to current graph.
func (h *HotSwapGraph) GetNode(id string) (*Node, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.GetNode(id)
}

// ListChildren delegates to current graph.
func (h *HotSwapGraph) ListChildren(id string) ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.ListChildren(id)
}

// ReadContent delegates to current graph.
func (h *HotSwapGraph) ReadContent(id string, buf []byte, offset int64) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.ReadContent(id, buf, offset)
}
