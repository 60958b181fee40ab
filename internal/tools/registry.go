// Package tools holds the reference tool implementations that execute
// through the Dispatcher: a shell command runner and a generic MCP tool
// bridge. Every tool here refuses to run unless dispatcher.IsDispatchActive
// reports the call came through the dispatch path.
package tools

import (
	"sync"

	"github.com/perlica/perlica/internal/dispatcher"
)

// Registry is a simple in-memory implementation of dispatcher.Registry.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]dispatcher.Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]dispatcher.Tool)}
}

func (r *Registry) Register(toolID string, tool dispatcher.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[toolID] = tool
}

func (r *Registry) Get(toolID string) (dispatcher.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[toolID]
	return t, ok
}

var _ dispatcher.Registry = (*Registry)(nil)
