package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ppiankov/toolgate/internal/model"
)

// ConfirmFunc asks the calling human a yes/no question from inside a
// tool. The executor pre-wires it before Execute runs; tools may assume
// it is non-nil.
type ConfirmFunc func(ctx context.Context, question string) (bool, error)

// Security declares how dangerous a tool is. ConfirmRequired forces the
// write gate even when the level alone would not.
type Security struct {
	Level           model.SecurityLevel
	ConfirmRequired bool
}

// ToolContext carries per-call facilities into a tool.
type ToolContext struct {
	Call    model.CallContext
	Confirm ConfirmFunc
}

// Definition describes one callable tool.
type Definition struct {
	Name         string
	Description  string
	Security     Security
	DeclineError string
	Execute      func(ctx context.Context, args map[string]any, tc ToolContext) (model.ToolResult, error)
}

// Decline returns the message reported when a human blocks this tool.
func (d Definition) Decline() string {
	if d.DeclineError != "" {
		return d.DeclineError
	}
	return "cancelled by user"
}

// Registry holds tool definitions by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Definition)}
}

// Register adds a tool. Duplicate names and nil Execute are rejected.
func (r *Registry) Register(d Definition) error {
	if d.Name == "" {
		return errors.New("registry: tool needs a name")
	}
	if d.Execute == nil {
		return fmt.Errorf("registry: tool %s has no Execute", d.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[d.Name]; ok {
		return fmt.Errorf("registry: tool %s already registered", d.Name)
	}
	r.tools[d.Name] = d
	return nil
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.tools[name]
	return d, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
