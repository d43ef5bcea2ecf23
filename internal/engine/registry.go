// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package engine

import (
	"fmt"
	"sync"
)

// Registry is a bounded, name-keyed collection of running Handlers. A timer
// callback identifies its Handler directly, via the *Handler captured in
// its own closure — the registry exists only so an application can
// enumerate or look up running handlers by name, not so timers can find
// them.
type Registry struct {
	mu       sync.Mutex
	max      int
	handlers map[string]*Handler
}

// NewRegistry returns a Registry that rejects registration once it holds
// max handlers.
func NewRegistry(max int) *Registry {
	return &Registry{max: max, handlers: make(map[string]*Handler, max)}
}

// Register adds h under name. It is append-only under the construction
// lock: once registered, a handler is never silently replaced.
func (r *Registry) Register(name string, h *Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("registry: handler %q already registered", name)
	}
	if len(r.handlers) >= r.max {
		return fmt.Errorf("registry: at capacity (%d handlers)", r.max)
	}
	r.handlers[name] = h
	return nil
}

// Get looks up a previously registered handler by name.
func (r *Registry) Get(name string) (*Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Len reports how many handlers are currently registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}
