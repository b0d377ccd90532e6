package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// HandlerFunc executes one job attempt against its raw JSON payload.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Registry resolves job names to handlers. Registration normally happens
// once at startup, but the registry tolerates concurrent use so embedding
// programs can register late.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// RegisterDefinition installs a typed definition under its name. The typed
// handler is wrapped with a JSON decode of the payload into T; an empty
// payload skips the decode and hands the handler T's zero value.
//
// Package-level rather than a method: Go has no generic methods on a
// non-generic receiver.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	decode := func(ctx context.Context, payload []byte) error {
		var v T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &v); err != nil {
				return fmt.Errorf("unmarshal payload for job %q: %w", def.Name, err)
			}
		}
		return def.Handler(ctx, v)
	}

	r.mu.Lock()
	r.handlers[def.Name] = decode
	r.mu.Unlock()
}

// Get looks up the handler registered under name.
func (r *Registry) Get(name string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered job names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
