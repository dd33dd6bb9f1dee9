package module

import (
	"sort"
	"sync"

	"github.com/adaptyst/adaptyst/pkg/amod"
)

type apiError struct {
	code amod.ErrorCode
	msg  string
}

// Registry assigns module IDs and resolves them for API callbacks. Modules
// are added once and looked up from many goroutines.
type Registry struct {
	mu      sync.RWMutex
	next    amod.ID
	modules map[amod.ID]*Module
	errs    map[amod.ID]apiError
}

// NewRegistry creates an empty registry. IDs start at 1.
func NewRegistry() *Registry {
	return &Registry{
		next:    1,
		modules: map[amod.ID]*Module{},
		errs:    map[amod.ID]apiError{},
	}
}

// Add registers m and assigns its ID.
func (r *Registry) Add(m *Module) amod.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.id = r.next
	r.next++
	r.modules[m.id] = m
	return m.id
}

// Get resolves an ID.
func (r *Registry) Get(id amod.ID) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[id]
	return m, ok
}

// Remove drops a module from the session. Its last error stays queryable.
func (r *Registry) Remove(id amod.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.modules, id)
}

// All returns the registered modules ordered by ID.
func (r *Registry) All() []*Module {
	r.mu.RLock()
	out := make([]*Module, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, m)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.modules)
}

// SetError records the outcome of a failed API call for id. The ID does not
// have to be registered.
func (r *Registry) SetError(id amod.ID, code amod.ErrorCode, msg string) {
	if msg == "" {
		msg = code.String()
	}
	r.mu.Lock()
	r.errs[id] = apiError{code: code, msg: msg}
	r.mu.Unlock()
}

// LastError returns the last recorded API error for id, or ErrNone.
func (r *Registry) LastError(id amod.ID) (amod.ErrorCode, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.errs[id]
	if !ok {
		return amod.ErrNone, ""
	}
	return e.code, e.msg
}
