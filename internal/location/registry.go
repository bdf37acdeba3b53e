package location

import (
	"sync"
	"sync/atomic"
)

// Registration pairs a listener with the executor it was added with.
type Registration struct {
	Listener Listener
	Executor Executor
}

// Registry is a copy-on-write list of registrations. Writers serialize on mu
// and publish a fresh slice; readers load the current slice without locking
// and may keep iterating it after it has been replaced.
type Registry struct {
	mu   sync.Mutex
	regs atomic.Pointer[[]Registration]
}

// Add appends a registration. Adding the same listener again, with the same
// or a different executor, produces an additional registration.
func (r *Registry) Add(l Listener, e Executor) error {
	if l == nil {
		return ErrNilListener
	}
	if e == nil {
		return ErrNilExecutor
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.Snapshot()
	next := make([]Registration, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, Registration{Listener: l, Executor: e})
	r.regs.Store(&next)
	return nil
}

// Remove drops every registration of l and reports how many there were.
func (r *Registry) Remove(l Listener) int {
	if l == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.Snapshot()
	next := make([]Registration, 0, len(cur))
	for _, reg := range cur {
		if !sameListener(reg.Listener, l) {
			next = append(next, reg)
		}
	}
	removed := len(cur) - len(next)
	if removed > 0 {
		r.regs.Store(&next)
	}
	return removed
}

// Snapshot returns the current registrations. The slice must not be modified.
func (r *Registry) Snapshot() []Registration {
	p := r.regs.Load()
	if p == nil {
		return nil
	}
	return *p
}

func (r *Registry) Len() int {
	return len(r.Snapshot())
}
