package realm

import "sync"

// registry tracks open handles and serializes open and migrate attempts per
// canonical path within the process. An entry lives while an attempt holds or
// waits for it, or while a handle is open.
type registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	attempt sync.Mutex // held for a whole open, migrate or delete
	waiters int        // attempts holding or waiting for attempt; guarded by registry.mu
	handles int        // guarded by registry.mu
}

var handles = &registry{entries: make(map[string]*entry)}

// lock acquires the attempt lock for path and returns its release.
func (r *registry) lock(path string) func() {
	r.mu.Lock()
	e, ok := r.entries[path]
	if !ok {
		e = &entry{}
		r.entries[path] = e
	}
	e.waiters++
	r.mu.Unlock()

	e.attempt.Lock()
	return func() {
		e.attempt.Unlock()
		r.mu.Lock()
		e.waiters--
		r.forget(path, e)
		r.mu.Unlock()
	}
}

// open returns the handle count of path. The caller holds the attempt lock.
func (r *registry) open(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[path].handles
}

// add counts a new handle. The caller holds the attempt lock.
func (r *registry) add(path string) {
	r.mu.Lock()
	r.entries[path].handles++
	r.mu.Unlock()
}

func (r *registry) release(path string) {
	r.mu.Lock()
	if e, ok := r.entries[path]; ok && e.handles > 0 {
		e.handles--
		r.forget(path, e)
	}
	r.mu.Unlock()
}

// forget drops an unused entry. r.mu must be held.
func (r *registry) forget(path string, e *entry) {
	if e.waiters == 0 && e.handles == 0 && r.entries[path] == e {
		delete(r.entries, path)
	}
}

// OpenHandles returns the number of open handles for the store at path.
func OpenHandles(path string) int {
	p, err := canonicalPath(path)
	if err != nil {
		return 0
	}
	handles.mu.Lock()
	defer handles.mu.Unlock()
	if e, ok := handles.entries[p]; ok {
		return e.handles
	}
	return 0
}
