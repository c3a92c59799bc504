package websocket

import "sync"

// Registry is the table of open connections keyed by connection id. It is the
// only shared mutable structure in the gateway.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Connection)}
}

func (r *Registry) Add(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.id] = c
}

// Remove deletes id and reports whether it was present. Removing an absent id
// is a no-op, so racing close paths are safe.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; !ok {
		return false
	}
	delete(r.conns, id)
	return true
}

func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// Contains reports whether c itself (not just its id) is still registered.
func (r *Registry) Contains(c *Connection) bool {
	current, ok := r.Get(c.id)
	return ok && current == c
}

// ForEach calls fn for every connection registered at the time of the call.
// fn runs without the registry lock held, so it may remove connections.
func (r *Registry) ForEach(fn func(*Connection)) {
	r.mu.RLock()
	snapshot := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		snapshot = append(snapshot, c)
	}
	r.mu.RUnlock()

	for _, c := range snapshot {
		fn(c)
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
