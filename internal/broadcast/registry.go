package broadcast

import (
	"sync"

	"github.com/pscheid92/tournamentfeed/internal/adapter/metrics"
)

// Registry is the set of connections currently eligible for broadcasts.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]Connection
	metrics *metrics.HubMetrics
}

func NewRegistry(m *metrics.HubMetrics) *Registry {
	return &Registry{
		conns:   make(map[string]Connection),
		metrics: m,
	}
}

// Register adds conn. Registering the same connection twice is a no-op and
// returns false.
func (r *Registry) Register(conn Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn.ID()]; ok {
		return false
	}
	r.conns[conn.ID()] = conn
	r.metrics.Connections.Set(float64(len(r.conns)))
	return true
}

// Unregister removes conn if present and reports whether it was.
func (r *Registry) Unregister(conn Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn.ID()]; !ok {
		return false
	}
	delete(r.conns, conn.ID())
	r.metrics.Connections.Set(float64(len(r.conns)))
	return true
}

// ForEach calls fn for a snapshot of the registered connections, so fn may
// unregister the connection it was given.
func (r *Registry) ForEach(fn func(Connection)) {
	for _, conn := range r.snapshot() {
		fn(conn)
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll unregisters every connection and shuts each down with reason.
func (r *Registry) CloseAll(reason string) int {
	r.mu.Lock()
	conns := make([]Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	clear(r.conns)
	r.metrics.Connections.Set(0)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn.Shutdown(reason)
		}()
	}
	wg.Wait()
	return len(conns)
}

func (r *Registry) snapshot() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	return conns
}
