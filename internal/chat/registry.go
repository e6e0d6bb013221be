package chat

import (
	"strings"
	"sync"
)

// ServerRegistry is the ordered list of endpoints for one network. The
// rotation cursor is only advanced by the owning network's connect path.
type ServerRegistry struct {
	mu      sync.RWMutex
	servers []*Server
	cursor  int
	current *Server

	// OnDuplicate is called when AddServer rejects a host already present
	OnDuplicate func(host string)
}

// NewServerRegistry creates an empty registry
func NewServerRegistry() *ServerRegistry {
	return &ServerRegistry{}
}

// AddServer appends s unless its host is already registered. Duplicates are
// reported through OnDuplicate and leave the registry unchanged.
func (r *ServerRegistry) AddServer(s *Server) bool {
	r.mu.Lock()
	for _, existing := range r.servers {
		if existing.Host == s.Host {
			r.mu.Unlock()
			if r.OnDuplicate != nil {
				r.OnDuplicate(s.Host)
			}
			return false
		}
	}
	r.servers = append(r.servers, s)
	r.mu.Unlock()
	return true
}

// Has reports whether host is registered
func (r *ServerRegistry) Has(host string) bool {
	return r.Get(host) != nil
}

// Get returns the server with the given host, or nil
func (r *ServerRegistry) Get(host string) *Server {
	host = strings.ToLower(strings.TrimSpace(host))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.servers {
		if s.Host == host {
			return s
		}
	}
	return nil
}

// ActiveServer selects a server. A valid index returns that server directly.
// Any other index (use -1) takes the next server in round-robin order. When
// the selected server is disabled the scan continues forward, wrapping, to
// the next enabled one. Nil is returned when no server is enabled.
func (r *ServerRegistry) ActiveServer(index int) *Server {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.servers)
	if n == 0 {
		r.current = nil
		return nil
	}

	start := r.cursor
	if index >= 0 && index < n {
		start = index
	}
	for i := 0; i < n; i++ {
		pos := (start + i) % n
		if s := r.servers[pos]; s.Enabled() {
			r.cursor = (pos + 1) % n
			r.current = s
			return s
		}
	}
	r.current = nil
	return nil
}

// Next is ActiveServer(-1)
func (r *ServerRegistry) Next() *Server {
	return r.ActiveServer(-1)
}

// Current returns the server last returned by ActiveServer
func (r *ServerRegistry) Current() *Server {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Usable reports whether at least one server is enabled
func (r *ServerRegistry) Usable() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.servers {
		if s.Enabled() {
			return true
		}
	}
	return false
}

// EnableAll re-enables every server
func (r *ServerRegistry) EnableAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.servers {
		s.SetEnabled(true)
	}
}

// Servers returns the registered servers in order
func (r *ServerRegistry) Servers() []*Server {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Server, len(r.servers))
	copy(out, r.servers)
	return out
}

// Len returns the number of registered servers
func (r *ServerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.servers)
}
