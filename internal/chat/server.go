package chat

import (
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ConnectionRecord is one entry of a server's connection history. A zero
// Disconnected time means the connection is still open.
type ConnectionRecord struct {
	Connected    time.Time
	Disconnected time.Time
}

// Server is one candidate endpoint of a network.
type Server struct {
	Host     string
	Port     int
	TLS      bool
	Password string

	mu        sync.RWMutex
	enabled   bool
	connected bool
	history   []ConnectionRecord
}

// NewServer creates an enabled server. The host is trimmed and lower-cased.
func NewServer(host string, port int, tls bool, password string) *Server {
	return &Server{
		Host:     strings.ToLower(strings.TrimSpace(host)),
		Port:     port,
		TLS:      tls,
		Password: password,
		enabled:  true,
	}
}

// Address returns host:port suitable for dialing
func (s *Server) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (s *Server) String() string {
	if s.TLS {
		return s.Address() + " (tls)"
	}
	return s.Address()
}

// Enabled reports whether the server may be selected
func (s *Server) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// SetEnabled changes the enabled flag
func (s *Server) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

// Connected reports whether a socket to this server is open
func (s *Server) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// MarkConnected records a connect in the history
func (s *Server) MarkConnected(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	s.history = append(s.history, ConnectionRecord{Connected: at})
}

// MarkDisconnected closes the open history entry, if any
func (s *Server) MarkDisconnected(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return
	}
	s.connected = false
	if n := len(s.history); n > 0 && s.history[n-1].Disconnected.IsZero() {
		s.history[n-1].Disconnected = at
	}
}

// History returns a copy of the connection history, oldest first
func (s *Server) History() []ConnectionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ConnectionRecord, len(s.history))
	copy(out, s.history)
	return out
}
