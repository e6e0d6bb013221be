package chat

import (
	"strings"
	"sync"
)

// User is a person (or service) seen on a network
type User struct {
	mu    sync.RWMutex
	name  string
	ident string
	host  string
}

// NewUser creates a user with a sanitized name
func NewUser(name string) *User {
	return &User{name: SanitizeName(name)}
}

// Name returns the current nickname
func (u *User) Name() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.name
}

// Ident returns the ident (user) part of the mask
func (u *User) Ident() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.ident
}

// Hostname returns the host part of the mask
func (u *User) Hostname() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.host
}

// SetMask records ident and host when they are known. Empty values keep
// what was stored before.
func (u *User) SetMask(ident, host string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if ident != "" {
		u.ident = ident
	}
	if host != "" {
		u.host = host
	}
}

func (u *User) rename(name string) {
	u.mu.Lock()
	u.name = SanitizeName(name)
	u.mu.Unlock()
}

// SanitizeName keeps letters, digits and the punctuation allowed in IRC
// nicknames. Membership prefixes such as @ and + are stripped.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case strings.ContainsRune("-_[]{}\\|^`", r):
			b.WriteRune(r)
		}
	}
	return b.String()
}
