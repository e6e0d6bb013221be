// Package chat holds the per-network state the relay tracks: servers,
// channels and users.
package chat

import (
	"strings"
	"sync"
)

// DefaultChanTypes are the channel prefixes assumed until the server
// advertises CHANTYPES
const DefaultChanTypes = "#&"

// Directory caches the channels and users of one network by folded name.
type Directory struct {
	mu        sync.RWMutex
	channels  map[string]*Channel
	order     []*Channel
	users     map[string]*User
	chanTypes string
}

// NewDirectory creates an empty directory
func NewDirectory() *Directory {
	return &Directory{
		channels:  make(map[string]*Channel),
		users:     make(map[string]*User),
		chanTypes: DefaultChanTypes,
	}
}

// Fold maps a name onto its RFC 1459 case-insensitive key
func Fold(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '[':
			return '{'
		case ']':
			return '}'
		case '\\':
			return '|'
		case '~':
			return '^'
		}
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, name)
}

// SetChanTypes replaces the channel prefix set
func (d *Directory) SetChanTypes(types string) {
	if types == "" {
		return
	}
	d.mu.Lock()
	d.chanTypes = types
	d.mu.Unlock()
}

// IsChannelName reports whether name starts with a channel prefix
func (d *Directory) IsChannelName(name string) bool {
	if name == "" {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return strings.IndexByte(d.chanTypes, name[0]) >= 0
}

// Channel returns the channel named name, creating it on first reference
func (d *Directory) Channel(name string) *Channel {
	key := Fold(name)
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.channels[key]; ok {
		return ch
	}
	ch := NewChannel(name)
	d.channels[key] = ch
	d.order = append(d.order, ch)
	return ch
}

// LookupChannel returns a known channel without creating it
func (d *Directory) LookupChannel(name string) (*Channel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch, ok := d.channels[Fold(name)]
	return ch, ok
}

// Channels returns every known channel in creation order
func (d *Directory) Channels() []*Channel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Channel, len(d.order))
	copy(out, d.order)
	return out
}

// User returns the user named name, creating it on first reference. An
// empty name after sanitizing yields nil.
func (d *Directory) User(name string) *User {
	clean := SanitizeName(name)
	if clean == "" {
		return nil
	}
	key := Fold(clean)
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.users[key]; ok {
		return u
	}
	u := NewUser(clean)
	d.users[key] = u
	return u
}

// LookupUser returns a known user without creating it
func (d *Directory) LookupUser(name string) (*User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[Fold(SanitizeName(name))]
	return u, ok
}

// RenameUser moves a user to a new nickname, keeping channel membership
func (d *Directory) RenameUser(oldName, newName string) *User {
	d.mu.Lock()
	defer d.mu.Unlock()
	oldKey := Fold(SanitizeName(oldName))
	u, ok := d.users[oldKey]
	if !ok {
		return nil
	}
	delete(d.users, oldKey)
	u.rename(newName)
	d.users[Fold(u.Name())] = u
	return u
}

// ForgetUser removes a user from every channel and from the cache
func (d *Directory) ForgetUser(name string) {
	d.mu.Lock()
	key := Fold(SanitizeName(name))
	u, ok := d.users[key]
	if ok {
		delete(d.users, key)
	}
	channels := make([]*Channel, len(d.order))
	copy(channels, d.order)
	d.mu.Unlock()

	if !ok {
		return
	}
	for _, ch := range channels {
		ch.RemoveUser(u)
	}
}

// Reset marks every channel as not joined. Used when a connection ends.
func (d *Directory) Reset() {
	for _, ch := range d.Channels() {
		ch.SetJoined(false)
	}
}
