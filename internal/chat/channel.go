package chat

import "sync"

// Channel is a chat channel on one network together with what we know
// about who is in it.
type Channel struct {
	Name string

	mu     sync.RWMutex
	topic  string
	key    string
	modes  string
	joined bool
	users  []*User

	autoJoin bool
}

// NewChannel creates a channel we have not joined yet
func NewChannel(name string) *Channel {
	return &Channel{Name: name}
}

// Topic returns the cached topic
func (c *Channel) Topic() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topic
}

// SetTopic caches the topic
func (c *Channel) SetTopic(topic string) {
	c.mu.Lock()
	c.topic = topic
	c.mu.Unlock()
}

// Key returns the channel key sent with JOIN
func (c *Channel) Key() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.key
}

// SetKey sets the channel key
func (c *Channel) SetKey(key string) {
	c.mu.Lock()
	c.key = key
	c.mu.Unlock()
}

// Modes returns the configured mode string
func (c *Channel) Modes() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.modes
}

// SetModes sets the mode string
func (c *Channel) SetModes(modes string) {
	c.mu.Lock()
	c.modes = modes
	c.mu.Unlock()
}

// AutoJoin reports whether the channel is joined after registration
func (c *Channel) AutoJoin() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.autoJoin
}

// SetAutoJoin marks the channel for joining after registration
func (c *Channel) SetAutoJoin(on bool) {
	c.mu.Lock()
	c.autoJoin = on
	c.mu.Unlock()
}

// Joined reports whether we are in the channel
func (c *Channel) Joined() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.joined
}

// SetJoined updates our membership. Leaving clears the user list.
func (c *Channel) SetJoined(joined bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined = joined
	if !joined {
		c.users = nil
	}
}

// AddUser records u as present. Adding a user twice is a no-op.
func (c *Channel) AddUser(u *User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.users {
		if existing == u {
			return
		}
	}
	c.users = append(c.users, u)
}

// RemoveUser drops u from the user list and reports whether it was present
func (c *Channel) RemoveUser(u *User) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.users {
		if existing == u {
			c.users = append(c.users[:i:i], c.users[i+1:]...)
			return true
		}
	}
	return false
}

// HasUser reports whether u is present
func (c *Channel) HasUser(u *User) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, existing := range c.users {
		if existing == u {
			return true
		}
	}
	return false
}

// Users returns the present users in arrival order
func (c *Channel) Users() []*User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*User, len(c.users))
	copy(out, c.users)
	return out
}
