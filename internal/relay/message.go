// Package relay implements the cross-network message bus: the Message
// model, Binds with their filter chains, the Bind registry and the Router.
package relay

import (
	"slices"
	"time"

	"github.com/matt0x6f/irc-relay/internal/chat"
	"github.com/oklog/ulid/v2"
)

// Kind is a classification tag on a Message
type Kind string

const (
	KindMessage Kind = "message"
	KindNotice  Kind = "notice"
	KindAction  Kind = "action"
	KindJoin    Kind = "join"
	KindPart    Kind = "part"
	KindAway    Kind = "away"
	KindPublic  Kind = "public"
	KindPrivate Kind = "private"
	KindUnknown Kind = "unknown"
)

// Message is one inbound chat event. It is a value: transforms receive a
// copy and return a new Message.
type Message struct {
	ID      ulid.ULID
	Network string

	// Channel is set for public events, User for private ones
	Channel *chat.Channel
	User    *chat.User

	Actor   *chat.User
	Nick    string
	Content string
	Command string
	Kinds   []Kind
	Time    time.Time

	// Set by the Router once a Bind relays the message
	Bind     *Bind
	Response string
}

// NewMessage stamps a message with an ID and the current time
func NewMessage(network string, command string, kinds ...Kind) Message {
	now := time.Now()
	return Message{
		ID:      ulid.Make(),
		Network: network,
		Command: command,
		Kinds:   kinds,
		Time:    now,
	}
}

// Is reports whether the message carries kind k
func (m Message) Is(k Kind) bool {
	return slices.Contains(m.Kinds, k)
}

// Public reports whether the message targets a channel
func (m Message) Public() bool {
	return m.Channel != nil
}

// ChannelName returns the target channel name or ""
func (m Message) ChannelName() string {
	if m.Channel == nil {
		return ""
	}
	return m.Channel.Name
}

// Clone returns a copy that shares no slices with m
func (m Message) Clone() Message {
	m.Kinds = slices.Clone(m.Kinds)
	return m
}
