package irc

import (
	"strings"

	"github.com/matt0x6f/irc-relay/internal/chat"
	"github.com/matt0x6f/irc-relay/internal/relay"
	"github.com/rs/zerolog"
)

const ctcpDelim = "\x01"

// Verdict says what to do with a classified record
type Verdict int

const (
	// Emit hands the message to the host for routing
	Emit Verdict = iota
	// Drop discards the record
	Drop
	// CTCP diverts the record to the CTCP reply path
	CTCP
)

// Classifier turns chat-bearing records into relay messages, keeping the
// directory's membership up to date on the way
type Classifier struct {
	network string
	dir     *chat.Directory
	self    func() string
	log     zerolog.Logger
}

// NewClassifier creates a classifier for one network. self returns our
// current nickname.
func NewClassifier(network string, dir *chat.Directory, self func() string, log zerolog.Logger) *Classifier {
	return &Classifier{network: network, dir: dir, self: self, log: log}
}

// Classify builds the relay message for r
func (c *Classifier) Classify(r *Record) (relay.Message, Verdict) {
	switch r.Command {
	case "PRIVMSG", "NOTICE":
		return c.chat(r)
	case "JOIN", "PART":
		return c.membership(r)
	case "AWAY":
		return c.away(r)
	}
	m := relay.NewMessage(c.network, r.Command, relay.KindUnknown)
	m.Nick = r.Nick
	m.Content = r.Trailing()
	c.log.Debug().Str("command", r.Command).Msg("Unknown message kind")
	return m, Emit
}

func (c *Classifier) isSelf(nick string) bool {
	return nick != "" && chat.Fold(nick) == chat.Fold(c.self())
}

func (c *Classifier) actor(r *Record) *chat.User {
	u := c.dir.User(r.Nick)
	if u != nil && (r.Ident != "" || r.Host != "") {
		u.SetMask(r.Ident, r.Host)
	}
	return u
}

func (c *Classifier) chat(r *Record) (relay.Message, Verdict) {
	if len(r.Params) < 2 {
		c.log.Debug().Str("line", r.Raw).Msg("Dropping message without target or text")
		return relay.Message{}, Drop
	}
	target, text := r.Params[0], r.Params[1]

	m := relay.NewMessage(c.network, r.Command)
	m.Nick = r.Nick
	m.Content = text

	ctcp, isCTCP := parseCTCP(text)
	if isCTCP && ctcp.command == "ACTION" && r.Command == "PRIVMSG" {
		m.Kinds = append(m.Kinds, relay.KindAction)
		m.Content = ctcp.args
	} else if r.Command == "NOTICE" {
		m.Kinds = append(m.Kinds, relay.KindNotice)
	} else {
		m.Kinds = append(m.Kinds, relay.KindMessage)
	}

	if c.dir.IsChannelName(target) {
		ch, ok := c.dir.LookupChannel(target)
		if !ok || !ch.Joined() {
			c.log.Info().Str("channel", target).Str("command", r.Command).Msg("Dropping event for unknown channel")
			return relay.Message{}, Drop
		}
		if isCTCP && ctcp.command != "ACTION" {
			c.log.Debug().Str("channel", target).Str("ctcp", ctcp.command).Msg("Ignoring channel CTCP")
			return relay.Message{}, Drop
		}
		m.Channel = ch
		m.Actor = c.actor(r)
		m.Kinds = append(m.Kinds, relay.KindPublic)
		return m, Emit
	}

	if r.Nick == "" {
		c.log.Debug().Str("host", r.Host).Msg("Dropping server notice")
		return relay.Message{}, Drop
	}
	m.User = c.actor(r)
	m.Actor = m.User
	m.Kinds = append(m.Kinds, relay.KindPrivate)
	if isCTCP && ctcp.command != "ACTION" {
		if r.Command == "NOTICE" {
			// replies to our own requests
			return relay.Message{}, Drop
		}
		m.Content = text
		return m, CTCP
	}
	return m, Emit
}

// membership handles JOIN and PART on a lazily created channel. Our own
// JOIN or PART flips the joined flag and is not relayed.
func (c *Classifier) membership(r *Record) (relay.Message, Verdict) {
	name := r.Param(0)
	if name == "" || r.Nick == "" {
		return relay.Message{}, Drop
	}
	ch := c.dir.Channel(name)
	join := r.Command == "JOIN"

	if c.isSelf(r.Nick) {
		ch.SetJoined(join)
		c.log.Info().Str("channel", ch.Name).Bool("joined", join).Msg("Channel membership changed")
		return relay.Message{}, Drop
	}

	u := c.actor(r)
	if u == nil {
		return relay.Message{}, Drop
	}
	kind := relay.KindJoin
	if join {
		ch.AddUser(u)
	} else {
		ch.RemoveUser(u)
		kind = relay.KindPart
	}
	if !ch.Joined() {
		return relay.Message{}, Drop
	}

	m := relay.NewMessage(c.network, r.Command, kind, relay.KindPublic)
	m.Channel = ch
	m.Actor = u
	m.Nick = r.Nick
	if !join {
		m.Content = r.Param(1)
	}
	return m, Emit
}

func (c *Classifier) away(r *Record) (relay.Message, Verdict) {
	u := c.actor(r)
	if u == nil {
		return relay.Message{}, Drop
	}
	m := relay.NewMessage(c.network, r.Command, relay.KindAway, relay.KindPrivate)
	m.User = u
	m.Actor = u
	m.Nick = r.Nick
	m.Content = r.Param(0)
	return m, Emit
}

type ctcpRequest struct {
	command string
	args    string
}

// parseCTCP splits "\x01CMD args\x01". The closing delimiter is optional.
func parseCTCP(text string) (ctcpRequest, bool) {
	if !strings.HasPrefix(text, ctcpDelim) {
		return ctcpRequest{}, false
	}
	body := strings.TrimSuffix(text[1:], ctcpDelim)
	cmd, args, _ := strings.Cut(body, " ")
	if cmd == "" {
		return ctcpRequest{}, false
	}
	return ctcpRequest{command: strings.ToUpper(cmd), args: args}, true
}
