package irc

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ergochat/irc-go/ircevent"
	"github.com/matt0x6f/irc-relay/internal/chat"
)

type handler func(s *session, r *Record) error

func defaultHandlers() map[string]handler {
	return map[string]handler{
		"PING":         handlePing,
		"PONG":         handlePong,
		"ERROR":        handleError,
		"CAP":          handleCap,
		"AUTHENTICATE": handleAuthenticate,

		ircevent.RPL_WELCOME:          handleWelcome,
		ircevent.RPL_ISUPPORT:         handleISupport,
		ircevent.ERR_ERRONEUSNICKNAME: handleNickRefused,
		ircevent.ERR_NICKNAMEINUSE:    handleNickRefused,
		ircevent.ERR_NICKCOLLISION:    handleNickRefused,
		ircevent.ERR_UNAVAILRESOURCE:  handleNickRefused,

		ircevent.RPL_LOGGEDIN:    handleLoggedIn,
		ircevent.RPL_SASLSUCCESS: handleSASLSuccess,
		ircevent.ERR_NICKLOCKED:  handleSASLFailure,
		ircevent.ERR_SASLFAIL:    handleSASLFailure,
		ircevent.ERR_SASLTOOLONG: handleSASLFailure,
		ircevent.ERR_SASLABORTED: handleSASLFailure,
		ircevent.ERR_SASLALREADY: handleSASLFailure,
		ircevent.RPL_SASLMECHS:   handleSASLMechs,

		"PRIVMSG":             handleChat,
		"NOTICE":              handleChat,
		"JOIN":                handleChat,
		"PART":                handleChat,
		"AWAY":                handleChat,
		"KICK":                handleKick,
		"NICK":                handleNick,
		"QUIT":                handleQuit,
		"TOPIC":               handleTopic,
		ircevent.RPL_TOPIC:    handleTopicReply,
		ircevent.RPL_NAMREPLY: handleNames,
	}
}

func handlePing(s *session, r *Record) error {
	token := r.Param(0)
	if token == "" {
		token = s.server.Host
	}
	return s.send("PONG", token)
}

func handlePong(s *session, r *Record) error {
	s.client.log.Trace().Str("token", r.Trailing()).Msg("PONG received")
	return nil
}

func handleError(s *session, r *Record) error {
	return fmt.Errorf("%w: %s", ErrServerError, r.Trailing())
}

// handleCap covers LS, ACK, NAK, NEW and DEL. Params are
// <target> <subcommand> [*] <list>.
func handleCap(s *session, r *Record) error {
	if len(r.Params) < 3 {
		return nil
	}
	sub := strings.ToUpper(r.Params[1])
	list := r.Trailing()
	more := len(r.Params) >= 4 && r.Params[2] == "*"
	log := s.client.log.Debug().Str("subcommand", sub).Str("caps", list)

	switch sub {
	case "LS":
		log.Msg("Capabilities offered")
		s.caps.offer(list)
		if more {
			return nil
		}
		s.caps.lsDone = true
		return s.requestCaps()
	case "NEW":
		log.Msg("Capabilities added")
		s.caps.offer(list)
		return s.requestCaps()
	case "DEL":
		log.Msg("Capabilities removed")
		s.caps.withdraw(list)
		return nil
	case "ACK":
		log.Msg("Capabilities acknowledged")
		added := s.caps.acknowledge(list)
		if s.caps.pending > 0 {
			s.caps.pending--
		}
		for _, name := range added {
			if name == "sasl" && s.client.cfg.SASL.Mechanism != "" && !s.registered.Load() {
				return s.startSASL()
			}
		}
		if s.caps.pending == 0 && s.sasl == nil {
			return s.endNegotiation()
		}
	case "NAK":
		log.Msg("Capabilities refused")
		s.caps.refuse(list)
		if s.caps.pending > 0 {
			s.caps.pending--
		}
		if s.caps.pending == 0 && s.sasl == nil {
			return s.endNegotiation()
		}
	}
	return nil
}

func handleAuthenticate(s *session, r *Record) error {
	return s.authenticate(r.Param(0))
}

func handleLoggedIn(s *session, r *Record) error {
	s.client.log.Info().Str("account", r.Param(2)).Msg("Logged in")
	return nil
}

func handleSASLSuccess(s *session, r *Record) error {
	return s.finishSASL(true, "")
}

func handleSASLFailure(s *session, r *Record) error {
	return s.finishSASL(false, r.Trailing())
}

func handleSASLMechs(s *session, r *Record) error {
	s.client.log.Debug().Str("mechanisms", r.Param(1)).Msg("Server SASL mechanisms")
	return nil
}

func handleWelcome(s *session, r *Record) error {
	if nick := r.Param(0); nick != "" {
		s.client.setNick(nick)
	}
	if !s.caps.ended {
		// registration completed without CAP support
		s.caps.ended = true
		s.client.setState(StateRegistering)
	}
	return nil
}

// handleISupport reads the tokens the engine depends on
func handleISupport(s *session, r *Record) error {
	if len(r.Params) < 3 {
		return nil
	}
	for _, token := range r.Params[1 : len(r.Params)-1] {
		key, value, _ := strings.Cut(token, "=")
		switch strings.ToUpper(key) {
		case "NICKLEN":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				s.client.mu.Lock()
				s.client.nickLen = n
				s.client.mu.Unlock()
			}
		case "CHANTYPES":
			if value != "" {
				s.client.host.Directory().SetChanTypes(value)
			}
		case "NETWORK":
			s.client.log.Debug().Str("network", value).Msg("Server network name")
		}
	}
	return nil
}

// handleNickRefused picks another nickname while registering. After
// registration a refused NICK just keeps the current one.
func handleNickRefused(s *session, r *Record) error {
	c := s.client
	if s.registered.Load() {
		c.log.Warn().Str("nick", r.Param(1)).Msg("Nickname change refused")
		return nil
	}
	c.mu.Lock()
	current, maxLen := c.nick, c.nickLen
	c.mu.Unlock()
	next := AlternateNick(current, c.cfg.Nick, c.cfg.AltNick, maxLen)
	c.log.Info().Str("refused", current).Str("next", next).Str("numeric", r.Command).Msg("Nickname refused")
	c.setNick(next)
	return s.send("NICK", next)
}

func handleChat(s *session, r *Record) error {
	c := s.client
	m, verdict := c.classifier.Classify(r)
	switch verdict {
	case Emit:
		c.host.Deliver(m)
	case CTCP:
		return s.replyCTCP(r.Nick, m.Content)
	}
	return nil
}

func handleKick(s *session, r *Record) error {
	c := s.client
	dir := c.host.Directory()
	ch, ok := dir.LookupChannel(r.Param(0))
	if !ok {
		return nil
	}
	victim := r.Param(1)
	if chat.Fold(victim) == chat.Fold(c.Nick()) {
		ch.SetJoined(false)
		c.log.Warn().Str("channel", ch.Name).Str("by", r.Nick).Str("reason", r.Param(2)).Msg("Kicked from channel")
		return nil
	}
	if u, ok := dir.LookupUser(victim); ok {
		ch.RemoveUser(u)
	}
	return nil
}

func handleNick(s *session, r *Record) error {
	c := s.client
	newNick := r.Param(0)
	if newNick == "" {
		return nil
	}
	if chat.Fold(r.Nick) == chat.Fold(c.Nick()) {
		c.setNick(newNick)
	}
	c.host.Directory().RenameUser(r.Nick, newNick)
	return nil
}

func handleQuit(s *session, r *Record) error {
	s.client.host.Directory().ForgetUser(r.Nick)
	return nil
}

func handleTopic(s *session, r *Record) error {
	if ch, ok := s.client.host.Directory().LookupChannel(r.Param(0)); ok {
		ch.SetTopic(r.Param(1))
	}
	return nil
}

func handleTopicReply(s *session, r *Record) error {
	if ch, ok := s.client.host.Directory().LookupChannel(r.Param(1)); ok {
		ch.SetTopic(r.Trailing())
	}
	return nil
}

// handleNames fills the user list from RPL_NAMREPLY:
// <me> <symbol> <channel> :<names>
func handleNames(s *session, r *Record) error {
	if len(r.Params) < 4 {
		return nil
	}
	dir := s.client.host.Directory()
	ch, ok := dir.LookupChannel(r.Params[2])
	if !ok {
		return nil
	}
	for _, name := range strings.Fields(r.Params[3]) {
		// userhost-in-names
		name, _, _ = strings.Cut(strings.TrimLeft(name, "~&@%+"), "!")
		if u := dir.User(name); u != nil {
			ch.AddUser(u)
		}
	}
	return nil
}

// replyCTCP answers VERSION, PING, TIME and CLIENTINFO by NOTICE
func (s *session) replyCTCP(from, text string) error {
	req, ok := parseCTCP(text)
	if !ok || from == "" {
		return nil
	}
	var response string
	switch req.command {
	case "VERSION":
		response = s.client.cfg.Version
	case "PING":
		response = req.args
		if response == "" {
			response = strconv.FormatInt(time.Now().Unix(), 10)
		}
	case "TIME":
		response = time.Now().Format(time.RFC1123Z)
	case "CLIENTINFO":
		response = "ACTION CLIENTINFO PING TIME VERSION"
	default:
		return nil
	}
	s.client.log.Debug().Str("from", from).Str("command", req.command).Msg("Handled CTCP request")
	return s.send("NOTICE", from, ctcpDelim+req.command+" "+response+ctcpDelim)
}
