package irc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ergochat/irc-go/ircevent"
	"github.com/matt0x6f/irc-relay/internal/chat"
	"github.com/matt0x6f/irc-relay/internal/constants"
	"github.com/matt0x6f/irc-relay/internal/events"
	"golang.org/x/time/rate"
)

// session is one transport connection to one server
type session struct {
	client  *Client
	server  *chat.Server
	conn    net.Conn
	reader  *LineReader
	writer  io.Writer
	limiter *rate.Limiter
	ctx     context.Context

	writeMu    sync.Mutex
	registered atomic.Bool
	done       chan struct{}

	// read goroutine only
	caps     *capSet
	sasl     mechanism
	saslBuf  strings.Builder
	deadline time.Time
}

// session runs one connection until it fails or is closed
func (c *Client) session(ctx context.Context, server *chat.Server) (err error) {
	c.setState(StateConnecting)
	conn, err := c.dial(ctx, server)
	if err != nil {
		return err
	}

	sessCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(sessCtx, func() { conn.Close() })
	s := &session{
		client:   c,
		server:   server,
		conn:     conn,
		reader:   NewLineReader(conn, c.enc),
		writer:   NewLineWriter(conn, c.enc),
		limiter:  c.newLimiter(),
		ctx:      sessCtx,
		done:     make(chan struct{}),
		caps:     newCapSet(append(append([]string(nil), DefaultCapabilities...), c.cfg.Capabilities...)),
		deadline: time.Now().Add(constants.RegistrationTimeout),
	}

	c.mu.Lock()
	c.sess = s
	c.nick = c.cfg.Nick
	c.mu.Unlock()

	server.MarkConnected(time.Now())
	c.log.Info().Str("server", server.String()).Msg("Connected")
	c.bus.EmitSync(events.Event{
		Type:    events.EventConnect,
		Network: c.host.Name(),
		Server:  server.String(),
		Source:  events.EventSourceIRC,
	})

	defer func() {
		c.ping.Stop()
		stop()
		cancel()
		conn.Close()

		c.mu.Lock()
		c.sess = nil
		c.mu.Unlock()
		s.registered.Store(false)
		server.MarkDisconnected(time.Now())
		c.host.Directory().Reset()
		c.metrics.SetConnected(c.host.Name(), false)
		close(s.done)

		c.log.Info().Err(err).Str("server", server.String()).Msg("Disconnected")
		c.bus.EmitSync(events.Event{
			Type:    events.EventDisconnect,
			Network: c.host.Name(),
			Server:  server.String(),
			Err:     err,
			Source:  events.EventSourceIRC,
		})
	}()

	if err := s.login(); err != nil {
		return err
	}
	return s.readLoop()
}

// login starts capability negotiation and sends the registration lines.
// The server holds registration until CAP END.
func (s *session) login() error {
	c := s.client
	c.setState(StateNegotiating)
	if err := s.send("CAP", "LS", "302"); err != nil {
		return err
	}
	if s.server.Password != "" {
		if err := s.send("PASS", s.server.Password); err != nil {
			return err
		}
	}
	if err := s.send("NICK", c.cfg.Nick); err != nil {
		return err
	}
	return s.send("USER", c.cfg.User, "0", "*", c.cfg.RealName)
}

func (s *session) readLoop() error {
	c := s.client
	for {
		if err := s.conn.SetReadDeadline(s.readDeadline()); err != nil {
			return err
		}
		line, err := s.reader.ReadLine()
		if err != nil {
			if !s.registered.Load() && errors.Is(err, os.ErrDeadlineExceeded) {
				return fmt.Errorf("%w: %v", ErrRegistrationTimeout, err)
			}
			return err
		}
		if line == "" {
			continue
		}
		c.metrics.LineReceived(c.host.Name())

		rec, err := ParseLine(line)
		if err != nil {
			c.metrics.LineUnparsed(c.host.Name())
			c.log.Info().Err(err).Str("line", line).Msg("Ignoring unparsed line")
			continue
		}
		if err := s.dispatch(rec); err != nil {
			return err
		}
	}
}

func (s *session) readDeadline() time.Time {
	if !s.registered.Load() {
		return s.deadline
	}
	if !s.client.cfg.PingEnabled {
		return time.Time{}
	}
	return time.Now().Add(2*s.client.cfg.PingInterval + constants.WriteTimeout)
}

func (s *session) dispatch(rec *Record) error {
	c := s.client
	h, ok := c.handlers[rec.Command]
	if !ok {
		c.log.Trace().Str("command", rec.Command).Msg("Unhandled command")
	} else if err := h(s, rec); err != nil {
		return err
	}
	if !s.registered.Load() && c.registrationSignal(rec.Command) {
		return s.onRegistered()
	}
	return nil
}

func (c *Client) registrationSignal(command string) bool {
	if command == c.cfg.RegisteredOn {
		return true
	}
	// servers without a MOTD send 422 instead of 376
	return c.cfg.RegisteredOn == ircevent.RPL_ENDOFMOTD && command == ircevent.ERR_NOMOTD
}

func (s *session) onRegistered() error {
	c := s.client
	s.registered.Store(true)
	s.caps.ended = true
	c.mu.Lock()
	c.backoff.Reset()
	c.mu.Unlock()
	c.setState(StateRegistered)
	c.metrics.SetConnected(c.host.Name(), true)

	if c.cfg.PingEnabled {
		c.ping.StartRecurring(c.cfg.PingInterval)
	}
	c.log.Info().Str("server", s.server.String()).Str("nick", c.Nick()).Msg("Registered")
	c.bus.EmitSync(events.Event{
		Type:    events.EventRegistered,
		Network: c.host.Name(),
		Server:  s.server.String(),
		Source:  events.EventSourceIRC,
	})

	for _, ch := range c.host.Directory().Channels() {
		if !ch.AutoJoin() {
			continue
		}
		if err := s.join(ch.Name, ch.Key()); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) join(channel, key string) error {
	if key != "" {
		return s.send("JOIN", channel, key)
	}
	return s.send("JOIN", channel)
}

// send writes one line. Chat lines wait for the flood limiter.
func (s *session) send(command string, params ...string) error {
	line, err := EncodeLine(command, params...)
	if err != nil {
		return err
	}
	if command == "PRIVMSG" || command == "NOTICE" {
		if err := s.limiter.Wait(s.ctx); err != nil {
			return err
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(constants.WriteTimeout)); err != nil {
		return err
	}
	if _, err := io.WriteString(s.writer, line); err != nil {
		return err
	}
	if command != "PASS" && command != "AUTHENTICATE" {
		s.client.log.Trace().Str("line", strings.TrimRight(line, "\r\n")).Msg("Sent")
	}
	return nil
}

// endNegotiation sends CAP END once, unless registration already happened
func (s *session) endNegotiation() error {
	if s.caps.ended {
		return nil
	}
	s.caps.ended = true
	s.client.setState(StateRegistering)
	return s.send("CAP", "END")
}

func (s *session) requestCaps() error {
	c := s.client
	withSASL := c.cfg.SASL.Mechanism != "" && !s.registered.Load()
	if withSASL && !s.caps.supportsMechanism(c.cfg.SASL.Mechanism) {
		if _, offered := s.caps.offered["sasl"]; offered {
			c.log.Warn().Str("mechanism", c.cfg.SASL.Mechanism).Msg("Server does not offer the configured SASL mechanism")
		}
		withSASL = false
	}
	req := s.caps.requestable(withSASL)
	if len(req) == 0 {
		if s.caps.pending == 0 && s.sasl == nil {
			return s.endNegotiation()
		}
		return nil
	}
	s.caps.pending++
	return s.send("CAP", "REQ", strings.Join(req, " "))
}

func (s *session) startSASL() error {
	c := s.client
	mech, err := newMechanism(c.cfg.SASL.Mechanism, c.cfg.SASL.Username, c.cfg.SASL.Password)
	if err != nil {
		return s.endNegotiation()
	}
	s.sasl = mech
	c.setState(StateAuthenticating)
	c.log.Info().Str("mechanism", mech.Name()).Msg("Starting SASL authentication")
	return s.send("AUTHENTICATE", mech.Name())
}

func (s *session) finishSASL(success bool, reason string) error {
	c := s.client
	if s.sasl == nil {
		return nil
	}
	if success {
		c.log.Info().Str("mechanism", s.sasl.Name()).Msg("SASL authentication succeeded")
	} else {
		c.log.Warn().Str("mechanism", s.sasl.Name()).Str("reason", reason).Msg("SASL authentication failed")
	}
	s.sasl = nil
	s.saslBuf.Reset()
	if s.caps.pending > 0 {
		return nil
	}
	return s.endNegotiation()
}

func (s *session) abortSASL(reason string) error {
	if err := s.send("AUTHENTICATE", "*"); err != nil {
		return err
	}
	return s.finishSASL(false, reason)
}

// authenticate feeds one AUTHENTICATE payload to the mechanism.
// Payloads of exactly one chunk continue on the next line.
func (s *session) authenticate(payload string) error {
	if s.sasl == nil {
		return nil
	}
	if payload != "+" {
		s.saslBuf.WriteString(payload)
		if len(payload) == authenticateChunk {
			return nil
		}
		payload = s.saslBuf.String()
		s.saslBuf.Reset()
	}
	challenge, err := decodeAuthenticate(payload)
	if err != nil {
		return s.abortSASL("undecodable challenge")
	}
	response, err := s.sasl.Step(challenge)
	if err != nil {
		return s.abortSASL(err.Error())
	}
	for _, chunk := range encodeAuthenticate(response) {
		if err := s.send("AUTHENTICATE", chunk); err != nil {
			return err
		}
	}
	return nil
}
