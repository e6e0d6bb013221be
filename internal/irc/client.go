package irc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ergochat/irc-go/ircutils"
	"github.com/matt0x6f/irc-relay/internal/chat"
	"github.com/matt0x6f/irc-relay/internal/constants"
	"github.com/matt0x6f/irc-relay/internal/events"
	"github.com/matt0x6f/irc-relay/internal/metric"
	"github.com/matt0x6f/irc-relay/internal/relay"
	"github.com/matt0x6f/irc-relay/internal/timer"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding"
	"golang.org/x/time/rate"
)

// maxTextBytes bounds the text of one outgoing PRIVMSG or NOTICE
const maxTextBytes = 400

// minPingInterval is the floor applied to configured keep-alive intervals
var minPingInterval = constants.MinPingInterval

// ErrAlreadyRunning is returned by Run when the client is already running
var ErrAlreadyRunning = errors.New("client already running")

// State is the lifecycle stage of a connection
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateNegotiating
	StateAuthenticating
	StateRegistering
	StateRegistered
	StateDisconnecting
	StateReconnectPending
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateNegotiating:
		return "negotiating"
	case StateAuthenticating:
		return "authenticating"
	case StateRegistering:
		return "registering"
	case StateRegistered:
		return "registered"
	case StateDisconnecting:
		return "disconnecting"
	case StateReconnectPending:
		return "reconnect_pending"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// SASLConfig selects a SASL mechanism. An empty Mechanism disables SASL.
type SASLConfig struct {
	Mechanism string
	Username  string
	Password  string
}

// DialFunc opens the transport to a server
type DialFunc func(ctx context.Context, server *chat.Server) (net.Conn, error)

// Config holds the login identity and protocol settings of a connection
type Config struct {
	Nick     string
	AltNick  string
	User     string
	RealName string

	Encoding     string
	Capabilities []string
	SASL         SASLConfig

	// RegisteredOn is the numeric that confirms registration
	RegisteredOn string

	PingEnabled  bool
	PingInterval time.Duration

	// ReconnectAttempts is how many timeouts are retried on one server
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration

	QuitMessage string
	Version     string

	// MessageRate limits outgoing PRIVMSG and NOTICE lines per second;
	// zero means unlimited
	MessageRate  float64
	MessageBurst int

	TLSConfig *tls.Config
	Dial      DialFunc
}

func (cfg *Config) applyDefaults() {
	if cfg.User == "" {
		cfg.User = cfg.Nick
	}
	if cfg.RealName == "" {
		cfg.RealName = cfg.Nick
	}
	if cfg.RegisteredOn == "" {
		cfg.RegisteredOn = "376"
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = constants.DefaultPingInterval
	}
	cfg.PingInterval = min(max(cfg.PingInterval, minPingInterval), constants.MaxPingInterval)
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = constants.DefaultReconnectAttempts
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = constants.DefaultReconnectDelay
	}
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = constants.MaxReconnectDelay
	}
	if cfg.QuitMessage == "" {
		cfg.QuitMessage = "Relay shutting down"
	}
	if cfg.Version == "" {
		cfg.Version = "relaybot"
	}
	if cfg.MessageBurst <= 0 {
		cfg.MessageBurst = 1
	}
}

// Host is the network a client connects on behalf of
type Host interface {
	Name() string
	Directory() *chat.Directory
	// NextServer advances the rotation; nil means nothing is usable
	NextServer() *chat.Server
	// Unavailable is called when NextServer returned nil
	Unavailable()
	// Deliver receives every classified inbound message
	Deliver(m relay.Message)
}

// Client is the protocol engine for one network. Run drives it through
// connect, negotiate, register and reconnect until Disconnect.
type Client struct {
	cfg        Config
	host       Host
	bus        *events.EventBus
	log        zerolog.Logger
	metrics    *metric.Metrics
	enc        encoding.Encoding
	classifier *Classifier
	handlers   map[string]handler
	ping       *timer.Timer

	mu          sync.Mutex
	state       State
	nick        string
	nickLen     int
	sess        *session
	backoff     Backoff
	running     bool
	intentional bool
	jump        bool
	wake        chan struct{}
}

// New creates an idle client. bus and metrics may be nil.
func New(cfg Config, host Host, bus *events.EventBus, log zerolog.Logger, metrics *metric.Metrics) (*Client, error) {
	if strings.TrimSpace(cfg.Nick) == "" {
		return nil, errors.New("nickname is required")
	}
	cfg.applyDefaults()
	enc, err := LookupEncoding(cfg.Encoding)
	if err != nil {
		return nil, err
	}
	if cfg.SASL.Mechanism != "" {
		if _, err := newMechanism(cfg.SASL.Mechanism, cfg.SASL.Username, cfg.SASL.Password); err != nil {
			return nil, err
		}
	}

	c := &Client{
		cfg:      cfg,
		host:     host,
		bus:      bus,
		log:      log,
		metrics:  metrics,
		enc:      enc,
		handlers: defaultHandlers(),
		nick:     cfg.Nick,
		nickLen:  DefaultNickLen,
		backoff:  Backoff{Initial: cfg.ReconnectDelay, Max: cfg.MaxReconnectDelay},
		wake:     make(chan struct{}, 1),
	}
	c.classifier = NewClassifier(host.Name(), host.Directory(), c.Nick, log)
	c.ping = timer.New(c.keepAlive)
	return c, nil
}

// Nick returns the nickname currently in use
func (c *Client) Nick() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nick
}

func (c *Client) setNick(nick string) {
	c.mu.Lock()
	c.nick = nick
	c.mu.Unlock()
}

// State returns the lifecycle stage
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev != s {
		c.log.Debug().Str("from", prev.String()).Str("to", s.String()).Msg("Connection state changed")
	}
}

// Connected reports whether a session is registered
func (c *Client) Connected() bool {
	s := c.current()
	return s != nil && s.registered.Load()
}

// Server returns the server of the live session, or nil
func (c *Client) Server() *chat.Server {
	if s := c.current(); s != nil {
		return s.server
	}
	return nil
}

func (c *Client) current() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

func (c *Client) signalWake() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Wake interrupts a reconnect wait or an idle wait for a usable server
func (c *Client) Wake() {
	c.signalWake()
}

// Run connects and keeps the client connected until ctx ends or
// Disconnect is called. It returns nil after a requested disconnect.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.running = true
	c.intentional = false
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		c.setState(StateIdle)
	}()

	var server *chat.Server
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.stopping() {
			return nil
		}

		if server == nil || !server.Enabled() {
			server = c.host.NextServer()
			if server == nil {
				c.log.Warn().Msg("No usable server")
				c.host.Unavailable()
				c.setState(StateIdle)
				if err := c.sleep(ctx, 0); err != nil {
					return err
				}
				continue
			}
		}

		err := c.session(ctx, server)
		if c.stopping() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		kind := ClassifyFailure(err)
		c.mu.Lock()
		delay := c.backoff.Next()
		attempts := c.backoff.Attempts()
		jumpRequested := c.jump
		c.jump = false
		c.mu.Unlock()
		c.metrics.Reconnect(c.host.Name(), string(kind))

		decision := Decide(kind, attempts, c.cfg.ReconnectAttempts)
		if jumpRequested {
			decision = Jump
		}
		c.log.Warn().Err(err).
			Str("server", server.String()).
			Str("kind", string(kind)).
			Int("attempts", attempts).
			Str("decision", decision.String()).
			Msg("Connection ended")

		if decision == Jump {
			if !jumpRequested {
				server.SetEnabled(false)
				c.log.Warn().Str("server", server.String()).Msg("Server disabled")
			}
			c.mu.Lock()
			c.backoff.Reset()
			c.mu.Unlock()
			server = nil
			continue
		}

		c.setState(StateReconnectPending)
		c.log.Info().Dur("delay", delay).Str("server", server.String()).Msg("Reconnecting")
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// sleep waits for d, ctx or Wake. d of zero waits only for ctx or Wake.
func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	var fire <-chan time.Time
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		fire = t.C
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.wake:
	case <-fire:
	}
	return nil
}

func (c *Client) stopping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.intentional
}

// Disconnect sends QUIT and waits briefly for the server to close the
// socket. Run returns once the session is gone.
func (c *Client) Disconnect(reason string) {
	if reason == "" {
		reason = c.cfg.QuitMessage
	}
	c.mu.Lock()
	c.intentional = true
	s := c.sess
	c.mu.Unlock()
	c.signalWake()
	if s == nil {
		return
	}

	c.setState(StateDisconnecting)
	if err := s.send("QUIT", reason); err != nil {
		c.log.Debug().Err(err).Msg("Failed to send QUIT")
	}
	c.bus.EmitSync(events.Event{
		Type:    events.EventQuit,
		Network: c.host.Name(),
		Server:  s.server.String(),
		Context: reason,
		Source:  events.EventSourceIRC,
	})

	select {
	case <-s.done:
	case <-time.After(constants.QuitDrainDelay):
		s.conn.Close()
		<-s.done
	}
}

// Jump abandons the current server and moves on to the next enabled one
func (c *Client) Jump() {
	c.mu.Lock()
	c.jump = true
	s := c.sess
	c.mu.Unlock()
	if s != nil {
		s.conn.Close()
		return
	}
	c.signalWake()
}

// Say sends text to a channel or nick
func (c *Client) Say(target, text string) error {
	return c.sendText("PRIVMSG", target, text)
}

// Notice sends a NOTICE to a channel or nick
func (c *Client) Notice(target, text string) error {
	return c.sendText("NOTICE", target, text)
}

// Join joins a channel, with an optional key
func (c *Client) Join(channel, key string) error {
	s := c.current()
	if s == nil || !s.registered.Load() {
		return ErrNotConnected
	}
	return s.join(channel, key)
}

func (c *Client) sendText(command, target, text string) error {
	s := c.current()
	if s == nil || !s.registered.Load() {
		return ErrNotConnected
	}
	for _, line := range splitText(text, maxTextBytes) {
		if err := s.send(command, target, line); err != nil {
			return err
		}
	}
	return nil
}

// splitText breaks text on newlines and into chunks of at most limit bytes
// without cutting a UTF-8 sequence
func splitText(text string, limit int) []string {
	var out []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		for line != "" {
			chunk := ircutils.TruncateUTF8Safe(line, limit)
			if chunk == "" {
				chunk = line
			}
			out = append(out, chunk)
			line = line[len(chunk):]
		}
	}
	return out
}

func (c *Client) keepAlive() {
	s := c.current()
	if s == nil || !s.registered.Load() {
		return
	}
	if err := s.send("PING", fmt.Sprintf("%d", time.Now().Unix())); err != nil {
		c.log.Debug().Err(err).Msg("Keep-alive PING failed")
	}
}

func (c *Client) newLimiter() *rate.Limiter {
	if c.cfg.MessageRate <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(c.cfg.MessageRate), c.cfg.MessageBurst)
}

func (c *Client) dial(ctx context.Context, server *chat.Server) (net.Conn, error) {
	if c.cfg.Dial != nil {
		return c.cfg.Dial(ctx, server)
	}
	dialer := &net.Dialer{Timeout: constants.DialTimeout, KeepAlive: 30 * time.Second}
	if !server.TLS {
		return dialer.DialContext(ctx, "tcp", server.Address())
	}
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if c.cfg.TLSConfig != nil {
		tlsConfig = c.cfg.TLSConfig.Clone()
	}
	if tlsConfig.ServerName == "" {
		tlsConfig.ServerName = server.Host
	}
	td := &tls.Dialer{NetDialer: dialer, Config: tlsConfig}
	return td.DialContext(ctx, "tcp", server.Address())
}
