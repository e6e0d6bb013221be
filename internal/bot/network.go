package bot

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matt0x6f/irc-relay/internal/chat"
	"github.com/matt0x6f/irc-relay/internal/config"
	"github.com/matt0x6f/irc-relay/internal/constants"
	"github.com/matt0x6f/irc-relay/internal/events"
	"github.com/matt0x6f/irc-relay/internal/irc"
	"github.com/matt0x6f/irc-relay/internal/metric"
	"github.com/matt0x6f/irc-relay/internal/relay"
	"github.com/matt0x6f/irc-relay/internal/timer"
	"github.com/rs/zerolog"
)

var (
	// ErrUnsupportedProtocol is returned for network types without an adapter
	ErrUnsupportedProtocol = errors.New("unsupported network protocol")

	// ErrUnknownServer is returned when a host is not in the network's registry
	ErrUnknownServer = errors.New("unknown server")
)

// maxDisableShift bounds the auto-disable doubling
const maxDisableShift = 20

// engine is the protocol connection a Network drives
type engine interface {
	Run(ctx context.Context) error
	Disconnect(reason string)
	Jump()
	Wake()
	Connected() bool
	Server() *chat.Server
	Nick() string
	Say(target, text string) error
	Join(channel, key string) error
}

// Network owns one chat network: its servers, its directory of channels
// and users, and the connection engine that serves it.
type Network struct {
	name    string
	cfg     config.Network
	servers *chat.ServerRegistry
	dir     *chat.Directory
	engine  engine
	binds   *relay.Registry
	router  *relay.Router
	bus     *events.EventBus
	log     zerolog.Logger
	metrics *metric.Metrics

	disableBase time.Duration
	autoEnable  *timer.Timer
	sub         events.Subscription

	mu           sync.Mutex
	enabled      bool
	disableCount int
	running      bool
	cancel       context.CancelFunc
	done         chan struct{}
}

// NetworkOptions carries the collaborators a Network is built with
type NetworkOptions struct {
	Binds   *relay.Registry
	Bus     *events.EventBus
	Logger  zerolog.Logger
	Metrics *metric.Metrics
	Version string

	// Dial replaces the TCP/TLS dialer
	Dial irc.DialFunc

	// AutoDisableDelay is the first auto-disable backoff interval
	AutoDisableDelay time.Duration
}

// NewNetwork builds a network from its configuration. Only the irc type has
// a connection engine.
func NewNetwork(cfg config.Network, opts NetworkOptions) (*Network, error) {
	switch cfg.Type {
	case config.TypeIRC, "":
	case config.TypeSlack, config.TypeHipChat:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, cfg.Type)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProtocol, cfg.Type)
	}

	if opts.Bus == nil {
		opts.Bus = events.NewEventBus()
	}
	n := &Network{
		name:        cfg.Name,
		cfg:         cfg,
		servers:     chat.NewServerRegistry(),
		dir:         chat.NewDirectory(),
		binds:       opts.Binds,
		bus:         opts.Bus,
		log:         opts.Logger.With().Str("network", cfg.Name).Logger(),
		metrics:     opts.Metrics,
		disableBase: opts.AutoDisableDelay,
		enabled:     cfg.IsEnabled(),
	}
	if n.disableBase <= 0 {
		n.disableBase = constants.AutoDisableDelay
	}
	n.autoEnable = timer.New(n.reenable)

	for _, s := range cfg.Servers {
		server := chat.NewServer(s.Host, s.Port, s.TLS, s.Password)
		server.SetEnabled(s.IsEnabled())
		n.AddServer(server)
	}
	for _, c := range cfg.Channels {
		ch := n.dir.Channel(c.Name)
		ch.SetAutoJoin(true)
		ch.SetKey(c.JoinKey())
		ch.SetModes(c.Modes)
	}

	clientCfg, err := clientConfig(cfg, opts)
	if err != nil {
		return nil, err
	}
	client, err := irc.New(clientCfg, n, opts.Bus, n.log, opts.Metrics)
	if err != nil {
		return nil, fmt.Errorf("network %s: %w", cfg.Name, err)
	}
	n.engine = client

	n.sub = opts.Bus.Subscribe(events.EventRegistered, events.SubscriberFunc(n.onRegistered))
	return n, nil
}

func clientConfig(cfg config.Network, opts NetworkOptions) (irc.Config, error) {
	c := irc.Config{
		Nick:     cfg.Nickname,
		AltNick:  cfg.AltNickname,
		User:     cfg.Username,
		RealName: cfg.Realname,
		Encoding: cfg.Encoding,

		Capabilities: cfg.Capabilities,
		SASL: irc.SASLConfig{
			Mechanism: cfg.SASL.Mechanism,
			Username:  cfg.SASL.Username,
			Password:  cfg.SASL.Password,
		},
		RegisteredOn: cfg.RegisteredOn,

		PingEnabled:       cfg.Ping.IsEnabled(),
		PingInterval:      cfg.Ping.Delay,
		ReconnectAttempts: cfg.ReconnectAttempts,
		QuitMessage:       cfg.QuitMessage,
		Version:           opts.Version,

		MessageRate:  cfg.Rate.PerSecond,
		MessageBurst: cfg.Rate.Burst,

		Dial: opts.Dial,
	}
	if cfg.ClientCert != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return c, fmt.Errorf("network %s: failed to load client certificate: %w", cfg.Name, err)
		}
		c.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
	}
	return c, nil
}

// Name returns the configured network name
func (n *Network) Name() string { return n.name }

// Directory returns the network's channels and users
func (n *Network) Directory() *chat.Directory { return n.dir }

// Servers returns the server registry
func (n *Network) Servers() *chat.ServerRegistry { return n.servers }

// Nick returns the nickname in use
func (n *Network) Nick() string { return n.engine.Nick() }

// AddServer registers a server. A duplicate host is reported on the bus
// and ignored.
func (n *Network) AddServer(s *chat.Server) bool {
	if n.servers.AddServer(s) {
		return true
	}
	n.log.Warn().Str("server", s.String()).Msg("Duplicate server ignored")
	n.bus.Emit(events.Event{
		Type:    events.EventError,
		Network: n.name,
		Server:  s.String(),
		Err:     fmt.Errorf("duplicate server %s", s.Host),
		Context: "duplicate_server",
		Source:  events.EventSourceSystem,
	})
	return false
}

// Enabled reports whether the network may connect
func (n *Network) Enabled() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.enabled
}

// Connected reports whether the network is registered with a server
func (n *Network) Connected() bool {
	return n.engine.Connected()
}

// NextServer advances the rotation. A disabled network has no server.
func (n *Network) NextServer() *chat.Server {
	if !n.Enabled() {
		return nil
	}
	return n.servers.Next()
}

// Unavailable disables the network after the engine found no usable
// server, and schedules a retry whose delay doubles on every recurrence.
func (n *Network) Unavailable() {
	n.mu.Lock()
	if !n.enabled && n.autoEnable.Active() {
		n.mu.Unlock()
		return
	}
	n.enabled = false
	n.disableCount++
	delay := n.disableBase << min(n.disableCount-1, maxDisableShift)
	count := n.disableCount
	n.mu.Unlock()

	n.autoEnable.Start(delay)
	n.log.Warn().Int("count", count).Dur("retry_in", delay).Msg("No usable server, network disabled")
	n.bus.Emit(events.Event{
		Type:    events.EventNetworkState,
		Network: n.name,
		Context: "disabled",
		Source:  events.EventSourceSystem,
	})
}

func (n *Network) reenable() {
	n.mu.Lock()
	n.enabled = true
	n.mu.Unlock()

	n.servers.EnableAll()
	n.log.Info().Msg("Network re-enabled")
	n.bus.Emit(events.Event{
		Type:    events.EventNetworkState,
		Network: n.name,
		Context: "enabled",
		Source:  events.EventSourceSystem,
	})
	n.engine.Wake()
}

// DisableCount returns how often the network disabled itself since its
// last registration
func (n *Network) DisableCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.disableCount
}

func (n *Network) onRegistered(e events.Event) {
	if e.Network != n.name {
		return
	}
	n.mu.Lock()
	n.disableCount = 0
	n.mu.Unlock()
	n.autoEnable.Stop()
}

// Deliver hands an inbound message to the router
func (n *Network) Deliver(m relay.Message) {
	if n.router == nil {
		return
	}
	n.router.Route(m)
}

// Connect starts the engine in the background. It enables the network and
// is a no-op while already running. Cancelling ctx quits the network the
// same way Disconnect does, so the servers still see a QUIT.
func (n *Network) Connect(ctx context.Context) {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return
	}
	n.enabled = true
	n.running = true
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	n.cancel = cancel
	done := make(chan struct{})
	n.done = done
	n.mu.Unlock()

	stopWatch := context.AfterFunc(ctx, func() { n.Disconnect("") })

	n.log.Info().Int("servers", n.servers.Len()).Msg("Connecting network")
	go func() {
		defer close(done)
		defer stopWatch()
		err := n.engine.Run(runCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			n.log.Warn().Err(err).Msg("Connection engine stopped")
		}
		n.mu.Lock()
		n.running = false
		n.mu.Unlock()
	}()
}

// Disconnect quits the network and waits for the engine to stop. Concurrent
// callers all wait; only the first sends QUIT. An empty reason uses the
// configured quit message.
func (n *Network) Disconnect(reason string) {
	n.mu.Lock()
	cancel, done := n.cancel, n.done
	n.cancel = nil
	n.mu.Unlock()
	n.autoEnable.Stop()
	if done == nil {
		return
	}

	if cancel != nil {
		n.engine.Disconnect(reason)
		cancel()
		n.log.Info().Msg("Network disconnected")
	}
	<-done
}

// Close disconnects and releases the bus subscription
func (n *Network) Close(reason string) {
	n.Disconnect(reason)
	n.bus.Unsubscribe(n.sub)
}

// DisableServer marks host unusable. When it is the server in use the
// network jumps to the next one.
func (n *Network) DisableServer(host string) error {
	s := n.servers.Get(host)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrUnknownServer, host)
	}
	s.SetEnabled(false)
	n.log.Info().Str("server", s.String()).Msg("Server disabled")
	if n.engine.Server() == s && s.Connected() {
		n.engine.Jump()
	}
	return nil
}

// EnableServer marks host usable again
func (n *Network) EnableServer(host string) error {
	s := n.servers.Get(host)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrUnknownServer, host)
	}
	s.SetEnabled(true)
	return nil
}

// Jump moves to the next enabled server
func (n *Network) Jump() {
	n.engine.Jump()
}

// Say sends text to a channel or nick
func (n *Network) Say(target, text string) error {
	return n.engine.Say(target, text)
}

// Join adds channel to the auto-join set and joins it now when connected
func (n *Network) Join(channel, key string) error {
	ch := n.dir.Channel(channel)
	ch.SetAutoJoin(true)
	ch.SetKey(key)
	if !n.Connected() {
		return nil
	}
	return n.engine.Join(ch.Name, key)
}

// Bind relays channel on this network to destination
func (n *Network) Bind(channel string, destination relay.Endpoint, opts relay.BindOptions) (*relay.Bind, error) {
	opts.Source = relay.Endpoint{Network: n.name, Channel: channel}
	opts.Destination = destination
	return n.binds.Bind(opts)
}
