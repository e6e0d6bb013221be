// Package bot assembles the relay: one Network per configured chat network,
// the shared Bind registry and the Router between them.
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/matt0x6f/irc-relay/internal/config"
	"github.com/matt0x6f/irc-relay/internal/events"
	"github.com/matt0x6f/irc-relay/internal/irc"
	"github.com/matt0x6f/irc-relay/internal/metric"
	"github.com/matt0x6f/irc-relay/internal/relay"
	"github.com/matt0x6f/irc-relay/internal/storage"
	"github.com/rs/zerolog"
)

// Options carries the collaborators of a Bot. Every field is optional.
type Options struct {
	Logger  zerolog.Logger
	Bus     *events.EventBus
	Metrics *metric.Metrics
	Journal *storage.Journal
	Version string

	// Dial replaces the TCP/TLS dialer of every network
	Dial irc.DialFunc

	// AutoDisableDelay overrides the first auto-disable backoff interval
	AutoDisableDelay time.Duration
}

// Bot is the root object: it owns every Network and the relay between them
type Bot struct {
	bus      *events.EventBus
	log      zerolog.Logger
	metrics  *metric.Metrics
	journal  *storage.Journal
	binds    *relay.Registry
	router   *relay.Router
	networks map[string]*Network
	order    []*Network
	subs     []events.Subscription

	mu      sync.Mutex
	started bool
}

// New builds networks and binds from cfg. Configuration problems are
// returned before any connection is attempted.
func New(cfg *config.Config, opts Options) (*Bot, error) {
	if opts.Bus == nil {
		opts.Bus = events.NewEventBus()
	}
	b := &Bot{
		bus:      opts.Bus,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		journal:  opts.Journal,
		networks: make(map[string]*Network),
	}
	b.binds = relay.NewRegistry(b.bus, b.log.With().Str("component", "binds").Logger(), b.metrics)

	routerOpts := []relay.RouterOption{relay.WithMetrics(b.metrics)}
	if b.journal != nil {
		routerOpts = append(routerOpts, relay.WithJournal(b.journal))
		for _, t := range []events.EventType{events.EventConnect, events.EventRegistered, events.EventDisconnect, events.EventQuit} {
			b.subs = append(b.subs, b.bus.Subscribe(t, b.journal))
		}
	}
	b.router = relay.NewRouter(b.binds, b, b.bus, b.log.With().Str("component", "router").Logger(), routerOpts...)

	netOpts := NetworkOptions{
		Binds:            b.binds,
		Bus:              b.bus,
		Logger:           b.log,
		Metrics:          b.metrics,
		Version:          opts.Version,
		Dial:             opts.Dial,
		AutoDisableDelay: opts.AutoDisableDelay,
	}
	for _, nc := range cfg.Networks {
		key := strings.ToLower(nc.Name)
		if _, dup := b.networks[key]; dup {
			return nil, fmt.Errorf("%w: duplicate network name %q", config.ErrInvalidConfig, nc.Name)
		}
		n, err := NewNetwork(nc, netOpts)
		if err != nil {
			return nil, err
		}
		n.router = b.router
		b.networks[key] = n
		b.order = append(b.order, n)
	}

	for i, bc := range cfg.Binds {
		if _, err := b.AddBind(bc); err != nil {
			return nil, fmt.Errorf("bind %d: %w", i+1, err)
		}
	}

	b.log.Info().Int("networks", len(b.order)).Int("binds", b.binds.Len()).Msg("Relay configured")
	return b, nil
}

// AddBind registers a bind described in configuration form
func (b *Bot) AddBind(bc config.Bind) (*relay.Bind, error) {
	opts := relay.BindOptions{
		Source:         relay.Endpoint{Network: bc.Source.Network, Channel: bc.Source.Channel},
		Destination:    relay.Endpoint{Network: bc.Destination.Network, Channel: bc.Destination.Channel},
		Active:         bc.IsActive(),
		Duplex:         bc.Duplex,
		Unrestricted:   bc.Unrestricted,
		Prefix:         bc.Prefix,
		PrefixSource:   bc.PrefixSource,
		InheritFilters: bc.InheritFilters,
	}
	// Endpoints take the network's configured spelling
	src, ok := b.Network(bc.Source.Network)
	if !ok {
		return nil, fmt.Errorf("%w: unknown network %q", relay.ErrInvalidBind, bc.Source.Network)
	}
	dst, ok := b.Network(bc.Destination.Network)
	if !ok {
		return nil, fmt.Errorf("%w: unknown network %q", relay.ErrInvalidBind, bc.Destination.Network)
	}
	opts.Source.Network = src.Name()
	opts.Destination.Network = dst.Name()

	for _, p := range bc.Reject {
		f, err := relay.MatchPattern(p)
		if err != nil {
			return nil, err
		}
		opts.Reject = append(opts.Reject, f)
	}
	for _, p := range bc.Accept {
		f, err := relay.MatchPattern(p)
		if err != nil {
			return nil, err
		}
		opts.Accept = append(opts.Accept, f)
	}
	return b.binds.Bind(opts)
}

// Start connects every enabled network
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return fmt.Errorf("relay already started")
	}
	b.started = true
	b.mu.Unlock()

	for _, n := range b.order {
		if !n.Enabled() {
			n.log.Info().Msg("Network disabled in configuration, not connecting")
			continue
		}
		n.Connect(ctx)
	}
	return nil
}

// Shutdown quits every network in parallel and waits for them to stop. A
// Bot is not restarted after Shutdown.
func (b *Bot) Shutdown(reason string) {
	b.log.Info().Str("reason", reason).Msg("Relay shutting down")

	var wg sync.WaitGroup
	for _, n := range b.order {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.Close(reason)
		}()
	}
	wg.Wait()

	for _, sub := range b.subs {
		b.bus.Unsubscribe(sub)
	}
	b.subs = nil
	b.log.Info().Msg("Relay shutdown complete")
}

// Network returns the network named name, case-insensitively
func (b *Bot) Network(name string) (*Network, bool) {
	n, ok := b.networks[strings.ToLower(name)]
	return n, ok
}

// Lookup resolves a router destination
func (b *Bot) Lookup(name string) (relay.Destination, bool) {
	n, ok := b.Network(name)
	if !ok {
		return nil, false
	}
	return n, true
}

// Networks returns every network in configuration order
func (b *Bot) Networks() []*Network {
	return append([]*Network(nil), b.order...)
}

// Binds returns the shared bind registry
func (b *Bot) Binds() *relay.Registry { return b.binds }

// Router returns the router
func (b *Bot) Router() *relay.Router { return b.router }

// Bus returns the event bus
func (b *Bot) Bus() *events.EventBus { return b.bus }
