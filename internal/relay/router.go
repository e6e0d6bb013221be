package relay

import (
	"github.com/matt0x6f/irc-relay/internal/chat"
	"github.com/matt0x6f/irc-relay/internal/events"
	"github.com/matt0x6f/irc-relay/internal/metric"
	"github.com/rs/zerolog"
)

// Destination is a network the router can deliver to
type Destination interface {
	Name() string
	Connected() bool
	Directory() *chat.Directory
	Say(channel, text string) error
}

// Networks resolves destination networks by name
type Networks interface {
	Lookup(name string) (Destination, bool)
}

// Journal records relayed messages
type Journal interface {
	RecordRelay(m Message)
}

// Router relays classified messages along matching binds
type Router struct {
	binds    *Registry
	networks Networks
	bus      *events.EventBus
	log      zerolog.Logger
	metrics  *metric.Metrics
	journal  Journal
}

// RouterOption configures a Router
type RouterOption func(*Router)

// WithJournal records every relay in j
func WithJournal(j Journal) RouterOption {
	return func(r *Router) { r.journal = j }
}

// WithMetrics counts relays in m
func WithMetrics(m *metric.Metrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

// NewRouter creates a router over binds and networks
func NewRouter(binds *Registry, networks Networks, bus *events.EventBus, log zerolog.Logger, opts ...RouterOption) *Router {
	r := &Router{
		binds:    binds,
		networks: networks,
		bus:      bus,
		log:      log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Binds returns the registry the router reads
func (r *Router) Binds() *Registry {
	return r.binds
}

// Route publishes m and relays it along every active bind sourced from its
// channel. Private messages are published but never relayed. It returns
// the number of lines sent.
func (r *Router) Route(m Message) int {
	r.log.Debug().
		Str("network", m.Network).
		Str("channel", m.ChannelName()).
		Str("nick", m.Nick).
		Str("command", m.Command).
		Interface("kinds", m.Kinds).
		Msg("Routing message")

	r.bus.Emit(events.Event{
		Type:    events.EventMessage,
		Network: m.Network,
		Payload: m,
		Source:  events.EventSourceRelay,
	})

	if m.Channel == nil {
		return 0
	}

	sent := 0
	for _, b := range r.binds.Sourced(m.Network) {
		if !b.Active() || chat.Fold(b.Source().Channel) != chat.Fold(m.Channel.Name) {
			continue
		}
		out, ok := b.Match(m)
		if !ok {
			continue
		}
		if r.deliver(b, out) {
			sent++
		}
	}
	return sent
}

func (r *Router) deliver(b *Bind, m Message) bool {
	dst := b.Destination()
	log := r.log.With().Str("bind", b.String()).Logger()

	network, ok := r.networks.Lookup(dst.Network)
	if !ok {
		log.Warn().Str("network", dst.Network).Msg("Bind destination network does not exist")
		return false
	}
	if !network.Connected() {
		log.Debug().Str("network", dst.Network).Msg("Bind destination network is not connected")
		return false
	}
	ch, ok := network.Directory().LookupChannel(dst.Channel)
	if !ok || !ch.Joined() {
		log.Debug().Str("channel", dst.Channel).Msg("Not in bind destination channel")
		return false
	}

	m.Bind = b
	m.Response = Format(m)
	if m.Response == "" {
		return false
	}
	if err := network.Say(ch.Name, m.Response); err != nil {
		log.Warn().Err(err).Msg("Failed to relay message")
		return false
	}

	r.metrics.Relayed(m.Network, network.Name())
	if r.journal != nil {
		r.journal.RecordRelay(m)
	}
	return true
}
