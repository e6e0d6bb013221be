package relay

import (
	"strings"
	"sync"

	"github.com/matt0x6f/irc-relay/internal/events"
	"github.com/matt0x6f/irc-relay/internal/metric"
	"github.com/rs/zerolog"
)

type bucket struct {
	enabled bool
	binds   []*Bind
}

// Registry holds every bind, bucketed by source network. Reads and writes
// may come from any connection goroutine.
type Registry struct {
	mu      sync.RWMutex
	buckets map[string]*bucket

	bus     *events.EventBus
	log     zerolog.Logger
	metrics *metric.Metrics
}

// NewRegistry creates an empty registry. bus and metrics may be nil.
func NewRegistry(bus *events.EventBus, log zerolog.Logger, metrics *metric.Metrics) *Registry {
	return &Registry{
		buckets: make(map[string]*bucket),
		bus:     bus,
		log:     log,
		metrics: metrics,
	}
}

func networkKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Bind validates opts, registers the bind and returns it. An identical bind
// (same source and destination) is replaced. With Duplex set, the mirror
// bind is created unless it already exists; it copies the filter chains
// only when InheritFilters is set.
func (r *Registry) Bind(opts BindOptions) (*Bind, error) {
	if err := validateBind(opts); err != nil {
		return nil, err
	}
	b := newBind(r, opts)

	key := networkKey(opts.Source.Network)
	r.mu.Lock()
	bk, ok := r.buckets[key]
	if !ok {
		bk = &bucket{enabled: true}
		r.buckets[key] = bk
	}
	var replaced *Bind
	for i, existing := range bk.binds {
		if existing.source.Equal(b.source) && existing.destination.Equal(b.destination) {
			replaced = existing
			bk.binds = append(bk.binds[:i:i], bk.binds[i+1:]...)
			break
		}
	}
	bk.binds = append(bk.binds, b)
	r.mu.Unlock()

	if replaced != nil {
		r.log.Info().Str("bind", replaced.String()).Msg("Replacing existing bind")
		r.bus.Emit(events.Event{
			Type:    events.EventBindRemoved,
			Network: replaced.source.Network,
			Payload: replaced,
			Context: "replaced",
			Source:  events.EventSourceRelay,
		})
	}
	r.log.Info().Str("bind", b.String()).Bool("duplex", opts.Duplex).Msg("Bind created")
	r.bus.Emit(events.Event{
		Type:    events.EventBindCreated,
		Network: b.source.Network,
		Payload: b,
		Source:  events.EventSourceRelay,
	})

	if opts.Duplex && r.Find(opts.Destination, opts.Source) == nil {
		mirror := b.mirrorOptions()
		if opts.InheritFilters {
			mirror.Reject = opts.Reject
			mirror.Accept = opts.Accept
			mirror.Transforms = opts.Transforms
		}
		if _, err := r.Bind(mirror); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Find returns the bind from source to destination, or nil
func (r *Registry) Find(source, destination Endpoint) *Bind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bk, ok := r.buckets[networkKey(source.Network)]
	if !ok {
		return nil
	}
	for _, b := range bk.binds {
		if b.source.Equal(source) && b.destination.Equal(destination) {
			return b
		}
	}
	return nil
}

// Release removes b and reports whether it was registered
func (r *Registry) Release(b *Bind) bool {
	r.mu.Lock()
	bk, ok := r.buckets[networkKey(b.source.Network)]
	removed := false
	if ok {
		for i, existing := range bk.binds {
			if existing == b {
				bk.binds = append(bk.binds[:i:i], bk.binds[i+1:]...)
				removed = true
				break
			}
		}
	}
	r.mu.Unlock()

	if removed {
		r.log.Info().Str("bind", b.String()).Msg("Bind released")
		r.bus.Emit(events.Event{
			Type:    events.EventBindRemoved,
			Network: b.source.Network,
			Payload: b,
			Source:  events.EventSourceRelay,
		})
	}
	return removed
}

// Sourced returns the binds whose source is network, or nil when the
// network's bucket is disabled
func (r *Registry) Sourced(network string) []*Bind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bk, ok := r.buckets[networkKey(network)]
	if !ok || !bk.enabled {
		return nil
	}
	out := make([]*Bind, len(bk.binds))
	copy(out, bk.binds)
	return out
}

// SetNetworkEnabled mutes or unmutes every bind sourced from network
func (r *Registry) SetNetworkEnabled(network string, enabled bool) {
	key := networkKey(network)
	r.mu.Lock()
	defer r.mu.Unlock()
	bk, ok := r.buckets[key]
	if !ok {
		bk = &bucket{}
		r.buckets[key] = bk
	}
	bk.enabled = enabled
}

// NetworkEnabled reports whether binds sourced from network are routed
func (r *Registry) NetworkEnabled(network string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bk, ok := r.buckets[networkKey(network)]
	return !ok || bk.enabled
}

// All returns every registered bind
func (r *Registry) All() []*Bind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Bind
	for _, bk := range r.buckets {
		out = append(out, bk.binds...)
	}
	return out
}

// Len returns the number of registered binds
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, bk := range r.buckets {
		n += len(bk.binds)
	}
	return n
}
