package relay

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/matt0x6f/irc-relay/internal/chat"
	"github.com/rs/zerolog"
)

// ErrInvalidBind is returned when a bind's endpoints are blank or identical
var ErrInvalidBind = errors.New("invalid bind")

// Filter decides something about a message. Reject filters return true to
// drop it, accept filters return true to let it through.
type Filter func(m Message) (bool, error)

// Transform rewrites a working copy of a matched message
type Transform func(m Message) (Message, error)

// Endpoint names a channel on a network
type Endpoint struct {
	Network string
	Channel string
}

func (e Endpoint) String() string {
	return e.Network + ":" + e.Channel
}

func (e Endpoint) blank() bool {
	return strings.TrimSpace(e.Network) == "" || strings.TrimSpace(e.Channel) == ""
}

// Equal compares endpoints case-insensitively
func (e Endpoint) Equal(o Endpoint) bool {
	return strings.EqualFold(e.Network, o.Network) && chat.Fold(e.Channel) == chat.Fold(o.Channel)
}

// BindOptions describes a bind to create
type BindOptions struct {
	Source      Endpoint
	Destination Endpoint

	Active       bool
	Duplex       bool
	Unrestricted bool

	// Prefix is prepended to relayed lines and wins over PrefixSource
	Prefix       string
	PrefixSource bool

	// InheritFilters copies the filter chains onto an auto-created mirror
	InheritFilters bool

	Reject     []Filter
	Accept     []Filter
	Transforms []Transform
}

// Bind is a directional relay rule from one channel to another
type Bind struct {
	registry    *Registry
	source      Endpoint
	destination Endpoint
	log         zerolog.Logger

	mu           sync.RWMutex
	active       bool
	duplex       bool
	unrestricted bool
	prefix       string
	prefixSource bool
	reject       []Filter
	accept       []Filter
	transforms   []Transform
}

func validateBind(opts BindOptions) error {
	if opts.Source.blank() {
		return fmt.Errorf("%w: source network and channel are required", ErrInvalidBind)
	}
	if opts.Destination.blank() {
		return fmt.Errorf("%w: destination network and channel are required", ErrInvalidBind)
	}
	if opts.Source.Equal(opts.Destination) {
		return fmt.Errorf("%w: source and destination are both %s", ErrInvalidBind, opts.Source)
	}
	return nil
}

func newBind(r *Registry, opts BindOptions) *Bind {
	b := &Bind{
		registry:     r,
		source:       opts.Source,
		destination:  opts.Destination,
		active:       opts.Active,
		duplex:       opts.Duplex,
		unrestricted: opts.Unrestricted,
		reject:       append([]Filter(nil), opts.Reject...),
		accept:       append([]Filter(nil), opts.Accept...),
		transforms:   append([]Transform(nil), opts.Transforms...),
	}
	b.log = r.log.With().Str("bind", b.String()).Logger()
	switch {
	case opts.Prefix != "":
		b.prefix = opts.Prefix
	case opts.PrefixSource:
		b.prefixSource = true
		b.prefix = sourcePrefix(opts.Source)
	}
	return b
}

func sourcePrefix(e Endpoint) string {
	return "[" + e.Network + "::" + e.Channel + "] "
}

func (b *Bind) String() string {
	return b.source.String() + " -> " + b.destination.String()
}

// Source returns where messages come from
func (b *Bind) Source() Endpoint { return b.source }

// Destination returns where messages go
func (b *Bind) Destination() Endpoint { return b.destination }

// Active reports whether the bind relays
func (b *Bind) Active() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

// Enable turns the bind on. With alsoOther the mirror bind, if one exists,
// is enabled too.
func (b *Bind) Enable(alsoOther bool) {
	b.setActive(true, alsoOther)
}

// Disable turns the bind off, optionally together with its mirror
func (b *Bind) Disable(alsoOther bool) {
	b.setActive(false, alsoOther)
}

func (b *Bind) setActive(active, alsoOther bool) {
	b.mu.Lock()
	b.active = active
	b.mu.Unlock()
	if !alsoOther {
		return
	}
	if o := b.registry.Find(b.destination, b.source); o != nil {
		o.setActive(active, false)
	}
}

// Duplex reports whether the reverse bind is maintained automatically
func (b *Bind) Duplex() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.duplex
}

// Unrestricted reports whether every message matches regardless of filters
func (b *Bind) Unrestricted() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.unrestricted
}

// SetUnrestricted changes the unrestricted flag
func (b *Bind) SetUnrestricted(unrestricted bool) {
	b.mu.Lock()
	b.unrestricted = unrestricted
	b.mu.Unlock()
}

// Prefix returns the text prepended to relayed lines
func (b *Bind) Prefix() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.prefix
}

// SetPrefix sets an explicit prefix, replacing a computed one
func (b *Bind) SetPrefix(prefix string) {
	b.mu.Lock()
	b.prefix = prefix
	b.prefixSource = false
	b.mu.Unlock()
}

// SetPrefixSource switches the origin prefix on or off. Turning it off only
// clears a computed prefix, never an explicit one.
func (b *Bind) SetPrefixSource(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if on {
		b.prefixSource = true
		b.prefix = sourcePrefix(b.source)
		return
	}
	if b.prefixSource {
		b.prefix = ""
	}
	b.prefixSource = false
}

// AddReject appends reject filters
func (b *Bind) AddReject(filters ...Filter) {
	b.mu.Lock()
	b.reject = append(b.reject, filters...)
	b.mu.Unlock()
}

// AddAccept appends accept filters
func (b *Bind) AddAccept(filters ...Filter) {
	b.mu.Lock()
	b.accept = append(b.accept, filters...)
	b.mu.Unlock()
}

// AddTransform appends transforms
func (b *Bind) AddTransform(transforms ...Transform) {
	b.mu.Lock()
	b.transforms = append(b.transforms, transforms...)
	b.mu.Unlock()
}

// Match runs the filter chains. The first reject hit drops the message.
// Otherwise it matches when an accept filter hits, when the bind has no
// accept filters, or when the bind is unrestricted. A bind carrying only
// reject filters therefore relays whatever they let through. A matched
// message is passed through the transforms and returned; m itself is never
// modified. A failing filter or transform counts as a rejection.
func (b *Bind) Match(m Message) (Message, bool) {
	b.mu.RLock()
	reject, accept, transforms := b.reject, b.accept, b.transforms
	unrestricted := b.unrestricted
	b.mu.RUnlock()

	for _, f := range reject {
		hit, err := b.runFilter(f, m)
		if err != nil {
			b.filterFailed("reject", err)
			return Message{}, false
		}
		if hit {
			return Message{}, false
		}
	}

	matched := unrestricted || len(accept) == 0
	for _, f := range accept {
		if matched {
			break
		}
		hit, err := b.runFilter(f, m)
		if err != nil {
			b.filterFailed("accept", err)
			return Message{}, false
		}
		matched = hit
	}
	if !matched {
		return Message{}, false
	}

	out := m.Clone()
	for _, t := range transforms {
		next, err := b.runTransform(t, out)
		if err != nil {
			b.filterFailed("transform", err)
			return Message{}, false
		}
		out = next
	}
	return out, true
}

func (b *Bind) runFilter(f Filter, m Message) (hit bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("filter panic: %v", r)
		}
	}()
	return f(m.Clone())
}

func (b *Bind) runTransform(t Transform, m Message) (out Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transform panic: %v", r)
		}
	}()
	return t(m.Clone())
}

func (b *Bind) filterFailed(stage string, err error) {
	b.log.Warn().Err(err).
		Str("source", b.source.String()).
		Str("destination", b.destination.String()).
		Str("stage", stage).
		Msg("Bind filter failed, message rejected")
	b.registry.metrics.FilterFailed(b.String())
}

// Opposing returns the mirror bind, creating an empty active one when it
// does not exist yet
func (b *Bind) Opposing() *Bind {
	if o := b.registry.Find(b.destination, b.source); o != nil {
		return o
	}
	opts := b.mirrorOptions()
	o, err := b.registry.Bind(opts)
	if err != nil {
		// endpoints were validated when b was created
		b.log.Error().Err(err).Msg("Failed to create opposing bind")
		return nil
	}
	return o
}

// Release removes the bind from its registry. The mirror is left alone.
func (b *Bind) Release() bool {
	return b.registry.Release(b)
}

func (b *Bind) mirrorOptions() BindOptions {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return BindOptions{
		Source:       b.destination,
		Destination:  b.source,
		Active:       b.active,
		Duplex:       b.duplex,
		Unrestricted: b.unrestricted,
		PrefixSource: b.prefixSource,
	}
}
