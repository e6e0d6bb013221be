package relay

import (
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/matt0x6f/irc-relay/internal/chat"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	return NewRegistry(nil, zerolog.Nop(), nil)
}

func ep(network, channel string) Endpoint {
	return Endpoint{Network: network, Channel: channel}
}

func channelMessage(network, channel, nick, content string) Message {
	m := NewMessage(network, "PRIVMSG", KindMessage, KindPublic)
	m.Channel = chat.NewChannel(channel)
	m.Nick = nick
	m.Content = content
	return m
}

func always(result bool) Filter {
	return func(Message) (bool, error) { return result, nil }
}

func TestBindValidation(t *testing.T) {
	r := newTestRegistry()
	tests := []struct {
		name     string
		src, dst Endpoint
	}{
		{"blank source network", ep("", "#x"), ep("B", "#y")},
		{"blank source channel", ep("A", " "), ep("B", "#y")},
		{"blank destination", ep("A", "#x"), ep("B", "")},
		{"same endpoint", ep("A", "#x"), ep("a", "#X")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Bind(BindOptions{Source: tt.src, Destination: tt.dst})
			assert.ErrorIs(t, err, ErrInvalidBind)
		})
	}
	assert.Equal(t, 0, r.Len())

	_, err := r.Bind(BindOptions{Source: ep("A", "#x"), Destination: ep("A", "#y")})
	assert.NoError(t, err, "same network, different channel is allowed")
}

func TestBindRejectTakesPrecedence(t *testing.T) {
	r := newTestRegistry()
	b, err := r.Bind(BindOptions{
		Source:       ep("A", "#x"),
		Destination:  ep("B", "#y"),
		Active:       true,
		Unrestricted: true,
		Reject:       []Filter{always(true)},
		Accept:       []Filter{always(true), always(true)},
	})
	require.NoError(t, err)

	for _, content := range []string{"hello", "", "!ping"} {
		_, ok := b.Match(channelMessage("A", "#x", "alice", content))
		assert.False(t, ok, content)
	}
}

func TestBindRejectShortCircuits(t *testing.T) {
	r := newTestRegistry()
	called := false
	b, err := r.Bind(BindOptions{
		Source:      ep("A", "#x"),
		Destination: ep("B", "#y"),
		Reject: []Filter{always(true), func(Message) (bool, error) {
			called = true
			return false, nil
		}},
	})
	require.NoError(t, err)

	_, ok := b.Match(channelMessage("A", "#x", "alice", "hi"))
	assert.False(t, ok)
	assert.False(t, called)
}

func TestBindNoFiltersAndUnrestricted(t *testing.T) {
	r := newTestRegistry()
	b, err := r.Bind(BindOptions{Source: ep("A", "#x"), Destination: ep("B", "#y")})
	require.NoError(t, err)

	out, ok := b.Match(channelMessage("A", "#x", "alice", "hi"))
	require.True(t, ok, "a bind without filters relays everything")
	assert.Equal(t, "hi", out.Content)

	b.AddAccept(always(false))
	_, ok = b.Match(channelMessage("A", "#x", "alice", "hi"))
	assert.False(t, ok, "accept filters that miss reject the message")

	b.SetUnrestricted(true)
	_, ok = b.Match(channelMessage("A", "#x", "alice", "hi"))
	assert.True(t, ok, "unrestricted overrides missing accepts")
}

func TestBindRejectByPattern(t *testing.T) {
	r := newTestRegistry()
	b, err := r.Bind(BindOptions{
		Source:      ep("A", "#x"),
		Destination: ep("B", "#y"),
		Reject:      []Filter{MatchContent(regexp.MustCompile(`^!`))},
	})
	require.NoError(t, err)

	_, ok := b.Match(channelMessage("A", "#x", "alice", "!ping"))
	assert.False(t, ok)
	_, ok = b.Match(channelMessage("A", "#x", "alice", "hi there"))
	assert.True(t, ok)
	_, ok = b.Match(channelMessage("A", "#x", "alice", "\x02!bold"))
	assert.False(t, ok, "formatting is stripped before matching")

	b.AddAccept(MatchContent(regexp.MustCompile(`there`)))
	_, ok = b.Match(channelMessage("A", "#x", "alice", "hi"))
	assert.False(t, ok, "once accept filters exist one of them must hit")
	_, ok = b.Match(channelMessage("A", "#x", "alice", "hi there"))
	assert.True(t, ok)
}

func TestBindFilterErrorsReject(t *testing.T) {
	r := newTestRegistry()
	b, err := r.Bind(BindOptions{
		Source:      ep("A", "#x"),
		Destination: ep("B", "#y"),
		Accept: []Filter{func(Message) (bool, error) {
			return false, errors.New("boom")
		}},
	})
	require.NoError(t, err)
	_, ok := b.Match(channelMessage("A", "#x", "alice", "hi"))
	assert.False(t, ok)

	p, err := r.Bind(BindOptions{
		Source:      ep("A", "#x"),
		Destination: ep("C", "#z"),
		Reject: []Filter{func(m Message) (bool, error) {
			var names []string
			return names[3] == m.Content, nil
		}},
	})
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		_, ok = p.Match(channelMessage("A", "#x", "alice", "hi"))
	})
	assert.False(t, ok)
}

func TestBindTransformsWorkOnCopy(t *testing.T) {
	r := newTestRegistry()
	upper := func(m Message) (Message, error) {
		m.Content = strings.ToUpper(m.Content)
		m.Kinds = append(m.Kinds[:0], KindNotice)
		return m, nil
	}
	exclaim := func(m Message) (Message, error) {
		m.Content += "!"
		return m, nil
	}
	b, err := r.Bind(BindOptions{
		Source:       ep("A", "#x"),
		Destination:  ep("B", "#y"),
		Unrestricted: true,
		Transforms:   []Transform{upper, exclaim},
	})
	require.NoError(t, err)

	in := channelMessage("A", "#x", "alice", "hello")
	out, ok := b.Match(in)
	require.True(t, ok)
	assert.Equal(t, "HELLO!", out.Content)
	assert.Equal(t, "hello", in.Content)
	assert.Equal(t, []Kind{KindMessage, KindPublic}, in.Kinds)

	b.AddTransform(func(Message) (Message, error) { return Message{}, errors.New("nope") })
	_, ok = b.Match(in)
	assert.False(t, ok)
}

func TestBindDuplexSymmetry(t *testing.T) {
	r := newTestRegistry()
	b, err := r.Bind(BindOptions{
		Source:      ep("A", "#x"),
		Destination: ep("B", "#y"),
		Duplex:      true,
		Active:      true,
	})
	require.NoError(t, err)
	require.Equal(t, 2, r.Len())

	mirror := r.Find(ep("B", "#y"), ep("A", "#x"))
	require.NotNil(t, mirror)
	assert.Same(t, mirror, b.Opposing())
	assert.Same(t, b, mirror.Opposing())
	assert.True(t, mirror.Active())

	assert.True(t, mirror.Release())
	assert.Equal(t, 1, r.Len())
	assert.Same(t, b, r.Find(ep("A", "#x"), ep("B", "#y")))
	assert.False(t, mirror.Release())
}

func TestBindDuplexInheritsFilters(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Bind(BindOptions{
		Source:         ep("A", "#x"),
		Destination:    ep("B", "#y"),
		Duplex:         true,
		InheritFilters: true,
		Reject:         []Filter{always(true)},
	})
	require.NoError(t, err)
	mirror := r.Find(ep("B", "#y"), ep("A", "#x"))
	require.NotNil(t, mirror)
	_, ok := mirror.Match(channelMessage("B", "#y", "bob", "hi"))
	assert.False(t, ok)

	r2 := newTestRegistry()
	_, err = r2.Bind(BindOptions{
		Source:      ep("A", "#x"),
		Destination: ep("B", "#y"),
		Duplex:      true,
		Reject:      []Filter{always(true)},
	})
	require.NoError(t, err)
	mirror = r2.Find(ep("B", "#y"), ep("A", "#x"))
	require.NotNil(t, mirror)
	_, ok = mirror.Match(channelMessage("B", "#y", "bob", "hi"))
	assert.True(t, ok, "mirror without inherited filters relays everything")
}

func TestBindDuplexKeepsExistingMirror(t *testing.T) {
	r := newTestRegistry()
	existing, err := r.Bind(BindOptions{Source: ep("B", "#y"), Destination: ep("A", "#x"), Prefix: "keep "})
	require.NoError(t, err)

	_, err = r.Bind(BindOptions{Source: ep("A", "#x"), Destination: ep("B", "#y"), Duplex: true})
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())
	assert.Same(t, existing, r.Find(ep("B", "#y"), ep("A", "#x")))
}

func TestBindReplacesIdentical(t *testing.T) {
	r := newTestRegistry()
	first, err := r.Bind(BindOptions{Source: ep("A", "#x"), Destination: ep("B", "#y")})
	require.NoError(t, err)
	second, err := r.Bind(BindOptions{Source: ep("a", "#X"), Destination: ep("b", "#Y")})
	require.NoError(t, err)

	assert.Equal(t, 1, r.Len())
	assert.Same(t, second, r.Find(ep("A", "#x"), ep("B", "#y")))
	assert.False(t, first.Release())
}

func TestBindEnablePropagation(t *testing.T) {
	r := newTestRegistry()
	b, err := r.Bind(BindOptions{Source: ep("A", "#x"), Destination: ep("B", "#y"), Duplex: true, Active: true})
	require.NoError(t, err)
	mirror := b.Opposing()

	b.Disable(false)
	assert.False(t, b.Active())
	assert.True(t, mirror.Active())

	b.Disable(true)
	assert.False(t, mirror.Active())

	mirror.Enable(true)
	assert.True(t, b.Active())
	assert.True(t, mirror.Active())
}

func TestBindOpposingCreatesMirror(t *testing.T) {
	r := newTestRegistry()
	b, err := r.Bind(BindOptions{Source: ep("A", "#x"), Destination: ep("B", "#y"), Active: true})
	require.NoError(t, err)
	require.Equal(t, 1, r.Len())

	o := b.Opposing()
	require.NotNil(t, o)
	assert.Equal(t, ep("B", "#y"), o.Source())
	assert.Equal(t, ep("A", "#x"), o.Destination())
	assert.Equal(t, 2, r.Len())
	assert.Same(t, o, b.Opposing())
}

func TestBindPrefix(t *testing.T) {
	r := newTestRegistry()
	b, err := r.Bind(BindOptions{Source: ep("A", "#x"), Destination: ep("B", "#y"), PrefixSource: true})
	require.NoError(t, err)
	assert.Equal(t, "[A::#x] ", b.Prefix())

	b.SetPrefixSource(false)
	assert.Equal(t, "", b.Prefix())

	explicit, err := r.Bind(BindOptions{Source: ep("A", "#x"), Destination: ep("C", "#z"), Prefix: "<A> ", PrefixSource: true})
	require.NoError(t, err)
	assert.Equal(t, "<A> ", explicit.Prefix())
	explicit.SetPrefixSource(false)
	assert.Equal(t, "<A> ", explicit.Prefix(), "clearing the origin prefix keeps an explicit one")
}

func TestRegistryNetworkBucket(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Bind(BindOptions{Source: ep("A", "#x"), Destination: ep("B", "#y")})
	require.NoError(t, err)

	assert.Len(t, r.Sourced("a"), 1)
	r.SetNetworkEnabled("A", false)
	assert.False(t, r.NetworkEnabled("a"))
	assert.Nil(t, r.Sourced("A"))
	r.SetNetworkEnabled("A", true)
	assert.Len(t, r.Sourced("A"), 1)
	assert.True(t, r.NetworkEnabled("unknown"))
	assert.Len(t, r.All(), 1)
}
