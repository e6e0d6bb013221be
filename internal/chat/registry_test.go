package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(hosts ...string) *ServerRegistry {
	r := NewServerRegistry()
	for _, h := range hosts {
		r.AddServer(NewServer(h, 6667, false, ""))
	}
	return r
}

func TestAddServerRejectsDuplicateHost(t *testing.T) {
	r := NewServerRegistry()
	var dup []string
	r.OnDuplicate = func(host string) { dup = append(dup, host) }

	assert.True(t, r.AddServer(NewServer("irc.example.org", 6667, false, "")))
	assert.False(t, r.AddServer(NewServer("IRC.example.org ", 6697, true, "")))
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []string{"irc.example.org"}, dup)
	assert.True(t, r.Has("irc.EXAMPLE.org"))
	assert.False(t, r.Has("other.example.org"))
}

func TestActiveServerRoundRobin(t *testing.T) {
	r := newRegistry("a", "b", "c")

	var got []string
	for i := 0; i < 6; i++ {
		got = append(got, r.ActiveServer(-1).Host)
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, got)
}

func TestActiveServerSkipsDisabled(t *testing.T) {
	r := newRegistry("a", "b", "c", "d")
	r.Get("b").SetEnabled(false)

	seen := map[string]int{}
	for i := 0; i < 3; i++ {
		seen[r.Next().Host]++
	}
	assert.Equal(t, map[string]int{"a": 1, "c": 1, "d": 1}, seen)
	assert.Equal(t, "a", r.Next().Host)
}

func TestActiveServerExplicitIndex(t *testing.T) {
	r := newRegistry("a", "b", "c")

	assert.Equal(t, "c", r.ActiveServer(2).Host)
	assert.Equal(t, "c", r.Current().Host)
	// rotation continues after the explicit pick
	assert.Equal(t, "a", r.Next().Host)

	r.Get("b").SetEnabled(false)
	assert.Equal(t, "c", r.ActiveServer(1).Host, "disabled explicit pick falls forward")
	assert.Equal(t, "a", r.ActiveServer(99).Host, "out of range index means round robin")
}

func TestActiveServerFallbackWraps(t *testing.T) {
	r := newRegistry("a", "b", "c")
	r.Get("c").SetEnabled(false)

	assert.Equal(t, "a", r.ActiveServer(2).Host, "scan continues past the end to the head")
	assert.Equal(t, "b", r.Next().Host)
	assert.Equal(t, "a", r.Next().Host)
}

func TestActiveServerNoneEnabled(t *testing.T) {
	r := newRegistry("a", "b")
	for _, s := range r.Servers() {
		s.SetEnabled(false)
	}
	assert.Nil(t, r.Next())
	assert.Nil(t, r.Current())
	assert.False(t, r.Usable())

	r.EnableAll()
	assert.True(t, r.Usable())
	require.NotNil(t, r.Next())

	assert.Nil(t, NewServerRegistry().Next())
}

func TestServerHistory(t *testing.T) {
	s := NewServer("irc.example.org", 6697, true, "")
	assert.Equal(t, "irc.example.org:6697", s.Address())

	t0 := time.Unix(100, 0)
	s.MarkConnected(t0)
	assert.True(t, s.Connected())
	s.MarkDisconnected(t0.Add(time.Minute))
	s.MarkDisconnected(t0.Add(time.Hour))

	h := s.History()
	require.Len(t, h, 1)
	assert.Equal(t, t0, h[0].Connected)
	assert.Equal(t, t0.Add(time.Minute), h[0].Disconnected)
	assert.False(t, s.Connected())
}
