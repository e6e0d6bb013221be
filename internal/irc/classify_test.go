package irc

import (
	"testing"

	"github.com/matt0x6f/irc-relay/internal/chat"
	"github.com/matt0x6f/irc-relay/internal/relay"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClassifier(t *testing.T) (*Classifier, *chat.Directory) {
	t.Helper()
	dir := chat.NewDirectory()
	dir.Channel("#go").SetJoined(true)
	return NewClassifier("A", dir, func() string { return "relay" }, zerolog.Nop()), dir
}

func classify(t *testing.T, c *Classifier, line string) (relay.Message, Verdict) {
	t.Helper()
	rec, err := ParseLine(line)
	require.NoError(t, err)
	return c.Classify(rec)
}

func TestClassifyChannelMessage(t *testing.T) {
	c, dir := newTestClassifier(t)
	m, v := classify(t, c, ":alice!al@example.org PRIVMSG #go :hello")
	require.Equal(t, Emit, v)
	assert.Equal(t, []relay.Kind{relay.KindMessage, relay.KindPublic}, m.Kinds)
	assert.Equal(t, "hello", m.Content)
	assert.Equal(t, "alice", m.Nick)
	assert.Equal(t, "A", m.Network)
	assert.Same(t, dir.Channel("#go"), m.Channel)
	require.NotNil(t, m.Actor)
	assert.Equal(t, "example.org", m.Actor.Hostname())
	assert.NotZero(t, m.ID)
}

func TestClassifyActionAndNotice(t *testing.T) {
	c, _ := newTestClassifier(t)

	m, v := classify(t, c, ":alice!a@h PRIVMSG #go :\x01ACTION waves\x01")
	require.Equal(t, Emit, v)
	assert.True(t, m.Is(relay.KindAction))
	assert.False(t, m.Is(relay.KindMessage))
	assert.Equal(t, "waves", m.Content)

	m, v = classify(t, c, ":alice!a@h NOTICE #go :heads up")
	require.Equal(t, Emit, v)
	assert.Equal(t, []relay.Kind{relay.KindNotice, relay.KindPublic}, m.Kinds)
}

func TestClassifyUnknownChannelDropped(t *testing.T) {
	c, dir := newTestClassifier(t)
	_, v := classify(t, c, ":alice!a@h PRIVMSG #elsewhere :hi")
	assert.Equal(t, Drop, v)

	dir.Channel("#parted")
	_, v = classify(t, c, ":alice!a@h PRIVMSG #parted :hi")
	assert.Equal(t, Drop, v)
}

func TestClassifyPrivateMessage(t *testing.T) {
	c, dir := newTestClassifier(t)
	m, v := classify(t, c, ":bob!b@h PRIVMSG relay :psst")
	require.Equal(t, Emit, v)
	assert.True(t, m.Is(relay.KindPrivate))
	assert.Nil(t, m.Channel)
	u, ok := dir.LookupUser("bob")
	require.True(t, ok)
	assert.Same(t, u, m.User)
}

func TestClassifyCTCP(t *testing.T) {
	c, _ := newTestClassifier(t)

	m, v := classify(t, c, ":bob!b@h PRIVMSG relay :\x01VERSION\x01")
	assert.Equal(t, CTCP, v)
	assert.Equal(t, "\x01VERSION\x01", m.Content)

	_, v = classify(t, c, ":bob!b@h PRIVMSG #go :\x01VERSION\x01")
	assert.Equal(t, Drop, v)

	_, v = classify(t, c, ":bob!b@h NOTICE relay :\x01VERSION other 1.0\x01")
	assert.Equal(t, Drop, v)
}

func TestClassifyServerNoticeDropped(t *testing.T) {
	c, _ := newTestClassifier(t)
	_, v := classify(t, c, ":irc.example.net NOTICE relay :*** Looking up your hostname")
	assert.Equal(t, Drop, v)
}

func TestClassifyJoinPart(t *testing.T) {
	c, dir := newTestClassifier(t)
	ch := dir.Channel("#go")

	m, v := classify(t, c, ":bob!b@h JOIN #go")
	require.Equal(t, Emit, v)
	assert.Equal(t, []relay.Kind{relay.KindJoin, relay.KindPublic}, m.Kinds)
	bob, _ := dir.LookupUser("bob")
	assert.True(t, ch.HasUser(bob))

	m, v = classify(t, c, ":bob!b@h PART #go :later")
	require.Equal(t, Emit, v)
	assert.True(t, m.Is(relay.KindPart))
	assert.Equal(t, "later", m.Content)
	assert.False(t, ch.HasUser(bob))
}

func TestClassifySelfMembership(t *testing.T) {
	c, dir := newTestClassifier(t)

	_, v := classify(t, c, ":relay!r@h JOIN #new")
	assert.Equal(t, Drop, v)
	ch, ok := dir.LookupChannel("#new")
	require.True(t, ok)
	assert.True(t, ch.Joined())

	_, v = classify(t, c, ":RELAY!r@h PART #new")
	assert.Equal(t, Drop, v)
	assert.False(t, ch.Joined())
}

func TestClassifyAway(t *testing.T) {
	c, _ := newTestClassifier(t)
	m, v := classify(t, c, ":bob!b@h AWAY :gone fishing")
	require.Equal(t, Emit, v)
	assert.True(t, m.Is(relay.KindAway))
	assert.False(t, m.Public())
}

func TestParseCTCP(t *testing.T) {
	req, ok := parseCTCP("\x01PING 12345\x01")
	require.True(t, ok)
	assert.Equal(t, "PING", req.command)
	assert.Equal(t, "12345", req.args)

	req, ok = parseCTCP("\x01action dances")
	require.True(t, ok)
	assert.Equal(t, "ACTION", req.command)

	_, ok = parseCTCP("plain text")
	assert.False(t, ok)
	_, ok = parseCTCP("\x01\x01")
	assert.False(t, ok)
}
