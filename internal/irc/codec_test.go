package irc

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLineFull(t *testing.T) {
	rec, err := ParseLine("@id=1;draft/bot :alice!al@example.org PRIVMSG #go :hello there\r\n")
	require.NoError(t, err)

	assert.Equal(t, "PRIVMSG", rec.Command)
	assert.Equal(t, "alice", rec.Nick)
	assert.Equal(t, "al", rec.Ident)
	assert.Equal(t, "example.org", rec.Host)
	assert.Equal(t, []string{"#go", "hello there"}, rec.Params)
	assert.Equal(t, "hello there", rec.Trailing())

	id, ok := rec.Tag("id")
	assert.True(t, ok)
	assert.Equal(t, "1", id)
	assert.True(t, rec.Flag("draft/bot"))
	assert.False(t, rec.Flag("missing"))
}

func TestParseLineServerSource(t *testing.T) {
	rec, err := ParseLine(":irc.example.net 001 relay :Welcome")
	require.NoError(t, err)
	assert.Equal(t, "001", rec.Command)
	assert.Empty(t, rec.Nick)
	assert.Equal(t, "irc.example.net", rec.Host)
	assert.Equal(t, "relay", rec.Param(0))
	assert.Empty(t, rec.Param(5))
}

func TestParseLineNoSource(t *testing.T) {
	rec, err := ParseLine("PING :irc.example.net")
	require.NoError(t, err)
	assert.Equal(t, "PING", rec.Command)
	assert.Empty(t, rec.Source)
	assert.Equal(t, "irc.example.net", rec.Param(0))
}

func TestParseLineMalformed(t *testing.T) {
	for _, line := range []string{
		"",
		":alice!a@h",
		"@id=1",
		"12 foo",
		"PRIV$MSG #a :b",
	} {
		_, err := ParseLine(line)
		assert.Truef(t, errors.Is(err, ErrUnparsedLine), "line %q: %v", line, err)
	}
}

func TestTagEscapeRoundTrip(t *testing.T) {
	for _, v := range []string{"plain", "a b", "semi;colon", `back\slash`, "cr\rlf\n", ""} {
		assert.Equal(t, v, UnescapeTag(EscapeTag(v)))
	}
	assert.Equal(t, `a\sb\:c`, EscapeTag("a b;c"))
}

func TestEncodeLine(t *testing.T) {
	line, err := EncodeLine("PRIVMSG", "#go", "hi")
	require.NoError(t, err)
	assert.Equal(t, "PRIVMSG #go :hi\r\n", line)

	line, err = EncodeLine("NICK", "relay")
	require.NoError(t, err)
	assert.Equal(t, "NICK relay\r\n", line)

	line, err = EncodeLine("CAP", "REQ", "multi-prefix")
	require.NoError(t, err)
	assert.Equal(t, "CAP REQ :multi-prefix\r\n", line)

	rec, err := ParseLine(mustEncode(t, "PRIVMSG", "#go", "two words"))
	require.NoError(t, err)
	assert.Equal(t, []string{"#go", "two words"}, rec.Params)
}

func mustEncode(t *testing.T, command string, params ...string) string {
	t.Helper()
	line, err := EncodeLine(command, params...)
	require.NoError(t, err)
	return line
}

func TestLineReaderChunked(t *testing.T) {
	input := "PING :one\r\n:a!b@c PRIVMSG #x :two\nPART #x"
	lr := NewLineReader(iotest.OneByteReader(strings.NewReader(input)), nil)

	line, err := lr.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "PING :one", line)

	line, err = lr.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, ":a!b@c PRIVMSG #x :two", line)

	// the unterminated tail is never surfaced as a line
	_, err = lr.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}

func TestLineReaderDecodes(t *testing.T) {
	enc, err := LookupEncoding("iso-8859-1")
	require.NoError(t, err)

	lr := NewLineReader(strings.NewReader("PRIVMSG #x :caf\xe9\r\n"), enc)
	line, err := lr.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "PRIVMSG #x :café", line)
}

func TestLookupEncoding(t *testing.T) {
	enc, err := LookupEncoding("")
	require.NoError(t, err)
	assert.NotNil(t, enc)

	_, err = LookupEncoding("klingon-8")
	assert.ErrorIs(t, err, ErrUnknownEncoding)
}
