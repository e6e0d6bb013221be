package irc

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ergochat/irc-go/ircmsg"
	"github.com/ergochat/irc-go/ircreader"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

const (
	initialReadBuffer = 512
	maxReadBuffer     = 16384
)

var (
	// ErrUnparsedLine marks a line that does not follow the wire grammar
	ErrUnparsedLine = errors.New("unparsed line")

	// ErrUnknownEncoding is returned for text encodings we cannot decode
	ErrUnknownEncoding = errors.New("unknown text encoding")
)

var commandPattern = regexp.MustCompile(`^(?:[A-Za-z]+|[0-9]{3})$`)

// Record is one parsed protocol line
type Record struct {
	Tags    map[string]string
	Source  string
	Nick    string
	Ident   string
	Host    string
	Command string
	Params  []string
	Raw     string
}

// Param returns the i-th parameter or ""
func (r *Record) Param(i int) string {
	if i < 0 || i >= len(r.Params) {
		return ""
	}
	return r.Params[i]
}

// Trailing returns the last parameter or ""
func (r *Record) Trailing() string {
	return r.Param(len(r.Params) - 1)
}

// Tag returns a tag value and whether the tag is present
func (r *Record) Tag(key string) (string, bool) {
	v, ok := r.Tags[key]
	return v, ok
}

// Flag reports whether a tag is present. Valueless tags such as "@draft/bot"
// are flags.
func (r *Record) Flag(key string) bool {
	_, ok := r.Tags[key]
	return ok
}

// ParseLine parses one line, with or without its terminator
func ParseLine(line string) (*Record, error) {
	line = strings.TrimRight(line, "\r\n")
	msg, err := ircmsg.ParseLine(line)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsedLine, err)
	}
	if !commandPattern.MatchString(msg.Command) {
		return nil, fmt.Errorf("%w: bad command %q", ErrUnparsedLine, msg.Command)
	}

	rec := &Record{
		Tags:    msg.AllTags(),
		Source:  msg.Source,
		Command: strings.ToUpper(msg.Command),
		Params:  msg.Params,
		Raw:     line,
	}
	if rec.Tags == nil {
		rec.Tags = map[string]string{}
	}
	if msg.Source != "" {
		nuh, err := ircmsg.ParseNUH(msg.Source)
		if err != nil {
			return nil, fmt.Errorf("%w: bad prefix %q", ErrUnparsedLine, msg.Source)
		}
		if nuh.User == "" && nuh.Host == "" && strings.Contains(nuh.Name, ".") {
			// server name
			rec.Host = nuh.Name
		} else {
			rec.Nick, rec.Ident, rec.Host = nuh.Name, nuh.User, nuh.Host
		}
	}
	return rec, nil
}

// EscapeTag encodes a tag value for the wire
func EscapeTag(value string) string {
	return ircmsg.EscapeTagValue(value)
}

// UnescapeTag decodes a wire tag value
func UnescapeTag(value string) string {
	return ircmsg.UnescapeTagValue(value)
}

// trailingCommands always send their last parameter in trailing form
var trailingCommands = map[string]bool{
	"PRIVMSG": true,
	"NOTICE":  true,
	"PART":    true,
	"QUIT":    true,
	"USER":    true,
	"TOPIC":   true,
}

// EncodeLine serializes a command, CRLF-terminated
func EncodeLine(command string, params ...string) (string, error) {
	msg := ircmsg.MakeMessage(nil, "", command, params...)
	if trailingCommands[command] || (command == "CAP" && len(params) > 1 && params[0] == "REQ") {
		msg.ForceTrailing()
	}
	line, err := msg.Line()
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n") + "\r\n", nil
}

// LookupEncoding resolves a text encoding by its IANA or WHATWG name
func LookupEncoding(name string) (encoding.Encoding, error) {
	if strings.TrimSpace(name) == "" {
		name = "utf-8"
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
	return enc, nil
}

// LineReader frames a decoded byte stream into lines. Partial lines stay
// buffered until their terminator arrives.
type LineReader struct {
	reader ircreader.Reader
}

// NewLineReader decodes src with enc and frames it on LF, dropping a
// preceding CR
func NewLineReader(src io.Reader, enc encoding.Encoding) *LineReader {
	if enc != nil {
		src = enc.NewDecoder().Reader(src)
	}
	lr := &LineReader{}
	lr.reader.Initialize(src, initialReadBuffer, maxReadBuffer)
	return lr
}

// ReadLine blocks until a complete line is available
func (lr *LineReader) ReadLine() (string, error) {
	line, err := lr.reader.ReadLine()
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(line), "\r"), nil
}

// NewLineWriter encodes text written to dst with enc
func NewLineWriter(dst io.Writer, enc encoding.Encoding) io.Writer {
	if enc == nil {
		return dst
	}
	return enc.NewEncoder().Writer(dst)
}
