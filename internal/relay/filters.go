package relay

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/ergochat/irc-go/ircfmt"
)

// StripFormatting removes IRC colour and style codes from text
func StripFormatting(text string) string {
	return ircfmt.Strip(text)
}

// MatchContent hits when re matches the message content with formatting
// codes removed
func MatchContent(re *regexp.Regexp) Filter {
	return func(m Message) (bool, error) {
		return re.MatchString(StripFormatting(m.Content)), nil
	}
}

// MatchPattern compiles pattern and returns a MatchContent filter
func MatchPattern(pattern string) (Filter, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid filter pattern %q: %w", pattern, err)
	}
	return MatchContent(re), nil
}

// FromNick hits when the acting nickname is one of nicks
func FromNick(nicks ...string) Filter {
	return func(m Message) (bool, error) {
		for _, n := range nicks {
			if strings.EqualFold(n, m.Nick) {
				return true, nil
			}
		}
		return false, nil
	}
}

// HasKind hits when the message carries any of kinds
func HasKind(kinds ...Kind) Filter {
	return func(m Message) (bool, error) {
		return slices.ContainsFunc(kinds, m.Is), nil
	}
}

// StripTransform removes formatting codes from relayed content
func StripTransform() Transform {
	return func(m Message) (Message, error) {
		m.Content = StripFormatting(m.Content)
		return m, nil
	}
}
