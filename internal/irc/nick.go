package irc

import (
	"math/rand/v2"
	"strings"

	"github.com/matt0x6f/irc-relay/internal/chat"
)

// DefaultNickLen is assumed until the server advertises NICKLEN
const DefaultNickLen = 30

const fillerChars = "abcdefghijklmnopqrstuvwxyz0123456789"

// AlternateNick picks the next nickname to try after current was refused.
// An invalid or overlong nick is repaired with random filler. Otherwise the
// secondary nick is tried once, then an underscore is appended, and when
// that no longer fits the tail is replaced with filler.
func AlternateNick(current, primary, secondary string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultNickLen
	}

	clean := chat.SanitizeName(current)
	if clean == "" || clean != current || len(clean) > maxLen || !validNickStart(clean) {
		return repairNick(clean, maxLen)
	}

	if secondary != "" && strings.EqualFold(current, primary) && !strings.EqualFold(current, secondary) {
		return secondary
	}
	if len(current) < maxLen {
		return current + "_"
	}
	return repairNick(current, maxLen)
}

func validNickStart(nick string) bool {
	c := nick[0]
	return !(c >= '0' && c <= '9') && c != '-'
}

// repairNick trims base to fit and appends three filler characters
func repairNick(base string, maxLen int) string {
	for base != "" && !validNickStart(base) {
		base = base[1:]
	}
	const n = 3
	keep := maxLen - n
	if keep < 1 {
		keep = 1
	}
	if len(base) > keep {
		base = base[:keep]
	}
	if base == "" {
		base = "r"
	}
	var b strings.Builder
	b.WriteString(base)
	for range n {
		b.WriteByte(fillerChars[rand.IntN(len(fillerChars))])
	}
	out := b.String()
	if len(out) > maxLen {
		out = out[:maxLen]
	}
	return out
}
