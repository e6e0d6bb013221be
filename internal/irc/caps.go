package irc

import (
	"slices"
	"strings"
)

// DefaultCapabilities are requested whenever the server offers them
var DefaultCapabilities = []string{
	"multi-prefix",
	"away-notify",
	"extended-join",
	"account-notify",
	"chghost",
	"cap-notify",
	"server-time",
	"message-tags",
}

// capSet tracks IRCv3 capability negotiation for one session
type capSet struct {
	wanted    map[string]bool
	offered   map[string]string
	enabled   map[string]bool
	refused   map[string]bool
	pending   int
	lsDone    bool
	ended     bool
	saslMechs []string
}

func newCapSet(wanted []string) *capSet {
	cs := &capSet{
		wanted:  make(map[string]bool),
		offered: make(map[string]string),
		enabled: make(map[string]bool),
		refused: make(map[string]bool),
	}
	for _, name := range wanted {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			cs.wanted[name] = true
		}
	}
	return cs
}

// offer records a capability list from LS or NEW
func (cs *capSet) offer(list string) {
	for _, token := range strings.Fields(list) {
		name, value, _ := strings.Cut(token, "=")
		name = strings.ToLower(name)
		cs.offered[name] = value
		delete(cs.refused, name)
		if name == "sasl" && value != "" {
			cs.saslMechs = strings.Split(strings.ToUpper(value), ",")
		}
	}
}

// withdraw handles DEL
func (cs *capSet) withdraw(list string) {
	for _, token := range strings.Fields(list) {
		name, _, _ := strings.Cut(strings.ToLower(token), "=")
		delete(cs.offered, name)
		delete(cs.enabled, name)
	}
}

// refuse handles NAK; refused names are not requested again until offered
func (cs *capSet) refuse(list string) {
	for _, token := range strings.Fields(list) {
		cs.refused[strings.TrimPrefix(strings.ToLower(token), "-")] = true
	}
}

// acknowledge handles ACK; a leading "-" disables. It returns the names
// that became enabled.
func (cs *capSet) acknowledge(list string) []string {
	var added []string
	for _, token := range strings.Fields(list) {
		name := strings.ToLower(token)
		if strings.HasPrefix(name, "-") {
			delete(cs.enabled, name[1:])
			continue
		}
		cs.enabled[name] = true
		added = append(added, name)
	}
	return added
}

// requestable returns offered capabilities we want and have neither
// enabled nor had refused.
// sasl is included when withSASL is set and the server offers it.
func (cs *capSet) requestable(withSASL bool) []string {
	var out []string
	for name := range cs.offered {
		if cs.enabled[name] || cs.refused[name] {
			continue
		}
		if cs.wanted[name] || (name == "sasl" && withSASL) {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// supportsMechanism reports whether the server advertised mech. Servers
// that list sasl without mechanisms accept anything.
func (cs *capSet) supportsMechanism(mech string) bool {
	if _, ok := cs.offered["sasl"]; !ok {
		return false
	}
	return len(cs.saslMechs) == 0 || slices.Contains(cs.saslMechs, strings.ToUpper(mech))
}

// Enabled reports whether a capability was acknowledged
func (cs *capSet) Enabled(name string) bool {
	return cs.enabled[strings.ToLower(name)]
}
