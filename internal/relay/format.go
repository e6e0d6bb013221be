package relay

import "fmt"

// Format renders the line sent to a destination channel. AWAY-type events
// render as "" and are not relayed.
func Format(m Message) string {
	switch {
	case m.Is(KindAway):
		return ""
	case m.Is(KindJoin):
		return fmt.Sprintf("%s has joined %s on %s", m.Nick, m.ChannelName(), m.Network)
	case m.Is(KindPart):
		return fmt.Sprintf("%s has left %s on %s", m.Nick, m.ChannelName(), m.Network)
	}

	prefix := ""
	if m.Bind != nil {
		prefix = m.Bind.Prefix()
	}
	return prefix + m.Nick + " " + m.Content
}
